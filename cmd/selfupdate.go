package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

const githubRepoSlug = "PozzettiAndrea/comfy-test"

func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update comfy-test to the latest release",
		Long: `Checks for the latest release of comfy-test on GitHub and, when it is newer
than the running version, replaces the current executable with it.`,
		Args: cobra.NoArgs,
		RunE: runSelfUpdate,
	}
}

func runSelfUpdate(cmd *cobra.Command, args []string) error {
	current := strings.TrimPrefix(rootCmd.Version, "v")
	if current == "" || current == "dev" {
		return errors.New("cannot self-update a development version, install a release build instead")
	}

	ctx := context.Background()
	var out io.Writer = os.Stdout
	if cmd != nil {
		out = cmd.OutOrStdout()
		if cmd.Context() != nil {
			ctx = cmd.Context()
		}
	}

	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(githubRepoSlug))
	if err != nil {
		return fmt.Errorf("failed to detect the latest release: %w", err)
	}
	if !found {
		return fmt.Errorf("no release found for %s", githubRepoSlug)
	}

	if latest.LessOrEqual(current) {
		fmt.Fprintf(out, "comfy-test %s is up to date\n", current)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("failed to locate the executable: %w", err)
	}
	fmt.Fprintf(out, "Updating comfy-test %s -> %s\n", current, latest.Version())
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("failed to update %s: %w", exe, err)
	}
	fmt.Fprintf(out, "Updated to %s\n", latest.Version())
	return nil
}
