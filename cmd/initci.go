package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"

	"comfy-test/internal/config"
)

const defaultWorkflowPath = ".github/workflows/test-install.yml"

var (
	initCIOutput string
	initCIForce  bool
)

var ciWorkflowTemplate = template.Must(template.New("ci").Parse(`name: Test Installation
on:
  push:
    branches: [main, master]
  pull_request:
  workflow_dispatch:

jobs:
  test:
    uses: {{ .Repository }}/.github/workflows/test-matrix.yml@main
    with:
      config-file: "{{ .ConfigFile }}"
`))

type ciWorkflow struct {
	Repository string
	ConfigFile string
}

var initCICmd = &cobra.Command{
	Use:   "init-ci",
	Short: "Generate a GitHub Actions workflow",
	Long: `Init-ci writes a GitHub Actions workflow that runs the installation test
matrix on every push and pull request. The configuration file of the extension
is detected in --dir, falling back to comfy-test.yaml.`,
	Args: cobra.NoArgs,
	RunE: runInitCI,
}

func init() {
	rootCmd.AddCommand(initCICmd)
	initCICmd.Flags().StringVarP(&initCIOutput, "output", "o", defaultWorkflowPath, "Workflow file to write, relative to --dir")
	initCICmd.Flags().BoolVar(&initCIForce, "force", false, "Overwrite an existing workflow file")
}

func runInitCI(cmd *cobra.Command, args []string) error {
	path := initCIOutput
	if !filepath.IsAbs(path) {
		path = filepath.Join(rootDir, path)
	}
	if _, err := os.Stat(path); err == nil && !initCIForce {
		return fmt.Errorf("%s already exists, use --force to overwrite it", path)
	}

	configFile := config.ConfigFileNames[0]
	if found, err := config.Discover(rootDir); err == nil {
		configFile = filepath.Base(found)
	} else if !errors.Is(err, config.ErrConfigNotFound) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := writeCIWorkflow(f, ciWorkflow{Repository: githubRepoSlug, ConfigFile: configFile}); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generated GitHub Actions workflow: %s\n\n", path)
	fmt.Fprintln(out, "Make sure to:")
	fmt.Fprintf(out, "  1. Create a %s in your repository root\n", configFile)
	fmt.Fprintln(out, "  2. Commit both files to your repository")
	return nil
}

func writeCIWorkflow(w io.Writer, wf ciWorkflow) error {
	if err := ciWorkflowTemplate.Execute(w, wf); err != nil {
		return fmt.Errorf("failed to render workflow: %w", err)
	}
	return nil
}
