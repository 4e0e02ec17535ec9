package cmd

import (
	"fmt"
	"os"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"comfy-test/internal/color"
	"comfy-test/internal/config"
	"comfy-test/pkg/logging"
)

var (
	rootDebug      bool
	rootLogFormat  string
	rootConfigPath string
	rootDir        string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "comfy-test",
	Short: "Installation testing for ComfyUI custom nodes",
	Long: `comfy-test installs a ComfyUI custom node extension into a fresh ComfyUI
on each configured platform, starts the server, verifies that the extension's
nodes register and optionally runs a workflow end to end.

The test is described by a comfy-test.yaml (or comfy-test.toml) file in the
extension directory.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. failed runs)
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "comfy-test version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())

	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging, including host output")
	rootCmd.PersistentFlags().StringVar(&rootLogFormat, "log-format", string(logging.FormatText), "Log format (text, json)")
	rootCmd.PersistentFlags().StringVarP(&rootConfigPath, "config", "c", "", "Path to config file (default: auto-discover in --dir)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", ".", "Extension directory under test")

	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{string(logging.FormatText), string(logging.FormatJSON)}, cobra.ShellCompDirectiveNoFileComp
	})
}

func setupLogging(cmd *cobra.Command, args []string) error {
	format := logging.Format(rootLogFormat)
	if format != logging.FormatText && format != logging.FormatJSON {
		return fmt.Errorf("invalid --log-format %q: use text or json", rootLogFormat)
	}
	level := logging.LevelInfo
	if rootDebug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, format, os.Stderr)
	if color.IsTerminal(os.Stdout) {
		color.Initialize(termenv.HasDarkBackground())
	}
	color.Configure(os.Stdout)
	return nil
}

// loadConfig resolves the configuration for --dir and --config.
func loadConfig() (config.TestConfig, error) {
	return config.Load(rootDir, rootConfigPath)
}
