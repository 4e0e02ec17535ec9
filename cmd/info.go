package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"comfy-test/internal/color"
	"comfy-test/internal/config"
	"comfy-test/internal/workflow"
	"comfy-test/pkg/logging"
)

var infoOutput string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show configuration info",
	Long: `Info prints the resolved test configuration: the source file, enabled
platforms, expected nodes, the workflow and what comfy-env.toml declares.
Use --output yaml for the full configuration.`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().StringVarP(&infoOutput, "output", "o", "text", "Output format (text, yaml)")
	_ = infoCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch infoOutput {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode configuration: %w", err)
		}
		return enc.Close()
	case "text":
		env, err := config.LoadComfyEnv(cfg.ExtensionDir)
		if err != nil {
			logging.Warn("CLI", "Ignoring %s: %v", config.ComfyEnvFileName, err)
		}
		workflows, err := workflow.Discover(cfg.ExtensionDir)
		if err != nil {
			logging.Warn("CLI", "Failed to list workflows: %v", err)
		}
		printInfo(out, cfg, env, workflows)
		return nil
	default:
		return fmt.Errorf("invalid --output %q: use text or yaml", infoOutput)
	}
}

func printInfo(w io.Writer, cfg config.TestConfig, env config.ComfyEnv, workflows []string) {
	source := cfg.Source
	if source == "" {
		source = "(defaults)"
	}
	fmt.Fprintln(w, color.HeaderStyle.Render("Configuration"))
	fmt.Fprintf(w, "  Source:          %s\n", source)
	fmt.Fprintf(w, "  Extension:       %s\n", cfg.ExtensionDir)
	fmt.Fprintf(w, "  Name:            %s\n", cfg.Name)
	fmt.Fprintf(w, "  ComfyUI version: %s\n", cfg.ComfyUIVersion)
	fmt.Fprintf(w, "  Python version:  %s\n", cfg.PythonVersion)
	fmt.Fprintf(w, "  CPU only:        %t\n", cfg.CPUOnly)
	fmt.Fprintf(w, "  Timeout:         %s\n", cfg.Timeout)
	fmt.Fprintln(w)

	fmt.Fprintln(w, color.HeaderStyle.Render("Platforms"))
	for _, p := range config.AllPlatforms {
		state := color.MutedStyle.Render("disabled")
		if cfg.Platform(p).Enabled {
			state = color.SuccessStyle.Render("enabled")
		}
		fmt.Fprintf(w, "  %-17s %s\n", p+":", state)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, color.HeaderStyle.Render("Verification"))
	if !cfg.VerificationEnabled() {
		fmt.Fprintln(w, "  disabled")
	} else {
		fmt.Fprintf(w, "  Expected nodes (%d):\n", len(cfg.ExpectedNodes))
		for _, n := range cfg.ExpectedNodes {
			fmt.Fprintf(w, "    - %s\n", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, color.HeaderStyle.Render("Workflow"))
	if cfg.Workflow.File == "" {
		fmt.Fprintln(w, "  No workflow configured")
	} else {
		fmt.Fprintf(w, "  File:    %s\n", cfg.Workflow.File)
		fmt.Fprintf(w, "  Timeout: %s\n", cfg.Workflow.Timeout)
	}
	if len(workflows) > 0 {
		fmt.Fprintf(w, "  Validated workflows (%d):\n", len(workflows))
		for _, path := range workflows {
			if rel, err := filepath.Rel(cfg.ExtensionDir, path); err == nil {
				path = rel
			}
			fmt.Fprintf(w, "    - %s\n", path)
		}
	}

	if len(env.NodeReqs) == 0 && len(env.CUDAPackages) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, color.HeaderStyle.Render(config.ComfyEnvFileName))
	for _, req := range env.NodeReqs {
		fmt.Fprintf(w, "  Dependency: %s (%s)\n", req.Name, req.CloneURL())
	}
	if len(env.CUDAPackages) > 0 {
		fmt.Fprintf(w, "  Mocked CUDA packages: %v\n", env.CUDAPackages)
	}
}
