package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"comfy-test/internal/color"
	"comfy-test/internal/config"
	"comfy-test/internal/metrics"
	"comfy-test/internal/orchestrator"
	"comfy-test/internal/platform"
	"comfy-test/internal/reporting"
	"comfy-test/pkg/logging"
)

var (
	runPlatforms     []string
	runDryRun        bool
	runParallel      int
	runTimeout       time.Duration
	runWorkDir       string
	runKeepWorkspace bool
	runCacheDir      string
	runReportPath    string
	runMetricsFile   string
)

// errRunFailed is returned when at least one platform did not reach SUCCESS.
var errRunFailed = errors.New("installation test failed")

// completePlatformFlag provides shell completion for the platform flag
func completePlatformFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	names := make([]string, len(config.AllPlatforms))
	for i, p := range config.AllPlatforms {
		names[i] = string(p)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run installation tests",
	Long: `Run installs the extension into a fresh ComfyUI on each selected platform,
starts the server, verifies node registration, validates the extension's
workflows and runs the configured workflow.

Platforms default to the enabled platforms that can run on this host. With
--dry-run every enabled platform is planned and nothing is executed.

Example usage:
  comfy-test run                          # All enabled platforms for this host
  comfy-test run -p linux                 # Linux only
  comfy-test run --dry-run                # Show what would be done
  comfy-test run --report result.json     # Also write a JSON report`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTests(cmd, false)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify node registration only",
	Long: `Verify runs the same phases as run but never executes the configured
workflow. Node registration and workflow validation still happen.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTests(cmd, true)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(verifyCmd)

	addRunFlags(runCmd)
	addRunFlags(verifyCmd)
}

func addRunFlags(c *cobra.Command) {
	c.Flags().StringSliceVarP(&runPlatforms, "platform", "p", nil, "Platform to test on (linux, windows, windows-portable); repeatable")
	c.Flags().BoolVar(&runDryRun, "dry-run", false, "Show what would be done without doing it")
	c.Flags().IntVar(&runParallel, "parallel", 0, "Maximum platforms tested at once (0 = all)")
	c.Flags().DurationVar(&runTimeout, "timeout", 0, "Overall timeout for the whole run (0 = none)")
	c.Flags().StringVar(&runWorkDir, "work-dir", "", "Directory for platform workspaces (default: temporary)")
	c.Flags().BoolVar(&runKeepWorkspace, "keep-workspace", false, "Do not remove workspaces after the run")
	c.Flags().StringVar(&runCacheDir, "cache-dir", "", "Directory caching downloaded portable archives")
	c.Flags().StringVar(&runReportPath, "report", "", "Write a JSON result report to this path")
	c.Flags().StringVar(&runMetricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format to this path")

	_ = c.RegisterFlagCompletionFunc("platform", completePlatformFlag)

	c.PreRunE = func(cmd *cobra.Command, args []string) error {
		if runParallel < 0 {
			return fmt.Errorf("--parallel must not be negative, got %d", runParallel)
		}
		return nil
	}
}

func runTests(cmd *cobra.Command, verifyOnly bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if verifyOnly {
		cfg = cfg.WithoutWorkflow()
	}

	platforms, err := selectPlatforms(cfg, runPlatforms, runDryRun, platform.RunsOnHost)
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	var recorder *metrics.Recorder
	if runMetricsFile != "" {
		recorder = metrics.NewRecorder()
	}

	orch := orchestrator.New(orchestrator.Options{
		Platform: platform.Options{
			WorkDir:       runWorkDir,
			KeepWorkspace: runKeepWorkspace,
			CacheDir:      runCacheDir,
		},
		Reporter: reporting.NewConsoleReporter(),
		Parallel: runParallel,
		Metrics:  recorder,
	})

	result := orch.Run(ctx, cfg, platforms, runDryRun)
	summary := result.Summary()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	reporting.RenderSummary(out, summary, reporting.SummaryOptions{Width: color.Width(out, 0)})

	if runReportPath != "" {
		if err := reporting.WriteJSON(runReportPath, summary); err != nil {
			logging.Error("CLI", err, "Failed to write report")
		} else {
			logging.Info("CLI", "Wrote report to %s", runReportPath)
		}
	}
	if recorder != nil {
		if err := recorder.WriteTextfile(runMetricsFile); err != nil {
			logging.Error("CLI", err, "Failed to write metrics")
		}
	}

	if !result.OK() {
		failed := 0
		for _, r := range result.Runs {
			if !r.Succeeded() {
				failed++
			}
		}
		return fmt.Errorf("%w: %d of %d platforms failed", errRunFailed, failed, len(result.Runs))
	}
	return nil
}

// selectPlatforms resolves the platforms to run. Requested names must be
// valid; without a request the enabled platforms are used, narrowed to those
// runnable on this host unless dryRun is set.
func selectPlatforms(cfg config.TestConfig, requested []string, dryRun bool, runnable func(config.PlatformName) bool) ([]config.PlatformName, error) {
	if len(requested) > 0 {
		seen := map[config.PlatformName]bool{}
		var out []config.PlatformName
		for _, name := range requested {
			p, err := config.ParsePlatform(name)
			if err != nil {
				return nil, err
			}
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
		return out, nil
	}

	enabled := cfg.EnabledPlatforms()
	if len(enabled) == 0 {
		return nil, errors.New("no platforms are enabled in the configuration")
	}
	if dryRun {
		return enabled, nil
	}

	var out []config.PlatformName
	for _, p := range enabled {
		if runnable(p) {
			out = append(out, p)
		} else {
			logging.Info("CLI", "Skipping %s: it cannot run on this host", p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("none of the enabled platforms (%v) can run on this host; use --platform or --dry-run", enabled)
	}
	return out, nil
}
