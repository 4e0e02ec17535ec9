// Package orchestrator drives platform runs through their phases and
// aggregates the results.
//
// # Phases
//
// Every platform run walks the same strictly sequential state machine:
//
//	PENDING → PROVISIONING → INSTALLING → STARTING → VERIFYING → EXECUTING → TEARDOWN → SUCCESS | FAILED
//
// A failing phase short-circuits to TEARDOWN and the run ends FAILED with the
// originating phase, the classified error and the captured output tail
// recorded on the PlatformRun. VERIFYING is skipped when verification is
// disabled and the extension ships no workflows; EXECUTING is skipped when
// no workflow is configured for the platform.
//
// # Teardown
//
// Cleanup is registered on a stack the moment a workspace, a port or a host
// process exists, and the stack is unwound in reverse order during TEARDOWN
// on every exit path, including cancellation of the enclosing context.
// Teardown errors are logged and recorded but never change the outcome.
//
// # Dry runs
//
// A dry run swaps every provider for its dry-run variant and the host API
// for a planning host. It produces the same phase sequence and the same
// reporter updates as a real run without starting processes, writing to the
// filesystem or opening network connections.
//
// # Concurrency
//
// Platform runs are independent and run concurrently, bounded by
// Options.Parallel. One platform failing never cancels another. The only
// state shared between runs is the port allocator and the reporter.
//
// # Usage
//
//	res := orchestrator.New(orchestrator.Options{Reporter: reporting.NewConsoleReporter()}).
//	    Run(ctx, cfg, cfg.EnabledPlatforms(), false)
//	if !res.OK() {
//	    os.Exit(1)
//	}
package orchestrator
