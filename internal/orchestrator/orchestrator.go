package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"comfy-test/internal/api"
	"comfy-test/internal/config"
	"comfy-test/internal/metrics"
	"comfy-test/internal/platform"
	"comfy-test/internal/process"
	"comfy-test/internal/reporting"
	"comfy-test/internal/testerror"
	"comfy-test/internal/verify"
	"comfy-test/internal/workflow"
	"comfy-test/pkg/logging"
)

const (
	teardownTimeout   = 2 * time.Minute
	freeMemoryTimeout = 10 * time.Second
)

// ProviderFactory creates the provider for one platform.
type ProviderFactory func(name config.PlatformName, opts platform.Options) (platform.Provider, error)

// Options configure an Orchestrator. The zero value runs real providers
// against real hosts.
type Options struct {
	// Providers defaults to platform.New.
	Providers ProviderFactory
	// DryRunProviders defaults to platform.NewDryRun.
	DryRunProviders ProviderFactory
	// Platform is passed to every provider.
	Platform platform.Options
	// Hosts defaults to an API client for the port.
	Hosts HostFactory

	Reporter reporting.Reporter
	// Parallel bounds concurrent platform runs; 0 runs all at once.
	Parallel int
	Ports    *process.PortAllocator

	Clock         clock.Clock
	PollInterval  time.Duration
	ReadyInterval time.Duration

	// Metrics may be nil.
	Metrics *metrics.Recorder
}

// Orchestrator runs platform runs. It holds no per-run state and may be
// reused.
type Orchestrator struct {
	opts Options
	log  *logging.Logger
}

func New(opts Options) *Orchestrator {
	if opts.Providers == nil {
		opts.Providers = platform.New
	}
	if opts.DryRunProviders == nil {
		opts.DryRunProviders = platform.NewDryRun
	}
	if opts.Hosts == nil {
		opts.Hosts = defaultHosts
	}
	if opts.Reporter == nil {
		opts.Reporter = reporting.NewConsoleReporter()
	}
	if opts.Ports == nil {
		opts.Ports = process.DefaultPorts
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = workflow.DefaultPollInterval
	}
	if opts.ReadyInterval <= 0 {
		opts.ReadyInterval = platform.DefaultReadyInterval
	}
	return &Orchestrator{opts: opts, log: logging.With("Orchestrator")}
}

// Run drives every platform with default options.
func Run(ctx context.Context, cfg config.TestConfig, platforms []config.PlatformName, dryRun bool) *Result {
	return New(Options{}).Run(ctx, cfg, platforms, dryRun)
}

// Run drives each platform through its phases and waits for all of them.
// It never returns an error: every failure is recorded on its PlatformRun.
func (o *Orchestrator) Run(ctx context.Context, cfg config.TestConfig, platforms []config.PlatformName, dryRun bool) *Result {
	res := &Result{
		DryRun:  dryRun,
		Runs:    make([]*PlatformRun, len(platforms)),
		Started: o.opts.Clock.Now(),
	}

	limit := o.opts.Parallel
	if limit <= 0 || limit > len(platforms) {
		limit = max(len(platforms), 1)
	}

	mode := "run"
	if dryRun {
		mode = "dry run"
	}
	o.log.Info("starting %s of %s on %d platform(s), %d at a time", mode, cfg.Name, len(platforms), limit)

	// Not errgroup.WithContext: one failing platform must not cancel others.
	var g errgroup.Group
	g.SetLimit(limit)
	for i, name := range platforms {
		g.Go(func() error {
			res.Runs[i] = o.runPlatform(ctx, cfg, name, dryRun)
			return nil
		})
	}
	_ = g.Wait()

	res.Ended = o.opts.Clock.Now()

	passed := 0
	for _, run := range res.Runs {
		if run.Succeeded() {
			passed++
		}
	}
	o.log.Info("%d/%d platform(s) passed in %s", passed, len(platforms), res.Ended.Sub(res.Started).Round(time.Millisecond))
	return res
}

// platformRun is the mutable state of one run while it executes.
type platformRun struct {
	o      *Orchestrator
	cfg    config.TestConfig
	run    *PlatformRun
	log    *logging.Logger
	dryRun bool

	provider    platform.Provider
	providerErr error
	host        Host
	workflows   []string

	ws      *platform.Workspace
	handle  *process.Handle
	cleanup cleanupStack
}

func (o *Orchestrator) runPlatform(ctx context.Context, cfg config.TestConfig, name config.PlatformName, dryRun bool) *PlatformRun {
	id := uuid.NewString()
	r := &platformRun{
		o:      o,
		cfg:    cfg,
		dryRun: dryRun,
		log:    logging.With("Orchestrator", "platform", string(name), "run", id[:8]),
		run: &PlatformRun{
			RunID:    id,
			Platform: name,
			DryRun:   dryRun,
			Phase:    PhasePending,
			Started:  o.opts.Clock.Now(),
		},
	}

	popts := o.opts.Platform
	popts.Logger = logging.With("Platform", "platform", string(name), "run", id[:8])
	if popts.Clock == nil {
		popts.Clock = o.opts.Clock
	}
	factory := o.opts.Providers
	if dryRun {
		factory = o.opts.DryRunProviders
	}
	r.provider, r.providerErr = factory(name, popts)

	workflows, err := workflow.Discover(cfg.ExtensionDir)
	if err != nil {
		r.log.Warn("cannot list %s: %v", workflow.WorkflowsDir, err)
	}
	r.workflows = workflows

	defer r.finish()
	r.execute(ctx)
	return r.run
}

// execute runs the working phases until one fails.
func (r *platformRun) execute(ctx context.Context) {
	setup := r.cfg.Timeout.Std()

	if !r.step(ctx, PhaseProvisioning, setup, testerror.KindProvision, r.provision) {
		return
	}
	if !r.step(ctx, PhaseInstalling, setup, testerror.KindInstall, r.install) {
		return
	}
	if !r.step(ctx, PhaseStarting, setup, testerror.KindStartup, r.start) {
		return
	}

	if !r.cfg.VerificationEnabled() && len(r.workflows) == 0 {
		r.skip(PhaseVerifying, "verification disabled and no workflows to validate")
	} else if !r.step(ctx, PhaseVerifying, setup, testerror.KindStartup, r.verify) {
		return
	}

	switch {
	case r.cfg.Workflow.File == "":
		r.skip(PhaseExecuting, "no workflow configured")
	case !r.cfg.RunsWorkflow(r.run.Platform):
		r.skip(PhaseExecuting, "workflow disabled for "+string(r.run.Platform))
	default:
		// The executor enforces the workflow timeout itself.
		r.step(ctx, PhaseExecuting, 0, testerror.KindExecution, r.executeWorkflow)
	}
}

func (r *platformRun) provision(ctx context.Context) error {
	if r.providerErr != nil {
		return testerror.Provision(r.providerErr, "no provider for %s", r.run.Platform)
	}
	ws, err := r.provider.Provision(ctx, r.cfg)
	if ws != nil {
		r.ws = ws
		r.cleanup.push("workspace", func() error { return r.provider.Cleanup(ws) })
	}
	if err == nil && ws == nil {
		return testerror.Provision(nil, "provider returned no workspace")
	}
	return err
}

func (r *platformRun) install(ctx context.Context) error {
	return r.provider.InstallExtension(ctx, r.ws, r.cfg.ExtensionDir)
}

func (r *platformRun) start(ctx context.Context) error {
	port := process.DefaultBasePort
	if !r.dryRun {
		var err error
		port, err = r.o.opts.Ports.Allocate()
		if err != nil {
			return testerror.Startup(err, "", "no free port for the host")
		}
		ports := r.o.opts.Ports
		r.cleanup.push("port", func() error {
			ports.Release(port)
			return nil
		})
	}

	h, err := r.provider.Start(ctx, r.ws, platform.StartOptions{
		Port:          port,
		CPUOnly:       r.cfg.CPUOnly,
		ReadyTimeout:  r.cfg.Timeout.Std(),
		ReadyInterval: r.o.opts.ReadyInterval,
	})
	if h != nil {
		r.handle = h
		r.cleanup.push("host process", func() error {
			r.provider.Stop(h)
			return nil
		})
	}
	if err != nil {
		return err
	}

	if r.dryRun {
		r.host = newPlanningHost(r.cfg.ExpectedNodes, r.log.Subsystem("Host"))
	} else {
		r.host = r.o.opts.Hosts(port)
	}
	return nil
}

func (r *platformRun) verify(ctx context.Context) error {
	if r.cfg.VerificationEnabled() {
		actual, err := r.host.ListRegisteredComponents(ctx)
		if err != nil {
			return hostError(err, "failed to list registered components")
		}
		res := verify.Verify(r.cfg.ExpectedNodes, actual)
		if !res.OK() {
			r.run.Missing = res.Missing
			return testerror.Verification(res.Missing)
		}
		r.log.Info("all %d expected components are registered", len(res.Expected))
	}

	if len(r.workflows) == 0 {
		return nil
	}
	if r.dryRun {
		r.log.Info("would validate %d workflow(s) against the host's node schemas", len(r.workflows))
		return nil
	}

	docs, err := workflow.LoadAll(r.cfg.ExtensionDir)
	if err != nil {
		return testerror.WorkflowInvalid([]string{err.Error()}, "failed to read workflows")
	}
	info, err := r.host.ObjectInfo(ctx)
	if err != nil {
		return hostError(err, "failed to fetch node schemas")
	}

	validator := workflow.NewValidator(info)
	var problems []string
	for _, doc := range docs {
		rel, err := filepath.Rel(r.cfg.ExtensionDir, doc.Path)
		if err != nil {
			rel = doc.Path
		}
		for _, p := range validator.Validate(doc) {
			problems = append(problems, rel+": "+p.String())
		}
	}
	if len(problems) > 0 {
		r.run.Problems = problems
		return testerror.WorkflowInvalid(problems, "%d problem(s) in %d workflow(s)", len(problems), len(docs))
	}
	r.log.Info("validated %d workflow(s)", len(docs))
	return nil
}

func (r *platformRun) executeWorkflow(ctx context.Context) error {
	path := r.cfg.WorkflowPath()
	prompt, err := workflow.LoadPrompt(path)
	if err != nil {
		return testerror.WorkflowInvalid([]string{err.Error()}, "cannot load %s", r.cfg.Workflow.File)
	}

	executor := workflow.NewExecutor(r.host,
		workflow.WithPollInterval(r.o.opts.PollInterval),
		workflow.WithClock(r.o.opts.Clock),
		workflow.WithLogger(r.log.Subsystem("Workflow")),
	)
	job, err := executor.Execute(ctx, prompt, r.cfg.Workflow.Timeout.Std())
	r.run.Job = &job
	r.o.opts.Metrics.ObserveJob(string(r.run.Platform), string(job.Outcome), job.Polls)
	if err != nil {
		return err
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), freeMemoryTimeout)
	defer cancel()
	if err := r.host.FreeMemory(fctx); err != nil {
		r.log.Debug("freeing host memory failed: %v", err)
	}
	return nil
}

// hostError marks connection failures as ApiUnreachable. A host that answers
// with an error status or garbage is up but broken, which is a StartupError.
func hostError(err error, msg string) error {
	if errors.Is(err, api.ErrUnreachable) {
		return testerror.APIUnreachable(err, "%s", msg)
	}
	var se *api.StatusError
	if errors.As(err, &se) {
		return testerror.Startup(err, se.Body, "%s: host answered HTTP %d", msg, se.StatusCode)
	}
	if errors.Is(err, api.ErrMalformedResponse) {
		return testerror.Startup(err, "", "%s", msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// step runs one phase under its own deadline and reports whether it
// succeeded.
func (r *platformRun) step(ctx context.Context, phase Phase, timeout time.Duration, fallback testerror.Kind, fn func(context.Context) error) bool {
	rec := r.enter(phase)

	pctx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		pctx, cancel = context.WithTimeout(ctx, timeout)
	}
	err := ctx.Err()
	if err == nil {
		err = fn(pctx)
	}
	// Providers wrap a subprocess killed by the deadline in their own kind.
	// Only the phase deadline, not the caller's, makes that a timeout.
	expired := timeout > 0 && ctx.Err() == nil && errors.Is(pctx.Err(), context.DeadlineExceeded) &&
		errors.Is(err, context.DeadlineExceeded)
	cancel()

	rec.Ended = r.o.opts.Clock.Now()
	if err == nil {
		r.record(rec)
		r.report(phase, reporting.StatusFinished, "", nil)
		r.o.opts.Metrics.ObservePhase(string(r.run.Platform), string(phase), rec.Duration(), false)
		return true
	}

	te := testerror.Classify(err, fallback)
	if expired && te.Kind != testerror.KindSetupTimeout {
		te = testerror.Expired(te, "%s did not finish within %s", phase, timeout)
	}
	rec.Err = te
	r.record(rec)
	r.run.FailedPhase = phase
	r.run.Err = te
	r.run.Outcome = outcomeOf(te.Kind)
	r.report(phase, reporting.StatusFailed, "", te)
	r.o.opts.Metrics.ObservePhase(string(r.run.Platform), string(phase), rec.Duration(), true)
	return false
}

func (r *platformRun) enter(phase Phase) PhaseRecord {
	r.run.Phase = phase
	r.report(phase, reporting.StatusStarted, "", nil)
	return PhaseRecord{Phase: phase, Started: r.o.opts.Clock.Now()}
}

func (r *platformRun) skip(phase Phase, reason string) {
	now := r.o.opts.Clock.Now()
	r.run.Phase = phase
	r.record(PhaseRecord{Phase: phase, Started: now, Ended: now, Skipped: true})
	r.report(phase, reporting.StatusSkipped, reason, nil)
}

func (r *platformRun) record(rec PhaseRecord) {
	r.run.Phases = append(r.run.Phases, rec)
}

func (r *platformRun) report(phase Phase, status reporting.UpdateStatus, msg string, err error) {
	r.o.opts.Reporter.Report(reporting.PhaseUpdate{
		Timestamp: r.o.opts.Clock.Now(),
		Platform:  string(r.run.Platform),
		RunID:     r.run.RunID,
		Phase:     string(phase),
		Status:    status,
		Message:   msg,
		Err:       err,
		DryRun:    r.dryRun,
	})
}

// finish unwinds the cleanup stack and settles the final state. It runs on
// every exit path of runPlatform and ignores cancellation of the run's
// context.
func (r *platformRun) finish() {
	rec := r.enter(PhaseTeardown)
	r.log.Debug("releasing %d resource(s)", r.cleanup.len())

	done := make(chan error, 1)
	go func() { done <- r.cleanup.unwind() }()

	var err error
	select {
	case err = <-done:
	case <-r.o.opts.Clock.After(teardownTimeout):
		err = fmt.Errorf("teardown did not finish within %s", teardownTimeout)
	}

	r.captureOutput()

	rec.Ended = r.o.opts.Clock.Now()
	r.record(rec)
	if err != nil {
		r.run.TeardownErr = err
		r.log.Warn("teardown incomplete: %v", err)
		r.report(PhaseTeardown, reporting.StatusFinished, "incomplete: "+err.Error(), nil)
	} else {
		r.report(PhaseTeardown, reporting.StatusFinished, "", nil)
	}

	final := PhaseSuccess
	if r.run.Err != nil {
		final = PhaseFailed
	} else {
		r.run.Outcome = OutcomeSuccess
	}
	r.run.Phase = final
	r.run.Ended = r.o.opts.Clock.Now()

	if final == PhaseFailed {
		r.report(final, reporting.StatusFinished, fmt.Sprintf("%s in %s", r.run.Outcome, r.run.FailedPhase), nil)
	} else {
		r.report(final, reporting.StatusFinished, "", nil)
	}
	r.o.opts.Metrics.ObserveRun(string(r.run.Platform), string(r.run.Outcome), r.run.Duration(), r.run.Ended)
}

// captureOutput keeps the most specific diagnostic output: the output
// attached to the error, or else the host's output tail.
func (r *platformRun) captureOutput() {
	if r.run.Err != nil && r.run.Err.Output != "" {
		r.run.Output = strings.Split(strings.TrimRight(r.run.Err.Output, "\n"), "\n")
		return
	}
	if r.handle != nil {
		r.run.Output = r.handle.Output()
	}
}
