package orchestrator

import (
	"context"
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"

	"comfy-test/internal/api"
	"comfy-test/internal/config"
	"comfy-test/internal/platform"
	"comfy-test/internal/process"
)

// fakeProvider records calls and fails where configured.
type fakeProvider struct {
	name config.PlatformName

	// Hooks replace the default behavior of an operation when set.
	provision func(ctx context.Context) error
	install   func(ctx context.Context) error
	start     func(ctx context.Context) error

	cleanupErr error

	mu    sync.Mutex
	calls []string
	stops int
}

func (p *fakeProvider) called(op string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, op)
}

func (p *fakeProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakeProvider) Name() config.PlatformName { return p.name }

func (p *fakeProvider) Provision(ctx context.Context, cfg config.TestConfig) (*platform.Workspace, error) {
	p.called("provision")
	ws := &platform.Workspace{Platform: p.name, Root: "/fake/" + string(p.name)}
	if p.provision != nil {
		return ws, p.provision(ctx)
	}
	return ws, nil
}

func (p *fakeProvider) InstallExtension(ctx context.Context, ws *platform.Workspace, extensionDir string) error {
	p.called("install")
	if p.install != nil {
		return p.install(ctx)
	}
	return nil
}

func (p *fakeProvider) Start(ctx context.Context, ws *platform.Workspace, opts platform.StartOptions) (*process.Handle, error) {
	p.called("start")
	h := process.Detached(opts.Port, nil)
	if p.start != nil {
		return h, p.start(ctx)
	}
	return h, nil
}

func (p *fakeProvider) Stop(h *process.Handle) {
	p.called("stop")
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
	h.Terminate()
}

func (p *fakeProvider) Cleanup(ws *platform.Workspace) error {
	p.called("cleanup")
	return p.cleanupErr
}

// fakeHost is a host that registered components and runs jobs into a fixed
// state.
type fakeHost struct {
	components sets.Set[string]
	listErr    error
	info       api.ObjectInfo
	jobState   api.JobState

	mu      sync.Mutex
	lists   int
	submits int
	cancels int
	frees   int
}

func (h *fakeHost) ListRegisteredComponents(ctx context.Context) (sets.Set[string], error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lists++
	return h.components, h.listErr
}

func (h *fakeHost) ObjectInfo(ctx context.Context) (api.ObjectInfo, error) {
	return h.info, nil
}

func (h *fakeHost) SubmitJob(ctx context.Context, prompt api.Prompt) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.submits++
	return "job-1", nil
}

func (h *fakeHost) GetJobStatus(ctx context.Context, promptID string) (api.JobStatus, error) {
	return api.JobStatus{State: h.jobState}, nil
}

func (h *fakeHost) CancelJob(ctx context.Context, promptID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancels++
	return nil
}

func (h *fakeHost) FreeMemory(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frees++
	return nil
}
