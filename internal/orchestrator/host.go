package orchestrator

import (
	"context"

	"k8s.io/apimachinery/pkg/util/sets"

	"comfy-test/internal/api"
	"comfy-test/internal/workflow"
	"comfy-test/pkg/logging"
)

// Host is the part of the host API a run uses after STARTING.
type Host interface {
	workflow.JobClient
	ListRegisteredComponents(ctx context.Context) (sets.Set[string], error)
	ObjectInfo(ctx context.Context) (api.ObjectInfo, error)
	FreeMemory(ctx context.Context) error
}

// HostFactory returns a client for the host listening on port.
type HostFactory func(port int) Host

func defaultHosts(port int) Host {
	c := api.ForPort(port)
	logging.Debug("Orchestrator", "host API at %s", c.BaseURL())
	return c
}

const dryRunPromptID = "dry-run"

// planningHost answers like a healthy host that registered every expected
// component and completes every job, and only logs what would be requested.
type planningHost struct {
	expected []string
	log      *logging.Logger
}

func newPlanningHost(expected []string, log *logging.Logger) *planningHost {
	return &planningHost{expected: expected, log: log}
}

func (h *planningHost) ListRegisteredComponents(ctx context.Context) (sets.Set[string], error) {
	h.log.Info("would query /object_info for %d expected components", len(h.expected))
	return sets.New(h.expected...), nil
}

func (h *planningHost) ObjectInfo(ctx context.Context) (api.ObjectInfo, error) {
	h.log.Info("would fetch node schemas from /object_info")
	return api.ObjectInfo{}, nil
}

func (h *planningHost) SubmitJob(ctx context.Context, prompt api.Prompt) (string, error) {
	h.log.Info("would submit a workflow with %d nodes to /prompt", len(prompt))
	return dryRunPromptID, nil
}

func (h *planningHost) GetJobStatus(ctx context.Context, promptID string) (api.JobStatus, error) {
	return api.JobStatus{State: api.JobCompleted}, nil
}

func (h *planningHost) CancelJob(ctx context.Context, promptID string) error {
	h.log.Info("would cancel job %s", promptID)
	return nil
}

func (h *planningHost) FreeMemory(ctx context.Context) error {
	h.log.Info("would free host memory")
	return nil
}
