package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"comfy-test/pkg/logging"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultRetryMax       = 3
	maxErrorBody          = 4096
)

// Client talks to one running host instance.
type Client struct {
	baseURL  string
	http     *retryablehttp.Client
	clientID string
}

// Option configures a Client.
type Option func(*Client)

// WithRetry sets the retry budget for connection errors.
func WithRetry(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.http.RetryMax = retryMax
		c.http.RetryWaitMin = waitMin
		c.http.RetryWaitMax = waitMax
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http.HTTPClient = hc
	}
}

// WithClientID sets the client_id sent with submitted jobs.
func WithClientID(id string) Option {
	return func(c *Client) {
		c.clientID = id
	}
}

// NewClient creates a client for the host listening at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = defaultRetryMax
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient = &http.Client{Timeout: defaultRequestTimeout}
	rc.CheckRetry = retryConnectionErrors
	rc.Logger = logging.Slog().With("subsystem", "APIClient")

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForPort creates a client for a host listening on the loopback interface.
func ForPort(port int, opts ...Option) *Client {
	return NewClient(fmt.Sprintf("http://127.0.0.1:%d", port), opts...)
}

func (c *Client) BaseURL() string { return c.baseURL }

// retryConnectionErrors retries transport failures only. Any HTTP response,
// including 5xx, is returned to the caller as is.
func retryConnectionErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err != nil && resp == nil, nil
}

// Health probes /system_stats once, without retries. A nil error means the
// host is serving requests.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Method: http.MethodGet, Path: "/system_stats", StatusCode: resp.StatusCode}
	}
	return nil
}

// ObjectInfo returns the description of every registered node type.
func (c *Client) ObjectInfo(ctx context.Context) (ObjectInfo, error) {
	var info ObjectInfo
	if err := c.do(ctx, http.MethodGet, "/object_info", nil, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// ListRegisteredComponents returns the names of all registered node types.
func (c *Client) ListRegisteredComponents(ctx context.Context) (sets.Set[string], error) {
	var raw map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/object_info", nil, &raw); err != nil {
		return nil, err
	}
	names := sets.New[string]()
	for name := range raw {
		names.Insert(name)
	}
	return names, nil
}

// SubmitJob queues prompt for execution and returns its prompt ID.
func (c *Client) SubmitJob(ctx context.Context, prompt Prompt) (string, error) {
	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/prompt", submitRequest{Prompt: prompt, ClientID: c.clientID}, &resp); err != nil {
		return "", err
	}
	if resp.PromptID == "" {
		return "", fmt.Errorf("%w: missing prompt_id in /prompt response", ErrMalformedResponse)
	}
	return resp.PromptID, nil
}

// GetJobStatus reports the state of a submitted job. Finished jobs are read
// from the history; otherwise the queue tells queued from running.
func (c *Client) GetJobStatus(ctx context.Context, promptID string) (JobStatus, error) {
	var history map[string]historyEntry
	if err := c.do(ctx, http.MethodGet, "/history/"+url.PathEscape(promptID), nil, &history); err != nil {
		return JobStatus{}, err
	}
	if entry, ok := history[promptID]; ok {
		return statusFromHistory(entry), nil
	}

	running, pending, err := c.queuedIDs(ctx)
	if err != nil {
		return JobStatus{}, err
	}
	switch {
	case running.Has(promptID):
		return JobStatus{State: JobRunning}, nil
	case pending.Has(promptID):
		return JobStatus{State: JobQueued}, nil
	default:
		return JobStatus{State: JobUnknown}, nil
	}
}

func statusFromHistory(entry historyEntry) JobStatus {
	if execErr := executionError(entry.Status.Messages); execErr != nil || entry.Status.StatusStr == "error" {
		if execErr == nil {
			execErr = &ExecutionError{ExceptionType: "ExecutionError", ExceptionMessage: "job finished with status error"}
		}
		return JobStatus{State: JobFailed, Error: execErr}
	}
	if entry.Status.Completed || entry.Status.StatusStr == "success" {
		return JobStatus{State: JobCompleted, Outputs: entry.Outputs}
	}
	return JobStatus{
		State: JobFailed,
		Error: &ExecutionError{ExceptionType: "ExecutionIncomplete", ExceptionMessage: "job recorded in history without completing"},
	}
}

// executionError extracts the payload of an execution_error or
// execution_interrupted message.
func executionError(messages []historyMessage) *ExecutionError {
	for _, msg := range messages {
		if len(msg) != 2 {
			continue
		}
		var event string
		if err := json.Unmarshal(msg[0], &event); err != nil {
			continue
		}
		switch event {
		case "execution_error":
			var e ExecutionError
			if err := json.Unmarshal(msg[1], &e); err != nil {
				return &ExecutionError{ExceptionType: "ExecutionError", ExceptionMessage: string(msg[1])}
			}
			return &e
		case "execution_interrupted":
			var e ExecutionError
			_ = json.Unmarshal(msg[1], &e)
			e.ExceptionType = "Interrupted"
			e.ExceptionMessage = "execution was interrupted"
			return &e
		}
	}
	return nil
}

func (c *Client) queuedIDs(ctx context.Context) (running, pending sets.Set[string], err error) {
	var q queueResponse
	if err := c.do(ctx, http.MethodGet, "/queue", nil, &q); err != nil {
		return nil, nil, err
	}
	return promptIDs(q.Running), promptIDs(q.Pending), nil
}

func promptIDs(items [][]json.RawMessage) sets.Set[string] {
	ids := sets.New[string]()
	for _, item := range items {
		if len(item) < 2 {
			continue
		}
		var id string
		if err := json.Unmarshal(item[1], &id); err == nil {
			ids.Insert(id)
		}
	}
	return ids
}

// CancelJob removes the job from the pending queue and interrupts it when it
// is running. Best effort: all attempted steps run, errors are aggregated.
func (c *Client) CancelJob(ctx context.Context, promptID string) error {
	var errs []error

	if err := c.do(ctx, http.MethodPost, "/queue", map[string][]string{"delete": {promptID}}, nil); err != nil {
		errs = append(errs, fmt.Errorf("delete from queue: %w", err))
	}

	running, _, err := c.queuedIDs(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("read queue: %w", err))
	}
	if err != nil || running.Has(promptID) {
		if err := c.do(ctx, http.MethodPost, "/interrupt", map[string]string{"prompt_id": promptID}, nil); err != nil {
			errs = append(errs, fmt.Errorf("interrupt: %w", err))
		}
	}

	return utilerrors.NewAggregate(errs)
}

// FreeMemory asks the host to unload models and release cached memory.
func (c *Client) FreeMemory(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/free", map[string]bool{"unload_models": true, "free_memory": true}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
	}

	var reqBody any
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body from %s %s", ErrMalformedResponse, method, path)
		}
		return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, method, path, err)
	}
	return nil
}
