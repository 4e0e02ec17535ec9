package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfy-test/internal/config"
	"comfy-test/internal/orchestrator"
)

type recordedRun struct {
	cfg       config.TestConfig
	platforms []config.PlatformName
	dryRun    bool
}

func newTestServer(t *testing.T) (*Server, *[]recordedRun) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	ext := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ext, "comfy-test.yaml"), []byte(`
name: ComfyUI-Blur
expectedNodes: [Blur]
workflow:
  file: smoke.json
windows:
  enabled: false
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ext, "comfy-env.toml"), []byte(`
[node_reqs]
ComfyUI-Helpers = "someone/ComfyUI-Helpers"
`), 0o644))

	var runs []recordedRun
	srv := NewServer(Options{
		ExtensionDir: ext,
		Run: func(ctx context.Context, cfg config.TestConfig, platforms []config.PlatformName, dryRun bool) *orchestrator.Result {
			runs = append(runs, recordedRun{cfg: cfg, platforms: platforms, dryRun: dryRun})
			res := &orchestrator.Result{DryRun: dryRun}
			for _, p := range platforms {
				res.Runs = append(res.Runs, &orchestrator.PlatformRun{
					Platform: p,
					Phase:    orchestrator.PhaseSuccess,
					Outcome:  orchestrator.OutcomeSuccess,
				})
			}
			return res
		},
	})
	return srv, &runs
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestHandleInfo(t *testing.T) {
	srv, _ := newTestServer(t)

	out, isErr := callTool(t, srv.handleInfo, nil)
	require.False(t, isErr, out)

	var info infoResult
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, []string{"linux", "windows-portable"}, info.Platforms)
	assert.True(t, info.Verify)
	assert.Equal(t, "smoke.json", info.Workflow)
	assert.Contains(t, info.Config, "name: ComfyUI-Blur")
	require.Len(t, info.Dependency, 1)
	assert.Equal(t, "ComfyUI-Helpers", info.Dependency[0].Name)
}

func TestHandleRun(t *testing.T) {
	srv, runs := newTestServer(t)

	out, isErr := callTool(t, srv.handleRun, map[string]any{
		"platforms": []any{"linux"},
		"dry_run":   true,
	})
	require.False(t, isErr, out)

	var res runResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.OK)
	assert.True(t, res.Summary.DryRun)

	require.Len(t, *runs, 1)
	got := (*runs)[0]
	assert.Equal(t, []config.PlatformName{config.PlatformLinux}, got.platforms)
	assert.True(t, got.dryRun)
	assert.Equal(t, "smoke.json", got.cfg.Workflow.File)

	last, _ := callTool(t, srv.handleLastResult, nil)
	assert.Contains(t, last, `"platform": "linux"`)
}

func TestHandleVerifyDropsWorkflowAndDefaultsPlatforms(t *testing.T) {
	srv, runs := newTestServer(t)

	_, isErr := callTool(t, srv.handleVerify, nil)
	require.False(t, isErr)

	require.Len(t, *runs, 1)
	got := (*runs)[0]
	assert.Empty(t, got.cfg.Workflow.File)
	assert.False(t, got.dryRun)
	assert.Equal(t, []config.PlatformName{config.PlatformLinux, config.PlatformWindowsPortable}, got.platforms)
}

func TestHandleRun_InvalidPlatform(t *testing.T) {
	srv, runs := newTestServer(t)

	out, isErr := callTool(t, srv.handleRun, map[string]any{"platforms": []any{"macos"}})
	assert.True(t, isErr)
	assert.Contains(t, out, "macos")
	assert.Empty(t, *runs)
}

func TestHandleLastResult_Empty(t *testing.T) {
	srv, _ := newTestServer(t)

	out, isErr := callTool(t, srv.handleLastResult, nil)
	assert.False(t, isErr)
	assert.Equal(t, "No run has completed yet", out)
}

func TestMCPServerRegistersTools(t *testing.T) {
	srv, _ := newTestServer(t)
	names := make([]string, 0)
	for _, entry := range srv.tools() {
		names = append(names, entry.tool.Name)
	}
	assert.Equal(t, []string{"comfy_test_info", "comfy_test_run", "comfy_test_verify", "comfy_test_last_result"}, names)
	assert.NotNil(t, srv.MCPServer())
}
