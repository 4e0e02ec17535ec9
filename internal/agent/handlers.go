package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"comfy-test/internal/config"
	"comfy-test/internal/reporting"
)

// infoResult is the comfy_test_info payload.
type infoResult struct {
	Source    string   `json:"source,omitempty"`
	Extension string   `json:"extension"`
	Platforms []string `json:"enabledPlatforms"`
	Verify    bool     `json:"verify"`
	Workflow  string   `json:"workflow,omitempty"`
	// Config is the resolved configuration in the file format.
	Config     string           `json:"config"`
	Dependency []config.NodeReq `json:"dependencyNodes,omitempty"`
	CUDA       []string         `json:"cudaPackages,omitempty"`
}

type runResult struct {
	OK      bool              `json:"ok"`
	Summary reporting.Summary `json:"summary"`
}

func (s *Server) handleInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load configuration: %v", err)), nil
	}

	info := infoResult{
		Source:    cfg.Source,
		Extension: cfg.ExtensionDir,
		Verify:    cfg.VerificationEnabled(),
		Workflow:  cfg.Workflow.File,
	}
	resolved, err := yaml.Marshal(cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format configuration: %v", err)), nil
	}
	info.Config = string(resolved)
	for _, p := range cfg.EnabledPlatforms() {
		info.Platforms = append(info.Platforms, string(p))
	}
	if env, err := config.LoadComfyEnv(cfg.ExtensionDir); err == nil {
		info.Dependency = env.NodeReqs
		info.CUDA = env.CUDAPackages
	}

	return jsonResult(info)
}

func (s *Server) handleRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.run(ctx, request, false)
}

func (s *Server) handleVerify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.run(ctx, request, true)
}

func (s *Server) run(ctx context.Context, request mcp.CallToolRequest, verifyOnly bool) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	cfg, err := s.loadConfig()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load configuration: %v", err)), nil
	}
	if verifyOnly {
		cfg = cfg.WithoutWorkflow()
	}

	platforms, err := platformsArg(args, cfg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	dryRun, _ := args["dry_run"].(bool)

	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.log.Info("tool call: %d platform(s), dry run %t, verify only %t", len(platforms), dryRun, verifyOnly)
	summary := s.opts.Run(ctx, cfg, platforms, dryRun).Summary()

	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()

	return jsonResult(runResult{OK: summary.OK(), Summary: summary})
}

func (s *Server) handleLastResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	if last == nil {
		return mcp.NewToolResultText("No run has completed yet"), nil
	}
	return jsonResult(last)
}

func (s *Server) loadConfig() (config.TestConfig, error) {
	return config.Load(s.opts.ExtensionDir, s.opts.ConfigPath)
}

// platformsArg reads the optional platforms argument, falling back to the
// enabled platforms.
func platformsArg(args map[string]any, cfg config.TestConfig) ([]config.PlatformName, error) {
	raw, ok := args["platforms"]
	if !ok || raw == nil {
		return cfg.EnabledPlatforms(), nil
	}

	var names []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("platforms must be strings, got %T", item)
			}
			names = append(names, name)
		}
	case string:
		names = strings.Split(v, ",")
	default:
		return nil, fmt.Errorf("platforms must be a list of strings")
	}

	var out []config.PlatformName
	for _, name := range names {
		p, err := config.ParsePlatform(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return cfg.EnabledPlatforms(), nil
	}
	return out, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
