package agent

import (
	"context"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"comfy-test/internal/config"
	"comfy-test/internal/orchestrator"
	"comfy-test/internal/reporting"
	"comfy-test/pkg/logging"
)

const serverName = "comfy-test"

// RunFunc runs the orchestrator.
type RunFunc func(ctx context.Context, cfg config.TestConfig, platforms []config.PlatformName, dryRun bool) *orchestrator.Result

// Options configure a Server.
type Options struct {
	ExtensionDir string
	// ConfigPath overrides configuration discovery.
	ConfigPath string
	Version    string
	// Run defaults to orchestrator.Run.
	Run RunFunc
}

// Server handles MCP tool calls.
type Server struct {
	opts Options
	log  *logging.Logger

	// Serializes runs; platforms of one run still execute concurrently.
	runMu sync.Mutex

	mu   sync.Mutex
	last *reporting.Summary
}

func NewServer(opts Options) *Server {
	if opts.ExtensionDir == "" {
		opts.ExtensionDir = "."
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Run == nil {
		opts.Run = orchestrator.Run
	}
	return &Server{opts: opts, log: logging.With("MCPServer")}
}

// MCPServer builds the protocol server with every tool registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(
		serverName,
		s.opts.Version,
		server.WithToolCapabilities(false),
	)
	for _, t := range s.tools() {
		srv.AddTool(t.tool, t.handler)
	}
	return srv
}

// ServeStdio serves on stdin and stdout until stdin closes.
func (s *Server) ServeStdio() error {
	s.log.Info("serving MCP on stdio for %s", s.opts.ExtensionDir)
	return server.ServeStdio(s.MCPServer())
}

type toolEntry struct {
	tool    mcp.Tool
	handler server.ToolHandlerFunc
}

func (s *Server) tools() []toolEntry {
	platformsArg := mcp.WithArray("platforms",
		mcp.Description("Platforms to test: linux, windows, windows-portable. Defaults to the enabled platforms."),
		mcp.Items(map[string]any{"type": "string"}),
	)
	dryRunArg := mcp.WithBoolean("dry_run",
		mcp.Description("Only report what would be done"),
	)

	return []toolEntry{
		{
			tool: mcp.NewTool("comfy_test_info",
				mcp.WithDescription("Show the resolved test configuration of the extension"),
			),
			handler: s.handleInfo,
		},
		{
			tool: mcp.NewTool("comfy_test_run",
				mcp.WithDescription("Install the extension into a fresh host, verify its nodes and run the configured workflow"),
				platformsArg,
				dryRunArg,
			),
			handler: s.handleRun,
		},
		{
			tool: mcp.NewTool("comfy_test_verify",
				mcp.WithDescription("Install the extension and verify its nodes register, without running a workflow"),
				platformsArg,
				dryRunArg,
			),
			handler: s.handleVerify,
		},
		{
			tool: mcp.NewTool("comfy_test_last_result",
				mcp.WithDescription("Get the summary of the previous run or verification"),
			),
			handler: s.handleLastResult,
		},
	}
}
