package cmd

import (
	"github.com/spf13/cobra"

	"comfy-test/internal/agent"
)

var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Serve comfy-test as MCP tools over stdio",
	Long: `Mcp-server exposes info, run, verify and the last result as MCP tools on
stdin and stdout, for use from AI assistants such as Claude or Cursor.

Logs go to stderr so they do not interfere with the protocol. Configure it in
your assistant's MCP settings, for example:

  {"command": "comfy-test", "args": ["mcp-server", "--dir", "/path/to/extension"]}`,
	Args: cobra.NoArgs,
	RunE: runMCPServer,
}

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

func runMCPServer(cmd *cobra.Command, args []string) error {
	srv := agent.NewServer(agent.Options{
		ExtensionDir: rootDir,
		ConfigPath:   rootConfigPath,
		Version:      rootCmd.Version,
	})
	return srv.ServeStdio()
}
