// Package agent exposes comfy-test to AI assistants as a Model Context
// Protocol server over stdio.
//
// The server offers four tools:
//
//   - comfy_test_info: the resolved configuration and enabled platforms
//   - comfy_test_run: run the full test on one or more platforms
//   - comfy_test_verify: run without workflow execution
//   - comfy_test_last_result: the summary of the previous run
//
// Every tool call loads the configuration afresh, so edits to the
// extension's comfy-test.yaml are picked up without restarting the server.
// Results are returned as JSON text.
//
// Example:
//
//	srv := agent.NewServer(agent.Options{ExtensionDir: "."})
//	if err := srv.ServeStdio(); err != nil {
//	    log.Fatal(err)
//	}
package agent
