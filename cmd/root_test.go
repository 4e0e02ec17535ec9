package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestSetVersion(t *testing.T) {
	testVersion := "1.2.3-test"
	SetVersion(testVersion)

	if rootCmd.Version != testVersion {
		t.Errorf("Expected version to be %s, got %s", testVersion, rootCmd.Version)
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "comfy-test" {
		t.Errorf("Expected Use to be 'comfy-test', got %s", rootCmd.Use)
	}

	if rootCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}

	if rootCmd.Long == "" {
		t.Error("Expected Long description to be set")
	}

	if !rootCmd.SilenceUsage {
		t.Error("Expected SilenceUsage to be true")
	}
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}

	// Set the same version template as in Execute()
	testCmd.SetVersionTemplate(`{{printf "comfy-test version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)

	testCmd.SetArgs([]string{"--version"})
	err := testCmd.Execute()
	if err != nil {
		t.Fatalf("Error executing version command: %v", err)
	}

	output := buf.String()
	expected := "comfy-test version 1.0.0\n"
	if output != expected {
		t.Errorf("Expected version output %q, got %q", expected, output)
	}
}

func TestSubcommands(t *testing.T) {
	commands := rootCmd.Commands()

	expectedCommands := []string{
		"version", "self-update", "run", "verify", "info",
		"init-ci", "download-portable", "mcp-server",
	}
	foundCommands := make(map[string]bool)

	for _, cmd := range commands {
		foundCommands[cmd.Name()] = true
	}

	for _, expected := range expectedCommands {
		if !foundCommands[expected] {
			t.Errorf("Expected subcommand %s to be registered", expected)
		}
	}
}

func TestPersistentFlags(t *testing.T) {
	for _, name := range []string{"debug", "log-format", "config", "dir"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Expected persistent flag --%s", name)
		}
	}
	if f := rootCmd.PersistentFlags().ShorthandLookup("c"); f == nil || f.Name != "config" {
		t.Error("Expected -c to be the shorthand of --config")
	}
}

func TestSetupLoggingRejectsUnknownFormat(t *testing.T) {
	original := rootLogFormat
	defer func() { rootLogFormat = original }()

	rootLogFormat = "xml"
	err := setupLogging(rootCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "invalid --log-format") {
		t.Errorf("Expected invalid format error, got %v", err)
	}
}

func TestRootCommandHelp(t *testing.T) {
	var buf bytes.Buffer

	testRootCmd := &cobra.Command{
		Use:          rootCmd.Use,
		Short:        rootCmd.Short,
		Long:         rootCmd.Long,
		SilenceUsage: true,
	}

	testRootCmd.SetOut(&buf)
	testRootCmd.SetArgs([]string{"--help"})

	err := testRootCmd.Execute()
	if err != nil {
		t.Fatalf("Error executing help command: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "comfy-test") {
		t.Errorf("Help output should contain 'comfy-test'. Got: %q", output)
	}

	if !strings.Contains(output, "custom node extension") {
		t.Errorf("Help output should contain the long description. Got: %q", output)
	}
}
