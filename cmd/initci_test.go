package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestWriteCIWorkflow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCIWorkflow(&buf, ciWorkflow{Repository: githubRepoSlug, ConfigFile: "comfy-test.toml"}))

	var doc struct {
		Name string                    `yaml:"name"`
		On   map[string]any            `yaml:"on"`
		Jobs map[string]map[string]any `yaml:"jobs"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "Test Installation", doc.Name)
	assert.Contains(t, doc.On, "pull_request")
	assert.Equal(t, "PozzettiAndrea/comfy-test/.github/workflows/test-matrix.yml@main", doc.Jobs["test"]["uses"])
	assert.Equal(t, map[string]any{"config-file": "comfy-test.toml"}, doc.Jobs["test"]["with"])
}

func TestRunInitCI(t *testing.T) {
	ext := t.TempDir()
	useExtensionDir(t, ext)
	writeExtensionFile(t, ext, "comfy-test.toml", "[test]\nname = \"Blur\"\n")

	origOutput, origForce := initCIOutput, initCIForce
	t.Cleanup(func() { initCIOutput, initCIForce = origOutput, origForce })
	initCIOutput, initCIForce = defaultWorkflowPath, false

	var buf bytes.Buffer
	initCICmd.SetOut(&buf)
	t.Cleanup(func() { initCICmd.SetOut(nil) })

	require.NoError(t, runInitCI(initCICmd, nil))
	path := filepath.Join(ext, defaultWorkflowPath)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `config-file: "comfy-test.toml"`)
	assert.Contains(t, buf.String(), "Generated GitHub Actions workflow: "+path)

	err = runInitCI(initCICmd, nil)
	assert.ErrorContains(t, err, "already exists")

	initCIForce = true
	assert.NoError(t, runInitCI(initCICmd, nil))
}

func TestRunInitCI_DefaultConfigName(t *testing.T) {
	ext := t.TempDir()
	useExtensionDir(t, ext)

	origOutput := initCIOutput
	t.Cleanup(func() { initCIOutput = origOutput })
	initCIOutput = "ci.yml"

	initCICmd.SetOut(&bytes.Buffer{})
	t.Cleanup(func() { initCICmd.SetOut(nil) })

	require.NoError(t, runInitCI(initCICmd, nil))
	data, err := os.ReadFile(filepath.Join(ext, "ci.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `config-file: "comfy-test.yaml"`)
}
