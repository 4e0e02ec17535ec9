package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelfUpdateCmd(t *testing.T) {
	c := newSelfUpdateCmd()

	assert.Equal(t, "self-update", c.Use)
	assert.NotEmpty(t, c.Short)
	assert.NotEmpty(t, c.Long)
	assert.NotNil(t, c.RunE)
}

func TestRunSelfUpdate_RefusesDevelopmentBuilds(t *testing.T) {
	originalVersion := rootCmd.Version
	t.Cleanup(func() { rootCmd.Version = originalVersion })

	for _, version := range []string{"", "dev", "vdev"} {
		t.Run("version="+version, func(t *testing.T) {
			rootCmd.Version = version
			err := runSelfUpdate(nil, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "cannot self-update a development version")
		})
	}
}

func TestSelfUpdateCommandHelp(t *testing.T) {
	c := newSelfUpdateCmd()
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetErr(&buf)
	c.SetArgs([]string{"--help"})

	require.NoError(t, c.Execute())
	assert.Contains(t, buf.String(), "Checks for the latest release")
	assert.Contains(t, buf.String(), "self-update")
}

func TestSelfUpdateRejectsArguments(t *testing.T) {
	c := newSelfUpdateCmd()
	c.SetOut(&bytes.Buffer{})
	c.SetErr(&bytes.Buffer{})
	c.SetArgs([]string{"v1.0.0"})

	assert.Error(t, c.Execute())
}

func TestGithubRepoSlug(t *testing.T) {
	assert.Equal(t, "PozzettiAndrea/comfy-test", githubRepoSlug)
}
