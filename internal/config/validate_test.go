package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() TestConfig {
	cfg := GetDefaultConfig()
	cfg.Name = "ext"
	return cfg
}

func TestValidate(t *testing.T) {
	yes := true

	tests := []struct {
		name    string
		mutate  func(*TestConfig)
		wantErr []string
	}{
		{name: "defaults with a name", mutate: func(*TestConfig) {}},
		{
			name:    "empty name",
			mutate:  func(c *TestConfig) { c.Name = " " },
			wantErr: []string{"name must not be empty"},
		},
		{
			name: "no platform",
			mutate: func(c *TestConfig) {
				c.Linux.Enabled = false
				c.Windows.Enabled = false
				c.WindowsPortable.Enabled = false
			},
			wantErr: []string{"at least one platform must be enabled"},
		},
		{
			name:    "verify without expected nodes",
			mutate:  func(c *TestConfig) { c.Verify = &yes },
			wantErr: []string{"verify is enabled but expectedNodes is empty"},
		},
		{
			name:    "duplicate expected node",
			mutate:  func(c *TestConfig) { c.ExpectedNodes = []string{"A", "B", "A"} },
			wantErr: []string{`expectedNodes contains "A" more than once`},
		},
		{
			name: "non-positive timeouts",
			mutate: func(c *TestConfig) {
				c.Timeout = 0
				c.Workflow.Timeout = -1
			},
			wantErr: []string{"timeout must be positive", "workflow.timeout must be positive"},
		},
		{
			name:    "python version",
			mutate:  func(c *TestConfig) { c.PythonVersion = "three" },
			wantErr: []string{`pythonVersion "three"`},
		},
		{
			name:    "portable version",
			mutate:  func(c *TestConfig) { c.WindowsPortable.PortableVersion = "nightly" },
			wantErr: []string{"portableVersion"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidConfig)
			for _, want := range tt.wantErr {
				assert.ErrorContains(t, err, want)
			}
		})
	}
}

func TestVerificationDefault(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.VerificationEnabled())

	cfg.ExpectedNodes = []string{"A"}
	assert.True(t, cfg.VerificationEnabled())

	no := false
	cfg.Verify = &no
	assert.False(t, cfg.VerificationEnabled())
}

func TestClassifyVersion(t *testing.T) {
	assert.Equal(t, VersionLatest, ClassifyVersion("latest"))
	assert.Equal(t, VersionLatest, ClassifyVersion(""))
	assert.Equal(t, VersionTag, ClassifyVersion("v0.3.10"))
	assert.Equal(t, VersionTag, ClassifyVersion("master"))
	assert.Equal(t, VersionCommit, ClassifyVersion("a1b2c3d"))
	assert.Equal(t, VersionCommit, ClassifyVersion("0123456789abcdef0123456789abcdef01234567"))
}
