package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PlatformName identifies a target platform.
type PlatformName string

const (
	PlatformLinux           PlatformName = "linux"
	PlatformWindows         PlatformName = "windows"
	PlatformWindowsPortable PlatformName = "windows-portable"
)

// AllPlatforms lists the supported platforms in their canonical order.
var AllPlatforms = []PlatformName{PlatformLinux, PlatformWindows, PlatformWindowsPortable}

// ParsePlatform accepts the canonical names and the underscore spelling of
// windows-portable.
func ParsePlatform(s string) (PlatformName, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-")) {
	case "linux":
		return PlatformLinux, nil
	case "windows":
		return PlatformWindows, nil
	case "windows-portable":
		return PlatformWindowsPortable, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: linux, windows, windows-portable)", ErrUnknownPlatform, s)
	}
}

// TestConfig is the declarative description of an extension's smoke test.
// It is immutable once loaded.
type TestConfig struct {
	Name           string `yaml:"name"`
	ComfyUIVersion string `yaml:"comfyuiVersion"`
	PythonVersion  string `yaml:"pythonVersion"`
	CPUOnly        bool   `yaml:"cpuOnly"`
	// Timeout bounds each setup phase.
	Timeout Duration `yaml:"timeout"`

	ExpectedNodes []string `yaml:"expectedNodes"`
	// Verify defaults to true when ExpectedNodes is non-empty.
	Verify *bool `yaml:"verify,omitempty"`

	Workflow WorkflowConfig `yaml:"workflow"`

	Linux           PlatformConfig `yaml:"linux"`
	Windows         PlatformConfig `yaml:"windows"`
	WindowsPortable PlatformConfig `yaml:"windowsPortable"`

	// ExtensionDir is the extension under test, the directory the
	// configuration file was found in.
	ExtensionDir string `yaml:"-"`
	// Source is the configuration file path, empty for defaults only.
	Source string `yaml:"-"`
}

// WorkflowConfig is the optional end-to-end job.
type WorkflowConfig struct {
	// File is relative to the extension directory.
	File    string   `yaml:"file,omitempty"`
	Timeout Duration `yaml:"timeout"`
}

// PlatformConfig toggles behavior per platform.
type PlatformConfig struct {
	Enabled      bool `yaml:"enabled"`
	SkipWorkflow bool `yaml:"skipWorkflow"`
	// PortableVersion selects the portable release; windows-portable only.
	PortableVersion string `yaml:"portableVersion,omitempty"`
}

// VerificationEnabled resolves the verify default.
func (c TestConfig) VerificationEnabled() bool {
	if c.Verify != nil {
		return *c.Verify
	}
	return len(c.ExpectedNodes) > 0
}

// Platform returns the block for name.
func (c TestConfig) Platform(name PlatformName) PlatformConfig {
	switch name {
	case PlatformLinux:
		return c.Linux
	case PlatformWindows:
		return c.Windows
	case PlatformWindowsPortable:
		return c.WindowsPortable
	default:
		return PlatformConfig{}
	}
}

// EnabledPlatforms lists enabled platforms in canonical order.
func (c TestConfig) EnabledPlatforms() []PlatformName {
	var out []PlatformName
	for _, p := range AllPlatforms {
		if c.Platform(p).Enabled {
			out = append(out, p)
		}
	}
	return out
}

// RunsWorkflow reports whether the EXECUTING phase has work on platform.
func (c TestConfig) RunsWorkflow(name PlatformName) bool {
	return c.Workflow.File != "" && !c.Platform(name).SkipWorkflow
}

// WithoutWorkflow returns a copy with workflow execution disabled.
func (c TestConfig) WithoutWorkflow() TestConfig {
	c.Workflow.File = ""
	return c
}

// PythonShort returns the version without dots, e.g. "310" for "3.10".
func (c TestConfig) PythonShort() string {
	return strings.ReplaceAll(c.PythonVersion, ".", "")
}

// Duration accepts either a number of seconds or a Go duration string.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := parseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func parseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: use seconds or a duration like 90s", s)
	}
	return Duration(d), nil
}

// durationFromAny converts a TOML value to a Duration.
func durationFromAny(v any) (Duration, error) {
	switch t := v.(type) {
	case int64:
		return Duration(time.Duration(t) * time.Second), nil
	case float64:
		return Duration(t * float64(time.Second)), nil
	case string:
		return parseDuration(t)
	default:
		return 0, fmt.Errorf("invalid duration %v", v)
	}
}
