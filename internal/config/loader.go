package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osLookupEnv = os.LookupEnv

const (
	userConfigDir  = ".config/comfy-test"
	configFileName = "config.yaml"
)

// ConfigFileNames are searched in order in the extension directory.
var ConfigFileNames = []string{"comfy-test.yaml", "comfy-test.yml", "comfy-test.toml"}

// Load builds the configuration for the extension in extensionDir by layering
// the defaults, the user configuration and the project file. When path is
// empty the project file is discovered in extensionDir. The result is
// validated.
func Load(extensionDir, path string) (TestConfig, error) {
	if extensionDir == "" {
		if path != "" {
			extensionDir = filepath.Dir(path)
		} else {
			extensionDir = "."
		}
	}
	absDir, err := filepath.Abs(extensionDir)
	if err != nil {
		return TestConfig{}, fmt.Errorf("failed to resolve extension directory %s: %w", extensionDir, err)
	}

	if path == "" {
		path, err = Discover(absDir)
		if err != nil {
			return TestConfig{}, err
		}
	}

	// 1. Defaults
	config := GetDefaultConfig()

	// 2. User configuration, optional
	userConfigPath, err := getUserConfigPath()
	if err == nil {
		if _, statErr := os.Stat(userConfigPath); statErr == nil {
			if err := applyFile(&config, userConfigPath); err != nil {
				return TestConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
		}
	}

	// 3. Project configuration
	if err := applyFile(&config, path); err != nil {
		return TestConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}

	config.ExtensionDir = absDir
	config.Source = path

	if err := config.Validate(); err != nil {
		return TestConfig{}, err
	}
	return config, nil
}

// Discover returns the first configuration file present in dir.
func Discover(dir string) (string, error) {
	for _, name := range ConfigFileNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w in %s (looked for %s)", ErrConfigNotFound, dir, strings.Join(ConfigFileNames, ", "))
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// applyFile overlays the keys present in the file onto config.
func applyFile(config *TestConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data = expandEnv(data)

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return applyTOML(config, data)
	}
	return applyYAML(config, data)
}

func applyYAML(config *TestConfig, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type tomlFile struct {
	Test tomlTest `toml:"test"`
}

type tomlTest struct {
	Name            *string       `toml:"name"`
	ComfyUIVersion  *string       `toml:"comfyui_version"`
	PythonVersion   *string       `toml:"python_version"`
	CPUOnly         *bool         `toml:"cpu_only"`
	Timeout         any           `toml:"timeout"`
	ExpectedNodes   []string      `toml:"expected_nodes"`
	Verify          *bool         `toml:"verify"`
	Workflow        *tomlWorkflow `toml:"workflow"`
	Linux           *tomlPlatform `toml:"linux"`
	Windows         *tomlPlatform `toml:"windows"`
	WindowsPortable *tomlPlatform `toml:"windows_portable"`
}

type tomlWorkflow struct {
	File    *string `toml:"file"`
	Timeout any     `toml:"timeout"`
}

type tomlPlatform struct {
	Enabled                *bool   `toml:"enabled"`
	SkipWorkflow           *bool   `toml:"skip_workflow"`
	PortableVersion        *string `toml:"portable_version"`
	ComfyUIPortableVersion *string `toml:"comfyui_portable_version"`
}

// applyTOML reads the [test] table with snake_case keys.
func applyTOML(config *TestConfig, data []byte) error {
	var file tomlFile
	if err := toml.Unmarshal(data, &file); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("line %d, column %d: %w", row, col, err)
		}
		return err
	}
	t := file.Test

	setString(&config.Name, t.Name)
	setString(&config.ComfyUIVersion, t.ComfyUIVersion)
	setString(&config.PythonVersion, t.PythonVersion)
	if t.CPUOnly != nil {
		config.CPUOnly = *t.CPUOnly
	}
	if t.Timeout != nil {
		d, err := durationFromAny(t.Timeout)
		if err != nil {
			return fmt.Errorf("test.timeout: %w", err)
		}
		config.Timeout = d
	}
	if t.ExpectedNodes != nil {
		config.ExpectedNodes = t.ExpectedNodes
	}
	if t.Verify != nil {
		v := *t.Verify
		config.Verify = &v
	}
	if t.Workflow != nil {
		setString(&config.Workflow.File, t.Workflow.File)
		if t.Workflow.Timeout != nil {
			d, err := durationFromAny(t.Workflow.Timeout)
			if err != nil {
				return fmt.Errorf("test.workflow.timeout: %w", err)
			}
			config.Workflow.Timeout = d
		}
	}
	t.Linux.applyTo(&config.Linux)
	t.Windows.applyTo(&config.Windows)
	t.WindowsPortable.applyTo(&config.WindowsPortable)
	return nil
}

func (p *tomlPlatform) applyTo(dst *PlatformConfig) {
	if p == nil {
		return
	}
	if p.Enabled != nil {
		dst.Enabled = *p.Enabled
	}
	if p.SkipWorkflow != nil {
		dst.SkipWorkflow = *p.SkipWorkflow
	}
	setString(&dst.PortableVersion, p.ComfyUIPortableVersion)
	setString(&dst.PortableVersion, p.PortableVersion)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnv replaces ${VAR} and ${VAR:-default}. Unset variables without a
// default expand to the empty string.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := envPattern.FindSubmatch(match)
		if value, ok := osLookupEnv(string(groups[1])); ok && value != "" {
			return []byte(value)
		}
		if len(groups[2]) > 0 {
			return groups[3]
		}
		return nil
	})
}

// WorkflowPath resolves the workflow file against the extension directory.
// It returns "" when no workflow is configured.
func (c TestConfig) WorkflowPath() string {
	if c.Workflow.File == "" {
		return ""
	}
	if filepath.IsAbs(c.Workflow.File) {
		return c.Workflow.File
	}
	return filepath.Join(c.ExtensionDir, filepath.FromSlash(c.Workflow.File))
}
