package config

import "time"

const (
	DefaultComfyUIVersion  = "latest"
	DefaultPythonVersion   = "3.10"
	DefaultPortableVersion = "latest"
	DefaultTimeout         = 300 * time.Second
	DefaultWorkflowTimeout = 120 * time.Second
)

// GetDefaultConfig returns the configuration every file is layered on.
// All platforms are enabled and the host runs on CPU.
func GetDefaultConfig() TestConfig {
	return TestConfig{
		ComfyUIVersion: DefaultComfyUIVersion,
		PythonVersion:  DefaultPythonVersion,
		CPUOnly:        true,
		Timeout:        Duration(DefaultTimeout),
		Workflow: WorkflowConfig{
			Timeout: Duration(DefaultWorkflowTimeout),
		},
		Linux:   PlatformConfig{Enabled: true},
		Windows: PlatformConfig{Enabled: true},
		WindowsPortable: PlatformConfig{
			Enabled:         true,
			PortableVersion: DefaultPortableVersion,
		},
	}
}
