// Package config provides configuration management for comfy-test.
//
// A test configuration describes how an extension is smoke tested: which
// host version to install, which platforms to run on, which components the
// extension must register and which workflow to execute. Configuration is
// loaded from multiple sources and merged in a specific order, with later
// sources overriding earlier ones.
//
// # Configuration Layers
//
//  1. Default Configuration (embedded in binary)
//     - All platforms enabled, CPU mode, python 3.10, latest host
//
//  2. User Configuration (~/.config/comfy-test/config.yaml)
//     - Personal defaults such as the python version or timeouts
//
//  3. Project Configuration, the first of comfy-test.yaml, comfy-test.yml
//     or comfy-test.toml found in the extension directory
//     - Shared with the extension's repository
//
// Only the keys present in a layer override the layer below it.
//
// # Configuration Structure
//
//	name: ComfyUI-MyNodes
//	comfyuiVersion: latest      # "latest", a tag or a commit hash
//	pythonVersion: "3.10"
//	cpuOnly: true
//	timeout: 300                # seconds, or a duration such as 5m
//	expectedNodes:
//	  - MyNode
//	  - MyOtherNode
//	workflow:
//	  file: workflows/smoke.json
//	  timeout: 2m
//	linux:
//	  enabled: true
//	windows:
//	  enabled: false
//	windowsPortable:
//	  enabled: true
//	  skipWorkflow: true
//	  portableVersion: latest
//
// TOML files use a [test] table with snake_case keys (expected_nodes,
// comfyui_version, [test.windows_portable] and so on).
//
// # Environment Variables
//
// ${VAR} and ${VAR:-default_value} are expanded in the raw file before it is
// parsed.
//
// # Validation
//
// Load rejects configurations with an empty name, no enabled platform,
// verify set without expected nodes, duplicate expected nodes, non-positive
// timeouts or a python version that is not numeric-dotted. All violations
// are reported together and wrap ErrInvalidConfig.
//
// # comfy-env.toml
//
// LoadComfyEnv reads the extension's isolated-environment file. GPU-only
// packages listed under an environment's cuda table are mocked in the host,
// and entries in [node_reqs] are cloned as dependency extensions.
package config
