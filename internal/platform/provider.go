// Package platform provisions an isolated host installation on a target
// platform, installs the extension under test into it and runs the host as
// a server process.
//
// Three variants exist: linux and windows clone the host and create a
// virtual environment with uv, windows-portable downloads and extracts the
// portable release. A dry-run variant of each walks the same contract and
// only logs what it would do.
package platform

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"k8s.io/utils/clock"

	"comfy-test/internal/config"
	"comfy-test/internal/process"
	"comfy-test/pkg/logging"
)

const (
	// HostRepository is cloned by the native variants.
	HostRepository = "https://github.com/comfyanonymous/ComfyUI.git"
	// PyTorchCPUIndex serves CPU-only torch wheels.
	PyTorchCPUIndex = "https://download.pytorch.org/whl/cpu"

	// InstallCUDAVersion is exported to install hooks on Windows so that
	// CUDA-dependent installers pick wheels on machines without a GPU.
	InstallCUDAVersion = "12.8"

	DefaultReadyInterval = time.Second
)

var (
	// ErrUnsupportedHost is returned by Provision when the platform cannot
	// run on the current operating system.
	ErrUnsupportedHost = errors.New("platform not supported on this host")

	// ErrWorkspaceNotEmpty is returned when a previous host tree in the
	// workspace cannot be removed.
	ErrWorkspaceNotEmpty = errors.New("workspace contains a previous installation that could not be removed")
)

// hostOS is replaced in tests.
var hostOS = runtime.GOOS

// Provider is the capability set of one target platform.
type Provider interface {
	Name() config.PlatformName

	// Provision creates a fresh workspace with the host installed.
	Provision(ctx context.Context, cfg config.TestConfig) (*Workspace, error)

	// InstallExtension makes the extension visible to the host and runs its
	// install steps.
	InstallExtension(ctx context.Context, ws *Workspace, extensionDir string) error

	// Start launches the host server and waits for it to answer. The
	// returned handle is non-nil whenever a process was started, even when
	// an error is returned, so the caller can stop it.
	Start(ctx context.Context, ws *Workspace, opts StartOptions) (*process.Handle, error)

	// Stop terminates the host process. It never fails and is safe on a
	// process that already exited.
	Stop(h *process.Handle)

	// Cleanup removes the workspace. Errors are informational.
	Cleanup(ws *Workspace) error
}

// Workspace is the isolated directory a platform run installs into.
type Workspace struct {
	Platform config.PlatformName
	Root     string
	HostDir  string
	// CustomNodesDir is where extensions are installed.
	CustomNodesDir string
	Python         string
	// VenvDir is empty for the portable distribution.
	VenvDir string

	// ExtensionName is the directory name of the installed extension.
	ExtensionName string
	// Env is read from the extension's comfy-env.toml during install.
	Env config.ComfyEnv
}

// ExtensionPath returns the installed extension directory.
func (ws *Workspace) ExtensionPath() string {
	return filepath.Join(ws.CustomNodesDir, ws.ExtensionName)
}

// StartOptions parameterize Start.
type StartOptions struct {
	Port    int
	CPUOnly bool
	// ReadyTimeout bounds the readiness wait.
	ReadyTimeout  time.Duration
	ReadyInterval time.Duration
}

// Options configure every provider.
type Options struct {
	// WorkDir holds one subdirectory per platform. Empty means a fresh
	// temporary directory per run.
	WorkDir string
	// KeepWorkspace disables removal in Cleanup.
	KeepWorkspace bool
	// CacheDir stores downloaded portable archives. Empty disables caching.
	CacheDir string

	HTTPClient *retryablehttp.Client
	Releases   ReleaseSource
	Clock      clock.Clock
	Logger     *logging.Logger
}

func (o Options) logger(name config.PlatformName) *logging.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logging.With("Platform", "platform", string(name))
}

// New returns the provider for name.
func New(name config.PlatformName, opts Options) (Provider, error) {
	switch name {
	case config.PlatformLinux:
		return newLinux(opts), nil
	case config.PlatformWindows:
		return newWindows(opts), nil
	case config.PlatformWindowsPortable:
		return newPortable(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownPlatform, name)
	}
}

// NewDryRun returns a provider that follows the contract of the provider for
// name without starting processes or touching the network or filesystem.
func NewDryRun(name config.PlatformName, opts Options) (Provider, error) {
	if _, err := New(name, opts); err != nil {
		return nil, err
	}
	return &dryRunProvider{name: name, opts: opts, log: opts.logger(name)}, nil
}

// HostPlatform maps the current operating system to its native platform.
func HostPlatform() (config.PlatformName, error) {
	switch hostOS {
	case "linux":
		return config.PlatformLinux, nil
	case "windows":
		return config.PlatformWindows, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedHost, hostOS)
	}
}

// RunsOnHost reports whether name can run natively on the current operating
// system.
func RunsOnHost(name config.PlatformName) bool {
	switch name {
	case config.PlatformLinux:
		return hostOS == "linux"
	case config.PlatformWindows, config.PlatformWindowsPortable:
		return hostOS == "windows"
	default:
		return false
	}
}

func checkHost(name config.PlatformName, want string) error {
	if hostOS != want {
		return fmt.Errorf("%w: %s requires a %s host, running on %s", ErrUnsupportedHost, name, want, hostOS)
	}
	return nil
}
