package platform

import (
	"context"
	"os"
	"path/filepath"

	"comfy-test/internal/config"
	"comfy-test/internal/process"
	"comfy-test/internal/testerror"
)

// nativeProvider clones the host and creates a uv-managed virtual
// environment. Linux and Windows differ in the host OS they require, the
// venv layout, how the extension is placed and the install hook environment.
type nativeProvider struct {
	base
	requiredOS string
	binDir     string
	pythonExe  string
	place      placeFunc
	hookEnv    []string
}

func newLinux(opts Options) *nativeProvider {
	return &nativeProvider{
		base:       newBase(config.PlatformLinux, opts),
		requiredOS: "linux",
		binDir:     "bin",
		pythonExe:  "python",
		place:      linkTree,
	}
}

// newWindows copies instead of linking, since symlinks need elevated rights.
func newWindows(opts Options) *nativeProvider {
	return &nativeProvider{
		base:       newBase(config.PlatformWindows, opts),
		requiredOS: "windows",
		binDir:     "Scripts",
		pythonExe:  "python.exe",
		place:      copyTree,
		hookEnv:    []string{"COMFY_ENV_CUDA_VERSION=" + InstallCUDAVersion},
	}
}

func (p *nativeProvider) Provision(ctx context.Context, cfg config.TestConfig) (*Workspace, error) {
	if err := checkHost(p.name, p.requiredOS); err != nil {
		return nil, testerror.Provision(err, "cannot provision %s", p.name)
	}

	root, err := p.workspaceRoot()
	if err != nil {
		return nil, testerror.Provision(err, "failed to create workspace")
	}
	ws := &Workspace{
		Platform: p.name,
		Root:     root,
		HostDir:  filepath.Join(root, "ComfyUI"),
		VenvDir:  filepath.Join(root, "venv"),
	}
	ws.CustomNodesDir = filepath.Join(ws.HostDir, "custom_nodes")
	ws.Python = filepath.Join(ws.VenvDir, p.binDir, p.pythonExe)

	for _, dir := range []string{ws.HostDir, ws.VenvDir} {
		if err := freshDir(dir); err != nil {
			return ws, testerror.Provision(err, "failed to reset workspace")
		}
	}

	p.log.Info("cloning host (%s)", cfg.ComfyUIVersion)
	if err := p.clone(ctx, root, ws.HostDir, cfg.ComfyUIVersion); err != nil {
		return ws, withOutput(testerror.Provision(err, "failed to clone host"), err)
	}

	p.log.Info("creating venv (python %s)", cfg.PythonVersion)
	if err := p.cmd.run(ctx, root, nil, "uv", "venv", ws.VenvDir, "--python", cfg.PythonVersion); err != nil {
		return ws, withOutput(testerror.Provision(err, "failed to create venv"), err)
	}

	if cfg.CPUOnly {
		p.log.Info("installing CPU torch")
		if err := p.cmd.run(ctx, root, nil, "uv", "pip", "install", "--python", ws.Python,
			"torch", "torchvision", "torchaudio", "--index-url", PyTorchCPUIndex); err != nil {
			return ws, withOutput(testerror.Provision(err, "failed to install torch"), err)
		}
	}

	if req := filepath.Join(ws.HostDir, "requirements.txt"); fileExists(req) {
		p.log.Info("installing host requirements")
		if err := p.cmd.run(ctx, root, nil, "uv", "pip", "install", "--python", ws.Python, "-r", req); err != nil {
			return ws, withOutput(testerror.Provision(err, "failed to install host requirements"), err)
		}
	}

	if err := os.MkdirAll(ws.CustomNodesDir, 0o755); err != nil {
		return ws, testerror.Provision(err, "failed to create %s", ws.CustomNodesDir)
	}
	return ws, nil
}

// clone fetches the host at selector. Tags and branches are shallow
// clones; a commit needs the history to check it out.
func (p *nativeProvider) clone(ctx context.Context, dir, dst, selector string) error {
	switch config.ClassifyVersion(selector) {
	case config.VersionLatest:
		return p.cmd.run(ctx, dir, nil, "git", "clone", "--depth", "1", HostRepository, dst)
	case config.VersionCommit:
		if err := p.cmd.run(ctx, dir, nil, "git", "clone", HostRepository, dst); err != nil {
			return err
		}
		return p.cmd.run(ctx, dst, nil, "git", "checkout", "--detach", selector)
	default:
		return p.cmd.run(ctx, dir, nil, "git", "clone", "--depth", "1", "--branch", selector, HostRepository, dst)
	}
}

func (p *nativeProvider) InstallExtension(ctx context.Context, ws *Workspace, extensionDir string) error {
	return p.installExtension(ctx, ws, extensionDir, p.place, p.uvPip, p.hookEnv)
}

func (p *nativeProvider) uvPip(ctx context.Context, ws *Workspace, dir, requirements string) error {
	return p.cmd.run(ctx, dir, nil, "uv", "pip", "install", "--python", ws.Python, "-r", requirements)
}

func (p *nativeProvider) Start(ctx context.Context, ws *Workspace, opts StartOptions) (*process.Handle, error) {
	binDir := filepath.Join(ws.VenvDir, p.binDir)
	env := []string{
		"VIRTUAL_ENV=" + ws.VenvDir,
		"PATH=" + binDir + string(os.PathListSeparator) + os.Getenv("PATH"),
	}
	return p.startHost(ctx, ws, opts, []string{filepath.Join(ws.HostDir, "main.py")}, env)
}

