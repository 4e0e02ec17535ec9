package platform

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"comfy-test/internal/config"
	"comfy-test/internal/process"
	"comfy-test/pkg/logging"
)

// dryRunProvider follows the provider contract and only logs. It reads the
// extension directory but never writes, starts processes or opens network
// connections.
type dryRunProvider struct {
	name config.PlatformName
	opts Options
	log  *logging.Logger
}

func (p *dryRunProvider) Name() config.PlatformName { return p.name }

func (p *dryRunProvider) Provision(ctx context.Context, cfg config.TestConfig) (*Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root := filepath.Join(os.TempDir(), "comfy-test-"+string(p.name)+"-dry-run")
	if p.opts.WorkDir != "" {
		root = filepath.Join(p.opts.WorkDir, string(p.name))
	}
	ws := &Workspace{Platform: p.name, Root: root}
	p.log.Info("would create workspace %s", root)

	if p.name == config.PlatformWindowsPortable {
		home := filepath.Join(root, extractDirName, portableAssetPrefix)
		ws.HostDir = filepath.Join(home, "ComfyUI")
		ws.Python = filepath.Join(home, embeddedPython, "python.exe")
		p.log.Info("would download portable release %s of %s", cfg.WindowsPortable.PortableVersion, PortableRepository)
		p.log.Info("would extract it into %s", filepath.Join(root, extractDirName))
	} else {
		ws.HostDir = filepath.Join(root, "ComfyUI")
		ws.VenvDir = filepath.Join(root, "venv")
		ws.Python = filepath.Join(ws.VenvDir, "bin", "python")
		if p.name == config.PlatformWindows {
			ws.Python = filepath.Join(ws.VenvDir, "Scripts", "python.exe")
		}
		p.log.Info("would clone %s (%s) into %s", HostRepository, cfg.ComfyUIVersion, ws.HostDir)
		p.log.Info("would create venv %s with python %s", ws.VenvDir, cfg.PythonVersion)
		if cfg.CPUOnly {
			p.log.Info("would install CPU torch from %s", PyTorchCPUIndex)
		}
		p.log.Info("would install host requirements")
	}
	ws.CustomNodesDir = filepath.Join(ws.HostDir, "custom_nodes")
	return ws, nil
}

func (p *dryRunProvider) InstallExtension(ctx context.Context, ws *Workspace, extensionDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := filepath.Abs(extensionDir)
	if err != nil {
		return err
	}
	ws.ExtensionName = filepath.Base(src)

	verb := "copy"
	if p.name == config.PlatformLinux {
		verb = "link"
	}
	p.log.Info("would %s %s to %s", verb, src, ws.ExtensionPath())

	if fileExists(filepath.Join(src, "requirements.txt")) {
		p.log.Info("would install requirements.txt")
	}
	if fileExists(filepath.Join(src, "install.py")) {
		p.log.Info("would run install.py")
	}

	env, err := config.LoadComfyEnv(src)
	if err != nil {
		p.log.Warn("ignoring %s: %v", config.ComfyEnvFileName, err)
	}
	ws.Env = env
	for _, req := range env.NodeReqs {
		p.log.Info("would clone dependency %s from %s", req.Name, req.CloneURL())
	}
	return nil
}

func (p *dryRunProvider) Start(ctx context.Context, ws *Workspace, opts StartOptions) (*process.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args := []string{filepath.Join(ws.HostDir, "main.py"), "--listen", "127.0.0.1", "--port", strconv.Itoa(opts.Port)}
	if opts.CPUOnly {
		args = append(args, "--cpu")
	}
	p.log.Info("would start %s %s", ws.Python, strings.Join(args, " "))
	if len(ws.Env.CUDAPackages) > 0 {
		p.log.Info("would mock CUDA packages: %s", strings.Join(ws.Env.CUDAPackages, ", "))
	}
	p.log.Info("would wait up to %s for the host to answer", opts.ReadyTimeout)
	return process.Detached(opts.Port, p.log.Subsystem("Host")), nil
}

func (p *dryRunProvider) Stop(h *process.Handle) {
	if h == nil {
		return
	}
	p.log.Info("would stop host")
	h.Terminate()
}

func (p *dryRunProvider) Cleanup(ws *Workspace) error {
	if ws == nil {
		return nil
	}
	if p.opts.KeepWorkspace {
		p.log.Info("would keep workspace %s", ws.Root)
		return nil
	}
	p.log.Info("would remove workspace %s", ws.Root)
	return nil
}
