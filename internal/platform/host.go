package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"comfy-test/internal/api"
	"comfy-test/internal/config"
	"comfy-test/internal/process"
	"comfy-test/internal/testerror"
	"comfy-test/pkg/logging"
)

// base holds what every real provider shares.
type base struct {
	name config.PlatformName
	opts Options
	log  *logging.Logger
	cmd  runner
}

func newBase(name config.PlatformName, opts Options) base {
	log := opts.logger(name)
	return base{name: name, opts: opts, log: log, cmd: runner{log: log}}
}

func (b *base) Name() config.PlatformName { return b.name }

// workspaceRoot creates the per-run workspace directory.
func (b *base) workspaceRoot() (string, error) {
	if b.opts.WorkDir == "" {
		root, err := os.MkdirTemp("", "comfy-test-"+string(b.name)+"-")
		if err != nil {
			return "", err
		}
		return root, nil
	}
	root, err := filepath.Abs(filepath.Join(b.opts.WorkDir, string(b.name)))
	if err != nil {
		return "", err
	}
	return root, os.MkdirAll(root, 0o755)
}

// placeFunc puts the extension at target.
type placeFunc func(src, target string) error

// pipFunc installs a requirements file with the workspace's python.
type pipFunc func(ctx context.Context, ws *Workspace, dir, requirements string) error

// installExtension places the extension, installs its requirements, runs
// its install hook and installs dependency extensions.
func (b *base) installExtension(ctx context.Context, ws *Workspace, extensionDir string, place placeFunc, pip pipFunc, hookEnv []string) error {
	src, err := filepath.Abs(extensionDir)
	if err != nil {
		return testerror.Install(err, "", "failed to resolve extension directory %s", extensionDir)
	}
	ws.ExtensionName = filepath.Base(src)
	target := ws.ExtensionPath()

	b.log.Info("installing %s into %s", ws.ExtensionName, ws.CustomNodesDir)
	if err := place(src, target); err != nil {
		return testerror.Install(err, "", "failed to place extension into %s", target)
	}

	env, err := config.LoadComfyEnv(src)
	if err != nil {
		b.log.Warn("ignoring %s: %v", config.ComfyEnvFileName, err)
	}
	ws.Env = env

	if err := b.installHooks(ctx, ws, target, pip, hookEnv); err != nil {
		return err
	}

	for _, req := range ws.Env.NodeReqs {
		dst := filepath.Join(ws.CustomNodesDir, req.Name)
		b.log.Info("installing dependency %s from %s", req.Name, req.Repo)
		if err := freshDir(dst); err != nil {
			return testerror.Install(err, "", "failed to prepare %s", dst)
		}
		if err := b.cmd.run(ctx, ws.CustomNodesDir, nil, "git", "clone", "--depth", "1", req.CloneURL(), dst); err != nil {
			return testerror.Install(err, outputOf(err), "failed to clone dependency %s", req.Name)
		}
		if err := b.installHooks(ctx, ws, dst, pip, hookEnv); err != nil {
			return err
		}
	}
	return nil
}

// installHooks installs requirements.txt first, since install.py may need
// them, then runs install.py.
func (b *base) installHooks(ctx context.Context, ws *Workspace, dir string, pip pipFunc, hookEnv []string) error {
	name := filepath.Base(dir)

	if req := filepath.Join(dir, "requirements.txt"); fileExists(req) {
		if err := pip(ctx, ws, dir, req); err != nil {
			return testerror.Install(err, outputOf(err), "failed to install requirements of %s", name)
		}
	}

	if hook := filepath.Join(dir, "install.py"); fileExists(hook) {
		if err := b.cmd.run(ctx, dir, hookEnv, ws.Python, hook); err != nil {
			return testerror.Install(err, outputOf(err), "install.py of %s failed", name)
		}
	}
	return nil
}

// startHost launches the host and waits for its API.
func (b *base) startHost(ctx context.Context, ws *Workspace, opts StartOptions, args, env []string) (*process.Handle, error) {
	args = append(args, "--listen", "127.0.0.1", "--port", strconv.Itoa(opts.Port))
	if opts.CPUOnly {
		args = append(args, "--cpu")
	}

	if pkgs := ws.Env.CUDAPackages; len(pkgs) > 0 {
		b.log.Info("mocking CUDA packages: %s", strings.Join(pkgs, ", "))
		env = append(env,
			"COMFY_TEST_MOCK_PACKAGES="+strings.Join(pkgs, ","),
			"COMFY_TEST_STRICT_IMPORTS=1",
		)
	}

	b.log.Info("starting host on port %d", opts.Port)
	h, err := process.Start(ctx, process.Options{
		Command: ws.Python,
		Args:    args,
		Dir:     ws.HostDir,
		Env:     append(os.Environ(), env...),
		Port:    opts.Port,
		Clock:   b.opts.Clock,
		Logger:  b.log.Subsystem("Host"),
	})
	if err != nil {
		return nil, testerror.Startup(err, "", "failed to launch host")
	}

	interval := opts.ReadyInterval
	if interval <= 0 {
		interval = DefaultReadyInterval
	}
	client := api.ForPort(opts.Port)

	b.log.Info("waiting up to %s for the host to answer", opts.ReadyTimeout)
	result, err := h.WaitReady(ctx, opts.ReadyTimeout, interval, client.Health)
	switch result {
	case process.Ready:
		b.log.Info("host is ready (PID: %d)", h.PID())
		return h, nil
	case process.ExitedEarly:
		return h, testerror.Startup(err, h.Tail(), "host exited before becoming ready")
	default:
		if err == nil || errors.Is(err, context.DeadlineExceeded) {
			return h, testerror.SetupTimeout(err, "host did not answer on port %d within %s", opts.Port, opts.ReadyTimeout)
		}
		return h, err
	}
}

func (b *base) Stop(h *process.Handle) {
	if h == nil {
		return
	}
	b.log.Info("stopping host")
	h.Terminate()
}

func (b *base) Cleanup(ws *Workspace) error {
	if ws == nil || ws.Root == "" {
		return nil
	}
	if b.opts.KeepWorkspace {
		b.log.Info("keeping workspace %s", ws.Root)
		return nil
	}
	b.log.Info("removing workspace %s", ws.Root)
	if err := os.RemoveAll(ws.Root); err != nil {
		// Windows keeps files locked for a while after the host exits.
		b.log.Warn("could not fully remove %s: %v", ws.Root, err)
		return fmt.Errorf("failed to remove workspace %s: %w", ws.Root, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
