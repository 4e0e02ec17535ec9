package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"comfy-test/internal/config"
	"comfy-test/internal/process"
	"comfy-test/internal/testerror"
)

const (
	embeddedPython = "python_embeded"
	extractDirName = "portable"
)

// portableProvider runs the self-contained Windows distribution with its
// embedded interpreter.
type portableProvider struct {
	base
}

func newPortable(opts Options) *portableProvider {
	return &portableProvider{base: newBase(config.PlatformWindowsPortable, opts)}
}

func (p *portableProvider) Provision(ctx context.Context, cfg config.TestConfig) (*Workspace, error) {
	if err := checkHost(p.name, "windows"); err != nil {
		return nil, testerror.Provision(err, "cannot provision %s", p.name)
	}

	root, err := p.workspaceRoot()
	if err != nil {
		return nil, testerror.Provision(err, "failed to create workspace")
	}
	ws := &Workspace{Platform: p.name, Root: root}

	archive, err := p.fetchArchive(ctx, cfg.WindowsPortable.PortableVersion, root)
	if err != nil {
		return ws, testerror.Provision(err, "failed to fetch portable archive")
	}

	dest := filepath.Join(root, extractDirName)
	if err := freshDir(dest); err != nil {
		return ws, testerror.Provision(err, "failed to reset workspace")
	}
	p.log.Info("extracting %s", filepath.Base(archive))
	n, err := extract7z(ctx, archive, dest)
	if err != nil {
		return ws, testerror.Provision(err, "failed to extract portable archive")
	}
	p.log.Debug("extracted %d files", n)

	home, err := findPortableRoot(dest)
	if err != nil {
		return ws, testerror.Provision(err, "unexpected portable archive layout")
	}
	ws.HostDir = filepath.Join(home, "ComfyUI")
	ws.CustomNodesDir = filepath.Join(ws.HostDir, "custom_nodes")
	ws.Python = filepath.Join(home, embeddedPython, "python.exe")

	if err := os.MkdirAll(ws.CustomNodesDir, 0o755); err != nil {
		return ws, testerror.Provision(err, "failed to create %s", ws.CustomNodesDir)
	}
	return ws, nil
}

// fetchArchive resolves the release and returns the local archive path,
// reusing a cached download when one exists.
func (p *portableProvider) fetchArchive(ctx context.Context, selector, root string) (string, error) {
	src := p.opts.Releases
	if src == nil {
		var err error
		if src, err = NewGitHubReleases(); err != nil {
			return "", err
		}
	}

	rel, err := ResolvePortableRelease(ctx, src, selector)
	if err != nil {
		return "", err
	}
	p.log.Info("using portable release %s (%s)", rel.Tag, rel.AssetName)

	dir := root
	if p.opts.CacheDir != "" {
		dir = filepath.Join(p.opts.CacheDir, "portable", rel.Tag)
	}
	archive := filepath.Join(dir, rel.AssetName)
	if fileExists(archive) {
		p.log.Info("using cached archive %s", archive)
		return archive, nil
	}
	if err := Download(ctx, p.opts.HTTPClient, rel.URL, archive, p.log); err != nil {
		return "", err
	}
	return archive, nil
}

// findPortableRoot returns dir or its single child that holds the embedded
// interpreter.
func findPortableRoot(dir string) (string, error) {
	if isDir(filepath.Join(dir, embeddedPython)) {
		return dir, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		candidate := filepath.Join(dir, e.Name())
		if e.IsDir() && isDir(filepath.Join(candidate, embeddedPython)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no %s directory found in %s", embeddedPython, dir)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (p *portableProvider) InstallExtension(ctx context.Context, ws *Workspace, extensionDir string) error {
	hookEnv := []string{"COMFY_ENV_CUDA_VERSION=" + InstallCUDAVersion}
	return p.installExtension(ctx, ws, extensionDir, copyTree, p.embeddedPip, hookEnv)
}

func (p *portableProvider) embeddedPip(ctx context.Context, ws *Workspace, dir, requirements string) error {
	return p.cmd.run(ctx, dir, nil, ws.Python, "-s", "-m", "pip", "install", "-r", requirements)
}

func (p *portableProvider) Start(ctx context.Context, ws *Workspace, opts StartOptions) (*process.Handle, error) {
	args := []string{"-s", filepath.Join(ws.HostDir, "main.py"), "--windows-standalone-build"}
	return p.startHost(ctx, ws, opts, args, nil)
}

// DownloadPortable saves the portable archive for selector into outputDir as
// ComfyUI_portable_<tag>.7z and returns its path.
func DownloadPortable(ctx context.Context, opts Options, selector, outputDir string) (string, error) {
	log := opts.logger(config.PlatformWindowsPortable)
	src := opts.Releases
	if src == nil {
		var err error
		if src, err = NewGitHubReleases(); err != nil {
			return "", err
		}
	}
	rel, err := ResolvePortableRelease(ctx, src, selector)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(outputDir, fmt.Sprintf("ComfyUI_portable_%s.7z", rel.Tag))
	if err := Download(ctx, opts.HTTPClient, rel.URL, dst, log); err != nil {
		return "", err
	}
	return dst, nil
}
