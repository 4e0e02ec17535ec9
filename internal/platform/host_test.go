package platform

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfy-test/internal/process"
	"comfy-test/internal/testerror"
)

// shellWorkspace runs main.py with /bin/sh so the host can be scripted.
func shellWorkspace(t *testing.T, script string) *Workspace {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	root := t.TempDir()
	ws := &Workspace{Root: root, HostDir: filepath.Join(root, "ComfyUI"), VenvDir: filepath.Join(root, "venv"), Python: "/bin/sh"}
	require.NoError(t, os.MkdirAll(ws.HostDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws.HostDir, "main.py"), []byte(script), 0o644))
	return ws
}

func unusedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func fastStart(port int, timeout time.Duration) StartOptions {
	return StartOptions{Port: port, CPUOnly: true, ReadyTimeout: timeout, ReadyInterval: 20 * time.Millisecond}
}

func TestStart_Ready(t *testing.T) {
	ws := shellWorkspace(t, "exec sleep 30\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"system": {}}`))
	}))
	defer srv.Close()
	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())

	p := newLinux(Options{})
	h, err := p.Start(context.Background(), ws, fastStart(port, 5*time.Second))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, process.StateReady, h.State())

	p.Stop(h)
	assert.Equal(t, process.StateStopped, h.State())
	p.Stop(h)
}

func TestStart_ExitBeforeReady(t *testing.T) {
	ws := shellWorkspace(t, "echo \"ModuleNotFoundError: No module named 'torch'\" >&2\nexit 3\n")

	p := newLinux(Options{})
	h, err := p.Start(context.Background(), ws, fastStart(unusedPort(t), 5*time.Second))
	require.Error(t, err)
	require.NotNil(t, h)
	defer p.Stop(h)

	var terr *testerror.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, testerror.KindStartup, terr.Kind)
	assert.Contains(t, terr.Output, "ModuleNotFoundError")
	assert.Contains(t, err.Error(), "exit code 3")
}

func TestStart_ReadinessTimeout(t *testing.T) {
	ws := shellWorkspace(t, "exec sleep 30\n")

	p := newLinux(Options{})
	h, err := p.Start(context.Background(), ws, fastStart(unusedPort(t), 200*time.Millisecond))
	require.NotNil(t, h)

	kind, _ := testerror.KindOf(err)
	assert.Equal(t, testerror.KindSetupTimeout, kind)

	p.Stop(h)
	select {
	case <-h.Exited():
	case <-time.After(process.DefaultGracePeriod):
		t.Fatal("host still running after Stop")
	}
}
