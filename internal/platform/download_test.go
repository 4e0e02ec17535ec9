package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfy-test/pkg/logging"
)

func TestDownload(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Path {
		case "/archive.7z":
			if calls == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte("7z-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewDownloadClient()
	client.RetryWaitMin = time.Millisecond
	client.RetryWaitMax = time.Millisecond
	log := logging.With("Download")

	dst := filepath.Join(t.TempDir(), "cache", "archive.7z")
	require.NoError(t, Download(context.Background(), client, srv.URL+"/archive.7z", dst, log))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "7z-bytes", string(data))
	assert.NoFileExists(t, dst+".part")

	missing := filepath.Join(t.TempDir(), "missing.7z")
	err = Download(context.Background(), client, srv.URL+"/missing.7z", missing, log)
	assert.ErrorContains(t, err, "HTTP 404")
	assert.NoFileExists(t, missing)
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "unknown size", humanSize(-1))
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KiB", humanSize(1536))
	assert.Equal(t, "1.9 GiB", humanSize(2*1000*1000*1000))
}

func TestFindPortableRoot(t *testing.T) {
	dir := t.TempDir()
	_, err := findPortableRoot(dir)
	assert.Error(t, err)

	home := filepath.Join(dir, "ComfyUI_windows_portable")
	require.NoError(t, os.MkdirAll(filepath.Join(home, embeddedPython), 0o755))
	got, err := findPortableRoot(dir)
	require.NoError(t, err)
	assert.Equal(t, home, got)
}
