package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"comfy-test/pkg/logging"
)

// NewDownloadClient returns the HTTP client used for release archives.
func NewDownloadClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 4
	c.RetryWaitMin = time.Second
	c.RetryWaitMax = 30 * time.Second
	c.Logger = logging.Slog().With("subsystem", "Download")
	return c
}

// Download fetches url into dst. The file appears at dst only once it is
// complete.
func Download(ctx context.Context, client *retryablehttp.Client, url, dst string, log *logging.Logger) error {
	if client == nil {
		client = NewDownloadClient()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: HTTP %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	part := dst + ".part"
	f, err := os.Create(part)
	if err != nil {
		return err
	}

	log.Info("downloading %s (%s)", url, humanSize(resp.ContentLength))
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	log.Info("downloaded %s", humanSize(n))
	return os.Rename(part, dst)
}

func humanSize(n int64) string {
	if n < 0 {
		return "unknown size"
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
