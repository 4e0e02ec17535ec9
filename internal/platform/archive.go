package platform

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

// extract7z unpacks archive into dest and returns the number of files
// written. Entries that would escape dest are rejected.
func extract7z(ctx context.Context, archive, dest string) (int, error) {
	r, err := sevenzip.OpenReader(archive)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", archive, err)
	}
	defer r.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}

	files := 0
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return files, err
		}

		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return files, fmt.Errorf("archive entry %q escapes %s", f.Name, dest)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return files, fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
		files++
	}
	return files, nil
}

func extractFile(f *sevenzip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
