package platform

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Directories never copied into the host.
var skipDirs = sets.New(".git", "__pycache__", ".venv", "node_modules")

// copyTree copies src into dst, replacing dst if it exists.
func copyTree(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dst, err)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			if path != src && skipDirs.Has(d.Name()) {
				return filepath.SkipDir
			}
			return os.MkdirAll(target, 0o755)

		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)

		default:
			info, err := d.Info()
			if err != nil {
				return err
			}
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// linkTree points dst at src, replacing whatever dst was.
func linkTree(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dst, err)
		}
	}
	return os.Symlink(src, dst)
}

// freshDir makes sure path does not exist, so an earlier tree is redone
// rather than merged.
func freshDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWorkspaceNotEmpty, path, err)
	}
	return nil
}
