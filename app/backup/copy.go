package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// copyFile copies a regular file with permissions and modification time preserved.
// Symlinks are followed. Fails if dst exists.
func copyFile(src, dst string) (err error) {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	in, err := os.Open(src) //nolint:gosec // source paths come from the operator
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm()) //nolint:gosec
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return copyMeta(dst, info)
}

// treeCopier copies directory content following symlinks. The destination tree itself is
// skipped, so a backup dir located inside the source doesn't copy into its own output.
type treeCopier struct {
	skip      string          // resolved destination root
	ancestors map[string]bool // resolved directories on the current path, guards symlink loops
}

// copyTree copies directory src recursively to dst. Symlinks, including src itself, are followed
// and the content of their targets is copied. The first error stops the copy, whatever
// was written so far stays in place.
func copyTree(src, dst string) error {
	root, err := filepath.EvalSymlinks(src)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", src, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}

	// owner write bit is needed to fill the directory, real mode restored when it is filled
	if err = os.Mkdir(dst, info.Mode().Perm()|0o700); err != nil {
		return fmt.Errorf("make dir %s: %w", dst, err)
	}
	skip, err := filepath.EvalSymlinks(dst)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dst, err)
	}

	c := treeCopier{skip: skip, ancestors: map[string]bool{root: true}}
	if err = c.fill(root, dst); err != nil {
		return err
	}
	return copyMeta(dst, info)
}

// fill copies entries of the src directory into the existing dst directory
func (c *treeCopier) fill(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", src, err)
	}

	for _, e := range entries {
		path, target := filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("dangling link %s: %w", path, err)
			}
			return fmt.Errorf("stat %s: %w", path, err)
		}

		switch {
		case info.IsDir():
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", path, err)
			}
			if c.inSkip(resolved) {
				continue
			}
			if c.ancestors[resolved] {
				return fmt.Errorf("symlink loop at %s", path)
			}
			if err := os.Mkdir(target, info.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("make dir %s: %w", target, err)
			}
			c.ancestors[resolved] = true
			err = c.fill(path, target)
			delete(c.ancestors, resolved)
			if err != nil {
				return err
			}
			if err := copyMeta(target, info); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := copyFile(path, target); err != nil {
				return err
			}
		default:
			// sockets, devices and pipes are not copied
		}
	}
	return nil
}

func (c *treeCopier) inSkip(resolved string) bool {
	return resolved == c.skip || strings.HasPrefix(resolved, c.skip+string(filepath.Separator))
}

func copyMeta(dst string, info fs.FileInfo) error {
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod %s: %w", dst, err)
	}
	mtime := info.ModTime()
	if err := os.Chtimes(dst, time.Now(), mtime); err != nil {
		return fmt.Errorf("set times on %s: %w", dst, err)
	}
	return nil
}
