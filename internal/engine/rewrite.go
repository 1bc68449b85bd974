package engine

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// WriteAtomic writes dest through a temporary file created in the same
// directory and renamed over dest once write succeeds. On failure dest is
// left untouched.
func WriteAtomic(dest string, write func(w io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}

	// Keep the permissions of the archive being replaced.
	mode := fs.FileMode(0o644)
	if st, statErr := os.Stat(dest); statErr == nil {
		mode = st.Mode().Perm()
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return fmt.Errorf("failed to set mode on %s: %w", tmp.Name(), err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to replace %s: %w", dest, err)
	}
	return nil
}

// Selected reports whether the raw archive name equals one of paths or lies
// below one of them. Names and paths are compared normalized.
func Selected(name string, paths []string) bool {
	name = NormalizePath(name)
	for _, p := range paths {
		p = NormalizePath(p)
		if p == "" {
			continue
		}
		if name == p || strings.HasPrefix(name, p+"/") {
			return true
		}
	}
	return false
}

// SourceNames returns the normalized archive names of sources.
func SourceNames(sources []Source) []string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		if n := NormalizePath(s.Name); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// SafeJoin joins an entry path below root, failing with ErrUnsafePath when
// the result would escape it.
func SafeJoin(root, entryPath string) (string, error) {
	if err := CheckEntryPath(entryPath); err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.FromSlash(entryPath)), nil
}
