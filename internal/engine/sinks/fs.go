package sinks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/spf13/afero"
)

// ErrExists is returned by a no-clobber filesystem sink for an entry whose
// target already exists.
var ErrExists = errors.New("target already exists")

// FilesystemSink extracts entries below the root of an afero filesystem. It
// creates intermediate directories and converts archive separators to the
// host's.
type FilesystemSink struct {
	fs        afero.Fs
	root      string
	noClobber bool
	files     int
	bytes     int64
}

type FilesystemOption func(*FilesystemSink)

// KeepExisting makes Write fail with ErrExists instead of replacing a file.
func KeepExisting(keep bool) FilesystemOption {
	return func(s *FilesystemSink) { s.noClobber = keep }
}

func NewFilesystemSink(fs afero.Fs, opts ...FilesystemOption) *FilesystemSink {
	s := &FilesystemSink{fs: fs}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFilesystemSinkFromPath roots a sink at dir on the OS filesystem,
// creating dir when missing.
func NewFilesystemSinkFromPath(dir string, opts ...FilesystemOption) (*FilesystemSink, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", root, err)
	}

	s := NewFilesystemSink(afero.NewBasePathFs(afero.NewOsFs(), root), opts...)
	s.root = root
	return s, nil
}

func (s *FilesystemSink) Name() string {
	if s.root != "" {
		return fmt.Sprintf("filesystem(%s)", s.root)
	}
	return fmt.Sprintf("filesystem(%s)", s.fs.Name())
}

func (s *FilesystemSink) Kind() string {
	return "filesystem"
}

// Root is the absolute output directory, empty for in-memory filesystems.
func (s *FilesystemSink) Root() string { return s.root }

// Written reports how many files and bytes the sink has stored.
func (s *FilesystemSink) Written() (files int, bytes int64) { return s.files, s.bytes }

func (s *FilesystemSink) Write(ctx context.Context, entryPath string, data io.Reader) (err error) {
	if err := engine.CheckEntryPath(entryPath); err != nil {
		return err
	}
	target := filepath.FromSlash(entryPath)

	if dir := filepath.Dir(target); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if s.noClobber {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := s.fs.OpenFile(target, flags, 0o644)
	if err != nil {
		if s.noClobber && errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", entryPath, ErrExists)
		}
		return fmt.Errorf("failed to create %s: %w", entryPath, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	n, err := io.Copy(f, data)
	s.bytes += n
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", entryPath, err)
	}
	s.files++
	return nil
}

func (s *FilesystemSink) Close(ctx context.Context) error {
	return nil
}
