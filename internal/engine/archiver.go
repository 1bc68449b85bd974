package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// FileHeader describes a file handed to an Archiver.
// A negative Size means unknown; the archiver buffers the data to learn it.
type FileHeader struct {
	Name    string
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
}

// Archiver streams files into an archive format.
type Archiver interface {
	// AddFile adds a file to the archive with the given header and data.
	AddFile(ctx context.Context, hdr FileHeader, data io.Reader) error

	// AddDirectory records an explicit, possibly empty, directory.
	AddDirectory(ctx context.Context, name string, modTime time.Time) error

	// Close finalizes the archive. The underlying writer is not closed.
	Close() error

	// Extension returns the file extension for this archive type (e.g., ".tar.gz").
	Extension() string
}

// ArchiveSources writes sources into a in order, reporting progress once per
// source. It returns the number of sources written.
func ArchiveSources(ctx context.Context, a Archiver, sources []Source, progress ProgressFunc) (int, error) {
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return i, fmt.Errorf("context cancelled: %w", err)
		}
		if progress != nil {
			progress(i+1, len(sources), src.Path, src.Name)
		}
		if err := archiveSource(ctx, a, src); err != nil {
			return i, fmt.Errorf("failed to add %s: %w", src.Name, err)
		}
	}
	return len(sources), nil
}

func archiveSource(ctx context.Context, a Archiver, src Source) (err error) {
	if err := CheckEntryPath(NormalizePath(src.Name)); err != nil {
		return err
	}
	if src.IsDir() {
		return a.AddDirectory(ctx, src.Name, time.Now())
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return a.AddDirectory(ctx, src.Name, st.ModTime())
	}

	return a.AddFile(ctx, FileHeader{
		Name:    src.Name,
		Size:    st.Size(),
		Mode:    st.Mode().Perm(),
		ModTime: st.ModTime(),
	}, f)
}
