package archivers

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/archivekit/archivekit/internal/engine/filters"
)

// TarArchiver creates tar archives with optional compression.
type TarArchiver struct {
	compressor io.WriteCloser
	tarWriter  *tar.Writer
	format     engine.Format
	closed     bool
}

// NewTarArchiver creates a tar archiver writing to w. The format selects the
// compression layer: Tar, TarGzip, TarBzip, TarLzma, TarZstd or TarLz4.
func NewTarArchiver(w io.Writer, format engine.Format, level engine.CompressionLevel) (*TarArchiver, error) {
	if !format.IsTar() || !filters.Writable(format) {
		return nil, fmt.Errorf("unsupported tar format: %s", format)
	}

	compressor, err := filters.NewWriter(format, w, level)
	if err != nil {
		return nil, err
	}

	return &TarArchiver{
		compressor: compressor,
		tarWriter:  tar.NewWriter(compressor),
		format:     format,
	}, nil
}

// AddFile adds a file to the tar archive.
func (a *TarArchiver) AddFile(ctx context.Context, hdr engine.FileHeader, data io.Reader) error {
	if a.closed {
		return fmt.Errorf("archiver is closed")
	}

	// Check context cancellation
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	size := hdr.Size
	if size < 0 {
		content, err := io.ReadAll(data)
		if err != nil {
			return fmt.Errorf("failed to read file data: %w", err)
		}
		size = int64(len(content))
		data = bytes.NewReader(content)
	}

	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     hdr.Name,
		Mode:     fileMode(hdr.Mode),
		Size:     size,
		ModTime:  modTime(hdr.ModTime),
		Format:   tar.FormatPAX,
	}

	if err := a.tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}

	if _, err := io.CopyN(a.tarWriter, data, size); err != nil {
		return fmt.Errorf("failed to write tar content: %w", err)
	}

	return nil
}

// AddDirectory records a directory header.
func (a *TarArchiver) AddDirectory(ctx context.Context, name string, mtime time.Time) error {
	if a.closed {
		return fmt.Errorf("archiver is closed")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	header := &tar.Header{
		Typeflag: tar.TypeDir,
		Name:     path.Clean(name) + "/",
		Mode:     0o755,
		ModTime:  modTime(mtime),
		Format:   tar.FormatPAX,
	}
	if err := a.tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}
	return nil
}

// WriteRaw copies a header and its content as-is. It is used when rewriting
// an existing archive.
func (a *TarArchiver) WriteRaw(hdr *tar.Header, data io.Reader) error {
	if a.closed {
		return fmt.Errorf("archiver is closed")
	}
	if err := a.tarWriter.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}
	if hdr.Size > 0 {
		if _, err := io.CopyN(a.tarWriter, data, hdr.Size); err != nil {
			return fmt.Errorf("failed to write tar content: %w", err)
		}
	}
	return nil
}

// Close finalizes the tar stream and flushes the compressor.
func (a *TarArchiver) Close() error {
	if a.closed {
		return fmt.Errorf("archiver already closed")
	}
	a.closed = true

	// Close tar writer first
	if err := a.tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to close tar writer: %w", err)
	}

	// Close compressor
	if err := a.compressor.Close(); err != nil {
		return fmt.Errorf("failed to close compressor: %w", err)
	}

	return nil
}

// Extension returns the file extension for this archive type.
func (a *TarArchiver) Extension() string {
	return a.format.Extension()
}
