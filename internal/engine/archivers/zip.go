package archivers

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"time"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/klauspost/compress/flate"
)

// ZipArchiver creates zip archives using deflate, or store at LevelNone.
type ZipArchiver struct {
	zipWriter *zip.Writer
	method    uint16
	closed    bool
}

// NewZipArchiver creates a zip archiver writing to w.
func NewZipArchiver(w io.Writer, level engine.CompressionLevel) *ZipArchiver {
	zw := zip.NewWriter(w)
	RegisterDeflate(zw, level)

	method := zip.Deflate
	if level <= engine.LevelNone {
		method = zip.Store
	}
	return &ZipArchiver{zipWriter: zw, method: method}
}

// RegisterDeflate installs the klauspost deflate encoder on zw.
func RegisterDeflate(zw *zip.Writer, level engine.CompressionLevel) {
	flateLevel := level.Scale(flate.BestSpeed, flate.BestCompression)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flateLevel)
	})
}

// AddFile adds a file to the zip archive.
func (a *ZipArchiver) AddFile(ctx context.Context, hdr engine.FileHeader, data io.Reader) error {
	if a.closed {
		return fmt.Errorf("archiver is closed")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	fh := &zip.FileHeader{
		Name:     hdr.Name,
		Method:   a.method,
		Modified: modTime(hdr.ModTime),
	}
	fh.SetMode(fs.FileMode(fileMode(hdr.Mode)))

	w, err := a.zipWriter.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("failed to write zip header: %w", err)
	}
	if _, err := io.Copy(w, data); err != nil {
		return fmt.Errorf("failed to write zip content: %w", err)
	}
	return nil
}

// AddDirectory records an explicit directory entry.
func (a *ZipArchiver) AddDirectory(ctx context.Context, name string, mtime time.Time) error {
	if a.closed {
		return fmt.Errorf("archiver is closed")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	fh := &zip.FileHeader{
		Name:     path.Clean(name) + "/",
		Method:   zip.Store,
		Modified: modTime(mtime),
	}
	if _, err := a.zipWriter.CreateHeader(fh); err != nil {
		return fmt.Errorf("failed to write zip header: %w", err)
	}
	return nil
}

// SetComment sets the archive comment written on Close.
func (a *ZipArchiver) SetComment(comment string) error {
	return a.zipWriter.SetComment(comment)
}

// Writer exposes the underlying zip writer for raw copies.
func (a *ZipArchiver) Writer() *zip.Writer {
	return a.zipWriter
}

// Close writes the central directory.
func (a *ZipArchiver) Close() error {
	if a.closed {
		return fmt.Errorf("archiver already closed")
	}
	a.closed = true

	if err := a.zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}
	return nil
}

// Extension returns the file extension for this archive type.
func (a *ZipArchiver) Extension() string {
	return engine.Zip.Extension()
}
