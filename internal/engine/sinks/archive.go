package sinks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/archivekit/archivekit/internal/engine/archivers"
)

// ArchiveSink repacks extracted entries into a new archive. Entries are
// spooled into a temporary file; Close writes the finished archive to the
// inner sink under archiveName and closes the inner sink.
type ArchiveSink struct {
	inner       engine.Sink
	spool       *os.File
	archiver    engine.Archiver
	archiveName string
	entries     int
	done        bool
}

func NewArchiveSink(inner engine.Sink, format engine.Format, level engine.CompressionLevel, archiveName string) (*ArchiveSink, error) {
	spool, err := os.CreateTemp("", "archivekit-repack-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	archiver, err := archivers.New(spool, format, level)
	if err != nil {
		return nil, errors.Join(err, spool.Close(), os.Remove(spool.Name()))
	}
	return &ArchiveSink{
		inner:       inner,
		spool:       spool,
		archiver:    archiver,
		archiveName: archiveName,
	}, nil
}

func (s *ArchiveSink) Name() string {
	return fmt.Sprintf("archive(%s)->%s", s.archiveName, s.inner.Name())
}

func (s *ArchiveSink) Kind() string {
	return "archive"
}

// Entries is the number of entries repacked so far.
func (s *ArchiveSink) Entries() int { return s.entries }

func (s *ArchiveSink) Write(ctx context.Context, path string, data io.Reader) error {
	if s.done {
		return engine.ErrClosed
	}
	if err := engine.CheckEntryPath(path); err != nil {
		return err
	}
	if err := s.archiver.AddFile(ctx, engine.FileHeader{Name: path, Size: -1}, data); err != nil {
		return fmt.Errorf("failed to add %s to %s: %w", path, s.archiveName, err)
	}
	s.entries++
	return nil
}

// Close finalizes the archive and hands it to the inner sink.
func (s *ArchiveSink) Close(ctx context.Context) (err error) {
	if s.done {
		return engine.ErrClosed
	}
	s.done = true
	defer func() {
		err = errors.Join(err, s.removeSpool())
	}()

	if err := s.archiver.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", s.archiveName, err)
	}
	if _, err := s.spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind spool file: %w", err)
	}
	if err := s.inner.Write(ctx, s.archiveName, s.spool); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.archiveName, err)
	}
	if err := s.inner.Close(ctx); err != nil {
		return fmt.Errorf("failed to close inner sink: %w", err)
	}
	return nil
}

// Discard drops the partial archive without writing anything to the inner
// sink. It is a no-op after Close.
func (s *ArchiveSink) Discard() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.removeSpool()
}

func (s *ArchiveSink) removeSpool() error {
	return errors.Join(s.spool.Close(), os.Remove(s.spool.Name()))
}
