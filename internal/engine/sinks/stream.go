package sinks

import (
	"context"
	"fmt"
	"io"

	"github.com/archivekit/archivekit/internal/engine"
)

// StreamSink concatenates every entry onto one writer, e.g. stdout for
// "archivekit cat".
type StreamSink struct {
	w       io.Writer
	entries int
}

func NewStreamSink(w io.Writer) *StreamSink {
	return &StreamSink{w: w}
}

func (s *StreamSink) Name() string {
	return "stream"
}

func (s *StreamSink) Kind() string {
	return "stream"
}

func (s *StreamSink) Write(ctx context.Context, path string, data io.Reader) error {
	if _, err := io.Copy(s.w, data); err != nil {
		return fmt.Errorf("failed to copy %s: %w", path, err)
	}
	s.entries++
	return nil
}

// Entries returns how many entries were written.
func (s *StreamSink) Entries() int {
	return s.entries
}

func (s *StreamSink) Close(ctx context.Context) error {
	return nil
}

var _ engine.Sink = (*StreamSink)(nil)
