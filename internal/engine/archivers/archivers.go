// Package archivers streams files into new zip and tar archives.
package archivers

import (
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/archivekit/archivekit/internal/engine"
)

// New returns the archiver writing format to w.
func New(w io.Writer, format engine.Format, level engine.CompressionLevel) (engine.Archiver, error) {
	switch {
	case format == engine.Zip:
		return NewZipArchiver(w, level), nil
	case format.IsTar():
		a, err := NewTarArchiver(w, format, level)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: no archiver for %s", engine.ErrUnsupportedFormat, format)
	}
}

func fileMode(m fs.FileMode) int64 {
	if m.Perm() == 0 {
		return 0o644
	}
	return int64(m.Perm())
}

func modTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
