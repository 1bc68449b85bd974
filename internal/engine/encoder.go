package engine

import (
	"context"
	"io"
)

// Encoder renders listings and reports (JSON, YAML).
type Encoder interface {
	// Encode encodes v to a reader.
	Encode(ctx context.Context, v any) (io.Reader, error)

	// FileExtension returns extension without dot (e.g., "json").
	FileExtension() string
}
