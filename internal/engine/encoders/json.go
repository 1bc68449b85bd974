package encoders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/archivekit/archivekit/internal/engine"
)

// JSONEncoder implements engine.Encoder for JSON format.
type JSONEncoder struct {
	indent string
}

// NewJSONEncoder creates a JSON encoder. An empty indent produces compact
// output.
func NewJSONEncoder(indent string) engine.Encoder {
	return &JSONEncoder{
		indent: indent,
	}
}

func (e *JSONEncoder) Encode(ctx context.Context, v any) (io.Reader, error) {
	var buff bytes.Buffer
	encoder := json.NewEncoder(&buff)
	if e.indent != "" {
		encoder.SetIndent("", e.indent)
	}

	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode as JSON: %w", err)
	}

	return &buff, nil
}

func (e *JSONEncoder) FileExtension() string {
	return "json"
}
