package encoders

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/goccy/go-yaml"
)

type YAMLEncoder struct {
	indent int
}

// NewYAMLEncoder creates a YAML encoder indenting nested blocks by indent
// spaces (2 when zero).
func NewYAMLEncoder(indent int) engine.Encoder {
	if indent <= 0 {
		indent = 2
	}
	return &YAMLEncoder{indent: indent}
}

func (e *YAMLEncoder) Encode(ctx context.Context, v any) (io.Reader, error) {
	var buff bytes.Buffer
	if err := yaml.NewEncoder(&buff, yaml.Indent(e.indent)).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode as YAML: %w", err)
	}
	return &buff, nil
}

func (e *YAMLEncoder) FileExtension() string {
	return "yaml"
}

// ByName returns the encoder for an output name ("json" or "yaml").
func ByName(name string) (engine.Encoder, error) {
	switch name {
	case "json":
		return NewJSONEncoder("  "), nil
	case "yaml", "yml":
		return NewYAMLEncoder(2), nil
	default:
		return nil, fmt.Errorf("unknown encoding: %s", name)
	}
}
