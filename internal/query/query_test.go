package query

import (
	"testing"
	"time"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entries = []engine.Entry{
	{Path: "README.md", UncompressedSize: 100, CompressedSize: 60, IsCompressed: true, ModTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	{Path: "docs/guide.PDF", UncompressedSize: 5000, CompressedSize: 5000, ModTime: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)},
	{Path: "docs/img/logo.png", UncompressedSize: 2048, CompressedSize: 2000, IsCompressed: true},
}

func TestFilter_Paths(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{`true`, []string{"README.md", "docs/guide.PDF", "docs/img/logo.png"}},
		{`size > 1024`, []string{"docs/guide.PDF", "docs/img/logo.png"}},
		{`path.startsWith("docs/") && is_compressed`, []string{"docs/img/logo.png"}},
		{`ext == ".pdf"`, []string{"docs/guide.PDF"}},
		{`name == "logo.png"`, []string{"docs/img/logo.png"}},
		{`compressed_size < size`, []string{"README.md", "docs/img/logo.png"}},
		{`mtime > timestamp("2023-12-31T00:00:00Z")`, []string{"README.md"}},
		{`path.matches("^nothing")`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := Compile(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, f.String())

			got, err := f.Paths(t.Context(), entries)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	for _, expr := range []string{`size +`, `unknown_var == 1`, `size + 1`, `path`} {
		t.Run(expr, func(t *testing.T) {
			_, err := Compile(expr)
			require.Error(t, err)
		})
	}
}

func TestFilter_NilMatchesAll(t *testing.T) {
	var f *Filter
	got, err := f.Apply(t.Context(), entries)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
