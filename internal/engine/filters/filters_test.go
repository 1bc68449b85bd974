package filters

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compress(t *testing.T, f engine.Format, level engine.CompressionLevel, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(f, &buf, level)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func decompress(t *testing.T, f engine.Format, data []byte) []byte {
	t.Helper()
	r, err := NewReader(t.Context(), f, bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	return out
}

func TestRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog\n", 200))

	formats := []engine.Format{
		engine.Tar, engine.Gzip, engine.Bzip, engine.Lzma, engine.Zstd, engine.Lz4,
		engine.TarGzip, engine.TarBzip, engine.TarLzma, engine.TarZstd, engine.TarLz4,
	}
	levels := []engine.CompressionLevel{engine.LevelNone, engine.LevelAverage, engine.LevelMaximum}

	for _, f := range formats {
		for _, level := range levels {
			t.Run(f.String()+"/"+level.String(), func(t *testing.T) {
				compressed := compress(t, f, level, payload)
				assert.Equal(t, payload, decompress(t, f, compressed))
			})
		}
	}
}

func TestCompressionShrinks(t *testing.T) {
	payload := []byte(strings.Repeat("a", 64*1024))
	for _, f := range []engine.Format{engine.Gzip, engine.Bzip, engine.Lzma, engine.Zstd, engine.Lz4} {
		t.Run(f.String(), func(t *testing.T) {
			compressed := compress(t, f, engine.LevelAverage, payload)
			assert.Less(t, len(compressed), len(payload))
		})
	}
}

func TestWritable(t *testing.T) {
	assert.True(t, Writable(engine.TarGzip))
	assert.True(t, Writable(engine.Tar))
	assert.False(t, Writable(engine.TarLzw))
	assert.False(t, Writable(engine.Zip))
	assert.True(t, Supported(engine.TarLzw))
}

func TestNewWriter_Lzw(t *testing.T) {
	_, err := NewWriter(engine.TarLzw, io.Discard, engine.LevelAverage)
	require.ErrorIs(t, err, ErrNoWriter)
}

func TestNewReader_Unsupported(t *testing.T) {
	_, err := NewReader(t.Context(), engine.Zip, bytes.NewReader(nil))
	require.ErrorIs(t, err, engine.ErrUnsupportedFormat)
}

func TestNewReader_Lzw(t *testing.T) {
	if !LzwAvailable() {
		t.Skip("gzip binary not installed")
	}
	// gzip -dc also accepts gzip input, which is enough to exercise the pipe.
	compressed := compress(t, engine.Gzip, engine.LevelAverage, []byte("hello"))
	assert.Equal(t, []byte("hello"), decompress(t, engine.TarLzw, compressed))
}
