package compressed

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/archivekit/archivekit/internal/engine/sinks"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryName(t *testing.T) {
	tests := []struct {
		path   string
		format engine.Format
		want   string
	}{
		{"/tmp/report.csv.gz", engine.Gzip, "report.csv"},
		{"/tmp/REPORT.GZ", engine.Gzip, "REPORT"},
		{"dump.sql.bz2", engine.Bzip, "dump.sql"},
		{"data.xz", engine.Lzma, "data"},
		{"legacy.lzma", engine.Lzma, "legacy"},
		{"frame.zst", engine.Zstd, "frame"},
		{"frame.lz4", engine.Lz4, "frame"},
		{"no-extension", engine.Gzip, "no-extension"},
		{".gz", engine.Gzip, "data"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, EntryName(tt.path, tt.format))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	content := strings.Repeat("compressible line of text\n", 200)
	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))

	for _, f := range New().SupportedFormats() {
		t.Run(f.String(), func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "notes.txt"+f.Extension())
			n, err := New().Create(t.Context(), dest, f, []engine.Source{{Name: "notes.txt", Path: src}}, engine.CreateOptions{Level: engine.LevelMaximum})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			d, err := New().Open(t.Context(), dest, f, engine.OpenOptions{Password: "ignored"})
			require.NoError(t, err)
			defer func() { require.NoError(t, d.Close()) }()

			names, err := d.EntryNames(t.Context())
			require.NoError(t, err)
			assert.Equal(t, []string{"notes.txt"}, names)

			e, err := d.Entry(t.Context(), "notes.txt")
			require.NoError(t, err)
			assert.Equal(t, int64(len(content)), e.UncompressedSize)
			assert.Less(t, e.CompressedSize, e.UncompressedSize)

			data, err := d.ReadAll(t.Context(), "notes.txt")
			require.NoError(t, err)
			assert.Equal(t, content, string(data))

			fs := afero.NewMemMapFs()
			n, err = d.Extract(t.Context(), sinks.NewFilesystemSink(fs), nil)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			extracted, err := afero.ReadFile(fs, "notes.txt")
			require.NoError(t, err)
			assert.Equal(t, content, string(extracted))
		})
	}
}

func TestCreateTo_Errors(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))
	k := New()
	var buf bytes.Buffer

	_, err := k.CreateTo(t.Context(), &buf, engine.Gzip, []engine.Source{{Name: "a", Path: src}, {Name: "b", Path: src}}, engine.CreateOptions{})
	require.ErrorIs(t, err, ErrSingleFile)

	_, err = k.CreateTo(t.Context(), &buf, engine.Gzip, []engine.Source{{Name: "dir"}}, engine.CreateOptions{})
	require.ErrorIs(t, err, ErrSingleFile)

	_, err = k.CreateTo(t.Context(), &buf, engine.Gzip, []engine.Source{{Name: "a", Path: src}}, engine.CreateOptions{Password: "pw"})
	require.ErrorIs(t, err, engine.ErrUnsupportedOperation)

	_, err = k.CreateTo(t.Context(), &buf, engine.Zip, []engine.Source{{Name: "a", Path: src}}, engine.CreateOptions{})
	require.ErrorIs(t, err, engine.ErrUnsupportedFormat)
}

func TestDriver_ReadOnly(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))
	dest := filepath.Join(t.TempDir(), "a.txt.gz")
	_, err := New().Create(t.Context(), dest, engine.Gzip, []engine.Source{{Name: "a.txt", Path: src}}, engine.CreateOptions{})
	require.NoError(t, err)

	d, err := New().Open(t.Context(), dest, engine.Gzip, engine.OpenOptions{})
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	require.ErrorIs(t, d.AddBytes(t.Context(), "b", []byte("b")), engine.ErrUnsupportedOperation)
	_, err = d.Delete(t.Context(), []string{"a.txt"})
	require.ErrorIs(t, err, engine.ErrUnsupportedOperation)
}

func TestOpen_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.gz")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	_, err := New().Open(t.Context(), path, engine.Gzip, engine.OpenOptions{})
	require.ErrorIs(t, err, engine.ErrOpen)
}
