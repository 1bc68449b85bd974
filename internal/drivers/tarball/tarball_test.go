package tarball

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/archivekit/archivekit/internal/engine/sinks"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSources(t *testing.T, files [][2]string) []engine.Source {
	t.Helper()
	dir := t.TempDir()
	sources := make([]engine.Source, 0, len(files))
	for _, f := range files {
		p := filepath.Join(dir, filepath.FromSlash(f[0]))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(f[1]), 0o644))
		sources = append(sources, engine.Source{Name: f[0], Path: p})
	}
	return sources
}

func createArchive(t *testing.T, f engine.Format) string {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "test"+f.Extension())
	sources := writeSources(t, [][2]string{
		{"a.txt", "hello"},
		{"sub/b.txt", "world"},
	})
	sources = append(sources, engine.Source{Name: "empty"})
	n, err := New().Create(t.Context(), dest, f, sources, engine.CreateOptions{Level: engine.LevelAverage})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	return dest
}

var writableFormats = []engine.Format{
	engine.Tar, engine.TarGzip, engine.TarBzip, engine.TarLzma, engine.TarZstd, engine.TarLz4,
}

func TestKind_Capabilities(t *testing.T) {
	k := New()
	for _, f := range writableFormats {
		assert.True(t, k.Capabilities(f).Has(engine.CapOpen|engine.CapAppend|engine.CapDelete|engine.CapCreate), f.String())
		assert.False(t, k.Capabilities(f).Has(engine.CapSetComment), f.String())
	}
	assert.Zero(t, k.Capabilities(engine.Zip))
	assert.Zero(t, k.Capabilities(engine.Gzip))

	noGzip := New(WithGzipBinary("definitely-not-a-gzip-binary"))
	assert.Zero(t, noGzip.Capabilities(engine.TarLzw))
}

func TestDriver_RoundTrip(t *testing.T) {
	for _, f := range writableFormats {
		t.Run(f.String(), func(t *testing.T) {
			d, err := New().Open(t.Context(), createArchive(t, f), f, engine.OpenOptions{})
			require.NoError(t, err)
			defer func() { require.NoError(t, d.Close()) }()
			ctx := t.Context()

			names, err := d.EntryNames(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a.txt", "sub/b.txt"}, names)

			data, err := d.ReadAll(ctx, "sub/b.txt")
			require.NoError(t, err)
			assert.Equal(t, "world", string(data))

			e, err := d.Entry(ctx, "a.txt")
			require.NoError(t, err)
			assert.Equal(t, int64(5), e.UncompressedSize)
			assert.Equal(t, f != engine.Tar, e.IsCompressed)
			if f == engine.Tar {
				assert.Equal(t, int64(5), e.CompressedSize)
			} else {
				assert.Zero(t, e.CompressedSize)
			}

			// Summary is stable across calls.
			first, err := d.Summary(ctx)
			require.NoError(t, err)
			second, err := d.Summary(ctx)
			require.NoError(t, err)
			assert.Equal(t, first, second)
			assert.Equal(t, int64(10), first.UncompressedFilesSize)
		})
	}
}

func TestDriver_Extract(t *testing.T) {
	d, err := New().Open(t.Context(), createArchive(t, engine.TarGzip), engine.TarGzip, engine.OpenOptions{})
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	fs := afero.NewMemMapFs()
	n, err := d.Extract(t.Context(), sinks.NewFilesystemSink(fs), []string{"sub"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := afero.ReadFile(fs, filepath.Join("sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))
	exists, err := afero.Exists(fs, "a.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = d.Extract(t.Context(), sinks.NewFilesystemSink(fs), []string{"a.txt", "missing"})
	require.ErrorIs(t, err, engine.ErrNotFound)
	exists, err = afero.Exists(fs, "a.txt")
	require.NoError(t, err)
	assert.False(t, exists, "nothing is written when a path is missing")
}

func TestDriver_Mutations(t *testing.T) {
	for _, f := range []engine.Format{engine.Tar, engine.TarZstd} {
		t.Run(f.String(), func(t *testing.T) {
			path := createArchive(t, f)
			d, err := New().Open(t.Context(), path, f, engine.OpenOptions{})
			require.NoError(t, err)
			defer func() { _ = d.Close() }()
			ctx := t.Context()

			require.NoError(t, d.AddBytes(ctx, "c.txt", []byte("third")))
			n, err := d.Add(ctx, writeSources(t, [][2]string{{"a.txt", "replaced"}}))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			data, err := d.ReadAll(ctx, "a.txt")
			require.NoError(t, err)
			assert.Equal(t, "replaced", string(data))

			n, err = d.Delete(ctx, []string{"sub/b.txt"})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			// A fresh open sees the rewritten archive.
			reopened, err := New().Open(ctx, path, f, engine.OpenOptions{})
			require.NoError(t, err)
			defer func() { _ = reopened.Close() }()
			names, err := reopened.EntryNames(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"a.txt", "c.txt"}, names)
		})
	}
}

func TestDriver_RejectsUnsafeMutations(t *testing.T) {
	path := createArchive(t, engine.TarGzip)
	d, err := New().Open(t.Context(), path, engine.TarGzip, engine.OpenOptions{})
	require.NoError(t, err)
	defer func() { _ = d.Close() }()
	ctx := t.Context()

	for _, p := range []string{".", "/", "./"} {
		n, err := d.Delete(ctx, []string{p})
		require.ErrorIs(t, err, engine.ErrUnsafePath, p)
		assert.Zero(t, n)
	}
	for _, name := range []string{"a/../../bad.txt", "../bad.txt", ""} {
		require.ErrorIs(t, d.AddBytes(ctx, name, []byte("x")), engine.ErrUnsafePath, name)
	}
	_, err = d.Add(ctx, []engine.Source{{Name: "../up"}})
	require.ErrorIs(t, err, engine.ErrUnsafePath)

	names, err := d.EntryNames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "sub/b.txt"}, names)
}

func TestDriver_Unsupported(t *testing.T) {
	d, err := New().Open(t.Context(), createArchive(t, engine.Tar), engine.Tar, engine.OpenOptions{})
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	comment := "x"
	require.ErrorIs(t, d.SetComment(t.Context(), &comment), engine.ErrUnsupportedOperation)
	c, err := d.Comment(t.Context())
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = New().Open(t.Context(), createArchive(t, engine.Tar), engine.Tar, engine.OpenOptions{Password: "pw"})
	require.ErrorIs(t, err, engine.ErrUnsupportedOperation)
}

func TestKind_CreateTo(t *testing.T) {
	var buf bytes.Buffer
	n, err := New().CreateTo(t.Context(), &buf, engine.TarGzip, writeSources(t, [][2]string{{"x", "y"}}), engine.CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []byte{0x1f, 0x8b}, buf.Bytes()[:2])

	_, err = New().CreateTo(t.Context(), &buf, engine.TarLzw, nil, engine.CreateOptions{})
	require.ErrorIs(t, err, engine.ErrUnsupportedOperation)
}

func TestDriver_Lzw(t *testing.T) {
	gzipPath, err := exec.LookPath("gzip")
	if err != nil {
		t.Skip("gzip not installed")
	}
	compress, err := exec.LookPath("compress")
	if err != nil {
		t.Skip("compress not installed")
	}

	tarPath := createArchive(t, engine.Tar)
	require.NoError(t, exec.Command(compress, "-f", tarPath).Run())

	k := New(WithGzipBinary(gzipPath))
	d, err := k.Open(t.Context(), tarPath+".Z", engine.TarLzw, engine.OpenOptions{})
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	data, err := d.ReadAll(t.Context(), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = d.Delete(t.Context(), []string{"a.txt"})
	require.ErrorIs(t, err, engine.ErrUnsupportedOperation)
}
