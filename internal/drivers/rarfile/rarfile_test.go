package rarfile

import (
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

func TestKind(t *testing.T) {
	k := New()
	caps := k.Capabilities(engine.Rar)
	assert.True(t, caps.Has(engine.CapOpen|engine.CapOpenEncrypted|engine.CapOpenVolumed|engine.CapStreamContent))
	assert.False(t, caps.Any(engine.CapCreate|engine.CapAppend|engine.CapDelete|engine.CapSetComment))
	assert.Zero(t, k.Capabilities(engine.Zip))
	assert.True(t, k.Available())
}

func TestKind_OpenGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.rar")
	require.NoError(t, os.WriteFile(path, []byte("this is not a rar archive at all"), 0o644))

	_, err := New().Open(t.Context(), path, engine.Rar, engine.OpenOptions{})
	require.ErrorIs(t, err, engine.ErrOpen)
}

// buildRar creates an archive with the rar binary, which is not free
// software and rarely installed.
func buildRar(t *testing.T) string {
	t.Helper()
	bin, err := exec.LookPath("rar")
	if err != nil {
		t.Skip("rar not installed")
	}
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("world"), 0o644))

	dest := filepath.Join(t.TempDir(), "test.rar")
	cmd := exec.Command(bin, "a", "-r", "-y", dest, "a.txt", "sub")
	cmd.Dir = src
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	return dest
}

func TestDriver_Read(t *testing.T) {
	d, err := New().Open(t.Context(), buildRar(t), engine.Rar, engine.OpenOptions{})
	require.NoError(t, err)
	defer func() { require.NoError(t, d.Close()) }()
	ctx := t.Context()

	names, err := d.EntryNames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "sub/b.txt"}, names)

	data, err := d.ReadAll(ctx, "sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	fs := afero.NewMemMapFs()
	n, err := d.Extract(ctx, sinks.NewFilesystemSink(fs), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	content, err := afero.ReadFile(fs, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}
