package fileset

import (
	"testing"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for p, content := range files {
		require.NoError(t, afero.WriteFile(fs, p, []byte(content), 0o644))
	}
	return fs
}

func names(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func TestExpand_Paths(t *testing.T) {
	fs := memFs(t, map[string]string{
		"/src/a.txt":     "hello",
		"/src/sub/b.txt": "world",
		"/other/c.txt":   "!",
	})

	items, err := Expand(Paths("/src", "/other/c.txt"), WithFs(fs))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "sub", "sub/b.txt", "c.txt"}, names(items))
	assert.True(t, items[1].IsDir())
	assert.Equal(t, "/src/sub/b.txt", items[2].Path)
	assert.Equal(t, int64(5), items[2].Size)
}

func TestExpand_Map(t *testing.T) {
	fs := memFs(t, map[string]string{
		"/src/a.txt":  "hello",
		"/data/x.bin": "xyz",
	})

	items, err := Expand(Map(map[string]string{
		"docs/readme.txt": "/src/a.txt",
		"bin":             "/data",
		"empty":           "",
	}), WithFs(fs))
	require.NoError(t, err)
	assert.Equal(t, []string{"bin", "bin/x.bin", "docs/readme.txt", "empty"}, names(items))
	assert.True(t, items[3].IsDir())
}

func TestExpand_FirstNameWins(t *testing.T) {
	fs := memFs(t, map[string]string{
		"/one/a.txt": "first",
		"/two/a.txt": "second",
	})

	items, err := Expand(Paths("/one/a.txt", "/two/a.txt"), WithFs(fs))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "/one/a.txt", items[0].Path)
}

func TestExpand_Exclude(t *testing.T) {
	fs := memFs(t, map[string]string{
		"/src/a.txt":         "a",
		"/src/a.log":         "log",
		"/src/cache/x.txt":   "x",
		"/src/keep/deep.log": "d",
	})

	items, err := Expand(Paths("/src"), WithFs(fs), WithExclude("*.log", "cache/", " "))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "keep"}, names(items))
}

func TestExpand_Errors(t *testing.T) {
	fs := memFs(t, map[string]string{"/src/a.txt": "a"})

	_, err := Expand(Paths("/missing"), WithFs(fs))
	require.Error(t, err)

	for _, name := range []string{"..", "../evil.txt", "a/../../bad.txt", "/", "."} {
		_, err = Expand(Map(map[string]string{name: "/src/a.txt"}), WithFs(fs))
		require.ErrorIs(t, err, engine.ErrUnsafePath, name)
	}

	require.NoError(t, fs.MkdirAll("/empty", 0o755))
	_, err = Expand(Paths("/empty"), WithFs(fs))
	require.ErrorIs(t, err, ErrNoFiles)
}

func TestSummarize(t *testing.T) {
	items := []Item{
		{Source: engine.Source{Name: "a.txt", Path: "/a"}, Size: 5},
		{Source: engine.Source{Name: "sub"}},
		{Source: engine.Source{Name: "sub/b.txt", Path: "/b"}, Size: 7},
	}

	r := Summarize(items)
	assert.Equal(t, int64(12), r.TotalSize)
	assert.Equal(t, 2, r.FileCount)
	assert.Equal(t, []string{"a.txt", "sub/", "sub/b.txt"}, r.Files)
	assert.Len(t, Sources(items), 3)
}
