package remote

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://example.com/a.zip", true},
		{"http://example.com/a.tar.gz", true},
		{"ftp://example.com/a.zip", false},
		{"/tmp/a.zip", false},
		{"a.zip", false},
		{"https://", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsURL(tt.in))
		})
	}
}

func TestFetch(t *testing.T) {
	var userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/files/data.tar.gz":
			_, _ = w.Write([]byte("payload"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("no such file"))
		}
	}))
	defer server.Close()

	d := New(Config{Headers: map[string]string{"User-Agent": "custom"}}, WithHttpClient(server.Client()))

	t.Run("success", func(t *testing.T) {
		dl, err := d.Fetch(t.Context(), server.URL+"/files/data.tar.gz?token=x")
		require.NoError(t, err)
		assert.Equal(t, "data.tar.gz", filepath.Base(dl.Path))
		assert.Equal(t, "custom", userAgent)

		data, err := os.ReadFile(dl.Path)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))

		require.NoError(t, dl.Remove())
		_, err = os.Stat(dl.Path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("status error", func(t *testing.T) {
		_, err := d.Fetch(t.Context(), server.URL+"/missing.zip")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
		assert.Contains(t, err.Error(), "no such file")
	})

	t.Run("bad scheme", func(t *testing.T) {
		_, err := d.Fetch(t.Context(), "file:///etc/passwd")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http or https")
	})
}

func TestFileName(t *testing.T) {
	for in, want := range map[string]string{
		"https://h/a/b.zip": "b.zip",
		"https://h/":        "download",
		"https://h":         "download",
	} {
		u, err := http.NewRequest(http.MethodGet, in, nil)
		require.NoError(t, err)
		assert.Equal(t, want, fileName(u.URL), in)
	}
}
