// Package remote downloads archives served over http(s) so they can be
// opened like local files.
package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	DefaultTimeout   = 5 * time.Minute
	DefaultUserAgent = "archivekit/0.1.0"
)

var defaultHeaders = map[string]string{
	"User-Agent": DefaultUserAgent,
	"Accept":     "*/*",
}

type Config struct {
	Headers  map[string]string
	Timeout  time.Duration
	Insecure bool
}

// Downloader fetches remote archives into local temporary directories.
type Downloader struct {
	httpClient *http.Client
	headers    map[string]string
	logger     *zap.Logger
}

type Option func(*Downloader)

func WithHttpClient(httpClient *http.Client) Option {
	return func(d *Downloader) {
		d.httpClient = httpClient
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

func New(cfg Config, opts ...Option) *Downloader {
	d := &Downloader{
		headers: lo.Assign(defaultHeaders, cfg.Headers),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}

		transport := cleanhttp.DefaultPooledTransport()
		if cfg.Insecure {
			if transport.TLSClientConfig == nil {
				transport.TLSClientConfig = &tls.Config{}
			}
			transport.TLSClientConfig.InsecureSkipVerify = true
		}

		d.httpClient = &http.Client{
			Transport: transport,
			Timeout:   timeout,
		}
	}
	return d
}

// IsURL reports whether s is an http(s) URL rather than a local path.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Download is a fetched archive. Remove deletes its temporary directory.
type Download struct {
	Path string
	dir  string
}

func (d *Download) Remove() error {
	return os.RemoveAll(d.dir)
}

// Fetch downloads rawURL into a fresh temporary directory, keeping the URL's
// file name so extension based detection still works.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (*Download, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url '%s': %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url must use http or https scheme, got: %s", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}

	d.logger.Debug("downloading archive", zap.String("url", u.Redacted()))
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	dir, err := os.MkdirTemp("", "archivekit-remote-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	dl := &Download{Path: filepath.Join(dir, fileName(u)), dir: dir}

	n, err := writeFile(dl.Path, resp.Body)
	if err != nil {
		_ = dl.Remove()
		return nil, fmt.Errorf("failed to download %s: %w", u.Redacted(), err)
	}
	d.logger.Debug("archive downloaded", zap.String("path", dl.Path), zap.Int64("bytes", n))
	return dl, nil
}

func writeFile(p string, r io.Reader) (int64, error) {
	f, err := os.Create(p)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func fileName(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "download"
	}
	return name
}
