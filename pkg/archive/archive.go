// Package archive is the entry point for working with archives: it detects
// the format, picks a driver able to serve the request and keeps a cached
// summary of the contents that is refreshed after every mutation.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/archivekit/archivekit/internal/engine/detect"
	"github.com/archivekit/archivekit/internal/engine/sinks"
	"github.com/archivekit/archivekit/internal/fileset"
	"github.com/archivekit/archivekit/internal/query"
	"github.com/archivekit/archivekit/internal/remote"
	"go.uber.org/zap"
)

type openOptions struct {
	password   string
	resolver   *engine.Resolver
	logger     *zap.Logger
	format     engine.Format
	downloader *remote.Downloader
}

type Option func(*openOptions)

// WithPassword opens encrypted archives. Single-file compressed formats
// ignore it.
func WithPassword(password string) Option {
	return func(o *openOptions) {
		o.password = password
	}
}

// WithResolver selects drivers from r instead of DefaultResolver.
func WithResolver(r *engine.Resolver) Option {
	return func(o *openOptions) {
		o.resolver = r
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *openOptions) {
		o.logger = logger
	}
}

// WithFormat skips detection.
func WithFormat(f engine.Format) Option {
	return func(o *openOptions) {
		o.format = f
	}
}

// WithDownloader sets the downloader used by OpenURL.
func WithDownloader(d *remote.Downloader) Option {
	return func(o *openOptions) {
		o.downloader = d
	}
}

func newOpenOptions(opts []Option) (openOptions, error) {
	o := openOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.resolver == nil {
		r, err := DefaultResolver()
		if err != nil {
			return o, err
		}
		o.resolver = r
	}
	return o, nil
}

// Archive is an opened archive. It is not safe for concurrent use.
type Archive struct {
	path         string
	format       engine.Format
	driver       engine.Driver
	summary      engine.Information
	originalSize int64
	logger       *zap.Logger
	cleanup      func() error
}

// Open detects the format of the file at path, selects the first driver able
// to open it and caches the archive summary. A missing or undetectable file
// fails with an *engine.UnsupportedFormatError.
func Open(ctx context.Context, path string, opts ...Option) (*Archive, error) {
	o, err := newOpenOptions(opts)
	if err != nil {
		return nil, err
	}

	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return nil, &engine.UnsupportedFormatError{Path: path}
	}

	f := o.format
	if f == engine.None {
		f = detect.Detect(path, true)
	}

	required := engine.CapOpen
	if o.password != "" && !f.SingleFile() {
		required |= engine.CapOpenEncrypted
	}
	kind, err := o.resolver.SelectDriver(f, required)
	if err != nil {
		var ufe *engine.UnsupportedFormatError
		if errors.As(err, &ufe) {
			ufe.Path = path
		}
		return nil, err
	}

	logger := o.logger.With(zap.String("driver", kind.Name()), zap.Stringer("format", f))
	driver, err := kind.Open(ctx, path, f, engine.OpenOptions{Password: o.password, Logger: logger})
	if err != nil {
		return nil, err
	}

	a := &Archive{
		path:         path,
		format:       f,
		driver:       driver,
		originalSize: st.Size(),
		logger:       logger,
	}
	if err := a.refresh(ctx); err != nil {
		_ = driver.Close()
		return nil, err
	}
	logger.Debug("opened archive", zap.String("path", path), zap.Int("files", len(a.summary.Files)))
	return a, nil
}

// OpenURL downloads an http(s) archive to a temporary directory and opens
// it. The download is removed on Close.
func OpenURL(ctx context.Context, rawURL string, opts ...Option) (*Archive, error) {
	o, err := newOpenOptions(opts)
	if err != nil {
		return nil, err
	}
	d := o.downloader
	if d == nil {
		d = remote.New(remote.Config{}, remote.WithLogger(o.logger))
	}

	dl, err := d.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	a, err := Open(ctx, dl.Path, opts...)
	if err != nil {
		_ = dl.Remove()
		return nil, err
	}
	a.cleanup = dl.Remove
	return a, nil
}

func (a *Archive) refresh(ctx context.Context) error {
	summary, err := a.driver.Summary(ctx)
	if err != nil {
		return err
	}
	a.summary = summary
	if st, err := os.Stat(a.path); err == nil {
		a.originalSize = st.Size()
	}
	return nil
}

func (a *Archive) Path() string          { return a.path }
func (a *Archive) Format() engine.Format { return a.format }

// Driver returns the name of the driver serving the archive.
func (a *Archive) Driver() string { return a.driver.Kind().Name() }

// Capabilities returns what the serving driver can do with this format.
func (a *Archive) Capabilities() engine.Capability {
	return a.driver.Kind().Capabilities(a.format)
}

func (a *Archive) Info() engine.Information { return a.summary }
func (a *Archive) CountFiles() int          { return len(a.summary.Files) }
func (a *Archive) EntryNames() []string     { return append([]string(nil), a.summary.Files...) }
func (a *Archive) CompressedSize() int64    { return a.summary.CompressedFilesSize }
func (a *Archive) UncompressedSize() int64  { return a.summary.UncompressedFilesSize }

// OriginalSize is the size of the archive file on disk.
func (a *Archive) OriginalSize() int64 { return a.originalSize }

// Tree reconstructs the directory hierarchy of the entries.
func (a *Archive) Tree() *engine.Node { return engine.BuildTree(a.summary.Files) }

// Directories lists every directory implied by an entry path.
func (a *Archive) Directories() []string { return engine.Directories(a.summary.Files) }

func (a *Archive) HasEntry(ctx context.Context, path string) (bool, error) {
	return a.driver.HasEntry(ctx, path)
}

func (a *Archive) Entry(ctx context.Context, path string) (engine.Entry, error) {
	return a.driver.Entry(ctx, path)
}

// Entries returns the entries matching filter, or all of them when filter is
// nil.
func (a *Archive) Entries(ctx context.Context, filter *query.Filter) ([]engine.Entry, error) {
	entries, err := a.driver.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return filter.Apply(ctx, entries)
}

func (a *Archive) ReadAll(ctx context.Context, path string) ([]byte, error) {
	return a.driver.ReadAll(ctx, path)
}

func (a *Archive) OpenEntry(ctx context.Context, path string) (io.ReadCloser, error) {
	return a.driver.OpenEntry(ctx, path)
}

// Extract writes the given entries, or all of them, below dir.
func (a *Archive) Extract(ctx context.Context, dir string, paths ...string) (n int, err error) {
	sink, err := sinks.NewFilesystemSinkFromPath(dir)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := sink.Close(ctx); err == nil {
			err = cerr
		}
	}()
	return a.ExtractTo(ctx, sink, paths...)
}

// ExtractTo writes the given entries, or all of them, to sink. The sink is
// left open.
func (a *Archive) ExtractTo(ctx context.Context, sink engine.Sink, paths ...string) (int, error) {
	n, err := a.driver.Extract(ctx, sink, paths)
	if err != nil {
		return n, err
	}
	a.logger.Debug("extracted entries", zap.String("sink", sink.Name()), zap.Int("files", n))
	return n, nil
}

func (a *Archive) Comment(ctx context.Context) (*string, error) {
	return a.driver.Comment(ctx)
}

// AddFiles adds a map of archive names to local paths. Directories are added
// recursively; an empty path adds an empty directory.
func (a *Archive) AddFiles(ctx context.Context, files map[string]string) (int, error) {
	return a.addInput(ctx, fileset.Map(files))
}

// AddFile adds one local file under name, or under its base name when name
// is empty.
func (a *Archive) AddFile(ctx context.Context, source, name string) (int, error) {
	if name == "" {
		name = filepath.Base(source)
	}
	return a.addInput(ctx, fileset.Map(map[string]string{name: source}))
}

// AddDirectory adds the contents of dir below prefix, or at the root when
// prefix is empty.
func (a *Archive) AddDirectory(ctx context.Context, dir, prefix string) (int, error) {
	if prefix == "" {
		return a.addInput(ctx, fileset.Paths(dir))
	}
	return a.addInput(ctx, fileset.Map(map[string]string{prefix: dir}))
}

func (a *Archive) addInput(ctx context.Context, in fileset.Input) (int, error) {
	if err := a.require(engine.CapAppend, "add"); err != nil {
		return 0, err
	}
	items, err := fileset.Expand(in)
	if err != nil {
		return 0, err
	}
	n, err := a.driver.Add(ctx, fileset.Sources(items))
	if err != nil {
		return n, err
	}
	return n, a.refresh(ctx)
}

func (a *Archive) AddBytes(ctx context.Context, name string, data []byte) error {
	if err := a.driver.AddBytes(ctx, name, data); err != nil {
		return err
	}
	return a.refresh(ctx)
}

// Delete removes the given entries; a directory path removes everything
// below it.
func (a *Archive) Delete(ctx context.Context, paths ...string) (int, error) {
	n, err := a.driver.Delete(ctx, paths)
	if err != nil {
		return n, err
	}
	return n, a.refresh(ctx)
}

// SetComment replaces the archive comment; nil removes it.
func (a *Archive) SetComment(ctx context.Context, comment *string) error {
	if err := a.driver.SetComment(ctx, comment); err != nil {
		return err
	}
	return a.refresh(ctx)
}

// require fails fast before touching the filesystem when the driver lacks c.
func (a *Archive) require(c engine.Capability, op string) error {
	if !a.Capabilities().Has(c) {
		return &engine.UnsupportedOperationError{Driver: a.Driver(), Format: a.format, Operation: op}
	}
	return nil
}

// Close releases the driver and removes any download. A second Close fails
// with engine.ErrClosed.
func (a *Archive) Close() error {
	err := a.driver.Close()
	if a.cleanup != nil {
		err = errors.Join(err, a.cleanup())
		a.cleanup = nil
	}
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", a.path, err)
	}
	return nil
}
