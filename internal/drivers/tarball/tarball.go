// Package tarball is the native driver for tar archives, plain or behind any
// compression filter.
package tarball

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/archivekit/archivekit/internal/engine/archivers"
	"github.com/archivekit/archivekit/internal/engine/filters"
	"go.uber.org/zap"
)

const Name = "tar"

const writable = engine.CapOpen |
	engine.CapExtractContent |
	engine.CapStreamContent |
	engine.CapAppend |
	engine.CapDelete |
	engine.CapCreate |
	engine.CapCreateInString

const readOnly = engine.CapOpen | engine.CapExtractContent | engine.CapStreamContent

// Kind describes the tar driver.
type Kind struct {
	filterOpts []filters.Option
}

// Option configures a Kind.
type Option func(*Kind)

// WithGzipBinary sets the gzip executable used to read .tar.Z archives.
func WithGzipBinary(path string) Option {
	return func(k *Kind) {
		k.filterOpts = append(k.filterOpts, filters.WithGzipBinary(path))
	}
}

func New(opts ...Option) *Kind {
	k := &Kind{}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Kind) Name() string { return Name }

func (k *Kind) SupportedFormats() []engine.Format {
	return []engine.Format{
		engine.Tar, engine.TarGzip, engine.TarBzip, engine.TarLzma,
		engine.TarZstd, engine.TarLz4, engine.TarLzw,
	}
}

func (k *Kind) Capabilities(f engine.Format) engine.Capability {
	switch {
	case f == engine.TarLzw:
		if filters.LzwAvailable(k.filterOpts...) {
			return readOnly
		}
		return 0
	case f.IsTar() && filters.Writable(f):
		return writable
	default:
		return 0
	}
}

func (k *Kind) Available() bool { return true }

func (k *Kind) InstallInstruction() string {
	return "install gzip to read .tar.Z archives"
}

func (k *Kind) Open(ctx context.Context, path string, f engine.Format, opts engine.OpenOptions) (engine.Driver, error) {
	if k.Capabilities(f) == 0 {
		return nil, &engine.UnsupportedFormatError{Format: f, Path: path}
	}
	if err := engine.CheckPassword(k, f, opts.Password); err != nil {
		return nil, err
	}

	d := &Driver{kind: k, logger: opts.Log().With(zap.String("driver", Name))}
	d.Catalog = engine.NewCatalog(engine.NewBase(k, f, path), engine.NewIndex(), d.open)
	if err := d.load(ctx); err != nil {
		return nil, engine.WrapOp(engine.OpOpen, Name, path, err)
	}
	d.logger.Debug("opened archive",
		zap.String("path", path),
		zap.Stringer("format", f),
		zap.Int("files", d.Index().Len()))
	return d, nil
}

// Create writes a new tar archive at dest.
func (k *Kind) Create(ctx context.Context, dest string, f engine.Format, sources []engine.Source, opts engine.CreateOptions) (int, error) {
	var n int
	err := engine.WriteAtomic(dest, func(w io.Writer) error {
		var err error
		n, err = k.CreateTo(ctx, w, f, sources, opts)
		return err
	})
	if err != nil {
		return 0, engine.WrapOp(engine.OpCreate, Name, dest, err)
	}
	return n, nil
}

// CreateTo streams a new tar archive to w.
func (k *Kind) CreateTo(ctx context.Context, w io.Writer, f engine.Format, sources []engine.Source, opts engine.CreateOptions) (int, error) {
	if !k.Capabilities(f).Has(engine.CapCreate) {
		return 0, &engine.UnsupportedOperationError{Driver: Name, Format: f, Operation: "create"}
	}
	if opts.Password != "" {
		return 0, &engine.UnsupportedOperationError{Driver: Name, Format: f, Operation: "create encrypted"}
	}

	a, err := archivers.NewTarArchiver(w, f, opts.Level)
	if err != nil {
		return 0, err
	}
	n, err := engine.ArchiveSources(ctx, a, sources, opts.Progress)
	if err != nil {
		return n, err
	}
	if err := a.Close(); err != nil {
		return n, err
	}
	opts.Log().Debug("created archive", zap.String("driver", Name), zap.Stringer("format", f), zap.Int("sources", n))
	return n, nil
}

// Driver is an open tar archive. The archive is re-read from the start for
// every content access.
type Driver struct {
	engine.Catalog
	kind   *Kind
	logger *zap.Logger
}

// scan walks every header of the archive. fn may read the content from tr.
// Returning errStop ends the walk early.
func (d *Driver) scan(ctx context.Context, fn func(hdr *tar.Header, tr *tar.Reader) error) (err error) {
	f, err := os.Open(d.Path())
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	r, err := filters.NewReader(ctx, d.Format(), f, d.kind.filterOpts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, r.Close())
	}()

	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}
		if err := fn(hdr, tr); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
}

var errStop = errors.New("stop")

func isFile(hdr *tar.Header) bool {
	return hdr.Typeflag == tar.TypeReg && !engine.IsDirName(hdr.Name)
}

func (d *Driver) load(ctx context.Context) error {
	compressed := d.Format() != engine.Tar
	index := engine.NewIndex()
	err := d.scan(ctx, func(hdr *tar.Header, _ *tar.Reader) error {
		if !isFile(hdr) {
			return nil
		}
		e := engine.Entry{
			Path:             hdr.Name,
			UncompressedSize: hdr.Size,
			ModTime:          hdr.ModTime,
			IsCompressed:     compressed,
		}
		// Per-entry compressed sizes are unknown behind a stream filter.
		if !compressed {
			e.CompressedSize = hdr.Size
		}
		index.Add(e)
		return nil
	})
	if err != nil {
		return err
	}
	d.SetIndex(index)
	return nil
}

func (d *Driver) open(ctx context.Context, e engine.Entry) (_ io.ReadCloser, err error) {
	f, err := os.Open(d.Path())
	if err != nil {
		return nil, err
	}
	r, err := filters.NewReader(ctx, d.Format(), f, d.kind.filterOpts...)
	if err != nil {
		return nil, errors.Join(err, f.Close())
	}
	rc := &entryReader{file: f, filter: r}
	defer func() {
		if err != nil {
			err = errors.Join(err, rc.Close())
		}
	}()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, &engine.NotFoundError{Path: e.Path}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar header: %w", err)
		}
		if isFile(hdr) && engine.NormalizePath(hdr.Name) == e.Path {
			rc.Reader = tr
			return rc, nil
		}
	}
}

// entryReader streams one entry and releases the archive on Close.
type entryReader struct {
	io.Reader
	file   *os.File
	filter io.ReadCloser
}

func (r *entryReader) Close() error {
	return errors.Join(r.filter.Close(), r.file.Close())
}

// Extract writes the selected entries in a single pass over the archive.
func (d *Driver) Extract(ctx context.Context, sink engine.Sink, paths []string) (int, error) {
	if err := d.CheckOpen(); err != nil {
		return 0, err
	}
	entries, err := d.Index().Resolve(paths)
	if err != nil {
		return 0, err
	}
	wanted := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if err := engine.CheckEntryPath(e.Path); err != nil {
			return 0, err
		}
		wanted[e.Path] = struct{}{}
	}

	n := 0
	err = d.scan(ctx, func(hdr *tar.Header, tr *tar.Reader) error {
		if !isFile(hdr) {
			return nil
		}
		name := engine.NormalizePath(hdr.Name)
		if _, ok := wanted[name]; !ok {
			return nil
		}
		// Later duplicates of a path are not part of the index.
		delete(wanted, name)
		if err := sink.Write(ctx, name, tr); err != nil {
			return fmt.Errorf("failed to extract %s: %w", name, err)
		}
		n++
		if len(wanted) == 0 {
			return errStop
		}
		return nil
	})
	return n, engine.WrapOp(engine.OpExtract, Name, d.Path(), err)
}

// Delete removes the given entries, and everything below directory paths.
func (d *Driver) Delete(ctx context.Context, paths []string) (int, error) {
	if err := d.Require(engine.CapDelete, "delete"); err != nil {
		return 0, err
	}
	if len(paths) == 0 {
		return 0, nil
	}
	entries, err := d.Index().Targets(paths)
	if err != nil {
		return 0, err
	}
	err = d.rewrite(ctx, func(name string) bool {
		return engine.Selected(name, paths)
	}, nil)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Add appends sources, replacing entries with the same name.
func (d *Driver) Add(ctx context.Context, sources []engine.Source) (int, error) {
	if err := d.Require(engine.CapAppend, "add"); err != nil {
		return 0, err
	}
	names := engine.SourceNames(sources)

	var n int
	err := d.rewrite(ctx, func(name string) bool {
		return slices.Contains(names, engine.NormalizePath(name))
	}, func(a *archivers.TarArchiver) error {
		var err error
		n, err = engine.ArchiveSources(ctx, a, sources, nil)
		return err
	})
	return n, err
}

func (d *Driver) AddBytes(ctx context.Context, name string, data []byte) error {
	if err := d.Require(engine.CapAppend, "add"); err != nil {
		return err
	}
	norm := engine.NormalizePath(name)
	if err := engine.CheckEntryPath(norm); err != nil {
		return err
	}

	return d.rewrite(ctx, func(raw string) bool {
		return engine.NormalizePath(raw) == norm
	}, func(a *archivers.TarArchiver) error {
		hdr := engine.FileHeader{Name: norm, Size: int64(len(data)), ModTime: time.Now()}
		return a.AddFile(ctx, hdr, bytes.NewReader(data))
	})
}

// rewrite streams every header not dropped by skip into a new archive of the
// same format, lets extend append to it, and swaps it in place.
func (d *Driver) rewrite(ctx context.Context, skip func(name string) bool, extend func(a *archivers.TarArchiver) error) error {
	err := engine.WriteAtomic(d.Path(), func(w io.Writer) error {
		a, err := archivers.NewTarArchiver(w, d.Format(), engine.LevelAverage)
		if err != nil {
			return err
		}
		err = d.scan(ctx, func(hdr *tar.Header, tr *tar.Reader) error {
			if skip(hdr.Name) {
				return nil
			}
			return a.WriteRaw(hdr, tr)
		})
		if err != nil {
			return err
		}
		if extend != nil {
			if err := extend(a); err != nil {
				return err
			}
		}
		return a.Close()
	})
	if err != nil {
		return engine.WrapOp(engine.OpModify, Name, d.Path(), err)
	}

	if err := d.load(ctx); err != nil {
		// The index no longer matches the file on disk.
		_ = d.MarkClosed()
		return engine.WrapOp(engine.OpModify, Name, d.Path(), err)
	}
	d.logger.Debug("rewrote archive", zap.String("path", d.Path()), zap.Int("files", d.Index().Len()))
	return nil
}

func (d *Driver) Close() error {
	return d.MarkClosed()
}

var (
	_ engine.DriverKind    = (*Kind)(nil)
	_ engine.Creator       = (*Kind)(nil)
	_ engine.StreamCreator = (*Kind)(nil)
	_ engine.Driver        = (*Driver)(nil)
)
