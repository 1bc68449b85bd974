// Package zipfile is the native zip driver. Reads go through archive/zip with
// the klauspost deflate decoder; mutations rewrite the archive by copying the
// raw compressed entries that survive.
package zipfile

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/archivekit/archivekit/internal/engine/archivers"
	"github.com/klauspost/compress/flate"
	"go.uber.org/zap"
)

const Name = "zip"

const capabilities = engine.CapOpen |
	engine.CapGetComment |
	engine.CapSetComment |
	engine.CapExtractContent |
	engine.CapStreamContent |
	engine.CapAppend |
	engine.CapDelete |
	engine.CapCreate |
	engine.CapCreateInString

// Kind describes the zip driver.
type Kind struct{}

func New() *Kind {
	return &Kind{}
}

func (k *Kind) Name() string { return Name }

func (k *Kind) SupportedFormats() []engine.Format {
	return []engine.Format{engine.Zip}
}

func (k *Kind) Capabilities(f engine.Format) engine.Capability {
	if f != engine.Zip {
		return 0
	}
	return capabilities
}

func (k *Kind) Available() bool { return true }

func (k *Kind) InstallInstruction() string { return "" }

func (k *Kind) Open(ctx context.Context, path string, f engine.Format, opts engine.OpenOptions) (engine.Driver, error) {
	if f != engine.Zip {
		return nil, &engine.UnsupportedFormatError{Format: f, Path: path}
	}
	if err := engine.CheckPassword(k, f, opts.Password); err != nil {
		return nil, err
	}

	d := &Driver{
		logger:     opts.Log().With(zap.String("driver", Name)),
		openReader: zip.OpenReader,
	}
	d.Catalog = engine.NewCatalog(engine.NewBase(k, f, path), engine.NewIndex(), d.open)
	if err := d.load(); err != nil {
		return nil, engine.WrapOp(engine.OpOpen, Name, path, err)
	}
	d.logger.Debug("opened archive", zap.String("path", path), zap.Int("files", d.Index().Len()))
	return d, nil
}

// Create writes a new zip archive at dest.
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

// CreateTo streams a new zip archive to w.
func (k *Kind) CreateTo(ctx context.Context, w io.Writer, f engine.Format, sources []engine.Source, opts engine.CreateOptions) (int, error) {
	if f != engine.Zip {
		return 0, &engine.UnsupportedFormatError{Format: f}
	}
	if opts.Password != "" {
		return 0, &engine.UnsupportedOperationError{Driver: Name, Format: f, Operation: "create encrypted"}
	}

	a := archivers.NewZipArchiver(w, opts.Level)
	n, err := engine.ArchiveSources(ctx, a, sources, opts.Progress)
	if err != nil {
		return n, err
	}
	if err := a.Close(); err != nil {
		return n, err
	}
	opts.Log().Debug("created archive", zap.String("driver", Name), zap.Int("sources", n))
	return n, nil
}

// Driver is an open zip archive.
type Driver struct {
	engine.Catalog
	rc         *zip.ReadCloser
	files      map[string]*zip.File
	logger     *zap.Logger
	openReader func(name string) (*zip.ReadCloser, error)
}

func (d *Driver) load() error {
	rc, err := d.openReader(d.Path())
	if err != nil {
		return err
	}
	rc.RegisterDecompressor(zip.Deflate, flate.NewReader)

	index := engine.NewIndex()
	files := make(map[string]*zip.File, len(rc.File))
	for _, f := range rc.File {
		if engine.IsDirName(f.Name) {
			continue
		}
		e := engine.Entry{
			Path:             f.Name,
			CompressedSize:   int64(f.CompressedSize64),
			UncompressedSize: int64(f.UncompressedSize64),
			ModTime:          f.Modified,
			IsCompressed:     f.Method != zip.Store,
			CRC32:            &f.CRC32,
		}
		if f.Comment != "" {
			e.Comment = &f.Comment
		}
		if index.Add(e) {
			files[engine.NormalizePath(f.Name)] = f
		}
	}

	d.rc = rc
	d.files = files
	d.SetIndex(index)
	return nil
}

func (d *Driver) open(_ context.Context, e engine.Entry) (io.ReadCloser, error) {
	f, ok := d.files[e.Path]
	if !ok {
		return nil, &engine.NotFoundError{Path: e.Path}
	}
	return f.Open()
}

func (d *Driver) Comment(context.Context) (*string, error) {
	if err := d.CheckOpen(); err != nil {
		return nil, err
	}
	if d.rc.Comment == "" {
		return nil, nil
	}
	c := d.rc.Comment
	return &c, nil
}

// SetComment replaces the archive comment; nil removes it.
func (d *Driver) SetComment(ctx context.Context, comment *string) error {
	if err := d.Require(engine.CapSetComment, "set comment"); err != nil {
		return err
	}
	c := ""
	if comment != nil {
		c = *comment
	}
	return d.rewrite(ctx, func(string) bool { return false }, c, nil)
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
	}, d.rc.Comment, nil)
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
	}, d.rc.Comment, func(a *archivers.ZipArchiver) error {
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
	}, d.rc.Comment, func(a *archivers.ZipArchiver) error {
		hdr := engine.FileHeader{Name: norm, Size: int64(len(data)), ModTime: time.Now()}
		return a.AddFile(ctx, hdr, bytes.NewReader(data))
	})
}

// rewrite copies every entry not dropped by skip into a new archive, lets
// extend append to it, and swaps it in place of the original.
func (d *Driver) rewrite(ctx context.Context, skip func(name string) bool, comment string, extend func(a *archivers.ZipArchiver) error) error {
	err := engine.WriteAtomic(d.Path(), func(w io.Writer) error {
		a := archivers.NewZipArchiver(w, engine.LevelAverage)
		for _, f := range d.rc.File {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("context cancelled: %w", err)
			}
			if skip(f.Name) {
				continue
			}
			if err := a.Writer().Copy(f); err != nil {
				return fmt.Errorf("failed to copy %s: %w", f.Name, err)
			}
		}
		if extend != nil {
			if err := extend(a); err != nil {
				return err
			}
		}
		if err := a.SetComment(comment); err != nil {
			return fmt.Errorf("failed to set comment: %w", err)
		}
		return a.Close()
	})
	if err != nil {
		return engine.WrapOp(engine.OpModify, Name, d.Path(), err)
	}

	prev := d.rc
	err = d.load()
	if cerr := prev.Close(); cerr != nil {
		d.logger.Warn("failed to close replaced archive", zap.Error(cerr))
	}
	if err != nil {
		// The index no longer matches the file on disk.
		_ = d.MarkClosed()
		d.logger.Warn("failed to reload rewritten archive, driver closed", zap.String("path", d.Path()), zap.Error(err))
		return engine.WrapOp(engine.OpModify, Name, d.Path(), err)
	}
	d.logger.Debug("rewrote archive", zap.String("path", d.Path()), zap.Int("files", d.Index().Len()))
	return nil
}

func (d *Driver) Close() error {
	if err := d.MarkClosed(); err != nil {
		return err
	}
	return d.rc.Close()
}

var (
	_ engine.DriverKind    = (*Kind)(nil)
	_ engine.Creator       = (*Kind)(nil)
	_ engine.StreamCreator = (*Kind)(nil)
	_ engine.Driver        = (*Driver)(nil)
)
