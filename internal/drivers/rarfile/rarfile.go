// Package rarfile reads RAR archives with github.com/nwaples/rardecode. RAR
// is a sequential format: every content access reopens the archive and scans
// forward to the entry.
package rarfile

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/nwaples/rardecode"
	"go.uber.org/zap"
)

const Name = "rar"

const capabilities = engine.CapOpen |
	engine.CapOpenEncrypted |
	engine.CapOpenVolumed |
	engine.CapExtractContent |
	engine.CapStreamContent

type Kind struct{}

func New() *Kind {
	return &Kind{}
}

func (k *Kind) Name() string { return Name }

func (k *Kind) SupportedFormats() []engine.Format {
	return []engine.Format{engine.Rar}
}

func (k *Kind) Capabilities(f engine.Format) engine.Capability {
	if f != engine.Rar {
		return 0
	}
	return capabilities
}

func (k *Kind) Available() bool { return true }

func (k *Kind) InstallInstruction() string { return "" }

func (k *Kind) Open(ctx context.Context, path string, f engine.Format, opts engine.OpenOptions) (engine.Driver, error) {
	if f != engine.Rar {
		return nil, &engine.UnsupportedFormatError{Format: f, Path: path}
	}
	if err := engine.CheckPassword(k, f, opts.Password); err != nil {
		return nil, err
	}

	d := &Driver{password: opts.Password}
	index := engine.NewIndex()
	err := d.scan(ctx, path, func(hdr *rardecode.FileHeader, _ io.Reader) error {
		if hdr.IsDir {
			return nil
		}
		index.Add(engine.Entry{
			Path:             hdr.Name,
			CompressedSize:   hdr.PackedSize,
			UncompressedSize: hdr.UnPackedSize,
			ModTime:          hdr.ModificationTime,
			IsCompressed:     hdr.PackedSize != hdr.UnPackedSize,
		})
		return nil
	})
	if err != nil {
		return nil, engine.WrapOp(engine.OpOpen, Name, path, err)
	}
	d.Catalog = engine.NewCatalog(engine.NewBase(k, f, path), index, d.open)

	opts.Log().Debug("opened archive",
		zap.String("driver", Name),
		zap.String("path", path),
		zap.Int("files", index.Len()))
	return d, nil
}

// Driver is an open RAR archive.
type Driver struct {
	engine.Catalog
	password string
}

var errStop = errors.New("stop")

// scan reads every header of the archive set. fn may consume the content
// from r; returning errStop ends the scan.
func (d *Driver) scan(ctx context.Context, path string, fn func(hdr *rardecode.FileHeader, r io.Reader) error) (err error) {
	rc, err := rardecode.OpenReader(path, d.password)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rc.Close())
	}()

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}
		hdr, err := rc.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read rar header: %w", err)
		}
		if err := fn(hdr, rc); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
}

func (d *Driver) open(ctx context.Context, e engine.Entry) (io.ReadCloser, error) {
	rc, err := rardecode.OpenReader(d.Path(), d.password)
	if err != nil {
		return nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(fmt.Errorf("context cancelled: %w", err), rc.Close())
		}
		hdr, err := rc.Next()
		if errors.Is(err, io.EOF) {
			return nil, errors.Join(&engine.NotFoundError{Path: e.Path}, rc.Close())
		}
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to read rar header: %w", err), rc.Close())
		}
		if !hdr.IsDir && engine.NormalizePath(hdr.Name) == e.Path {
			return rc, nil
		}
	}
}

// Extract writes the selected entries in a single pass over the archive set.
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
	if len(wanted) == 0 {
		return 0, nil
	}

	n := 0
	err = d.scan(ctx, d.Path(), func(hdr *rardecode.FileHeader, r io.Reader) error {
		name := engine.NormalizePath(hdr.Name)
		if _, ok := wanted[name]; hdr.IsDir || !ok {
			return nil
		}
		delete(wanted, name)
		if err := sink.Write(ctx, name, r); err != nil {
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

func (d *Driver) Close() error {
	return d.MarkClosed()
}

var (
	_ engine.DriverKind = (*Kind)(nil)
	_ engine.Driver     = (*Driver)(nil)
)
