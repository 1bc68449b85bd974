// Package isoimage reads and creates ISO 9660 images with
// github.com/kdomanski/iso9660.
package isoimage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/kdomanski/iso9660"
	"go.uber.org/zap"
)

const Name = "iso"

const capabilities = engine.CapOpen |
	engine.CapExtractContent |
	engine.CapStreamContent |
	engine.CapCreate

// maxVolumeID is the length limit of the primary volume identifier.
const maxVolumeID = 32

type Kind struct{}

func New() *Kind {
	return &Kind{}
}

func (k *Kind) Name() string { return Name }

func (k *Kind) SupportedFormats() []engine.Format {
	return []engine.Format{engine.Iso}
}

func (k *Kind) Capabilities(f engine.Format) engine.Capability {
	if f != engine.Iso {
		return 0
	}
	return capabilities
}

func (k *Kind) Available() bool { return true }

func (k *Kind) InstallInstruction() string { return "" }

func (k *Kind) Open(ctx context.Context, p string, f engine.Format, opts engine.OpenOptions) (_ engine.Driver, err error) {
	if f != engine.Iso {
		return nil, &engine.UnsupportedFormatError{Format: f, Path: p}
	}
	if err := engine.CheckPassword(k, f, opts.Password); err != nil {
		return nil, err
	}

	file, err := os.Open(p)
	if err != nil {
		return nil, engine.WrapOp(engine.OpOpen, Name, p, err)
	}
	defer func() {
		if err != nil {
			_ = file.Close()
		}
	}()

	img, err := iso9660.OpenImage(file)
	if err != nil {
		return nil, engine.WrapOp(engine.OpOpen, Name, p, err)
	}
	root, err := img.RootDir()
	if err != nil {
		return nil, engine.WrapOp(engine.OpOpen, Name, p, err)
	}

	d := &Driver{file: file, files: make(map[string]*iso9660.File)}
	index := engine.NewIndex()
	if err := d.walk(ctx, root, "", index); err != nil {
		return nil, engine.WrapOp(engine.OpOpen, Name, p, err)
	}
	d.Catalog = engine.NewCatalog(engine.NewBase(k, f, p), index, d.open)

	opts.Log().Debug("opened archive",
		zap.String("driver", Name),
		zap.String("path", p),
		zap.Int("files", index.Len()))
	return d, nil
}

// Create writes an ISO image of sources to dest. Directories are implied by
// the file paths; empty directories are not recorded.
func (k *Kind) Create(ctx context.Context, dest string, f engine.Format, sources []engine.Source, opts engine.CreateOptions) (int, error) {
	if f != engine.Iso {
		return 0, &engine.UnsupportedFormatError{Format: f, Path: dest}
	}
	if opts.Password != "" {
		return 0, &engine.UnsupportedOperationError{Driver: Name, Format: f, Operation: "create encrypted"}
	}

	n, err := k.create(ctx, dest, sources, opts)
	if err != nil {
		return 0, engine.WrapOp(engine.OpCreate, Name, dest, err)
	}
	return n, nil
}

func (k *Kind) create(ctx context.Context, dest string, sources []engine.Source, opts engine.CreateOptions) (n int, err error) {
	w, err := iso9660.NewWriter()
	if err != nil {
		return 0, fmt.Errorf("failed to create image writer: %w", err)
	}
	defer func() {
		err = errors.Join(err, w.Cleanup())
	}()

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return i, fmt.Errorf("context cancelled: %w", err)
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(sources), src.Path, src.Name)
		}
		if src.IsDir() {
			opts.Log().Debug("skipping directory marker", zap.String("name", src.Name))
			continue
		}
		if err := addFile(w, src); err != nil {
			return i, err
		}
	}

	err = engine.WriteAtomic(dest, func(out io.Writer) error {
		return w.WriteTo(out, volumeID(dest))
	})
	if err != nil {
		return 0, err
	}

	opts.Log().Debug("created archive", zap.String("driver", Name), zap.Int("sources", len(sources)))
	return len(sources), nil
}

func addFile(w *iso9660.ImageWriter, src engine.Source) (err error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	if err := w.AddFile(f, engine.NormalizePath(src.Name)); err != nil {
		return fmt.Errorf("failed to add %s: %w", src.Name, err)
	}
	return nil
}

// volumeID derives a volume identifier from the image file name.
func volumeID(dest string) string {
	id := strings.ToUpper(strings.TrimSuffix(filepath.Base(dest), filepath.Ext(dest)))
	id = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, id)
	if len(id) > maxVolumeID {
		id = id[:maxVolumeID]
	}
	if id == "" {
		return "ARCHIVE"
	}
	return id
}

// Driver is an open ISO image.
type Driver struct {
	engine.Catalog
	file  *os.File
	files map[string]*iso9660.File
}

func (d *Driver) walk(ctx context.Context, dir *iso9660.File, prefix string, index *engine.Index) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	children, err := dir.GetChildren()
	if err != nil {
		return fmt.Errorf("failed to read directory %q: %w", prefix, err)
	}
	for _, child := range children {
		name := path.Join(prefix, cleanName(child.Name()))
		if child.IsDir() {
			if err := d.walk(ctx, child, name, index); err != nil {
				return err
			}
			continue
		}
		if index.Add(engine.Entry{
			Path:             name,
			CompressedSize:   child.Size(),
			UncompressedSize: child.Size(),
			ModTime:          child.ModTime(),
		}) {
			d.files[engine.NormalizePath(name)] = child
		}
	}
	return nil
}

// cleanName drops the ";1" version suffix of plain ISO 9660 identifiers.
func cleanName(name string) string {
	if i := strings.LastIndexByte(name, ';'); i > 0 {
		name = name[:i]
	}
	return strings.TrimSuffix(name, ".")
}

func (d *Driver) open(_ context.Context, e engine.Entry) (io.ReadCloser, error) {
	f, ok := d.files[e.Path]
	if !ok {
		return nil, &engine.NotFoundError{Path: e.Path}
	}
	return io.NopCloser(f.Reader()), nil
}

func (d *Driver) Close() error {
	if err := d.MarkClosed(); err != nil {
		return err
	}
	return d.file.Close()
}

var (
	_ engine.DriverKind = (*Kind)(nil)
	_ engine.Creator    = (*Kind)(nil)
	_ engine.Driver     = (*Driver)(nil)
)
