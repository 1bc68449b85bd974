// Package compressed handles single-file compression formats: gzip, bzip2,
// xz, zstd and lz4. Such an archive holds exactly one entry, named after the
// archive without its compression extension.
package compressed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/archivekit/archivekit/internal/engine/filters"
	"go.uber.org/zap"
)

const Name = "compressed"

const capabilities = engine.CapOpen |
	engine.CapExtractContent |
	engine.CapStreamContent |
	engine.CapCreate |
	engine.CapCreateInString

// ErrSingleFile is returned when creating from anything but one file.
var ErrSingleFile = errors.New("single-file formats hold exactly one file")

type Kind struct{}

func New() *Kind {
	return &Kind{}
}

func (k *Kind) Name() string { return Name }

func (k *Kind) SupportedFormats() []engine.Format {
	return []engine.Format{engine.Gzip, engine.Bzip, engine.Lzma, engine.Zstd, engine.Lz4}
}

func (k *Kind) Capabilities(f engine.Format) engine.Capability {
	if !f.SingleFile() {
		return 0
	}
	return capabilities
}

func (k *Kind) Available() bool { return true }

func (k *Kind) InstallInstruction() string { return "" }

// EntryName returns the name of the single entry stored at path.
func EntryName(path string, f engine.Format) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if strings.EqualFold(ext, f.Extension()) || (f == engine.Lzma && strings.EqualFold(ext, ".lzma")) {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." {
		return "data"
	}
	return base
}

func (k *Kind) Open(ctx context.Context, path string, f engine.Format, opts engine.OpenOptions) (engine.Driver, error) {
	if !f.SingleFile() {
		return nil, &engine.UnsupportedFormatError{Format: f, Path: path}
	}
	// Passwords are meaningless here and ignored.

	st, err := os.Stat(path)
	if err != nil {
		return nil, engine.WrapOp(engine.OpOpen, Name, path, err)
	}

	d := &Driver{}
	d.Catalog = engine.NewCatalog(engine.NewBase(k, f, path), engine.NewIndex(), d.open)

	// The uncompressed size is only known after decoding the whole stream.
	size, err := d.measure(ctx)
	if err != nil {
		return nil, engine.WrapOp(engine.OpOpen, Name, path, err)
	}

	index := engine.NewIndex()
	index.Add(engine.Entry{
		Path:             EntryName(path, f),
		CompressedSize:   st.Size(),
		UncompressedSize: size,
		ModTime:          st.ModTime(),
		IsCompressed:     true,
	})
	d.SetIndex(index)

	opts.Log().Debug("opened archive",
		zap.String("driver", Name),
		zap.String("path", path),
		zap.Stringer("format", f),
		zap.Int64("size", size))
	return d, nil
}

// Create compresses the single file in sources to dest.
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

// CreateTo compresses the single file in sources to w.
func (k *Kind) CreateTo(ctx context.Context, w io.Writer, f engine.Format, sources []engine.Source, opts engine.CreateOptions) (n int, err error) {
	if !f.SingleFile() {
		return 0, &engine.UnsupportedFormatError{Format: f}
	}
	if opts.Password != "" {
		return 0, &engine.UnsupportedOperationError{Driver: Name, Format: f, Operation: "create encrypted"}
	}
	if len(sources) != 1 || sources[0].IsDir() {
		return 0, fmt.Errorf("%w: got %d sources", ErrSingleFile, len(sources))
	}
	src := sources[0]
	if opts.Progress != nil {
		opts.Progress(1, 1, src.Path, src.Name)
	}

	in, err := os.Open(src.Path)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = errors.Join(err, in.Close())
	}()

	cw, err := filters.NewWriter(f, w, opts.Level)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(cw, readerWithContext(ctx, in)); err != nil {
		return 0, errors.Join(fmt.Errorf("failed to compress %s: %w", src.Path, err), cw.Close())
	}
	if err := cw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish %s stream: %w", f, err)
	}

	opts.Log().Debug("created archive", zap.String("driver", Name), zap.Stringer("format", f), zap.String("source", src.Path))
	return 1, nil
}

// Driver is an open single-file archive.
type Driver struct {
	engine.Catalog
}

func (d *Driver) open(ctx context.Context, _ engine.Entry) (io.ReadCloser, error) {
	f, err := os.Open(d.Path())
	if err != nil {
		return nil, err
	}
	r, err := filters.NewReader(ctx, d.Format(), f)
	if err != nil {
		return nil, errors.Join(err, f.Close())
	}
	return &streamReader{ReadCloser: r, file: f}, nil
}

func (d *Driver) measure(ctx context.Context) (size int64, err error) {
	rc, err := d.open(ctx, engine.Entry{})
	if err != nil {
		return 0, err
	}
	defer func() {
		err = errors.Join(err, rc.Close())
	}()
	return io.Copy(io.Discard, readerWithContext(ctx, rc))
}

func (d *Driver) Close() error {
	return d.MarkClosed()
}

// streamReader closes both the decoder and the file beneath it.
type streamReader struct {
	io.ReadCloser
	file *os.File
}

func (r *streamReader) Close() error {
	return errors.Join(r.ReadCloser.Close(), r.file.Close())
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var (
	_ engine.DriverKind    = (*Kind)(nil)
	_ engine.Creator       = (*Kind)(nil)
	_ engine.StreamCreator = (*Kind)(nil)
	_ engine.Driver        = (*Driver)(nil)
)
