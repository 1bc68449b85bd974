// Package filters wraps the compression codecs used by single-file formats
// and by the compression layer of tar compounds.
package filters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// DefaultGzipBinary decompresses unix compress (LZW) streams.
const DefaultGzipBinary = "gzip"

// ErrNoWriter is returned for filters that can only be read.
var ErrNoWriter = errors.New("filter is read-only")

var xzMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

type options struct {
	gzipBinary string
}

type Option func(*options)

// WithGzipBinary sets the gzip executable used to read LZW streams.
func WithGzipBinary(path string) Option {
	return func(o *options) {
		if path != "" {
			o.gzipBinary = path
		}
	}
}

// layer returns the compression layer of f: the filter of a tar compound, or
// f itself for single-file formats and TarLzw.
func layer(f engine.Format) engine.Format {
	if filter := f.Filter(); filter != engine.None {
		return filter
	}
	return f
}

// Supported reports whether f has a readable compression layer or none at all.
func Supported(f engine.Format) bool {
	switch layer(f) {
	case engine.Tar, engine.TarLzw, engine.Gzip, engine.Bzip, engine.Lzma, engine.Zstd, engine.Lz4:
		return true
	default:
		return false
	}
}

// Writable reports whether NewWriter accepts f.
func Writable(f engine.Format) bool {
	return Supported(f) && layer(f) != engine.TarLzw
}

// LzwAvailable reports whether the gzip binary needed for LZW is installed.
func LzwAvailable(opts ...Option) bool {
	o := applyOptions(opts)
	_, err := exec.LookPath(o.gzipBinary)
	return err == nil
}

func applyOptions(opts []Option) options {
	o := options{gzipBinary: DefaultGzipBinary}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewReader returns a decompressing reader for the compression layer of f.
// Plain tar is passed through.
func NewReader(ctx context.Context, f engine.Format, r io.Reader, opts ...Option) (io.ReadCloser, error) {
	switch layer(f) {
	case engine.Tar:
		return io.NopCloser(r), nil
	case engine.Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gr, nil
	case engine.Bzip:
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create bzip2 reader: %w", err)
		}
		return br, nil
	case engine.Lzma:
		return newXzReader(r)
	case engine.Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	case engine.Lz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case engine.TarLzw:
		return newLzwReader(ctx, r, applyOptions(opts))
	default:
		return nil, fmt.Errorf("%w: no filter for %s", engine.ErrUnsupportedFormat, f)
	}
}

// newXzReader reads both xz containers and legacy .lzma streams.
func newXzReader(r io.Reader) (io.ReadCloser, error) {
	head := make([]byte, len(xzMagic))
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read xz header: %w", err)
	}
	r = io.MultiReader(bytes.NewReader(head[:n]), r)

	if bytes.Equal(head[:n], xzMagic) {
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return io.NopCloser(xr), nil
	}
	lr, err := lzma.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create lzma reader: %w", err)
	}
	return io.NopCloser(lr), nil
}

// NewWriter returns a compressing writer for the compression layer of f.
// Closing it flushes the codec but leaves w open.
func NewWriter(f engine.Format, w io.Writer, level engine.CompressionLevel) (io.WriteCloser, error) {
	switch layer(f) {
	case engine.Tar:
		return &nopWriteCloser{w}, nil
	case engine.Gzip:
		gw, err := gzip.NewWriterLevel(w, gzipLevels[clamp(level)])
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return gw, nil
	case engine.Bzip:
		bw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2Levels[clamp(level)]})
		if err != nil {
			return nil, fmt.Errorf("failed to create bzip2 writer: %w", err)
		}
		return bw, nil
	case engine.Lzma:
		xw, err := xz.WriterConfig{DictCap: xzDictCaps[clamp(level)]}.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return xw, nil
	case engine.Zstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstdLevels[clamp(level)]))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zw, nil
	case engine.Lz4:
		lw := lz4.NewWriter(w)
		if err := lw.Apply(lz4.CompressionLevelOption(lz4Levels[clamp(level)])); err != nil {
			return nil, fmt.Errorf("failed to configure lz4 writer: %w", err)
		}
		return lw, nil
	case engine.TarLzw:
		return nil, fmt.Errorf("%w: %s", ErrNoWriter, f)
	default:
		return nil, fmt.Errorf("%w: no filter for %s", engine.ErrUnsupportedFormat, f)
	}
}

func clamp(l engine.CompressionLevel) engine.CompressionLevel {
	return min(max(l, engine.LevelNone), engine.LevelMaximum)
}

var (
	gzipLevels  = [...]int{gzip.NoCompression, gzip.BestSpeed, 6, 8, gzip.BestCompression}
	bzip2Levels = [...]int{bzip2.BestSpeed, bzip2.BestSpeed, 6, 8, bzip2.BestCompression}
	xzDictCaps  = [...]int{1 << 20, 1 << 20, 8 << 20, 16 << 20, 64 << 20}
	zstdLevels  = [...]zstd.EncoderLevel{zstd.SpeedFastest, zstd.SpeedFastest, zstd.SpeedDefault, zstd.SpeedBetterCompression, zstd.SpeedBestCompression}
	lz4Levels   = [...]lz4.CompressionLevel{lz4.Fast, lz4.Level1, lz4.Level5, lz4.Level7, lz4.Level9}
)

// nopWriteCloser wraps a Writer to provide a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (n *nopWriteCloser) Close() error {
	return nil
}

// cmdReader streams the stdout of a running process.
type cmdReader struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	eof    bool
}

func newLzwReader(ctx context.Context, r io.Reader, o options) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, o.gzipBinary, "-dc")
	cmd.Stdin = r
	stderr := new(bytes.Buffer)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", o.gzipBinary, err)
	}
	return &cmdReader{ReadCloser: stdout, cmd: cmd, stderr: stderr}, nil
}

func (c *cmdReader) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	if errors.Is(err, io.EOF) {
		c.eof = true
	}
	return n, err
}

// Close stops reading and waits for the process. Exit errors only matter
// once the whole stream was consumed.
func (c *cmdReader) Close() error {
	_ = c.ReadCloser.Close()
	err := c.cmd.Wait()
	if c.eof && err != nil {
		if msg := strings.TrimSpace(c.stderr.String()); msg != "" {
			return fmt.Errorf("command failed: %w: %s", err, msg)
		}
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}
