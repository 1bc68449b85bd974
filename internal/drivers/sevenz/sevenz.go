// Package sevenz reads 7z archives, including encrypted and multi-volume
// ones, with github.com/bodgit/sevenzip.
package sevenz

import (
	"context"
	"io"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/bodgit/sevenzip"
	"go.uber.org/zap"
)

const Name = "7z"

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
	return []engine.Format{engine.SevenZip}
}

func (k *Kind) Capabilities(f engine.Format) engine.Capability {
	if f != engine.SevenZip {
		return 0
	}
	return capabilities
}

func (k *Kind) Available() bool { return true }

func (k *Kind) InstallInstruction() string { return "" }

// Open reads the archive directory. A path ending in .7z.001 opens every
// volume of the set.
func (k *Kind) Open(ctx context.Context, path string, f engine.Format, opts engine.OpenOptions) (engine.Driver, error) {
	if f != engine.SevenZip {
		return nil, &engine.UnsupportedFormatError{Format: f, Path: path}
	}
	if err := engine.CheckPassword(k, f, opts.Password); err != nil {
		return nil, err
	}

	rc, err := sevenzip.OpenReaderWithPassword(path, opts.Password)
	if err != nil {
		return nil, engine.WrapOp(engine.OpOpen, Name, path, err)
	}

	d := &Driver{rc: rc, files: make(map[string]*sevenzip.File, len(rc.File))}
	index := engine.NewIndex()
	for _, file := range rc.File {
		if file.FileInfo().IsDir() || engine.IsDirName(file.Name) {
			continue
		}
		crc := file.CRC32
		e := engine.Entry{
			Path:             file.Name,
			UncompressedSize: int64(file.UncompressedSize),
			ModTime:          file.Modified,
			IsCompressed:     true,
			CRC32:            &crc,
		}
		if index.Add(e) {
			d.files[engine.NormalizePath(file.Name)] = file
		}
	}
	d.Catalog = engine.NewCatalog(engine.NewBase(k, f, path), index, d.open)

	opts.Log().Debug("opened archive",
		zap.String("driver", Name),
		zap.String("path", path),
		zap.Int("volumes", len(rc.Volumes())),
		zap.Int("files", index.Len()))
	return d, nil
}

// Driver is an open 7z archive. 7z stores solid blocks, so per-entry
// compressed sizes are reported as 0.
type Driver struct {
	engine.Catalog
	rc    *sevenzip.ReadCloser
	files map[string]*sevenzip.File
}

func (d *Driver) open(_ context.Context, e engine.Entry) (io.ReadCloser, error) {
	f, ok := d.files[e.Path]
	if !ok {
		return nil, &engine.NotFoundError{Path: e.Path}
	}
	return f.Open()
}

func (d *Driver) Close() error {
	if err := d.MarkClosed(); err != nil {
		return err
	}
	return d.rc.Close()
}

var (
	_ engine.DriverKind = (*Kind)(nil)
	_ engine.Driver     = (*Driver)(nil)
)
