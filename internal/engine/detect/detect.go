// Package detect maps file names and content onto archive formats.
package detect

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/archivekit/archivekit/internal/engine/filters"
	"github.com/gabriel-vasile/mimetype"
)

// Extension matching is case-insensitive: "x.tar.Z" and "x.tar.z" are both TarLzw.
var multiExtensions = []struct {
	suffix string
	format engine.Format
}{
	{".tar.gz", engine.TarGzip},
	{".tar.bz2", engine.TarBzip},
	{".tar.xz", engine.TarLzma},
	{".tar.lzma", engine.TarLzma},
	{".tar.z", engine.TarLzw},
	{".tar.zst", engine.TarZstd},
	{".tar.lz4", engine.TarLz4},
	{".7z.001", engine.SevenZip},
}

var extensions = map[string]engine.Format{
	"zip":  engine.Zip,
	"7z":   engine.SevenZip,
	"rar":  engine.Rar,
	"tar":  engine.Tar,
	"tgz":  engine.TarGzip,
	"tbz2": engine.TarBzip,
	"tbz":  engine.TarBzip,
	"txz":  engine.TarLzma,
	"taz":  engine.TarLzw,
	"tzst": engine.TarZstd,
	"gz":   engine.Gzip,
	"bz2":  engine.Bzip,
	"xz":   engine.Lzma,
	"lzma": engine.Lzma,
	"zst":  engine.Zstd,
	"lz4":  engine.Lz4,
	"iso":  engine.Iso,
	"cab":  engine.Cab,
}

const (
	mimeLz4      = "application/x-lz4"
	mimeCompress = "application/x-compress"
)

var mimeFormats = map[string]engine.Format{
	"application/zip":                   engine.Zip,
	"application/x-7z-compressed":       engine.SevenZip,
	"application/x-rar-compressed":      engine.Rar,
	"application/x-tar":                 engine.Tar,
	"application/gzip":                  engine.Gzip,
	"application/x-bzip2":               engine.Bzip,
	"application/x-xz":                  engine.Lzma,
	"application/zstd":                  engine.Zstd,
	"application/vnd.ms-cab-compressed": engine.Cab,
	mimeLz4:                             engine.Lz4,
	mimeCompress:                        engine.TarLzw,
}

// ContentType returns the MIME type of a file in format f. Tar compounds
// report their compression layer.
func ContentType(f engine.Format) string {
	switch {
	case f == engine.Iso:
		return "application/x-iso9660-image"
	case f == engine.TarLzw:
		return mimeCompress
	case f.Filter() != engine.None:
		f = f.Filter()
	}
	for m, found := range mimeFormats {
		if found == f && m != mimeCompress {
			return m
		}
	}
	return ""
}

var (
	lz4Magic      = []byte{0x04, 0x22, 0x4D, 0x18}
	compressMagic = []byte{0x1F, 0x9D}
	isoMagic      = []byte("CD001")
)

// isoMagicOffset is the identifier of the first ISO9660 volume descriptor.
const isoMagicOffset = 0x8001

var extendOnce sync.Once

func registerDetectors() {
	extendOnce.Do(func() {
		mimetype.Extend(func(raw []byte, _ uint32) bool {
			return bytes.HasPrefix(raw, lz4Magic)
		}, mimeLz4, ".lz4")
		mimetype.Extend(func(raw []byte, _ uint32) bool {
			return bytes.HasPrefix(raw, compressMagic)
		}, mimeCompress, ".z")
	})
}

// FromName detects a format from the file name alone.
func FromName(name string) engine.Format {
	base := strings.ToLower(filepath.Base(name))
	for _, m := range multiExtensions {
		if strings.HasSuffix(base, m.suffix) && len(base) > len(m.suffix) {
			return m.format
		}
	}
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	if f, ok := extensions[ext]; ok {
		return f
	}
	return engine.None
}

// Detect returns the format of the file at path. Extensions win; when they
// say nothing and sniff is set, the content is inspected. engine.None means
// the format is unknown.
func Detect(path string, sniff bool) engine.Format {
	if f := FromName(path); f != engine.None {
		return f
	}
	if !sniff {
		return engine.None
	}

	file, err := os.Open(path)
	if err != nil {
		return engine.None
	}
	defer file.Close()

	st, err := file.Stat()
	if err != nil || st.IsDir() {
		return engine.None
	}
	return Sniff(file, st.Size())
}

// DetectReader is Detect for content that is not on disk.
func DetectReader(name string, r io.ReaderAt, size int64, sniff bool) engine.Format {
	if f := FromName(name); f != engine.None {
		return f
	}
	if !sniff {
		return engine.None
	}
	return Sniff(r, size)
}

// Sniff inspects content only.
func Sniff(r io.ReaderAt, size int64) engine.Format {
	if isISO(r, size) {
		return engine.Iso
	}

	registerDetectors()
	mt, err := mimetype.DetectReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return engine.None
	}
	f := engine.None
	for m := mt; m != nil; m = m.Parent() {
		if found, ok := mimeFormats[m.String()]; ok {
			f = found
			break
		}
	}
	if f.SingleFile() && wrapsTar(f, io.NewSectionReader(r, 0, size)) {
		return tarCompound(f)
	}
	return f
}

func isISO(r io.ReaderAt, size int64) bool {
	if size < isoMagicOffset+int64(len(isoMagic)) {
		return false
	}
	buf := make([]byte, len(isoMagic))
	if _, err := r.ReadAt(buf, isoMagicOffset); err != nil {
		return false
	}
	return bytes.Equal(buf, isoMagic)
}

// tarHeaderBlock is enough to decode the ustar magic of the first header.
const tarHeaderBlock = 512

// wrapsTar decompresses the first block of a single-file payload and reports
// whether it starts with a tar header.
func wrapsTar(f engine.Format, r io.Reader) bool {
	dr, err := filters.NewReader(context.Background(), f, r)
	if err != nil {
		return false
	}
	defer dr.Close()

	head := make([]byte, tarHeaderBlock)
	n, err := io.ReadFull(dr, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false
	}
	if n < tarHeaderBlock {
		return false
	}
	return mimetype.Detect(head).Is("application/x-tar")
}

func tarCompound(f engine.Format) engine.Format {
	for _, tf := range engine.AllFormats() {
		if tf.Filter() == f {
			return tf
		}
	}
	return f
}
