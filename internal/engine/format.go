package engine

import (
	"fmt"
	"slices"
	"strings"
)

// Format identifies an archive or compression kind. Compound formats such as
// TarGzip are flat identifiers of their own.
type Format string

const (
	None     Format = ""
	Zip      Format = "zip"
	SevenZip Format = "7z"
	Rar      Format = "rar"
	Tar      Format = "tar"
	TarGzip  Format = "tar.gz"
	TarBzip  Format = "tar.bz2"
	TarLzma  Format = "tar.xz"
	TarLzw   Format = "tar.z"
	TarZstd  Format = "tar.zst"
	TarLz4   Format = "tar.lz4"
	Gzip     Format = "gz"
	Bzip     Format = "bz2"
	Lzma     Format = "xz"
	Zstd     Format = "zst"
	Lz4      Format = "lz4"
	Iso      Format = "iso"
	Cab      Format = "cab"
)

var allFormats = []Format{
	Zip, SevenZip, Rar,
	Tar, TarGzip, TarBzip, TarLzma, TarLzw, TarZstd, TarLz4,
	Gzip, Bzip, Lzma, Zstd, Lz4,
	Iso, Cab,
}

// tarFilters maps every tar compound onto the single-file format of its
// compression layer.
var tarFilters = map[Format]Format{
	TarGzip: Gzip,
	TarBzip: Bzip,
	TarLzma: Lzma,
	TarZstd: Zstd,
	TarLz4:  Lz4,
}

// AllFormats returns every known format.
func AllFormats() []Format {
	return slices.Clone(allFormats)
}

// ParseFormat resolves a format identifier, accepting upper case and a leading dot.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	if slices.Contains(allFormats, f) {
		return f, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

func (f Format) String() string {
	if f == None {
		return "none"
	}
	return string(f)
}

// SingleFile reports whether the format compresses exactly one file and has
// no notion of entries, directories or encryption.
func (f Format) SingleFile() bool {
	switch f {
	case Gzip, Bzip, Lzma, Zstd, Lz4:
		return true
	default:
		return false
	}
}

// IsTar reports whether the format is a tar envelope, compressed or not.
func (f Format) IsTar() bool {
	return f == Tar || f == TarLzw || tarFilters[f] != None
}

// Filter returns the compression layer of a tar compound, or None.
// TarLzw has no writable filter and also returns None.
func (f Format) Filter() Format {
	return tarFilters[f]
}

// Extension returns the canonical file extension, including the leading dot.
func (f Format) Extension() string {
	if f == None {
		return ""
	}
	return "." + string(f)
}
