package engine

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"time"
)

// Entry is the normalized record of one file stored in an archive.
// Directories are never entries.
type Entry struct {
	Path             string    `json:"path" yaml:"path"`
	CompressedSize   int64     `json:"compressed_size" yaml:"compressed_size"`
	UncompressedSize int64     `json:"uncompressed_size" yaml:"uncompressed_size"`
	ModTime          time.Time `json:"mod_time,omitzero" yaml:"mod_time,omitempty"`
	IsCompressed     bool      `json:"is_compressed" yaml:"is_compressed"`
	Comment          *string   `json:"comment,omitempty" yaml:"comment,omitempty"`
	CRC32            *uint32   `json:"crc32,omitempty" yaml:"crc32,omitempty"`
}

// Unix returns the modification time as a unix timestamp, 0 when unknown.
func (e Entry) Unix() int64 {
	if e.ModTime.IsZero() {
		return 0
	}
	return e.ModTime.Unix()
}

// Information summarizes an opened archive.
type Information struct {
	Files                 []string `json:"files" yaml:"files"`
	CompressedFilesSize   int64    `json:"compressed_files_size" yaml:"compressed_files_size"`
	UncompressedFilesSize int64    `json:"uncompressed_files_size" yaml:"uncompressed_files_size"`
}

// Summarize builds an Information from a full enumeration.
func Summarize(entries []Entry) Information {
	info := Information{Files: make([]string, 0, len(entries))}
	for _, e := range entries {
		info.Files = append(info.Files, e.Path)
		info.CompressedFilesSize += e.CompressedSize
		info.UncompressedFilesSize += e.UncompressedSize
	}
	return info
}

// NormalizePath converts an archive path to forward slashes without leading
// "./" or "/" segments. Directory paths keep no trailing slash.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// IsDirName reports whether a raw archive name denotes a directory.
func IsDirName(name string) bool {
	return strings.HasSuffix(name, "/") || strings.HasSuffix(name, `\`)
}

// Index holds entries in enumeration order with lookup by path.
// The first entry seen for a path wins.
type Index struct {
	entries []Entry
	byPath  map[string]int
}

func NewIndex() *Index {
	return &Index{byPath: make(map[string]int)}
}

// Add normalizes e.Path and records the entry. Empty paths and duplicates are
// ignored and reported as false.
func (x *Index) Add(e Entry) bool {
	e.Path = NormalizePath(e.Path)
	if e.Path == "" {
		return false
	}
	if _, ok := x.byPath[e.Path]; ok {
		return false
	}
	x.byPath[e.Path] = len(x.entries)
	x.entries = append(x.entries, e)
	return true
}

func (x *Index) Len() int {
	return len(x.entries)
}

func (x *Index) Entries() []Entry {
	return slices.Clone(x.entries)
}

func (x *Index) Names() []string {
	names := make([]string, len(x.entries))
	for i, e := range x.entries {
		names[i] = e.Path
	}
	return names
}

func (x *Index) Lookup(p string) (Entry, bool) {
	i, ok := x.byPath[NormalizePath(p)]
	if !ok {
		return Entry{}, false
	}
	return x.entries[i], true
}

func (x *Index) Summary() Information {
	return Summarize(x.entries)
}

// Targets resolves paths for a mutation. It behaves like Resolve except that
// a path naming the archive root fails with ErrUnsafePath, so only what
// Selected matches is ever reported.
func (x *Index) Targets(paths []string) ([]Entry, error) {
	for _, p := range paths {
		if NormalizePath(p) == "" {
			return nil, fmt.Errorf("%w: %q names the archive root", ErrUnsafePath, p)
		}
	}
	return x.Resolve(paths)
}

// Resolve selects entries by path. A path naming an implied directory selects
// every entry below it. Empty paths select everything. Any path matching
// nothing fails with a *NotFoundError before anything is returned.
func (x *Index) Resolve(paths []string) ([]Entry, error) {
	if len(paths) == 0 {
		return x.Entries(), nil
	}

	selected := make(map[int]struct{})
	for _, p := range paths {
		norm := NormalizePath(p)
		if i, ok := x.byPath[norm]; ok && norm != "" {
			selected[i] = struct{}{}
			continue
		}
		prefix := norm + "/"
		found := false
		for i, e := range x.entries {
			if norm == "" || strings.HasPrefix(e.Path, prefix) {
				selected[i] = struct{}{}
				found = true
			}
		}
		if !found {
			return nil, &NotFoundError{Path: p}
		}
	}

	out := make([]Entry, 0, len(selected))
	for i, e := range x.entries {
		if _, ok := selected[i]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}
