// Package fileset expands user-supplied paths into the ordered list of
// sources an archive is created from.
package fileset

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/spf13/afero"
	"github.com/woozymasta/pathrules"
)

// ErrNoFiles is returned when the input expands to nothing.
var ErrNoFiles = errors.New("no files to archive")

// Input selects the files to archive. Paths are added under their base name
// (directories contribute their contents at the archive root). Map keys are
// archive names; a directory value is added below its key, an empty value is
// an explicit empty directory.
type Input struct {
	Paths []string
	Map   map[string]string
}

// Paths builds an Input from bare paths.
func Paths(paths ...string) Input {
	return Input{Paths: paths}
}

// Map builds an Input from an archive-name to source-path mapping.
func Map(m map[string]string) Input {
	return Input{Map: m}
}

// Item is one expanded source with the size it will contribute.
type Item struct {
	engine.Source
	Size int64
}

type options struct {
	fs      afero.Fs
	exclude []string
}

type Option func(*options)

// WithFs expands against fs instead of the host filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithExclude drops archive names matching any gitignore-style pattern.
func WithExclude(patterns ...string) Option {
	return func(o *options) {
		o.exclude = append(o.exclude, patterns...)
	}
}

type expander struct {
	fs      afero.Fs
	matcher *pathrules.Matcher
	items   []Item
	seen    map[string]struct{}
}

// Expand walks in and returns its items in a deterministic order: bare paths
// in the given order, then map keys sorted, each directory walked lexically.
func Expand(in Input, opts ...Option) ([]Item, error) {
	o := options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}

	e := &expander{fs: o.fs, seen: make(map[string]struct{})}
	if len(o.exclude) > 0 {
		rules := make([]pathrules.Rule, 0, len(o.exclude))
		for _, p := range o.exclude {
			if p = strings.TrimSpace(p); p != "" {
				rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: p})
			}
		}
		m, err := pathrules.NewMatcher(rules, pathrules.MatcherOptions{DefaultAction: pathrules.ActionInclude})
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern: %w", err)
		}
		e.matcher = m
	}

	for _, p := range in.Paths {
		st, err := e.fs.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if st.IsDir() {
			err = e.walk(p, "")
		} else {
			e.add(Item{Source: engine.Source{Name: filepath.Base(p), Path: p}, Size: st.Size()}, false)
		}
		if err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(in.Map))
	for k := range in.Map {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, name := range keys {
		src := in.Map[name]
		norm := engine.NormalizePath(name)
		if err := engine.CheckEntryPath(norm); err != nil {
			return nil, err
		}
		if src == "" {
			e.add(Item{Source: engine.Source{Name: norm}}, true)
			continue
		}
		st, err := e.fs.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", src, err)
		}
		if st.IsDir() {
			e.add(Item{Source: engine.Source{Name: norm}}, true)
			if err := e.walk(src, norm); err != nil {
				return nil, err
			}
			continue
		}
		e.add(Item{Source: engine.Source{Name: norm, Path: src}, Size: st.Size()}, false)
	}

	if len(e.items) == 0 {
		return nil, ErrNoFiles
	}
	return e.items, nil
}

// walk adds everything below root, named relative to prefix.
func (e *expander) walk(root, prefix string) error {
	return afero.Walk(e.fs, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := path.Join(prefix, filepath.ToSlash(rel))

		if info.IsDir() {
			if e.excluded(name, true) {
				return filepath.SkipDir
			}
			e.add(Item{Source: engine.Source{Name: name}}, true)
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		e.add(Item{Source: engine.Source{Name: name, Path: p}, Size: info.Size()}, false)
		return nil
	})
}

func (e *expander) excluded(name string, dir bool) bool {
	return e.matcher != nil && !e.matcher.Included(name, dir)
}

// add records it unless excluded or already present; the first occurrence of
// a name wins.
func (e *expander) add(it Item, dir bool) {
	if e.excluded(it.Name, dir) {
		return
	}
	if _, ok := e.seen[it.Name]; ok {
		return
	}
	e.seen[it.Name] = struct{}{}
	e.items = append(e.items, it)
}

// Sources returns the engine sources of items.
func Sources(items []Item) []engine.Source {
	out := make([]engine.Source, len(items))
	for i, it := range items {
		out[i] = it.Source
	}
	return out
}

// Report is the outcome of a dry run.
type Report struct {
	TotalSize int64    `json:"total_size" yaml:"total_size"`
	FileCount int      `json:"file_count" yaml:"file_count"`
	Files     []string `json:"files" yaml:"files"`
}

// Summarize builds the dry-run report of items. Directories are listed but
// not counted.
func Summarize(items []Item) Report {
	r := Report{Files: make([]string, 0, len(items))}
	for _, it := range items {
		if it.IsDir() {
			r.Files = append(r.Files, it.Name+"/")
			continue
		}
		r.TotalSize += it.Size
		r.FileCount++
		r.Files = append(r.Files, it.Name)
	}
	return r
}
