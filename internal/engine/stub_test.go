package engine

import (
	"bytes"
	"context"
	"io"
	"slices"
	"time"
)

// stubKind is a DriverKind whose availability and capabilities are set by tests.
type stubKind struct {
	name      string
	caps      map[Format]Capability
	available bool
	probes    int
	files     map[string]string
}

func newStubKind(name string, available bool, caps map[Format]Capability) *stubKind {
	return &stubKind{name: name, caps: caps, available: available}
}

func (k *stubKind) Name() string { return k.name }

func (k *stubKind) SupportedFormats() []Format {
	formats := make([]Format, 0, len(k.caps))
	for f := range k.caps {
		formats = append(formats, f)
	}
	slices.Sort(formats)
	return formats
}

func (k *stubKind) Capabilities(f Format) Capability {
	k.probes++
	if !k.available {
		return 0
	}
	return k.caps[f]
}

func (k *stubKind) Available() bool            { return k.available }
func (k *stubKind) InstallInstruction() string { return "install " + k.name }

func (k *stubKind) Open(_ context.Context, path string, f Format, opts OpenOptions) (Driver, error) {
	if err := CheckPassword(k, f, opts.Password); err != nil {
		return nil, err
	}
	index := NewIndex()
	names := make([]string, 0, len(k.files))
	for name := range k.files {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		index.Add(Entry{
			Path:             name,
			CompressedSize:   int64(len(k.files[name])),
			UncompressedSize: int64(len(k.files[name])),
			ModTime:          time.Unix(1700000000, 0),
		})
	}
	d := &stubDriver{files: k.files}
	d.Catalog = NewCatalog(NewBase(k, f, path), index, d.open)
	return d, nil
}

type stubDriver struct {
	Catalog
	files map[string]string
}

func (d *stubDriver) open(_ context.Context, e Entry) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte(d.files[e.Path]))), nil
}

func (d *stubDriver) Close() error {
	return d.MarkClosed()
}

// memorySink collects writes in memory.
type memorySink struct {
	writes map[string][]byte
}

func newMemorySink() *memorySink {
	return &memorySink{writes: make(map[string][]byte)}
}

func (m *memorySink) Name() string { return "memory" }
func (m *memorySink) Kind() string { return "memory" }

func (m *memorySink) Write(_ context.Context, path string, data io.Reader) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.writes[path] = content
	return nil
}

func (m *memorySink) Close(context.Context) error { return nil }
