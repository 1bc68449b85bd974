package engine

import (
	"context"
	"io"

	"go.uber.org/zap"
)

// DriverKind is the static descriptor of a backend. Capabilities must not
// depend on any opened archive, only on the environment.
type DriverKind interface {
	Name() string
	SupportedFormats() []Format
	// Capabilities returns the operations available for f. It returns 0 when
	// the driver is not Available or does not claim f.
	Capabilities(f Format) Capability
	Available() bool
	InstallInstruction() string
	Open(ctx context.Context, path string, f Format, opts OpenOptions) (Driver, error)
}

// Creator is implemented by driver kinds that can write new archives to disk.
type Creator interface {
	Create(ctx context.Context, dest string, f Format, sources []Source, opts CreateOptions) (int, error)
}

// StreamCreator is implemented by driver kinds that can write new archives to
// an arbitrary writer.
type StreamCreator interface {
	CreateTo(ctx context.Context, w io.Writer, f Format, sources []Source, opts CreateOptions) (int, error)
}

// Driver is an open archive bound to one backend. Drivers are not safe for
// concurrent use. Every method fails with ErrClosed after Close.
type Driver interface {
	Kind() DriverKind
	Format() Format

	// Summary re-enumerates the archive. It has no side effects.
	Summary(ctx context.Context) (Information, error)
	Entries(ctx context.Context) ([]Entry, error)
	EntryNames(ctx context.Context) ([]string, error)
	HasEntry(ctx context.Context, path string) (bool, error)
	Entry(ctx context.Context, path string) (Entry, error)
	ReadAll(ctx context.Context, path string) ([]byte, error)
	OpenEntry(ctx context.Context, path string) (io.ReadCloser, error)
	// Extract writes the selected entries, or all of them when paths is
	// empty, to sink and returns how many were written.
	Extract(ctx context.Context, sink Sink, paths []string) (int, error)

	Delete(ctx context.Context, paths []string) (int, error)
	Add(ctx context.Context, sources []Source) (int, error)
	AddBytes(ctx context.Context, name string, data []byte) error
	Comment(ctx context.Context) (*string, error)
	SetComment(ctx context.Context, comment *string) error

	Close() error
}

// Source maps an archive name to a file on disk. An empty Path marks an
// explicit directory.
type Source struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

func (s Source) IsDir() bool {
	return s.Path == ""
}

// ProgressFunc is called synchronously once per archived source.
type ProgressFunc func(current, total int, source, name string)

type OpenOptions struct {
	Password string
	Logger   *zap.Logger
}

// Log returns the configured logger or a no-op one.
func (o OpenOptions) Log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

type CreateOptions struct {
	Level    CompressionLevel
	Password string
	Progress ProgressFunc
	Logger   *zap.Logger
}

// Log returns the configured logger or a no-op one.
func (o CreateOptions) Log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
