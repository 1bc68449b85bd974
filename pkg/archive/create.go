package archive

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/archivekit/archivekit/internal/engine/detect"
	"github.com/archivekit/archivekit/internal/fileset"
	"github.com/archivekit/archivekit/internal/setup"
	"go.uber.org/zap"
)

// Report is the dry-run outcome of ArchiveFiles.
type Report = fileset.Report

// Result describes a finished (or simulated) creation.
type Result struct {
	Format engine.Format
	Driver string
	// Count is the number of sources archived, 0 for a dry run.
	Count int
	// Report is set only for dry runs.
	Report *Report
}

type createOptions struct {
	level    engine.CompressionLevel
	password string
	progress engine.ProgressFunc
	exclude  []string
	dryRun   bool
	resolver *engine.Resolver
	logger   *zap.Logger
}

type CreateOption func(*createOptions)

func Level(l engine.CompressionLevel) CreateOption {
	return func(o *createOptions) { o.level = l }
}

// Password encrypts the new archive; the driver must declare
// CREATE_ENCRYPTED for the format.
func Password(pw string) CreateOption {
	return func(o *createOptions) { o.password = pw }
}

func Progress(fn engine.ProgressFunc) CreateOption {
	return func(o *createOptions) { o.progress = fn }
}

// Exclude skips archive names matching gitignore-style patterns.
func Exclude(patterns ...string) CreateOption {
	return func(o *createOptions) { o.exclude = append(o.exclude, patterns...) }
}

// DryRun reports what would be archived without writing anything.
func DryRun(enabled bool) CreateOption {
	return func(o *createOptions) { o.dryRun = enabled }
}

func WithCreateResolver(r *engine.Resolver) CreateOption {
	return func(o *createOptions) { o.resolver = r }
}

func WithCreateLogger(logger *zap.Logger) CreateOption {
	return func(o *createOptions) { o.logger = logger }
}

func newCreateOptions(opts []CreateOption) (createOptions, error) {
	o := createOptions{level: engine.LevelAverage, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.resolver == nil {
		r, err := DefaultResolver()
		if err != nil {
			return o, err
		}
		o.resolver = r
	}
	return o, nil
}

func (o createOptions) engineOptions() engine.CreateOptions {
	return engine.CreateOptions{
		Level:    o.level,
		Password: o.password,
		Progress: o.progress,
		Logger:   o.logger,
	}
}

// ArchiveFiles expands files and archives them into dest, whose format is
// taken from its name.
func ArchiveFiles(ctx context.Context, files fileset.Input, dest string, opts ...CreateOption) (Result, error) {
	o, err := newCreateOptions(opts)
	if err != nil {
		return Result{}, err
	}

	f := detect.FromName(dest)
	required := engine.CapCreate
	if o.password != "" {
		required |= engine.CapCreateEncrypted
	}
	kind, err := selectCreator(o.resolver, f, required, dest)
	if err != nil {
		return Result{}, err
	}
	creator, ok := kind.(engine.Creator)
	if !ok {
		return Result{}, &engine.UnsupportedOperationError{Driver: kind.Name(), Format: f, Operation: "create"}
	}

	items, err := fileset.Expand(files, fileset.WithExclude(o.exclude...))
	if err != nil {
		return Result{}, err
	}
	res := Result{Format: f, Driver: kind.Name()}

	if o.dryRun {
		report := fileset.Summarize(items)
		res.Report = &report
		return res, nil
	}

	logger := o.logger.With(zap.String("driver", kind.Name()), zap.Stringer("format", f))
	o.logger = logger
	n, err := creator.Create(ctx, dest, f, fileset.Sources(items), o.engineOptions())
	if err != nil {
		return Result{}, err
	}
	logger.Debug("created archive", zap.String("path", dest), zap.Int("files", n))
	res.Count = n
	return res, nil
}

// ArchiveToBytes archives files in memory.
func ArchiveToBytes(ctx context.Context, files fileset.Input, f engine.Format, opts ...CreateOption) ([]byte, error) {
	o, err := newCreateOptions(opts)
	if err != nil {
		return nil, err
	}

	required := engine.CapCreateInString
	if o.password != "" {
		required |= engine.CapCreateEncrypted
	}
	kind, err := selectCreator(o.resolver, f, required, "")
	if err != nil {
		return nil, err
	}
	creator, ok := kind.(engine.StreamCreator)
	if !ok {
		return nil, &engine.UnsupportedOperationError{Driver: kind.Name(), Format: f, Operation: "create in memory"}
	}

	items, err := fileset.Expand(files, fileset.WithExclude(o.exclude...))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := creator.CreateTo(ctx, &buf, f, fileset.Sources(items), o.engineOptions()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func selectCreator(r *engine.Resolver, f engine.Format, required engine.Capability, dest string) (engine.DriverKind, error) {
	kind, err := r.SelectDriver(f, required)
	if err != nil {
		var ufe *engine.UnsupportedFormatError
		if errors.As(err, &ufe) {
			ufe.Path = dest
		}
		return nil, err
	}
	return kind, nil
}

var defaultResolver = sync.OnceValues(func() (*engine.Resolver, error) {
	cfg, err := setup.DefaultConfig()
	if err != nil {
		return nil, err
	}
	return setup.BuildResolver(cfg, zap.NewNop())
})

// DefaultResolver returns the process-wide resolver built from the default
// configuration on first use.
func DefaultResolver() (*engine.Resolver, error) {
	return defaultResolver()
}
