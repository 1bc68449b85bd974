package external

import (
	"context"
	"io"

	"github.com/archivekit/archivekit/internal/engine"
	"go.uber.org/zap"
)

const CabextractName = "cabextract"

// CabextractKind reads Microsoft cabinet files through cabextract.
type CabextractKind struct {
	cfg    config
	binary string
}

func NewCabextract(opts ...Option) *CabextractKind {
	cfg := newConfig(opts)
	return &CabextractKind{cfg: cfg, binary: findBinary(cfg.binary, "cabextract")}
}

func (k *CabextractKind) Name() string { return CabextractName }

func (k *CabextractKind) SupportedFormats() []engine.Format {
	return []engine.Format{engine.Cab}
}

func (k *CabextractKind) Capabilities(f engine.Format) engine.Capability {
	if f != engine.Cab || !k.Available() {
		return 0
	}
	return engine.CapOpen | engine.CapExtractContent | engine.CapStreamContent
}

func (k *CabextractKind) Available() bool { return k.binary != "" }

func (k *CabextractKind) InstallInstruction() string {
	return "install cabextract, e.g. apt install cabextract or brew install cabextract"
}

func (k *CabextractKind) Open(ctx context.Context, path string, f engine.Format, opts engine.OpenOptions) (engine.Driver, error) {
	if k.Capabilities(f) == 0 {
		return nil, &engine.UnsupportedFormatError{Format: f, Path: path}
	}
	if err := engine.CheckPassword(k, f, opts.Password); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = k.cfg.logger
	}
	d := &CabextractDriver{cmd: Command{
		Binary:  k.binary,
		Timeout: k.cfg.timeout,
		Logger:  logger.With(zap.String("driver", CabextractName)),
	}}

	out, err := d.cmd.Run(ctx, "", "-l", path)
	if err != nil {
		return nil, engine.WrapOp(engine.OpOpen, CabextractName, path, err)
	}
	index := engine.NewIndex()
	for _, e := range parseCabList(out) {
		index.Add(e)
	}
	d.Catalog = engine.NewCatalog(engine.NewBase(k, f, path), index, d.open)
	return d, nil
}

// CabextractDriver is an open cabinet file. Compressed sizes are not
// reported by cabextract and stay 0.
type CabextractDriver struct {
	engine.Catalog
	cmd Command
}

func (d *CabextractDriver) open(ctx context.Context, e engine.Entry) (io.ReadCloser, error) {
	return d.cmd.Stream(ctx, "-q", "-p", "-F", e.Path, d.Path())
}

func (d *CabextractDriver) Close() error {
	return d.MarkClosed()
}

var (
	_ engine.DriverKind = (*CabextractKind)(nil)
	_ engine.Driver     = (*CabextractDriver)(nil)
)
