package external

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/archivekit/archivekit/internal/engine"
	"go.uber.org/zap"
)

const SevenZipName = "7z-cli"

// Switches shared by every 7-Zip call: UTF-8 console output and no wildcard
// matching on entry names.
var sevenZipSwitches = []string{"-sccUTF-8", "-spd", "-bd", "-y"}

var sevenZipTypes = map[engine.Format]string{
	engine.SevenZip: "7z",
	engine.Zip:      "zip",
	engine.Tar:      "tar",
}

var sevenZipLevels = [...]int{0, 1, 5, 7, 9}

// SevenZipKind drives the 7-Zip command line tool.
type SevenZipKind struct {
	cfg    config
	binary string
}

// NewSevenZip locates 7zz, 7z or 7za on PATH unless WithBinary is given.
func NewSevenZip(opts ...Option) *SevenZipKind {
	cfg := newConfig(opts)
	return &SevenZipKind{cfg: cfg, binary: findBinary(cfg.binary, "7zz", "7z", "7za")}
}

func (k *SevenZipKind) Name() string { return SevenZipName }

func (k *SevenZipKind) SupportedFormats() []engine.Format {
	return []engine.Format{engine.SevenZip, engine.Zip, engine.Tar, engine.Rar, engine.Iso, engine.Cab}
}

func (k *SevenZipKind) Capabilities(f engine.Format) engine.Capability {
	if !k.Available() {
		return 0
	}
	read := engine.CapOpen | engine.CapExtractContent | engine.CapStreamContent
	write := engine.CapAppend | engine.CapDelete | engine.CapCreate
	switch f {
	case engine.SevenZip, engine.Zip:
		return read | write | engine.CapOpenEncrypted | engine.CapCreateEncrypted
	case engine.Tar:
		return read | write
	case engine.Rar:
		return read | engine.CapOpenEncrypted
	case engine.Iso, engine.Cab:
		return read
	default:
		return 0
	}
}

func (k *SevenZipKind) Available() bool { return k.binary != "" }

func (k *SevenZipKind) InstallInstruction() string {
	return "install 7-Zip (7zz, 7z or 7za on PATH), e.g. apt install 7zip or brew install sevenzip"
}

func (k *SevenZipKind) command(logger *zap.Logger) Command {
	if logger == nil {
		logger = k.cfg.logger
	}
	return Command{Binary: k.binary, Timeout: k.cfg.timeout, Logger: logger.With(zap.String("driver", SevenZipName))}
}

func (k *SevenZipKind) Open(ctx context.Context, path string, f engine.Format, opts engine.OpenOptions) (engine.Driver, error) {
	if k.Capabilities(f) == 0 {
		return nil, &engine.UnsupportedFormatError{Format: f, Path: path}
	}
	if err := engine.CheckPassword(k, f, opts.Password); err != nil {
		return nil, err
	}

	d := &SevenZipDriver{
		cmd:      k.command(opts.Logger),
		password: opts.Password,
	}
	d.Catalog = engine.NewCatalog(engine.NewBase(k, f, path), engine.NewIndex(), d.open)
	if err := d.load(ctx); err != nil {
		return nil, engine.WrapOp(engine.OpOpen, SevenZipName, path, err)
	}
	return d, nil
}

// Create builds a new archive at dest from a staged copy of sources.
func (k *SevenZipKind) Create(ctx context.Context, dest string, f engine.Format, sources []engine.Source, opts engine.CreateOptions) (int, error) {
	caps := k.Capabilities(f)
	if !caps.Has(engine.CapCreate) {
		return 0, &engine.UnsupportedOperationError{Driver: SevenZipName, Format: f, Operation: "create"}
	}
	if opts.Password != "" && !caps.Has(engine.CapCreateEncrypted) {
		return 0, &engine.UnsupportedOperationError{Driver: SevenZipName, Format: f, Operation: "create encrypted"}
	}

	if err := k.create(ctx, dest, f, sources, opts); err != nil {
		return 0, engine.WrapOp(engine.OpCreate, SevenZipName, dest, err)
	}
	return len(sources), nil
}

func (k *SevenZipKind) create(ctx context.Context, dest string, f engine.Format, sources []engine.Source, opts engine.CreateOptions) (err error) {
	dir, names, err := stage(sources, opts.Progress)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, os.RemoveAll(dir))
	}()

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	// 7-Zip appends to existing archives, so build into a fresh path and move
	// it into place.
	work, err := os.MkdirTemp(filepath.Dir(absDest), ".archivekit-*")
	if err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	defer func() {
		err = errors.Join(err, os.RemoveAll(work))
	}()
	out := filepath.Join(work, filepath.Base(absDest))

	args := []string{"a", "-t" + sevenZipTypes[f]}
	args = append(args, sevenZipSwitches...)
	if f != engine.Tar {
		args = append(args, fmt.Sprintf("-mx%d", sevenZipLevels[min(max(opts.Level, engine.LevelNone), engine.LevelMaximum)]))
	}
	args = append(args, passwordSwitches(f, opts.Password, true)...)
	args = append(args, "--", out)
	args = append(args, names...)

	if _, err := k.command(opts.Logger).Run(ctx, dir, args...); err != nil {
		return err
	}
	if err := os.Rename(out, absDest); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	opts.Log().Debug("created archive", zap.String("driver", SevenZipName), zap.Stringer("format", f), zap.Int("sources", len(sources)))
	return nil
}

// passwordSwitches always passes -p so 7-Zip never prompts. Headers are
// encrypted too when creating 7z archives.
func passwordSwitches(f engine.Format, password string, writing bool) []string {
	args := []string{"-p" + password}
	if writing && password != "" && f == engine.SevenZip {
		args = append(args, "-mhe=on")
	}
	return args
}

// SevenZipDriver is an archive opened through the 7-Zip binary.
type SevenZipDriver struct {
	engine.Catalog
	cmd      Command
	password string
}

func (d *SevenZipDriver) args(verb string, extra ...string) []string {
	args := append([]string{verb}, sevenZipSwitches...)
	args = append(args, passwordSwitches(d.Format(), d.password, false)...)
	args = append(args, "--", d.Path())
	return append(args, extra...)
}

func (d *SevenZipDriver) load(ctx context.Context) error {
	out, err := d.cmd.Run(ctx, "", d.args("l", "-slt")...)
	if err != nil {
		return err
	}
	index := engine.NewIndex()
	for _, e := range parseSlt(out) {
		index.Add(e)
	}
	d.SetIndex(index)
	return nil
}

func (d *SevenZipDriver) open(ctx context.Context, e engine.Entry) (io.ReadCloser, error) {
	return d.cmd.Stream(ctx, d.args("x", "-so", e.Path)...)
}

// Delete removes entries, and directory paths with everything below them.
func (d *SevenZipDriver) Delete(ctx context.Context, paths []string) (int, error) {
	if err := d.Require(engine.CapDelete, "delete"); err != nil {
		return 0, err
	}
	if len(paths) == 0 {
		return 0, nil
	}
	entries, err := d.Index().Targets(paths)
	if err != nil {
		return 0, err
	}

	targets := make([]string, 0, len(entries)+len(paths))
	for _, e := range entries {
		targets = append(targets, e.Path)
	}
	for _, p := range paths {
		if p = engine.NormalizePath(p); p != "" && !slices.Contains(targets, p) {
			targets = append(targets, p)
		}
	}

	if _, err := d.cmd.Run(ctx, "", d.args("d", targets...)...); err != nil {
		return 0, engine.WrapOp(engine.OpModify, SevenZipName, d.Path(), err)
	}
	if err := d.load(ctx); err != nil {
		return 0, engine.WrapOp(engine.OpModify, SevenZipName, d.Path(), err)
	}
	return len(entries), nil
}

// Add stages sources and updates the archive with them; entries with the
// same name are replaced.
func (d *SevenZipDriver) Add(ctx context.Context, sources []engine.Source) (int, error) {
	if err := d.Require(engine.CapAppend, "add"); err != nil {
		return 0, err
	}
	if err := d.add(ctx, sources); err != nil {
		return 0, engine.WrapOp(engine.OpModify, SevenZipName, d.Path(), err)
	}
	return len(sources), nil
}

func (d *SevenZipDriver) AddBytes(ctx context.Context, name string, data []byte) (err error) {
	if err := d.Require(engine.CapAppend, "add"); err != nil {
		return err
	}
	tmp, err := os.CreateTemp("", "archivekit-bytes-*")
	if err != nil {
		return engine.WrapOp(engine.OpModify, SevenZipName, d.Path(), err)
	}
	defer func() {
		err = errors.Join(err, os.Remove(tmp.Name()))
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return engine.WrapOp(engine.OpModify, SevenZipName, d.Path(), err)
	}
	if err := tmp.Close(); err != nil {
		return engine.WrapOp(engine.OpModify, SevenZipName, d.Path(), err)
	}
	if err := d.add(ctx, []engine.Source{{Name: name, Path: tmp.Name()}}); err != nil {
		return engine.WrapOp(engine.OpModify, SevenZipName, d.Path(), err)
	}
	return nil
}

func (d *SevenZipDriver) add(ctx context.Context, sources []engine.Source) (err error) {
	dir, names, err := stage(sources, nil)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, os.RemoveAll(dir))
	}()

	archive, err := filepath.Abs(d.Path())
	if err != nil {
		return err
	}
	args := append([]string{"a"}, sevenZipSwitches...)
	args = append(args, passwordSwitches(d.Format(), d.password, true)...)
	args = append(args, "--", archive)
	args = append(args, names...)
	if _, err := d.cmd.Run(ctx, dir, args...); err != nil {
		return err
	}
	return d.load(ctx)
}

func (d *SevenZipDriver) Close() error {
	return d.MarkClosed()
}

var (
	_ engine.DriverKind = (*SevenZipKind)(nil)
	_ engine.Creator    = (*SevenZipKind)(nil)
	_ engine.Driver     = (*SevenZipDriver)(nil)
)
