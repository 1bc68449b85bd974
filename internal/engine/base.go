package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
)

// Base carries the lifecycle shared by every driver and the default,
// unsupported, implementations of the mutating operations.
type Base struct {
	kind   DriverKind
	format Format
	path   string
	closed bool
}

func NewBase(kind DriverKind, f Format, path string) Base {
	return Base{kind: kind, format: f, path: path}
}

func (b *Base) Kind() DriverKind { return b.kind }
func (b *Base) Format() Format   { return b.format }
func (b *Base) Path() string     { return b.path }

// CheckOpen fails with ErrClosed once the driver has been closed.
func (b *Base) CheckOpen() error {
	if b.closed {
		return ErrClosed
	}
	return nil
}

// MarkClosed moves the driver to its terminal state. Closing twice fails.
func (b *Base) MarkClosed() error {
	if b.closed {
		return ErrClosed
	}
	b.closed = true
	return nil
}

// Unsupported builds the error returned for an operation this driver lacks.
func (b *Base) Unsupported(op string) error {
	return &UnsupportedOperationError{Driver: b.kind.Name(), Format: b.format, Operation: op}
}

// Require checks the driver is open and its kind declares c for the format.
func (b *Base) Require(c Capability, op string) error {
	if err := b.CheckOpen(); err != nil {
		return err
	}
	if !b.kind.Capabilities(b.format).Has(c) {
		return b.Unsupported(op)
	}
	return nil
}

func (b *Base) Delete(context.Context, []string) (int, error) {
	if err := b.CheckOpen(); err != nil {
		return 0, err
	}
	return 0, b.Unsupported("delete")
}

func (b *Base) Add(context.Context, []Source) (int, error) {
	if err := b.CheckOpen(); err != nil {
		return 0, err
	}
	return 0, b.Unsupported("add")
}

func (b *Base) AddBytes(context.Context, string, []byte) error {
	if err := b.CheckOpen(); err != nil {
		return err
	}
	return b.Unsupported("add")
}

func (b *Base) Comment(context.Context) (*string, error) {
	if err := b.CheckOpen(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (b *Base) SetComment(context.Context, *string) error {
	if err := b.CheckOpen(); err != nil {
		return err
	}
	return b.Unsupported("set comment")
}

// CheckPassword validates a password against the kind's capabilities.
// Single-file formats have no encryption and ignore it.
func CheckPassword(kind DriverKind, f Format, password string) error {
	if password == "" || f.SingleFile() {
		return nil
	}
	if !kind.Capabilities(f).Has(CapOpenEncrypted) {
		return &UnsupportedOperationError{Driver: kind.Name(), Format: f, Operation: "open encrypted"}
	}
	return nil
}

// EntryOpener opens the content of one indexed entry.
type EntryOpener func(ctx context.Context, e Entry) (io.ReadCloser, error)

// Catalog implements the read side of Driver over an Index. Drivers embed it
// and replace the index after every mutation.
type Catalog struct {
	Base
	index *Index
	open  EntryOpener
}

func NewCatalog(base Base, index *Index, open EntryOpener) Catalog {
	return Catalog{Base: base, index: index, open: open}
}

func (c *Catalog) SetIndex(index *Index) { c.index = index }
func (c *Catalog) Index() *Index         { return c.index }

func (c *Catalog) Summary(context.Context) (Information, error) {
	if err := c.CheckOpen(); err != nil {
		return Information{}, err
	}
	return c.index.Summary(), nil
}

func (c *Catalog) Entries(context.Context) ([]Entry, error) {
	if err := c.CheckOpen(); err != nil {
		return nil, err
	}
	return c.index.Entries(), nil
}

func (c *Catalog) EntryNames(context.Context) ([]string, error) {
	if err := c.CheckOpen(); err != nil {
		return nil, err
	}
	return c.index.Names(), nil
}

func (c *Catalog) HasEntry(_ context.Context, path string) (bool, error) {
	if err := c.CheckOpen(); err != nil {
		return false, err
	}
	_, ok := c.index.Lookup(path)
	return ok, nil
}

func (c *Catalog) Entry(_ context.Context, path string) (Entry, error) {
	if err := c.CheckOpen(); err != nil {
		return Entry{}, err
	}
	e, ok := c.index.Lookup(path)
	if !ok {
		return Entry{}, &NotFoundError{Path: path}
	}
	return e, nil
}

func (c *Catalog) OpenEntry(ctx context.Context, path string) (io.ReadCloser, error) {
	e, err := c.Entry(ctx, path)
	if err != nil {
		return nil, err
	}
	rc, err := c.open(ctx, e)
	if err != nil {
		return nil, WrapOp(OpExtract, c.kind.Name(), c.path, err)
	}
	return rc, nil
}

func (c *Catalog) ReadAll(ctx context.Context, path string) (data []byte, err error) {
	rc, err := c.OpenEntry(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, rc.Close())
	}()

	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, WrapOp(OpExtract, c.kind.Name(), c.path, err)
	}
	return data, nil
}

func (c *Catalog) Extract(ctx context.Context, sink Sink, paths []string) (int, error) {
	if err := c.CheckOpen(); err != nil {
		return 0, err
	}
	entries, err := c.index.Resolve(paths)
	if err != nil {
		return 0, err
	}
	n, err := ExtractEntries(ctx, sink, entries, c.open)
	return n, WrapOp(OpExtract, c.kind.Name(), c.path, err)
}

// ExtractEntries copies every entry through open into sink.
func ExtractEntries(ctx context.Context, sink Sink, entries []Entry, open EntryOpener) (int, error) {
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return i, fmt.Errorf("context cancelled: %w", err)
		}
		if err := CheckEntryPath(e.Path); err != nil {
			return i, err
		}
		if err := extractEntry(ctx, sink, e, open); err != nil {
			return i, fmt.Errorf("failed to extract %s: %w", e.Path, err)
		}
	}
	return len(entries), nil
}

func extractEntry(ctx context.Context, sink Sink, e Entry, open EntryOpener) (err error) {
	rc, err := open(ctx, e)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rc.Close())
	}()
	return sink.Write(ctx, e.Path, rc)
}

// CheckEntryPath rejects paths that would land outside the extraction root.
func CheckEntryPath(p string) error {
	if p == "" || !filepath.IsLocal(filepath.FromSlash(p)) {
		return fmt.Errorf("%w: %q", ErrUnsafePath, p)
	}
	return nil
}
