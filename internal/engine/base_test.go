package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStub(t *testing.T, caps Capability, files map[string]string) Driver {
	t.Helper()
	k := newStubKind("stub", true, map[Format]Capability{Zip: caps, Gzip: caps})
	k.files = files
	d, err := k.Open(t.Context(), "test.zip", Zip, OpenOptions{})
	require.NoError(t, err)
	return d
}

func TestCatalog_Read(t *testing.T) {
	ctx := t.Context()
	d := openStub(t, CapOpen, map[string]string{"a.txt": "hello", "sub/b.txt": "world"})

	names, err := d.EntryNames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "sub/b.txt"}, names)

	ok, err := d.HasEntry(ctx, "sub/b.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := d.ReadAll(ctx, "sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	_, err = d.ReadAll(ctx, "missing.txt")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = d.Entry(ctx, "missing.txt")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_SummaryIsIdempotent(t *testing.T) {
	ctx := t.Context()
	d := openStub(t, CapOpen, map[string]string{"a.txt": "hello", "b.txt": "!"})

	first, err := d.Summary(ctx)
	require.NoError(t, err)
	second, err := d.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 6, first.UncompressedFilesSize)
}

func TestCatalog_Extract(t *testing.T) {
	ctx := t.Context()
	d := openStub(t, CapOpen, map[string]string{"a.txt": "hello", "sub/b.txt": "world"})

	sink := newMemorySink()
	n, err := d.Extract(ctx, sink, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string][]byte{"a.txt": []byte("hello"), "sub/b.txt": []byte("world")}, sink.writes)

	sink = newMemorySink()
	_, err = d.Extract(ctx, sink, []string{"a.txt", "nope"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, sink.writes, "nothing is written when a path is missing")
}

func TestCatalog_ExtractRejectsEscapingPaths(t *testing.T) {
	d := openStub(t, CapOpen, map[string]string{"../evil.txt": "x"})

	_, err := d.Extract(t.Context(), newMemorySink(), nil)
	require.ErrorIs(t, err, ErrUnsafePath)
	require.ErrorIs(t, err, ErrExtraction)
}

func TestBase_DefaultsAreUnsupported(t *testing.T) {
	ctx := t.Context()
	d := openStub(t, CapOpen|CapSetComment, nil)

	comment, err := d.Comment(ctx)
	require.NoError(t, err)
	assert.Nil(t, comment)

	// Declaring SET_COMMENT is not enough without an implementation.
	require.ErrorIs(t, d.SetComment(ctx, nil), ErrUnsupportedOperation)

	_, err = d.Delete(ctx, []string{"a"})
	require.ErrorIs(t, err, ErrUnsupportedOperation)
	_, err = d.Add(ctx, []Source{{Name: "a"}})
	require.ErrorIs(t, err, ErrUnsupportedOperation)
	require.ErrorIs(t, d.AddBytes(ctx, "a", nil), ErrUnsupportedOperation)
}

func TestBase_ClosedIsTerminal(t *testing.T) {
	ctx := t.Context()
	d := openStub(t, CapOpen, map[string]string{"a.txt": "hello"})

	require.NoError(t, d.Close())
	require.ErrorIs(t, d.Close(), ErrClosed)

	_, err := d.Summary(ctx)
	require.ErrorIs(t, err, ErrClosed)
	_, err = d.EntryNames(ctx)
	require.ErrorIs(t, err, ErrClosed)
	_, err = d.ReadAll(ctx, "a.txt")
	require.ErrorIs(t, err, ErrClosed)
	_, err = d.Extract(ctx, newMemorySink(), nil)
	require.ErrorIs(t, err, ErrClosed)
	_, err = d.Delete(ctx, nil)
	require.ErrorIs(t, err, ErrClosed)
	_, err = d.Comment(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestCheckPassword(t *testing.T) {
	plain := newStubKind("plain", true, map[Format]Capability{Zip: CapOpen, Gzip: CapOpen})
	crypto := newStubKind("crypto", true, map[Format]Capability{Zip: CapOpen | CapOpenEncrypted})

	require.NoError(t, CheckPassword(plain, Zip, ""))
	require.ErrorIs(t, CheckPassword(plain, Zip, "secret"), ErrUnsupportedOperation)
	require.NoError(t, CheckPassword(plain, Gzip, "secret"), "single-file formats ignore passwords")
	require.NoError(t, CheckPassword(crypto, Zip, "secret"))
}

func TestWrapOp(t *testing.T) {
	assert.NoError(t, WrapOp(OpOpen, "zip", "x.zip", nil))

	base := errors.New("boom")
	err := WrapOp(OpModify, "zip", "x.zip", base)
	require.ErrorIs(t, err, ErrModification)
	require.ErrorIs(t, err, base)
	assert.EqualError(t, err, "modify x.zip (driver zip): boom")

	nf := &NotFoundError{Path: "a"}
	assert.Same(t, nf, WrapOp(OpExtract, "zip", "x.zip", nf))
}
