package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is matched by every *UnsupportedFormatError.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrUnsupportedOperation is matched by every *UnsupportedOperationError.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("entry not found")
	// ErrClosed is returned by any driver call made after Close.
	ErrClosed = errors.New("archive is closed")
	// ErrUnsafePath reports an entry path that would escape the extraction root.
	ErrUnsafePath = errors.New("entry path escapes destination")

	ErrOpen         = errors.New("open failed")
	ErrExtraction   = errors.New("extraction failed")
	ErrCreation     = errors.New("creation failed")
	ErrModification = errors.New("modification failed")
)

// UnsupportedFormatError is returned when a format cannot be detected or no
// usable driver is registered for it.
type UnsupportedFormatError struct {
	Format    Format
	Path      string
	Available []string // formats with at least one usable driver
}

func (e *UnsupportedFormatError) Error() string {
	subject := e.Format.String()
	if e.Format == None && e.Path != "" {
		subject = fmt.Sprintf("of %s", e.Path)
	}
	if len(e.Available) == 0 {
		return fmt.Sprintf("unsupported format %s", subject)
	}
	return fmt.Sprintf("unsupported format %s (available: %v)", subject, e.Available)
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// UnsupportedOperationError is returned when a driver exists for the format
// but lacks the capability the operation needs.
type UnsupportedOperationError struct {
	Driver    string
	Format    Format
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	if e.Driver == "" {
		return fmt.Sprintf("operation %s is not supported for format %s", e.Operation, e.Format)
	}
	return fmt.Sprintf("operation %s is not supported by driver %s for format %s", e.Operation, e.Driver, e.Format)
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}

// NotFoundError is returned when an entry path is absent from the archive.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entry %q not found", e.Path)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Op names the backend operation an OpError comes from.
type Op string

const (
	OpOpen    Op = "open"
	OpExtract Op = "extract"
	OpCreate  Op = "create"
	OpModify  Op = "modify"
)

// OpError wraps a backend failure: corrupt data, I/O errors or a failing
// subprocess.
type OpError struct {
	Op     Op
	Driver string
	Path   string
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s (driver %s): %v", e.Op, e.Path, e.Driver, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func (e *OpError) Is(target error) bool {
	switch e.Op {
	case OpOpen:
		return target == ErrOpen
	case OpExtract:
		return target == ErrExtraction
	case OpCreate:
		return target == ErrCreation
	case OpModify:
		return target == ErrModification
	}
	return false
}

// WrapOp returns err as an *OpError unless it already carries one of the
// engine error kinds, which are passed through untouched.
func WrapOp(op Op, driver, path string, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OpError
	if errors.As(err, &opErr) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnsupportedOperation) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrClosed) {
		return err
	}
	return &OpError{Op: op, Driver: driver, Path: path, Err: err}
}
