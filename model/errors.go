package model

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed redaction job. Every kind is fail-closed: no
// output is published.
type Kind int

const (
	KindUnknown Kind = iota
	UnsupportedFormat
	FormatMismatch
	CorruptInput
	EncryptedOrProtected
	PartialRedactionFailure
	ResidualContentDetected
	Cancelled
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case UnsupportedFormat:
		return "UnsupportedFormat"
	case FormatMismatch:
		return "FormatMismatch"
	case CorruptInput:
		return "CorruptInput"
	case EncryptedOrProtected:
		return "EncryptedOrProtected"
	case PartialRedactionFailure:
		return "PartialRedactionFailure"
	case ResidualContentDetected:
		return "ResidualContentDetected"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Sentinel values for errors.Is.
var (
	ErrUnsupportedFormat       = &Error{Kind: UnsupportedFormat}
	ErrFormatMismatch          = &Error{Kind: FormatMismatch}
	ErrCorruptInput            = &Error{Kind: CorruptInput}
	ErrEncryptedOrProtected    = &Error{Kind: EncryptedOrProtected}
	ErrPartialRedactionFailure = &Error{Kind: PartialRedactionFailure}
	ErrResidualContentDetected = &Error{Kind: ResidualContentDetected}
	ErrCancelled               = &Error{Kind: Cancelled}
)

// Error is the failure returned at the engine boundary. Its message is built
// only from the kind, the stage, a fixed detail string and locations; the
// wrapped cause is reachable through Unwrap but never printed, because
// parser errors may quote document bytes.
type Error struct {
	Kind      Kind
	Format    string
	Op        string
	Detail    string
	Locations []Location
	Err       error
}

// NewError creates an error of the given kind
func NewError(kind Kind, op, detail string, cause error, locs ...Location) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Err: cause, Locations: locs}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("redact")
	if e.Format != "" {
		b.WriteString(" " + e.Format)
	}
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	switch n := len(e.Locations); {
	case n == 1:
		b.WriteString(" at " + e.Locations[0].String())
	case n > 1:
		fmt.Fprintf(&b, " at %s (+%d more)", e.Locations[0].String(), n-1)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels above work with
// errors.Is regardless of stage or location.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the kind from err, or KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
