// Package bde exposes the public, read-only BitLocker volume access API:
// open an image, supply a credential, unlock, and read decrypted bytes
// (spec §6, §4.H).
package bde

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a bde.Error (spec §7 "Error kinds").
type ErrorKind int

const (
	IoError ErrorKind = iota
	MetadataCorrupt
	UnsupportedVersion
	UnsupportedEncryptionMethod
	InvalidCredential
	UnlockFailed
	NotUnlocked
	OutOfRange
	Aborted
)

func (k ErrorKind) String() string {
	switch k {
	case IoError:
		return "IoError"
	case MetadataCorrupt:
		return "MetadataCorrupt"
	case UnsupportedVersion:
		return "UnsupportedVersion"
	case UnsupportedEncryptionMethod:
		return "UnsupportedEncryptionMethod"
	case InvalidCredential:
		return "InvalidCredential"
	case UnlockFailed:
		return "UnlockFailed"
	case NotUnlocked:
		return "NotUnlocked"
	case OutOfRange:
		return "OutOfRange"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Error is the single result-carrying error type every exported operation
// returns (spec §9 "Handle-owning errors in the source are unnecessary: use
// a single result type whose error variant carries a context chain").
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("bde: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("bde: %s: %s", e.Kind, e.Message)
}

// Unwrap exposes Cause to errors.Is/errors.As, including through
// github.com/pkg/errors's chain so a top-level %+v prints a full stack of
// causes for forensic debugging.
func (e *Error) Unwrap() error { return e.Cause }

// newError builds an *Error, wrapping cause with github.com/pkg/errors so
// %+v renders a stack trace from the point of failure.
func newError(kind ErrorKind, message string, cause error) *Error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}
