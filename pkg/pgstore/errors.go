package pgstore

import (
	"errors"
	"fmt"
)

// Kind classifies an Error, mirroring the error taxonomy of spec.md §7.
type Kind int

const (
	// KindStorageOpen: cannot create/open the underlying store.
	KindStorageOpen Kind = iota
	// KindStorageIO: a read/write against the underlying store failed.
	KindStorageIO
	// KindEncode: a value failed to serialize.
	KindEncode
	// KindDecode: a stored value failed to deserialize (corruption or version skew).
	KindDecode
	// KindBadRecord: a malformed or rule-violating ingest record.
	KindBadRecord
	// KindFileIO: the .pgdf source file is missing or unreadable.
	KindFileIO
	// KindIndexInconsistency: a secondary-index entry points to a missing primary row.
	KindIndexInconsistency
	// KindUsageError: operating on a closed handle, or a separator byte in input.
	KindUsageError
)

func (k Kind) String() string {
	switch k {
	case KindStorageOpen:
		return "StorageOpen"
	case KindStorageIO:
		return "StorageIO"
	case KindEncode:
		return "Encode"
	case KindDecode:
		return "Decode"
	case KindBadRecord:
		return "BadRecord"
	case KindFileIO:
		return "FileIO"
	case KindIndexInconsistency:
		return "IndexInconsistency"
	case KindUsageError:
		return "UsageError"
	default:
		return "Unknown"
	}
}

// Error is the typed error every pgstore operation returns on failure.
// Use errors.As to recover the Kind, or the Is* helpers below.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pgstore: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("pgstore: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ErrNotFound-equivalent: point lookups report absence via a (value,
// bool) pair, not an error, matching spec.md's "None if absent"
// guarantee; there is deliberately no ErrNotFound sentinel here.
var errCursorClosed = errors.New("pgstore: cursor already closed")
