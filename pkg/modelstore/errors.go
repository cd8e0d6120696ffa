package modelstore

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/modelstore/pkg/modelstore/frame"
)

// Sentinel errors returned by modelstore operations.
//
// Callers should use [errors.Is] to check error types:
//
//	payload, _, err := store.LoadSettings()
//	if errors.Is(err, modelstore.ErrNotFound) {
//	    payload = defaults.Settings()
//	}
var (
	// ErrNotFound indicates the record is absent. It is a valid query result:
	// an empty slot, or settings that were never written.
	ErrNotFound = errors.New("modelstore: not found")

	// ErrCorruptHeader indicates a file too short to hold a frame header.
	//
	// Recovery: delete the record or restore it from a backup.
	ErrCorruptHeader = frame.ErrCorruptHeader

	// ErrIncompatibleFormat indicates an unknown magic, unsupported version,
	// or a record of the wrong kind.
	//
	// Recovery: restore from a compatible backup.
	ErrIncompatibleFormat = frame.ErrIncompatibleFormat

	// ErrIncompatible is the name used by backup/restore for
	// [ErrIncompatibleFormat].
	ErrIncompatible = ErrIncompatibleFormat

	// ErrTruncatedPayload indicates the payload is shorter than its kind
	// requires, usually after a power loss during a non-atomic write.
	ErrTruncatedPayload = frame.ErrTruncatedPayload

	// ErrNoMedia indicates removable media is not present.
	//
	// Recovery: insert media and retry.
	ErrNoMedia = errors.New("modelstore: no media")

	// ErrMedia indicates an I/O failure against removable media.
	ErrMedia = errors.New("modelstore: media error")

	// ErrIO indicates a local storage failure (permission, space, device).
	//
	// The in-memory state is unchanged; retrying later may succeed.
	ErrIO = errors.New("modelstore: io error")

	// ErrInvalidInput indicates invalid arguments, such as a payload of the
	// wrong size or a backup name containing a path separator.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("modelstore: invalid input")

	// ErrSwapPending indicates the scratch file of an interrupted swap is
	// still on disk and this swap cannot proceed without risking it.
	//
	// Recovery: re-run the interrupted swap (see [SwapPendingError]).
	ErrSwapPending = errors.New("modelstore: interrupted swap pending")
)

// SwapPendingError reports the pair whose interrupted swap must be
// finished first. It matches [ErrSwapPending].
type SwapPendingError struct {
	A, B    int
	Scratch string
}

func (e *SwapPendingError) Error() string {
	return fmt.Sprintf("%v: slots %d and %d (%s)", ErrSwapPending, e.A, e.B, e.Scratch)
}

func (e *SwapPendingError) Unwrap() error {
	return ErrSwapPending
}

// UI strings returned by [Message].
const (
	MsgNoMedia      = "No SD card"
	MsgMediaError   = "SD card error"
	MsgIncompatible = "Incompatible"
	MsgCorrupt      = "Corrupt data"
	MsgNotFound     = "Not found"
	MsgStorageError = "Storage error"
	MsgSwapPending  = "Swap pending"
)

// Message maps err to the short string the menu layer renders.
// Returns "" for nil. Errors that are not modelstore sentinels (for example
// from a [Converter]) are shown verbatim.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoMedia):
		return MsgNoMedia
	case errors.Is(err, ErrIncompatibleFormat):
		return MsgIncompatible
	case errors.Is(err, ErrMedia):
		return MsgMediaError
	case errors.Is(err, ErrCorruptHeader), errors.Is(err, ErrTruncatedPayload):
		return MsgCorrupt
	case errors.Is(err, ErrNotFound):
		return MsgNotFound
	case errors.Is(err, ErrSwapPending):
		return MsgSwapPending
	case errors.Is(err, ErrIO):
		return MsgStorageError
	default:
		return err.Error()
	}
}
