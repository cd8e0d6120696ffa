package frame

import "errors"

// Sentinel errors returned by [Decode] and [ReadHeader].
//
// Callers should use [errors.Is] to check error types. Any other error
// returned by this package wraps a failure of the underlying reader.
var (
	// ErrCorruptHeader indicates fewer than [HeaderSize] bytes were available.
	//
	// Usually a file truncated by power loss during its first write.
	ErrCorruptHeader = errors.New("frame: corrupt header")

	// ErrIncompatibleFormat indicates an unknown magic, an unsupported
	// version, or a kind tag that does not match the requested kind.
	//
	// The frame is intact but was not written by a compatible release.
	ErrIncompatibleFormat = errors.New("frame: incompatible format")

	// ErrTruncatedPayload indicates the payload is shorter than required.
	ErrTruncatedPayload = errors.New("frame: truncated payload")

	// ErrPayloadTooLarge indicates a payload does not fit the 16-bit length
	// field. This is a programming error.
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)
