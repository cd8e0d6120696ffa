// Package frame implements the on-disk record framing.
//
// Every record file starts with an 8-byte little-endian header:
//
//	offset size field
//	0      4    magic (fourcc)
//	4      1    format version
//	5      1    kind tag ('M' model, 'G' general settings)
//	6      2    payload length
//
// followed by the payload. Records are always written uncompressed at
// [VersionCurrent]. Records at [VersionLegacy] carry a run-length encoded
// payload and are only ever read, see [DecodeRLE].
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the fixed frame header size in bytes.
const HeaderSize = 8

// Header field offsets.
const (
	offMagic   = 0 // uint32
	offVersion = 4 // uint8
	offKind    = 5 // uint8
	offLength  = 6 // uint16
)

// Kind tags the record type stored in a frame.
type Kind uint8

// Record kinds.
const (
	KindModel    Kind = 'M'
	KindSettings Kind = 'G'
)

func (k Kind) String() string {
	switch k {
	case KindModel:
		return "model"
	case KindSettings:
		return "settings"
	default:
		return fmt.Sprintf("kind(0x%02x)", uint8(k))
	}
}

// Version is the format version byte.
type Version uint8

// Supported versions.
const (
	// VersionLegacy is the oldest readable version. Its payload is RLE
	// compressed and its records need conversion before use.
	VersionLegacy Version = 217

	// VersionCurrent is the only version ever written.
	VersionCurrent Version = 218
)

// Magic is the fourcc identifying this product's record format.
type Magic uint32

// Accepted magics, stored little-endian.
const (
	MagicOTX     Magic = 0x3478746F // "otx4", written by this release
	MagicO9X     Magic = 0x3178396F // "o9x1"
	MagicOTXMega Magic = 0x4D78746F // "otxM"
	MagicO9XMega Magic = 0x4D78396F // "o9xM"
)

// Known reports whether m is one of the accepted magics.
func (m Magic) Known() bool {
	switch m {
	case MagicOTX, MagicO9X, MagicOTXMega, MagicO9XMega:
		return true
	default:
		return false
	}
}

func (m Magic) String() string {
	var b [4]byte

	binary.LittleEndian.PutUint32(b[:], uint32(m))

	return fmt.Sprintf("%q", b[:])
}

// Header is a decoded frame header.
type Header struct {
	Magic   Magic
	Version Version
	Kind    Kind
	// Length is the payload length. For legacy frames it is the length
	// before compression.
	Length uint16
}

// ParseHeader decodes the first [HeaderSize] bytes of b.
// Returns [ErrCorruptHeader] if b is too short. It does not validate fields.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d of %d bytes", ErrCorruptHeader, len(b), HeaderSize)
	}

	return Header{
		Magic:   Magic(binary.LittleEndian.Uint32(b[offMagic:])),
		Version: Version(b[offVersion]),
		Kind:    Kind(b[offKind]),
		Length:  binary.LittleEndian.Uint16(b[offLength:]),
	}, nil
}

// ReadHeader reads and parses a header from r without validating it.
// A short read returns [ErrCorruptHeader].
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte

	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, fmt.Errorf("%w: %d of %d bytes", ErrCorruptHeader, n, HeaderSize)
		}

		return Header{}, fmt.Errorf("read header: %w", err)
	}

	return ParseHeader(buf[:])
}

// Validate checks magic, version, and kind against want.
// Returns [ErrIncompatibleFormat] describing the first mismatch.
func (h Header) Validate(want Kind) error {
	if !h.Magic.Known() {
		return fmt.Errorf("%w: unknown magic %s", ErrIncompatibleFormat, h.Magic)
	}

	if h.Version != VersionLegacy && h.Version != VersionCurrent {
		return fmt.Errorf("%w: version %d", ErrIncompatibleFormat, h.Version)
	}

	if h.Kind != want {
		return fmt.Errorf("%w: kind %s, want %s", ErrIncompatibleFormat, h.Kind, want)
	}

	return nil
}

// Encode frames payload at [VersionCurrent] with [MagicOTX].
func Encode(kind Kind, payload []byte) ([]byte, error) {
	if len(payload) > 0xFFFF {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	buf := make([]byte, HeaderSize+len(payload))

	binary.LittleEndian.PutUint32(buf[offMagic:], uint32(MagicOTX))
	buf[offVersion] = byte(VersionCurrent)
	buf[offKind] = byte(kind)
	binary.LittleEndian.PutUint16(buf[offLength:], uint16(len(payload)))
	copy(buf[HeaderSize:], payload)

	return buf, nil
}

// Write encodes payload and writes the frame to w in one call.
func Write(w io.Writer, kind Kind, payload []byte) error {
	buf, err := Encode(kind, payload)
	if err != nil {
		return err
	}

	_, err = w.Write(buf)
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// Decode reads one frame of the expected kind from r and returns exactly
// capacity payload bytes together with the version found on disk.
//
// For [VersionCurrent] the payload is read verbatim; fewer than capacity
// bytes, or a declared length below capacity, is [ErrTruncatedPayload].
// A capacity smaller than the declared length reads just that prefix.
//
// For [VersionLegacy] the payload is RLE-decoded; a stream that ends early
// leaves the tail zero-filled.
//
// On error the returned payload is nil.
func Decode(r io.Reader, want Kind, capacity int) ([]byte, Version, error) {
	if capacity < 0 {
		panic("frame: negative capacity")
	}

	hdr, err := ReadHeader(r)
	if err != nil {
		return nil, 0, err
	}

	err = hdr.Validate(want)
	if err != nil {
		return nil, 0, err
	}

	out := make([]byte, capacity)

	if hdr.Version == VersionLegacy {
		_, err = DecodeRLE(r, out)
		if err != nil {
			return nil, 0, err
		}

		return out, hdr.Version, nil
	}

	if int(hdr.Length) < capacity {
		return nil, 0, fmt.Errorf("%w: declared %d bytes, need %d", ErrTruncatedPayload, hdr.Length, capacity)
	}

	n, err := io.ReadFull(r, out)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, fmt.Errorf("%w: read %d of %d bytes", ErrTruncatedPayload, n, capacity)
		}

		return nil, 0, fmt.Errorf("read payload: %w", err)
	}

	return out, hdr.Version, nil
}

// DecodeBytes is [Decode] over an in-memory frame.
func DecodeBytes(data []byte, want Kind, capacity int) ([]byte, Version, error) {
	return Decode(bytes.NewReader(data), want, capacity)
}
