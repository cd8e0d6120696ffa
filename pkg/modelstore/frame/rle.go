package frame

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Run-control token layout for legacy payloads.
const (
	tokLong      = 0x80 // zero run in bits 4-6, literal run in bits 0-3
	tokZeros     = 0x40 // zero run in bits 0-5, no literal run
	tokLongZeros = 0x70
	tokLongLits  = 0x0f
	tokLowBits   = 0x3f
)

type byteReader interface {
	io.Reader
	io.ByteReader
}

// splitToken returns the zero run and literal run encoded by a non-zero
// token.
func splitToken(tok byte) (int, int) {
	switch {
	case tok&tokLong != 0:
		return int(tok&tokLongZeros) >> 4, int(tok & tokLongLits)
	case tok&tokZeros != 0:
		return int(tok & tokLowBits), 0
	default:
		return 0, int(tok & tokLowBits)
	}
}

// DecodeRLE expands a legacy run-length payload from r into dst and returns
// the number of bytes produced. Bytes of dst past that count are zeroed.
//
// The stream is a sequence of control tokens, each followed by its literal
// bytes:
//
//	1zzzllll  z zero bytes (0-7), then l literal bytes (0-15)
//	01zzzzzz  z zero bytes (0-63)
//	00llllll  l literal bytes (1-63)
//	00000000  end of stream
//
// Decoding stops when dst is full, at the end token, or when r is
// exhausted. Running out of input is not an error: trailing zero runs were
// never stored. Only a failure of r itself is returned.
func DecodeRLE(r io.Reader, dst []byte) (int, error) {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}

	n := 0

	for n < len(dst) {
		tok, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return n, fmt.Errorf("read rle token: %w", err)
		}

		if tok == 0 {
			break
		}

		zeros, literal := splitToken(tok)

		z := min(zeros, len(dst)-n)
		clear(dst[n : n+z])
		n += z

		l := min(literal, len(dst)-n)

		read, err := io.ReadFull(br, dst[n:n+l])
		n += read

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}

			return n, fmt.Errorf("read rle literal: %w", err)
		}
	}

	clear(dst[n:])

	return n, nil
}
