package frame_test

import (
	"bytes"
	"errors"
	"io"
	"math/rand/v2"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/modelstore/pkg/modelstore/frame"
)

// encodeRLE produces a legacy stream for tests. The store never writes one.
// Trailing zeros are dropped, like the firmware did.
func encodeRLE(src []byte) []byte {
	end := len(src)
	for end > 0 && src[end-1] == 0 {
		end--
	}

	src = src[:end]

	var out []byte

	for i := 0; i < len(src); {
		zeros := 0
		for i+zeros < len(src) && src[i+zeros] == 0 && zeros < 63 {
			zeros++
		}

		if zeros > 7 {
			out = append(out, 0x40|byte(zeros))
			i += zeros

			continue
		}

		lits := 0
		for i+zeros+lits < len(src) && src[i+zeros+lits] != 0 && lits < 15 {
			lits++
		}

		out = append(out, 0x80|byte(zeros)<<4|byte(lits))
		out = append(out, src[i+zeros:i+zeros+lits]...)
		i += zeros + lits
	}

	return append(out, 0)
}

func Test_DecodeRLE_Expands_Each_Token_Form_When_Stream_Is_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		stream   []byte
		capacity int
		want     []byte
		wantN    int
	}{
		{
			name:     "long token zeros and literals",
			stream:   []byte{0xB2, 'A', 'B', 0x00},
			capacity: 8,
			want:     []byte{0, 0, 0, 'A', 'B', 0, 0, 0},
			wantN:    5,
		},
		{
			name:     "zero run token",
			stream:   []byte{0x45, 0x81, 'x', 0x00},
			capacity: 8,
			want:     []byte{0, 0, 0, 0, 0, 'x', 0, 0},
			wantN:    6,
		},
		{
			name:     "plain literal token",
			stream:   []byte{0x03, 'a', 'b', 'c', 0x00},
			capacity: 4,
			want:     []byte{'a', 'b', 'c', 0},
			wantN:    3,
		},
		{
			name:     "empty long token is skipped",
			stream:   []byte{0x80, 0x81, 'z'},
			capacity: 2,
			want:     []byte{'z', 0},
			wantN:    1,
		},
		{
			name:     "stops when output is full",
			stream:   []byte{0x8F, '1', '2', '3', '4', '5', '6', '7', '8', '9', 'a', 'b', 'c', 'd', 'e', 'f'},
			capacity: 4,
			want:     []byte{'1', '2', '3', '4'},
			wantN:    4,
		},
		{
			name:     "zero run capped by capacity",
			stream:   []byte{0x7F},
			capacity: 10,
			want:     make([]byte, 10),
			wantN:    10,
		},
		{
			name:     "input exhausted mid literal",
			stream:   []byte{0x85, 'h', 'i'},
			capacity: 6,
			want:     []byte{'h', 'i', 0, 0, 0, 0},
			wantN:    2,
		},
		{
			name:     "empty stream",
			stream:   nil,
			capacity: 3,
			want:     []byte{0, 0, 0},
			wantN:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dst := bytes.Repeat([]byte{0xEE}, tt.capacity)

			n, err := frame.DecodeRLE(bytes.NewReader(tt.stream), dst)
			if err != nil {
				t.Fatalf("DecodeRLE: %v", err)
			}

			if n != tt.wantN {
				t.Fatalf("n=%d, want=%d", n, tt.wantN)
			}

			if diff := cmp.Diff(tt.want, dst); diff != "" {
				t.Fatalf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_DecodeRLE_Reads_Byte_By_Byte_When_Reader_Is_Not_Buffered(t *testing.T) {
	t.Parallel()

	dst := make([]byte, 5)

	_, err := frame.DecodeRLE(iotest.OneByteReader(bytes.NewReader([]byte{0xB2, 'A', 'B', 0})), dst)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}

	if got, want := dst, []byte{0, 0, 0, 'A', 'B'}; !bytes.Equal(got, want) {
		t.Fatalf("dst=%v, want=%v", got, want)
	}
}

func Test_DecodeRLE_Returns_Error_When_Reader_Fails(t *testing.T) {
	t.Parallel()

	boom := errors.New("bad sector")
	r := io.MultiReader(bytes.NewReader([]byte{0x85, 'a'}), iotest.ErrReader(boom))

	_, err := frame.DecodeRLE(r, make([]byte, 8))

	if got, want := err, boom; !errors.Is(got, want) {
		t.Fatalf("err=%v, want=%v", got, want)
	}
}

func Test_DecodeRLE_Restores_Payload_When_Stream_Was_Encoded_By_Firmware_Scheme(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))

	for range 200 {
		payload := make([]byte, rng.IntN(600))
		for i := range payload {
			if rng.IntN(3) == 0 {
				payload[i] = byte(rng.IntN(255) + 1)
			}
		}

		got := make([]byte, len(payload))

		_, err := frame.DecodeRLE(bytes.NewReader(encodeRLE(payload)), got)
		if err != nil {
			t.Fatalf("DecodeRLE: %v", err)
		}

		if diff := cmp.Diff(payload, got); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func Fuzz_DecodeRLE_Fills_Exactly_Capacity_When_Stream_Is_Arbitrary(f *testing.F) {
	f.Add([]byte{0xB2, 'A', 'B', 0}, 16)
	f.Add([]byte{0x7F, 0x7F, 0x3F}, 200)

	f.Fuzz(func(t *testing.T, stream []byte, capacity int) {
		if capacity < 0 || capacity > 8192 {
			return
		}

		dst := bytes.Repeat([]byte{0xEE}, capacity)

		n, err := frame.DecodeRLE(bytes.NewReader(stream), dst)
		if err != nil {
			t.Fatalf("DecodeRLE: %v", err)
		}

		if n < 0 || n > capacity {
			t.Fatalf("n=%d out of range [0,%d]", n, capacity)
		}

		for i := n; i < capacity; i++ {
			if dst[i] != 0 {
				t.Fatalf("dst[%d]=%#x, want zero fill past n=%d", i, dst[i], n)
			}
		}
	})
}
