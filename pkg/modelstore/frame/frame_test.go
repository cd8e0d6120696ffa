package frame_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/modelstore/pkg/modelstore/frame"
)

func legacyFrame(magic frame.Magic, kind frame.Kind, length uint16, stream []byte) []byte {
	buf := make([]byte, frame.HeaderSize, frame.HeaderSize+len(stream))
	binary.LittleEndian.PutUint32(buf[0:], uint32(magic))
	buf[4] = byte(frame.VersionLegacy)
	buf[5] = byte(kind)
	binary.LittleEndian.PutUint16(buf[6:], length)

	return append(buf, stream...)
}

func mustEncode(t *testing.T, kind frame.Kind, payload []byte) []byte {
	t.Helper()

	data, err := frame.Encode(kind, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	return data
}

func Test_Encode_Writes_Current_Header_When_Payload_Is_Valid(t *testing.T) {
	t.Parallel()

	data := mustEncode(t, frame.KindModel, []byte("abc"))

	want := []byte{'o', 't', 'x', '4', 218, 'M', 3, 0, 'a', 'b', 'c'}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Fatalf("frame mismatch (-want +got):\n%s", diff)
	}
}

func Test_Encode_Returns_Error_When_Payload_Exceeds_Length_Field(t *testing.T) {
	t.Parallel()

	_, err := frame.Encode(frame.KindModel, make([]byte, 0x10000))

	if got, want := err, frame.ErrPayloadTooLarge; !errors.Is(got, want) {
		t.Fatalf("err=%v, want=%v", got, want)
	}
}

func Test_Decode_Returns_Original_Payload_When_Frame_Was_Encoded(t *testing.T) {
	t.Parallel()

	sizes := []int{0, 1, 7, 8, 255, 1024, 0xFFFF}

	for _, kind := range []frame.Kind{frame.KindModel, frame.KindSettings} {
		for _, size := range sizes {
			payload := make([]byte, size)
			for i := range payload {
				payload[i] = byte(i*31 + size)
			}

			got, version, err := frame.DecodeBytes(mustEncode(t, kind, payload), kind, size)
			if err != nil {
				t.Fatalf("kind=%s size=%d: Decode: %v", kind, size, err)
			}

			if version != frame.VersionCurrent {
				t.Fatalf("kind=%s size=%d: version=%d, want=%d", kind, size, version, frame.VersionCurrent)
			}

			if !bytes.Equal(got, payload) {
				t.Fatalf("kind=%s size=%d: payload mismatch", kind, size)
			}
		}
	}
}

func Test_Decode_Reads_Prefix_When_Capacity_Is_Smaller_Than_Payload(t *testing.T) {
	t.Parallel()

	data := mustEncode(t, frame.KindModel, []byte("MODEL NAME and the rest"))

	got, _, err := frame.DecodeBytes(data, frame.KindModel, 10)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got, want := string(got), "MODEL NAME"; got != want {
		t.Fatalf("prefix=%q, want=%q", got, want)
	}
}

func Test_Decode_Returns_ErrCorruptHeader_When_Fewer_Than_8_Bytes(t *testing.T) {
	t.Parallel()

	full := mustEncode(t, frame.KindModel, []byte("x"))

	for n := range frame.HeaderSize {
		_, _, err := frame.DecodeBytes(full[:n], frame.KindModel, 1)

		if got, want := err, frame.ErrCorruptHeader; !errors.Is(got, want) {
			t.Fatalf("len=%d: err=%v, want=%v", n, got, want)
		}
	}
}

func Test_Decode_Returns_ErrIncompatibleFormat_When_Header_Does_Not_Match(t *testing.T) {
	t.Parallel()

	valid := mustEncode(t, frame.KindModel, []byte("payload"))

	tests := []struct {
		name   string
		mutate func(b []byte)
		kind   frame.Kind
	}{
		{name: "kind mismatch", mutate: func([]byte) {}, kind: frame.KindSettings},
		{name: "unknown magic", mutate: func(b []byte) { b[0] = 'X' }, kind: frame.KindModel},
		{name: "future version", mutate: func(b []byte) { b[4] = 219 }, kind: frame.KindModel},
		{name: "ancient version", mutate: func(b []byte) { b[4] = 216 }, kind: frame.KindModel},
		{name: "unknown kind tag", mutate: func(b []byte) { b[5] = 'Z' }, kind: frame.KindModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := bytes.Clone(valid)
			tt.mutate(data)

			payload, _, err := frame.DecodeBytes(data, tt.kind, 7)

			if got, want := err, frame.ErrIncompatibleFormat; !errors.Is(got, want) {
				t.Fatalf("err=%v, want=%v", got, want)
			}

			if errors.Is(err, frame.ErrCorruptHeader) {
				t.Fatalf("err=%v must not be ErrCorruptHeader", err)
			}

			if payload != nil {
				t.Fatalf("payload=%v, want nil on error", payload)
			}
		})
	}
}

func Test_Decode_Returns_ErrTruncatedPayload_When_Payload_Is_Short(t *testing.T) {
	t.Parallel()

	data := mustEncode(t, frame.KindModel, make([]byte, 64))

	_, _, err := frame.DecodeBytes(data[:frame.HeaderSize+10], frame.KindModel, 64)
	if got, want := err, frame.ErrTruncatedPayload; !errors.Is(got, want) {
		t.Fatalf("short file: err=%v, want=%v", got, want)
	}

	_, _, err = frame.DecodeBytes(data, frame.KindModel, 65)
	if got, want := err, frame.ErrTruncatedPayload; !errors.Is(got, want) {
		t.Fatalf("declared length too small: err=%v, want=%v", got, want)
	}
}

func Test_Decode_Accepts_Legacy_Magics_When_Version_Is_Current(t *testing.T) {
	t.Parallel()

	for _, magic := range []frame.Magic{frame.MagicOTX, frame.MagicO9X, frame.MagicOTXMega, frame.MagicO9XMega} {
		data := mustEncode(t, frame.KindModel, []byte{1, 2})
		binary.LittleEndian.PutUint32(data, uint32(magic))

		_, _, err := frame.DecodeBytes(data, frame.KindModel, 2)
		if err != nil {
			t.Fatalf("magic=%s: %v", magic, err)
		}
	}
}

func Test_Decode_Expands_Legacy_Payload_When_Version_Is_Legacy(t *testing.T) {
	t.Parallel()

	// zeros=3 literal=2 -> 0b1_011_0010
	stream := []byte{0xB2, 'A', 'B', 0x00}
	data := legacyFrame(frame.MagicO9X, frame.KindModel, 12, stream)

	got, version, err := frame.DecodeBytes(data, frame.KindModel, 12)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if version != frame.VersionLegacy {
		t.Fatalf("version=%d, want=%d", version, frame.VersionLegacy)
	}

	want := []byte{0, 0, 0, 'A', 'B', 0, 0, 0, 0, 0, 0, 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func Test_Decode_Returns_Read_Error_When_Reader_Fails(t *testing.T) {
	t.Parallel()

	boom := errors.New("device gone")
	data := mustEncode(t, frame.KindModel, make([]byte, 32))
	r := io.MultiReader(bytes.NewReader(data[:frame.HeaderSize+4]), iotest.ErrReader(boom))

	_, _, err := frame.Decode(r, frame.KindModel, 32)

	if got, want := err, boom; !errors.Is(got, want) {
		t.Fatalf("err=%v, want=%v", got, want)
	}

	if errors.Is(err, frame.ErrTruncatedPayload) {
		t.Fatalf("err=%v must not be ErrTruncatedPayload", err)
	}
}

func Test_ReadHeader_Returns_Version_When_Payload_Is_Not_Consumed(t *testing.T) {
	t.Parallel()

	data := legacyFrame(frame.MagicOTX, frame.KindModel, 500, []byte{0x41})

	hdr, err := frame.ReadHeader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}

	want := frame.Header{Magic: frame.MagicOTX, Version: frame.VersionLegacy, Kind: frame.KindModel, Length: 500}
	if diff := cmp.Diff(want, hdr); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
}

func Fuzz_Decode_Does_Not_Panic_When_Input_Is_Arbitrary(f *testing.F) {
	f.Add([]byte{}, 16)
	f.Add(legacyFrame(frame.MagicOTX, frame.KindModel, 4, []byte{0xB2, 1, 2, 0}), 8)
	f.Add([]byte{'o', 't', 'x', '4', 218, 'M', 2, 0, 9, 9}, 2)

	f.Fuzz(func(t *testing.T, data []byte, capacity int) {
		if capacity < 0 || capacity > 4096 {
			return
		}

		payload, _, err := frame.DecodeBytes(data, frame.KindModel, capacity)
		if err == nil && len(payload) != capacity {
			t.Fatalf("len(payload)=%d, want=%d", len(payload), capacity)
		}

		if err != nil && payload != nil {
			t.Fatalf("payload=%v returned with err=%v", payload, err)
		}
	})
}
