package serializer

import (
	"path/filepath"
	"testing"

	"pll/pkg/buffer"
)

func newStreams(t *testing.T, size int64) (*buffer.OutputStream, func() *buffer.InputStream) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	buf, err := buffer.OpenDirectBuffer(path, buffer.ProtectionForce)
	if err != nil {
		t.Fatalf("open buffer: %v", err)
	}
	t.Cleanup(func() { buf.Close() })
	if err := buf.SetCapacity(size); err != nil {
		t.Fatalf("set capacity: %v", err)
	}
	out, err := buf.OutputStream(0, size)
	if err != nil {
		t.Fatalf("output stream: %v", err)
	}
	return out, func() *buffer.InputStream {
		in, err := buf.InputStream(0, size)
		if err != nil {
			t.Fatalf("input stream: %v", err)
		}
		return in
	}
}

func TestBoolSerializerRoundTrip(t *testing.T) {
	for _, v := range []bool{true, false} {
		out, reopen := newStreams(t, 1)
		s := BoolSerializer{}
		if err := s.Serialize(v, out); err != nil {
			t.Fatal(err)
		}
		got, err := s.Deserialize(reopen())
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Fatalf("got %v, want %v", got, v)
		}
	}
}

func TestByteSerializerRoundTrip(t *testing.T) {
	out, reopen := newStreams(t, 1)
	s := ByteSerializer{}
	if err := s.Serialize(0xAB, out); err != nil {
		t.Fatal(err)
	}
	got, err := s.Deserialize(reopen())
	if err != nil {
		t.Fatal(err)
	}
	if got != 0xAB {
		t.Fatalf("got %x, want %x", got, 0xAB)
	}
}

func TestCharSerializerBigEndian(t *testing.T) {
	out, reopen := newStreams(t, 2)
	s := CharSerializer{}
	if err := s.Serialize(0x1234, out); err != nil {
		t.Fatal(err)
	}
	in := reopen()
	b0, _ := in.ReadByte()
	if b0 != 0x12 {
		t.Fatalf("first byte = %x, want 0x12", b0)
	}
}

func TestInt32SerializerRoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 2147483647, -2147483648} {
		out, reopen := newStreams(t, 4)
		s := Int32Serializer{}
		if err := s.Serialize(v, out); err != nil {
			t.Fatal(err)
		}
		got, err := s.Deserialize(reopen())
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Fatalf("got %d, want %d", got, v)
		}
	}
}

func TestInt64SerializerRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 9223372036854775807, -9223372036854775808} {
		out, reopen := newStreams(t, 8)
		s := Int64Serializer{}
		if err := s.Serialize(v, out); err != nil {
			t.Fatal(err)
		}
		got, err := s.Deserialize(reopen())
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Fatalf("got %d, want %d", got, v)
		}
	}
}

func TestFloat32SerializerRoundTrip(t *testing.T) {
	for _, v := range []float32{0, 1.5, -1.5, 3.1415927} {
		out, reopen := newStreams(t, 4)
		s := Float32Serializer{}
		if err := s.Serialize(v, out); err != nil {
			t.Fatal(err)
		}
		got, err := s.Deserialize(reopen())
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Fatalf("got %v, want %v", got, v)
		}
	}
}

func TestFloat64SerializerRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 1.5, -1.5, 3.14159265358979} {
		out, reopen := newStreams(t, 8)
		s := Float64Serializer{}
		if err := s.Serialize(v, out); err != nil {
			t.Fatal(err)
		}
		got, err := s.Deserialize(reopen())
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Fatalf("got %v, want %v", got, v)
		}
	}
}

func TestByteArraySerializerRoundTrip(t *testing.T) {
	v := []byte("hello, persistent list")
	s := ByteArraySerializer{}
	out, reopen := newStreams(t, int64(s.Size(v)))
	if err := s.Serialize(v, out); err != nil {
		t.Fatal(err)
	}
	got, err := s.Deserialize(reopen())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(v) {
		t.Fatalf("got %q, want %q", got, v)
	}
}

func TestByteArraySerializerEmpty(t *testing.T) {
	v := []byte{}
	s := ByteArraySerializer{}
	out, reopen := newStreams(t, int64(s.Size(v)))
	if err := s.Serialize(v, out); err != nil {
		t.Fatal(err)
	}
	got, err := s.Deserialize(reopen())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestCharArraySerializerRoundTrip(t *testing.T) {
	v := []uint16{'h', 'i', 0x1234}
	s := CharArraySerializer{}
	out, reopen := newStreams(t, int64(s.Size(v)))
	if err := s.Serialize(v, out); err != nil {
		t.Fatal(err)
	}
	got, err := s.Deserialize(reopen())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(v) {
		t.Fatalf("got %v, want %v", got, v)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("index %d: got %x, want %x", i, got[i], v[i])
		}
	}
}

func TestOpaqueSerializerRoundTripStruct(t *testing.T) {
	type point struct {
		X, Y int
	}
	v := point{X: 3, Y: -7}
	s := OpaqueSerializer[point]{}
	out, reopen := newStreams(t, int64(s.Size(v)))
	if err := s.Serialize(v, out); err != nil {
		t.Fatal(err)
	}
	got, err := s.Deserialize(reopen())
	if err != nil {
		t.Fatal(err)
	}
	if got != v {
		t.Fatalf("got %+v, want %+v", got, v)
	}
}

func TestOpaqueSerializerFixedSizeFalse(t *testing.T) {
	s := OpaqueSerializer[string]{}
	if s.FixedSize() {
		t.Fatal("opaque serializer must not report fixed size")
	}
}

func TestRegistryConstructorsMatchBuiltins(t *testing.T) {
	if _, ok := Bool().(BoolSerializer); !ok {
		t.Fatal("Bool() did not return BoolSerializer")
	}
	if _, ok := Int64().(Int64Serializer); !ok {
		t.Fatal("Int64() did not return Int64Serializer")
	}
	if _, ok := Opaque[int]().(OpaqueSerializer[int]); !ok {
		t.Fatal("Opaque[int]() did not return OpaqueSerializer[int]")
	}
}
