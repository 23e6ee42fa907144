package varint

import "testing"

func TestPutUvarint(t *testing.T) {
	tests := []struct {
		value    uint64
		expected []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x81, 0x00}},
		{255, []byte{0x81, 0x7f}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x81, 0x80, 0x00}},
	}
	for _, tt := range tests {
		buf := make([]byte, 10)
		n := PutUvarint(buf, tt.value)
		if n != len(tt.expected) {
			t.Errorf("PutUvarint(%d): expected %d bytes, got %d", tt.value, len(tt.expected), n)
		}
		for i := 0; i < n; i++ {
			if buf[i] != tt.expected[i] {
				t.Errorf("PutUvarint(%d): byte %d expected %02x, got %02x", tt.value, i, tt.expected[i], buf[i])
			}
		}
	}
}

func TestUvarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 255, 256, 16383, 16384, 1 << 20, 1 << 30, 1 << 40}
	for _, v := range values {
		buf := make([]byte, 10)
		n := PutUvarint(buf, v)
		got, m := Uvarint(buf[:n])
		if got != v || m != n {
			t.Errorf("roundtrip failed for %d: got %d, sizes %d vs %d", v, got, n, m)
		}
		if Len(v) != n {
			t.Errorf("Len(%d) = %d, want %d", v, Len(v), n)
		}
	}
}

func TestUvarintIncomplete(t *testing.T) {
	buf := []byte{0x81, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80}
	v, n := Uvarint(buf)
	if n != 0 || v != 0 {
		t.Errorf("expected incomplete decode to fail, got v=%d n=%d", v, n)
	}
}
