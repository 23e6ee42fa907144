package serializer

import (
	"bytes"
	"encoding/gob"
	"io"

	"pll/internal/varint"
)

// OpaqueSerializer is the fallback for any type without a built-in
// codec. It gob-encodes the value, then prefixes the resulting bytes
// with a varint length so the list's entry layout can still find
// dataSize without asking the serializer to precompute it expensively.
type OpaqueSerializer[T any] struct{}

func (OpaqueSerializer[T]) FixedSize() bool { return false }

func (OpaqueSerializer[T]) Size(value T) uint64 {
	var buf bytes.Buffer
	// Size errors are not surfaced by this interface; an encoding
	// failure here will resurface identically, and fatally, from
	// Serialize, which callers do check.
	_ = gob.NewEncoder(&buf).Encode(value)
	return uint64(varint.Len(uint64(buf.Len()))) + uint64(buf.Len())
}

func (OpaqueSerializer[T]) Serialize(value T, out Writer) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return err
	}
	var lenBuf [9]byte
	n := varint.PutUvarint(lenBuf[:], uint64(buf.Len()))
	if _, err := out.Write(lenBuf[:n]); err != nil {
		return err
	}
	_, err := out.Write(buf.Bytes())
	return err
}

func (OpaqueSerializer[T]) Deserialize(in Reader) (T, error) {
	var zero T
	lenBuf := make([]byte, 0, 9)
	for {
		b, err := in.ReadByte()
		if err != nil {
			return zero, err
		}
		lenBuf = append(lenBuf, b)
		if b&0x80 == 0 {
			break
		}
	}
	size, _ := varint.Uvarint(lenBuf)
	payload := make([]byte, size)
	if _, err := io.ReadFull(in, payload); err != nil {
		return zero, err
	}
	var value T
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&value); err != nil {
		return zero, err
	}
	return value, nil
}
