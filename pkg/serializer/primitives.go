package serializer

import (
	"encoding/binary"
	"io"
	"math"
)

// BoolSerializer codes a single byte: 1 for true, 0 for false.
type BoolSerializer struct{}

func (BoolSerializer) FixedSize() bool  { return true }
func (BoolSerializer) Size(bool) uint64 { return 1 }

func (BoolSerializer) Serialize(value bool, out Writer) error {
	if value {
		return out.WriteByte(1)
	}
	return out.WriteByte(0)
}

func (BoolSerializer) Deserialize(in Reader) (bool, error) {
	b, err := in.ReadByte()
	return b != 0, err
}

// ByteSerializer codes a single raw byte.
type ByteSerializer struct{}

func (ByteSerializer) FixedSize() bool  { return true }
func (ByteSerializer) Size(byte) uint64 { return 1 }

func (ByteSerializer) Serialize(value byte, out Writer) error { return out.WriteByte(value) }

func (ByteSerializer) Deserialize(in Reader) (byte, error) { return in.ReadByte() }

// CharSerializer codes a 16-bit character as two big-endian bytes,
// matching the list's big-endian on-disk convention.
type CharSerializer struct{}

func (CharSerializer) FixedSize() bool  { return true }
func (CharSerializer) Size(uint16) uint64 { return 2 }

func (CharSerializer) Serialize(value uint16, out Writer) error {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], value)
	_, err := out.Write(tmp[:])
	return err
}

func (CharSerializer) Deserialize(in Reader) (uint16, error) {
	var tmp [2]byte
	if _, err := io.ReadFull(in, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(tmp[:]), nil
}

// Int32Serializer codes a big-endian 32-bit signed integer.
type Int32Serializer struct{}

func (Int32Serializer) FixedSize() bool  { return true }
func (Int32Serializer) Size(int32) uint64 { return 4 }

func (Int32Serializer) Serialize(value int32, out Writer) error {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(value))
	_, err := out.Write(tmp[:])
	return err
}

func (Int32Serializer) Deserialize(in Reader) (int32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(in, tmp[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(tmp[:])), nil
}

// Int64Serializer codes a big-endian 64-bit signed integer.
type Int64Serializer struct{}

func (Int64Serializer) FixedSize() bool  { return true }
func (Int64Serializer) Size(int64) uint64 { return 8 }

func (Int64Serializer) Serialize(value int64, out Writer) error {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(value))
	_, err := out.Write(tmp[:])
	return err
}

func (Int64Serializer) Deserialize(in Reader) (int64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(in, tmp[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(tmp[:])), nil
}

// Float32Serializer codes a big-endian IEEE 754 single-precision float.
type Float32Serializer struct{}

func (Float32Serializer) FixedSize() bool  { return true }
func (Float32Serializer) Size(float32) uint64 { return 4 }

func (Float32Serializer) Serialize(value float32, out Writer) error {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], math.Float32bits(value))
	_, err := out.Write(tmp[:])
	return err
}

func (Float32Serializer) Deserialize(in Reader) (float32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(in, tmp[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(tmp[:])), nil
}

// Float64Serializer codes a big-endian IEEE 754 double-precision float.
type Float64Serializer struct{}

func (Float64Serializer) FixedSize() bool   { return true }
func (Float64Serializer) Size(float64) uint64 { return 8 }

func (Float64Serializer) Serialize(value float64, out Writer) error {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(value))
	_, err := out.Write(tmp[:])
	return err
}

func (Float64Serializer) Deserialize(in Reader) (float64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(in, tmp[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(tmp[:])), nil
}

// ByteArraySerializer codes a []byte as a big-endian uint32 length
// prefix followed by the raw bytes.
type ByteArraySerializer struct{}

func (ByteArraySerializer) FixedSize() bool { return false }

func (ByteArraySerializer) Size(value []byte) uint64 { return 4 + uint64(len(value)) }

func (ByteArraySerializer) Serialize(value []byte, out Writer) error {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(value)))
	if _, err := out.Write(tmp[:]); err != nil {
		return err
	}
	_, err := out.Write(value)
	return err
}

func (ByteArraySerializer) Deserialize(in Reader) ([]byte, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(in, tmp[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(tmp[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(in, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// CharArraySerializer codes a []uint16 the same way as ByteArraySerializer,
// one big-endian uint16 per character after a uint32 length prefix.
type CharArraySerializer struct{}

func (CharArraySerializer) FixedSize() bool { return false }

func (CharArraySerializer) Size(value []uint16) uint64 { return 4 + 2*uint64(len(value)) }

func (CharArraySerializer) Serialize(value []uint16, out Writer) error {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(value)))
	if _, err := out.Write(tmp[:]); err != nil {
		return err
	}
	for _, c := range value {
		var ctmp [2]byte
		binary.BigEndian.PutUint16(ctmp[:], c)
		if _, err := out.Write(ctmp[:]); err != nil {
			return err
		}
	}
	return nil
}

func (CharArraySerializer) Deserialize(in Reader) ([]uint16, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(in, tmp[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(tmp[:])
	out := make([]uint16, n)
	for i := range out {
		var ctmp [2]byte
		if _, err := io.ReadFull(in, ctmp[:]); err != nil {
			return nil, err
		}
		out[i] = binary.BigEndian.Uint16(ctmp[:])
	}
	return out, nil
}
