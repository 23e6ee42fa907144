package serializer

import (
	"bytes"
	"compress/gzip"
	"io"
	"reflect"

	"pll/internal/varint"
)

// GzipSerializer wraps another serializer and compresses its output.
// Values that compress poorly (already-compressed blobs, small values)
// may end up larger once the gzip header and varint length prefix are
// added; callers pick this decorator for cases where the wrapped
// encoding is large and compressible.
type GzipSerializer[T any] struct {
	wrapped Serializer[T]

	lastValue  T
	lastValid  bool
	lastBuffer bytes.Buffer
}

// Gzip returns a Serializer[T] that gzip-compresses wrapped's encoding.
func Gzip[T any](wrapped Serializer[T]) *GzipSerializer[T] {
	return &GzipSerializer[T]{wrapped: wrapped}
}

func (g *GzipSerializer[T]) FixedSize() bool { return false }

// compress gzips wrapped's encoding of value into g.lastBuffer, caching
// the result so a Size call immediately followed by Serialize for the
// same value never compresses twice.
func (g *GzipSerializer[T]) compress(value T) error {
	if g.lastValid && reflect.DeepEqual(g.lastValue, value) {
		return nil
	}
	g.lastValid = false
	g.lastBuffer.Reset()
	zw := gzip.NewWriter(&g.lastBuffer)
	if err := g.wrapped.Serialize(value, &byteWriterAdapter{zw}); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	g.lastValue = value
	g.lastValid = true
	return nil
}

func (g *GzipSerializer[T]) Size(value T) uint64 {
	if err := g.compress(value); err != nil {
		return 0
	}
	n := uint64(g.lastBuffer.Len())
	return uint64(varint.Len(n)) + n
}

func (g *GzipSerializer[T]) Serialize(value T, out Writer) error {
	if err := g.compress(value); err != nil {
		return err
	}
	var lenBuf [9]byte
	n := varint.PutUvarint(lenBuf[:], uint64(g.lastBuffer.Len()))
	if _, err := out.Write(lenBuf[:n]); err != nil {
		return err
	}
	_, err := out.Write(g.lastBuffer.Bytes())
	return err
}

func (g *GzipSerializer[T]) Deserialize(in Reader) (T, error) {
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
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return zero, err
	}
	defer zr.Close()
	return g.wrapped.Deserialize(&byteReaderAdapter{zr})
}

// byteWriterAdapter satisfies Writer for an io.Writer that has no
// native ByteWriter, such as a gzip.Writer.
type byteWriterAdapter struct {
	io.Writer
}

func (w *byteWriterAdapter) WriteByte(b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// byteReaderAdapter satisfies Reader for an io.Reader that has no
// native ByteReader, such as a gzip.Reader.
type byteReaderAdapter struct {
	io.Reader
}

func (r *byteReaderAdapter) ReadByte() (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	return b[0], err
}
