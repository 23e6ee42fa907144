package list

import (
	"bytes"
	"encoding/binary"
)

// entryHeaderSize is HEADER_SIZE's entry-block counterpart: three big-endian i64 fields, next/prev/dataSize,
// before the payload.
const entryHeaderSize = 24

// nullDataSize marks an entry with no payload (a nil *T).
const nullDataSize = -1

type entryHeader struct {
	next     int64
	prev     int64
	dataSize int64
}

func decodeEntryHeader(b []byte) entryHeader {
	return entryHeader{
		next:     int64(binary.BigEndian.Uint64(b[0:8])),
		prev:     int64(binary.BigEndian.Uint64(b[8:16])),
		dataSize: int64(binary.BigEndian.Uint64(b[16:24])),
	}
}

func encodeEntryHeader(h entryHeader) []byte {
	b := make([]byte, entryHeaderSize)
	binary.BigEndian.PutUint64(b[0:8], uint64(h.next))
	binary.BigEndian.PutUint64(b[8:16], uint64(h.prev))
	binary.BigEndian.PutUint64(b[16:24], uint64(h.dataSize))
	return b
}

func (l *PersistentLinkedList[T]) readEntryHeader(id int64) (entryHeader, error) {
	raw := make([]byte, entryHeaderSize)
	if err := l.blocks.Get(id, 0, raw); err != nil {
		return entryHeader{}, err
	}
	return decodeEntryHeader(raw), nil
}

func (l *PersistentLinkedList[T]) writeEntryHeader(id int64, h entryHeader) error {
	return l.blocks.Put(id, 0, encodeEntryHeader(h))
}

func (l *PersistentLinkedList[T]) writeNext(id, next int64) error {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(next))
	return l.blocks.Put(id, 0, tmp[:])
}

func (l *PersistentLinkedList[T]) writePrev(id, prev int64) error {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(prev))
	return l.blocks.Put(id, 8, tmp[:])
}

// readValue loads the element stored at id, returning nil if the entry
// is null (dataSize = -1).
func (l *PersistentLinkedList[T]) readValue(id int64, dataSize int64) (*T, error) {
	if dataSize < 0 {
		return nil, nil
	}
	payload := make([]byte, dataSize)
	if err := l.blocks.Get(id, entryHeaderSize, payload); err != nil {
		return nil, err
	}
	value, err := l.codec.Deserialize(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// allocateEntry reserves and fully writes a new entry block for value,
// wired to next/prev, but does not issue the barrier or update
// neighbor pointers — the caller does that.
func (l *PersistentLinkedList[T]) allocateEntry(next, prev int64, value *T) (int64, error) {
	var payload []byte
	dataSize := int64(nullDataSize)
	if value != nil {
		var buf bytes.Buffer
		if err := l.codec.Serialize(*value, &buf); err != nil {
			return 0, err
		}
		payload = buf.Bytes()
		dataSize = int64(len(payload))
	}

	id, err := l.blocks.Allocate(entryHeaderSize + maxInt64(dataSize, 0))
	if err != nil {
		return 0, err
	}

	header := encodeEntryHeader(entryHeader{next: next, prev: prev, dataSize: dataSize})
	if err := l.blocks.Put(id, 0, header); err != nil {
		return 0, err
	}
	if dataSize > 0 {
		if err := l.blocks.Put(id, entryHeaderSize, payload); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
