package list

import "encoding/binary"

// metaMagic and metaVersion identify the list metadata block.
const (
	metaMagic           = "PLL\n"
	metaVersion   int32  = 3
	metaBlockSize int64  = 24
	endPtr        int64  = -2
)

type metaBlock struct {
	head int64
	tail int64
}

func decodeMetaBlock(b []byte) (metaBlock, error) {
	if string(b[0:4]) != metaMagic {
		return metaBlock{}, ErrCorrupt
	}
	version := int32(binary.BigEndian.Uint32(b[4:8]))
	if version != metaVersion {
		return metaBlock{}, ErrCorrupt
	}
	return metaBlock{
		head: int64(binary.BigEndian.Uint64(b[8:16])),
		tail: int64(binary.BigEndian.Uint64(b[16:24])),
	}, nil
}

func encodeMetaBlock(m metaBlock) []byte {
	b := make([]byte, metaBlockSize)
	copy(b[0:4], metaMagic)
	binary.BigEndian.PutUint32(b[4:8], uint32(metaVersion))
	binary.BigEndian.PutUint64(b[8:16], uint64(m.head))
	binary.BigEndian.PutUint64(b[16:24], uint64(m.tail))
	return b
}

func (l *PersistentLinkedList[T]) readMeta() (metaBlock, error) {
	raw := make([]byte, metaBlockSize)
	if err := l.blocks.Get(l.metaID, 0, raw); err != nil {
		return metaBlock{}, err
	}
	return decodeMetaBlock(raw)
}

func (l *PersistentLinkedList[T]) writeMeta(m metaBlock) error {
	return l.blocks.Put(l.metaID, 0, encodeMetaBlock(m))
}
