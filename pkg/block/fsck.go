package block

import (
	"github.com/cespare/xxhash/v2"
)

// fingerprintChunk bounds how much of a single block's payload
// Fingerprint reads at once; oversized payloads are hashed in chunks
// rather than loaded whole, matching the sector-at-a-time approach
// pkg/buffer's two-copy diff already uses.
const fingerprintChunk = 1 << 16

// Fingerprint walks every currently allocated block in blocks and returns
// an xxhash digest of each one's payload, keyed by block id. It is a
// diagnostic aid only — two buffers with matching fingerprints agree on
// every live block's content, but this is not itself a guarantee of
// structural correctness (a corrupt linked list can still fingerprint
// consistently). It backs the consistency walk `plltool fsck` reports.
func Fingerprint(blocks PersistentBlockBuffer) (map[int64]uint64, error) {
	out := make(map[int64]uint64)
	it := blocks.Iterate()
	chunk := make([]byte, fingerprintChunk)

	for {
		more, err := it.HasNext()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
		id, err := it.Next()
		if err != nil {
			return nil, err
		}
		size, err := blocks.Capacity(id)
		if err != nil {
			return nil, err
		}

		digest := xxhash.New()
		for off := int64(0); off < size; off += fingerprintChunk {
			n := int64(fingerprintChunk)
			if off+n > size {
				n = size - off
			}
			buf := chunk[:n]
			if err := blocks.Get(id, off, buf); err != nil {
				return nil, err
			}
			digest.Write(buf)
		}
		out[id] = digest.Sum64()
	}
	return out, nil
}
