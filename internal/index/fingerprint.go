package index

import (
	"encoding/binary"
	"encoding/hex"
	"sync"

	"github.com/zeebo/blake3"
)

type fingerprint struct {
	once sync.Once
	sum  string
}

// Fingerprint returns a content hash over the document universe with its
// lengths and every posting list. Two indexes share a fingerprint only if
// they would rank every query identically. It is computed on first use.
// A projection hashes only its own terms.
func (idx *Index) Fingerprint() string {
	idx.fp.once.Do(func() {
		h := blake3.New()
		var buf [binary.MaxVarintLen64]byte
		writeUint := func(v uint64) {
			n := binary.PutUvarint(buf[:], v)
			h.Write(buf[:n])
		}
		writeString := func(s string) {
			writeUint(uint64(len(s)))
			h.WriteString(s)
		}

		writeUint(uint64(len(idx.docIDs)))
		for _, id := range idx.docIDs {
			writeString(id)
			writeUint(uint64(idx.DocLengths[id]))
		}
		entries := idx.Snapshot()
		writeUint(uint64(len(entries)))
		for _, e := range entries {
			writeString(e.Term)
			writeUint(uint64(len(e.Postings)))
			for _, p := range e.Postings {
				writeString(p.DocID)
				writeUint(uint64(p.Frequency))
			}
		}
		sum := h.Sum(nil)
		idx.fp.sum = hex.EncodeToString(sum[:16])
	})
	return idx.fp.sum
}
