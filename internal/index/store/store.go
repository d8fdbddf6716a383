// Package store persists an index.Index to a single BoltDB file. Each of
// the four mappings lives in its own bucket; posting lists are CBOR-encoded
// and then Snappy-compressed.
package store

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/boltdb/bolt"
	"github.com/fxamacker/cbor/v2"
	"github.com/golang/snappy"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
)

// FormatVersion is bumped whenever the on-disk encoding changes.
const FormatVersion = 1

var (
	bucketInverted   = []byte("inverted")
	bucketDocLengths = []byte("doc_lengths")
	bucketDocFreqs   = []byte("doc_freqs")
	bucketTermFreqs  = []byte("term_freqs")
	bucketMeta       = []byte("meta")
	keyMeta          = []byte("meta")

	allBuckets = [][]byte{bucketInverted, bucketDocLengths, bucketDocFreqs, bucketTermFreqs, bucketMeta}
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

// Meta describes a persisted index.
type Meta struct {
	Version     int       `cbor:"1,keyasint"`
	CreatedAt   time.Time `cbor:"2,keyasint"`
	DocCount    int       `cbor:"3,keyasint"`
	TotalTokens int64     `cbor:"4,keyasint"`
	Terms       int       `cbor:"5,keyasint"`
}

type Store struct {
	db     *bolt.DB
	path   string
	logger *slog.Logger
}

// Open opens or creates the index file at path.
func Open(path string, timeout time.Duration) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening index store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing index store: %w", err)
	}
	return &Store{
		db:     db,
		path:   path,
		logger: slog.Default().With("component", "index-store"),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored index with idx in one transaction.
func (s *Store) Save(idx *index.Index) error {
	start := time.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}

		inv := tx.Bucket(bucketInverted)
		for term, list := range idx.Inverted {
			val, err := encodePostings(list)
			if err != nil {
				return fmt.Errorf("encoding postings for %q: %w", term, err)
			}
			if err := inv.Put([]byte(term), val); err != nil {
				return err
			}
		}
		dl := tx.Bucket(bucketDocLengths)
		for id, l := range idx.DocLengths {
			if err := dl.Put([]byte(id), putUvarint(uint64(l))); err != nil {
				return err
			}
		}
		df := tx.Bucket(bucketDocFreqs)
		for term, n := range idx.DocFreqs {
			if err := df.Put([]byte(term), putUvarint(uint64(n))); err != nil {
				return err
			}
		}
		tf := tx.Bucket(bucketTermFreqs)
		for term, n := range idx.TermFreqs {
			if err := tf.Put([]byte(term), putUvarint(uint64(n))); err != nil {
				return err
			}
		}

		st := idx.Stats()
		meta, err := encMode.Marshal(Meta{
			Version:     FormatVersion,
			CreatedAt:   time.Now().UTC(),
			DocCount:    st.DocCount,
			TotalTokens: st.TotalTokens,
			Terms:       idx.NumTerms(),
		})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyMeta, meta)
	})
	if err != nil {
		return fmt.Errorf("saving index to %s: %w", s.path, err)
	}
	s.logger.Info("index saved",
		"path", s.path,
		"terms", idx.NumTerms(),
		"documents", idx.Stats().DocCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Load reads every mapping into memory and verifies the result. Any
// inconsistency between the stored mappings or the metadata is reported as
// an integrity fault.
func (s *Store) Load() (*index.Index, error) {
	inverted := make(map[string]index.PostingList)
	docLengths := make(map[string]int)
	docFreqs := make(map[string]int)
	termFreqs := make(map[string]int64)
	var meta Meta

	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get(keyMeta)
		if raw == nil {
			return fmt.Errorf("%w: index store is empty", apperrors.ErrNotFound)
		}
		if err := decMode.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("%w: decoding meta: %v", apperrors.ErrIntegrity, err)
		}
		if meta.Version != FormatVersion {
			return fmt.Errorf("%w: unsupported format version %d", apperrors.ErrIntegrity, meta.Version)
		}

		err := tx.Bucket(bucketInverted).ForEach(func(k, v []byte) error {
			list, err := decodePostings(v)
			if err != nil {
				return fmt.Errorf("%w: postings for %q: %v", apperrors.ErrIntegrity, k, err)
			}
			inverted[string(k)] = list
			return nil
		})
		if err != nil {
			return err
		}
		err = tx.Bucket(bucketDocLengths).ForEach(func(k, v []byte) error {
			n, err := getUvarint(v)
			docLengths[string(k)] = int(n)
			return err
		})
		if err != nil {
			return err
		}
		err = tx.Bucket(bucketDocFreqs).ForEach(func(k, v []byte) error {
			n, err := getUvarint(v)
			docFreqs[string(k)] = int(n)
			return err
		})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTermFreqs).ForEach(func(k, v []byte) error {
			n, err := getUvarint(v)
			termFreqs[string(k)] = int64(n)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("loading index from %s: %w", s.path, err)
	}

	idx, err := index.New(inverted, docLengths, docFreqs, termFreqs)
	if err != nil {
		return nil, fmt.Errorf("loading index from %s: %w", s.path, err)
	}
	st := idx.Stats()
	if st.DocCount != meta.DocCount || st.TotalTokens != meta.TotalTokens || idx.NumTerms() != meta.Terms {
		return nil, fmt.Errorf("%w: stored stats (docs=%d tokens=%d terms=%d) disagree with mappings (docs=%d tokens=%d terms=%d)",
			apperrors.ErrIntegrity, meta.DocCount, meta.TotalTokens, meta.Terms,
			st.DocCount, st.TotalTokens, idx.NumTerms())
	}
	s.logger.Info("index loaded", "path", s.path, "terms", idx.NumTerms(), "documents", st.DocCount)
	return idx, nil
}

// Meta returns the stored metadata without loading the mappings.
func (s *Store) Meta() (Meta, error) {
	var meta Meta
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get(keyMeta)
		if raw == nil {
			return apperrors.ErrNotFound
		}
		return decMode.Unmarshal(raw, &meta)
	})
	return meta, err
}

// Postings reads a single posting list. A missing term returns nil.
func (s *Store) Postings(term string) (index.PostingList, error) {
	var list index.PostingList
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketInverted).Get([]byte(term))
		if v == nil {
			return nil
		}
		var err error
		list, err = decodePostings(v)
		return err
	})
	return list, err
}

// DocLength reads a single document length.
func (s *Store) DocLength(docID string) (int, bool, error) {
	var (
		n     uint64
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDocLengths).Get([]byte(docID))
		if v == nil {
			return nil
		}
		found = true
		var err error
		n, err = getUvarint(v)
		return err
	})
	return int(n), found, err
}

func encodePostings(list index.PostingList) ([]byte, error) {
	raw, err := encMode.Marshal(list)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func decodePostings(data []byte) (index.PostingList, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, err
	}
	var list index.PostingList
	if err := decMode.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func putUvarint(v uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, v)
	return buf[:n]
}

func getUvarint(b []byte) (uint64, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 || n != len(b) {
		return 0, fmt.Errorf("%w: bad varint value", apperrors.ErrIntegrity)
	}
	return v, nil
}
