package store

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boltdb/bolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
)

type fieldsNormalizer struct{}

func (fieldsNormalizer) Normalize(text string) []string { return strings.Fields(text) }

func buildIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.Build([]corpus.Document{
		{ID: "d1", Text: "cat cat bird"},
		{ID: "d2", Text: "fish"},
		{ID: "d3", Text: "cat dog dog"},
	}, fieldsNormalizer{})
	require.NoError(t, err)
	return idx
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoad(t *testing.T) {
	s := openStore(t)
	idx := buildIndex(t)
	require.NoError(t, s.Save(idx))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, idx.Inverted, loaded.Inverted)
	assert.Equal(t, idx.DocLengths, loaded.DocLengths)
	assert.Equal(t, idx.DocFreqs, loaded.DocFreqs)
	assert.Equal(t, idx.TermFreqs, loaded.TermFreqs)
	assert.Equal(t, idx.Stats(), loaded.Stats())

	meta, err := s.Meta()
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, meta.Version)
	assert.Equal(t, 3, meta.DocCount)
	assert.Equal(t, 4, meta.Terms)
}

func TestSaveReplacesPreviousIndex(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Save(buildIndex(t)))

	small, err := index.Build([]corpus.Document{{ID: "x", Text: "zebra"}}, fieldsNormalizer{})
	require.NoError(t, err)
	require.NoError(t, s.Save(small))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.NumTerms())
	assert.Equal(t, []string{"x"}, loaded.DocIDs())
}

func TestPointLookups(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Save(buildIndex(t)))

	list, err := s.Postings("cat")
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{{DocID: "d1", Frequency: 2}, {DocID: "d3", Frequency: 1}}, list)

	list, err = s.Postings("missing")
	require.NoError(t, err)
	assert.Nil(t, list)

	n, ok, err := s.DocLength("d3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok, err = s.DocLength("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadEmptyStore(t *testing.T) {
	s := openStore(t)
	_, err := s.Load()
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLoadDetectsTampering(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Save(buildIndex(t)))

	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocFreqs).Put([]byte("cat"), putUvarint(7))
	}))
	_, err := s.Load()
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
}

func TestLoadDetectsCorruptPostings(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Save(buildIndex(t)))

	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInverted).Put([]byte("cat"), []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01})
	}))
	_, err := s.Load()
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
}
