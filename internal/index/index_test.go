package index

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
)

type fieldsNormalizer struct{}

func (fieldsNormalizer) Normalize(text string) []string { return strings.Fields(text) }

func testDocs() []corpus.Document {
	return []corpus.Document{
		{ID: "d3", Text: "cat dog dog"},
		{ID: "d1", Text: "cat cat bird"},
		{ID: "d2", Text: "fish"},
	}
}

func TestBuildFrequencies(t *testing.T) {
	idx, err := Build(testDocs(), fieldsNormalizer{})
	require.NoError(t, err)

	assert.Equal(t, PostingList{{"d1", 2}, {"d3", 1}}, idx.Postings("cat"))
	assert.Equal(t, 2, idx.DocFreqs["cat"])
	assert.Equal(t, int64(3), idx.TermFreqs["cat"])
	assert.Equal(t, int64(2), idx.TermFreqs["dog"])
	assert.Equal(t, []string{"d1", "d2", "d3"}, idx.DocIDs())
	assert.Equal(t, 4, idx.NumTerms())

	st := idx.Stats()
	assert.Equal(t, 3, st.DocCount)
	assert.Equal(t, int64(7), st.TotalTokens)
	assert.InDelta(t, 7.0/3.0, st.AvgDocLength, 1e-12)

	for term, list := range idx.Inverted {
		assert.Equal(t, len(list), idx.DocFreqs[term], term)
		var sum int64
		for _, p := range list {
			sum += int64(p.Frequency)
		}
		assert.Equal(t, sum, idx.TermFreqs[term], term)
	}
}

func TestBuildSkipsEmptyDocuments(t *testing.T) {
	docs := append(testDocs(),
		corpus.Document{ID: "blank", Text: "   \n\t"},
		corpus.Document{ID: "stopped", Text: "the the"},
	)
	b := NewBuilder(tokenizer.New(nil))
	for _, d := range docs {
		require.NoError(t, b.Add(d))
	}
	idx, err := b.Finish()
	require.NoError(t, err)

	assert.Equal(t, []string{"blank"}, b.Skipped())
	_, ok := idx.DocLength("blank")
	assert.False(t, ok)
	l, ok := idx.DocLength("stopped")
	assert.True(t, ok)
	assert.Equal(t, 0, l)
}

func TestBuildRejectsDuplicateID(t *testing.T) {
	b := NewBuilder(fieldsNormalizer{})
	require.NoError(t, b.Add(corpus.Document{ID: "d1", Text: "a"}))
	err := b.Add(corpus.Document{ID: "d1", Text: "b"})
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
}

func TestProject(t *testing.T) {
	idx, err := Build(testDocs(), fieldsNormalizer{})
	require.NoError(t, err)

	p := idx.Project([]string{"cat", "missing", "cat"})
	assert.Equal(t, 1, p.NumTerms())
	assert.Equal(t, idx.Postings("cat"), p.Postings("cat"))
	assert.Nil(t, p.Postings("dog"))
	assert.Equal(t, idx.DocIDs(), p.DocIDs())
	assert.Equal(t, idx.Stats(), p.Stats())
	assert.NoError(t, p.Verify())
}

func TestVerifyDetectsCorruption(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(*Index)
	}{
		{"df mismatch", func(idx *Index) { idx.DocFreqs["cat"] = 5 }},
		{"tf mismatch", func(idx *Index) { idx.TermFreqs["dog"] = 1 }},
		{"unsorted", func(idx *Index) {
			idx.Inverted["cat"] = PostingList{{"d3", 1}, {"d1", 2}}
		}},
		{"unknown doc", func(idx *Index) {
			idx.Inverted["fish"] = PostingList{{"d9", 1}}
		}},
		{"length drift", func(idx *Index) { idx.DocLengths["d2"] = 4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := Build(testDocs(), fieldsNormalizer{})
			require.NoError(t, err)
			tt.corrupt(idx)
			assert.ErrorIs(t, idx.Verify(), apperrors.ErrIntegrity)
		})
	}
}

func TestNewRejectsInconsistentMappings(t *testing.T) {
	_, err := New(
		map[string]PostingList{"cat": {{"d1", 2}}},
		map[string]int{"d1": 2},
		map[string]int{"cat": 2},
		map[string]int64{"cat": 2},
	)
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
}

func TestMatchingDocs(t *testing.T) {
	idx, err := Build(testDocs(), fieldsNormalizer{})
	require.NoError(t, err)

	bm := idx.MatchingDocs([]string{"cat", "fish", "nope"})
	assert.Equal(t, uint64(3), bm.GetCardinality())

	bm = idx.MatchingDocs([]string{"dog"})
	require.Equal(t, uint64(1), bm.GetCardinality())
	assert.Equal(t, "d3", idx.DocID(bm.Minimum()))
}

func TestFingerprintFollowsContent(t *testing.T) {
	a, err := Build(testDocs(), fieldsNormalizer{})
	require.NoError(t, err)
	reordered := testDocs()
	reordered[0], reordered[2] = reordered[2], reordered[0]
	b, err := Build(reordered, fieldsNormalizer{})
	require.NoError(t, err)
	assert.Len(t, a.Fingerprint(), 32)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	// Same universe and lengths, different term.
	changed := testDocs()
	changed[2].Text = "bird"
	c, err := Build(changed, fieldsNormalizer{})
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	renamed := testDocs()
	renamed[2].ID = "d4"
	d, err := Build(renamed, fieldsNormalizer{})
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), d.Fingerprint())
}

func TestSnapshotOrdered(t *testing.T) {
	idx, err := Build(testDocs(), fieldsNormalizer{})
	require.NoError(t, err)
	snap := idx.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, "bird", snap[0].Term)
	assert.Equal(t, "fish", snap[3].Term)
}

func BenchmarkBuild(b *testing.B) {
	norm := tokenizer.New(nil)
	docs := make([]corpus.Document, 500)
	for i := range docs {
		docs[i] = corpus.Document{
			ID:   "doc-" + strconv.Itoa(i),
			Text: "the quick brown fox jumps over the lazy dog while distributed search engines rank documents",
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Build(docs, norm); err != nil {
			b.Fatal(err)
		}
	}
}
