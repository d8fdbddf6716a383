// Package index holds the read-only inverted index over a TREC collection:
// posting lists, document lengths, document frequencies and corpus term
// frequencies, plus the sorted document universe the retrieval loop walks.
package index

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"

	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
)

// Index is immutable after construction and safe for concurrent readers.
type Index struct {
	Inverted   map[string]PostingList
	DocLengths map[string]int
	DocFreqs   map[string]int
	TermFreqs  map[string]int64

	docIDs   []string
	ordinals map[string]uint32
	stats    Stats
	fp       fingerprint
}

// New assembles an Index from the four mappings, derives the universe and
// stats, and verifies it. Posting lists are used as given.
func New(inverted map[string]PostingList, docLengths map[string]int, docFreqs map[string]int, termFreqs map[string]int64) (*Index, error) {
	idx := &Index{
		Inverted:   inverted,
		DocLengths: docLengths,
		DocFreqs:   docFreqs,
		TermFreqs:  termFreqs,
	}
	idx.docIDs = make([]string, 0, len(docLengths))
	var total int64
	for id, l := range docLengths {
		idx.docIDs = append(idx.docIDs, id)
		total += int64(l)
	}
	sort.Strings(idx.docIDs)
	idx.ordinals = make(map[string]uint32, len(idx.docIDs))
	for i, id := range idx.docIDs {
		idx.ordinals[id] = uint32(i)
	}
	idx.stats = Stats{DocCount: len(idx.docIDs), TotalTokens: total}
	if len(idx.docIDs) > 0 {
		idx.stats.AvgDocLength = float64(total) / float64(len(idx.docIDs))
	}
	if err := idx.Verify(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Project returns a sub-index restricted to terms. The document lengths,
// universe and stats are shared with idx; terms absent from idx are absent
// from the projection.
func (idx *Index) Project(terms []string) *Index {
	p := &Index{
		Inverted:   make(map[string]PostingList, len(terms)),
		DocFreqs:   make(map[string]int, len(terms)),
		TermFreqs:  make(map[string]int64, len(terms)),
		DocLengths: idx.DocLengths,
		docIDs:     idx.docIDs,
		ordinals:   idx.ordinals,
		stats:      idx.stats,
	}
	for _, t := range terms {
		list, ok := idx.Inverted[t]
		if !ok {
			continue
		}
		p.Inverted[t] = list
		p.DocFreqs[t] = idx.DocFreqs[t]
		p.TermFreqs[t] = idx.TermFreqs[t]
	}
	return p
}

// Verify checks the structural invariants and returns an error wrapping
// ErrIntegrity on the first violation.
func (idx *Index) Verify() error {
	var total int64
	for _, l := range idx.DocLengths {
		if l < 0 {
			return fmt.Errorf("%w: negative document length", apperrors.ErrIntegrity)
		}
		total += int64(l)
	}
	if total != idx.stats.TotalTokens {
		return fmt.Errorf("%w: total tokens %d, document lengths sum to %d",
			apperrors.ErrIntegrity, idx.stats.TotalTokens, total)
	}
	if len(idx.DocFreqs) != len(idx.Inverted) || len(idx.TermFreqs) != len(idx.Inverted) {
		return fmt.Errorf("%w: mapping sizes differ (inverted=%d df=%d tf=%d)",
			apperrors.ErrIntegrity, len(idx.Inverted), len(idx.DocFreqs), len(idx.TermFreqs))
	}
	for term, list := range idx.Inverted {
		df, ok := idx.DocFreqs[term]
		if !ok || df != len(list) {
			return fmt.Errorf("%w: term %q has df %d but %d postings",
				apperrors.ErrIntegrity, term, df, len(list))
		}
		var sum int64
		for i, p := range list {
			if p.Frequency < 1 {
				return fmt.Errorf("%w: term %q doc %q has frequency %d",
					apperrors.ErrIntegrity, term, p.DocID, p.Frequency)
			}
			if i > 0 && list[i-1].DocID >= p.DocID {
				return fmt.Errorf("%w: postings for %q not strictly ascending at %q",
					apperrors.ErrIntegrity, term, p.DocID)
			}
			if _, ok := idx.DocLengths[p.DocID]; !ok {
				return fmt.Errorf("%w: term %q references unknown doc %q",
					apperrors.ErrIntegrity, term, p.DocID)
			}
			sum += int64(p.Frequency)
		}
		if tf, ok := idx.TermFreqs[term]; !ok || tf != sum {
			return fmt.Errorf("%w: term %q has corpus frequency %d but postings sum to %d",
				apperrors.ErrIntegrity, term, tf, sum)
		}
	}
	return nil
}

// MatchingDocs returns the ordinals of documents containing at least one of
// terms.
func (idx *Index) MatchingDocs(terms []string) *roaring.Bitmap {
	bm := roaring.New()
	for _, t := range terms {
		for _, p := range idx.Inverted[t] {
			if ord, ok := idx.ordinals[p.DocID]; ok {
				bm.Add(ord)
			}
		}
	}
	return bm
}

func (idx *Index) Postings(term string) PostingList {
	return idx.Inverted[term]
}

func (idx *Index) DocLength(docID string) (int, bool) {
	l, ok := idx.DocLengths[docID]
	return l, ok
}

// DocIDs returns the sorted document universe. Callers must not modify it.
func (idx *Index) DocIDs() []string {
	return idx.docIDs
}

// DocID maps an ordinal from MatchingDocs back to its document id.
func (idx *Index) DocID(ordinal uint32) string {
	return idx.docIDs[ordinal]
}

func (idx *Index) Stats() Stats {
	return idx.stats
}

func (idx *Index) NumTerms() int {
	return len(idx.Inverted)
}

// Snapshot returns every term with its postings, ordered by term.
func (idx *Index) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(idx.Inverted))
	for term, list := range idx.Inverted {
		entries = append(entries, TermEntry{Term: term, Postings: list})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}
