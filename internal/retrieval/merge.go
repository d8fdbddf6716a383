package retrieval

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
)

// Merger walks the document universe in ascending order and yields, for
// each document, the frequency of every query term. Each term occurrence
// gets its own cursor, so repeated terms produce repeated columns.
type Merger struct {
	universe []string
	lengths  map[string]int
	lists    []index.PostingList
	cursors  []int
	pos      int
	row      []int
	err      error
}

func NewMerger(idx *index.Index, terms []string) *Merger {
	m := &Merger{
		universe: idx.DocIDs(),
		lengths:  idx.DocLengths,
		lists:    make([]index.PostingList, len(terms)),
		cursors:  make([]int, len(terms)),
		pos:      -1,
		row:      make([]int, len(terms)),
	}
	for i, t := range terms {
		m.lists[i] = idx.Postings(t)
	}
	return m
}

// Next advances to the next document. It returns false at the end of the
// universe or after an error.
func (m *Merger) Next() bool {
	if m.err != nil {
		return false
	}
	m.pos++
	if m.pos >= len(m.universe) {
		m.finish()
		return false
	}
	doc := m.universe[m.pos]
	for i, list := range m.lists {
		c := m.cursors[i]
		if c < len(list) && list[c].DocID == doc {
			m.row[i] = list[c].Frequency
			m.cursors[i]++
			continue
		}
		m.row[i] = 0
		if c < len(list) && list[c].DocID < doc {
			m.err = fmt.Errorf("%w: posting %q behind document %q", apperrors.ErrIntegrity, list[c].DocID, doc)
			return false
		}
	}
	return true
}

// finish reports postings never reached by the walk.
func (m *Merger) finish() {
	for i, list := range m.lists {
		if m.cursors[i] < len(list) {
			m.err = fmt.Errorf("%w: posting %q outside the document universe",
				apperrors.ErrIntegrity, list[m.cursors[i]].DocID)
			return
		}
	}
}

func (m *Merger) DocID() string {
	return m.universe[m.pos]
}

func (m *Merger) DocLength() int {
	return m.lengths[m.universe[m.pos]]
}

// TermFreqs returns the current row. The slice is reused by Next.
func (m *Merger) TermFreqs() []int {
	return m.row
}

func (m *Merger) Err() error {
	return m.err
}
