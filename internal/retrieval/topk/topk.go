// Package topk keeps the k best (score, doc id) pairs seen in a stream.
package topk

import (
	"container/heap"
	"sort"
)

type Entry struct {
	Score float64 `json:"score"`
	DocID string  `json:"doc_id"`
}

// less orders entries by (score, doc id) ascending.
func less(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.DocID < b.DocID
}

// Selector is not safe for concurrent use.
type Selector struct {
	k int
	h entryHeap
}

// New returns a Selector retaining at most k entries. k <= 0 retains none.
func New(k int) *Selector {
	capacity := k
	if capacity < 0 {
		capacity = 0
	}
	if capacity > 4096 {
		capacity = 4096
	}
	return &Selector{k: k, h: make(entryHeap, 0, capacity)}
}

// Push offers an entry. Once full, an entry not smaller than the current
// minimum replaces it.
func (s *Selector) Push(score float64, docID string) {
	if s.k <= 0 {
		return
	}
	e := Entry{Score: score, DocID: docID}
	if len(s.h) < s.k {
		heap.Push(&s.h, e)
		return
	}
	if !less(e, s.h[0]) {
		s.h[0] = e
		heap.Fix(&s.h, 0)
	}
}

func (s *Selector) Len() int { return len(s.h) }

// Results returns the retained entries ordered by (score, doc id)
// descending. The Selector is left unchanged.
func (s *Selector) Results() []Entry {
	out := make([]Entry, len(s.h))
	copy(out, s.h)
	sort.Slice(out, func(i, j int) bool {
		return less(out[j], out[i])
	})
	return out
}

type entryHeap []Entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return less(h[i], h[j]) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x interface{}) {
	*h = append(*h, x.(Entry))
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
