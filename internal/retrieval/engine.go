// Package retrieval scores every document of an index against a query and
// keeps the best k.
package retrieval

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/index"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval/scorer"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval/topk"
)

// Query is a topic's normalized terms. Repeated terms are scored once per
// occurrence.
type Query struct {
	TopicID string
	Terms   []string
}

// Dedup returns a copy of q keeping the first occurrence of each term.
func (q Query) Dedup() Query {
	seen := make(map[string]struct{}, len(q.Terms))
	terms := make([]string, 0, len(q.Terms))
	for _, t := range q.Terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return Query{TopicID: q.TopicID, Terms: terms}
}

type Result struct {
	TopicID string       `json:"topic_id"`
	Terms   []string     `json:"terms"`
	Entries []topk.Entry `json:"entries"`
	// Candidates is the number of documents containing at least one term.
	Candidates int `json:"candidates"`
}

// Engine is safe for concurrent use; the index is only read.
type Engine struct {
	idx *index.Index
}

func NewEngine(idx *index.Index) *Engine {
	return &Engine{idx: idx}
}

func (e *Engine) Index() *index.Index {
	return e.idx
}

// Retrieve scores every document in the universe against q and returns the
// top k, ordered by (score, doc id) descending.
func (e *Engine) Retrieve(q Query, s scorer.Scorer, k int) (*Result, error) {
	proj := e.idx.Project(q.Terms)

	in := scorer.Input{
		DocFreqs:        make([]int, len(q.Terms)),
		TermCorpusFreqs: make([]int64, len(q.Terms)),
	}
	for i, t := range q.Terms {
		in.DocFreqs[i] = proj.DocFreqs[t]
		in.TermCorpusFreqs[i] = proj.TermFreqs[t]
	}

	sel := topk.New(k)
	m := NewMerger(proj, q.Terms)
	for m.Next() {
		in.TermFreqs = m.TermFreqs()
		in.DocLength = m.DocLength()
		sel.Push(s.Score(in), m.DocID())
	}
	if err := m.Err(); err != nil {
		return nil, fmt.Errorf("topic %s: %w", q.TopicID, err)
	}

	return &Result{
		TopicID:    q.TopicID,
		Terms:      q.Terms,
		Entries:    sel.Results(),
		Candidates: int(proj.MatchingDocs(q.Terms).GetCardinality()),
	}, nil
}
