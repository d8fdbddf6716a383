package index

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
)

// Normalizer turns document text into index terms.
type Normalizer interface {
	Normalize(text string) []string
}

// Builder accumulates documents into an Index. It is single-writer.
type Builder struct {
	norm       Normalizer
	inverted   map[string]PostingList
	docLengths map[string]int
	skipped    []string
	logger     *slog.Logger
}

func NewBuilder(norm Normalizer) *Builder {
	return &Builder{
		norm:       norm,
		inverted:   make(map[string]PostingList),
		docLengths: make(map[string]int),
		logger:     slog.Default().With("component", "index-builder"),
	}
}

// Add indexes doc. Documents with no text body are skipped and recorded;
// a repeated document id is an integrity fault.
func (b *Builder) Add(doc corpus.Document) error {
	if _, dup := b.docLengths[doc.ID]; dup {
		return fmt.Errorf("%w: duplicate document id %q", apperrors.ErrIntegrity, doc.ID)
	}
	if strings.TrimSpace(doc.Text) == "" {
		b.skipped = append(b.skipped, doc.ID)
		b.logger.Warn("document has no text body, excluded", "doc_id", doc.ID)
		return nil
	}

	terms := b.norm.Normalize(doc.Text)
	counts := make(map[string]int, len(terms))
	for _, t := range terms {
		counts[t]++
	}
	for t, n := range counts {
		b.inverted[t] = append(b.inverted[t], Posting{DocID: doc.ID, Frequency: n})
	}
	b.docLengths[doc.ID] = len(terms)
	return nil
}

// Skipped returns the ids of documents excluded for lacking a text body.
func (b *Builder) Skipped() []string {
	return b.skipped
}

func (b *Builder) DocCount() int {
	return len(b.docLengths)
}

// Finish sorts posting lists, derives frequencies and returns the verified
// Index. The Builder must not be used afterwards.
func (b *Builder) Finish() (*Index, error) {
	docFreqs := make(map[string]int, len(b.inverted))
	termFreqs := make(map[string]int64, len(b.inverted))
	for t, list := range b.inverted {
		sort.Slice(list, func(i, j int) bool {
			return list[i].DocID < list[j].DocID
		})
		docFreqs[t] = len(list)
		var sum int64
		for _, p := range list {
			sum += int64(p.Frequency)
		}
		termFreqs[t] = sum
	}
	idx, err := New(b.inverted, b.docLengths, docFreqs, termFreqs)
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}
	b.logger.Info("index built",
		"documents", idx.stats.DocCount,
		"terms", len(b.inverted),
		"tokens", idx.stats.TotalTokens,
		"skipped", len(b.skipped),
	)
	return idx, nil
}

// Build indexes docs in order.
func Build(docs []corpus.Document, norm Normalizer) (*Index, error) {
	b := NewBuilder(norm)
	for _, d := range docs {
		if err := b.Add(d); err != nil {
			return nil, err
		}
	}
	return b.Finish()
}
