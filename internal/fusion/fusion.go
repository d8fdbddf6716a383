// Package fusion combines two rankings of the same topic into one, by
// interleaving (min-rank), by Borda count or by normalized score
// interpolation.
package fusion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/runfile"
	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
)

// DefaultDepth is how many documents Borda and interpolation keep.
const DefaultDepth = 1000

type Method int

const (
	MethodMinRank Method = iota
	MethodBorda
	MethodInterpolation
)

var methodNames = map[Method]string{
	MethodMinRank:       "min",
	MethodBorda:         "borda",
	MethodInterpolation: "interp",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("method(%d)", int(m))
}

func ParseMethod(name string) (Method, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for m, n := range methodNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", apperrors.ErrUnknownMethod, name)
}

// Ranked is one entry of an input ranking, in rank order.
type Ranked struct {
	Rank  int
	DocID string
	Score float64
}

// Fused is one entry of a fused ranking. Ranks start at 0 and are
// contiguous.
type Fused struct {
	Rank  int
	DocID string
	Score float64
}

// MinRank interleaves a and b by position, skipping documents already
// emitted, and truncates to len(a). Scores are 1/(rank+1).
func MinRank(a, b []Ranked) []Fused {
	n := len(a)
	out := make([]Fused, 0, n)
	seen := make(map[string]struct{}, len(a)+len(b))
	emit := func(docID string) {
		if _, ok := seen[docID]; ok {
			return
		}
		seen[docID] = struct{}{}
		rank := len(out)
		out = append(out, Fused{Rank: rank, DocID: docID, Score: 1 / float64(rank+1)})
	}
	for i := 0; len(out) < n && (i < len(a) || i < len(b)); i++ {
		if i < len(a) {
			emit(a[i].DocID)
		}
		if i < len(b) && len(out) < n {
			emit(b[i].DocID)
		}
	}
	return out
}

// Borda gives each appearance len(input)-1-rank points and sums them per
// document. Ties keep the order of first appearance, a before b.
func Borda(a, b []Ranked, depth int) []Fused {
	acc := newAccumulator(len(a) + len(b))
	for _, in := range [][]Ranked{a, b} {
		for _, r := range in {
			acc.add(r.DocID, float64(len(in)-1-r.Rank))
		}
	}
	return acc.ranked(depth)
}

// Interpolate normalizes each input's scores to [0,1] and sums them per
// document.
func Interpolate(a, b []Ranked, depth int) []Fused {
	acc := newAccumulator(len(a) + len(b))
	for _, in := range [][]Ranked{a, b} {
		norm := normalize(in)
		for i, r := range in {
			acc.add(r.DocID, norm[i])
		}
	}
	return acc.ranked(depth)
}

// normalize shifts scores so the minimum is 0 and divides by the resulting
// maximum. A ranking whose scores are all equal normalizes to zeros.
func normalize(in []Ranked) []float64 {
	out := make([]float64, len(in))
	if len(in) == 0 {
		return out
	}
	lo := in[0].Score
	for _, r := range in[1:] {
		if r.Score < lo {
			lo = r.Score
		}
	}
	var hi float64
	for i, r := range in {
		out[i] = r.Score - lo
		if out[i] > hi {
			hi = out[i]
		}
	}
	if hi == 0 {
		return make([]float64, len(in))
	}
	for i := range out {
		out[i] /= hi
	}
	return out
}

// Fuse dispatches to the fusion function for m.
func Fuse(m Method, a, b []Ranked, depth int) ([]Fused, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}
	switch m {
	case MethodMinRank:
		return MinRank(a, b), nil
	case MethodBorda:
		return Borda(a, b, depth), nil
	case MethodInterpolation:
		return Interpolate(a, b, depth), nil
	default:
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnknownMethod, m)
	}
}

// FuseRuns fuses every topic present in either run. A topic missing from
// one run is fused against an empty ranking.
func FuseRuns(m Method, a, b map[string][]Ranked, depth int) (map[string][]Fused, error) {
	out := make(map[string][]Fused, len(a))
	for topic := range union(a, b) {
		fused, err := Fuse(m, a[topic], b[topic], depth)
		if err != nil {
			return nil, err
		}
		out[topic] = fused
	}
	return out, nil
}

// FromRun converts a parsed run file to fusion input.
func FromRun(run *runfile.Run) map[string][]Ranked {
	out := make(map[string][]Ranked, len(run.Entries))
	for topic, entries := range run.Entries {
		ranked := make([]Ranked, len(entries))
		for i, e := range entries {
			ranked[i] = Ranked{Rank: e.Rank, DocID: e.DocID, Score: e.Score}
		}
		out[topic] = ranked
	}
	return out
}

// Lines renders fused rankings as run lines, topics ascending.
func Lines(fused map[string][]Fused, tag string) []runfile.Line {
	topics := make([]string, 0, len(fused))
	for t := range fused {
		topics = append(topics, t)
	}
	runfile.SortTopics(topics)
	var lines []runfile.Line
	for _, t := range topics {
		for _, f := range fused[t] {
			lines = append(lines, runfile.Line{Topic: t, DocID: f.DocID, Rank: f.Rank, Score: f.Score, Tag: tag})
		}
	}
	return lines
}

func union(a, b map[string][]Ranked) map[string]struct{} {
	set := make(map[string]struct{}, len(a)+len(b))
	for t := range a {
		set[t] = struct{}{}
	}
	for t := range b {
		set[t] = struct{}{}
	}
	return set
}

type accumulator struct {
	order  []string
	scores map[string]float64
}

func newAccumulator(size int) *accumulator {
	return &accumulator{
		order:  make([]string, 0, size),
		scores: make(map[string]float64, size),
	}
}

func (a *accumulator) add(docID string, v float64) {
	if _, ok := a.scores[docID]; !ok {
		a.order = append(a.order, docID)
	}
	a.scores[docID] += v
}

func (a *accumulator) ranked(depth int) []Fused {
	docs := append([]string(nil), a.order...)
	sort.SliceStable(docs, func(i, j int) bool {
		return a.scores[docs[i]] > a.scores[docs[j]]
	})
	if depth > 0 && len(docs) > depth {
		docs = docs[:depth]
	}
	out := make([]Fused, len(docs))
	for i, d := range docs {
		out[i] = Fused{Rank: i, DocID: d, Score: a.scores[d]}
	}
	return out
}
