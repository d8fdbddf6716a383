// Package scorer implements the ranking functions used to score a document
// against a query: Okapi BM25 and three query-likelihood variants.
//
// A Scorer is built once per run with the corpus statistics of the index it
// will score against and is safe for concurrent use.
package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
)

type Model int

const (
	BM25 Model = iota
	QLJelinekMercer
	QLDirichlet
	// QLNaive is an unsmoothed baseline. Its fixed penalty for a missing
	// term dominates the score, so results are not comparable across
	// documents with different numbers of missing terms.
	QLNaive
)

// NaivePenalty is the score contribution of a query term absent from the
// document under QLNaive.
const NaivePenalty = -999.0

var modelNames = map[Model]string{
	BM25:            "bm25",
	QLJelinekMercer: "ql-jm",
	QLDirichlet:     "ql-dir",
	QLNaive:         "ql-naive",
}

func (m Model) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return fmt.Sprintf("model(%d)", int(m))
}

// ParseModel maps a model name to its Model.
func ParseModel(name string) (Model, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for m, n := range modelNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", apperrors.ErrUnknownModel, name)
}

type Params struct {
	K1     float64 `json:"k1" yaml:"k1"`
	B      float64 `json:"b" yaml:"b"`
	Lambda float64 `json:"lambda" yaml:"lambda"`
	Mu     float64 `json:"mu" yaml:"mu"`
}

func DefaultParams() Params {
	return Params{K1: 1.2, B: 0.75, Lambda: 0.8, Mu: 2000}
}

// Validate checks only the parameters model uses.
func (p Params) Validate(model Model) error {
	switch model {
	case BM25:
		if p.K1 < 0 {
			return fmt.Errorf("%w: k1 must be >= 0, got %g", apperrors.ErrInvalidInput, p.K1)
		}
		if p.B < 0 || p.B > 1 {
			return fmt.Errorf("%w: b must be in [0,1], got %g", apperrors.ErrInvalidInput, p.B)
		}
	case QLJelinekMercer:
		if p.Lambda <= 0 || p.Lambda > 1 {
			return fmt.Errorf("%w: lambda must be in (0,1], got %g", apperrors.ErrInvalidInput, p.Lambda)
		}
	case QLDirichlet:
		if p.Mu <= 0 {
			return fmt.Errorf("%w: mu must be > 0, got %g", apperrors.ErrInvalidInput, p.Mu)
		}
	case QLNaive:
	default:
		return fmt.Errorf("%w: %v", apperrors.ErrUnknownModel, model)
	}
	return nil
}

// Input carries one document's statistics for every query term, aligned by
// position.
type Input struct {
	TermFreqs       []int
	DocFreqs        []int
	DocLength       int
	TermCorpusFreqs []int64
}

type Scorer interface {
	Score(in Input) float64
	Model() Model
}

// New returns the Scorer for model, bound to stats.
func New(model Model, params Params, stats index.Stats) (Scorer, error) {
	if err := params.Validate(model); err != nil {
		return nil, err
	}
	switch model {
	case BM25:
		return &bm25{k1: params.K1, b: params.B, n: float64(stats.DocCount), avgdl: stats.AvgDocLength}, nil
	case QLJelinekMercer:
		return &jelinekMercer{lambda: params.Lambda, total: float64(stats.TotalTokens)}, nil
	case QLDirichlet:
		return &dirichlet{mu: params.Mu, total: float64(stats.TotalTokens)}, nil
	default:
		return naive{}, nil
	}
}

type bm25 struct {
	k1, b, n, avgdl float64
}

func (s *bm25) Model() Model { return BM25 }

func (s *bm25) Score(in Input) float64 {
	var score float64
	dl := float64(in.DocLength)
	norm := s.k1 * (1 - s.b)
	if s.avgdl > 0 {
		norm += s.k1 * s.b * dl / s.avgdl
	}
	for i, tf := range in.TermFreqs {
		if tf == 0 {
			continue
		}
		df := float64(in.DocFreqs[i])
		idf := math.Log((s.n - df + 0.5) / (df + 0.5))
		f := float64(tf)
		score += idf * f * (s.k1 + 1) / (f + norm)
	}
	return score
}

type jelinekMercer struct {
	lambda, total float64
}

func (s *jelinekMercer) Model() Model { return QLJelinekMercer }

func (s *jelinekMercer) Score(in Input) float64 {
	var score float64
	dl := float64(in.DocLength)
	for i, tf := range in.TermFreqs {
		p := (float64(in.TermCorpusFreqs[i]) + 1) / s.total
		score += math.Log(1 + (1-s.lambda)*float64(tf)/(dl+1)/(s.lambda*p))
	}
	return score
}

type dirichlet struct {
	mu, total float64
}

func (s *dirichlet) Model() Model { return QLDirichlet }

func (s *dirichlet) Score(in Input) float64 {
	var score float64
	dl := float64(in.DocLength)
	for i, tf := range in.TermFreqs {
		p := (float64(in.TermCorpusFreqs[i]) + 1) / s.total
		score += math.Log(1+float64(tf)/(s.mu*p)) + math.Log(s.mu/(s.mu+dl))
	}
	return score
}

type naive struct{}

func (naive) Model() Model { return QLNaive }

func (naive) Score(in Input) float64 {
	var score float64
	for _, tf := range in.TermFreqs {
		if tf == 0 {
			score += NaivePenalty
			continue
		}
		score += math.Log(float64(in.DocLength) / float64(tf))
	}
	return score
}
