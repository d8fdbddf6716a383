package evaluation

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval/scorer"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/logger"
)

// Grid lists the parameter values a sweep visits. An empty axis keeps the
// base value for that parameter.
type Grid struct {
	Lambdas []float64
	Mus     []float64
	Bs      []float64
	K1s     []float64
}

// DefaultGrid is 40 Jelinek-Mercer lambdas, 40 Dirichlet mus and a 20x16
// grid of BM25 b and k1.
func DefaultGrid() Grid {
	return Grid{
		Lambdas: Linspace(0.025, 1, 40),
		Mus:     Linspace(100, 4000, 40),
		Bs:      Linspace(0.05, 1, 20),
		K1s:     Linspace(0.125, 2, 16),
	}
}

// Linspace returns n evenly spaced values from start to stop inclusive,
// rounded to 12 decimal places so labels stay short.
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{start}
	}
	step := (stop - start) / float64(n-1)
	out := make([]float64, n)
	for i := range n {
		out[i] = math.Round((start+float64(i)*step)*1e12) / 1e12
	}
	return out
}

// Setting is one point of a sweep.
type Setting struct {
	Model  scorer.Model
	Params scorer.Params
}

// Settings expands g for model. Only the parameters the model reads vary;
// the rest come from base.
func (g Grid) Settings(model scorer.Model, base scorer.Params) []Setting {
	axis := func(values []float64, fallback float64) []float64 {
		if len(values) == 0 {
			return []float64{fallback}
		}
		return values
	}
	var out []Setting
	switch model {
	case scorer.BM25:
		for _, b := range axis(g.Bs, base.B) {
			for _, k1 := range axis(g.K1s, base.K1) {
				p := base
				p.B, p.K1 = b, k1
				out = append(out, Setting{Model: model, Params: p})
			}
		}
	case scorer.QLJelinekMercer:
		for _, l := range axis(g.Lambdas, base.Lambda) {
			p := base
			p.Lambda = l
			out = append(out, Setting{Model: model, Params: p})
		}
	case scorer.QLDirichlet:
		for _, mu := range axis(g.Mus, base.Mu) {
			p := base
			p.Mu = mu
			out = append(out, Setting{Model: model, Params: p})
		}
	default:
		out = append(out, Setting{Model: model, Params: base})
	}
	return out
}

// Label names the setting by model and the parameters it reads, e.g.
// "bm25_b_0.75_k1_1.2" or "ql-dir_mu_2000".
func (s Setting) Label() string {
	parts := []string{s.Model.String()}
	add := func(name string, v float64) {
		parts = append(parts, name, strconv.FormatFloat(v, 'f', -1, 64))
	}
	switch s.Model {
	case scorer.BM25:
		add("b", s.Params.B)
		add("k1", s.Params.K1)
	case scorer.QLJelinekMercer:
		add("lambda", s.Params.Lambda)
	case scorer.QLDirichlet:
		add("mu", s.Params.Mu)
	}
	return strings.Join(parts, "_")
}

// FileName is the run file a sweep writes for s.
func (s Setting) FileName() string {
	return "output_" + s.Label() + ".txt"
}

// Sweep ranks topics once per setting against the same engine and hands
// each run to emit in order. opts supplies everything but the scorer; each
// run's id is the setting label, prefixed by opts.RunID when set. The
// sweep stops at the first scorer, driver or emit error, and between
// settings when ctx is cancelled.
func Sweep(
	ctx context.Context,
	engine *retrieval.Engine,
	norm Normalizer,
	topics []corpus.Topic,
	settings []Setting,
	opts Options,
	emit func(Setting, *Run) error,
) error {
	log := logger.FromContext(ctx).With("component", "sweep")
	stats := engine.Index().Stats()
	for i, s := range settings {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sweep interrupted after %d of %d settings: %w", i, len(settings), err)
		}
		sc, err := scorer.New(s.Model, s.Params, stats)
		if err != nil {
			return fmt.Errorf("setting %s: %w", s.Label(), err)
		}
		o := opts
		o.Scorer, o.Params = sc, s.Params
		o.RunID = s.Label()
		if opts.RunID != "" {
			o.RunID = opts.RunID + "-" + s.Label()
		}
		d, err := NewDriver(engine, norm, o)
		if err != nil {
			return err
		}
		run, err := d.Run(ctx, topics)
		if err != nil {
			return fmt.Errorf("setting %s: %w", s.Label(), err)
		}
		if err := emit(s, run); err != nil {
			return err
		}
		log.Info("sweep setting done", "setting", s.Label(), "done", i+1, "total", len(settings))
	}
	return nil
}
