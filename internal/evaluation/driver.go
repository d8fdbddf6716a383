// Package evaluation runs a batch of TREC topics against the retrieval
// engine with a fixed-size pool and assembles the results into a run.
package evaluation

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/evaluation/cache"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval/scorer"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/runfile"
	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/resilience"
)

// Normalizer turns topic text into query terms.
type Normalizer interface {
	Normalize(text string) []string
}

// ResultCache is satisfied by *cache.ResultCache.
type ResultCache interface {
	GetOrCompute(ctx context.Context, key cache.Key, compute func() (*retrieval.Result, error)) (*retrieval.Result, bool, error)
}

// Tracker is satisfied by *Collector.
type Tracker interface {
	Track(event any)
}

type Options struct {
	Scorer scorer.Scorer
	// Params are the parameters Scorer was built with; they only feed the
	// cache key.
	Params     scorer.Params
	K          int
	PoolSize   int
	DedupTerms bool
	Tag        string
	RunID      string

	Cache     ResultCache
	Collector Tracker
	Metrics   *metrics.Metrics
}

type Driver struct {
	engine  *retrieval.Engine
	norm    Normalizer
	opts    Options
	indexID string
}

func NewDriver(engine *retrieval.Engine, norm Normalizer, opts Options) (*Driver, error) {
	if opts.Scorer == nil {
		return nil, fmt.Errorf("%w: scorer is required", apperrors.ErrInvalidInput)
	}
	if opts.K < 1 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", apperrors.ErrInvalidInput, opts.K)
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = runtime.NumCPU()
	}
	if opts.Tag == "" {
		opts.Tag = runfile.DefaultTag
	}
	d := &Driver{engine: engine, norm: norm, opts: opts}
	if opts.Cache != nil {
		d.indexID = engine.Index().Fingerprint()
	}
	return d, nil
}

type outcome struct {
	topic  string
	result *retrieval.Result
	err    error
}

// Run evaluates topics in groups of PoolSize. Each group is fully joined
// before the next one starts. A failing topic is recorded in
// Run.Failures and does not affect the others. When ctx is cancelled no
// further group is started and the partial run is returned with ctx's
// error.
func (d *Driver) Run(ctx context.Context, topics []corpus.Topic) (*Run, error) {
	queries := make([]retrieval.Query, 0, len(topics))
	seen := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate topic %s", apperrors.ErrInvalidInput, t.ID)
		}
		seen[t.ID] = struct{}{}
		q := retrieval.Query{TopicID: t.ID, Terms: d.norm.Normalize(t.Text)}
		if d.opts.DedupTerms {
			q = q.Dedup()
		}
		queries = append(queries, q)
	}

	model := d.opts.Scorer.Model().String()
	run := &Run{
		ID:       d.runID(model),
		Model:    model,
		Tag:      d.opts.Tag,
		Results:  make(map[string]*retrieval.Result, len(queries)),
		Failures: make(map[string]error),
		Started:  time.Now(),
	}
	log := logger.FromContext(ctx).With("component", "evaluation-driver", "run_id", run.ID)
	log.Info("run started", "topics", len(queries), "model", model, "k", d.opts.K, "pool_size", d.opts.PoolSize)

	var runErr error
	for start := 0; start < len(queries); start += d.opts.PoolSize {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("run interrupted after %d of %d topics: %w", start, len(queries), err)
			break
		}
		end := min(start+d.opts.PoolSize, len(queries))
		for _, o := range d.runGroup(ctx, run.ID, queries[start:end]) {
			if o.err != nil {
				run.Failures[o.topic] = o.err
				continue
			}
			run.Results[o.topic] = o.result
		}
	}
	run.Finished = time.Now()

	duration := run.Finished.Sub(run.Started)
	log.Info("run finished",
		"results", len(run.Results),
		"failures", len(run.Failures),
		"duration_ms", duration.Milliseconds(),
	)
	if d.opts.Collector != nil {
		d.opts.Collector.Track(RunCompletedEvent{
			Type:       EventRunCompleted,
			RunID:      run.ID,
			Model:      model,
			Topics:     len(run.Results) + len(run.Failures),
			Failures:   len(run.Failures),
			DurationMs: duration.Milliseconds(),
			Timestamp:  run.Finished,
		})
	}
	return run, runErr
}

// runGroup runs one task per query concurrently and returns after all of
// them have finished. Tasks hand their outcome back over a channel; only
// the caller touches the run.
func (d *Driver) runGroup(ctx context.Context, runID string, group []retrieval.Query) []outcome {
	outcomes := make(chan outcome, len(group))
	var g errgroup.Group
	for _, q := range group {
		g.Go(func() error {
			outcomes <- d.execute(ctx, runID, q)
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)

	collected := make([]outcome, 0, len(group))
	for o := range outcomes {
		collected = append(collected, o)
	}
	return collected
}

func (d *Driver) execute(ctx context.Context, runID string, q retrieval.Query) outcome {
	ctx = logger.WithTopic(ctx, q.TopicID)
	log := logger.FromContext(ctx)
	model := d.opts.Scorer.Model().String()
	start := time.Now()

	var (
		res    *retrieval.Result
		cached bool
	)
	err := resilience.Isolate("topic "+q.TopicID, func() error {
		retrieve := func() (*retrieval.Result, error) {
			return d.engine.Retrieve(q, d.opts.Scorer, d.opts.K)
		}
		var err error
		if d.opts.Cache != nil {
			res, cached, err = d.opts.Cache.GetOrCompute(ctx, d.cacheKey(q), retrieve)
		} else {
			res, err = retrieve()
		}
		return err
	})
	latency := time.Since(start)

	event := QueryEvent{
		Type:      EventQuery,
		RunID:     runID,
		Topic:     q.TopicID,
		Model:     model,
		Terms:     q.Terms,
		CacheHit:  cached,
		LatencyMs: latency.Milliseconds(),
		Timestamp: time.Now(),
	}
	if err != nil {
		log.Error("topic failed", "error", err)
		event.Type = EventQueryFailed
		event.Error = err.Error()
		d.track(event)
		if m := d.opts.Metrics; m != nil {
			m.QueriesTotal.WithLabelValues(model, "failed").Inc()
			m.QueryFailuresTotal.WithLabelValues(model).Inc()
		}
		return outcome{topic: q.TopicID, err: err}
	}

	// Cached results may come from another topic with the same terms.
	r := *res
	r.TopicID = q.TopicID

	event.Returned = len(r.Entries)
	event.Candidates = r.Candidates
	d.track(event)
	if m := d.opts.Metrics; m != nil {
		status := "ok"
		if cached {
			status = "cached"
		}
		m.QueriesTotal.WithLabelValues(model, status).Inc()
		m.QueryLatency.WithLabelValues(model).Observe(latency.Seconds())
	}
	log.Debug("topic ranked", "terms", len(q.Terms), "candidates", r.Candidates, "returned", len(r.Entries), "cached", cached)
	return outcome{topic: q.TopicID, result: &r}
}

func (d *Driver) track(event QueryEvent) {
	if d.opts.Collector != nil {
		d.opts.Collector.Track(event)
	}
}

func (d *Driver) cacheKey(q retrieval.Query) cache.Key {
	return cache.Key{
		Index:  d.indexID,
		Model:  d.opts.Scorer.Model(),
		Params: d.opts.Params,
		K:      d.opts.K,
		Terms:  q.Terms,
	}
}

func (d *Driver) runID(model string) string {
	if d.opts.RunID != "" {
		return d.opts.RunID
	}
	return fmt.Sprintf("%s-%s", model, time.Now().UTC().Format("20060102T150405.000"))
}
