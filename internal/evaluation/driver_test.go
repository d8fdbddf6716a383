package evaluation

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/evaluation/cache"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/index"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval/scorer"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/runfile"
	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/redis"
)

type fieldsNormalizer struct{}

func (fieldsNormalizer) Normalize(text string) []string { return strings.Fields(text) }

func testEngine(t *testing.T) *retrieval.Engine {
	t.Helper()
	idx, err := index.Build([]corpus.Document{
		{ID: "d1", Text: "cat cat dog"},
		{ID: "d2", Text: "dog bird"},
		{ID: "d3", Text: "cat fish fish fish"},
	}, fieldsNormalizer{})
	require.NoError(t, err)
	return retrieval.NewEngine(idx)
}

func bm25(t *testing.T, e *retrieval.Engine) scorer.Scorer {
	t.Helper()
	s, err := scorer.New(scorer.BM25, scorer.DefaultParams(), e.Index().Stats())
	require.NoError(t, err)
	return s
}

// panicScorer panics on queries with exactly three terms.
type panicScorer struct{ scorer.Scorer }

func (p panicScorer) Score(in scorer.Input) float64 {
	if len(in.TermFreqs) == 3 {
		panic("bad query")
	}
	return p.Scorer.Score(in)
}

type recorder struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder) Track(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func topics(ids ...string) []corpus.Topic {
	texts := []string{"cat", "dog", "fish bird", "cat dog", "bird"}
	out := make([]corpus.Topic, len(ids))
	for i, id := range ids {
		out[i] = corpus.Topic{ID: id, Text: texts[i%len(texts)]}
	}
	return out
}

func TestRunProducesSortedLines(t *testing.T) {
	e := testEngine(t)
	d, err := NewDriver(e, fieldsNormalizer{}, Options{Scorer: bm25(t, e), K: 2, PoolSize: 2})
	require.NoError(t, err)

	run, err := d.Run(context.Background(), topics("410", "402", "405"))
	require.NoError(t, err)
	assert.Empty(t, run.Failures)
	assert.Equal(t, []string{"402", "405", "410"}, run.Topics())

	lines := run.Lines()
	require.Len(t, lines, 6)
	assert.Equal(t, runfile.Line{Topic: "402", DocID: lines[0].DocID, Rank: 0, Score: lines[0].Score, Tag: runfile.DefaultTag}, lines[0])
	assert.Equal(t, 1, lines[1].Rank)
	assert.Equal(t, "410", lines[5].Topic)

	direct, err := e.Retrieve(retrieval.Query{TopicID: "410", Terms: []string{"cat"}}, bm25(t, e), 2)
	require.NoError(t, err)
	assert.Equal(t, direct.Entries, run.Results["410"].Entries)
}

func TestRunIsolatesFailingTopic(t *testing.T) {
	e := testEngine(t)
	m := metrics.New(nil)
	rec := &recorder{}
	d, err := NewDriver(e, fieldsNormalizer{}, Options{
		Scorer:    panicScorer{bm25(t, e)},
		K:         10,
		PoolSize:  4,
		Collector: rec,
		Metrics:   m,
	})
	require.NoError(t, err)

	run, err := d.Run(context.Background(), []corpus.Topic{
		{ID: "1", Text: "cat"},
		{ID: "2", Text: "cat dog bird"},
		{ID: "3", Text: "fish"},
	})
	require.NoError(t, err)

	assert.Len(t, run.Results, 2)
	require.Contains(t, run.Failures, "2")
	assert.ErrorIs(t, run.Failures["2"], apperrors.ErrTaskFailed)
	assert.NotContains(t, run.Results, "2")

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.QueryFailuresTotal.WithLabelValues("bm25")), 1e-12)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("bm25", "ok")), 1e-12)

	require.Len(t, rec.events, 4)
	last, ok := rec.events[3].(RunCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, 3, last.Topics)
	assert.Equal(t, 1, last.Failures)
}

func TestRunDuplicateTermsPreservedUnlessDedup(t *testing.T) {
	e := testEngine(t)
	s := bm25(t, e)
	for _, dedup := range []bool{false, true} {
		d, err := NewDriver(e, fieldsNormalizer{}, Options{Scorer: s, K: 3, DedupTerms: dedup})
		require.NoError(t, err)
		run, err := d.Run(context.Background(), []corpus.Topic{{ID: "1", Text: "fish fish"}})
		require.NoError(t, err)
		want := []string{"fish", "fish"}
		if dedup {
			want = []string{"fish"}
		}
		assert.Equal(t, want, run.Results["1"].Terms)
	}
}

func TestRunRejectsDuplicateTopics(t *testing.T) {
	e := testEngine(t)
	d, err := NewDriver(e, fieldsNormalizer{}, Options{Scorer: bm25(t, e), K: 3})
	require.NoError(t, err)
	_, err = d.Run(context.Background(), []corpus.Topic{{ID: "1", Text: "cat"}, {ID: "1", Text: "dog"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRunCancelledStopsDispatch(t *testing.T) {
	e := testEngine(t)
	d, err := NewDriver(e, fieldsNormalizer{}, Options{Scorer: bm25(t, e), K: 3, PoolSize: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := d.Run(ctx, topics("1", "2", "3"))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, run)
	assert.Empty(t, run.Results)
}

// slowCache records how many computations overlap.
type slowCache struct {
	inflight atomic.Int32
	peak     atomic.Int32
	hits     map[string]bool
}

func (c *slowCache) GetOrCompute(_ context.Context, key cache.Key, compute func() (*retrieval.Result, error)) (*retrieval.Result, bool, error) {
	n := c.inflight.Add(1)
	defer c.inflight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	res, err := compute()
	return res, c.hits[strings.Join(key.Terms, " ")], err
}

func TestRunRespectsPoolSize(t *testing.T) {
	e := testEngine(t)
	c := &slowCache{}
	d, err := NewDriver(e, fieldsNormalizer{}, Options{Scorer: bm25(t, e), K: 3, PoolSize: 3, Cache: c})
	require.NoError(t, err)

	run, err := d.Run(context.Background(), topics("1", "2", "3", "4", "5", "6", "7"))
	require.NoError(t, err)
	assert.Len(t, run.Results, 7)
	assert.LessOrEqual(t, c.peak.Load(), int32(3))
}

func TestCachedResultTakesTopicID(t *testing.T) {
	e := testEngine(t)
	m := metrics.New(nil)
	c := &slowCache{hits: map[string]bool{"cat": true}}
	d, err := NewDriver(e, fieldsNormalizer{}, Options{Scorer: bm25(t, e), K: 3, Cache: c, Metrics: m})
	require.NoError(t, err)

	run, err := d.Run(context.Background(), []corpus.Topic{{ID: "77", Text: "cat"}})
	require.NoError(t, err)
	assert.Equal(t, "77", run.Results["77"].TopicID)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("bm25", "cached")), 1e-12)
}

// mapBackend is an in-memory cache.Backend.
type mapBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, pkgredis.Nil
	}
	return v, nil
}

func (m *mapBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapBackend) FlushByPattern(context.Context, string) (int64, error) {
	return 0, nil
}

func TestSharedCacheSeparatesIndexes(t *testing.T) {
	engineFor := func(docs ...corpus.Document) *retrieval.Engine {
		idx, err := index.Build(docs, fieldsNormalizer{})
		require.NoError(t, err)
		return retrieval.NewEngine(idx)
	}
	older := engineFor(
		corpus.Document{ID: "old1", Text: "cat"},
		corpus.Document{ID: "old2", Text: "cat cat"},
	)
	newer := engineFor(
		corpus.Document{ID: "new1", Text: "cat"},
		corpus.Document{ID: "new2", Text: "cat cat dog"},
		corpus.Document{ID: "new3", Text: "dog"},
	)
	shared := cache.New(&mapBackend{data: make(map[string][]byte)}, time.Minute, nil)
	topic := []corpus.Topic{{ID: "401", Text: "cat"}}

	for _, tc := range []struct {
		engine *retrieval.Engine
		prefix string
	}{{older, "old"}, {newer, "new"}} {
		d, err := NewDriver(tc.engine, fieldsNormalizer{}, Options{Scorer: bm25(t, tc.engine), K: 3, Cache: shared})
		require.NoError(t, err)
		run, err := d.Run(context.Background(), topic)
		require.NoError(t, err)
		require.NotEmpty(t, run.Results["401"].Entries)
		for _, e := range run.Results["401"].Entries {
			assert.True(t, strings.HasPrefix(e.DocID, tc.prefix), "doc %s served for index %s", e.DocID, tc.prefix)
		}
	}
	hits, misses := shared.Stats()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(2), misses)
}

func TestNewDriverValidates(t *testing.T) {
	e := testEngine(t)
	_, err := NewDriver(e, fieldsNormalizer{}, Options{K: 3})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = NewDriver(e, fieldsNormalizer{}, Options{Scorer: bm25(t, e)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
