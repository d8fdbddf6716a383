// Package handler serves ad-hoc ranked retrieval over the loaded index.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/evaluation/cache"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval/scorer"
	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/middleware"
)

type Normalizer interface {
	Normalize(text string) []string
}

// ResultCache is satisfied by *cache.ResultCache.
type ResultCache interface {
	GetOrCompute(ctx context.Context, key cache.Key, compute func() (*retrieval.Result, error)) (*retrieval.Result, bool, error)
	Stats() (hits, misses int64)
	Invalidate(ctx context.Context) (int64, error)
}

type Options struct {
	Params       scorer.Params
	DefaultModel scorer.Model
	DefaultK     int
	MaxResults   int
	Cache        ResultCache
	Collector    evaluation.Tracker
	Metrics      *metrics.Metrics
}

type Handler struct {
	engine  *retrieval.Engine
	norm    Normalizer
	scorers map[scorer.Model]scorer.Scorer
	opts    Options
	indexID string
	logger  *slog.Logger
}

// New builds one scorer per model against the engine's corpus statistics.
func New(engine *retrieval.Engine, norm Normalizer, opts Options) (*Handler, error) {
	if opts.Params == (scorer.Params{}) {
		opts.Params = scorer.DefaultParams()
	}
	if opts.DefaultK < 1 {
		opts.DefaultK = 10
	}
	if opts.MaxResults < opts.DefaultK {
		opts.MaxResults = opts.DefaultK
	}
	scorers := make(map[scorer.Model]scorer.Scorer)
	for _, m := range []scorer.Model{scorer.BM25, scorer.QLJelinekMercer, scorer.QLDirichlet, scorer.QLNaive} {
		s, err := scorer.New(m, opts.Params, engine.Index().Stats())
		if err != nil {
			return nil, fmt.Errorf("building %s scorer: %w", m, err)
		}
		scorers[m] = s
	}
	h := &Handler{
		engine:  engine,
		norm:    norm,
		scorers: scorers,
		opts:    opts,
		logger:  slog.Default().With("component", "search-handler"),
	}
	if opts.Cache != nil {
		h.indexID = engine.Index().Fingerprint()
	}
	return h, nil
}

type SearchHit struct {
	Rank  int     `json:"rank"`
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

type SearchResponse struct {
	Query     string      `json:"query"`
	Model     string      `json:"model"`
	Terms     []string    `json:"terms"`
	TotalHits int         `json:"total_hits"`
	Results   []SearchHit `json:"results"`
	CacheHit  bool        `json:"cache_hit"`
	TookMs    int64       `json:"took_ms"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}

	model := h.opts.DefaultModel
	if name := r.URL.Query().Get("model"); name != "" {
		parsed, err := scorer.ParseModel(name)
		if err != nil {
			h.writeError(w, err)
			return
		}
		model = parsed
	}

	k := h.opts.DefaultK
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		parsed, err := strconv.Atoi(kStr)
		if err != nil || parsed < 1 {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "k must be a positive integer"))
			return
		}
		k = min(parsed, h.opts.MaxResults)
	}

	terms := h.norm.Normalize(query)
	resp := SearchResponse{Query: query, Model: model.String(), Terms: terms, Results: []SearchHit{}}
	if len(terms) == 0 {
		h.writeJSON(w, http.StatusOK, resp)
		return
	}

	s := h.scorers[model]
	q := retrieval.Query{Terms: terms}
	retrieve := func() (*retrieval.Result, error) {
		return h.engine.Retrieve(q, s, k)
	}
	var (
		res *retrieval.Result
		err error
	)
	if h.opts.Cache != nil {
		res, resp.CacheHit, err = h.opts.Cache.GetOrCompute(ctx, cache.Key{Index: h.indexID, Model: model, Params: h.opts.Params, K: k, Terms: terms}, retrieve)
	} else {
		res, err = retrieve()
	}
	if err != nil {
		log.Error("search failed", "query", query, "model", model.String(), "error", err)
		if m := h.opts.Metrics; m != nil {
			m.QueriesTotal.WithLabelValues(model.String(), "failed").Inc()
		}
		h.writeError(w, err)
		return
	}

	resp.TotalHits = res.Candidates
	resp.Results = make([]SearchHit, len(res.Entries))
	for i, e := range res.Entries {
		resp.Results[i] = SearchHit{Rank: i, DocID: e.DocID, Score: e.Score}
	}
	latency := time.Since(start)
	resp.TookMs = latency.Milliseconds()

	if m := h.opts.Metrics; m != nil {
		status := "ok"
		if resp.CacheHit {
			status = "cached"
		}
		m.QueriesTotal.WithLabelValues(model.String(), status).Inc()
		m.QueryLatency.WithLabelValues(model.String()).Observe(latency.Seconds())
	}
	if h.opts.Collector != nil {
		h.opts.Collector.Track(evaluation.QueryEvent{
			Type:       evaluation.EventSearch,
			RequestID:  middleware.GetRequestID(ctx),
			Model:      model.String(),
			Terms:      terms,
			Returned:   len(resp.Results),
			Candidates: res.Candidates,
			CacheHit:   resp.CacheHit,
			LatencyMs:  resp.TookMs,
			Timestamp:  time.Now().UTC(),
		})
	}
	log.Info("search completed",
		"query", query,
		"model", model.String(),
		"total_hits", resp.TotalHits,
		"returned", len(resp.Results),
		"cache_hit", resp.CacheHit,
		"latency_ms", resp.TookMs,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	idx := h.engine.Index()
	st := idx.Stats()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents":      st.DocCount,
		"terms":          idx.NumTerms(),
		"total_tokens":   st.TotalTokens,
		"avg_doc_length": st.AvgDocLength,
		"default_model":  h.opts.DefaultModel.String(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.opts.Cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}

	deleted, err := h.opts.Cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// Routes registers the API on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		message = appErr.Message
	} else if status == http.StatusInternalServerError {
		message = "search failed"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
