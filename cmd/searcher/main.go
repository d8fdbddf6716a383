package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/evaluation/cache"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/index/store"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval/scorer"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults and TR_* env when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "index", cfg.Index.StorePath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Index.StorePath, cfg.Index.OpenTimeout)
	if err != nil {
		slog.Error("failed to open index store", "error", err)
		os.Exit(1)
	}
	idx, err := st.Load()
	st.Close()
	if err != nil {
		slog.Error("failed to load index", "error", err)
		os.Exit(1)
	}

	m := metrics.New(nil)
	m.IndexTerms.Set(float64(idx.NumTerms()))
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(m, cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	defaultModel, err := scorer.ParseModel(cfg.Retrieval.Model)
	if err != nil {
		slog.Error("invalid retrieval model", "error", err)
		os.Exit(1)
	}
	params := scorer.Params{K1: cfg.Retrieval.K1, B: cfg.Retrieval.B, Lambda: cfg.Retrieval.Lambda, Mu: cfg.Retrieval.Mu}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, %d terms", idx.Stats().DocCount, idx.NumTerms()),
		}
	})

	var resultCache handler.ResultCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			resultCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, true))
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var collector evaluation.Tracker
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		c := evaluation.NewCollector(producer, 10000)
		c.Start(ctx)
		defer c.Close()
		collector = c
	}

	h, err := handler.New(retrieval.NewEngine(idx), tokenizer.New(cfg.Index.Stopwords), handler.Options{
		Params:       params,
		DefaultModel: defaultModel,
		DefaultK:     10,
		MaxResults:   cfg.Server.MaxResults,
		Cache:        resultCache,
		Collector:    collector,
		Metrics:      m,
	})
	if err != nil {
		slog.Error("failed to create search handler", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.CORS(middleware.CORSConfig{AllowOrigins: cfg.Server.CORSOrigins, MaxAge: 3600})(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
