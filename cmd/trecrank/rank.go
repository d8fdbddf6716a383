package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/evaluation/cache"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval/scorer"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/runfile"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/runstore"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/redis"
)

func newRankCmd() *cobra.Command {
	var (
		model  string
		k      int
		pool   int
		out    string
		tag    string
		runID  string
		dedup  bool
		params scorer.Params
	)
	cmd := &cobra.Command{
		Use:   "rank <topics-file>",
		Short: "Rank every topic in a TREC topics file and write a run file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("model") {
				cfg.Retrieval.Model = model
			}
			if flags.Changed("k") {
				cfg.Retrieval.K = k
			}
			if flags.Changed("pool") {
				cfg.Retrieval.PoolSize = pool
			}
			if flags.Changed("tag") {
				cfg.Retrieval.RunTag = tag
			}
			if flags.Changed("dedup") {
				cfg.Retrieval.DedupTerms = dedup
			}
			if flags.Changed("k1") {
				cfg.Retrieval.K1 = params.K1
			}
			if flags.Changed("b") {
				cfg.Retrieval.B = params.B
			}
			if flags.Changed("lambda") {
				cfg.Retrieval.Lambda = params.Lambda
			}
			if flags.Changed("mu") {
				cfg.Retrieval.Mu = params.Mu
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rank(ctx, args[0], out, runID)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&model, "model", "m", "", "scoring model: bm25, ql-jm, ql-dir or ql-naive")
	f.IntVar(&k, "k", 0, "documents ranked per topic")
	f.IntVar(&pool, "pool", 0, "topics ranked concurrently")
	f.StringVarP(&out, "out", "o", "", "output run file (default stdout)")
	f.StringVar(&tag, "tag", "", "run tag written in the last column")
	f.StringVar(&runID, "run-id", "", "id under which the run is archived")
	f.BoolVar(&dedup, "dedup", false, "score each distinct query term once")
	f.Float64Var(&params.K1, "k1", 0, "BM25 k1")
	f.Float64Var(&params.B, "b", 0, "BM25 b")
	f.Float64Var(&params.Lambda, "lambda", 0, "Jelinek-Mercer lambda")
	f.Float64Var(&params.Mu, "mu", 0, "Dirichlet mu")
	return cmd
}

func rank(ctx context.Context, topicsPath, out, runID string) error {
	rc := cfg.Retrieval
	model, err := scorer.ParseModel(rc.Model)
	if err != nil {
		return err
	}
	params := scorer.Params{K1: rc.K1, B: rc.B, Lambda: rc.Lambda, Mu: rc.Mu}

	topics, err := readTopics(topicsPath)
	if err != nil {
		return err
	}
	idx, err := loadIndex()
	if err != nil {
		return err
	}
	s, err := scorer.New(model, params, idx.Stats())
	if err != nil {
		return err
	}

	opts := evaluation.Options{
		Scorer:     s,
		Params:     params,
		K:          rc.K,
		PoolSize:   rc.PoolSize,
		DedupTerms: rc.DedupTerms,
		Tag:        rc.RunTag,
		RunID:      runID,
		Metrics:    appMetrics,
	}
	cleanup := attachRunServices(ctx, &opts)
	defer cleanup()

	driver, err := evaluation.NewDriver(retrieval.NewEngine(idx), tokenizer.New(cfg.Index.Stopwords), opts)
	if err != nil {
		return err
	}
	run, runErr := driver.Run(ctx, topics)
	if run == nil {
		return runErr
	}
	for topic, err := range run.Failures {
		slog.Error("topic not ranked", "topic", topic, "error", err)
	}

	lines := run.Lines()
	if err := writeRunFile(out, lines); err != nil {
		return err
	}

	if cfg.Postgres.Enabled && runErr == nil {
		rs, closeStore, err := openRunStore(ctx)
		if err != nil {
			slog.Error("run store unavailable, run not archived", "run_id", run.ID, "error", err)
		} else {
			defer closeStore()
			if err := archiveRun(ctx, rs, run, lines); err != nil {
				slog.Error("failed to archive run", "run_id", run.ID, "error", err)
			}
		}
	}
	if runErr != nil {
		return runErr
	}
	if len(run.Failures) > 0 {
		return fmt.Errorf("%d of %d topics failed", len(run.Failures), len(topics))
	}
	return nil
}

// attachRunServices starts the metrics server and wires the optional
// result cache and event collector into opts. The returned func releases
// them.
func attachRunServices(ctx context.Context, opts *evaluation.Options) func() {
	var closers []func()
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(appMetrics, cfg.Metrics.Port)
		closers = append(closers, func() { shutdown(context.Background()) })
	}
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, ranking without result cache", "error", err)
		} else {
			closers = append(closers, func() { client.Close() })
			opts.Cache = cache.New(client, cfg.Redis.CacheTTL, appMetrics)
		}
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		collector := evaluation.NewCollector(producer, 10000)
		collector.Start(ctx)
		closers = append(closers, func() {
			collector.Close()
			producer.Close()
		})
		opts.Collector = collector
	}
	return func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

func readTopics(path string) ([]corpus.Topic, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	topics, err := corpus.ParseTopics(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return topics, nil
}

// openRunStore connects to postgres and migrates the run tables.
func openRunStore(ctx context.Context) (*runstore.Store, func(), error) {
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	rs := runstore.New(db)
	if err := rs.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return rs, func() { db.Close() }, nil
}

func archiveRun(ctx context.Context, rs *runstore.Store, run *evaluation.Run, lines []runfile.Line) error {
	return rs.SaveRun(ctx, runstore.Meta{
		ID:         run.ID,
		Model:      run.Model,
		Tag:        run.Tag,
		Topics:     len(run.Results) + len(run.Failures),
		Failures:   len(run.Failures),
		StartedAt:  run.Started,
		FinishedAt: run.Finished,
	}, lines)
}
