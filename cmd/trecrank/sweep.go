package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval/scorer"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/runstore"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/tokenizer"
)

func newSweepCmd() *cobra.Command {
	var (
		models []string
		outDir string
		runID  string
		grid   evaluation.Grid
	)
	cmd := &cobra.Command{
		Use:   "sweep <topics-file>",
		Short: "Rank the topics once per model parameter setting, one run file per setting",
		Long: `sweep loads the index once and ranks every topic for each point of a
parameter grid: 40 lambdas for ql-jm, 40 mus for ql-dir and 20 b by 16 k1
values for bm25 unless overridden. Each run is written to
<out-dir>/output_<model>_<param>_<value>....txt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]scorer.Model, 0, len(models))
			for _, name := range models {
				m, err := scorer.ParseModel(name)
				if err != nil {
					return err
				}
				parsed = append(parsed, m)
			}
			def := evaluation.DefaultGrid()
			flags := cmd.Flags()
			if !flags.Changed("lambdas") {
				grid.Lambdas = def.Lambdas
			}
			if !flags.Changed("mus") {
				grid.Mus = def.Mus
			}
			if !flags.Changed("bs") {
				grid.Bs = def.Bs
			}
			if !flags.Changed("k1s") {
				grid.K1s = def.K1s
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return sweep(ctx, args[0], outDir, runID, parsed, grid)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&models, "models", []string{"ql-jm", "ql-dir", "bm25"}, "models to sweep")
	f.StringVarP(&outDir, "out-dir", "o", "outputs", "directory receiving one run file per setting")
	f.StringVar(&runID, "run-id", "", "prefix for the archived run ids")
	f.Float64SliceVar(&grid.Lambdas, "lambdas", nil, "Jelinek-Mercer lambdas (default 0.025..1 in 40 steps)")
	f.Float64SliceVar(&grid.Mus, "mus", nil, "Dirichlet mus (default 100..4000 in 40 steps)")
	f.Float64SliceVar(&grid.Bs, "bs", nil, "BM25 b values (default 0.05..1 in 20 steps)")
	f.Float64SliceVar(&grid.K1s, "k1s", nil, "BM25 k1 values (default 0.125..2 in 16 steps)")
	return cmd
}

func sweep(ctx context.Context, topicsPath, outDir, runID string, models []scorer.Model, grid evaluation.Grid) error {
	start := time.Now()
	rc := cfg.Retrieval
	base := scorer.Params{K1: rc.K1, B: rc.B, Lambda: rc.Lambda, Mu: rc.Mu}
	var settings []evaluation.Setting
	for _, m := range models {
		settings = append(settings, grid.Settings(m, base)...)
	}

	topics, err := readTopics(topicsPath)
	if err != nil {
		return err
	}
	idx, err := loadIndex()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	opts := evaluation.Options{
		K:          rc.K,
		PoolSize:   rc.PoolSize,
		DedupTerms: rc.DedupTerms,
		Tag:        rc.RunTag,
		RunID:      runID,
		Metrics:    appMetrics,
	}
	cleanup := attachRunServices(ctx, &opts)
	defer cleanup()

	var rs *runstore.Store
	if cfg.Postgres.Enabled {
		store, closeStore, err := openRunStore(ctx)
		if err != nil {
			slog.Error("run store unavailable, runs not archived", "error", err)
		} else {
			defer closeStore()
			rs = store
		}
	}

	slog.Info("sweep started", "settings", len(settings), "topics", len(topics), "out_dir", outDir)
	failures := 0
	err = evaluation.Sweep(ctx, retrieval.NewEngine(idx), tokenizer.New(cfg.Index.Stopwords), topics, settings, opts,
		func(s evaluation.Setting, run *evaluation.Run) error {
			failures += len(run.Failures)
			lines := run.Lines()
			path := filepath.Join(outDir, s.FileName())
			if err := writeRunFile(path, lines); err != nil {
				return err
			}
			if rs != nil {
				if err := archiveRun(ctx, rs, run, lines); err != nil {
					slog.Error("failed to archive run", "run_id", run.ID, "error", err)
				}
			}
			return nil
		})
	if err != nil {
		return err
	}
	slog.Info("sweep complete",
		"settings", len(settings),
		"failures", failures,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	if failures > 0 {
		return fmt.Errorf("%d topic failures across %d settings", failures, len(settings))
	}
	return nil
}
