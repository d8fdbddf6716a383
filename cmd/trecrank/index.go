package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/index"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/index/store"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/tokenizer"
)

func newIndexCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "index [corpus-dir...]",
		Short: "Build the inverted index from TREC SGML collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			dirs := args
			if len(dirs) == 0 {
				dirs = cfg.Index.CorpusDirs
			}
			if len(dirs) == 0 {
				return fmt.Errorf("no corpus directories given")
			}
			if out != "" {
				cfg.Index.StorePath = out
			}
			return buildIndex(dirs)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "index file (default index.storePath)")
	return cmd
}

func buildIndex(dirs []string) error {
	start := time.Now()
	b := index.NewBuilder(tokenizer.New(cfg.Index.Stopwords))
	for _, dir := range dirs {
		slog.Info("indexing collection", "dir", dir)
		err := corpus.ReadDir(dir, func(doc corpus.Document) error {
			skipped := len(b.Skipped())
			if err := b.Add(doc); err != nil {
				return err
			}
			if len(b.Skipped()) > skipped {
				appMetrics.DocsSkippedTotal.Inc()
			} else {
				appMetrics.DocsIndexedTotal.Inc()
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("indexing %s: %w", dir, err)
		}
	}
	idx, err := b.Finish()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Index.StorePath, cfg.Index.OpenTimeout)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Save(idx); err != nil {
		return err
	}
	appMetrics.IndexTerms.Set(float64(idx.NumTerms()))
	slog.Info("indexing complete",
		"documents", idx.Stats().DocCount,
		"skipped", len(b.Skipped()),
		"terms", idx.NumTerms(),
		"path", cfg.Index.StorePath,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}
