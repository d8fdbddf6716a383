// Command trecrank builds a TREC index, ranks topic batches against it and
// fuses run files.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/index"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/index/store"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/runfile"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/metrics"
)

var (
	configPath string
	cfg        *config.Config
	appMetrics *metrics.Metrics
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "trecrank",
		Short:         "Rank TREC topics with BM25 and query-likelihood models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
			appMetrics = metrics.New(nil)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	rootCmd.AddCommand(newIndexCmd(), newRankCmd(), newFuseCmd(), newVerifyCmd(), newSweepCmd(), newRunsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "trecrank: %v\n", err)
		os.Exit(1)
	}
}

// loadIndex opens the configured store and loads the whole index.
func loadIndex() (*index.Index, error) {
	st, err := store.Open(cfg.Index.StorePath, cfg.Index.OpenTimeout)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	idx, err := st.Load()
	if err != nil {
		return nil, err
	}
	appMetrics.IndexTerms.Set(float64(idx.NumTerms()))
	return idx, nil
}

// openOutput returns stdout for "" or "-", otherwise a created file.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, nil
}

// writeRunFile writes lines to path, or stdout for "" or "-". A failed
// close of the file is returned.
func writeRunFile(path string, lines []runfile.Line) error {
	w, err := openOutput(path)
	if err != nil {
		return err
	}
	if err := writeAndClose(w, lines); err != nil {
		return fmt.Errorf("writing %s: %w", displayPath(path), err)
	}
	return nil
}

func writeAndClose(w io.WriteCloser, lines []runfile.Line) error {
	if err := runfile.Write(w, lines); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func displayPath(path string) string {
	if path == "" || path == "-" {
		return "stdout"
	}
	return path
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
