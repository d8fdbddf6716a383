package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/fusion"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/runfile"
)

func newFuseCmd() *cobra.Command {
	var (
		method string
		depth  int
		out    string
		tag    string
		pairs  string
	)
	cmd := &cobra.Command{
		Use:   "fuse <run1> <run2> | fuse --pairs <dir> --out <dir>",
		Short: "Fuse two run files, or every pair in a folder, with min-rank, Borda or score interpolation",
		Args: func(cmd *cobra.Command, args []string) error {
			if pairs != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if depth <= 0 {
				depth = cfg.Fusion.Depth
			}
			if pairs != "" {
				methods := fusion.Methods
				if method != "" {
					m, err := fusion.ParseMethod(method)
					if err != nil {
						return err
					}
					methods = []fusion.Method{m}
				}
				if out == "" || out == "-" {
					return fmt.Errorf("--pairs needs --out naming an output directory")
				}
				written, err := fuseFolder(pairs, out, methods, depth, tag)
				if err != nil {
					return err
				}
				slog.Info("folder fused", "dir", pairs, "out", out, "files", written)
				return nil
			}

			if method == "" {
				method = cfg.Fusion.Method
			}
			m, err := fusion.ParseMethod(method)
			if err != nil {
				return err
			}
			a, err := readRun(args[0])
			if err != nil {
				return err
			}
			b, err := readRun(args[1])
			if err != nil {
				return err
			}
			fused, err := fusion.FuseRuns(m, fusion.FromRun(a), fusion.FromRun(b), depth)
			if err != nil {
				return err
			}
			countFusions(m, len(fused))
			if err := writeRunFile(out, fusion.Lines(fused, tag)); err != nil {
				return err
			}
			slog.Info("runs fused", "method", m.String(), "topics", len(fused), "depth", depth)
			return nil
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", "", "fusion method: min, borda or interp (default fusion.method; all three with --pairs)")
	cmd.Flags().IntVar(&depth, "depth", 0, "documents kept per topic for borda and interp (default fusion.depth)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output run file (default stdout), or output directory with --pairs")
	cmd.Flags().StringVar(&tag, "tag", runfile.DefaultTag, "run tag written in the last column")
	cmd.Flags().StringVar(&pairs, "pairs", "", "fuse every pair of run files in this directory")
	return cmd
}

// fuseFolder fuses every pair of run files in dir with each method and
// writes one file per pair and method into outDir. It returns the number
// of files written.
func fuseFolder(dir, outDir string, methods []fusion.Method, depth int, tag string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	runs := make(map[string]map[string][]fusion.Ranked)
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		run, err := readRun(filepath.Join(dir, e.Name()))
		if err != nil {
			return 0, err
		}
		runs[e.Name()] = fusion.FromRun(run)
		names = append(names, e.Name())
	}
	if len(names) < 2 {
		return 0, fmt.Errorf("%s: need at least two run files, found %d", dir, len(names))
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, err
	}

	written := 0
	for _, p := range fusion.Pairs(names) {
		for _, m := range methods {
			fused, err := fusion.FuseRuns(m, runs[p.A], runs[p.B], depth)
			if err != nil {
				return written, err
			}
			countFusions(m, len(fused))
			if err := writeRunFile(filepath.Join(outDir, p.OutputName(m)), fusion.Lines(fused, tag)); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, nil
}

func countFusions(m fusion.Method, topics int) {
	if appMetrics != nil {
		appMetrics.FusionsTotal.WithLabelValues(m.String()).Add(float64(topics))
	}
}

func readRun(path string) (*runfile.Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	run, err := runfile.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return run, nil
}
