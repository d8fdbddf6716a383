package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/runstore"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/postgres"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs archived in PostgreSQL",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if !cfg.Postgres.Enabled {
				return fmt.Errorf("postgres is disabled; set postgres.enabled or TR_POSTGRES_ENABLED")
			}
			return nil
		},
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent archived runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()
			runs, err := runstore.New(db).ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMODEL\tTAG\tTOPICS\tFAILURES\tFINISHED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					r.ID, r.Model, r.Tag, r.Topics, r.Failures, r.FinishedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of runs listed")

	var out string
	export := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Write an archived run back out as a run file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()
			_, lines, err := runstore.New(db).LoadRun(ctx, args[0])
			if err != nil {
				return err
			}
			return writeRunFile(out, lines)
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "output run file (default stdout)")

	cmd.AddCommand(list, export)
	return cmd
}
