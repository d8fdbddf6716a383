package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/index/store"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/tokenizer"
)

func newVerifyCmd() *cobra.Command {
	var terms []string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Load the index and check its structural invariants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := loadIndex()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			st := idx.Stats()
			fmt.Fprintf(out, "ok: %d documents, %d terms, %d tokens, avg length %.3f\n",
				st.DocCount, idx.NumTerms(), st.TotalTokens, st.AvgDocLength)
			if len(terms) == 0 {
				return nil
			}

			// Per-key lookups read straight from the file, independent of the
			// loaded copy.
			s, err := store.Open(cfg.Index.StorePath, cfg.Index.OpenTimeout)
			if err != nil {
				return err
			}
			defer s.Close()
			meta, err := s.Meta()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "format v%d, built %s\n", meta.Version, meta.CreatedAt.Format("2006-01-02 15:04:05"))

			norm := tokenizer.New(cfg.Index.Stopwords)
			for _, raw := range terms {
				for _, term := range norm.Normalize(raw) {
					list, err := s.Postings(term)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s: df=%d", term, len(list))
					if len(list) > 0 {
						first := list[0]
						length, _, err := s.DocLength(first.DocID)
						if err != nil {
							return err
						}
						fmt.Fprintf(out, " first=%s tf=%d len=%d", first.DocID, first.Frequency, length)
					}
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&terms, "term", nil, "also print stored postings for these terms")
	return cmd
}
