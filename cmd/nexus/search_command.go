package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nexus/internal/daemonrun"
	"nexus/internal/search"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var minSimilarity float64
	var tag string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Semantic search over completed media, or list by --tag",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if tag == "" && strings.TrimSpace(query) == "" {
				return fmt.Errorf("provide a query or --tag")
			}
			return ctx.withRuntime(cmd, func(c context.Context, rt *daemonrun.Runtime) error {
				out := cmd.OutOrStdout()
				if tag != "" {
					items, err := rt.Search.ByTag(c, tag, limit, 0)
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(cmd, items)
					}
					if len(items) == 0 {
						fmt.Fprintf(out, "No completed media tagged %q\n", tag)
						return nil
					}
					fmt.Fprint(out, renderMediaTable(items))
					return nil
				}

				results, err := rt.Search.Search(c, query, limit, minSimilarity)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, results)
				}
				if len(results) == 0 {
					fmt.Fprintln(out, "No matches")
					return nil
				}
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{fmt.Sprintf("%.3f", r.Similarity), r.ID, r.Title, strings.Join(r.Tags, ", ")})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Score", "ID", "Title", "Tags"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", search.DefaultLimit, "Maximum results")
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", search.DefaultMinSimilarity, "Minimum cosine similarity")
	cmd.Flags().StringVar(&tag, "tag", "", "List completed media with this tag instead of searching")
	outputFlags(cmd, &asJSON)
	return cmd
}
