package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loreleaf/loreleaf/internal/search"
	"github.com/loreleaf/loreleaf/internal/ui"
)

func newSearchCmd() *cobra.Command {
	var (
		topK     int
		scope    []string
		noVector bool
		noRerank bool
		format   string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed passages",
		Long: `Search indexed passages with hybrid lexical and vector retrieval.

Scores from both paths are fused; an optional reranker reorders the
top results when configured. Use --scope to restrict results to a
taxonomy subtree, e.g. --scope science.biology.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := strings.Join(args, " ")

			if format != "text" && format != "json" {
				return fmt.Errorf("unknown format %q (want text or json)", format)
			}

			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			req := &search.Request{
				Query:         query,
				TopK:          topK,
				TaxonomyScope: scope,
			}
			if noVector {
				f := false
				req.UseVector = &f
			}
			if noRerank {
				f := false
				req.UseReranker = &f
			}

			resp, err := a.engine.Search(ctx, req)
			if err != nil {
				return err
			}

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			noColor := ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout())
			ui.RenderResults(cmd.OutOrStdout(), resp, noColor)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (default from config)")
	cmd.Flags().StringSliceVar(&scope, "scope", nil, "taxonomy scope filter, e.g. science.biology")
	cmd.Flags().BoolVar(&noVector, "no-vector", false, "skip the vector scorer")
	cmd.Flags().BoolVar(&noRerank, "no-rerank", false, "skip the rerank stage")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	return cmd
}
