package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/loreleaf/loreleaf/pkg/version"
)

type statusReport struct {
	Version       string         `json:"version"`
	IndexDir      string         `json:"index_dir"`
	Passages      int            `json:"passages"`
	TotalTokens   int64          `json:"total_tokens"`
	LexicalDocs   int            `json:"lexical_docs"`
	VectorDocs    int            `json:"vector_docs"`
	VectorEnabled bool           `json:"vector_enabled"`
	RerankEnabled bool           `json:"rerank_enabled"`
	Taxonomy      map[string]int `json:"taxonomy"`
}

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.stores.Passages.Stats(ctx)
			if err != nil {
				return fmt.Errorf("passage stats: %w", err)
			}
			lexCount, err := a.stores.Lexical.Count(ctx)
			if err != nil {
				return fmt.Errorf("lexical count: %w", err)
			}
			vecCount := 0
			vectorEnabled := a.stores.Vector != nil
			if vectorEnabled {
				vecCount = a.stores.Vector.Count()
			}

			report := statusReport{
				Version:       version.Short(),
				IndexDir:      a.cfg.IndexDir(a.root),
				Passages:      stats.PassageCount,
				TotalTokens:   stats.TotalTokens,
				LexicalDocs:   lexCount,
				VectorDocs:    vecCount,
				VectorEnabled: vectorEnabled,
				RerankEnabled: a.cfg.Rerank.Enabled,
				Taxonomy:      stats.TaxonomyCounts,
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "loreleaf %s\n", report.Version)
			fmt.Fprintf(out, "Index:    %s\n", report.IndexDir)
			fmt.Fprintf(out, "Passages: %d (%d tokens)\n", report.Passages, report.TotalTokens)
			fmt.Fprintf(out, "Lexical:  %d docs\n", report.LexicalDocs)
			if report.VectorEnabled {
				fmt.Fprintf(out, "Vector:   %d docs\n", report.VectorDocs)
			} else {
				fmt.Fprintln(out, "Vector:   disabled")
			}
			if report.RerankEnabled {
				fmt.Fprintln(out, "Rerank:   enabled")
			} else {
				fmt.Fprintln(out, "Rerank:   disabled")
			}
			if len(report.Taxonomy) > 0 {
				fmt.Fprintln(out, "Taxonomy:")
				paths := make([]string, 0, len(report.Taxonomy))
				for p := range report.Taxonomy {
					paths = append(paths, p)
				}
				sort.Strings(paths)
				for _, p := range paths {
					label := p
					if label == "" {
						label = "(unclassified)"
					}
					fmt.Fprintf(out, "  %-30s %d\n", label, report.Taxonomy[p])
				}
			}
			if !stats.LastIndexedAt.IsZero() {
				fmt.Fprintf(out, "Indexed:  %s\n", stats.LastIndexedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
