package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loreleaf/loreleaf/internal/ingest"
	"github.com/loreleaf/loreleaf/internal/ui"
)

func newLoadCmd() *cobra.Command {
	var (
		batchSize int
		workers   int
		plain     bool
		skipSave  bool
	)

	cmd := &cobra.Command{
		Use:   "load <passages.jsonl>",
		Short: "Ingest a JSONL passage file into the index",
		Long: `Ingest passages from a JSONL file, one passage object per line:

  {"id":"p1","title":"Tides","body":"...","taxonomy_path":"science.earth","url_or_ref":"https://..."}

Passages are upserted by id: reloading a file replaces matching
passages instead of duplicating them. Invalid lines are reported and
skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			lock, err := ingest.AcquireLock(a.cfg.IndexDir(a.root))
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open passage file: %w", err)
			}
			defer f.Close()

			renderer := ui.NewRenderer(ui.Config{
				Output:     cmd.OutOrStdout(),
				ForcePlain: plain,
				NoColor:    ui.DetectNoColor(),
			})
			if err := renderer.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = renderer.Stop() }()

			renderer.UpdateProgress(ui.ProgressEvent{
				Stage:   ui.StageLoading,
				Message: args[0],
			})

			result, err := ingest.LoadJSONL(f)
			if err != nil {
				return err
			}
			for _, rej := range result.Rejected {
				renderer.AddError(ui.ErrorEvent{
					Detail: fmt.Sprintf("line %d: %s", rej.Line, rej.Reason),
					IsWarn: true,
				})
			}
			if len(result.Passages) == 0 {
				return fmt.Errorf("no valid passages in %s (%d lines rejected)", args[0], len(result.Rejected))
			}

			ing, err := ingest.New(a.stores.Passages, a.stores.Lexical, a.stores.Vector, a.embedder, a.logger)
			if err != nil {
				return err
			}

			if batchSize == 0 {
				batchSize = a.cfg.Embedding.BatchSize
			}
			opts := ingest.Options{
				BatchSize: batchSize,
				Workers:   workers,
				OnProgress: func(done, total int) {
					renderer.UpdateProgress(ui.ProgressEvent{
						Stage:   ui.StageEmbedding,
						Current: done,
						Total:   total,
					})
				},
			}
			if !skipSave {
				opts.VectorSavePath = a.stores.VectorIndexPath()
			}

			stats, err := ing.Ingest(ctx, result.Passages, opts)
			if err != nil {
				return err
			}

			renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageIndexing, Current: stats.Ingested, Total: stats.Ingested})
			renderer.Complete(ui.CompletionStats{
				Passages: stats.Ingested,
				Embedded: stats.Embedded,
				Rejected: len(result.Rejected),
				Duration: stats.Duration,
			})
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "texts per embedding request (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent embedding batches")
	cmd.Flags().BoolVar(&plain, "plain", false, "plain line output instead of the interactive display")
	cmd.Flags().BoolVar(&skipSave, "no-save", false, "skip persisting the vector index after ingest")
	return cmd
}
