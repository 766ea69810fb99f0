package cli

import (
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/skryne/ragd/internal/usecase/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Rebuild the vector index from the document corpus",
	Long: `Ingest scans the configured documents directory, splits every file into
overlapping chunks, embeds them, and rebuilds the vector index from scratch.
Previously indexed chunks are dropped first.

Examples:
  ragctl ingest
  ragctl ingest --env prod`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	docEmbedder, _ := newEmbedders()

	idx, err := openIndex(docEmbedder.Identifier())
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()

	splitter, err := newSplitter()
	if err != nil {
		return err
	}
	docs, err := newLoader()
	if err != nil {
		return err
	}

	fmt.Printf("Scanning %s...\n", cfg.Documents.Path)

	var bar *progressbar.ProgressBar
	var barMu sync.Mutex

	svc := ingest.New(docs, splitter, docEmbedder, idx, logger,
		ingest.WithProgress(func(done, total int) {
			barMu.Lock()
			defer barMu.Unlock()
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionSetDescription("Embedding"),
				)
			}
			_ = bar.Set(done)
		}),
	)

	summary, err := svc.Reindex(cmd.Context())
	if err != nil {
		return err
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	fmt.Printf("Indexed %d chunks from %d documents (%d skipped)\n",
		summary.Chunks, summary.Documents, summary.Skipped)
	return nil
}
