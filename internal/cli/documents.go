package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List the files the corpus scan would pick up",
	RunE:  runDocuments,
}

func init() {
	rootCmd.AddCommand(documentsCmd)
}

func runDocuments(cmd *cobra.Command, args []string) error {
	docs, err := newLoader()
	if err != nil {
		return err
	}

	files, err := docs.List()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Printf("No matching documents under %s\n", cfg.Documents.Path)
		return nil
	}

	for _, f := range files {
		fmt.Printf("%10d  %s  %s\n", f.SizeBytes, f.Modified.Format(time.DateTime), f.Name)
	}
	fmt.Printf("%d documents\n", len(files))
	return nil
}
