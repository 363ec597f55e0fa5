package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/marginalia/internal/connectors/filesystem"
)

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Answer the questions in one note",
	Long: `Answers every unanswered annotation in a single note and exits.
Embeddings needed by @ask# questions are computed before the second pass,
so one run is enough.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	path, err := filesystem.ResolvePath(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	if p.answerer.Process(ctx, path) {
		cmd.Printf("Processed %s\n", path)
		return nil
	}

	// Similarity questions fail until the cache has the document's vectors.
	if err := p.cache.Flush(ctx); err != nil {
		return fmt.Errorf("failed to compute embeddings: %w", err)
	}
	if !p.answerer.Process(ctx, path) {
		return errors.New("some annotations could not be answered, run with --verbose for details")
	}

	cmd.Printf("Processed %s\n", path)
	return nil
}
