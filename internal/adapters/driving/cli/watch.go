package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/marginalia/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/marginalia/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/marginalia/internal/connectors/filesystem"
	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/core/services"
	"github.com/custodia-labs/marginalia/internal/logger"
)

var watchEphemeral bool

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a directory and answer new questions",
	Long: `Watches a directory tree for text and markdown notes. A note is processed
once it has been quiet for watch.debounce_delay; unanswered annotations are
sent to the LLM and the replies written back into the note.

Processed versions are remembered in the data directory, so a restart does
not reprocess unchanged notes. Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchEphemeral, "ephemeral", false,
		"keep processed versions in memory only; every note is checked again on the next start")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := filesystem.ResolvePath(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watch(ctx, cmd, root)
}

// watch runs the cache and scheduler until ctx is cancelled.
func watch(ctx context.Context, cmd *cobra.Command, root string) error {
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, root)
	}

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()
	enumerator := filesystem.NewEnumerator(root, p.settings.Watch.Extensions)

	var processed driven.ProcessedStore
	if watchEphemeral {
		processed = memory.NewProcessedStore()
	} else {
		store, err := sqlite.NewStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to open data store: %w", err)
		}
		defer store.Close()
		processed = store.ProcessedStore()
	}

	opts := []services.SchedulerOption{services.WithProcessedStore(processed)}
	notifier, err := filesystem.NewNotifier(root)
	if err != nil {
		logger.Warn("watch: file notifications unavailable, polling only: %v", err)
	} else {
		defer notifier.Close()
		opts = append(opts, services.WithNotifier(notifier))
	}

	scheduler := services.NewChangeScheduler(p.settings.Watch, enumerator, p.answerer, opts...)

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", root)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.cache.Start(gctx)
	})
	g.Go(func() error {
		return scheduler.Start(gctx)
	})
	err = g.Wait()

	stats := scheduler.Stats()
	cmd.Printf("Stopped. %d processed, %d failed.\n", stats.Succeeded, stats.Failed)
	return err
}
