package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/marginalia/internal/adapters/driven/storage/vectorfile"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the embedding cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached documents",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheList(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	store, err := vectorfile.NewStore(cacheDir(settings))
	if err != nil {
		return err
	}
	entries, skipped, err := store.LoadAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	if len(entries) == 0 {
		cmd.Println("No cached documents.")
	} else {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tPAGES\tDIMS\tMODEL")
		for i := range entries {
			e := &entries[i]
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", e.Path, len(e.Vectors), e.Dimensions(), e.Model)
		}
		w.Flush()
	}

	if skipped > 0 {
		cmd.Printf("%d unreadable records skipped in %s\n", skipped, store.Dir())
	}
	return nil
}
