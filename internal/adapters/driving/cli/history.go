package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/marginalia/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/marginalia/internal/connectors/filesystem"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "Show recent processing results",
	Long: `Lists the most recent processing results, newest first.
If a path is given, only results for that note are shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of records")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) > 0 {
		resolved, err := filesystem.ResolvePath(args[0])
		if err != nil {
			return err
		}
		path = resolved
	}

	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open data store: %w", err)
	}
	defer store.Close()

	records, err := store.ProcessedStore().History(cmd.Context(), path, historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		cmd.Println("No history.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENDED\tRESULT\tDURATION\tPATH")
	for i := range records {
		r := &records[i]
		result := "ok"
		if !r.Success {
			result = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.EndedAt.Local().Format(time.DateTime),
			result,
			r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.Path,
		)
	}
	return w.Flush()
}
