// Package cli implements the marginalia command line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/marginalia/internal/adapters/driven/ai"
	"github.com/custodia-labs/marginalia/internal/adapters/driven/config/file"
	"github.com/custodia-labs/marginalia/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/core/ports/driving"
	"github.com/custodia-labs/marginalia/internal/core/services"
	"github.com/custodia-labs/marginalia/internal/logger"
)

// version is set at build time with -ldflags.
var version = "dev"

var (
	verbose   bool
	configDir string
	dataDir   string

	// settingsService is created from --config-dir unless a test sets it.
	settingsService driving.SettingsService
)

var rootCmd = &cobra.Command{
	Use:   "marginalia",
	Short: "Answer questions written into your notes",
	Long: `marginalia watches a directory of text and markdown notes. A question
written inline as [[@ask why is the sky blue?]] is sent to an LLM and the
reply is written back into the note, inside the same brackets.

Prefixes choose the context sent with the question:
  @ask   the question only
  @ask+  the whole document
  @ask*  the line the question sits on
  @ask#  the pages most similar to the question`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.marginalia)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.marginalia/data)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version printed by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

func setup(_ *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		configDir = filepath.Join(home, ".marginalia")
	}
	if dataDir == "" {
		dataDir = filepath.Join(configDir, "data")
	}

	if settingsService != nil {
		return nil
	}
	var store driven.ConfigStore
	fileStore, err := file.NewConfigStore(configDir)
	if err != nil {
		logger.Warn("config: %v; settings will not be saved", err)
		store = memory.NewConfigStore()
	} else {
		store = fileStore
	}
	settingsService = services.NewSettingsService(store, ai.NewConfigValidator())
	return nil
}
