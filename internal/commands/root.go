// Package commands implements the finscopectl command tree.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"finscope/internal/cli"
	"finscope/internal/config"
	"finscope/internal/log"
	"finscope/internal/metrics"
	"finscope/internal/services"
	"finscope/internal/storage"
)

// env carries what every subcommand needs, resolved once before RunE.
type env struct {
	cfg    *config.Config
	logger *log.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:   "finscopectl",
		Short: "Manage the finscope timeseries and transaction catalog",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cli.LoadEnvFile()
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
			e.cfg = cfg
			// Logs go to stderr so command output stays machine readable.
			e.logger = log.New(log.Config{
				Level:     cfg.SlogLevel(),
				Component: log.ComponentCLI,
				Output:    cmd.ErrOrStderr(),
			})
			log.SetDefault(e.logger)
			return nil
		},
	}

	rootCmd.AddCommand(
		newMigrateCommand(e),
		newIngestCommand(e),
		newUpsertCommand(e),
		newQueryCommand(e),
		newSummaryCommand(e),
		newEnqueueCommand(e),
	)

	return rootCmd
}

func (e *env) openStore(ctx context.Context) (*storage.Store, error) {
	return storage.Open(ctx, e.cfg.Storage())
}

func (e *env) transactionService(store *storage.Store) *services.TransactionService {
	return services.NewTransactionService(store, metrics.New(nil), e.logger, services.DefaultTransactionServiceConfig())
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
