package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"finscope/internal/core"
	"finscope/internal/log"
	"finscope/internal/metrics"
	"finscope/internal/services"
	"finscope/internal/storage"
)

func newMigrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the catalog schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := storage.Migrate(cmd.Context(), e.cfg.Storage())
			if err != nil {
				e.logger.ErrorContext(cmd.Context(), "Migration failed",
					log.NewFields().WithOperation(log.OpMigrate).WithError(err, log.ErrorTypeStorage).ToSlice()...)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog %s at schema version %d (applied: %t)\n",
				e.cfg.Storage().Path(), status.Version, status.Applied)
			return nil
		},
	}
}

func newIngestCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file.json|->",
		Short: "Append timeseries points from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			points, err := core.DecodeBatch[core.PointPayload](data, "points")
			if err != nil {
				return err
			}

			store, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := services.NewTimeseriesService(store, metrics.New(nil), e.logger).Ingest(cmd.Context(), points)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func newUpsertCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "upsert <file.json|->",
		Short: "Insert or replace transactions from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			payloads, err := core.DecodeBatch[map[string]any](data, "transactions")
			if err != nil {
				return err
			}

			store, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := e.transactionService(store).StoreBatch(cmd.Context(), payloads)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func newQueryCommand(e *env) *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "query <metric>",
		Short: "Print the series of a metric",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			series, err := services.NewTimeseriesService(store, metrics.New(nil), e.logger).Query(cmd.Context(), args[0], start, end)
			if err != nil {
				return err
			}
			return printJSON(cmd, series)
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "inclusive lower timestamp bound")
	cmd.Flags().StringVar(&end, "end", "", "inclusive upper timestamp bound")
	return cmd
}

func newSummaryCommand(e *env) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the spend summary of a trailing window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("days") {
				days = e.cfg.DefaultSummaryDays
			}

			store, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			summary, err := e.transactionService(store).Summarize(cmd.Context(), days)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().IntVar(&days, "days", core.DefaultWindowDays, "window length in calendar days")
	return cmd
}
