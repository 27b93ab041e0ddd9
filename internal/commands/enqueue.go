package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"finscope/internal/amqp"
	"finscope/internal/core"
)

func newEnqueueCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:       "enqueue <timeseries|transactions> <file.json|->",
		Short:     "Publish a batch to the ingestion queue for the worker",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{amqp.KindTimeseries, amqp.KindTransactions},
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.AMQPURL == "" {
				return fmt.Errorf("AMQP_URL is not set")
			}

			msg, err := buildMessage(cmd, args[0], args[1])
			if err != nil {
				return err
			}

			client, err := amqp.NewClient(amqp.Config{
				URL:      e.cfg.AMQPURL,
				Exchange: e.cfg.AMQPExchange,
				Queue:    e.cfg.AMQPQueue,
			}, e.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Publish(cmd.Context(), msg); err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"message_id": msg.ID, "kind": msg.Kind, "records": msg.Size()})
		},
	}
}

func buildMessage(cmd *cobra.Command, kind, path string) (*amqp.IngestMessage, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}

	switch kind {
	case amqp.KindTimeseries:
		points, err := core.DecodeBatch[core.PointPayload](data, "points")
		if err != nil {
			return nil, err
		}
		return amqp.NewTimeseriesMessage(points), nil
	case amqp.KindTransactions:
		payloads, err := core.DecodeBatch[map[string]any](data, "transactions")
		if err != nil {
			return nil, err
		}
		return amqp.NewTransactionsMessage(payloads), nil
	default:
		return nil, fmt.Errorf("unknown kind %q: want %s or %s", kind, amqp.KindTimeseries, amqp.KindTransactions)
	}
}
