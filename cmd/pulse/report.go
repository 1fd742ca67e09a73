package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulselab/pulse/recording"
)

var reportSQLiteFile string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize a recorded trace database.",
	Long: `Report reads a trace database produced by the agent and prints ` +
		`one line per recorded transaction, with its events indented below.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runReport()
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportSQLiteFile, "sqlite", "",
		"The SQLite file to read from.")
	_ = reportCmd.MarkFlagRequired("sqlite")

	rootCmd.AddCommand(reportCmd)
}

func runReport() error {
	reader := recording.NewReader(reportSQLiteFile)
	defer reader.Close()

	reader.MapTable("transactions", recording.TransactionRow{})
	reader.MapTable("events", recording.EventRow{})

	ctx := context.Background()

	rows, total, err := reader.Query(ctx, "transactions",
		recording.QueryParams{OrderBy: "Start"})
	if err != nil {
		return err
	}

	fmt.Printf("%d transactions\n\n", total)

	for _, row := range rows {
		tx := row.(recording.TransactionRow)

		printTransaction(tx)

		if err := printEvents(ctx, reader, tx.ID); err != nil {
			return err
		}

		fmt.Println()
	}

	return nil
}

func printTransaction(tx recording.TransactionRow) {
	start := time.Unix(0, int64(tx.Start*1e9)).UTC()

	fmt.Printf("%s  %-14s %-30s %8.3fms  %s\n",
		start.Format(time.RFC3339),
		tx.Namespace,
		tx.Action,
		tx.Duration*1000,
		tx.ID)

	if tx.ErrorName != "" {
		fmt.Printf("    error: %s: %s\n", tx.ErrorName, tx.ErrorMessage)
	}
}

func printEvents(
	ctx context.Context,
	reader recording.DataReader,
	transactionID string,
) error {
	events, _, err := reader.Query(ctx, "events", recording.QueryParams{
		Where:   "TransactionID = ?",
		Args:    []any{transactionID},
		OrderBy: "Start",
	})
	if err != nil {
		return err
	}

	for _, row := range events {
		ev := row.(recording.EventRow)

		fmt.Printf("    %-30s %8.3fms (self %.3fms)\n",
			ev.Name,
			ev.Duration*1000,
			(ev.Duration-ev.ChildDuration)*1000)
	}

	return nil
}
