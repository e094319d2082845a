package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"cardlink/backend/internal/repair"

	"github.com/spf13/cobra"
)

var errDrift = errors.New("graph cache differs from ledger")

type opener func(ctx context.Context) (*stores, error)

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "cachectl",
		Short:         "Maintain the connection graph cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRebuildCmd(open, out), newVerifyCmd(open, out))
	return root
}

func newRebuildCmd(open opener, out io.Writer) *cobra.Command {
	var opts repair.RebuildOptions
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Clear the cache and replay every accepted connection from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close(context.WithoutCancel(cmd.Context()))

			report, err := repair.Rebuild(cmd.Context(), s.ledger, s.cache, s.log, opts)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, report)
			}
			fmt.Fprintf(out, "Rebuilt %d connections in %s\n", report.Pairs, report.Duration)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 500, "ledger rows read per batch")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 8, "parallel cache writes (ignored for the sql backend)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func newVerifyCmd(open opener, out io.Writer) *cobra.Command {
	var batchSize int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare the cache with the ledger and report missing or stale entries",
		Long:  "Compare the cache with the ledger. Exits 1 when the cache has drifted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close(context.WithoutCancel(cmd.Context()))

			report, err := repair.Verify(cmd.Context(), s.ledger, s.cache, batchSize)
			if err != nil {
				return err
			}

			if asJSON {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "Accepted connections: %d\n", report.Accepted)
				fmt.Fprintf(out, "Missing cache entries: %d\n", len(report.Missing))
				for _, e := range report.Missing {
					fmt.Fprintf(out, "  missing %s -> %s\n", e.UserID, e.PeerID)
				}
				fmt.Fprintf(out, "Stale cache entries: %d\n", len(report.Stale))
				for _, e := range report.Stale {
					fmt.Fprintf(out, "  stale   %s -> %s\n", e.UserID, e.PeerID)
				}
			}

			if !report.Clean() {
				return errDrift
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "ledger rows read per batch")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
