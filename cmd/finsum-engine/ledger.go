// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/finsum-engine/internal/ledger"
	"github.com/pdiddy/finsum-engine/pkg/types"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger <run-id>",
	Short: "Inspect the attempt stream recorded for a run",
	Long: `Ledger prints every stage attempt journaled for a run in append
order: stage, attempt number, status, and the input and output hashes.
Use it to audit what a run actually did, or to see where an interrupted
run will resume.`,
	Args: cobra.ExactArgs(1),
	RunE: runLedger,
}

func runLedger(cmd *cobra.Command, args []string) error {
	runID := args[0]
	ledgerDir, _ := cmd.Flags().GetString("ledger-dir")

	store, err := ledger.Open(types.LedgerConfig{Dir: ledgerDir})
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Entries(context.Background(), runID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No ledger entries for run %s\n", runID)
		return nil
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	fmt.Fprintf(os.Stdout, "%-10s  %-7s  %-9s  %-16s  %-16s  %s\n",
		"Stage", "Attempt", "Status", "Input", "Output", "Timestamp")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
	for _, e := range entries {
		out := e.OutputHash
		if out == "" {
			out = "-"
		}
		fmt.Fprintf(os.Stdout, "%-10s  %-7d  %-9s  %-16s  %-16s  %s\n",
			e.Stage, e.Attempt, e.Status, e.InputHash, out,
			e.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func init() {
	ledgerCmd.Flags().String("ledger-dir", "ledger", "directory for the run ledger database")
	ledgerCmd.Flags().Bool("json", false, "output entries as JSON")

	rootCmd.AddCommand(ledgerCmd)
}
