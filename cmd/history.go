package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-scan/internal/config"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored scan results",
	Long:  `Lists stored scan results newest first. Without --user the results of every user are listed.`,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().String("user", "", "Only list results of this user")
	historyCmd.Flags().Int("limit", 20, "Maximum number of results to show (0 = all)")
	historyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	limit := mustGetInt(cmd, "limit")

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	results, err := openResultBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer results.Close()

	history, err := results.Results.ListRecent(ctx, mustGetString(cmd, "user"))
	if err != nil {
		return fmt.Errorf("failed to list scan results: %w", err)
	}
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}

	if len(history) == 0 {
		fmt.Println("No scan results found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tCAPTURED\tMEASUREMENTS")
	fmt.Fprintln(w, "--\t----\t--------\t------------")
	for _, r := range history {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", r.ID, r.UserID, r.CapturedAt().Format("2006-01-02 15:04"), len(r.Landmarks))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nTotal: %d results\n", len(history))
	return nil
}
