package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/quicktab/quicktab/internal/store"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the activation history",
	Long: `Show the persisted window activation history, most recent first.
This is the recency order a switching session opens with.`,
	RunE: runHistory,
}

var (
	historyFormat string
	historyClear  bool
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "table", "output format (table or json)")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "clear the persisted history")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dbPath, err := store.DefaultPath()
	if err != nil {
		return err
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	if historyClear {
		if err := db.SaveHistory(nil); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Println("History cleared")
		return nil
	}

	ids, err := db.LoadHistory()
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if historyFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(ids)
	}

	if len(ids) == 0 {
		fmt.Println("No activation history recorded")
		return nil
	}
	for i, id := range ids {
		fmt.Printf("%3d  %d\n", i+1, id)
	}
	return nil
}
