package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/quicktab/quicktab/internal/config"
	"github.com/quicktab/quicktab/internal/registry"
	"github.com/quicktab/quicktab/internal/winsys"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List switchable windows",
	Long: `List the windows quicktab would offer in a switching session, in
session order: most recently activated first, then titled windows, then by
application name.`,
	Example: `  # List windows in table format (default)
  quicktab list

  # List windows in JSON format
  quicktab list --format json`,
	RunE: runList,
}

var listFormat string

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
}

func runList(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()

	sys, err := winsys.NewX11()
	if err != nil {
		return fmt.Errorf("failed to connect to display server: %w", err)
	}
	defer sys.Close()

	history := registry.NewHistory(cfg.HistoryCap, nil)
	reg := registry.New(sys, history, registry.Options{
		MinWidth:       cfg.MinWindowWidth,
		MinHeight:      cfg.MinWindowHeight,
		MatchTolerance: cfg.MatchTolerance,
		MaxWindows:     cfg.MaxWindows,
	})

	windows, err := reg.Enumerate()
	if err != nil {
		return fmt.Errorf("failed to enumerate windows: %w", err)
	}

	switch listFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(windows)
	case "table":
		return printWindowsTable(windows)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}
}

func printWindowsTable(windows []registry.WindowRecord) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tAPP\tTITLE\tPID\tGEOMETRY")
	fmt.Fprintln(w, "--\t---\t-----\t---\t--------")
	for _, win := range windows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%dx%d+%d+%d\n",
			win.ID, win.App, win.Title, win.PID,
			win.Bounds.Width, win.Bounds.Height, win.Bounds.X, win.Bounds.Y)
	}
	return nil
}
