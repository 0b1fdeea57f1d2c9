package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jamo/immich-gps/internal/database"
	"github.com/jamo/immich-gps/internal/export"
	"github.com/spf13/cobra"
)

var (
	actionsCSV   string
	actionsClear bool
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Show the log of pasted GPS coordinates",
	Long: `Lists the most recent GPS pastes (up to 100), optionally exporting them
as CSV with --csv.`,
	Annotations: offline,
	RunE:        runActions,
}

func init() {
	rootCmd.AddCommand(actionsCmd)
	actionsCmd.Flags().StringVar(&actionsCSV, "csv", "", "Write the log as CSV to this file (use 'auto' for gps_actions_<date>.csv)")
	actionsCmd.Flags().BoolVar(&actionsClear, "clear", false, "Empty the log")
}

func runActions(cmd *cobra.Command, args []string) error {
	db, err := database.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if actionsClear {
		if err := db.ClearAuditEntries(); err != nil {
			return fmt.Errorf("failed to clear the action log: %w", err)
		}
		fmt.Println("✓ Action log cleared")
		return nil
	}

	entries, err := db.GetAuditEntries()
	if err != nil {
		return fmt.Errorf("failed to read the action log: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No GPS action recorded yet.")
		return nil
	}

	if actionsCSV != "" {
		path := actionsCSV
		if path == "auto" {
			path = fmt.Sprintf("gps_actions_%s.csv", time.Now().Format("2006-01-02"))
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		n, err := export.WriteAuditCSV(f, entries)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("failed to export the action log: %w", err)
		}
		fmt.Printf("✓ %d actions exported to %s\n", n, path)
		return nil
	}

	for _, e := range entries {
		fmt.Printf("  %s  %s  %s <- %s  (%.6f, %.6f) %s - %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action,
			e.TargetFilename, e.SourceFilename,
			e.Coordinate.Latitude, e.Coordinate.Longitude,
			e.Coordinate.Country, e.Coordinate.City)
	}
	fmt.Printf("\n%d actions\n", len(entries))
	return nil
}
