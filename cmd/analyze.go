package cmd

import (
	"errors"
	"fmt"

	"github.com/jamo/immich-gps/internal/gps"
	"github.com/jamo/immich-gps/internal/immich"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Check which loaded photos carry GPS coordinates",
	Long: `Fetches the detail record of every loaded photo not analyzed yet, one at
a time, and records its GPS position when it has one.`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	addEngineFlags(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.restore(); err != nil {
		return err
	}

	before := a.manager.Stats()
	if before.Pending == 0 {
		fmt.Println("All photos are already analyzed.")
		return nil
	}

	fmt.Printf("Analyzing %d photos...\n", before.Pending)
	summary, err := a.manager.AnalyzeAll(cmd.Context(), func(p gps.Progress) {
		fmt.Printf("  Progress: %d/%d (%d with GPS)\r", p.Analyzed, p.Total, p.FoundGPS)
	})
	fmt.Println()
	if err != nil {
		if errors.Is(err, immich.ErrAuthRequired) {
			return fmt.Errorf("analysis stopped, the API key was rejected (run 'immich-gps login'): %w", err)
		}
		return fmt.Errorf("analysis stopped after %d photos: %w", summary.Analyzed, err)
	}

	stats := a.manager.Stats()
	fmt.Printf("✓ Analysis complete: %d photos analyzed, %d with GPS", summary.Analyzed, summary.FoundGPS)
	if summary.Failed > 0 {
		fmt.Printf(", %d failed", summary.Failed)
	}
	fmt.Println()
	fmt.Printf("  %d of %d photos have GPS (%.1f%%)\n", stats.WithGPS, stats.Total, stats.GPSPercentage)
	return nil
}
