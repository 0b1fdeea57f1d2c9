package cmd

import (
	"fmt"

	"github.com/jamo/immich-gps/internal/period"
	"github.com/spf13/cobra"
)

var periodsRefresh bool

var periodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "List years and months that contain photos",
	Long: `Reads the time buckets of the Immich timeline and prints the number of
photos per year and per month, newest first.`,
	RunE: runPeriods,
}

func init() {
	rootCmd.AddCommand(periodsCmd)
	periodsCmd.Flags().BoolVar(&periodsRefresh, "refresh", false, "Ignore the cached bucket listing")
}

func runPeriods(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	fetch := a.client.TimeBuckets
	if periodsRefresh {
		fetch = a.client.RefreshTimeBuckets
	}
	buckets, err := fetch(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list time buckets: %w", err)
	}

	years := period.GroupBuckets(buckets)
	if len(years) == 0 {
		fmt.Println("No photos found.")
		return nil
	}

	for _, y := range years {
		fmt.Printf("%s  %6d photos\n", y.Year, y.Count)
		for _, m := range y.Months {
			fmt.Printf("  %s-%s  %6d\n", y.Year, m.Month, m.Count)
		}
	}
	return nil
}
