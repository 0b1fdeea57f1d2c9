package cmd

import (
	"fmt"

	"github.com/jamo/immich-gps/internal/models"
	"github.com/jamo/immich-gps/internal/period"
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load <year> [month]",
	Short: "Load the photos of a year or month",
	Long: `Finds every photo taken in the given year, or month of that year, and
stores the list locally. Month buckets are read first; when they are not
available the whole library is scanned page by page and filtered by date.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
	addResolverFlags(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	month := ""
	if len(args) == 2 {
		month = args[1]
	}
	p, err := models.ParsePeriod(args[0], month)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Loading photos for %s...\n", p)
	res, err := a.manager.Load(cmd.Context(), p, func(pr period.Progress) {
		fmt.Printf("  %s %d: %d/%d matching (total found: %d, tested: %d)\n",
			progressUnit(pr.Source), pr.Page, pr.PhotosThisPage, pr.AllPhotosThisPage, pr.TotalFound, pr.TotalTested)
	})
	if err != nil {
		return fmt.Errorf("failed to load photos: %w", err)
	}

	fmt.Printf("\n✓ %d photos loaded for %s (via %s", len(res.Photos), p, res.Source)
	if res.Expected > 0 {
		fmt.Printf(", %d expected", res.Expected)
	}
	fmt.Println(")")
	if res.Undated > 0 {
		fmt.Printf("⚠️  Skipped %d photos without a usable date\n", res.Undated)
	}
	fmt.Println("\nRun 'immich-gps analyze' to check which photos carry GPS coordinates")
	return nil
}

func progressUnit(source string) string {
	if source == period.SourceBuckets {
		return "Bucket"
	}
	return "Page"
}
