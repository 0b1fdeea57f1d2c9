package cmd

import (
	"fmt"

	"github.com/jamo/immich-gps/internal/models"
	"github.com/jamo/immich-gps/internal/photos"
	"github.com/spf13/cobra"
)

var (
	photosFilter string
	photosPage   int
	photosSearch string
)

var photosCmd = &cobra.Command{
	Use:   "photos",
	Short: "List the loaded photos",
	Long: `Lists the photos of the loaded period, 50 per page. Filter with
--filter gps (with coordinates) or --filter no-gps (analyzed, without
coordinates), or search filenames with --search.`,
	Annotations: offline,
	RunE:        runPhotos,
}

func init() {
	rootCmd.AddCommand(photosCmd)
	photosCmd.Flags().StringVar(&photosFilter, "filter", "all", "Filter: all, gps or no-gps")
	photosCmd.Flags().IntVar(&photosPage, "page", 1, "Page to show")
	photosCmd.Flags().StringVar(&photosSearch, "search", "", "Only show photos whose filename contains this text")
}

func runPhotos(cmd *cobra.Command, args []string) error {
	filter, err := photos.ParseFilter(photosFilter)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.restore(); err != nil {
		return err
	}

	stats := a.manager.Stats()
	fmt.Printf("Period %s: %d photos, %d analyzed, %d with GPS, %d without, %d pending\n\n",
		a.manager.Period(), stats.Total, stats.Analyzed, stats.WithGPS, stats.WithoutGPS, stats.Pending)

	if photosSearch != "" {
		found := a.manager.Search(photosSearch)
		for _, p := range found {
			printPhoto(p)
		}
		fmt.Printf("\n%d photos match %q\n", len(found), photosSearch)
		return nil
	}

	page := a.manager.Page(filter, photosPage)
	for _, p := range page.Photos {
		printPhoto(p)
	}
	if page.Total == 0 {
		fmt.Println("No photos.")
		return nil
	}
	fmt.Printf("\nPage %d/%d (%d photos)\n", page.Page, page.Pages, page.Total)
	return nil
}

func printPhoto(p models.Photo) {
	status := "pending"
	switch {
	case p.HasGPS && p.GPSData != nil:
		status = fmt.Sprintf("GPS %.6f, %.6f (%s - %s)", p.GPSData.Latitude, p.GPSData.Longitude, p.GPSData.Country, p.GPSData.City)
	case p.Analyzed:
		status = "no GPS"
	}
	fmt.Printf("  %s  %-36s  %-30s  %s\n", p.CreatedAt.Format("2006-01-02 15:04"), p.ID, p.Filename, status)
}
