package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamo/immich-gps/internal/export"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the photos with GPS as CSV, JSON or KML",
	Long: `Writes the GPS-bearing photos of the loaded period to a file named
photos_gps_<period>_<date>.<format> in the output directory, or to stdout
with --output -.`,
	Annotations: offline,
	RunE:        runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", export.FormatCSV, "Export format: csv, json or kml")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", ".", "Output directory, or - for stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	switch exportFormat {
	case export.FormatCSV, export.FormatJSON, export.FormatKML:
	default:
		return fmt.Errorf("unknown format %q (want csv, json or kml)", exportFormat)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.restore(); err != nil {
		return err
	}

	now := time.Now()
	p := a.manager.Period()
	list := a.manager.Photos()

	if exportOutput == "-" {
		_, err := export.Write(cmd.OutOrStdout(), exportFormat, p, list, now)
		return err
	}

	path := filepath.Join(exportOutput, export.Filename(p, exportFormat, now))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	n, err := export.Write(f, exportFormat, p, list, now)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, export.ErrNoGPSPhotos) {
			fmt.Println("⚠️  No photo with GPS to export")
			return nil
		}
		return fmt.Errorf("failed to export: %w", err)
	}

	fmt.Printf("✓ %d photos exported to %s\n", n, path)
	return nil
}
