package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jamo/immich-gps/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	immichURL    string
	immichAPIKey string
	dbPath       string
	logLevel     string
	logFormat    string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "immich-gps",
	Short: "Find, copy and export GPS coordinates of Immich photos",
	Long: `Immich GPS loads the photos of a year or month from an Immich instance,
checks which ones carry GPS coordinates, and lets you copy the position of one
photo onto photos that lack it. Results can be exported as CSV, JSON or KML.`,
	SilenceUsage: true,
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	defer func() { logger.Sync() }()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Load .env file if it exists
	godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&immichURL, "immich-url", os.Getenv("IMMICH_URL"), "Immich instance URL (can be set via IMMICH_URL env var)")
	rootCmd.PersistentFlags().StringVar(&immichAPIKey, "api-key", os.Getenv("IMMICH_API_KEY"), "Immich API key (can be set via IMMICH_API_KEY env var, otherwise the stored key is used or you are asked for one)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./immich-gps.db", "Path to local SQLite database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console, json)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(logLevel, logFormat)
		if err != nil {
			return err
		}
		logger = l

		if immichURL == "" && cmd.Annotations[annotationOffline] == "" {
			return fmt.Errorf("immich-url is required (use --immich-url flag or IMMICH_URL env var)")
		}
		return nil
	}
}

// annotationOffline marks commands that never talk to Immich
const annotationOffline = "offline"

var offline = map[string]string{annotationOffline: "true"}
