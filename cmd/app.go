package cmd

import (
	"fmt"
	"time"

	"github.com/jamo/immich-gps/internal/database"
	"github.com/jamo/immich-gps/internal/gps"
	"github.com/jamo/immich-gps/internal/immich"
	"github.com/jamo/immich-gps/internal/metrics"
	"github.com/jamo/immich-gps/internal/period"
	"github.com/jamo/immich-gps/internal/photos"
	"github.com/spf13/cobra"
)

var (
	pageSize         int
	maxPages         int
	failureThreshold int
	pageDelay        time.Duration
	fastPath         bool
	timezone         string

	batchSize  int
	batchPause time.Duration
)

func addResolverFlags(cmd *cobra.Command) {
	d := period.DefaultConfig()
	cmd.Flags().IntVar(&pageSize, "page-size", d.PageSize, "Photos per search page")
	cmd.Flags().IntVar(&maxPages, "max-pages", d.MaxPages, "Maximum number of search pages to scan")
	cmd.Flags().IntVar(&failureThreshold, "failure-threshold", d.FailureThreshold, "Consecutive empty or failed pages before the scan stops")
	cmd.Flags().DurationVar(&pageDelay, "page-delay", d.PageDelay, "Delay between search pages")
	cmd.Flags().BoolVar(&fastPath, "fast-path", d.FastPath, "Read month buckets before scanning every photo")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "Time zone used to derive a photo's year and month")
}

func addEngineFlags(cmd *cobra.Command) {
	d := gps.DefaultConfig()
	cmd.Flags().IntVar(&batchSize, "batch-size", d.BatchSize, "Detail fetches between pauses")
	cmd.Flags().DurationVar(&batchPause, "batch-pause", d.BatchPause, "Pause after each batch of detail fetches")
}

func resolverConfig() (period.Config, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return period.Config{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	cfg := period.DefaultConfig()
	cfg.PageSize = pageSize
	cfg.MaxPages = maxPages
	cfg.FailureThreshold = failureThreshold
	cfg.PageDelay = pageDelay
	cfg.FastPath = fastPath
	cfg.Location = loc
	return cfg, nil
}

func engineConfig() gps.Config {
	return gps.Config{BatchSize: batchSize, BatchPause: batchPause}
}

// app wires the components one command needs
type app struct {
	db      *database.DB
	client  *immich.Client
	engine  *gps.Engine
	manager *photos.Manager
	metrics *metrics.Metrics
	console *console
}

func newApp(cmd *cobra.Command) (*app, error) {
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	rcfg := period.DefaultConfig()
	if cmd.Flags().Lookup("page-size") != nil {
		if rcfg, err = resolverConfig(); err != nil {
			db.Close()
			return nil, err
		}
	}
	ecfg := gps.DefaultConfig()
	if cmd.Flags().Lookup("batch-size") != nil {
		ecfg = engineConfig()
	}

	con := newConsole(cmd.InOrStdin(), cmd.OutOrStdout())
	m := metrics.New()
	client := immich.NewClient(immichURL, immichAPIKey,
		immich.WithCredentialStore(db),
		immich.WithPrompter(con),
		immich.WithLogger(logger),
		immich.WithMetrics(m),
	)
	resolver := period.NewResolver(client, rcfg, logger, m)
	engine := gps.NewEngine(client, ecfg, logger, m)
	manager := photos.NewManager(resolver, engine, db, logger)

	return &app{
		db:      db,
		client:  client,
		engine:  engine,
		manager: manager,
		metrics: m,
		console: con,
	}, nil
}

// restore loads the photos of the last loaded period
func (a *app) restore() error {
	if err := a.manager.Restore(); err != nil {
		return err
	}
	if a.manager.Period() == nil {
		return fmt.Errorf("no period loaded yet, run 'immich-gps load <year> [month]' first")
	}
	return nil
}

func (a *app) Close() error {
	return a.db.Close()
}
