// Package gps fetches per-photo detail records and records whether each
// photo carries a GPS position.
package gps

import (
	"context"
	"time"

	"github.com/jamo/immich-gps/internal/immich"
	"github.com/jamo/immich-gps/internal/logging"
	"github.com/jamo/immich-gps/internal/metrics"
	"github.com/jamo/immich-gps/internal/models"
	"go.uber.org/zap"
)

// DetailFetcher fetches the full record of one asset
type DetailFetcher interface {
	AssetDetails(ctx context.Context, id string) (*immich.Asset, error)
}

type Config struct {
	// BatchSize is the number of fetches between pauses
	BatchSize  int
	BatchPause time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:  10,
		BatchPause: 100 * time.Millisecond,
	}
}

// Progress is reported after every photo
type Progress struct {
	Analyzed     int    `json:"analyzed"`
	Total        int    `json:"total"`
	FoundGPS     int    `json:"foundGPS"`
	CurrentPhoto string `json:"currentPhoto"`
}

type ProgressFunc func(Progress)

// Summary counts what one Analyze call did
type Summary struct {
	Total    int
	Analyzed int
	Skipped  int
	FoundGPS int
	Failed   int
}

type Engine struct {
	details DetailFetcher
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewEngine(details DetailFetcher, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Engine {
	d := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.BatchPause < 0 {
		cfg.BatchPause = 0
	}
	return &Engine{
		details: details,
		cfg:     cfg,
		logger:  logging.OrNop(logger),
		metrics: m,
	}
}

// Analyze fetches details for every photo not yet analyzed, one at a
// time. A failed fetch marks that photo as having no GPS and the batch
// goes on; an authentication failure or a cancelled context stops the
// batch and leaves the current photo unanalyzed.
func (e *Engine) Analyze(ctx context.Context, photos []*models.Photo, onProgress ProgressFunc) (Summary, error) {
	summary := Summary{Total: len(photos)}
	fetched := 0

	report := func(current string) {
		if onProgress != nil {
			onProgress(Progress{
				Analyzed:     summary.Analyzed + summary.Skipped,
				Total:        summary.Total,
				FoundGPS:     summary.FoundGPS,
				CurrentPhoto: current,
			})
		}
	}

	for _, photo := range photos {
		if photo.Analyzed {
			summary.Skipped++
			report(photo.Filename)
			continue
		}

		if fetched > 0 && fetched%e.cfg.BatchSize == 0 {
			if err := sleep(ctx, e.cfg.BatchPause); err != nil {
				return summary, err
			}
		}

		found, err := e.analyzeOne(ctx, photo)
		fetched++
		if err != nil {
			if immich.IsAuthError(err) || ctx.Err() != nil {
				return summary, err
			}
			summary.Failed++
		}
		summary.Analyzed++
		if found {
			summary.FoundGPS++
		}
		report(photo.Filename)
	}

	e.logger.Info("GPS analysis finished",
		zap.Int("total", summary.Total),
		zap.Int("analyzed", summary.Analyzed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("found_gps", summary.FoundGPS),
		zap.Int("failed", summary.Failed))

	return summary, nil
}

// analyzeOne updates photo from its detail record. The returned error is
// the fetch error, if any; photo is left untouched for errors that abort
// the batch.
func (e *Engine) analyzeOne(ctx context.Context, photo *models.Photo) (bool, error) {
	details, err := e.details.AssetDetails(ctx, photo.ID)
	if err != nil {
		if immich.IsAuthError(err) || ctx.Err() != nil {
			return false, err
		}
		e.logger.Warn("failed to fetch photo details, treating as no GPS",
			zap.String("asset_id", photo.ID),
			zap.String("filename", photo.Filename),
			zap.Error(err))
		photo.SetNoGPS()
		e.metrics.Analyzed("error")
		return false, err
	}

	coord, ok := FromAsset(details)
	if !ok {
		photo.SetNoGPS()
		e.metrics.Analyzed("no_gps")
		return false, nil
	}

	photo.SetGPS(coord)
	e.metrics.Analyzed("gps")
	e.logger.Debug("GPS found",
		zap.String("asset_id", photo.ID),
		zap.Float64("latitude", coord.Latitude),
		zap.Float64("longitude", coord.Longitude))
	return true, nil
}

// Lookup fetches the coordinate of a single photo without touching it
func (e *Engine) Lookup(ctx context.Context, id string) (models.GPSCoordinate, bool, error) {
	details, err := e.details.AssetDetails(ctx, id)
	if err != nil {
		return models.GPSCoordinate{}, false, err
	}
	coord, ok := FromAsset(details)
	return coord, ok, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
