// Package period finds every photo whose effective date falls in a given
// year or month. The search endpoint has no date filter, so the resolver
// either reads the month buckets directly or pages through the whole
// library and filters each page.
package period

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jamo/immich-gps/internal/immich"
	"github.com/jamo/immich-gps/internal/logging"
	"github.com/jamo/immich-gps/internal/metrics"
	"github.com/jamo/immich-gps/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	SourceBuckets = "buckets"
	SourceSearch  = "search"

	unnamedFile = "Unnamed"
)

var errNoMatchingBuckets = errors.New("no bucket matches the period")

// Searcher pages through the metadata search
type Searcher interface {
	SearchMetadata(ctx context.Context, req immich.SearchRequest) (*immich.SearchPage, error)
}

// BucketSource is optionally implemented by a Searcher that can list
// time buckets and fetch a bucket's photos.
type BucketSource interface {
	TimeBuckets(ctx context.Context) ([]models.TimeBucket, error)
	TimelineBucket(ctx context.Context, timeBucket string) ([]immich.Asset, error)
}

type Config struct {
	PageSize int
	MaxPages int
	// FailureThreshold bounds consecutive empty or failed pages
	FailureThreshold int
	PageDelay        time.Duration
	// FastPath reads month buckets before falling back to the scan
	FastPath  bool
	Location  *time.Location
	DateRules []DateRule
}

func DefaultConfig() Config {
	return Config{
		PageSize:         1000,
		MaxPages:         50,
		FailureThreshold: 3,
		PageDelay:        100 * time.Millisecond,
		FastPath:         true,
		Location:         time.UTC,
		DateRules:        DefaultDateRules(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = d.MaxPages
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.PageDelay < 0 {
		c.PageDelay = 0
	}
	if c.Location == nil {
		c.Location = d.Location
	}
	if len(c.DateRules) == 0 {
		c.DateRules = d.DateRules
	}
	return c
}

// Progress is reported after every page or bucket
type Progress struct {
	Source            string `json:"source"`
	Page              int    `json:"page"`
	PhotosThisPage    int    `json:"photosThisPage"`
	AllPhotosThisPage int    `json:"allPhotosThisPage"`
	TotalFound        int    `json:"totalFound"`
	TotalTested       int    `json:"totalTested"`
	Period            string `json:"period"`
}

type ProgressFunc func(Progress)

// Result is a completed resolution
type Result struct {
	Period models.Period
	Photos []*models.Photo
	Source string
	// Expected is the bucket-derived total, 0 when unknown
	Expected int
	Pages    int
	Tested   int
	Undated  int
}

type Resolver struct {
	search  Searcher
	buckets BucketSource
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewResolver creates a resolver. The bucket fast path is available when
// svc also implements BucketSource.
func NewResolver(svc Searcher, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Resolver {
	r := &Resolver{
		search:  svc,
		cfg:     cfg.withDefaults(),
		logger:  logging.OrNop(logger),
		metrics: m,
	}
	if bs, ok := svc.(BucketSource); ok {
		r.buckets = bs
	}
	return r
}

// Resolve returns the deduplicated photos of p, newest first
func (r *Resolver) Resolve(ctx context.Context, p models.Period, onProgress ProgressFunc) (*Result, error) {
	log := r.logger.With(zap.String("period", p.String()))
	expected := 0

	if r.cfg.FastPath && r.buckets != nil {
		res, err := r.fromBuckets(ctx, p, onProgress)
		switch {
		case err == nil:
			return r.finish(res, log), nil
		case immich.IsAuthError(err) || ctx.Err() != nil:
			return nil, err
		}
		if res != nil {
			expected = res.Expected
		}
		log.Info("bucket listing unavailable, scanning all photos",
			zap.Error(err),
			zap.Int("expected", expected))
	}

	res, err := r.scan(ctx, p, expected, onProgress)
	if err != nil {
		return nil, err
	}
	return r.finish(res, log), nil
}

func (r *Resolver) finish(res *Result, log *zap.Logger) *Result {
	sortNewestFirst(res.Photos)
	r.metrics.Resolved(len(res.Photos))
	if res.Expected > 0 && len(res.Photos) != res.Expected {
		log.Warn("resolved photo count differs from bucket count",
			zap.Int("found", len(res.Photos)),
			zap.Int("expected", res.Expected))
	}
	log.Info("period resolved",
		zap.String("source", res.Source),
		zap.Int("photos", len(res.Photos)),
		zap.Int("pages", res.Pages),
		zap.Int("tested", res.Tested),
		zap.Int("undated", res.Undated))
	return res
}

// fromBuckets loads the photos of every bucket inside p. On failure the
// returned result still carries the expected total when it is known.
func (r *Resolver) fromBuckets(ctx context.Context, p models.Period, onProgress ProgressFunc) (*Result, error) {
	all, err := r.buckets.TimeBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list time buckets: %w", err)
	}

	matching, expected := BucketsForPeriod(all, p)
	res := &Result{Period: p, Source: SourceBuckets, Expected: expected}
	if len(matching) == 0 {
		return res, errNoMatchingBuckets
	}

	acc := r.newAccumulator(p)
	for i, bucket := range matching {
		assets, err := r.buckets.TimelineBucket(ctx, bucket.TimeBucket)
		if err != nil {
			return res, fmt.Errorf("failed to fetch bucket %s: %w", bucket.TimeBucket, err)
		}
		added := acc.add(assets)
		res.Pages++
		res.Tested += len(assets)

		if onProgress != nil {
			onProgress(Progress{
				Source:            SourceBuckets,
				Page:              i + 1,
				PhotosThisPage:    added,
				AllPhotosThisPage: len(assets),
				TotalFound:        len(acc.photos),
				TotalTested:       res.Tested,
				Period:            p.String(),
			})
		}
	}

	res.Photos = acc.photos
	res.Undated = acc.undated
	return res, nil
}

// scan pages through the metadata search and keeps the photos of p.
// Empty and transiently failed pages share one consecutive counter: the
// scan stops once it reaches the threshold on an empty page, and fails
// if it reaches it on an error.
func (r *Resolver) scan(ctx context.Context, p models.Period, expected int, onProgress ProgressFunc) (*Result, error) {
	log := r.logger.With(zap.String("period", p.String()))
	res := &Result{Period: p, Source: SourceSearch, Expected: expected}
	acc := r.newAccumulator(p)
	limiter := rate.NewLimiter(rate.Every(r.cfg.PageDelay), 1)
	consecutive := 0

	for page := 1; page <= r.cfg.MaxPages; page++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := r.search.SearchMetadata(ctx, immich.SearchRequest{
			Query: "",
			Type:  "IMAGE",
			Size:  r.cfg.PageSize,
			Page:  page,
		})
		res.Pages = page
		if err != nil {
			if immich.IsAuthError(err) || ctx.Err() != nil {
				return nil, err
			}
			if !immich.IsTransient(err) {
				return nil, fmt.Errorf("failed to fetch page %d: %w", page, err)
			}
			consecutive++
			r.metrics.Page("error")
			log.Warn("page failed",
				zap.Int("page", page),
				zap.Int("consecutive", consecutive),
				zap.Error(err))
			if consecutive >= r.cfg.FailureThreshold {
				return nil, fmt.Errorf("aborting scan after %d consecutive failed or empty pages: %w", consecutive, err)
			}
			continue
		}

		if len(result.Items) == 0 {
			consecutive++
			r.metrics.Page("empty")
			log.Debug("empty page", zap.Int("page", page), zap.Int("consecutive", consecutive))
			if consecutive >= r.cfg.FailureThreshold {
				break
			}
			continue
		}

		consecutive = 0
		r.metrics.Page("ok")
		added := acc.add(result.Items)
		res.Tested += len(result.Items)

		log.Debug("page scanned",
			zap.Int("page", page),
			zap.Int("items", len(result.Items)),
			zap.Int("added", added),
			zap.Int("total", len(acc.photos)))

		if onProgress != nil {
			onProgress(Progress{
				Source:            SourceSearch,
				Page:              page,
				PhotosThisPage:    added,
				AllPhotosThisPage: len(result.Items),
				TotalFound:        len(acc.photos),
				TotalTested:       res.Tested,
				Period:            p.String(),
			})
		}

		if expected > 0 && len(acc.photos) >= expected {
			log.Debug("expected total reached", zap.Int("expected", expected))
			break
		}
		if !result.HasMore {
			break
		}
	}

	res.Photos = acc.photos
	res.Undated = acc.undated
	return res, nil
}

// accumulator filters assets by period and drops ids it has already seen
type accumulator struct {
	period  models.Period
	rules   []DateRule
	loc     *time.Location
	logger  *zap.Logger
	seen    map[string]bool
	photos  []*models.Photo
	undated int
}

func (r *Resolver) newAccumulator(p models.Period) *accumulator {
	return &accumulator{
		period: p,
		rules:  r.cfg.DateRules,
		loc:    r.cfg.Location,
		logger: r.logger,
		seen:   make(map[string]bool),
	}
}

// add appends the new matching assets and returns how many were added
func (a *accumulator) add(assets []immich.Asset) int {
	added := 0
	for _, asset := range assets {
		date, _, ok := EffectiveDate(asset, a.rules, a.loc)
		if !ok {
			a.undated++
			a.logger.Warn("photo has no parseable date, skipped",
				zap.String("asset_id", asset.ID),
				zap.String("fileCreatedAt", asset.FileCreatedAt),
				zap.String("localDateTime", asset.LocalDateTime),
				zap.String("createdAt", asset.CreatedAt))
			continue
		}
		if !a.period.Matches(date) || a.seen[asset.ID] {
			continue
		}
		a.seen[asset.ID] = true
		a.photos = append(a.photos, newPhoto(asset, date))
		added++
	}
	return added
}

func newPhoto(asset immich.Asset, date time.Time) *models.Photo {
	name := asset.OriginalFileName
	if name == "" {
		name = unnamedFile
	}
	return &models.Photo{
		ID:        asset.ID,
		Filename:  name,
		CreatedAt: date,
		Raw:       asset.Raw,
	}
}

func sortNewestFirst(photos []*models.Photo) {
	sort.SliceStable(photos, func(i, j int) bool {
		if photos[i].CreatedAt.Equal(photos[j].CreatedAt) {
			return photos[i].ID < photos[j].ID
		}
		return photos[i].CreatedAt.After(photos[j].CreatedAt)
	})
}
