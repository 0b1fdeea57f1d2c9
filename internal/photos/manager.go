// Package photos holds the photo list of the loaded period and applies
// every change to it.
package photos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jamo/immich-gps/internal/gps"
	"github.com/jamo/immich-gps/internal/logging"
	"github.com/jamo/immich-gps/internal/models"
	"github.com/jamo/immich-gps/internal/period"
	"github.com/jamo/immich-gps/internal/processor"
	"go.uber.org/zap"
)

const PerPage = 50

var (
	ErrAnalysisRunning = errors.New("a GPS analysis is already running")
	ErrPhotoNotFound   = errors.New("photo not found")
	ErrLoadSuperseded  = errors.New("load superseded by a newer one")
	ErrNoSuggestion    = errors.New("no photo with GPS close enough in time")
)

// Store persists the loaded period. A nil Store keeps everything in
// memory.
type Store interface {
	ReplacePhotos(p models.Period, photos []models.Photo) error
	SavePhotos(photos []models.Photo) error
	SavePaste(photo models.Photo, entry models.AuditEntry) error
	LoadPhotos() (*models.Period, []models.Photo, error)
	ClearPhotos() error
}

type Resolver interface {
	Resolve(ctx context.Context, p models.Period, onProgress period.ProgressFunc) (*period.Result, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, photos []*models.Photo, onProgress gps.ProgressFunc) (gps.Summary, error)
}

type Filter string

const (
	FilterAll   Filter = "all"
	FilterGPS   Filter = "gps"
	FilterNoGPS Filter = "no-gps"
)

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FilterAll:
		return FilterAll, nil
	case FilterGPS, FilterNoGPS:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q (want all, gps or no-gps)", s)
	}
}

// Matches reports whether p passes the filter. no-gps only keeps photos
// that were analyzed and found without GPS.
func (f Filter) Matches(p *models.Photo) bool {
	switch f {
	case FilterGPS:
		return p.HasGPS
	case FilterNoGPS:
		return p.Analyzed && !p.HasGPS
	default:
		return true
	}
}

// PageResult is one page of a filtered list
type PageResult struct {
	Photos []models.Photo `json:"photos"`
	Page   int            `json:"page"`
	Pages  int            `json:"pages"`
	Total  int            `json:"total"`
	Filter Filter         `json:"filter"`
}

type Manager struct {
	resolver Resolver
	analyzer Analyzer
	store    Store
	logger   *zap.Logger

	mu         sync.Mutex
	photos     []*models.Photo
	period     *models.Period
	generation uint64
	cancelLoad context.CancelFunc
	analyzing  bool
}

func NewManager(resolver Resolver, analyzer Analyzer, store Store, logger *zap.Logger) *Manager {
	return &Manager{
		resolver: resolver,
		analyzer: analyzer,
		store:    store,
		logger:   logging.OrNop(logger),
	}
}

// Restore loads the last period saved in the store
func (m *Manager) Restore() error {
	if m.store == nil {
		return nil
	}
	p, stored, err := m.store.LoadPhotos()
	if err != nil {
		return fmt.Errorf("failed to restore photos: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.period = p
	m.photos = make([]*models.Photo, len(stored))
	for i := range stored {
		photo := stored[i]
		m.photos[i] = &photo
	}
	return nil
}

// Load resolves p and replaces the list. Starting a load cancels the one
// in flight, whose result is then discarded with ErrLoadSuperseded. On
// failure the previous list is kept.
func (m *Manager) Load(ctx context.Context, p models.Period, onProgress period.ProgressFunc) (*period.Result, error) {
	m.mu.Lock()
	if m.cancelLoad != nil {
		m.cancelLoad()
	}
	m.generation++
	gen := m.generation
	loadCtx, cancel := context.WithCancel(ctx)
	m.cancelLoad = cancel
	m.mu.Unlock()
	defer cancel()

	res, err := m.resolver.Resolve(loadCtx, p, onProgress)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		m.logger.Debug("discarding superseded load", zap.String("period", p.String()))
		return nil, ErrLoadSuperseded
	}
	m.cancelLoad = nil
	if err != nil {
		return nil, err
	}

	if m.store != nil {
		if err := m.store.ReplacePhotos(p, values(res.Photos)); err != nil {
			return nil, fmt.Errorf("failed to save photos: %w", err)
		}
	}

	m.photos = res.Photos
	m.period = &p
	return res, nil
}

// AnalyzeAll runs the GPS engine over every photo not yet analyzed. The
// engine works on copies that are merged back when it returns, so readers
// never see a photo half updated.
func (m *Manager) AnalyzeAll(ctx context.Context, onProgress gps.ProgressFunc) (gps.Summary, error) {
	m.mu.Lock()
	if m.analyzing {
		m.mu.Unlock()
		return gps.Summary{}, ErrAnalysisRunning
	}
	gen := m.generation
	var originals, work []*models.Photo
	for _, p := range m.photos {
		if p.Analyzed {
			continue
		}
		clone := *p
		originals = append(originals, p)
		work = append(work, &clone)
	}
	m.analyzing = len(work) > 0
	m.mu.Unlock()

	if len(work) == 0 {
		return gps.Summary{}, nil
	}
	defer func() {
		m.mu.Lock()
		m.analyzing = false
		m.mu.Unlock()
	}()

	summary, err := m.analyzer.Analyze(ctx, work, onProgress)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		m.logger.Debug("photo list replaced during analysis, results dropped")
		return summary, err
	}

	var changed []models.Photo
	for i, p := range work {
		if p.Analyzed {
			*originals[i] = *p
			changed = append(changed, *p)
		}
	}
	if m.store != nil && len(changed) > 0 {
		if saveErr := m.store.SavePhotos(changed); saveErr != nil {
			m.logger.Error("failed to save analysis results", zap.Error(saveErr))
			if err == nil {
				err = fmt.Errorf("failed to save analysis results: %w", saveErr)
			}
		}
	}
	return summary, err
}

// Analyzing reports whether AnalyzeAll is running
func (m *Manager) Analyzing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyzing
}

// Find returns the live record of a photo, for handing to the transfer
// machine. Changes to it go through UpdatePhotoGPS and PastePhotoGPS.
func (m *Manager) Find(id string) (*models.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.photos {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, ErrPhotoNotFound
}

// UpdatePhotoGPS records a coordinate found for photo
func (m *Manager) UpdatePhotoGPS(photo *models.Photo, c models.GPSCoordinate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	updated := *photo
	updated.SetGPS(c)
	if m.store != nil {
		if err := m.store.SavePhotos([]models.Photo{updated}); err != nil {
			return err
		}
	}
	*photo = updated
	return nil
}

// PastePhotoGPS applies a pasted coordinate and its audit entry together
func (m *Manager) PastePhotoGPS(photo *models.Photo, c models.GPSCoordinate, entry models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	updated := *photo
	updated.SetGPS(c)
	if m.store != nil {
		if err := m.store.SavePaste(updated, entry); err != nil {
			return err
		}
	}
	*photo = updated
	return nil
}

// Period returns the loaded period, nil before the first load
func (m *Manager) Period() *models.Period {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.period == nil {
		return nil
	}
	p := *m.period
	return &p
}

// Photos returns a copy of the whole list
func (m *Manager) Photos() []models.Photo {
	return m.Filtered(FilterAll)
}

func (m *Manager) Filtered(f Filter) []models.Photo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Photo, 0, len(m.photos))
	for _, p := range m.photos {
		if f.Matches(p) {
			out = append(out, copyPhoto(p))
		}
	}
	return out
}

// WithGPS returns the photos that carry a coordinate
func (m *Manager) WithGPS() []models.Photo {
	return m.Filtered(FilterGPS)
}

// Page returns one page of the filtered list. page is clamped to the
// available range.
func (m *Manager) Page(f Filter, page int) PageResult {
	filtered := m.Filtered(f)
	pages := (len(filtered) + PerPage - 1) / PerPage
	if page > pages {
		page = pages
	}
	if page < 1 {
		page = 1
	}

	start := (page - 1) * PerPage
	end := start + PerPage
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}
	return PageResult{
		Photos: filtered[start:end],
		Page:   page,
		Pages:  pages,
		Total:  len(filtered),
		Filter: f,
	}
}

// Search matches filenames case-insensitively. An empty term returns
// every photo.
func (m *Manager) Search(term string) []models.Photo {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return m.Photos()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Photo
	for _, p := range m.photos {
		if strings.Contains(strings.ToLower(p.Filename), term) {
			out = append(out, copyPhoto(p))
		}
	}
	return out
}

func (m *Manager) Stats() models.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := models.Stats{Total: len(m.photos)}
	for _, p := range m.photos {
		if p.Analyzed {
			s.Analyzed++
			if !p.HasGPS {
				s.WithoutGPS++
			}
		}
		if p.HasGPS {
			s.WithGPS++
		}
	}
	s.Pending = s.Total - s.Analyzed
	if s.Analyzed > 0 {
		s.GPSPercentage = float64(int(float64(s.WithGPS)/float64(s.Analyzed)*1000+0.5)) / 10
	}
	return s
}

// SuggestSource finds the GPS photo closest in time to the photo id
func (m *Manager) SuggestSource(id string) (*processor.Suggestion, error) {
	target, err := m.Find(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	t := copyPhoto(target)
	m.mu.Unlock()

	s := processor.SuggestSource(t, m.WithGPS())
	if s == nil {
		return nil, ErrNoSuggestion
	}
	return s, nil
}

// Clear drops the list and the loaded period, cancelling any load
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancelLoad != nil {
		m.cancelLoad()
		m.cancelLoad = nil
	}
	m.generation++
	m.photos = nil
	m.period = nil
	if m.store != nil {
		return m.store.ClearPhotos()
	}
	return nil
}

func copyPhoto(p *models.Photo) models.Photo {
	out := *p
	if p.GPSData != nil {
		c := p.GPSData.Clone()
		out.GPSData = &c
	}
	return out
}

func values(photos []*models.Photo) []models.Photo {
	out := make([]models.Photo, len(photos))
	for i, p := range photos {
		out[i] = copyPhoto(p)
	}
	return out
}
