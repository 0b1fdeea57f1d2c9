package photos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jamo/immich-gps/internal/gps"
	"github.com/jamo/immich-gps/internal/models"
	"github.com/jamo/immich-gps/internal/period"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resolveFunc func(ctx context.Context, p models.Period) (*period.Result, error)

func (f resolveFunc) Resolve(ctx context.Context, p models.Period, onProgress period.ProgressFunc) (*period.Result, error) {
	return f(ctx, p)
}

func staticResolver(photos ...*models.Photo) resolveFunc {
	return func(ctx context.Context, p models.Period) (*period.Result, error) {
		return &period.Result{Period: p, Photos: photos, Source: period.SourceSearch}, nil
	}
}

type analyzeFunc func(ctx context.Context, photos []*models.Photo) (gps.Summary, error)

func (f analyzeFunc) Analyze(ctx context.Context, photos []*models.Photo, onProgress gps.ProgressFunc) (gps.Summary, error) {
	return f(ctx, photos)
}

// gpsForEven gives every photo with an even index a coordinate
func gpsForEven(ctx context.Context, photos []*models.Photo) (gps.Summary, error) {
	s := gps.Summary{Total: len(photos)}
	for i, p := range photos {
		if i%2 == 0 {
			p.SetGPS(models.GPSCoordinate{Latitude: float64(i), Longitude: 1})
			s.FoundGPS++
		} else {
			p.SetNoGPS()
		}
		s.Analyzed++
	}
	return s, nil
}

type memoryStore struct {
	mu       sync.Mutex
	period   *models.Period
	photos   []models.Photo
	saved    []models.Photo
	audit    []models.AuditEntry
	pasteErr error
}

func (s *memoryStore) ReplacePhotos(p models.Period, photos []models.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.period = &p
	s.photos = photos
	return nil
}

func (s *memoryStore) SavePhotos(photos []models.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, photos...)
	return nil
}

func (s *memoryStore) SavePaste(photo models.Photo, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pasteErr != nil {
		return s.pasteErr
	}
	s.saved = append(s.saved, photo)
	s.audit = append(s.audit, entry)
	return nil
}

func (s *memoryStore) LoadPhotos() (*models.Period, []models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period, s.photos, nil
}

func (s *memoryStore) ClearPhotos() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.period = nil
	s.photos = nil
	return nil
}

var may2021 = models.Period{Year: "2021", Month: "05"}

func samplePhotos(n int) []*models.Photo {
	base := time.Date(2021, 5, 31, 12, 0, 0, 0, time.UTC)
	out := make([]*models.Photo, n)
	for i := range out {
		out[i] = &models.Photo{
			ID:        fmt.Sprintf("p%03d", i),
			Filename:  fmt.Sprintf("IMG_%04d.JPG", i),
			CreatedAt: base.Add(-time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestParseFilter(t *testing.T) {
	for in, want := range map[string]Filter{"": FilterAll, "all": FilterAll, "GPS": FilterGPS, " no-gps ": FilterNoGPS} {
		f, err := ParseFilter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, f, in)
	}
	_, err := ParseFilter("nogps")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	store := &memoryStore{}
	m := NewManager(staticResolver(samplePhotos(3)...), nil, store, nil)

	res, err := m.Load(context.Background(), may2021, nil)
	require.NoError(t, err)
	assert.Len(t, res.Photos, 3)
	assert.Equal(t, &may2021, m.Period())
	assert.Len(t, m.Photos(), 3)

	require.NotNil(t, store.period)
	assert.Equal(t, may2021, *store.period)
	assert.Len(t, store.photos, 3)
}

func TestLoadFailureKeepsPreviousList(t *testing.T) {
	m := NewManager(staticResolver(samplePhotos(2)...), nil, nil, nil)
	_, err := m.Load(context.Background(), may2021, nil)
	require.NoError(t, err)

	m.resolver = resolveFunc(func(ctx context.Context, p models.Period) (*period.Result, error) {
		return nil, errors.New("boom")
	})
	_, err = m.Load(context.Background(), models.Period{Year: "2020"}, nil)
	assert.EqualError(t, err, "boom")
	assert.Len(t, m.Photos(), 2)
	assert.Equal(t, &may2021, m.Period())
}

func TestLoadSuperseded(t *testing.T) {
	started := make(chan struct{})
	first := true
	var mu sync.Mutex

	m := NewManager(resolveFunc(func(ctx context.Context, p models.Period) (*period.Result, error) {
		mu.Lock()
		isFirst := first
		first = false
		mu.Unlock()
		if isFirst {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &period.Result{Period: p, Photos: samplePhotos(1)}, nil
	}), nil, nil, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := m.Load(context.Background(), models.Period{Year: "2019"}, nil)
		errc <- err
	}()
	<-started

	_, err := m.Load(context.Background(), may2021, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, <-errc, ErrLoadSuperseded)
	assert.Equal(t, &may2021, m.Period())
	assert.Len(t, m.Photos(), 1)
}

func TestAnalyzeAll(t *testing.T) {
	store := &memoryStore{}
	photos := samplePhotos(4)
	photos[3].SetGPS(models.GPSCoordinate{Latitude: 9, Longitude: 9})

	var seen int
	m := NewManager(staticResolver(photos...), analyzeFunc(func(ctx context.Context, ps []*models.Photo) (gps.Summary, error) {
		seen = len(ps)
		return gpsForEven(ctx, ps)
	}), store, nil)
	_, err := m.Load(context.Background(), may2021, nil)
	require.NoError(t, err)

	summary, err := m.AnalyzeAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, seen, "analyzed photos are skipped")
	assert.Equal(t, 3, summary.Analyzed)
	assert.Len(t, store.saved, 3)

	stats := m.Stats()
	assert.Equal(t, models.Stats{Total: 4, Analyzed: 4, WithGPS: 3, WithoutGPS: 1, Pending: 0, GPSPercentage: 75}, stats)

	summary, err = m.AnalyzeAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, gps.Summary{}, summary)
	assert.False(t, m.Analyzing())
}

func TestAnalyzeAllKeepsPendingOnAbort(t *testing.T) {
	authErr := errors.New("auth required")
	m := NewManager(staticResolver(samplePhotos(3)...), analyzeFunc(func(ctx context.Context, ps []*models.Photo) (gps.Summary, error) {
		ps[0].SetNoGPS()
		return gps.Summary{Total: 3, Analyzed: 1}, authErr
	}), nil, nil)
	_, err := m.Load(context.Background(), may2021, nil)
	require.NoError(t, err)

	_, err = m.AnalyzeAll(context.Background(), nil)
	assert.ErrorIs(t, err, authErr)

	stats := m.Stats()
	assert.Equal(t, 1, stats.Analyzed)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 0.0, stats.GPSPercentage)
}

func TestAnalyzeAllRejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	running := make(chan struct{})
	m := NewManager(staticResolver(samplePhotos(2)...), analyzeFunc(func(ctx context.Context, ps []*models.Photo) (gps.Summary, error) {
		close(running)
		<-release
		return gpsForEven(ctx, ps)
	}), nil, nil)
	_, err := m.Load(context.Background(), may2021, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.AnalyzeAll(context.Background(), nil)
		done <- err
	}()
	<-running

	assert.True(t, m.Analyzing())
	_, err = m.AnalyzeAll(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAnalysisRunning)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, m.Analyzing())
	assert.Equal(t, 2, m.Stats().Analyzed)
}

func TestAnalyzeAllDropsResultsAfterClear(t *testing.T) {
	var m *Manager
	m = NewManager(staticResolver(samplePhotos(2)...), analyzeFunc(func(ctx context.Context, ps []*models.Photo) (gps.Summary, error) {
		require.NoError(t, m.Clear())
		return gpsForEven(ctx, ps)
	}), nil, nil)
	_, err := m.Load(context.Background(), may2021, nil)
	require.NoError(t, err)

	_, err = m.AnalyzeAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, m.Photos())
	assert.Nil(t, m.Period())
}

func TestFilteredAndPage(t *testing.T) {
	m := NewManager(staticResolver(samplePhotos(120)...), analyzeFunc(gpsForEven), nil, nil)
	_, err := m.Load(context.Background(), may2021, nil)
	require.NoError(t, err)

	page := m.Page(FilterAll, 1)
	assert.Equal(t, 3, page.Pages)
	assert.Equal(t, 120, page.Total)
	assert.Len(t, page.Photos, PerPage)
	assert.Equal(t, "p000", page.Photos[0].ID)

	page = m.Page(FilterAll, 3)
	assert.Len(t, page.Photos, 20)
	assert.Equal(t, "p100", page.Photos[0].ID)

	page = m.Page(FilterAll, 99)
	assert.Equal(t, 3, page.Page)
	page = m.Page(FilterAll, -1)
	assert.Equal(t, 1, page.Page)

	assert.Empty(t, m.Filtered(FilterNoGPS), "unanalyzed photos are not counted as without GPS")

	_, err = m.AnalyzeAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, m.Filtered(FilterGPS), 60)
	assert.Len(t, m.Filtered(FilterNoGPS), 60)
	assert.Len(t, m.WithGPS(), 60)

	page = m.Page(FilterNoGPS, 2)
	assert.Equal(t, 2, page.Pages)
	assert.Len(t, page.Photos, 10)
	assert.Equal(t, FilterNoGPS, page.Filter)
}

func TestPageEmpty(t *testing.T) {
	m := NewManager(nil, nil, nil, nil)
	page := m.Page(FilterAll, 4)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 0, page.Pages)
	assert.Empty(t, page.Photos)
	assert.Equal(t, models.Stats{}, m.Stats())
}

func TestSearch(t *testing.T) {
	photos := samplePhotos(3)
	photos[1].Filename = "Holiday_Beach.jpg"
	m := NewManager(staticResolver(photos...), nil, nil, nil)
	_, err := m.Load(context.Background(), may2021, nil)
	require.NoError(t, err)

	found := m.Search("beach")
	require.Len(t, found, 1)
	assert.Equal(t, "p001", found[0].ID)
	assert.Len(t, m.Search("  "), 3)
	assert.Empty(t, m.Search("nothing"))
}

func TestReadersGetCopies(t *testing.T) {
	photos := samplePhotos(1)
	photos[0].SetGPS(models.GPSCoordinate{Latitude: 1, Longitude: 2})
	m := NewManager(staticResolver(photos...), nil, nil, nil)
	_, err := m.Load(context.Background(), may2021, nil)
	require.NoError(t, err)

	list := m.Photos()
	list[0].GPSData.Latitude = 50
	list[0].Filename = "changed"

	live, err := m.Find("p000")
	require.NoError(t, err)
	assert.Equal(t, 1.0, live.GPSData.Latitude)
	assert.Equal(t, "IMG_0000.JPG", live.Filename)
}

func TestPastePhotoGPS(t *testing.T) {
	store := &memoryStore{}
	m := NewManager(staticResolver(samplePhotos(2)...), nil, store, nil)
	_, err := m.Load(context.Background(), may2021, nil)
	require.NoError(t, err)

	target, err := m.Find("p001")
	require.NoError(t, err)
	coord := models.GPSCoordinate{Latitude: 43.3, Longitude: 5.4}

	store.pasteErr = errors.New("locked")
	assert.Error(t, m.PastePhotoGPS(target, coord, models.AuditEntry{ID: "a1"}))
	assert.False(t, target.HasGPS, "a failed paste changes nothing")
	assert.False(t, target.Analyzed)

	store.pasteErr = nil
	require.NoError(t, m.PastePhotoGPS(target, coord, models.AuditEntry{ID: "a1"}))
	assert.True(t, target.HasGPS)
	assert.Len(t, store.audit, 1)
	assert.Equal(t, 1, m.Stats().WithGPS)

	_, err = m.Find("missing")
	assert.ErrorIs(t, err, ErrPhotoNotFound)
}

func TestSuggestSource(t *testing.T) {
	photos := samplePhotos(5)
	photos[3].SetGPS(models.GPSCoordinate{Latitude: 3, Longitude: 3})
	photos[0].SetGPS(models.GPSCoordinate{Latitude: 0, Longitude: 0})
	m := NewManager(staticResolver(photos...), nil, nil, nil)
	_, err := m.Load(context.Background(), may2021, nil)
	require.NoError(t, err)

	s, err := m.SuggestSource("p002")
	require.NoError(t, err)
	assert.Equal(t, "p003", s.Source.ID)
	assert.Equal(t, time.Hour, s.Gap)

	_, err = m.SuggestSource("missing")
	assert.ErrorIs(t, err, ErrPhotoNotFound)

	empty := NewManager(staticResolver(samplePhotos(2)...), nil, nil, nil)
	_, err = empty.Load(context.Background(), may2021, nil)
	require.NoError(t, err)
	_, err = empty.SuggestSource("p000")
	assert.ErrorIs(t, err, ErrNoSuggestion)
}

func TestRestoreAndClear(t *testing.T) {
	store := &memoryStore{}
	first := NewManager(staticResolver(samplePhotos(3)...), nil, store, nil)
	_, err := first.Load(context.Background(), may2021, nil)
	require.NoError(t, err)

	second := NewManager(nil, nil, store, nil)
	require.NoError(t, second.Restore())
	assert.Equal(t, &may2021, second.Period())
	assert.Len(t, second.Photos(), 3)

	require.NoError(t, second.Clear())
	assert.Nil(t, second.Period())
	assert.Empty(t, second.Photos())
	assert.Nil(t, store.period)
}
