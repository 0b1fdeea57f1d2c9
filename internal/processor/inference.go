package processor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jamo/immich-gps/internal/models"
)

// MinimumConfidenceThreshold is the confidence a suggestion must exceed
const MinimumConfidenceThreshold = 0.1

// Suggestion names a GPS-bearing photo whose coordinate may be pasted onto
// a photo without GPS
type Suggestion struct {
	TargetID   string        `json:"targetId"`
	Source     models.Photo  `json:"source"`
	Gap        time.Duration `json:"gap"`
	Confidence float64       `json:"confidence"`
	Method     string        `json:"method"`
}

// SuggestSource returns the photo of candidates closest in time to target
// that carries GPS, or nil when there is none or it is too far away.
func SuggestSource(target models.Photo, candidates []models.Photo) *Suggestion {
	var withGPS []models.Photo
	for _, p := range candidates {
		if p.ID == target.ID || !p.HasGPS || p.GPSData == nil {
			continue
		}
		withGPS = append(withGPS, p)
	}

	sort.Slice(withGPS, func(i, j int) bool {
		return withGPS[i].CreatedAt.Before(withGPS[j].CreatedAt)
	})

	nearest := findNearestInTime(target, withGPS)
	if nearest == nil {
		return nil
	}

	gap := target.CreatedAt.Sub(nearest.CreatedAt)
	if gap < 0 {
		gap = -gap
	}
	confidence := calculateTimeBasedConfidence(gap.Hours())
	if confidence <= MinimumConfidenceThreshold {
		return nil
	}

	return &Suggestion{
		TargetID:   target.ID,
		Source:     *nearest,
		Gap:        gap,
		Confidence: confidence,
		Method:     fmt.Sprintf("nearest photo %.1f hours away", gap.Hours()),
	}
}

// findNearestInTime expects candidates sorted by CreatedAt
func findNearestInTime(target models.Photo, candidates []models.Photo) *models.Photo {
	if len(candidates) == 0 {
		return nil
	}

	idx := sort.Search(len(candidates), func(i int) bool {
		return !candidates[i].CreatedAt.Before(target.CreatedAt)
	})

	var nearest *models.Photo
	minDiff := math.MaxFloat64

	if idx > 0 {
		diff := math.Abs(target.CreatedAt.Sub(candidates[idx-1].CreatedAt).Seconds())
		if diff < minDiff {
			minDiff = diff
			nearest = &candidates[idx-1]
		}
	}

	if idx < len(candidates) {
		diff := math.Abs(target.CreatedAt.Sub(candidates[idx].CreatedAt).Seconds())
		if diff < minDiff {
			nearest = &candidates[idx]
		}
	}

	return nearest
}

// calculateTimeBasedConfidence returns a confidence score (0-1) based on time gap
// Confidence decay function:
// - < 1 hour: 1.0
// - 1-6 hours: 0.9
// - 6-24 hours: 0.7
// - 1-3 days: 0.5
// - 3-7 days: 0.3
// - 7-14 days: 0.15
// - > 14 days: 0.1
func calculateTimeBasedConfidence(hoursDiff float64) float64 {
	switch {
	case hoursDiff < 1:
		return 1.0
	case hoursDiff < 6:
		return 0.9
	case hoursDiff < 24:
		return 0.7
	case hoursDiff < 72: // 3 days
		return 0.5
	case hoursDiff < 168: // 7 days
		return 0.3
	case hoursDiff < 336: // 14 days
		return 0.15
	default:
		return 0.1
	}
}
