package gps

import (
	"math"
	"time"

	"github.com/jamo/immich-gps/internal/immich"
	"github.com/jamo/immich-gps/internal/models"
	"github.com/jamo/immich-gps/internal/period"
)

// FromAsset extracts the coordinate of a detail record. It reports false
// unless both latitude and longitude are present and in range.
func FromAsset(a *immich.Asset) (models.GPSCoordinate, bool) {
	if a == nil || a.ExifInfo == nil {
		return models.GPSCoordinate{}, false
	}
	exif := a.ExifInfo
	if exif.Latitude == nil || exif.Longitude == nil {
		return models.GPSCoordinate{}, false
	}
	if math.IsNaN(*exif.Latitude) || math.IsNaN(*exif.Longitude) ||
		math.Abs(*exif.Latitude) > 90 || math.Abs(*exif.Longitude) > 180 {
		return models.GPSCoordinate{}, false
	}

	c := models.GPSCoordinate{
		Latitude:  *exif.Latitude,
		Longitude: *exif.Longitude,
		Country:   placeOrDefault(exif.Country),
		City:      placeOrDefault(exif.City),
	}
	if exif.Altitude != nil {
		alt := *exif.Altitude
		c.Altitude = &alt
	}
	if t, ok := period.ParseTimestamp(exif.DateTimeOriginal, time.UTC); ok {
		c.CapturedAt = &t
	}
	return c, true
}

func placeOrDefault(s string) string {
	if s == "" {
		return models.DefaultPlace
	}
	return s
}
