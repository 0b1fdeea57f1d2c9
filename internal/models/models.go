package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DefaultPlace is used for country and city when the service has none
const DefaultPlace = "Unknown"

// TimeBucket is a service-reported period with the number of photos in it
type TimeBucket struct {
	TimeBucket string `json:"timeBucket"`
	Count      int    `json:"count"`
}

// Period selects a calendar year and optionally a month
type Period struct {
	Year  string `json:"year"`
	Month string `json:"month,omitempty"`
}

// ParsePeriod validates a year and optional month and normalizes the
// month to two digits ("5" -> "05").
func ParsePeriod(year, month string) (Period, error) {
	y, err := strconv.Atoi(year)
	if err != nil || len(year) != 4 {
		return Period{}, fmt.Errorf("invalid year %q: expected 4 digits", year)
	}
	p := Period{Year: fmt.Sprintf("%04d", y)}
	if month == "" {
		return p, nil
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return Period{}, fmt.Errorf("invalid month %q: expected 1-12", month)
	}
	p.Month = fmt.Sprintf("%02d", m)
	return p, nil
}

// YearNumber returns the year as an integer
func (p Period) YearNumber() int {
	y, _ := strconv.Atoi(p.Year)
	return y
}

// MonthNumber returns the month (1-12) and whether one is set
func (p Period) MonthNumber() (int, bool) {
	if p.Month == "" {
		return 0, false
	}
	m, err := strconv.Atoi(p.Month)
	if err != nil {
		return 0, false
	}
	return m, true
}

// Matches reports whether t falls in the period. Year and month are
// compared as numbers.
func (p Period) Matches(t time.Time) bool {
	if t.Year() != p.YearNumber() {
		return false
	}
	if m, ok := p.MonthNumber(); ok {
		return int(t.Month()) == m
	}
	return true
}

func (p Period) String() string {
	if p.Month != "" {
		return p.Year + "-" + p.Month
	}
	return p.Year
}

// GPSCoordinate is a location attached to a photo
type GPSCoordinate struct {
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Country    string     `json:"country"`
	City       string     `json:"city"`
	Altitude   *float64   `json:"altitude"`
	CapturedAt *time.Time `json:"dateOriginal"`
}

// Clone returns a deep copy so the result shares no pointers with c
func (c GPSCoordinate) Clone() GPSCoordinate {
	out := c
	if c.Altitude != nil {
		alt := *c.Altitude
		out.Altitude = &alt
	}
	if c.CapturedAt != nil {
		at := *c.CapturedAt
		out.CapturedAt = &at
	}
	return out
}

// Photo is one image of the loaded period.
//
// HasGPS is true exactly when GPSData is non-nil, and a photo that has
// not been analyzed has neither.
type Photo struct {
	ID        string          `json:"id"`
	Filename  string          `json:"filename"`
	CreatedAt time.Time       `json:"fileCreatedAt"`
	Analyzed  bool            `json:"analyzed"`
	HasGPS    bool            `json:"hasGPS"`
	GPSData   *GPSCoordinate  `json:"gpsData"`
	Raw       json.RawMessage `json:"originalData,omitempty"`
}

// SetGPS stores a copy of c and marks the photo analyzed with GPS
func (p *Photo) SetGPS(c GPSCoordinate) {
	clone := c.Clone()
	p.GPSData = &clone
	p.HasGPS = true
	p.Analyzed = true
}

// SetNoGPS marks the photo analyzed without GPS
func (p *Photo) SetNoGPS() {
	p.GPSData = nil
	p.HasGPS = false
	p.Analyzed = true
}

// ClipboardEntry holds the coordinate picked for pasting
type ClipboardEntry struct {
	Coordinate     GPSCoordinate `json:"gpsData"`
	SourcePhotoID  string        `json:"sourceId"`
	SourceFilename string        `json:"sourcePhoto"`
	CapturedAt     time.Time     `json:"timestamp"`
}

// AuditAction names an entry in the GPS action log
type AuditAction string

const (
	ActionPaste AuditAction = "GPS_PASTE"
)

// AuditEntry records one applied paste
type AuditEntry struct {
	ID             string        `json:"id"`
	Timestamp      time.Time     `json:"timestamp"`
	Action         AuditAction   `json:"action"`
	TargetID       string        `json:"targetId"`
	TargetFilename string        `json:"targetFilename"`
	SourceID       string        `json:"sourceId"`
	SourceFilename string        `json:"sourceFilename"`
	Coordinate     GPSCoordinate `json:"gpsData"`
}

// Stats summarizes the loaded photos
type Stats struct {
	Total         int     `json:"total"`
	Analyzed      int     `json:"analyzed"`
	WithGPS       int     `json:"withGPS"`
	WithoutGPS    int     `json:"withoutGPS"`
	Pending       int     `json:"pending"`
	GPSPercentage float64 `json:"gpsPercentage"`
}

// Album is a summary returned by the albums listing
type Album struct {
	ID         string `json:"id"`
	AlbumName  string `json:"albumName"`
	AssetCount int    `json:"assetCount"`
}
