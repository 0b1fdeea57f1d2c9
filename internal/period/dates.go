package period

import (
	"strings"
	"time"

	"github.com/jamo/immich-gps/internal/immich"
)

// Timestamps outside this range are treated as unset
const (
	minValidYear = 1900
	maxValidYear = 2100
)

// Layouts tried in order. Layouts without a zone are read in the
// resolver's location.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006:01:02 15:04:05",
	"2006-01-02",
}

// DateRule reads one candidate timestamp field of an asset
type DateRule struct {
	Name  string
	Value func(a immich.Asset) string
}

// DefaultDateRules is the priority order used to pick a photo's
// effective date: file creation, local device time, then fallbacks.
func DefaultDateRules() []DateRule {
	return []DateRule{
		{Name: "fileCreatedAt", Value: func(a immich.Asset) string { return a.FileCreatedAt }},
		{Name: "localDateTime", Value: func(a immich.Asset) string { return a.LocalDateTime }},
		{Name: "createdAt", Value: func(a immich.Asset) string { return a.CreatedAt }},
		{Name: "dateTimeOriginal", Value: func(a immich.Asset) string { return a.DateTimeOriginal }},
		{Name: "exifInfo.dateTimeOriginal", Value: func(a immich.Asset) string {
			if a.ExifInfo == nil {
				return ""
			}
			return a.ExifInfo.DateTimeOriginal
		}},
	}
}

// ParseTimestamp parses s with the known layouts and returns it in loc
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		t = t.In(loc)
		if t.Year() < minValidYear || t.Year() > maxValidYear {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// EffectiveDate returns the first rule value that parses, and the name of
// that rule.
func EffectiveDate(a immich.Asset, rules []DateRule, loc *time.Location) (time.Time, string, bool) {
	for _, rule := range rules {
		if t, ok := ParseTimestamp(rule.Value(a), loc); ok {
			return t, rule.Name, true
		}
	}
	return time.Time{}, "", false
}
