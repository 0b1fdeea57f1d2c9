package period

import (
	"sort"
	"strconv"

	"github.com/jamo/immich-gps/internal/models"
)

// YearSummary groups the buckets of one year
type YearSummary struct {
	Year   string         `json:"year"`
	Count  int            `json:"count"`
	Months []MonthSummary `json:"months"`
}

type MonthSummary struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// bucketYearMonth reads the leading "YYYY-MM" of a bucket key
func bucketYearMonth(key string) (int, int, bool) {
	if len(key) < 7 || key[4] != '-' {
		return 0, 0, false
	}
	y, err := strconv.Atoi(key[0:4])
	if err != nil {
		return 0, 0, false
	}
	m, err := strconv.Atoi(key[5:7])
	if err != nil || m < 1 || m > 12 {
		return 0, 0, false
	}
	return y, m, true
}

// BucketsForPeriod returns the buckets inside p and the sum of their counts
func BucketsForPeriod(buckets []models.TimeBucket, p models.Period) ([]models.TimeBucket, int) {
	var matching []models.TimeBucket
	total := 0
	wantMonth, hasMonth := p.MonthNumber()
	for _, b := range buckets {
		y, m, ok := bucketYearMonth(b.TimeBucket)
		if !ok || y != p.YearNumber() {
			continue
		}
		if hasMonth && m != wantMonth {
			continue
		}
		matching = append(matching, b)
		total += b.Count
	}
	return matching, total
}

// GroupBuckets summarizes buckets by year and month, newest first
func GroupBuckets(buckets []models.TimeBucket) []YearSummary {
	years := make(map[int]map[int]int)
	for _, b := range buckets {
		y, m, ok := bucketYearMonth(b.TimeBucket)
		if !ok {
			continue
		}
		if years[y] == nil {
			years[y] = make(map[int]int)
		}
		years[y][m] += b.Count
	}

	var summaries []YearSummary
	for y, months := range years {
		s := YearSummary{Year: strconv.Itoa(y)}
		for m, count := range months {
			s.Months = append(s.Months, MonthSummary{Month: twoDigits(m), Count: count})
			s.Count += count
		}
		sort.Slice(s.Months, func(i, j int) bool { return s.Months[i].Month > s.Months[j].Month })
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Year > summaries[j].Year })
	return summaries
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
