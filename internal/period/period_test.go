package period

import (
	"testing"
	"time"

	"github.com/jamo/immich-gps/internal/immich"
	"github.com/jamo/immich-gps/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	for _, test := range []struct {
		in     string
		loc    *time.Location
		want   time.Time
		wantOK bool
	}{
		{in: "2021-05-10T08:30:00.000Z", loc: time.UTC, want: time.Date(2021, 5, 10, 8, 30, 0, 0, time.UTC), wantOK: true},
		{in: "2021-05-10T08:30:00+02:00", loc: time.UTC, want: time.Date(2021, 5, 10, 6, 30, 0, 0, time.UTC), wantOK: true},
		{in: "2021-05-10T08:30:00", loc: time.UTC, want: time.Date(2021, 5, 10, 8, 30, 0, 0, time.UTC), wantOK: true},
		{in: "2021-05-10 08:30:00", loc: time.UTC, want: time.Date(2021, 5, 10, 8, 30, 0, 0, time.UTC), wantOK: true},
		{in: "2021:05:10 08:30:00", loc: time.UTC, want: time.Date(2021, 5, 10, 8, 30, 0, 0, time.UTC), wantOK: true},
		{in: "2021-05-10", loc: time.UTC, want: time.Date(2021, 5, 10, 0, 0, 0, 0, time.UTC), wantOK: true},
		{in: "2021-04-30T23:30:00Z", loc: paris, want: time.Date(2021, 5, 1, 1, 30, 0, 0, paris), wantOK: true},
		{in: "", loc: time.UTC},
		{in: "   ", loc: time.UTC},
		{in: "not a date", loc: time.UTC},
		{in: "1850-01-01T00:00:00Z", loc: time.UTC},
		{in: "2150-01-01T00:00:00Z", loc: time.UTC},
	} {
		t.Run(test.in, func(t *testing.T) {
			got, ok := ParseTimestamp(test.in, test.loc)
			assert.Equal(t, test.wantOK, ok)
			if test.wantOK {
				assert.True(t, test.want.Equal(got), "got %v, want %v", got, test.want)
				assert.Equal(t, test.loc, got.Location())
			}
		})
	}
}

func TestEffectiveDatePriority(t *testing.T) {
	rules := DefaultDateRules()

	a := immich.Asset{FileCreatedAt: "2021-05-01T10:00:00Z", LocalDateTime: "2020-01-01T10:00:00Z"}
	got, rule, ok := EffectiveDate(a, rules, time.UTC)
	require.True(t, ok)
	assert.Equal(t, "fileCreatedAt", rule)
	assert.Equal(t, 2021, got.Year())

	a = immich.Asset{FileCreatedAt: "garbage", LocalDateTime: "2020-01-01T10:00:00Z"}
	_, rule, ok = EffectiveDate(a, rules, time.UTC)
	require.True(t, ok)
	assert.Equal(t, "localDateTime", rule)

	a = immich.Asset{ExifInfo: &immich.ExifInfo{DateTimeOriginal: "2019:07:14 12:00:00"}}
	got, rule, ok = EffectiveDate(a, rules, time.UTC)
	require.True(t, ok)
	assert.Equal(t, "exifInfo.dateTimeOriginal", rule)
	assert.Equal(t, time.July, got.Month())

	_, _, ok = EffectiveDate(immich.Asset{ID: "x"}, rules, time.UTC)
	assert.False(t, ok)
}

func TestBucketsForPeriod(t *testing.T) {
	buckets := []models.TimeBucket{
		{TimeBucket: "2021-06-01T00:00:00.000Z", Count: 4},
		{TimeBucket: "2021-05-01T00:00:00.000Z", Count: 12},
		{TimeBucket: "2020-05-01T00:00:00.000Z", Count: 7},
		{TimeBucket: "bogus", Count: 100},
	}

	matching, total := BucketsForPeriod(buckets, models.Period{Year: "2021", Month: "05"})
	assert.Equal(t, []models.TimeBucket{{TimeBucket: "2021-05-01T00:00:00.000Z", Count: 12}}, matching)
	assert.Equal(t, 12, total)

	matching, total = BucketsForPeriod(buckets, models.Period{Year: "2021"})
	assert.Len(t, matching, 2)
	assert.Equal(t, 16, total)

	matching, total = BucketsForPeriod(buckets, models.Period{Year: "2019"})
	assert.Empty(t, matching)
	assert.Zero(t, total)
}

func TestGroupBuckets(t *testing.T) {
	got := GroupBuckets([]models.TimeBucket{
		{TimeBucket: "2020-05-01T00:00:00.000Z", Count: 7},
		{TimeBucket: "2021-05-01T00:00:00.000Z", Count: 12},
		{TimeBucket: "2021-06-01T00:00:00.000Z", Count: 4},
		{TimeBucket: "x", Count: 1},
	})

	assert.Equal(t, []YearSummary{
		{Year: "2021", Count: 16, Months: []MonthSummary{{Month: "06", Count: 4}, {Month: "05", Count: 12}}},
		{Year: "2020", Count: 7, Months: []MonthSummary{{Month: "05", Count: 7}}},
	}, got)
}
