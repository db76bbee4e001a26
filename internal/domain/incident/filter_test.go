package incident

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfportal/internal/domain/geo"
)

func TestCriteriaValidate(t *testing.T) {
	valid := DefaultCriteria()
	assert.NoError(t, valid.Validate())

	noSources := DefaultCriteria()
	noSources.Sources = nil
	assert.Error(t, noSources.Validate())

	unknownSource := DefaultCriteria()
	unknownSource.Sources = []SourceTable{"parking_tickets"}
	assert.Error(t, unknownSource.Validate())

	badLimit := DefaultCriteria()
	badLimit.Limit = 1234
	assert.Error(t, badLimit.Validate())

	invertedRange := DefaultCriteria()
	invertedRange.From = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	invertedRange.To = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Error(t, invertedRange.Validate())
}

func TestMatchTimeUnbounded(t *testing.T) {
	c := DefaultCriteria()

	timed := Incident{Time: time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)}
	untimed := Incident{TimeRaw: "not a timestamp"}

	// No date filter means everything passes, parseable timestamp or not
	assert.True(t, c.MatchTime(timed))
	assert.True(t, c.MatchTime(untimed))
}

func TestMatchTimeBoundedExcludesUnparseable(t *testing.T) {
	c := DefaultCriteria()
	c.From = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	untimed := Incident{TimeRaw: "garbage"}
	assert.False(t, c.MatchTime(untimed))
}

func TestMatchTimeInclusiveBounds(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	c := DefaultCriteria()
	c.From = from
	c.To = to

	assert.True(t, c.MatchTime(Incident{Time: from}), "start boundary")
	assert.True(t, c.MatchTime(Incident{Time: to}), "end boundary")
	assert.True(t, c.MatchTime(Incident{Time: from.AddDate(0, 0, 14)}))
	assert.False(t, c.MatchTime(Incident{Time: from.Add(-time.Second)}))
	assert.False(t, c.MatchTime(Incident{Time: to.Add(time.Second)}))
}

func TestMatchCategorySentinel(t *testing.T) {
	assault := Incident{Type: "ASSAULT"}

	all := DefaultCriteria()
	assert.True(t, all.MatchCategory(assault))

	blank := DefaultCriteria()
	blank.Category = ""
	assert.True(t, blank.MatchCategory(assault))

	narrow := DefaultCriteria()
	narrow.Category = "THEFT"
	assert.False(t, narrow.MatchCategory(assault))
	assert.True(t, narrow.MatchCategory(Incident{Type: "THEFT"}))
}

func TestApplyPipeline(t *testing.T) {
	march := func(day, hour int) time.Time {
		return time.Date(2024, 3, day, hour, 0, 0, 0, time.UTC)
	}

	batch := []Incident{
		// Kept: inside the city, inside the range, matching category
		{Index: 0, Type: "ASSAULT", Time: march(10, 9), Lat: 37.7749, Lon: -122.4194},
		// Dropped: wrong category
		{Index: 1, Type: "THEFT", Time: march(12, 14), Lat: 37.76, Lon: -122.44},
		// Dropped: outside the city box
		{Index: 2, Type: "ASSAULT", Time: march(15, 10), Lat: 37.8044, Lon: -122.2712},
		// Dropped: no usable coordinates
		{Index: 3, Type: "ASSAULT", Time: march(16, 10), Lat: math.NaN(), Lon: math.NaN()},
		// Dropped: before the range
		{Index: 4, Type: "ASSAULT", Time: march(1, 8), Lat: 37.77, Lon: -122.43},
		// Dropped: date filter active and timestamp unparseable
		{Index: 5, Type: "ASSAULT", TimeRaw: "garbage", Lat: 37.77, Lon: -122.43},
		// Kept: on the exact range boundary
		{Index: 6, Type: "ASSAULT", Time: march(20, 0), Lat: 37.78, Lon: -122.41},
	}

	c := DefaultCriteria()
	c.Category = "ASSAULT"
	c.From = march(5, 0)
	c.To = march(20, 0)

	filtered := Apply(batch, c, geo.CityBounds)

	require.Len(t, filtered, 2)
	assert.Equal(t, 0, filtered[0].Index)
	assert.Equal(t, 6, filtered[1].Index, "input order preserved")
}

func TestApplyEmptyBatch(t *testing.T) {
	filtered := Apply(nil, DefaultCriteria(), geo.CityBounds)
	assert.Empty(t, filtered)
}

func TestFilterThenRankScenario(t *testing.T) {
	records := []Record{
		{SourceTable: "sfpd_incidents", IncidentType: "A", IncidentTime: "2024-01-01",
			Latitude: FlexFloat(37.77), Longitude: FlexFloat(-122.41)},
		{SourceTable: "sfpd_incidents", IncidentType: "A", IncidentTime: "2024-06-01",
			Latitude: FlexFloat(37.77), Longitude: FlexFloat(-122.41)},
		{SourceTable: "sfpd_incidents", IncidentType: "B", IncidentTime: "2024-03-01",
			Latitude: FlexFloat(999), Longitude: FlexFloat(999)},
	}
	batch := NormalizeAll(records, 0)

	c := DefaultCriteria()
	c.From = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	// First record fails the date bound, third fails the geo bound
	filtered := Apply(batch, c, geo.CityBounds)
	require.Len(t, filtered, 1)
	assert.Equal(t, 1, filtered[0].Index)
	assert.Equal(t, "A", filtered[0].Type)

	ranked := RankCategories(filtered)
	require.Len(t, ranked, 1)
	assert.Equal(t, "A", ranked[0].Label)
	assert.Equal(t, 1, ranked[0].Count)
}
