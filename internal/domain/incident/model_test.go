package incident

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfportal/internal/domain/geo"
)

func TestFlexFloatDecoding(t *testing.T) {
	var record Record
	payload := `{
		"source_table": "sfpd_incidents",
		"latitude": "37.7749",
		"longitude": -122.4194
	}`
	require.NoError(t, json.Unmarshal([]byte(payload), &record))
	assert.Equal(t, 37.7749, record.Latitude.Float())
	assert.Equal(t, -122.4194, record.Longitude.Float())
}

func TestFlexFloatBadInputBecomesNaN(t *testing.T) {
	cases := []string{`null`, `""`, `"not a number"`, `"12,5"`}
	for _, c := range cases {
		var f FlexFloat
		require.NoError(t, json.Unmarshal([]byte(c), &f), c)
		assert.True(t, math.IsNaN(f.Float()), c)
	}
}

func TestParseTimeLayouts(t *testing.T) {
	cases := map[string]time.Time{
		"2024-03-15T08:30:00Z":      time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC),
		"2024-03-15T08:30:00":       time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC),
		"2024-03-15 08:30:00":       time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC),
		"2024-03-15":                time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		"2024-03-15T08:30:00-07:00": time.Date(2024, 3, 15, 8, 30, 0, 0, time.FixedZone("", -7*3600)),
	}

	for input, want := range cases {
		got, ok := ParseTime(input)
		require.True(t, ok, input)
		assert.True(t, got.Equal(want), input)
	}
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "  ", "yesterday", "15/03/2024"} {
		_, ok := ParseTime(input)
		assert.False(t, ok, input)
	}
}

func TestNormalizeAssignsIndexAndTrims(t *testing.T) {
	record := Record{
		SourceTable:  "sfpd_incidents",
		IncidentTime: "2024-03-15 08:30:00",
		IncidentType: "  ASSAULT ",
		Address:      " 800 BRYANT ST ",
		Latitude:     FlexFloat(37.7749),
		Longitude:    FlexFloat(-122.4194),
	}

	inc := record.Normalize(7)
	assert.Equal(t, 7, inc.Index)
	assert.Equal(t, SourceSFPDIncidents, inc.Source)
	assert.Equal(t, "ASSAULT", inc.Type)
	assert.Equal(t, "800 BRYANT ST", inc.Address)
	assert.True(t, inc.HasTime())
	assert.Equal(t, "ASSAULT", inc.Category())
}

func TestCategoryFallback(t *testing.T) {
	inc := Record{SourceTable: "fire_incidents", IncidentType: "   "}.Normalize(0)
	assert.Equal(t, FallbackCategory, inc.Category())
}

func TestMappable(t *testing.T) {
	inside := Incident{Lat: 37.7749, Lon: -122.4194}
	assert.True(t, inside.Mappable(geo.CityBounds))

	corner := Incident{Lat: 37.8324, Lon: -122.5155}
	assert.True(t, corner.Mappable(geo.CityBounds), "boundary is inclusive")

	oakland := Incident{Lat: 37.8044, Lon: -122.2712}
	assert.False(t, oakland.Mappable(geo.CityBounds))

	noCoords := Incident{Lat: math.NaN(), Lon: math.NaN()}
	assert.False(t, noCoords.Mappable(geo.CityBounds))
}

func TestSourceLabelsAndColors(t *testing.T) {
	for _, s := range Sources() {
		assert.True(t, s.Valid())
		assert.NotEmpty(t, s.Label())
		assert.NotEmpty(t, s.Color())
	}

	unknown := SourceTable("parking_tickets")
	assert.False(t, unknown.Valid())
	assert.Equal(t, "parking_tickets", unknown.Label())
}
