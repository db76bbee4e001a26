package incident

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byType(types ...string) []Incident {
	out := make([]Incident, len(types))
	for i, tp := range types {
		out[i] = Incident{Index: i, Type: tp}
	}
	return out
}

func TestRankCategoriesOrdersByCount(t *testing.T) {
	incidents := byType("THEFT", "ASSAULT", "THEFT", "THEFT", "ASSAULT", "VANDALISM")

	ranked := RankCategories(incidents)
	require.Len(t, ranked, 3)
	assert.Equal(t, CategoryCount{Label: "THEFT", Count: 3, Color: CategoryPalette[0]}, ranked[0])
	assert.Equal(t, CategoryCount{Label: "ASSAULT", Count: 2, Color: CategoryPalette[1]}, ranked[1])
	assert.Equal(t, CategoryCount{Label: "VANDALISM", Count: 1, Color: CategoryPalette[2]}, ranked[2])
}

func TestRankCategoriesTiesKeepFirstSeenOrder(t *testing.T) {
	incidents := byType("B", "A", "B", "A")

	ranked := RankCategories(incidents)
	require.Len(t, ranked, 2)
	assert.Equal(t, "B", ranked[0].Label, "B appeared first in the input")
	assert.Equal(t, "A", ranked[1].Label)

	// Same input, same ranking
	again := RankCategories(incidents)
	assert.Equal(t, ranked, again)
}

func TestRankCategoriesPaletteWraps(t *testing.T) {
	types := make([]string, 0, len(CategoryPalette)+2)
	for i := 0; i < len(CategoryPalette)+2; i++ {
		types = append(types, string(rune('A'+i)))
	}
	// Descending counts so the ranking is unambiguous
	var incidents []Incident
	for i, tp := range types {
		for j := 0; j < len(types)-i; j++ {
			incidents = append(incidents, Incident{Type: tp})
		}
	}

	ranked := RankCategories(incidents)
	require.Len(t, ranked, len(CategoryPalette)+2)
	assert.Equal(t, CategoryPalette[0], ranked[len(CategoryPalette)].Color, "palette wraps after running out")
	assert.Equal(t, CategoryPalette[1], ranked[len(CategoryPalette)+1].Color)
}

func TestRankCategoriesBlankTypesGroupTogether(t *testing.T) {
	incidents := byType("", "", "THEFT")

	ranked := RankCategories(incidents)
	require.Len(t, ranked, 2)
	assert.Equal(t, FallbackCategory, ranked[0].Label)
	assert.Equal(t, 2, ranked[0].Count)
}

func TestTopCategories(t *testing.T) {
	ranked := RankCategories(byType("A", "A", "B", "C"))

	assert.Len(t, TopCategories(ranked, 2), 2)
	assert.Equal(t, ranked, TopCategories(ranked, 10), "short lists pass through whole")
}

func TestBatchDateRange(t *testing.T) {
	batch := []Incident{
		{Time: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
		{TimeRaw: "garbage"},
		{Time: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{Time: time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC)},
	}

	r, ok := BatchDateRange(batch)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), r.Earliest)
	assert.Equal(t, time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC), r.Latest)
}

func TestBatchDateRangeNoTimestamps(t *testing.T) {
	_, ok := BatchDateRange([]Incident{{TimeRaw: "garbage"}})
	assert.False(t, ok)
}

func TestColorFor(t *testing.T) {
	ranked := RankCategories(byType("THEFT", "THEFT", "ASSAULT"))

	theft := Incident{Type: "THEFT", Source: SourceSFPDIncidents}
	assert.Equal(t, CategoryPalette[0], ColorFor(theft, ranked))

	// Not in the ranking: fall back to the source color
	arson := Incident{Type: "ARSON", Source: SourceFireIncidents}
	assert.Equal(t, SourceFireIncidents.Color(), ColorFor(arson, ranked))
}
