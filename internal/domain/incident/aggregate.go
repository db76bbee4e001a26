package incident

import (
	"sort"
	"time"
)

// TopCategoryPanelSize is how many ranked categories the side panel shows
const TopCategoryPanelSize = 12

// CategoryCount is one entry of the ranked category list
type CategoryCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
	Color string `json:"color"`
}

// RankCategories groups the incidents by category label, ranks the groups by
// descending count and assigns each a palette color by rank position,
// wrapping when the palette runs out. Ties keep first-seen order: the sort is
// stable over insertion order, so re-running on the same input always yields
// the same ranking. Colors belong to rank slots, not labels; a category that
// moves in the ranking changes color.
func RankCategories(incidents []Incident) []CategoryCount {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, i := range incidents {
		label := i.Category()
		if _, seen := counts[label]; !seen {
			order = append(order, label)
		}
		counts[label]++
	}

	ranked := make([]CategoryCount, 0, len(order))
	for _, label := range order {
		ranked = append(ranked, CategoryCount{Label: label, Count: counts[label]})
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Count > ranked[b].Count
	})

	for idx := range ranked {
		ranked[idx].Color = CategoryPalette[idx%len(CategoryPalette)]
	}
	return ranked
}

// TopCategories returns the first n entries of a ranked list
func TopCategories(ranked []CategoryCount, n int) []CategoryCount {
	if len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}

// DateRange is the earliest and latest parseable timestamp of a batch
type DateRange struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// BatchDateRange scans a batch for its time span. The second return value is
// false when no incident has a parseable timestamp.
func BatchDateRange(batch []Incident) (DateRange, bool) {
	var r DateRange
	found := false
	for _, i := range batch {
		if !i.HasTime() {
			continue
		}
		if !found {
			r = DateRange{Earliest: i.Time, Latest: i.Time}
			found = true
			continue
		}
		if i.Time.Before(r.Earliest) {
			r.Earliest = i.Time
		}
		if i.Time.After(r.Latest) {
			r.Latest = i.Time
		}
	}
	return r, found
}

// ColorFor returns the marker color for an incident given the current
// ranking: the rank color of its category when ranked, otherwise the fixed
// source color
func ColorFor(i Incident, ranked []CategoryCount) string {
	label := i.Category()
	for _, c := range ranked {
		if c.Label == label {
			return c.Color
		}
	}
	return i.Source.Color()
}
