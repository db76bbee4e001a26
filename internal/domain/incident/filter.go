package incident

import (
	"fmt"
	"time"

	"sfportal/internal/domain/geo"
)

// AllowedLimits enumerates the batch sizes a fetch may request
var AllowedLimits = []int{500, 1000, 2500, 5000, 10000}

// DefaultLimit is the batch size used when a session starts
const DefaultLimit = 5000

// Criteria is the user-controlled filter state for one explorer session
type Criteria struct {
	Sources  []SourceTable `json:"sources"`
	Category string        `json:"category"`
	From     time.Time     `json:"from,omitempty"`
	To       time.Time     `json:"to,omitempty"`
	Limit    int           `json:"limit"`
}

// DefaultCriteria selects every source with no category or date restriction
func DefaultCriteria() Criteria {
	return Criteria{
		Sources:  Sources(),
		Category: CategoryAll,
		Limit:    DefaultLimit,
	}
}

// Validate rejects criteria that must never reach a fetch: an empty source
// set, an unknown source, or a limit outside the allowed set
func (c Criteria) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be selected")
	}
	for _, s := range c.Sources {
		if !s.Valid() {
			return fmt.Errorf("unknown source table %q", s)
		}
	}
	allowed := false
	for _, l := range AllowedLimits {
		if c.Limit == l {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("limit %d is not one of the allowed values %v", c.Limit, AllowedLimits)
	}
	if !c.From.IsZero() && !c.To.IsZero() && c.To.Before(c.From) {
		return fmt.Errorf("date range end precedes start")
	}
	return nil
}

// DateBounded reports whether any date restriction is active
func (c Criteria) DateBounded() bool {
	return !c.From.IsZero() || !c.To.IsZero()
}

// MatchTime decides date-range inclusion for one incident. With neither
// bound set every incident passes, valid timestamp or not: no date filter
// means "show everything", not "show nothing". Once a bound is set an
// incident without a parseable timestamp is excluded, because it cannot be
// known to satisfy the constraint. Both bounds are inclusive.
func (c Criteria) MatchTime(i Incident) bool {
	if !c.DateBounded() {
		return true
	}
	if !i.HasTime() {
		return false
	}
	if !c.From.IsZero() && i.Time.Before(c.From) {
		return false
	}
	if !c.To.IsZero() && i.Time.After(c.To) {
		return false
	}
	return true
}

// MatchCategory decides category inclusion, honoring the "All" sentinel
func (c Criteria) MatchCategory(i Incident) bool {
	if c.Category == "" || c.Category == CategoryAll {
		return true
	}
	return i.Category() == c.Category
}

// Match is the combined per-incident predicate: mappable within the box,
// inside the date range, and matching the selected category
func (c Criteria) Match(i Incident, box geo.Bounds) bool {
	return i.Mappable(box) && c.MatchTime(i) && c.MatchCategory(i)
}

// Apply filters a batch down to the incidents satisfying the criteria,
// preserving input order
func Apply(batch []Incident, c Criteria, box geo.Bounds) []Incident {
	out := make([]Incident, 0, len(batch))
	for _, i := range batch {
		if c.Match(i, box) {
			out = append(out, i)
		}
	}
	return out
}
