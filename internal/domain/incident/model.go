package incident

import (
	"math"
	"strconv"
	"strings"
	"time"

	"sfportal/internal/domain/geo"
)

// SourceTable identifies one of the six upstream datasets
type SourceTable string

const (
	Source311Requests    SourceTable = "311_service_requests"
	SourceFireIncidents  SourceTable = "fire_incidents"
	SourceFireComplaints SourceTable = "fire_safety_complaints"
	SourceFireViolations SourceTable = "fire_violations"
	SourceSFFDCalls      SourceTable = "sffd_service_calls"
	SourceSFPDIncidents  SourceTable = "sfpd_incidents"
)

// Sources returns all known source tables in display order
func Sources() []SourceTable {
	return []SourceTable{
		Source311Requests,
		SourceFireIncidents,
		SourceFireComplaints,
		SourceFireViolations,
		SourceSFFDCalls,
		SourceSFPDIncidents,
	}
}

var sourceLabels = map[SourceTable]string{
	Source311Requests:    "311 Service Requests",
	SourceFireIncidents:  "Fire Incidents",
	SourceFireComplaints: "Fire Safety Complaints",
	SourceFireViolations: "Fire Violations",
	SourceSFFDCalls:      "SFFD Service Calls",
	SourceSFPDIncidents:  "SFPD Incidents",
}

var sourceColors = map[SourceTable]string{
	Source311Requests:    "#10b981",
	SourceFireIncidents:  "#ef4444",
	SourceFireComplaints: "#f97316",
	SourceFireViolations: "#a855f7",
	SourceSFFDCalls:      "#0ea5e9",
	SourceSFPDIncidents:  "#6366f1",
}

// Valid reports whether s is one of the known source tables
func (s SourceTable) Valid() bool {
	_, ok := sourceLabels[s]
	return ok
}

// Label returns the human-readable name for the source, falling back to the
// raw value for unknown sources
func (s SourceTable) Label() string {
	if label, ok := sourceLabels[s]; ok {
		return label
	}
	return string(s)
}

// Color returns the marker color token for the source
func (s SourceTable) Color() string {
	if color, ok := sourceColors[s]; ok {
		return color
	}
	return "#111827"
}

// CategoryPalette is the ordered color cycle for ranked categories. Shorter
// than a typical category count, so assignment wraps.
var CategoryPalette = []string{
	"#10b981",
	"#3b82f6",
	"#a855f7",
	"#f97316",
	"#ef4444",
	"#facc15",
	"#6366f1",
	"#ec4899",
	"#14b8a6",
	"#fb7185",
	"#8b5cf6",
	"#0ea5e9",
}

const (
	// FallbackCategory groups incidents whose type label is absent or blank
	FallbackCategory = "Unspecified"

	// CategoryAll is the sentinel meaning no category restriction
	CategoryAll = "All"
)

// FlexFloat decodes a coordinate that upstream sources emit inconsistently:
// as a JSON number, a numeric string, null, or garbage. Anything unusable
// becomes NaN rather than a decode error, so one bad row never poisons a
// batch.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = FlexFloat(math.NaN())
		return nil
	}
	s = strings.TrimSpace(strings.Trim(s, `"`))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = FlexFloat(math.NaN())
		return nil
	}
	*f = FlexFloat(v)
	return nil
}

// Float returns the parsed value, NaN when absent or unparseable
func (f FlexFloat) Float() float64 {
	return float64(f)
}

// Record is the wire shape of a single timeline row as returned by the
// incidents API. Fields are normalized into an Incident before anything else
// touches them.
type Record struct {
	SourceTable  string    `json:"source_table"`
	IncidentTime string    `json:"incident_time"`
	IncidentType string    `json:"incident_type"`
	Description  string    `json:"description"`
	Address      string    `json:"address"`
	Neighborhood string    `json:"neighborhood"`
	Latitude     FlexFloat `json:"latitude"`
	Longitude    FlexFloat `json:"longitude"`
}

// Incident is a normalized record ready for the filter/aggregate/viewport
// pipeline. Lat and Lon are NaN when the source row had no usable
// coordinates; Time is the zero value when the timestamp did not parse.
type Incident struct {
	Index        int         `json:"index"`
	Source       SourceTable `json:"source_table"`
	Type         string      `json:"incident_type"`
	TimeRaw      string      `json:"incident_time"`
	Time         time.Time   `json:"-"`
	Description  string      `json:"description,omitempty"`
	Address      string      `json:"address,omitempty"`
	Neighborhood string      `json:"neighborhood,omitempty"`
	Lat          float64     `json:"lat"`
	Lon          float64     `json:"lon"`
}

// timeLayouts covers the timestamp shapes the six source tables actually
// emit, tried in order
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses an incident timestamp against the known layouts. ok is
// false for blank or unrecognized input.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Normalize converts a wire record into an Incident with the given
// per-render index
func (r Record) Normalize(index int) Incident {
	inc := Incident{
		Index:        index,
		Source:       SourceTable(r.SourceTable),
		Type:         strings.TrimSpace(r.IncidentType),
		TimeRaw:      r.IncidentTime,
		Description:  strings.TrimSpace(r.Description),
		Address:      strings.TrimSpace(r.Address),
		Neighborhood: strings.TrimSpace(r.Neighborhood),
		Lat:          r.Latitude.Float(),
		Lon:          r.Longitude.Float(),
	}
	if t, ok := ParseTime(r.IncidentTime); ok {
		inc.Time = t
	}
	return inc
}

// NormalizeAll converts a batch of wire records, assigning sequential indexes
// starting at offset
func NormalizeAll(records []Record, offset int) []Incident {
	out := make([]Incident, 0, len(records))
	for i, r := range records {
		out = append(out, r.Normalize(offset+i))
	}
	return out
}

// Category returns the grouping label for the incident
func (i Incident) Category() string {
	if i.Type == "" {
		return FallbackCategory
	}
	return i.Type
}

// HasTime reports whether the incident carries a parseable timestamp
func (i Incident) HasTime() bool {
	return !i.Time.IsZero()
}

// Point returns the incident coordinates as a geo point
func (i Incident) Point() geo.Point {
	return geo.Point{Lat: i.Lat, Lon: i.Lon}
}

// Mappable reports whether the incident can be placed on the map: both
// coordinates parse to finite numbers and fall inside the bounding box,
// boundary included
func (i Incident) Mappable(box geo.Bounds) bool {
	return box.Contains(i.Lat, i.Lon)
}
