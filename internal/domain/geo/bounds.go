package geo

import (
	"math"
)

// Point is a geographic coordinate pair
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both coordinates are finite numbers
func (p Point) Valid() bool {
	return isFinite(p.Lat) && isFinite(p.Lon)
}

// Bounds is an axis-aligned latitude/longitude box. All four edges are
// inclusive.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// CityBounds is the fixed San Francisco bounding box. Coordinates outside
// this box are treated as unmappable everywhere in the service.
var CityBounds = Bounds{
	South: 37.7035,
	West:  -122.5155,
	North: 37.8324,
	East:  -122.3549,
}

// Valid reports whether the box is finite and non-inverted
func (b Bounds) Valid() bool {
	return isFinite(b.South) && isFinite(b.North) &&
		isFinite(b.West) && isFinite(b.East) &&
		b.South <= b.North && b.West <= b.East
}

// Contains reports whether the point falls within the box, boundary included
func (b Bounds) Contains(lat, lon float64) bool {
	if !isFinite(lat) || !isFinite(lon) {
		return false
	}
	return lat >= b.South && lat <= b.North && lon >= b.West && lon <= b.East
}

// ContainsBounds reports whether other lies entirely within b
func (b Bounds) ContainsBounds(other Bounds) bool {
	return b.Contains(other.South, other.West) && b.Contains(other.North, other.East)
}

// Center returns the midpoint of the box
func (b Bounds) Center() Point {
	return Point{
		Lat: (b.South + b.North) / 2,
		Lon: (b.West + b.East) / 2,
	}
}

// Pad expands each edge outward by frac of the corresponding span. A
// degenerate box (single point) stays degenerate because its spans are zero.
func (b Bounds) Pad(frac float64) Bounds {
	latBuffer := (b.North - b.South) * frac
	lonBuffer := (b.East - b.West) * frac
	return Bounds{
		South: b.South - latBuffer,
		West:  b.West - lonBuffer,
		North: b.North + latBuffer,
		East:  b.East + lonBuffer,
	}
}

// ClampTo restricts the box to limit, each edge independently
func (b Bounds) ClampTo(limit Bounds) Bounds {
	return Bounds{
		South: math.Max(b.South, limit.South),
		West:  math.Max(b.West, limit.West),
		North: math.Min(b.North, limit.North),
		East:  math.Min(b.East, limit.East),
	}
}

// BoundsFor computes the minimal box enclosing all valid points. The second
// return value is false when no point has usable coordinates.
func BoundsFor(points []Point) (Bounds, bool) {
	found := false
	var b Bounds
	for _, p := range points {
		if !p.Valid() {
			continue
		}
		if !found {
			b = Bounds{South: p.Lat, North: p.Lat, West: p.Lon, East: p.Lon}
			found = true
			continue
		}
		b.South = math.Min(b.South, p.Lat)
		b.North = math.Max(b.North, p.Lat)
		b.West = math.Min(b.West, p.Lon)
		b.East = math.Max(b.East, p.Lon)
	}
	return b, found
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
