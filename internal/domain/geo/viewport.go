package geo

// Default map framing used whenever there is nothing to fit
var (
	DefaultCenter = Point{Lat: 37.773972, Lon: -122.431297}
)

const (
	// DefaultZoom is the city-wide zoom level
	DefaultZoom = 12

	// MaxFitZoom caps how far a fit may zoom in, so a single incident or a
	// tight cluster still renders with surrounding context
	MaxFitZoom = 14

	// fitPadding expands the incident box by this fraction per side before
	// clamping, keeping markers off the viewport edge
	fitPadding = 0.05
)

// Fit is a map framing instruction. When Default is true the view layer
// should set the fixed center and zoom; otherwise it should fit Bounds
// without zooming past MaxZoom.
type Fit struct {
	Default bool   `json:"default"`
	Center  Point  `json:"center"`
	Zoom    int    `json:"zoom"`
	Bounds  Bounds `json:"bounds"`
	MaxZoom int    `json:"max_zoom"`
}

// DefaultFit returns the fallback framing
func DefaultFit() Fit {
	return Fit{
		Default: true,
		Center:  DefaultCenter,
		Zoom:    DefaultZoom,
	}
}

// FitViewport computes the framing for a set of incident coordinates. Points
// with non-finite coordinates are ignored. The resulting box is padded by 5%
// per side and clamped to the city box edge by edge; it never extends outside
// the city regardless of input spread. With no usable points, or when the
// input is so malformed that no sane box can be produced, the fixed default
// framing is returned instead of an error.
func FitViewport(points []Point, city Bounds) Fit {
	if len(points) == 0 {
		return DefaultFit()
	}

	box, ok := BoundsFor(points)
	if !ok {
		return DefaultFit()
	}

	clamped := box.Pad(fitPadding).ClampTo(city)

	// Every point outside the city inverts the clamped box
	if !clamped.Valid() {
		return DefaultFit()
	}

	return Fit{
		Center:  clamped.Center(),
		Zoom:    DefaultZoom,
		Bounds:  clamped,
		MaxZoom: MaxFitZoom,
	}
}
