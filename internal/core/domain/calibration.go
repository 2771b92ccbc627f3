package domain

// Pixel is a coordinate in image space (origin top-left).
type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ControlPointPair anchors an image pixel to a map coordinate.
type ControlPointPair struct {
	Image Pixel    `json:"image"`
	Map   GeoPoint `json:"map"`
	Label string   `json:"label,omitempty"`
}

// SolveMethod records which solver produced a transform.
type SolveMethod string

const (
	SolveExact        SolveMethod = "exact"
	SolveLeastSquares SolveMethod = "least_squares"
)

// AffineTransform maps image pixels to map coordinates:
//
//	lon = A*x + B*y + C
//	lat = D*x + E*y + F
type AffineTransform struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
	E float64 `json:"e"`
	F float64 `json:"f"`

	RMSErrorMeters float64        `json:"rms_error_m"`
	Band           ConfidenceBand `json:"band"`
	PointCount     int            `json:"point_count"`
	Method         SolveMethod    `json:"method"`
}

// Apply projects an image pixel to a map coordinate.
func (t AffineTransform) Apply(p Pixel) GeoPoint {
	return GeoPoint{
		Lon: t.A*p.X + t.B*p.Y + t.C,
		Lat: t.D*p.X + t.E*p.Y + t.F,
	}
}
