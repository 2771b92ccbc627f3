// Package affine fits the six-parameter affine transform that georeferences
// a scanned survey from user-marked control points.
package affine

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/pkg/geospatial"
)

// Residual thresholds (meters) for the confidence band. Bands are monotonic:
// a larger RMS never yields a better band.
const (
	HighMaxMeters   = 2.0
	MediumMaxMeters = 10.0
)

// MinPoints is the number of control points that exactly determines the system.
const MinPoints = 3

// collinearRatio is the smallest accepted ratio between the minor and major
// variance of a point cloud. Below it the points are treated as a line.
const collinearRatio = 1e-6

// BandFor buckets an RMS residual into a confidence band.
func BandFor(rmsMeters float64) domain.ConfidenceBand {
	switch {
	case rmsMeters < HighMaxMeters:
		return domain.BandHigh
	case rmsMeters < MediumMaxMeters:
		return domain.BandMedium
	default:
		return domain.BandLow
	}
}

// Solve fits lon = A*x + B*y + C and lat = D*x + E*y + F. Three points are
// solved exactly; more points are fitted by least squares. Degenerate inputs
// are rejected before any solve is attempted.
func Solve(pairs []domain.ControlPointPair) (domain.AffineTransform, error) {
	if len(pairs) < MinPoints {
		return domain.AffineTransform{}, domain.ErrInsufficientPoints
	}

	img := make([][2]float64, len(pairs))
	geo := make([][2]float64, len(pairs))
	for i, p := range pairs {
		img[i] = [2]float64{p.Image.X, p.Image.Y}
		geo[i] = [2]float64{p.Map.Lon, p.Map.Lat}
	}
	if collinear(img) {
		return domain.AffineTransform{}, domain.ErrCollinearImage
	}
	if collinear(geo) {
		return domain.AffineTransform{}, domain.ErrCollinearMap
	}

	var (
		m      [3][3]float64
		bx, by [3]float64
		method domain.SolveMethod
	)
	if len(pairs) == MinPoints {
		method = domain.SolveExact
		for i, p := range pairs {
			m[i] = [3]float64{p.Image.X, p.Image.Y, 1}
			bx[i] = p.Map.Lon
			by[i] = p.Map.Lat
		}
	} else {
		// Normal equations: (AᵀA) p = Aᵀb.
		method = domain.SolveLeastSquares
		for _, p := range pairs {
			row := [3]float64{p.Image.X, p.Image.Y, 1}
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					m[i][j] += row[i] * row[j]
				}
				bx[i] += row[i] * p.Map.Lon
				by[i] += row[i] * p.Map.Lat
			}
		}
	}

	px, ok := solve3(m, bx)
	if !ok {
		return domain.AffineTransform{}, domain.ErrSingular
	}
	py, ok := solve3(m, by)
	if !ok {
		return domain.AffineTransform{}, domain.ErrSingular
	}

	t := domain.AffineTransform{
		A: px[0], B: px[1], C: px[2],
		D: py[0], E: py[1], F: py[2],
		PointCount: len(pairs),
		Method:     method,
	}
	t.RMSErrorMeters = RMSError(t, pairs)
	t.Band = BandFor(t.RMSErrorMeters)
	return t, nil
}

// RMSError re-projects every control point through t and returns the root
// mean square distance, in meters, to its true map coordinate.
func RMSError(t domain.AffineTransform, pairs []domain.ControlPointPair) float64 {
	if len(pairs) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pairs {
		got := t.Apply(p.Image)
		d := geospatial.Haversine(got.Lat, got.Lon, p.Map.Lat, p.Map.Lon)
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(pairs)))
}

// ProjectPolygon maps pixel rings to a lon/lat polygon. Rings are closed if
// the input does not repeat its first vertex.
func ProjectPolygon(t domain.AffineTransform, rings [][]domain.Pixel) orb.Polygon {
	poly := make(orb.Polygon, 0, len(rings))
	for _, r := range rings {
		ring := make(orb.Ring, 0, len(r)+1)
		for _, px := range r {
			ring = append(ring, t.Apply(px).Orb())
		}
		if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}
		poly = append(poly, ring)
	}
	return poly
}

// ImageCorners projects the full image frame.
func ImageCorners(t domain.AffineTransform, width, height float64) orb.Polygon {
	return ProjectPolygon(t, [][]domain.Pixel{{
		{X: 0, Y: 0}, {X: width, Y: 0}, {X: width, Y: height}, {X: 0, Y: height},
	}})
}

// collinear reports whether the points span less than two dimensions, using
// the eigenvalues of their covariance matrix.
func collinear(pts [][2]float64) bool {
	n := float64(len(pts))
	var mx, my float64
	for _, p := range pts {
		mx += p[0]
		my += p[1]
	}
	mx /= n
	my /= n

	var sxx, syy, sxy float64
	for _, p := range pts {
		dx, dy := p[0]-mx, p[1]-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	tr := sxx + syy
	det := sxx*syy - sxy*sxy
	disc := math.Sqrt(math.Max(tr*tr/4-det, 0))
	major := tr/2 + disc
	minor := tr/2 - disc
	if major <= 0 {
		return true
	}
	return minor/major < collinearRatio
}

// solve3 solves m·x = b by Gaussian elimination with partial pivoting.
func solve3(m [3][3]float64, b [3]float64) ([3]float64, bool) {
	var scale float64
	for i := range m {
		for j := range m[i] {
			scale = math.Max(scale, math.Abs(m[i][j]))
		}
	}
	if scale == 0 {
		return [3]float64{}, false
	}
	eps := scale * 1e-12

	for col := 0; col < 3; col++ {
		pivot := col
		for r := col + 1; r < 3; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < eps {
			return [3]float64{}, false
		}
		m[col], m[pivot] = m[pivot], m[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < 3; r++ {
			f := m[r][col] / m[col][col]
			for c := col; c < 3; c++ {
				m[r][c] -= f * m[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	var x [3]float64
	for i := 2; i >= 0; i-- {
		s := b[i]
		for j := i + 1; j < 3; j++ {
			s -= m[i][j] * x[j]
		}
		x[i] = s / m[i][i]
	}
	return x, true
}
