package affine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/pkg/affine"
)

func pair(x, y, lon, lat float64) domain.ControlPointPair {
	return domain.ControlPointPair{Image: domain.Pixel{X: x, Y: y}, Map: domain.GeoPoint{Lon: lon, Lat: lat}}
}

// A plat scanned at roughly 0.3m per pixel with the image y axis pointing south.
func houstonPairs() []domain.ControlPointPair {
	return []domain.ControlPointPair{
		pair(100, 100, -95.3700, 29.7610),
		pair(1900, 150, -95.3644, 29.7609),
		pair(200, 1400, -95.3697, 29.7575),
	}
}

func TestSolve_UnitTranslation(t *testing.T) {
	tr, err := affine.Solve([]domain.ControlPointPair{
		pair(0, 0, 0, 0),
		pair(10, 0, 1, 0),
		pair(0, 10, 0, 1),
	})
	require.NoError(t, err)
	got := tr.Apply(domain.Pixel{X: 10, Y: 10})
	assert.InDelta(t, 1, got.Lon, 1e-12)
	assert.InDelta(t, 1, got.Lat, 1e-12)
	assert.Equal(t, domain.SolveExact, tr.Method)
}

func TestSolve_ExactFitHasZeroResidual(t *testing.T) {
	tr, err := affine.Solve(houstonPairs())
	require.NoError(t, err)
	assert.InDelta(t, 0, tr.RMSErrorMeters, 1e-3)
	assert.Equal(t, domain.BandHigh, tr.Band)
	assert.Equal(t, 3, tr.PointCount)
}

func TestSolve_ConsistentFourthPoint(t *testing.T) {
	exact, err := affine.Solve(houstonPairs())
	require.NoError(t, err)

	fourth := domain.Pixel{X: 1700, Y: 1300}
	want := exact.Apply(fourth)
	pts := append(houstonPairs(), pair(fourth.X, fourth.Y, want.Lon, want.Lat))

	tr, err := affine.Solve(pts)
	require.NoError(t, err)
	assert.Equal(t, domain.SolveLeastSquares, tr.Method)
	assert.InDelta(t, 0, tr.RMSErrorMeters, 1e-3)
}

func TestSolve_ResidualGrowsWithOffset(t *testing.T) {
	exact, err := affine.Solve(houstonPairs())
	require.NoError(t, err)
	fourth := domain.Pixel{X: 1700, Y: 1300}
	base := exact.Apply(fourth)

	prev := -1.0
	for _, off := range []float64{0, 0.00001, 0.00005, 0.0001, 0.0005} {
		pts := append(houstonPairs(), pair(fourth.X, fourth.Y, base.Lon+off, base.Lat))
		tr, err := affine.Solve(pts)
		require.NoError(t, err)
		assert.Greater(t, tr.RMSErrorMeters, prev, "offset %g", off)
		prev = tr.RMSErrorMeters
	}
}

func TestSolve_Insufficient(t *testing.T) {
	_, err := affine.Solve(houstonPairs()[:2])
	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)

	_, err = affine.Solve(nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)
}

func TestSolve_CollinearImage(t *testing.T) {
	_, err := affine.Solve([]domain.ControlPointPair{
		pair(0, 0, -95.37, 29.76),
		pair(100, 100, -95.36, 29.76),
		pair(200, 200, -95.37, 29.75),
	})
	assert.ErrorIs(t, err, domain.ErrCollinearImage)
}

func TestSolve_CollinearMap(t *testing.T) {
	_, err := affine.Solve([]domain.ControlPointPair{
		pair(0, 0, -95.37, 29.76),
		pair(100, 0, -95.36, 29.77),
		pair(0, 100, -95.35, 29.78),
	})
	assert.ErrorIs(t, err, domain.ErrCollinearMap)
}

func TestSolve_DuplicatePoints(t *testing.T) {
	_, err := affine.Solve([]domain.ControlPointPair{
		pair(5, 5, -95.37, 29.76),
		pair(5, 5, -95.37, 29.76),
		pair(5, 5, -95.37, 29.76),
		pair(5, 5, -95.37, 29.76),
	})
	assert.ErrorIs(t, err, domain.ErrCollinearImage)
}

func TestBandFor_Monotonic(t *testing.T) {
	assert.Equal(t, domain.BandHigh, affine.BandFor(0))
	assert.Equal(t, domain.BandHigh, affine.BandFor(1.99))
	assert.Equal(t, domain.BandMedium, affine.BandFor(2))
	assert.Equal(t, domain.BandMedium, affine.BandFor(9.99))
	assert.Equal(t, domain.BandLow, affine.BandFor(10))
	assert.Equal(t, domain.BandLow, affine.BandFor(500))
}

func TestImageCorners(t *testing.T) {
	tr, err := affine.Solve([]domain.ControlPointPair{
		pair(0, 0, 0, 0),
		pair(10, 0, 1, 0),
		pair(0, 10, 0, 1),
	})
	require.NoError(t, err)

	poly := affine.ImageCorners(tr, 20, 10)
	require.Len(t, poly, 1)
	ring := poly[0]
	require.Len(t, ring, 5)
	assert.Equal(t, ring[0], ring[4])
	assert.InDelta(t, 2, ring[2].Lon(), 1e-12)
	assert.InDelta(t, 1, ring[2].Lat(), 1e-12)
}

func TestProjectPolygon_KeepsClosedRing(t *testing.T) {
	tr, err := affine.Solve(houstonPairs())
	require.NoError(t, err)
	poly := affine.ProjectPolygon(tr, [][]domain.Pixel{{
		{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 0},
	}})
	assert.Len(t, poly[0], 4)
}
