package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/pkg/affine"
	"github.com/samirrijal/siteintel/internal/pkg/geometry"
	"github.com/samirrijal/siteintel/internal/pkg/metrics"
)

// DefaultMaxResidualMeters rejects calibrations whose fit is worse than this.
const DefaultMaxResidualMeters = 25.0

// ErrNoBoundary is returned when a calibration request carries neither a
// drawn boundary nor image dimensions.
var ErrNoBoundary = errors.New("boundary or image dimensions are required")

// CalibrateRequest anchors a survey image to the map and describes the area
// to project. Boundary takes precedence over the image frame.
type CalibrateRequest struct {
	Points      []domain.ControlPointPair `json:"points"`
	Boundary    [][]domain.Pixel          `json:"boundary,omitempty"`
	ImageWidth  float64                   `json:"image_width,omitempty"`
	ImageHeight float64                   `json:"image_height,omitempty"`
	County      string                    `json:"county,omitempty"`
}

// CalibrationResult is a solved transform, the projected boundary and the
// parcels it lands on.
type CalibrationResult struct {
	Transform domain.AffineTransform `json:"transform"`
	Projected domain.ParcelGeometry  `json:"projected"`
	Match     *domain.MatchResult    `json:"match"`
}

// GeometryMatcher finds parcels under a projected boundary.
type GeometryMatcher interface {
	MatchGeometry(ctx context.Context, boundary domain.ParcelGeometry, county string) (*domain.MatchResult, error)
}

// CalibrationService turns control points into a georeferenced boundary and
// re-queries the parcel store with it.
type CalibrationService struct {
	matcher     GeometryMatcher
	maxResidual float64
}

// NewCalibrationService creates a CalibrationService.
func NewCalibrationService(matcher GeometryMatcher, maxResidual float64) *CalibrationService {
	if maxResidual <= 0 {
		maxResidual = DefaultMaxResidualMeters
	}
	return &CalibrationService{matcher: matcher, maxResidual: maxResidual}
}

// Calibrate solves the transform, projects the boundary and matches it. A
// residual above the limit returns ErrResidualTooHigh together with the
// solved transform so the caller can show the operator how far off it is.
func (s *CalibrationService) Calibrate(ctx context.Context, req CalibrateRequest) (*CalibrationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := affine.Solve(req.Points)
	if err != nil {
		return nil, fmt.Errorf("solve calibration: %w", err)
	}
	metrics.CalibrationResidual.Observe(t.RMSErrorMeters)
	res := &CalibrationResult{Transform: t}

	if t.RMSErrorMeters > s.maxResidual {
		return res, fmt.Errorf("%w: %.1fm > %.1fm", domain.ErrResidualTooHigh, t.RMSErrorMeters, s.maxResidual)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case len(req.Boundary) > 0:
		res.Projected = domain.NewPolygon(affine.ProjectPolygon(t, req.Boundary))
	case req.ImageWidth > 0 && req.ImageHeight > 0:
		res.Projected = domain.NewPolygon(affine.ImageCorners(t, req.ImageWidth, req.ImageHeight))
	default:
		return res, ErrNoBoundary
	}
	if v := geometry.ValidateParcel(res.Projected); !v.Valid {
		return res, fmt.Errorf("%w: projected boundary %s", domain.ErrInvalidGeometry, v.Reason)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	match, err := s.matcher.MatchGeometry(ctx, res.Projected, req.County)
	res.Match = match
	if err != nil {
		return res, err
	}
	slog.Info("survey calibrated",
		"points", t.PointCount,
		"method", t.Method,
		"rms_m", t.RMSErrorMeters,
		"band", t.Band,
		"status", match.Status,
	)
	return res, nil
}
