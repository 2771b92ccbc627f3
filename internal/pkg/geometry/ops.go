package geometry

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/pkg/geospatial"
)

const (
	squareMetersPerAcre = 4046.8564224

	// overlapGrid is the per-axis sample count used by OverlapPercent.
	overlapGrid = 48
)

// Bounds returns the bounding box of g.
func Bounds(g domain.ParcelGeometry) domain.Bounds {
	if g.IsZero() {
		return domain.Bounds{}
	}
	return domain.BoundsFromOrb(g.Orb().Bound())
}

// ExpandBounds grows b by meters on every side.
func ExpandBounds(b domain.Bounds, meters float64) domain.Bounds {
	minLat, minLon, maxLat, maxLon := geospatial.ExpandBox(b.MinLat, b.MinLon, b.MaxLat, b.MaxLon, meters)
	return domain.Bounds{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon}
}

// Centroid returns the area-weighted centroid of g, falling back to the
// bounding box center for degenerate (zero-area) rings.
func Centroid(g domain.ParcelGeometry) domain.GeoPoint {
	if g.IsZero() {
		return domain.GeoPoint{}
	}
	c, area := planar.CentroidArea(g.Orb())
	if area == 0 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		c = g.Orb().Bound().Center()
	}
	return domain.PointFromOrb(c)
}

// AreaSquareMeters returns the geodesic area of g.
func AreaSquareMeters(g domain.ParcelGeometry) float64 {
	if g.IsZero() {
		return 0
	}
	return math.Abs(geo.Area(g.Orb()))
}

// Acres returns the area of g in acres.
func Acres(g domain.ParcelGeometry) float64 {
	return AreaSquareMeters(g) / squareMetersPerAcre
}

// CentroidDistance returns the distance in meters between the centroids of a and b.
func CentroidDistance(a, b domain.ParcelGeometry) float64 {
	ca, cb := Centroid(a), Centroid(b)
	return geospatial.Haversine(ca.Lat, ca.Lon, cb.Lat, cb.Lon)
}

// OverlapPercent estimates the share (0-100) of subject's area covered by
// parcel. The estimate samples a regular grid over subject's bounding box.
func OverlapPercent(subject, parcel domain.ParcelGeometry) float64 {
	if subject.IsZero() || parcel.IsZero() {
		return 0
	}
	sb, pb := subject.Orb().Bound(), parcel.Orb().Bound()
	if !sb.Intersects(pb) {
		return 0
	}
	sm, pm := subject.AsMultiPolygon(), parcel.AsMultiPolygon()

	dx := (sb.Max.X() - sb.Min.X()) / overlapGrid
	dy := (sb.Max.Y() - sb.Min.Y()) / overlapGrid
	var inSubject, inBoth int
	for i := 0; i < overlapGrid; i++ {
		for j := 0; j < overlapGrid; j++ {
			pt := orb.Point{sb.Min.X() + (float64(i)+0.5)*dx, sb.Min.Y() + (float64(j)+0.5)*dy}
			if !planar.MultiPolygonContains(sm, pt) {
				continue
			}
			inSubject++
			if pb.Contains(pt) && planar.MultiPolygonContains(pm, pt) {
				inBoth++
			}
		}
	}
	if inSubject == 0 {
		return 0
	}
	return 100 * float64(inBoth) / float64(inSubject)
}

// Contains reports whether p lies inside g.
func Contains(g domain.ParcelGeometry, p domain.GeoPoint) bool {
	if g.IsZero() {
		return false
	}
	return planar.MultiPolygonContains(g.AsMultiPolygon(), p.Orb())
}

// DistanceMeters returns the distance from p to the nearest edge of g, or 0
// when g contains p. It uses a local equirectangular projection around p,
// accurate to well under a meter at parcel scale.
func DistanceMeters(g domain.ParcelGeometry, p domain.GeoPoint) float64 {
	if g.IsZero() {
		return math.Inf(1)
	}
	if Contains(g, p) {
		return 0
	}
	kx := geospatial.MetersPerDegreeLat * math.Cos(p.Lat*math.Pi/180)
	ky := geospatial.MetersPerDegreeLat
	src := g.AsMultiPolygon()
	local := make(orb.MultiPolygon, len(src))
	for i, poly := range src {
		local[i] = make(orb.Polygon, len(poly))
		for j, ring := range poly {
			r := make(orb.Ring, len(ring))
			for k, pt := range ring {
				r[k] = orb.Point{(pt[0] - p.Lon) * kx, (pt[1] - p.Lat) * ky}
			}
			local[i][j] = r
		}
	}
	return planar.DistanceFrom(local, orb.Point{0, 0})
}

// Hash returns a stable SHA-256 fingerprint of g. Coordinates are rounded to
// 1e-7 degrees (about 1cm) so that round-tripping through storage does not
// change the hash.
func Hash(g domain.ParcelGeometry) string {
	var b strings.Builder
	b.WriteString(string(g.Kind()))
	for _, p := range g.Polygons() {
		b.WriteString("|P")
		for _, r := range p {
			b.WriteString("|R")
			for _, pt := range r {
				b.WriteByte('|')
				b.WriteString(strconv.FormatFloat(pt[0], 'f', 7, 64))
				b.WriteByte(',')
				b.WriteString(strconv.FormatFloat(pt[1], 'f', 7, 64))
			}
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
