package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Orb returns the point in lon/lat order.
func (p GeoPoint) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// PointFromOrb converts an orb point (lon, lat) to a GeoPoint.
func PointFromOrb(p orb.Point) GeoPoint {
	return GeoPoint{Lat: p.Lat(), Lon: p.Lon()}
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// BoundsFromOrb converts an orb.Bound to Bounds.
func BoundsFromOrb(b orb.Bound) Bounds {
	return Bounds{MinLat: b.Min.Lat(), MinLon: b.Min.Lon(), MaxLat: b.Max.Lat(), MaxLon: b.Max.Lon()}
}

// Contains reports whether p lies inside the box (inclusive).
func (b Bounds) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// GeometryKind is the discriminator of ParcelGeometry.
type GeometryKind string

const (
	GeometryPolygon      GeometryKind = "Polygon"
	GeometryMultiPolygon GeometryKind = "MultiPolygon"
)

// ErrUnsupportedGeometry is returned when decoding a geometry that is neither
// a Polygon nor a MultiPolygon.
var ErrUnsupportedGeometry = errors.New("geometry must be Polygon or MultiPolygon")

// ParcelGeometry is a parcel boundary in lon/lat (WGS 84). It is either a
// Polygon or a MultiPolygon; the zero value is an empty geometry.
type ParcelGeometry struct {
	kind    GeometryKind
	polygon orb.Polygon
	multi   orb.MultiPolygon
}

// NewPolygon wraps an orb polygon.
func NewPolygon(p orb.Polygon) ParcelGeometry {
	return ParcelGeometry{kind: GeometryPolygon, polygon: p}
}

// NewMultiPolygon wraps an orb multipolygon.
func NewMultiPolygon(mp orb.MultiPolygon) ParcelGeometry {
	return ParcelGeometry{kind: GeometryMultiPolygon, multi: mp}
}

// Kind returns the geometry discriminator, or "" for the zero value.
func (g ParcelGeometry) Kind() GeometryKind { return g.kind }

// IsZero reports whether no geometry is set.
func (g ParcelGeometry) IsZero() bool { return g.kind == "" }

// Polygon returns the polygon and true if the geometry is a Polygon.
func (g ParcelGeometry) Polygon() (orb.Polygon, bool) {
	return g.polygon, g.kind == GeometryPolygon
}

// MultiPolygon returns the multipolygon and true if the geometry is a MultiPolygon.
func (g ParcelGeometry) MultiPolygon() (orb.MultiPolygon, bool) {
	return g.multi, g.kind == GeometryMultiPolygon
}

// Polygons returns every polygon of the geometry.
func (g ParcelGeometry) Polygons() []orb.Polygon {
	switch g.kind {
	case GeometryPolygon:
		return []orb.Polygon{g.polygon}
	case GeometryMultiPolygon:
		return []orb.Polygon(g.multi)
	}
	return nil
}

// Orb returns the underlying orb geometry, or nil for the zero value.
func (g ParcelGeometry) Orb() orb.Geometry {
	switch g.kind {
	case GeometryPolygon:
		return g.polygon
	case GeometryMultiPolygon:
		return g.multi
	}
	return nil
}

// AsMultiPolygon returns the geometry as a multipolygon, which is how the
// parcel store persists it.
func (g ParcelGeometry) AsMultiPolygon() orb.MultiPolygon {
	return orb.MultiPolygon(g.Polygons())
}

// MarshalJSON encodes the geometry as GeoJSON.
func (g ParcelGeometry) MarshalJSON() ([]byte, error) {
	if g.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(geojson.NewGeometry(g.Orb()))
}

// UnmarshalJSON decodes a GeoJSON Polygon or MultiPolygon.
func (g *ParcelGeometry) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*g = ParcelGeometry{}
		return nil
	}
	parsed, err := ParseGeometryJSON(data)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// ParseGeometryJSON narrows a GeoJSON geometry to a ParcelGeometry. It does
// not check ring sizes; see the geometry package for validation.
func ParseGeometryJSON(data []byte) (ParcelGeometry, error) {
	gj, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return ParcelGeometry{}, fmt.Errorf("decode geojson: %w", err)
	}
	switch v := gj.Geometry().(type) {
	case orb.Polygon:
		return NewPolygon(v), nil
	case orb.MultiPolygon:
		return NewMultiPolygon(v), nil
	default:
		return ParcelGeometry{}, fmt.Errorf("%w, got %s", ErrUnsupportedGeometry, gj.Type)
	}
}
