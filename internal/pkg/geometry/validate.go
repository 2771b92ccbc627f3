// Package geometry validates and measures parcel boundaries.
//
// Validation is deliberately shallow: a Polygon needs an outer ring of at
// least four positions, and for a MultiPolygon only the first polygon is
// inspected. Full OGC validity (self-intersection, ring orientation) is a
// separate concern for consumers that need it.
package geometry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/samirrijal/siteintel/internal/core/domain"
)

// MinRingPoints is the smallest closed ring: three vertices plus closure.
const MinRingPoints = 4

// RawGeometry is the untyped GeoJSON-shaped input accepted at the API edge.
type RawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Result is the outcome of validation. Reason is set whenever Valid is false.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

func invalid(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks raw against the parcel geometry rules.
func Validate(raw RawGeometry) Result {
	_, res := decode(raw)
	return res
}

// Parse validates raw and narrows it to a ParcelGeometry.
func Parse(raw RawGeometry) (domain.ParcelGeometry, error) {
	g, res := decode(raw)
	if !res.Valid {
		return domain.ParcelGeometry{}, fmt.Errorf("invalid geometry: %s", res.Reason)
	}
	return g, nil
}

func decode(raw RawGeometry) (domain.ParcelGeometry, Result) {
	if raw.Type == "" {
		return domain.ParcelGeometry{}, invalid("missing geometry type")
	}
	if raw.Type != string(domain.GeometryPolygon) && raw.Type != string(domain.GeometryMultiPolygon) {
		return domain.ParcelGeometry{}, invalid("unsupported geometry type %q: must be Polygon or MultiPolygon", raw.Type)
	}
	trimmed := bytes.TrimSpace(raw.Coordinates)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return domain.ParcelGeometry{}, invalid("missing coordinates")
	}

	if raw.Type == string(domain.GeometryPolygon) {
		var rings [][][]float64
		if err := json.Unmarshal(trimmed, &rings); err != nil {
			return domain.ParcelGeometry{}, invalid("malformed coordinates: %v", err)
		}
		if res := checkPolygon(rings, "polygon"); !res.Valid {
			return domain.ParcelGeometry{}, res
		}
		return domain.NewPolygon(toPolygon(rings)), Result{Valid: true}
	}

	var polys [][][][]float64
	if err := json.Unmarshal(trimmed, &polys); err != nil {
		return domain.ParcelGeometry{}, invalid("malformed coordinates: %v", err)
	}
	if len(polys) == 0 {
		return domain.ParcelGeometry{}, invalid("multipolygon must have at least one polygon")
	}
	if res := checkPolygon(polys[0], "first polygon"); !res.Valid {
		return domain.ParcelGeometry{}, res
	}
	mp := make(orb.MultiPolygon, 0, len(polys))
	for _, p := range polys {
		mp = append(mp, toPolygon(p))
	}
	return domain.NewMultiPolygon(mp), Result{Valid: true}
}

func checkPolygon(rings [][][]float64, what string) Result {
	if len(rings) == 0 {
		return invalid("%s must have at least one ring", what)
	}
	outer := rings[0]
	if len(outer) < MinRingPoints {
		return invalid("outer ring must have at least %d points, got %d", MinRingPoints, len(outer))
	}
	for i, pos := range outer {
		if len(pos) < 2 {
			return invalid("outer ring position %d must have longitude and latitude", i)
		}
	}
	return Result{Valid: true}
}

func toPolygon(rings [][][]float64) orb.Polygon {
	p := make(orb.Polygon, 0, len(rings))
	for _, r := range rings {
		ring := make(orb.Ring, 0, len(r))
		for _, pos := range r {
			if len(pos) < 2 {
				continue
			}
			ring = append(ring, orb.Point{pos[0], pos[1]})
		}
		p = append(p, ring)
	}
	return p
}

// ValidateParcel applies the same rules to an already narrowed geometry.
func ValidateParcel(g domain.ParcelGeometry) Result {
	switch g.Kind() {
	case domain.GeometryPolygon:
		p, _ := g.Polygon()
		return checkRings(p, "polygon")
	case domain.GeometryMultiPolygon:
		mp, _ := g.MultiPolygon()
		if len(mp) == 0 {
			return invalid("multipolygon must have at least one polygon")
		}
		return checkRings(mp[0], "first polygon")
	}
	return invalid("missing geometry")
}

func checkRings(p orb.Polygon, what string) Result {
	if len(p) == 0 {
		return invalid("%s must have at least one ring", what)
	}
	if len(p[0]) < MinRingPoints {
		return invalid("outer ring must have at least %d points, got %d", MinRingPoints, len(p[0]))
	}
	return Result{Valid: true}
}
