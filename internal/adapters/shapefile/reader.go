// Package shapefile reads county parcel layers distributed as ESRI
// shapefiles. Coordinates must already be WGS84 longitude/latitude.
package shapefile

import (
	"fmt"
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/pkg/geometry"
)

// FieldMap names the DBF columns that carry parcel attributes. Only ID is
// required; an empty name skips that attribute.
type FieldMap struct {
	ID          string
	Address     string
	Owner       string
	Acreage     string
	Lot         string
	Block       string
	Subdivision string
}

// Stats counts what a read produced.
type Stats struct {
	Read    int
	Skipped int
}

// Reader streams parcels out of one shapefile.
type Reader struct {
	r       *shp.Reader
	county  string
	columns map[string]int
	fields  FieldMap
	stats   Stats
}

// Open opens path and resolves the field map against its DBF header.
func Open(path, county string, fields FieldMap) (*Reader, error) {
	if fields.ID == "" {
		return nil, fmt.Errorf("id field is required")
	}
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	columns := make(map[string]int)
	for i, f := range r.Fields() {
		columns[strings.ToUpper(strings.TrimSpace(f.String()))] = i
	}
	if _, ok := columns[strings.ToUpper(fields.ID)]; !ok {
		r.Close()
		return nil, fmt.Errorf("shapefile %s has no field %q", path, fields.ID)
	}
	return &Reader{r: r, county: county, columns: columns, fields: fields}, nil
}

// Close releases the underlying files.
func (r *Reader) Close() { r.r.Close() }

// Stats reports how many features were read and skipped so far.
func (r *Reader) Stats() Stats { return r.stats }

// Next returns up to n parcels. It returns an empty slice at the end of the
// file. Features that are not polygons, have no identifier or fail geometry
// validation are skipped.
func (r *Reader) Next(n int) ([]domain.ParcelRecord, error) {
	var out []domain.ParcelRecord
	for len(out) < n && r.r.Next() {
		idx, shape := r.r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			r.stats.Skipped++
			continue
		}
		g := PolygonGeometry(poly)
		if v := geometry.ValidateParcel(g); !v.Valid {
			r.stats.Skipped++
			continue
		}
		p := domain.ParcelRecord{
			SourceParcelID: r.attr(idx, r.fields.ID),
			County:         r.county,
			SitusAddress:   r.attr(idx, r.fields.Address),
			OwnerName:      r.attr(idx, r.fields.Owner),
			Legal: domain.LegalDescription{
				Lot:         r.attr(idx, r.fields.Lot),
				Block:       r.attr(idx, r.fields.Block),
				Subdivision: r.attr(idx, r.fields.Subdivision),
			},
			Geometry: g,
		}
		if p.SourceParcelID == "" {
			r.stats.Skipped++
			continue
		}
		if acres, err := strconv.ParseFloat(r.attr(idx, r.fields.Acreage), 64); err == nil && acres > 0 {
			p.Acreage = acres
		} else {
			p.Acreage = geometry.Acres(g)
		}
		r.stats.Read++
		out = append(out, p)
	}
	if err := r.r.Err(); err != nil {
		return out, fmt.Errorf("read shapefile: %w", err)
	}
	return out, nil
}

func (r *Reader) attr(row int, field string) string {
	if field == "" {
		return ""
	}
	col, ok := r.columns[strings.ToUpper(field)]
	if !ok {
		return ""
	}
	return strings.TrimSpace(strings.Trim(r.r.ReadAttribute(row, col), "\x00"))
}

// PolygonGeometry converts shapefile rings to a parcel geometry. Clockwise
// rings start a new polygon and counter-clockwise rings are holes of the
// polygon before them.
func PolygonGeometry(poly *shp.Polygon) domain.ParcelGeometry {
	var mp orb.MultiPolygon
	for i := range poly.Parts {
		start := int(poly.Parts[i])
		end := len(poly.Points)
		if i+1 < len(poly.Parts) {
			end = int(poly.Parts[i+1])
		}
		if start >= end || end > len(poly.Points) {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for _, pt := range poly.Points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			mp[len(mp)-1] = append(mp[len(mp)-1], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}
	switch len(mp) {
	case 0:
		return domain.ParcelGeometry{}
	case 1:
		return domain.NewPolygon(mp[0])
	}
	return domain.NewMultiPolygon(mp)
}
