package shapefile

import (
	"path/filepath"
	"testing"

	shp "github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/siteintel/internal/core/domain"
)

// cw returns a clockwise square ring with its lower-left corner at (x, y).
func cw(x, y, size float64) []shp.Point {
	return []shp.Point{{X: x, Y: y}, {X: x, Y: y + size}, {X: x + size, Y: y + size}, {X: x + size, Y: y}, {X: x, Y: y}}
}

func ccw(x, y, size float64) []shp.Point {
	return []shp.Point{{X: x, Y: y}, {X: x + size, Y: y}, {X: x + size, Y: y + size}, {X: x, Y: y + size}, {X: x, Y: y}}
}

func polygon(rings ...[]shp.Point) *shp.Polygon {
	var (
		parts  []int32
		points []shp.Point
	)
	for _, r := range rings {
		parts = append(parts, int32(len(points)))
		points = append(points, r...)
	}
	return &shp.Polygon{
		Box:       shp.BBoxFromPoints(points),
		NumParts:  int32(len(parts)),
		NumPoints: int32(len(points)),
		Parts:     parts,
		Points:    points,
	}
}

func TestPolygonGeometry(t *testing.T) {
	t.Run("hole joins outer ring", func(t *testing.T) {
		g := PolygonGeometry(polygon(cw(-95.37, 29.76, 0.001), ccw(-95.3698, 29.7602, 0.0002)))
		require.Equal(t, domain.GeometryPolygon, g.Kind())
		p, _ := g.Polygon()
		assert.Len(t, p, 2)
	})

	t.Run("two outer rings", func(t *testing.T) {
		g := PolygonGeometry(polygon(cw(-95.37, 29.76, 0.001), cw(-95.36, 29.76, 0.001)))
		require.Equal(t, domain.GeometryMultiPolygon, g.Kind())
		mp, _ := g.MultiPolygon()
		assert.Len(t, mp, 2)
	})

	t.Run("empty", func(t *testing.T) {
		assert.True(t, PolygonGeometry(&shp.Polygon{}).IsZero())
	})
}

func writeShapefile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parcels.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("HCAD_NUM", 20),
		shp.StringField("SITE_ADDR", 60),
		shp.FloatField("ACREAGE", 12, 4),
	}))

	rows := []struct {
		id, addr string
		acres    float64
		poly     *shp.Polygon
	}{
		{"0660640130017", "1100 MAIN ST", 0.25, polygon(cw(-95.3660, 29.7568, 0.0008))},
		{"", "NO ID", 0, polygon(cw(-95.3650, 29.7568, 0.0008))},
		{"0660640130018", "1102 MAIN ST", 0, polygon(cw(-95.3640, 29.7568, 0.0008))},
	}
	for i, r := range rows {
		w.Write(r.poly)
		require.NoError(t, w.WriteAttribute(i, 0, r.id))
		require.NoError(t, w.WriteAttribute(i, 1, r.addr))
		require.NoError(t, w.WriteAttribute(i, 2, r.acres))
	}
	w.Close()
	return path
}

func TestReader_Next(t *testing.T) {
	path := writeShapefile(t)
	r, err := Open(path, "harris", FieldMap{ID: "hcad_num", Address: "SITE_ADDR", Acreage: "ACREAGE"})
	require.NoError(t, err)
	defer r.Close()

	batch, err := r.Next(10)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	assert.Equal(t, "0660640130017", batch[0].SourceParcelID)
	assert.Equal(t, "harris", batch[0].County)
	assert.Equal(t, "1100 MAIN ST", batch[0].SitusAddress)
	assert.InDelta(t, 0.25, batch[0].Acreage, 1e-9)
	// acreage falls back to the geometry
	assert.Greater(t, batch[1].Acreage, 0.0)

	assert.Equal(t, Stats{Read: 2, Skipped: 1}, r.Stats())

	rest, err := r.Next(10)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestOpen_MissingIDField(t *testing.T) {
	path := writeShapefile(t)
	_, err := Open(path, "harris", FieldMap{ID: "APN"})
	require.Error(t, err)

	_, err = Open(path, "harris", FieldMap{})
	require.Error(t, err)
}
