package geometry_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/pkg/geometry"
)

func raw(t *testing.T, s string) geometry.RawGeometry {
	t.Helper()
	var g geometry.RawGeometry
	require.NoError(t, json.Unmarshal([]byte(s), &g))
	return g
}

func square(minX, minY, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minX, minY}, {minX + size, minY}, {minX + size, minY + size}, {minX, minY + size}, {minX, minY},
	}}
}

func TestValidate_SinglePointRing(t *testing.T) {
	res := geometry.Validate(raw(t, `{"type":"Polygon","coordinates":[[[0,0]]]}`))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Reason, "at least 4 points")
}

func TestValidate_ValidPolygon(t *testing.T) {
	res := geometry.Validate(raw(t, `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`))
	assert.True(t, res.Valid)
	assert.Empty(t, res.Reason)
}

func TestValidate_Rejections(t *testing.T) {
	cases := map[string]string{
		`{"type":"Point","coordinates":[0,0]}`:              "unsupported geometry type",
		`{"type":"LineString","coordinates":[[0,0],[1,1]]}`: "unsupported geometry type",
		`{"type":"Polygon"}`:                                "missing coordinates",
		`{"type":"Polygon","coordinates":null}`:             "missing coordinates",
		`{"coordinates":[[[0,0]]]}`:                         "missing geometry type",
		`{"type":"Polygon","coordinates":[]}`:               "at least one ring",
		`{"type":"Polygon","coordinates":"nope"}`:           "malformed coordinates",
		`{"type":"MultiPolygon","coordinates":[]}`:          "at least one polygon",
		`{"type":"MultiPolygon","coordinates":[[[[0,0],[1,1]]]]}`: "at least 4 points",
		`{"type":"Polygon","coordinates":[[[0],[1,0],[1,1],[0,0]]]}`: "longitude and latitude",
	}
	for in, want := range cases {
		res := geometry.Validate(raw(t, in))
		assert.False(t, res.Valid, in)
		assert.Contains(t, res.Reason, want, in)
	}
}

func TestValidate_MultiPolygonFirstOnly(t *testing.T) {
	// The second polygon is degenerate but only the first is checked.
	res := geometry.Validate(raw(t, `{"type":"MultiPolygon","coordinates":[
		[[[0,0],[1,0],[1,1],[0,0]]],
		[[[5,5]]]
	]}`))
	assert.True(t, res.Valid)
}

func TestParse_NarrowsToUnion(t *testing.T) {
	g, err := geometry.Parse(raw(t, `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`))
	require.NoError(t, err)
	assert.Equal(t, domain.GeometryPolygon, g.Kind())
	p, ok := g.Polygon()
	require.True(t, ok)
	assert.Len(t, p[0], 5)

	_, err = geometry.Parse(raw(t, `{"type":"Polygon","coordinates":[[[0,0]]]}`))
	assert.Error(t, err)
}

func TestValidateParcel(t *testing.T) {
	assert.True(t, geometry.ValidateParcel(domain.NewPolygon(square(0, 0, 1))).Valid)
	assert.False(t, geometry.ValidateParcel(domain.ParcelGeometry{}).Valid)
	assert.False(t, geometry.ValidateParcel(domain.NewPolygon(orb.Polygon{orb.Ring{{0, 0}}})).Valid)
	assert.False(t, geometry.ValidateParcel(domain.NewMultiPolygon(nil)).Valid)
}

func TestGeoJSONRoundTrip(t *testing.T) {
	g := domain.NewMultiPolygon(orb.MultiPolygon{square(-95.4, 29.7, 0.001)})
	data, err := json.Marshal(g)
	require.NoError(t, err)

	var back domain.ParcelGeometry
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, domain.GeometryMultiPolygon, back.Kind())
	assert.Equal(t, geometry.Hash(g), geometry.Hash(back))
}

func TestOverlapPercent(t *testing.T) {
	parcel := domain.NewPolygon(square(0, 0, 0.001))

	same := geometry.OverlapPercent(parcel, parcel)
	assert.InDelta(t, 100, same, 0.01)

	half := domain.NewPolygon(square(0.0005, 0, 0.001))
	assert.InDelta(t, 50, geometry.OverlapPercent(half, parcel), 3)

	apart := domain.NewPolygon(square(1, 1, 0.001))
	assert.Zero(t, geometry.OverlapPercent(apart, parcel))
}

func TestCentroidAndDistance(t *testing.T) {
	a := domain.NewPolygon(square(-95.37, 29.76, 0.001))
	c := geometry.Centroid(a)
	assert.InDelta(t, 29.7605, c.Lat, 1e-7)
	assert.InDelta(t, -95.3695, c.Lon, 1e-7)
	assert.InDelta(t, 0, geometry.CentroidDistance(a, a), 1e-6)
	assert.True(t, geometry.Contains(a, c))
}

func TestAcres(t *testing.T) {
	// ~100m x ~96m near Houston, a bit over 2 acres.
	g := domain.NewPolygon(square(-95.37, 29.76, 0.001))
	acres := geometry.Acres(g)
	assert.Greater(t, acres, 2.0)
	assert.Less(t, acres, 3.0)
}

func TestHash_Stable(t *testing.T) {
	a := domain.NewPolygon(square(0, 0, 1))
	b := domain.NewPolygon(square(0, 0, 1))
	c := domain.NewPolygon(square(0, 0, 2))
	assert.Equal(t, geometry.Hash(a), geometry.Hash(b))
	assert.NotEqual(t, geometry.Hash(a), geometry.Hash(c))
	assert.Len(t, geometry.Hash(a), 64)
}

func TestDistanceMeters(t *testing.T) {
	g := domain.NewPolygon(square(-95.37, 29.76, 0.001))
	assert.Zero(t, geometry.DistanceMeters(g, domain.GeoPoint{Lat: 29.7605, Lon: -95.3695}))

	// 0.0005 degrees of latitude south of the southern edge is about 55.7m.
	d := geometry.DistanceMeters(g, domain.GeoPoint{Lat: 29.7595, Lon: -95.3695})
	assert.InDelta(t, 55.66, d, 0.5)

	assert.True(t, math.IsInf(geometry.DistanceMeters(domain.ParcelGeometry{}, domain.GeoPoint{}), 1))
}
