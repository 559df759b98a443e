package nbhd_test

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/somerville/nbhd-map/internal/nbhd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolygonGormValue(t *testing.T) {
	p := box(-71.1, 42.38, 0.01)

	expr := p.GormValue(context.Background(), nil)
	assert.Equal(t, "ST_SetSRID(ST_GeomFromWKB(?), ?)", expr.SQL)
	require.Len(t, expr.Vars, 2)
	assert.Equal(t, nbhd.SRID, expr.Vars[1])

	p.SRID = 2249
	expr = p.GormValue(context.Background(), nil)
	assert.Equal(t, "ST_Transform(ST_SetSRID(ST_GeomFromWKB(?), ?), ?)", expr.SQL)
	assert.Equal(t, []interface{}{expr.Vars[0], 2249, nbhd.SRID}, expr.Vars)

	prj := box(-71.1, 42.38, 0.01)
	prj.SRID = 0
	prj.Proj = `PROJCS["NAD_1983_StatePlane_Massachusetts_Mainland_FIPS_2001_Feet"]`
	fromPRJ := prj.GormValue(context.Background(), nil)
	assert.Equal(t, "ST_Transform(ST_GeomFromWKB(?), ?::text, ?::integer)", fromPRJ.SQL)
	assert.Equal(t, []interface{}{fromPRJ.Vars[0], prj.Proj, nbhd.SRID}, fromPRJ.Vars)

	prj.SRID = 2249
	assert.Equal(t, expr.SQL, prj.GormValue(context.Background(), nil).SQL, "a configured SRID wins over the .prj")

	g, err := wkb.Unmarshal(expr.Vars[0].([]byte))
	require.NoError(t, err)
	assert.True(t, orb.Equal(p.Polygon, g))
}

func TestPolygonScan(t *testing.T) {
	want := box(-71.1, 42.38, 0.01).Polygon

	plain, err := wkb.Marshal(want)
	require.NoError(t, err)
	withSRID, err := ewkb.Marshal(want, 4326)
	require.NoError(t, err)
	multi, err := ewkb.Marshal(orb.MultiPolygon{want}, 4326)
	require.NoError(t, err)

	for name, src := range map[string]interface{}{
		"wkb":          plain,
		"ewkb":         withSRID,
		"hex ewkb":     hex.EncodeToString(withSRID),
		"single multi": multi,
	} {
		var p nbhd.Polygon
		require.NoError(t, p.Scan(src), name)
		assert.True(t, orb.Equal(want, p.Polygon), name)
		assert.Equal(t, nbhd.SRID, p.SRID, name)
	}
}

func TestPolygonScan_Rejects(t *testing.T) {
	point, err := wkb.Marshal(orb.Point{1, 2})
	require.NoError(t, err)
	two, err := wkb.Marshal(orb.MultiPolygon{box(0, 0, 1).Polygon, box(5, 5, 1).Polygon})
	require.NoError(t, err)

	var p nbhd.Polygon
	assert.Error(t, p.Scan(point))
	assert.Error(t, p.Scan(two))
	assert.Error(t, p.Scan(42))

	require.NoError(t, p.Scan(nil))
	assert.Nil(t, p.Polygon)
}
