package layermap_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

// feature is one row of a test shapefile. Attribute values are written
// as-is, so a string can stand in for a number to produce bad input.
type feature struct {
	oid    interface{}
	name   string
	area   interface{}
	length interface{}
	rings  [][]shp.Point
}

// square returns a closed clockwise ring, the shapefile outer-ring order.
func square(x, y, size float64) []shp.Point {
	return []shp.Point{
		{X: x, Y: y},
		{X: x, Y: y + size},
		{X: x + size, Y: y + size},
		{X: x + size, Y: y},
		{X: x, Y: y},
	}
}

// reversed flips a ring's winding, turning an outer ring into a hole.
func reversed(ring []shp.Point) []shp.Point {
	out := make([]shp.Point, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

func somervilleFields() []shp.Field {
	return []shp.Field{
		shp.NumberField("OBJECTID", 10),
		shp.StringField("NBHD", 80),
		shp.FloatField("SHAPE_Area", 19, 6),
		shp.FloatField("SHAPE_Leng", 19, 6),
	}
}

// writeShapefile writes a polygon shapefile into a temp dir and returns
// the .shp path.
func writeShapefile(t *testing.T, fields []shp.Field, features []feature) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Neighborhoods.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields(fields))

	for _, f := range features {
		poly := shp.Polygon(*shp.NewPolyLine(f.rings))
		row := int(w.Write(&poly))
		require.NoError(t, w.WriteAttribute(row, 0, f.oid))
		require.NoError(t, w.WriteAttribute(row, 1, f.name))
		require.NoError(t, w.WriteAttribute(row, 2, f.area))
		require.NoError(t, w.WriteAttribute(row, 3, f.length))
	}
	closeShapefile(t, w, path)
	return path
}

// closeShapefile closes w and moves the attribute table to <base>.dbf.
// go-shp's writer names it <base>dbf, without the dot.
func closeShapefile(t *testing.T, w *shp.Writer, shpPath string) {
	t.Helper()
	w.Close()
	base := strings.TrimSuffix(shpPath, ".shp")
	if _, err := os.Stat(base + "dbf"); err == nil {
		require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	}
	_, err := os.Stat(base + ".dbf")
	require.NoError(t, err, "fixture has no attribute table")
}

func writeCPG(t *testing.T, shpPath, codePage string) {
	t.Helper()
	base := shpPath[:len(shpPath)-len(filepath.Ext(shpPath))]
	require.NoError(t, os.WriteFile(base+".cpg", []byte(codePage), 0o644))
}

// massMainlandPRJ is the ESRI .prj text of EPSG:2249.
const massMainlandPRJ = `PROJCS["NAD_1983_StatePlane_Massachusetts_Mainland_FIPS_2001_Feet",GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Lambert_Conformal_Conic"],PARAMETER["False_Easting",656166.6666666665],PARAMETER["False_Northing",2460625.0],PARAMETER["Central_Meridian",-71.5],PARAMETER["Standard_Parallel_1",41.71666666666667],PARAMETER["Standard_Parallel_2",42.68333333333333],PARAMETER["Latitude_Of_Origin",41.0],UNIT["Foot_US",0.3048006096012192]]`

func writePRJ(t *testing.T, shpPath, wkt string) {
	t.Helper()
	base := shpPath[:len(shpPath)-len(filepath.Ext(shpPath))]
	require.NoError(t, os.WriteFile(base+".prj", []byte(wkt+"\n"), 0o644))
}

func somervilleFeatures() []feature {
	return []feature{
		{oid: 1, name: "Spring Hill", area: 5023711.25, length: 9761.5, rings: [][]shp.Point{square(0, 0, 10)}},
		{oid: 2, name: "Ten Hills", area: 3187320.5, length: 7654.125, rings: [][]shp.Point{square(20, 0, 10)}},
		{oid: 3, name: "Winter Hill", area: 4500000, length: 8800, rings: [][]shp.Point{
			square(40, 0, 10),
			reversed(square(42, 2, 2)),
		}},
	}
}
