package nbhd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DefaultFields are the properties the list view serializes when the
// request does not ask for others.
var DefaultFields = []string{"name"}

var knownFields = map[string]struct{}{
	"name":   {},
	"oid":    {},
	"area":   {},
	"length": {},
}

// ParseFields reads a comma-separated "fields" parameter. An empty value
// means DefaultFields.
func ParseFields(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultFields, nil
	}

	var out []string
	seen := map[string]bool{}
	for _, f := range strings.Split(raw, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		if _, ok := knownFields[f]; !ok {
			return nil, fmt.Errorf("unknown field %q", f)
		}
		seen[f] = true
		out = append(out, f)
	}
	if len(out) == 0 {
		return DefaultFields, nil
	}
	return out, nil
}

func isDefaultFields(fields []string) bool {
	return len(fields) == 1 && fields[0] == DefaultFields[0]
}

// Feature renders one neighborhood. The primary key is always present as
// the string property "pk".
func Feature(n Neighborhood, fields []string) *geojson.Feature {
	f := geojson.NewFeature(n.Geom.Polygon)
	f.Properties["pk"] = strconv.FormatUint(uint64(n.ID), 10)
	for _, name := range fields {
		switch name {
		case "name":
			f.Properties["name"] = n.Name
		case "oid":
			f.Properties["oid"] = n.OID
		case "area":
			f.Properties["area"] = n.Area
		case "length":
			f.Properties["length"] = n.Length
		}
	}
	return f
}

// FeatureCollection renders ns in WGS84 with a named crs member and the
// bounding box of every geometry.
func FeatureCollection(ns []Neighborhood, fields []string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{
		"crs": map[string]interface{}{
			"type":       "name",
			"properties": map[string]string{"name": fmt.Sprintf("EPSG:%d", SRID)},
		},
	}

	var bound orb.Bound
	for i, n := range ns {
		fc.Append(Feature(n, fields))
		if i == 0 {
			bound = n.Geom.Bound()
		} else {
			bound = bound.Union(n.Geom.Bound())
		}
	}
	if len(ns) > 0 {
		fc.BBox = geojson.NewBBox(bound)
	}
	return fc
}
