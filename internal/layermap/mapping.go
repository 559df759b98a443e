package layermap

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// GeomPolygon is the only geometry type a neighborhood boundary accepts.
const GeomPolygon = "POLYGON"

// Mapping maps model fields (the YAML keys) onto shapefile fields. Geom
// names the expected OGR geometry type rather than a DBF column.
type Mapping struct {
	OID    string `yaml:"oid"`
	Name   string `yaml:"name"`
	Area   string `yaml:"area"`
	Length string `yaml:"length"`
	Geom   string `yaml:"geom"`
}

// DefaultMapping is the field table of the Somerville neighborhood layer.
func DefaultMapping() Mapping {
	return Mapping{
		OID:    "OBJECTID",
		Name:   "NBHD",
		Area:   "SHAPE_Area",
		Length: "SHAPE_Leng",
		Geom:   GeomPolygon,
	}
}

// LoadMapping reads a YAML mapping file. Every model field must be present
// and unknown keys are rejected.
func LoadMapping(path string) (Mapping, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Mapping{}, fmt.Errorf("read mapping: %w", err)
	}
	var m Mapping
	if err := yaml.UnmarshalWithOptions(b, &m, yaml.DisallowUnknownField()); err != nil {
		return Mapping{}, fmt.Errorf("parse mapping %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return Mapping{}, fmt.Errorf("mapping %s: %w", path, err)
	}
	return m, nil
}

// Validate checks that every model field is mapped and that the geometry
// type is one a polygon column can hold.
func (m Mapping) Validate() error {
	for _, f := range m.attributes() {
		if strings.TrimSpace(f.source) == "" {
			return fmt.Errorf("model field %q is not mapped", f.model)
		}
	}
	if !strings.EqualFold(strings.TrimSpace(m.Geom), GeomPolygon) {
		return fmt.Errorf("%w: model field geom expects %s, mapping names %q", ErrGeometryType, GeomPolygon, m.Geom)
	}
	return nil
}

type fieldRef struct {
	model  string
	source string
}

// attributes lists the DBF-backed fields in model order.
func (m Mapping) attributes() []fieldRef {
	return []fieldRef{
		{"oid", m.OID},
		{"name", m.Name},
		{"area", m.Area},
		{"length", m.Length},
	}
}
