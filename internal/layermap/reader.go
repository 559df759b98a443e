package layermap

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"golang.org/x/text/encoding"
)

// MaxNameLength is the width of the neighborhood name column.
const MaxNameLength = 50

// Record is one converted feature, still in the layer's source SRID.
type Record struct {
	Row    int
	OID    int
	Name   string
	Area   float64
	Length float64
	Geom   orb.Polygon
}

// Reader walks a polygon shapefile and converts each feature with a Mapping.
//
//	r, err := layermap.Open("data/Neighborhoods.shp", layermap.DefaultMapping(), "")
//	defer r.Close()
//	for r.Next() {
//		rec, err := r.Record()
//		...
//	}
//	if err := r.Err(); err != nil { ... }
type Reader struct {
	shp        *shp.Reader
	dec        *encoding.Decoder
	charset    string
	projection string
	cols       map[string]int

	rec Record
	err error
}

// Open opens the .shp/.dbf pair at path and checks it against m: every
// mapped attribute must exist in the layer and the layer must hold polygons.
// charset overrides the layer's .cpg code page when non-empty.
func Open(path string, m Mapping, charset string) (*Reader, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	// go-shp derives the sibling file names in lowercase.
	ext := filepath.Ext(path)
	if ext != ".shp" {
		if strings.EqualFold(ext, ".shp") {
			return nil, fmt.Errorf("%s: shapefile sets must use lowercase extensions (.shp, .dbf, .prj)", path)
		}
		return nil, fmt.Errorf("%s: not a .shp file", path)
	}
	base := strings.TrimSuffix(path, ext)
	if _, err := os.Stat(base + ".dbf"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, ErrMissingDBF)
	}

	prj, err := readPRJ(base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	enc, encName, err := resolveCharset(base, charset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	sr, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}

	if sr.GeometryType != shp.POLYGON {
		sr.Close()
		return nil, fmt.Errorf("%s: %w: layer holds shape type %d, model field geom expects %s",
			path, ErrGeometryType, sr.GeometryType, GeomPolygon)
	}

	byName := map[string]int{}
	for i, f := range sr.Fields() {
		byName[fieldName(f)] = i
	}
	cols := make(map[string]int, 4)
	for _, f := range m.attributes() {
		i, ok := byName[f.source]
		if !ok {
			sr.Close()
			return nil, fmt.Errorf("%s: field %q: %w", path, f.source, ErrFieldMissing)
		}
		cols[f.model] = i
	}

	return &Reader{
		shp:        sr,
		dec:        enc.NewDecoder(),
		charset:    encName,
		projection: prj,
		cols:       cols,
	}, nil
}

// Charset is the attribute encoding in use.
func (r *Reader) Charset() string { return r.charset }

// Projection is the WKT of the layer's .prj file, or "" when the layer
// has none.
func (r *Reader) Projection() string { return r.projection }

func readPRJ(base string) (string, error) {
	b, err := os.ReadFile(base + ".prj")
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read projection: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Next advances to the next feature. Conversion errors do not stop
// iteration; they are returned by Record.
func (r *Reader) Next() bool {
	if !r.shp.Next() {
		return false
	}
	n, s := r.shp.Shape()
	r.rec, r.err = r.convert(n, s)
	return true
}

// Record returns the current feature or the *FeatureError that kept it
// from converting.
func (r *Reader) Record() (Record, error) { return r.rec, r.err }

// Err reports a read error that ended iteration early.
func (r *Reader) Err() error { return r.shp.Err() }

func (r *Reader) Close() error { return r.shp.Close() }

func (r *Reader) convert(n int, s shp.Shape) (Record, error) {
	rec := Record{Row: n}
	var err error

	if rec.OID, err = r.intField(n, "oid"); err != nil {
		return rec, err
	}
	if rec.Name, err = r.stringField(n, "name", MaxNameLength); err != nil {
		return rec, err
	}
	if rec.Area, err = r.floatField(n, "area"); err != nil {
		return rec, err
	}
	if rec.Length, err = r.floatField(n, "length"); err != nil {
		return rec, err
	}
	if rec.Geom, err = polygonFrom(s); err != nil {
		return rec, &FeatureError{Row: n, Field: "geom", Err: err}
	}
	return rec, nil
}

func (r *Reader) attribute(n int, model string) (string, error) {
	raw := r.shp.ReadAttribute(n, r.cols[model])
	s, err := r.dec.String(raw)
	if err != nil {
		return "", &FeatureError{Row: n, Field: model, Err: fmt.Errorf("decode %s: %w", r.charset, err)}
	}
	return strings.TrimSpace(strings.Trim(s, "\x00")), nil
}

func (r *Reader) intField(n int, model string) (int, error) {
	s, err := r.attribute(n, model)
	if err != nil {
		return 0, err
	}
	if s == "" {
		return 0, &FeatureError{Row: n, Field: model, Err: errors.New("value is empty")}
	}
	// Both paths share the int32 range of the integer column.
	if v, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int(v), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &FeatureError{Row: n, Field: model, Err: fmt.Errorf("could not convert %q to an integer", s)}
	}
	if f != math.Trunc(f) {
		return 0, &FeatureError{Row: n, Field: model, Err: fmt.Errorf("%q is not an integer", s)}
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, &FeatureError{Row: n, Field: model, Err: fmt.Errorf("%q is out of the integer range", s)}
	}
	return int(f), nil
}

func (r *Reader) floatField(n int, model string) (float64, error) {
	s, err := r.attribute(n, model)
	if err != nil {
		return 0, err
	}
	if s == "" {
		return 0, &FeatureError{Row: n, Field: model, Err: errors.New("value is empty")}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &FeatureError{Row: n, Field: model, Err: fmt.Errorf("could not convert %q to a float", s)}
	}
	return f, nil
}

func (r *Reader) stringField(n int, model string, max int) (string, error) {
	s, err := r.attribute(n, model)
	if err != nil {
		return "", err
	}
	if c := utf8.RuneCountInString(s); max > 0 && c > max {
		return "", &FeatureError{Row: n, Field: model, Err: fmt.Errorf("%d characters exceeds max length %d", c, max)}
	}
	return s, nil
}

func fieldName(f shp.Field) string {
	return strings.TrimRight(string(f.Name[:]), "\x00 ")
}

// polygonFrom turns a shapefile polygon into a single orb.Polygon. The
// shapefile stores outer rings clockwise and holes counter-clockwise; a
// shape with more than one outer ring is a multipolygon and is rejected.
func polygonFrom(s shp.Shape) (orb.Polygon, error) {
	p, ok := s.(*shp.Polygon)
	if !ok {
		if _, null := s.(*shp.Null); null || s == nil {
			return nil, errors.New("feature has no geometry")
		}
		return nil, fmt.Errorf("%w: got %T", ErrGeometryType, s)
	}

	rings, err := splitRings(p.Parts, p.Points)
	if err != nil {
		return nil, err
	}
	if len(rings) == 1 {
		return orb.Polygon{rings[0]}, nil
	}

	var outer []orb.Ring
	var holes []orb.Ring
	for i, ring := range rings {
		switch ring.Orientation() {
		case orb.CW:
			outer = append(outer, ring)
		case orb.CCW:
			holes = append(holes, ring)
		default:
			return nil, fmt.Errorf("ring %d is degenerate", i)
		}
	}
	if len(outer) != 1 {
		return nil, fmt.Errorf("%w: shape has %d outer rings, a polygon holds exactly one", ErrGeometryType, len(outer))
	}
	return append(orb.Polygon{outer[0]}, holes...), nil
}

func splitRings(parts []int32, points []shp.Point) ([]orb.Ring, error) {
	if len(parts) == 0 {
		return nil, errors.New("polygon has no rings")
	}
	rings := make([]orb.Ring, 0, len(parts))
	for i := range parts {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if start < 0 || end > len(points) || start >= end {
			return nil, fmt.Errorf("ring %d has invalid bounds [%d:%d]", i, start, end)
		}
		ring := make(orb.Ring, 0, end-start+1)
		for _, pt := range points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}
		if len(ring) < 4 {
			return nil, fmt.Errorf("ring %d has %d points, need at least 4", i, len(ring))
		}
		rings = append(rings, ring)
	}
	return rings, nil
}
