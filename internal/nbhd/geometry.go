package nbhd

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"github.com/paulmach/orb/encoding/wkb"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SRID of every stored geometry (WGS84 lon/lat).
const SRID = 4326

// Polygon is a PostGIS polygon column. SRID is the projection of the
// coordinates held in memory; on write they are transformed to 4326 by
// the database when it differs. With SRID 0 and Proj set, Proj (a .prj
// WKT) is the source projection instead.
type Polygon struct {
	orb.Polygon
	SRID int
	Proj string
}

func (Polygon) GormDataType() string {
	return "geometry"
}

func (p Polygon) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	b, err := wkb.Marshal(p.Polygon)
	if err != nil {
		db.AddError(fmt.Errorf("encode polygon: %w", err))
		return clause.Expr{SQL: "NULL"}
	}
	switch {
	case p.SRID == 0 && p.Proj != "":
		return clause.Expr{
			SQL:  "ST_Transform(ST_GeomFromWKB(?), ?::text, ?::integer)",
			Vars: []interface{}{b, p.Proj, SRID},
		}
	case p.SRID == 0 || p.SRID == SRID:
		return clause.Expr{SQL: "ST_SetSRID(ST_GeomFromWKB(?), ?)", Vars: []interface{}{b, SRID}}
	}
	return clause.Expr{
		SQL:  "ST_Transform(ST_SetSRID(ST_GeomFromWKB(?), ?), ?)",
		Vars: []interface{}{b, p.SRID, SRID},
	}
}

// Scan accepts WKB (ST_AsBinary) as well as the hex EWKB PostGIS returns
// for a bare geometry column.
func (p *Polygon) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = Polygon{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan polygon: unsupported type %T", src)
	}

	if len(data) > 0 && data[0] == '0' {
		decoded, err := hex.DecodeString(string(data))
		if err != nil {
			return fmt.Errorf("scan polygon: %w", err)
		}
		data = decoded
	}

	g, srid, err := ewkb.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("scan polygon: %w", err)
	}
	if srid == 0 {
		srid = SRID
	}

	switch t := g.(type) {
	case orb.Polygon:
		*p = Polygon{Polygon: t, SRID: srid}
	case orb.MultiPolygon:
		if len(t) != 1 {
			return fmt.Errorf("scan polygon: multipolygon with %d parts", len(t))
		}
		*p = Polygon{Polygon: t[0], SRID: srid}
	default:
		return fmt.Errorf("scan polygon: got %s", g.GeoJSONType())
	}
	return nil
}
