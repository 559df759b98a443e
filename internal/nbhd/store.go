package nbhd

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/somerville/nbhd-map/internal/layermap"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("not found")

// ListFilter narrows List. The zero value lists everything.
type ListFilter struct {
	Names []string
}

// Store is the read side the HTTP handlers depend on.
type Store interface {
	List(ctx context.Context, f ListFilter) ([]Neighborhood, error)
	Get(ctx context.Context, id uint) (Neighborhood, error)
	Containing(ctx context.Context, lng, lat float64) ([]Neighborhood, error)
	LatestRun(ctx context.Context) (ImportRun, error)
}

// GormStore implements Store and layermap.Sink on PostGIS.
type GormStore struct {
	db *gorm.DB
}

var (
	_ layermap.Sink              = (*GormStore)(nil)
	_ layermap.ProjectionChecker = (*GormStore)(nil)
)

func NewStore(d *gorm.DB) *GormStore {
	return &GormStore{db: d}
}

// Geometry is read back as plain WKB so Polygon.Scan never depends on the
// driver's text format for the geometry type.
const neighborhoodColumns = "id, oid, name, area, length, ST_AsBinary(geom) AS geom, import_run_id"

func (s *GormStore) List(ctx context.Context, f ListFilter) ([]Neighborhood, error) {
	q := s.db.WithContext(ctx).
		Model(&Neighborhood{}).
		Select(neighborhoodColumns).
		Order("id")
	if len(f.Names) > 0 {
		q = q.Where("name = ANY(?)", pq.Array(f.Names))
	}

	var out []Neighborhood
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list neighborhoods: %w", err)
	}
	return out, nil
}

func (s *GormStore) Get(ctx context.Context, id uint) (Neighborhood, error) {
	var n Neighborhood
	err := s.db.WithContext(ctx).
		Select(neighborhoodColumns).
		First(&n, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Neighborhood{}, ErrNotFound
	}
	if err != nil {
		return Neighborhood{}, fmt.Errorf("get neighborhood %d: %w", id, err)
	}
	return n, nil
}

// Containing performs a PostGIS point-in-polygon query for the
// neighborhoods that contain the lng/lat coordinate.
func (s *GormStore) Containing(ctx context.Context, lng, lat float64) ([]Neighborhood, error) {
	var out []Neighborhood
	err := s.db.WithContext(ctx).
		Select(neighborhoodColumns).
		Where("ST_Contains(geom, ST_SetSRID(ST_MakePoint(?, ?), 4326))", lng, lat).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("neighborhood lookup query failed: %w", err)
	}
	return out, nil
}

func (s *GormStore) LatestRun(ctx context.Context) (ImportRun, error) {
	var run ImportRun
	err := s.db.WithContext(ctx).Order("saved_at DESC NULLS LAST, started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ImportRun{}, ErrNotFound
	}
	if err != nil {
		return ImportRun{}, fmt.Errorf("latest import run: %w", err)
	}
	return run, nil
}

// importLockKey serializes imports across processes.
const importLockKey int64 = 0x6e626864

// Save writes one loader run in a single transaction. With opts.Replace
// the table is truncated first; otherwise rows are appended. Concurrent
// saves are serialized, and each run's saved_at is read under the lock so
// LatestRun always names the last committed data set.
func (s *GormStore) Save(ctx context.Context, run layermap.Summary, records []layermap.Record, opts layermap.SaveOptions) error {
	rows := make([]Neighborhood, 0, len(records))
	for _, r := range records {
		rows = append(rows, Neighborhood{
			OID:         r.OID,
			Name:        r.Name,
			Area:        r.Area,
			Length:      r.Length,
			Geom:        Polygon{Polygon: r.Geom, SRID: run.SourceSRID, Proj: run.SourceProjection},
			ImportRunID: run.ID,
		})
	}

	batch := opts.BatchSize
	if batch <= 0 {
		batch = 100
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`SELECT pg_advisory_xact_lock(?)`, importLockKey).Error; err != nil {
			return fmt.Errorf("acquire import lock: %w", err)
		}
		if opts.Replace {
			if err := tx.Exec(`TRUNCATE TABLE nbhd.neighborhoods RESTART IDENTITY`).Error; err != nil {
				return fmt.Errorf("truncate neighborhoods: %w", err)
			}
		}

		ir := runRecord(run, opts.Replace)
		if err := tx.Raw(`SELECT clock_timestamp()`).Scan(&ir.SavedAt).Error; err != nil {
			return fmt.Errorf("read commit time: %w", err)
		}
		if err := tx.Create(&ir).Error; err != nil {
			return fmt.Errorf("insert import run: %w", err)
		}

		if len(rows) > 0 {
			if err := tx.CreateInBatches(&rows, batch).Error; err != nil {
				return fmt.Errorf("insert neighborhoods: %w", err)
			}
		}
		return nil
	})
}

// ProjectionAgrees transforms a point in the layer's own coordinates both
// with the configured SRID and with the .prj WKT, and reports whether the
// two land on the same WGS84 location.
func (s *GormStore) ProjectionAgrees(ctx context.Context, srid int, wkt string, at orb.Point) (bool, error) {
	var dist float64
	err := s.db.WithContext(ctx).Raw(`SELECT ST_Distance(
		ST_Transform(ST_SetSRID(ST_MakePoint(?, ?), ?::integer), 4326),
		ST_Transform(ST_MakePoint(?, ?), ?::text, 4326::integer))`,
		at[0], at[1], srid, at[0], at[1], wkt).Scan(&dist).Error
	if err != nil {
		return false, fmt.Errorf("compare projections: %w", err)
	}
	return dist < projectionTolerance, nil
}

// projectionTolerance is in degrees, about 10 cm.
const projectionTolerance = 1e-6
