package nbhd

import (
	"fmt"

	"github.com/somerville/nbhd-map/internal/db"
	"gorm.io/gorm"
)

// Init prepares the nbhd schema: PostGIS, tables and the spatial index.
func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, "nbhd"); err != nil {
		return fmt.Errorf("ensure schema nbhd: %w", err)
	}

	if err := db.EnsureExtension(d, "postgis"); err != nil {
		return fmt.Errorf("enable postgis extension: %w", err)
	}

	if err := d.AutoMigrate(
		&ImportRun{},
		&Neighborhood{},
	); err != nil {
		return fmt.Errorf("auto-migrate nbhd tables: %w", err)
	}

	if err := d.Exec(`
		CREATE INDEX IF NOT EXISTS neighborhoods_geom_gist
		ON nbhd.neighborhoods USING GIST (geom);
	`).Error; err != nil {
		return fmt.Errorf("create neighborhoods_geom_gist: %w", err)
	}

	return nil
}
