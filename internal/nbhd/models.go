package nbhd

import (
	"time"

	"github.com/google/uuid"
)

// Neighborhood is one boundary polygon of the Somerville neighborhood layer.
type Neighborhood struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// ObjectID, Neighborhood Name, Shape Area and Shape Length of the
	// source layer.
	OID    int     `gorm:"column:oid;not null" json:"oid"`
	Name   string  `gorm:"size:50;not null" json:"name"`
	Area   float64 `gorm:"column:area;not null" json:"area"`
	Length float64 `gorm:"column:length;not null" json:"length"`

	// Stored in WGS84 whatever the source layer's projection was.
	Geom Polygon `gorm:"type:geometry(Polygon,4326);not null" json:"-"`

	ImportRunID uuid.UUID `gorm:"type:uuid;index" json:"import_run_id"`
}

func (Neighborhood) TableName() string {
	return "nbhd.neighborhoods"
}

func (n Neighborhood) String() string {
	return n.Name
}

// ImportRun records the provenance of one loader run.
type ImportRun struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Source           string    `json:"source"`
	SourceSRID       int       `gorm:"column:source_srid" json:"source_srid"`
	SourceProjection string    `gorm:"type:text" json:"source_projection,omitempty"`
	Charset          string    `json:"charset"`
	FeaturesRead     int       `json:"features_read"`
	FeaturesSaved    int       `json:"features_saved"`
	FeaturesSkipped  int       `json:"features_skipped"`
	Replaced         bool      `json:"replaced"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	// SavedAt is taken inside the import lock, so it orders runs by commit.
	SavedAt time.Time `gorm:"index" json:"saved_at"`
}

func (ImportRun) TableName() string {
	return "nbhd.import_runs"
}
