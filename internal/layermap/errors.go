package layermap

import (
	"errors"
	"fmt"
)

var (
	ErrMissingDBF     = errors.New("shapefile has no .dbf attribute table")
	ErrFieldMissing   = errors.New("field does not exist in layer")
	ErrGeometryType   = errors.New("invalid geometry type")
	ErrNoFeatures     = errors.New("no features to save")
	ErrInvalidFeature = errors.New("invalid feature")
	ErrRefused        = errors.New("refusing to run")

	ErrNoProjection       = errors.New("layer has no .prj and no source SRID is configured")
	ErrProjectionMismatch = errors.New("configured source SRID does not match the layer .prj")
)

// FeatureError reports a single feature that could not be converted.
// It matches ErrInvalidFeature with errors.Is.
type FeatureError struct {
	Row   int
	Field string
	Err   error
}

func (e *FeatureError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("feature %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("feature %d: field %s: %v", e.Row, e.Field, e.Err)
}

func (e *FeatureError) Unwrap() error { return e.Err }

func (e *FeatureError) Is(target error) bool { return target == ErrInvalidFeature }
