package nbhd

import (
	"context"

	"github.com/somerville/nbhd-map/internal/cache"
	"github.com/somerville/nbhd-map/internal/layermap"
	"github.com/somerville/nbhd-map/internal/logger"
)

// Reloader re-imports the configured shapefile.
type Reloader func(ctx context.Context) (layermap.Summary, error)

// Import runs the loader into sink and drops the cached list once the
// new rows are committed.
func Import(ctx context.Context, cfg layermap.Config, sink layermap.Sink, c *cache.Cache, log *logger.Logger) (layermap.Summary, error) {
	if log == nil {
		log = logger.Nop()
	}
	sum, err := layermap.Run(ctx, cfg, sink, log)
	if err != nil {
		return sum, err
	}
	if err := c.Invalidate(ctx); err != nil {
		log.Warn("Cache invalidation failed", "error", err)
	}
	return sum, nil
}

// NewReloader returns a Reloader that always replaces the existing rows,
// whatever cfg.Replace says.
func NewReloader(cfg layermap.Config, sink layermap.Sink, c *cache.Cache, log *logger.Logger) Reloader {
	cfg.Replace = true
	return func(ctx context.Context) (layermap.Summary, error) {
		return Import(ctx, cfg, sink, c, log)
	}
}

func runRecord(s layermap.Summary, replaced bool) ImportRun {
	return ImportRun{
		ID:               s.ID,
		Source:           s.Source,
		SourceSRID:       s.SourceSRID,
		SourceProjection: s.SourceProjection,
		Charset:          s.Charset,
		FeaturesRead:     s.Read,
		FeaturesSaved:    s.Saved,
		FeaturesSkipped:  s.Skipped,
		Replaced:         replaced,
		StartedAt:        s.StartedAt,
		FinishedAt:       s.FinishedAt,
	}
}
