package layermap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/somerville/nbhd-map/internal/config"
	"github.com/somerville/nbhd-map/internal/logger"
	"github.com/somerville/nbhd-map/internal/metrics"
)

// Config drives one loader run.
type Config struct {
	Shapefile string
	Mapping   Mapping
	// SourceSRID is the SRID of the shapefile coordinates. Zero means the
	// layer's .prj is used. Either way the database transforms to 4326 on
	// insert.
	SourceSRID int
	Charset    string
	// Strict aborts on the first bad feature and saves nothing. Otherwise
	// bad features are logged and skipped.
	Strict  bool
	Verbose bool
	// Replace deletes every existing neighborhood before saving. Without it
	// the features are appended.
	Replace   bool
	BatchSize int
	// Progress logs a line every Progress features; 0 disables it.
	Progress int
}

// NewConfig builds a run Config from the loader settings, reading the
// mapping file when one is configured.
func NewConfig(l config.Loader) (Config, error) {
	if err := l.Validate(); err != nil {
		return Config{}, err
	}
	m := DefaultMapping()
	if l.MappingFile != "" {
		var err error
		if m, err = LoadMapping(l.MappingFile); err != nil {
			return Config{}, err
		}
	}
	return Config{
		Shapefile:  l.Shapefile,
		Mapping:    m,
		SourceSRID: l.SourceSRID,
		Charset:    l.Charset,
		Strict:     l.Strict,
		Verbose:    l.Verbose,
		Replace:    l.Replace,
		BatchSize:  l.BatchSize,
		Progress:   l.Progress,
	}, nil
}

// Summary describes a finished (or failed) run.
type Summary struct {
	ID         uuid.UUID
	Source     string
	SourceSRID int
	// SourceProjection is the WKT of the layer's .prj, empty without one.
	SourceProjection string
	Charset          string
	Read             int
	Saved            int
	Skipped          int
	StartedAt        time.Time
	FinishedAt       time.Time
}

func (s Summary) Duration() time.Duration { return s.FinishedAt.Sub(s.StartedAt) }

type SaveOptions struct {
	Replace   bool
	BatchSize int
}

// Sink persists converted records. Save must be all-or-nothing.
type Sink interface {
	Save(ctx context.Context, run Summary, records []Record, opts SaveOptions) error
}

// ProjectionChecker is implemented by sinks that can tell whether an SRID
// and a .prj WKT place the point at the same spot.
type ProjectionChecker interface {
	ProjectionAgrees(ctx context.Context, srid int, wkt string, at orb.Point) (bool, error)
}

// Run reads every feature of cfg.Shapefile, converts it with cfg.Mapping
// and hands the valid records to sink in one call.
func Run(ctx context.Context, cfg Config, sink Sink, log *logger.Logger) (Summary, error) {
	if log == nil {
		log = logger.Nop()
	}
	if sink == nil {
		return Summary{}, fmt.Errorf("%w: no sink to save into", ErrRefused)
	}
	log = log.With("shapefile", cfg.Shapefile)

	sum := Summary{
		ID:         uuid.New(),
		Source:     filepath.Base(cfg.Shapefile),
		SourceSRID: cfg.SourceSRID,
		StartedAt:  time.Now().UTC(),
	}

	records, err := readAll(ctx, cfg, &sum, log)
	if err != nil {
		return finish(sum, err)
	}
	if err := checkProjection(ctx, cfg, sum, sink, records[0], log); err != nil {
		return finish(sum, err)
	}

	sum.Saved = len(records)
	sum.FinishedAt = time.Now().UTC()
	if err := sink.Save(ctx, sum, records, SaveOptions{Replace: cfg.Replace, BatchSize: cfg.BatchSize}); err != nil {
		sum.Saved = 0
		return finish(sum, fmt.Errorf("save neighborhoods: %w", err))
	}

	if cfg.Verbose {
		for _, rec := range records {
			log.Info("Saved: "+rec.Name, "oid", rec.OID)
		}
	}
	log.Info("Import finished",
		"run_id", sum.ID,
		"read", sum.Read,
		"saved", sum.Saved,
		"skipped", sum.Skipped,
		"duration_ms", sum.Duration().Milliseconds(),
	)
	return finish(sum, nil)
}

func readAll(ctx context.Context, cfg Config, sum *Summary, log *logger.Logger) ([]Record, error) {
	r, err := Open(cfg.Shapefile, cfg.Mapping, cfg.Charset)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	sum.Charset = r.Charset()
	sum.SourceProjection = r.Projection()
	if cfg.SourceSRID == 0 && sum.SourceProjection == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Shapefile, ErrNoProjection)
	}

	var records []Record
	for r.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum.Read++

		rec, err := r.Record()
		if err != nil {
			if cfg.Strict {
				return nil, fmt.Errorf("strict import aborted, nothing saved: %w", err)
			}
			sum.Skipped++
			log.Warn("Skipping feature", "error", err)
			continue
		}
		records = append(records, rec)

		if cfg.Progress > 0 && sum.Read%cfg.Progress == 0 {
			log.Info("Processed features", "read", sum.Read, "valid", len(records))
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile: %w", err)
	}
	if len(records) == 0 {
		if sum.Read == 0 {
			return nil, fmt.Errorf("%s: %w", cfg.Shapefile, ErrNoFeatures)
		}
		return nil, fmt.Errorf("%s: %w: all %d features were skipped", cfg.Shapefile, ErrNoFeatures, sum.Read)
	}
	return records, nil
}

// checkProjection compares a configured SRID with the layer's .prj when
// both are present, using the first vertex of the first record.
func checkProjection(ctx context.Context, cfg Config, sum Summary, sink Sink, first Record, log *logger.Logger) error {
	switch {
	case sum.SourceSRID == 0:
		log.Info("Using the layer projection", "prj", sum.SourceProjection)
		return nil
	case sum.SourceProjection == "":
		log.Warn("Layer has no .prj, assuming the configured SRID", "srid", sum.SourceSRID)
		return nil
	}

	pc, ok := sink.(ProjectionChecker)
	if !ok {
		log.Warn("Cannot compare the configured SRID with the layer .prj", "srid", sum.SourceSRID)
		return nil
	}
	same, err := pc.ProjectionAgrees(ctx, sum.SourceSRID, sum.SourceProjection, first.Geom[0][0])
	if err != nil {
		return fmt.Errorf("compare projections: %w", err)
	}
	if !same {
		return fmt.Errorf("%s: %w: EPSG:%d", cfg.Shapefile, ErrProjectionMismatch, sum.SourceSRID)
	}
	return nil
}

func finish(sum Summary, err error) (Summary, error) {
	if sum.FinishedAt.IsZero() {
		sum.FinishedAt = time.Now().UTC()
	}
	metrics.LoaderFeaturesTotal.WithLabelValues("read").Add(float64(sum.Read))
	metrics.LoaderFeaturesTotal.WithLabelValues("saved").Add(float64(sum.Saved))
	metrics.LoaderFeaturesTotal.WithLabelValues("skipped").Add(float64(sum.Skipped))
	if err != nil {
		metrics.LoaderRunsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return sum, fmt.Errorf("import interrupted: %w", err)
		}
		return sum, err
	}
	metrics.LoaderRunsTotal.WithLabelValues("ok").Inc()
	return sum, nil
}
