package nbhd_test

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/somerville/nbhd-map/internal/nbhd"
)

type fakeStore struct {
	rows      []nbhd.Neighborhood
	run       *nbhd.ImportRun
	err       error
	listCalls int
	lastPoint orb.Point

	// afterList runs once, after the next List has read its rows.
	afterList func(f *fakeStore)
}

func (f *fakeStore) List(_ context.Context, filter nbhd.ListFilter) ([]nbhd.Neighborhood, error) {
	f.listCalls++
	if f.err != nil {
		return nil, f.err
	}
	if len(filter.Names) == 0 {
		out := f.rows
		if hook := f.afterList; hook != nil {
			f.afterList = nil
			hook(f)
		}
		return out, nil
	}
	var out []nbhd.Neighborhood
	for _, n := range f.rows {
		for _, name := range filter.Names {
			if n.Name == name {
				out = append(out, n)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Get(_ context.Context, id uint) (nbhd.Neighborhood, error) {
	if f.err != nil {
		return nbhd.Neighborhood{}, f.err
	}
	for _, n := range f.rows {
		if n.ID == id {
			return n, nil
		}
	}
	return nbhd.Neighborhood{}, nbhd.ErrNotFound
}

func (f *fakeStore) Containing(_ context.Context, lng, lat float64) ([]nbhd.Neighborhood, error) {
	f.lastPoint = orb.Point{lng, lat}
	if f.err != nil {
		return nil, f.err
	}
	var out []nbhd.Neighborhood
	for _, n := range f.rows {
		if n.Geom.Bound().Contains(f.lastPoint) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) LatestRun(context.Context) (nbhd.ImportRun, error) {
	if f.err != nil {
		return nbhd.ImportRun{}, f.err
	}
	if f.run == nil {
		return nbhd.ImportRun{}, nbhd.ErrNotFound
	}
	return *f.run, nil
}

var errDown = errors.New("connection refused")

func box(x, y, size float64) nbhd.Polygon {
	return nbhd.Polygon{
		Polygon: orb.Polygon{{
			{x, y}, {x, y + size}, {x + size, y + size}, {x + size, y}, {x, y},
		}},
		SRID: nbhd.SRID,
	}
}

func seeded() *fakeStore {
	return &fakeStore{
		rows: []nbhd.Neighborhood{
			{ID: 1, OID: 11, Name: "Spring Hill", Area: 5023711.25, Length: 9761.5, Geom: box(-71.11, 42.38, 0.01)},
			{ID: 2, OID: 12, Name: "Ten Hills", Area: 3187320.5, Length: 7654.125, Geom: box(-71.08, 42.39, 0.01)},
		},
		run: &nbhd.ImportRun{
			ID:            uuid.MustParse("5f0c6f7e-3a47-4a4f-9b5e-0b8f2d0c1a11"),
			Source:        "Neighborhoods.shp",
			SourceSRID:    2249,
			Charset:       "ISO-8859-1",
			FeaturesRead:  2,
			FeaturesSaved: 2,
			Replaced:      true,
			StartedAt:     time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
			FinishedAt:    time.Date(2026, 10, 1, 12, 0, 2, 0, time.UTC),
		},
	}
}
