package nbhd

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/somerville/nbhd-map/internal/cache"
	"github.com/somerville/nbhd-map/internal/layermap"
	"github.com/somerville/nbhd-map/internal/logger"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type Handler struct {
	store  Store
	cache  *cache.Cache
	log    *logger.Logger
	reload Reloader

	// one reload at a time; a second request gets 409
	reloadMu sync.Mutex
}

// NewHandler wires the HTTP handlers. c and reload may be nil.
func NewHandler(store Store, c *cache.Cache, reload Reloader, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{store: store, cache: c, reload: reload, log: log.With("component", "http")}
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, map[string]string{"error": msg})
}

func writeGeoJSON(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func addServerTiming(w http.ResponseWriter, kv ...[2]string) {
	if len(kv) == 0 {
		return
	}
	parts := make([]string, 0, len(kv))
	for _, p := range kv {
		parts = append(parts, fmt.Sprintf("%s;dur=%s", p[0], p[1]))
	}
	w.Header().Add("Server-Timing", strings.Join(parts, ", "))
}

func msSince(t time.Time) string {
	return strconv.FormatInt(time.Since(t).Milliseconds(), 10)
}

// names accepts both ?name=a&name=b and ?name=a,b.
func names(r *http.Request) []string {
	var out []string
	for _, v := range r.URL.Query()["name"] {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				out = append(out, n)
			}
		}
	}
	return out
}

type indexData struct {
	Title   string
	DataURL string
	Center  struct{ Lat, Lng float64 }
	Zoom    int
}

// Index serves the Leaflet page that draws the neighborhood layer.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	d := indexData{Title: "Somerville Neighborhoods", DataURL: "/neighborhoods", Zoom: 14}
	d.Center.Lat, d.Center.Lng = 42.3876, -71.0995

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, d); err != nil {
		h.log.Error("Render index failed", "error", err)
	}
}

// ListNeighborhoods returns every neighborhood as a GeoJSON
// FeatureCollection. Only the default view (no filter, default fields) is
// served from the cache.
func (h *Handler) ListNeighborhoods(w http.ResponseWriter, r *http.Request) {
	t0 := time.Now()
	ctx := r.Context()

	fields, err := ParseFields(r.URL.Query().Get("fields"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := ListFilter{Names: names(r)}
	cacheable := len(filter.Names) == 0 && isDefaultFields(fields)

	var key string
	if cacheable && h.cache != nil {
		if v, err := h.dataVersion(ctx); err != nil {
			h.log.Warn("Data version lookup failed, skipping cache", "error", err)
		} else {
			key = cache.ListKey(v)
		}
	}

	if key != "" {
		if b, ok := h.cache.Get(ctx, key); ok {
			w.Header().Set("X-Data-Status", "hit")
			addServerTiming(w, [2]string{"total", msSince(t0)})
			writeGeoJSON(w, b)
			return
		}
	}

	tDB := time.Now()
	ns, err := h.store.List(ctx, filter)
	if err != nil {
		h.log.Error("List neighborhoods failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load neighborhoods")
		return
	}
	dbMs := msSince(tDB)

	b, err := json.Marshal(FeatureCollection(ns, fields))
	if err != nil {
		h.log.Error("Encode neighborhoods failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to encode neighborhoods")
		return
	}
	if key != "" {
		h.cache.Set(ctx, key, b)
	}

	w.Header().Set("X-Data-Status", "miss")
	addServerTiming(w, [2]string{"dbread", dbMs}, [2]string{"total", msSince(t0)})
	writeGeoJSON(w, b)
}

// dataVersion names the stored data set by its latest import run. An entry
// written under an older run's key is never read once a newer run commits.
func (h *Handler) dataVersion(ctx context.Context) (string, error) {
	run, err := h.store.LatestRun(ctx)
	if errors.Is(err, ErrNotFound) {
		return "empty", nil
	}
	if err != nil {
		return "", err
	}
	return run.ID.String(), nil
}

func (h *Handler) GetNeighborhood(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid neighborhood id")
		return
	}
	fields, err := ParseFields(r.URL.Query().Get("fields"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := h.store.Get(r.Context(), uint(id))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "neighborhood not found")
		return
	}
	if err != nil {
		h.log.Error("Get neighborhood failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load neighborhood")
		return
	}

	b, err := json.Marshal(Feature(n, fields))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode neighborhood")
		return
	}
	writeGeoJSON(w, b)
}

// LookupNeighborhoods returns the neighborhoods containing ?lat=&lng=.
func (h *Handler) LookupNeighborhoods(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required numbers")
		return
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		writeError(w, http.StatusBadRequest, "lat/lng out of range")
		return
	}
	fields, err := ParseFields(q.Get("fields"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t0 := time.Now()
	ns, err := h.store.Containing(r.Context(), lng, lat)
	if err != nil {
		h.log.Error("Neighborhood lookup failed", "lat", lat, "lng", lng, "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	addServerTiming(w, [2]string{"dbread", msSince(t0)})

	b, err := json.Marshal(FeatureCollection(ns, fields))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode neighborhoods")
		return
	}
	writeGeoJSON(w, b)
}

func (h *Handler) LatestImport(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.LatestRun(r.Context())
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "no import has run yet")
		return
	}
	if err != nil {
		h.log.Error("Latest import lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load import run")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONStatus(w, http.StatusOK, run)
}

// ReloadNeighborhoods re-imports the configured shapefile, replacing every
// stored neighborhood.
func (h *Handler) ReloadNeighborhoods(w http.ResponseWriter, r *http.Request) {
	if h.reload == nil {
		writeError(w, http.StatusServiceUnavailable, "reload is not configured")
		return
	}
	if !h.reloadMu.TryLock() {
		writeError(w, http.StatusConflict, "a reload is already running")
		return
	}
	defer h.reloadMu.Unlock()

	sum, err := h.reload(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if isLayerError(err) {
			status = http.StatusUnprocessableEntity
		}
		h.log.Error("Reload failed", "status", status, "error", err)
		writeError(w, status, err.Error())
		return
	}
	h.log.Info("Reload finished", "run_id", sum.ID, "saved", sum.Saved, "skipped", sum.Skipped)
	writeJSONStatus(w, http.StatusOK, runRecord(sum, true))
}

// isLayerError reports errors caused by the shapefile or mapping rather
// than by the server.
func isLayerError(err error) bool {
	for _, target := range []error{
		layermap.ErrMissingDBF,
		layermap.ErrFieldMissing,
		layermap.ErrGeometryType,
		layermap.ErrNoFeatures,
		layermap.ErrInvalidFeature,
		layermap.ErrNoProjection,
		layermap.ErrProjectionMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
