package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nbhd_http_requests_total",
		Help: "Total HTTP requests by route pattern, method and status",
	}, []string{"route", "method", "status"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nbhd_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nbhd_http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nbhd_cache_hits_total",
		Help: "GeoJSON list cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nbhd_cache_misses_total",
		Help: "GeoJSON list cache misses",
	})
	LoaderFeaturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nbhd_loader_features_total",
		Help: "Shapefile features processed by the loader, by outcome (read, saved, skipped)",
	}, []string{"outcome"})
	LoaderRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nbhd_loader_runs_total",
		Help: "Loader runs by result (ok, error)",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(LoaderFeaturesTotal)
	prometheus.MustRegister(LoaderRunsTotal)
}

// Handler serves the registered metrics for Prometheus scraping.
func Handler() http.Handler { return promhttp.Handler() }
