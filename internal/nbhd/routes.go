package nbhd

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/somerville/nbhd-map/internal/middleware"
)

// SetupRoutes is mounted at /neighborhoods.
func SetupRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.ListNeighborhoods)
	r.Get("/lookup", h.LookupNeighborhoods)
	r.Get("/imports/latest", h.LatestImport)
	r.Get("/{id}", h.GetNeighborhood)

	return r
}

// SetupAdminRoutes is mounted at /admin. Every route requires the admin
// token.
func SetupAdminRoutes(h *Handler, tokenHash string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.AdminTokenMiddleware(tokenHash))

	r.Post("/neighborhoods/reload", h.ReloadNeighborhoods)

	return r
}
