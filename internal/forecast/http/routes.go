package forecasthttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/volumeplan/volumeplan/internal/platform/httpx"
)

const exportsPerMinute = 10

// MountRoutes registers the forecast endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportsPerMinute, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit exceeded")
		}),
	)

	r.Route("/forecast", func(r chi.Router) {
		r.Get("/dimensions", h.handleDimensions)
		r.Get("/guidance", h.handleGuidance)
		r.Post("/guidance/evaluate", h.handleEvaluate)
		r.Post("/pivot", h.handlePivot)
		r.Post("/dashboard", h.handleDashboard)
		r.Post("/rollup", h.handleRollup)
		r.Put("/records", h.handleReplaceRecords)
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Post("/pivot/export.csv", h.handlePivotCSV)
			gr.Post("/rollup/export.csv", h.handleRollupCSV)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if client := strings.TrimSpace(r.Header.Get("X-Client-ID")); client != "" {
		return "client:" + client, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
