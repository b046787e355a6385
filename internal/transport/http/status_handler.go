package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/operations"
)

// StatusSource provides the run snapshot served by /status
type StatusSource interface {
	Snapshot() operations.RunSnapshot
}

// StatusHandler handles run status requests
type StatusHandler struct {
	source StatusSource
	logger *slog.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(source StatusSource, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		source: source,
		logger: logger.With(slog.String("handler", "status")),
	}
}

// Routes sets up the status routes
func (h *StatusHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetStatus)
	r.Get("/{gstin}", h.GetTaxpayer)
	return r
}

// GetStatus handles GET /status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.source.Snapshot())
}

// GetTaxpayer handles GET /status/{gstin}
func (h *StatusHandler) GetTaxpayer(w http.ResponseWriter, r *http.Request) {
	gstin := chi.URLParam(r, "gstin")

	var steps []operations.StepSnapshot
	for _, s := range h.source.Snapshot().Steps {
		if s.GSTIN == gstin {
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		h.logger.DebugContext(r.Context(), "No steps for taxpayer", slog.String("gstin", gstin))
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "no steps recorded for " + gstin})
		return
	}
	render.JSON(w, r, map[string]any{
		"gstin": gstin,
		"steps": steps,
	})
}
