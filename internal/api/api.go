// Package api serves the read-only HTTP API over the persisted train events.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/drblury/railflow/internal/runtime/jsoncodec"
	"github.com/drblury/railflow/internal/runtime/logging"
	"github.com/drblury/railflow/internal/store"
)

// Paging limits.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Store is the read side of the relational store.
type Store interface {
	ListActiveTrains(ctx context.Context, page store.Page) ([]store.ActiveTrain, error)
	ListCancelledTrains(ctx context.Context, page store.Page) ([]store.CancelledTrain, error)
	Ping(ctx context.Context) error
}

type errorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	store  Store
	logger logging.ServiceLogger
}

// NewRouter returns the API routes:
//
//	GET /api/v1/active-trains?limit=&offset=
//	GET /api/v1/cancelled-trains?limit=&offset=
//	GET /healthz
func NewRouter(st Store, logger logging.ServiceLogger) http.Handler {
	h := &handler{store: st, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Access-Control-Allow-Origin", "*"))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/active-trains", h.activeTrains)
		r.Get("/cancelled-trains", h.cancelledTrains)
	})
	return r
}

// ParsePage reads limit and offset from the query. Missing, non-numeric and
// negative values fall back to the defaults; limit is capped at MaxLimit.
func ParsePage(r *http.Request) store.Page {
	page := store.Page{Limit: DefaultLimit}
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		page.Limit = min(v, MaxLimit)
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		page.Offset = v
	}
	return page
}

func (h *handler) activeTrains(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListActiveTrains(r.Context(), ParsePage(r))
	if err != nil {
		h.internalError(w, "Error fetching active trains", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rows)
}

func (h *handler) cancelledTrains(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListCancelledTrains(r.Context(), ParsePage(r))
	if err != nil {
		h.internalError(w, "Error fetching cancelled trains", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rows)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("Health check failed", err, nil)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, err, nil)
	h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsoncodec.Encode(w, v); err != nil {
		h.logger.Error("Failed to write response", err, nil)
	}
}
