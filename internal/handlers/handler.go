// Package handlers exposes the conversion pipeline over HTTP.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/bindery/internal/bundle"
	"github.com/lehigh-university-libraries/bindery/internal/httpx"
	"github.com/lehigh-university-libraries/bindery/internal/jobs"
	"github.com/lehigh-university-libraries/bindery/internal/ledger"
	"github.com/lehigh-university-libraries/bindery/internal/models"
)

// defaultMaxMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const defaultMaxMemory = 32 << 20

type Handler struct {
	orchestrator *jobs.Orchestrator
	ledger       *ledger.Ledger
	bundler      *bundle.Bundler
	maxMemory    int64
}

func New(orchestrator *jobs.Orchestrator, l *ledger.Ledger, bundler *bundle.Bundler) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		ledger:       l,
		bundler:      bundler,
		maxMemory:    defaultMaxMemory,
	}
}

// Routes registers every endpoint on mux. The websocket hub and the rate
// limiter are optional.
func (h *Handler) Routes(mux *http.ServeMux, hub http.Handler, limiter *httpx.RateLimiter) {
	var convert http.Handler = http.HandlerFunc(h.HandleConvert)
	if limiter != nil {
		convert = limiter.Middleware(convert)
	}
	mux.Handle("POST /convert", convert)
	mux.HandleFunc("GET /status/{id}", h.HandleStatus)
	mux.HandleFunc("GET /jobs", h.HandleJobs)
	mux.HandleFunc("GET /download/{id}", h.HandleDownload)
	if hub != nil {
		mux.Handle("GET /ws", hub)
	}
	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
}

// writeError maps pipeline errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, models.ErrValidation):
		httpx.JSONError(w, r, http.StatusBadRequest, httpx.CodeValidation, err.Error())
	case errors.Is(err, models.ErrNotFound):
		httpx.JSONError(w, r, http.StatusNotFound, httpx.CodeNotFound, err.Error())
	case errors.As(err, &maxBytes):
		httpx.JSONError(w, r, http.StatusRequestEntityTooLarge, httpx.CodeTooLarge, "Request body too large")
	case errors.Is(err, jobs.ErrClosed):
		httpx.JSONError(w, r, http.StatusServiceUnavailable, httpx.CodeUnavailable, err.Error())
	default:
		slog.Error("Request failed", "path", r.URL.Path, "error", err)
		httpx.JSONError(w, r, http.StatusInternalServerError, httpx.CodeInternal, "An internal error occurred")
	}
}
