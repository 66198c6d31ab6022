package handlers

import (
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/bindery/internal/bundle"
)

func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	files, err := h.bundler.Collect(jobID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+bundle.Filename+`"`)
	if err := bundle.WriteFiles(w, files); err != nil {
		// Headers are already sent; the client sees a truncated archive.
		slog.Error("Failed to stream bundle", "job_id", jobID, "error", err)
	}
}
