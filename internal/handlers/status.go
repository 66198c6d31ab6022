package handlers

import (
	"net/http"

	"github.com/lehigh-university-libraries/bindery/internal/httpx"
)

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ledger.Read(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

// HandleJobs lists every job known to this process, oldest first.
func (h *Handler) HandleJobs(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.ledger.List())
}
