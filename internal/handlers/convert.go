package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/lehigh-university-libraries/bindery/internal/httpx"
	"github.com/lehigh-university-libraries/bindery/internal/jobs"
	"github.com/lehigh-university-libraries/bindery/internal/models"
)

// HandleConvert accepts a multipart batch. Each file part's form field name is
// its path-like key, e.g. "alpha/001.png".
func (h *Handler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		var maxBytes *http.MaxBytesError
		switch {
		case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
			h.writeError(w, r, fmt.Errorf("no files found in request: %w", models.ErrValidation))
		case errors.Is(err, multipart.ErrMessageTooLarge), errors.As(err, &maxBytes):
			httpx.JSONError(w, r, http.StatusRequestEntityTooLarge, httpx.CodeTooLarge, "Request body too large")
		default:
			h.writeError(w, r, fmt.Errorf("invalid multipart body: %v: %w", err, models.ErrValidation))
		}
		return
	}
	defer r.MultipartForm.RemoveAll()

	files, err := readFiles(r.MultipartForm)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	handle, err := h.orchestrator.Submit(r.Context(), files)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	slog.Info("Accepted conversion", "job_id", handle.ID, "files", len(files), "request_id", httpx.RequestIDFrom(r))
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": handle.ID})
}

func readFiles(form *multipart.Form) ([]jobs.UploadedFile, error) {
	var files []jobs.UploadedFile
	for key, headers := range form.File {
		for _, fh := range headers {
			data, err := readPart(fh)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", key, err)
			}
			files = append(files, jobs.UploadedFile{Key: key, Data: data})
		}
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
