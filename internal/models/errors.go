package models

import "errors"

// Error conditions shared across the pipeline. Callers match them with errors.Is.
var (
	// ErrValidation marks a submission with no files or no acceptable pages.
	ErrValidation = errors.New("validation error")
	// ErrBuild marks a failure assembling a book's EPUB container.
	ErrBuild = errors.New("build error")
	// ErrToolMissing marks a converter binary that is not installed.
	ErrToolMissing = errors.New("conversion tool missing")
	// ErrConversionFailed marks a converter run that exited non-zero or wrote nothing.
	ErrConversionFailed = errors.New("conversion failed")
	// ErrNotFound marks an unknown job id or a job with nothing to download.
	ErrNotFound = errors.New("not found")
)
