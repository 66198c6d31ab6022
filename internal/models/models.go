package models

import "time"

// JobStatus is the lifecycle state of a conversion job.
type JobStatus string

const (
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
)

// DefaultTitle is used for books uploaded without a grouping directory.
const DefaultTitle = "Untitled"

// Page is a single raster image belonging to one book.
type Page struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	// Index is the zero-based position within the book, from lexical filename order.
	Index int `json:"index"`
}

// Book is a named, ordered collection of pages.
type Book struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Title string `json:"title"`
	// Slug is the job-unique base name used for output files.
	Slug  string `json:"slug"`
	Pages []Page `json:"pages"`
}

// BookResult is the outcome of processing one book. Error is empty on success.
type BookResult struct {
	Index      int    `json:"index" yaml:"index"`
	Title      string `json:"title" yaml:"title"`
	EPUBPath   string `json:"epub_path,omitempty" yaml:"epub_path,omitempty"`
	DevicePath string `json:"device_path,omitempty" yaml:"device_path,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Succeeded reports whether both output files were produced.
func (r BookResult) Succeeded() bool {
	return r.Error == ""
}

// Snapshot is a point-in-time copy of a job's progress ledger entry.
type Snapshot struct {
	JobID       string       `json:"conversion_id"`
	Progress    int          `json:"progress"`
	Status      JobStatus    `json:"status"`
	Books       int          `json:"books"`
	Results     []BookResult `json:"results"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt time.Time    `json:"completed_at,omitempty"`
}

// Completed reports whether the job has reached its terminal state.
func (s Snapshot) Completed() bool {
	return s.Status == StatusCompleted
}
