// Package results persists per-job conversion reports and exports them for
// analysis.
package results

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/bindery/internal/models"
)

// ReportFile is the name of the report written into each job directory.
const ReportFile = "report.yaml"

// Summary is the header section of a job report.
type Summary struct {
	JobID       string           `yaml:"job_id"`
	Status      models.JobStatus `yaml:"status"`
	Progress    int              `yaml:"progress"`
	Books       int              `yaml:"books"`
	Succeeded   int              `yaml:"succeeded"`
	Failed      int              `yaml:"failed"`
	CreatedAt   time.Time        `yaml:"created_at"`
	CompletedAt time.Time        `yaml:"completed_at,omitempty"`
}

// Report is the complete YAML document for one job.
type Report struct {
	Summary Summary             `yaml:"summary"`
	Results []models.BookResult `yaml:"results"`
}

// FromSnapshot builds a report from a ledger snapshot.
func FromSnapshot(snap models.Snapshot) Report {
	r := Report{
		Summary: Summary{
			JobID:       snap.JobID,
			Status:      snap.Status,
			Progress:    snap.Progress,
			Books:       snap.Books,
			CreatedAt:   snap.CreatedAt,
			CompletedAt: snap.CompletedAt,
		},
		Results: make([]models.BookResult, 0, len(snap.Results)),
	}
	for _, res := range snap.Results {
		if res.Succeeded() {
			r.Summary.Succeeded++
		} else {
			r.Summary.Failed++
		}
		r.Results = append(r.Results, res)
	}
	return r
}

// Save writes the report to dir/report.yaml.
func Save(dir string, r Report) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := yaml.Marshal(&r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}

	filename := filepath.Join(dir, ReportFile)
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}
	return filename, nil
}

// Load reads a single report file.
func Load(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return r, nil
}

// LoadAll reads every job report under root, oldest first. Unreadable reports
// are logged and skipped.
func LoadAll(root string) ([]Report, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var reports []Report
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(root, e.Name(), ReportFile)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		r, err := Load(path)
		if err != nil {
			slog.Warn("Skipping unreadable report", "path", path, "error", err)
			continue
		}
		reports = append(reports, r)
	}

	sort.Slice(reports, func(i, j int) bool {
		a, b := reports[i].Summary, reports[j].Summary
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.JobID < b.JobID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return reports, nil
}

// Totals aggregates book counts across reports.
type Totals struct {
	Jobs      int
	Books     int
	Succeeded int
	Failed    int
}

func Aggregate(reports []Report) Totals {
	var t Totals
	for _, r := range reports {
		t.Jobs++
		t.Books += r.Summary.Books
		t.Succeeded += r.Summary.Succeeded
		t.Failed += r.Summary.Failed
	}
	return t
}

// SuccessRate returns the share of books converted successfully.
func (t Totals) SuccessRate() float64 {
	if t.Succeeded+t.Failed == 0 {
		return 0
	}
	return float64(t.Succeeded) / float64(t.Succeeded+t.Failed)
}
