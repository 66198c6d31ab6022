// Package ledger tracks per-job progress and status for polling clients.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/bindery/internal/models"
)

type entry struct {
	progress    int
	status      models.JobStatus
	books       int
	results     []models.BookResult
	createdAt   time.Time
	completedAt time.Time
}

// Ledger is an in-memory, process-lifetime map from job id to progress.
// All methods are safe for concurrent use.
type Ledger struct {
	entries map[string]*entry
	mu      sync.RWMutex
	now     func() time.Time
}

func New() *Ledger {
	return &Ledger{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Create registers a job with progress 1 and status in_progress.
func (l *Ledger) Create(jobID string, books int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.entries[jobID]; exists {
		return fmt.Errorf("job %s already exists", jobID)
	}
	l.entries[jobID] = &entry{
		progress:  1,
		status:    models.StatusInProgress,
		books:     books,
		createdAt: l.now(),
	}
	return nil
}

// Increment adds one to the job's progress counter.
func (l *Ledger) Increment(jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, err := l.get(jobID)
	if err != nil {
		return err
	}
	e.progress++
	return nil
}

// Record appends a book outcome to the job's result list.
func (l *Ledger) Record(jobID string, result models.BookResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, err := l.get(jobID)
	if err != nil {
		return err
	}
	e.results = append(e.results, result)
	return nil
}

// Complete moves the job to its terminal status. Completing twice is a no-op.
func (l *Ledger) Complete(jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, err := l.get(jobID)
	if err != nil {
		return err
	}
	if e.status == models.StatusCompleted {
		return nil
	}
	e.status = models.StatusCompleted
	e.completedAt = l.now()
	return nil
}

// Read returns a copy of the job's current state.
func (l *Ledger) Read(jobID string) (models.Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, err := l.get(jobID)
	if err != nil {
		return models.Snapshot{}, err
	}
	return e.snapshot(jobID), nil
}

// List returns snapshots of every job, oldest first.
func (l *Ledger) List() []models.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]models.Snapshot, 0, len(l.entries))
	for id, e := range l.entries {
		result = append(result, e.snapshot(id))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].JobID < result[j].JobID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// get must be called with mu held.
func (l *Ledger) get(jobID string) (*entry, error) {
	e, exists := l.entries[jobID]
	if !exists {
		return nil, fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
	}
	return e, nil
}

func (e *entry) snapshot(jobID string) models.Snapshot {
	results := make([]models.BookResult, len(e.results))
	copy(results, e.results)
	return models.Snapshot{
		JobID:       jobID,
		Progress:    e.progress,
		Status:      e.status,
		Books:       e.books,
		Results:     results,
		CreatedAt:   e.createdAt,
		CompletedAt: e.completedAt,
	}
}
