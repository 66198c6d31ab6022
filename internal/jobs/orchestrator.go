// Package jobs runs conversion jobs: it groups uploaded pages into books and
// builds and converts each book in the background while the ledger tracks
// progress.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/bindery/internal/converter"
	"github.com/lehigh-university-libraries/bindery/internal/epub"
	"github.com/lehigh-university-libraries/bindery/internal/ledger"
	"github.com/lehigh-university-libraries/bindery/internal/models"
	"github.com/lehigh-university-libraries/bindery/internal/results"
)

// DefaultRecordTimeout bounds each history write.
const DefaultRecordTimeout = 5 * time.Second

// ErrClosed is returned by Submit after Shutdown has been called.
var ErrClosed = errors.New("orchestrator is shutting down")

// Builder assembles the packaging-format file for one book.
type Builder interface {
	BuildFile(ctx context.Context, path, title string, pages []models.Page) (epub.Manifest, error)
}

// Notifier receives a snapshot after every job transition.
type Notifier interface {
	Publish(snap models.Snapshot)
}

// Recorder persists job snapshots outside the process.
type Recorder interface {
	RecordJob(ctx context.Context, snap models.Snapshot) error
}

type Config struct {
	UploadDir string
	OutputDir string
	Profile   converter.Profile
}

type Orchestrator struct {
	cfg       Config
	builder   Builder
	converter converter.Converter
	ledger    *ledger.Ledger
	notifiers []Notifier
	recorder  Recorder
	recordTTL time.Duration
	logger    *slog.Logger
	sem       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifiers = append(o.notifiers, n)
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithRecordTimeout bounds how long a single RecordJob call may take.
func WithRecordTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.recordTTL = d
		}
	}
}

// WithMaxConcurrentJobs caps how many jobs convert at once. Zero means no cap.
func WithMaxConcurrentJobs(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sem = make(chan struct{}, n)
		}
	}
}

func New(cfg Config, builder Builder, conv converter.Converter, l *ledger.Ledger, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:       cfg,
		builder:   builder,
		converter: conv,
		ledger:    l,
		recordTTL: DefaultRecordTimeout,
		logger:    slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle tracks one submitted job.
type Handle struct {
	ID   string
	done chan struct{}
}

// Done is closed once the job has reached its terminal status.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the job completes or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit validates and groups files, stores them under the upload directory
// and starts the job. It returns as soon as the job is registered.
func (o *Orchestrator) Submit(ctx context.Context, files []UploadedFile) (*Handle, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files in request: %w", models.ErrValidation)
	}
	pending := group(files)
	if len(pending) == 0 {
		return nil, fmt.Errorf("no valid image files in request: %w", models.ErrValidation)
	}

	jobID := uuid.NewString()
	books := make([]models.Book, len(pending))
	for i := range pending {
		books[i] = pending[i].book
	}
	assignNames(books)

	jobDir := filepath.Join(o.cfg.UploadDir, jobID)
	for i, b := range books {
		if err := ctx.Err(); err != nil {
			os.RemoveAll(jobDir)
			return nil, err
		}
		bookDir := filepath.Join(jobDir, b.Slug)
		if err := os.MkdirAll(bookDir, 0755); err != nil {
			os.RemoveAll(jobDir)
			return nil, fmt.Errorf("failed to create upload directory: %w", err)
		}
		for j := range b.Pages {
			p := filepath.Join(bookDir, b.Pages[j].Filename)
			if err := os.WriteFile(p, pending[i].files[j], 0644); err != nil {
				os.RemoveAll(jobDir)
				return nil, fmt.Errorf("failed to save %s: %w", b.Pages[j].Filename, err)
			}
			books[i].Pages[j].Path = p
		}
	}

	return o.start(jobID, books)
}

// SubmitBooks starts a job for books whose pages are already on disk.
func (o *Orchestrator) SubmitBooks(ctx context.Context, books []models.Book) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var kept []models.Book
	for _, b := range books {
		if len(b.Pages) > 0 {
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("no pages to convert: %w", models.ErrValidation)
	}
	assignNames(kept)
	return o.start(uuid.NewString(), kept)
}

func (o *Orchestrator) start(jobID string, books []models.Book) (*Handle, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if err := o.ledger.Create(jobID, len(books)); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.wg.Add(1)
	o.mu.Unlock()

	o.logger.Info("Conversion job started", "job_id", jobID, "books", len(books))
	// Published before the job goroutine exists so the first snapshot is
	// never overtaken by a book update.
	o.publish(jobID)

	h := &Handle{ID: jobID, done: make(chan struct{})}
	go func() {
		defer o.wg.Done()
		defer close(h.done)
		o.run(jobID, books)
	}()
	return h, nil
}

func (o *Orchestrator) run(jobID string, books []models.Book) {
	ctx := o.ctx
	if o.sem != nil {
		select {
		case o.sem <- struct{}{}:
			defer func() { <-o.sem }()
		case <-ctx.Done():
		}
	}

	outDir := filepath.Join(o.cfg.OutputDir, jobID)
	for _, b := range books {
		res := o.processBook(ctx, outDir, b)
		if res.Succeeded() {
			if err := o.ledger.Increment(jobID); err != nil {
				o.logger.Error("Failed to update progress", "job_id", jobID, "error", err)
			}
			o.logger.Info("Book converted", "job_id", jobID, "book", b.Title, "output", res.DevicePath)
		} else {
			o.logger.Error("Book failed", "job_id", jobID, "book", b.Title, "error", res.Error)
		}
		if err := o.ledger.Record(jobID, res); err != nil {
			o.logger.Error("Failed to record result", "job_id", jobID, "error", err)
		}
		o.publish(jobID)
	}

	if err := o.ledger.Complete(jobID); err != nil {
		o.logger.Error("Failed to complete job", "job_id", jobID, "error", err)
	}
	snap, err := o.ledger.Read(jobID)
	if err != nil {
		o.logger.Error("Failed to read job", "job_id", jobID, "error", err)
		return
	}
	if _, err := results.Save(outDir, results.FromSnapshot(snap)); err != nil {
		o.logger.Warn("Failed to write job report", "job_id", jobID, "error", err)
	}
	o.notify(snap)
	o.logger.Info("Conversion job completed", "job_id", jobID, "progress", snap.Progress, "books", snap.Books)
}

// processBook builds then converts one book. Failures are reported in the
// result rather than returned.
func (o *Orchestrator) processBook(ctx context.Context, outDir string, b models.Book) models.BookResult {
	res := models.BookResult{Index: b.Index, Title: b.Title}
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	epubPath := filepath.Join(outDir, b.Slug+".epub")
	if _, err := o.builder.BuildFile(ctx, epubPath, b.Title, b.Pages); err != nil {
		res.Error = fmt.Errorf("%w: %v", models.ErrBuild, err).Error()
		return res
	}

	devicePath := filepath.Join(outDir, b.Slug+o.cfg.Profile.Ext())
	if err := o.converter.Convert(ctx, epubPath, devicePath, o.cfg.Profile); err != nil {
		res.Error = err.Error()
		return res
	}

	res.EPUBPath = epubPath
	res.DevicePath = devicePath
	return res
}

func (o *Orchestrator) publish(jobID string) {
	snap, err := o.ledger.Read(jobID)
	if err != nil {
		o.logger.Error("Failed to read job", "job_id", jobID, "error", err)
		return
	}
	o.notify(snap)
}

func (o *Orchestrator) notify(snap models.Snapshot) {
	for _, n := range o.notifiers {
		n.Publish(snap)
	}
	if o.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), o.recordTTL)
		defer cancel()
		if err := o.recorder.RecordJob(ctx, snap); err != nil {
			o.logger.Warn("Failed to record job history", "job_id", snap.JobID, "error", err)
		}
	}
}

// Shutdown stops accepting jobs and waits for running ones. When ctx ends
// first, running jobs are canceled and Shutdown still waits for them to
// record their remaining books as failed.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); o.wg.Wait() }()

	select {
	case <-done:
		o.cancel()
		o.logger.Info("All conversion jobs finished")
		return nil
	case <-ctx.Done():
		o.logger.Warn("Shutdown deadline reached, canceling running jobs")
		o.cancel()
		<-done
		return ctx.Err()
	}
}
