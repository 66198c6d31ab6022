package cmd

import (
	"log/slog"

	"github.com/lehigh-university-libraries/bindery/internal/config"
	"github.com/lehigh-university-libraries/bindery/internal/converter"
	"github.com/lehigh-university-libraries/bindery/internal/epub"
	"github.com/lehigh-university-libraries/bindery/internal/jobs"
	"github.com/lehigh-university-libraries/bindery/internal/ledger"
	"github.com/lehigh-university-libraries/bindery/internal/normalize"
)

// newOrchestrator wires the conversion pipeline shared by serve and convert.
func newOrchestrator(cfg config.Config, l *ledger.Ledger, opts ...jobs.Option) *jobs.Orchestrator {
	logger := slog.Default()
	builder := epub.NewBuilder(normalize.New(cfg.NormalizeOptions()), logger)

	calibre := converter.NewCalibre(cfg.Converter.Binary, logger)
	if err := calibre.Available(); err != nil {
		slog.Warn("Converter not found, every book will fail until it is installed", "binary", cfg.Converter.Binary, "err", err)
	}

	opts = append([]jobs.Option{
		jobs.WithLogger(logger),
		jobs.WithMaxConcurrentJobs(cfg.MaxConcurrentJobs),
	}, opts...)

	return jobs.New(jobs.Config{
		UploadDir: cfg.UploadDir,
		OutputDir: cfg.OutputDir,
		Profile:   cfg.Profile(),
	}, builder, calibre, l, opts...)
}
