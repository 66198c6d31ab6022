package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/bindery/internal/jobs"
	"github.com/lehigh-university-libraries/bindery/internal/ledger"
	"github.com/lehigh-university-libraries/bindery/internal/models"
)

func newConvertCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "convert <dir>",
		Short: "Convert a local directory of page images",
		Long: `Converts a directory of page images without starting the service.

Every sub-directory of <dir> becomes one book titled after the directory;
images directly inside <dir> form an "Untitled" book. Pages are ordered by
filename.`,
		Example: `  # Convert ./comics/alpha and ./comics/beta into output/<job id>/
  bindery convert ./comics

  # Write to a different output directory
  bindery convert ./comics --output /tmp/books`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}

			books, err := jobs.ScanDir(args[0])
			if err != nil {
				return err
			}

			l := ledger.New()
			orchestrator := newOrchestrator(cfg, l)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = orchestrator.Shutdown(ctx)
			}()

			handle, err := orchestrator.SubmitBooks(cmd.Context(), books)
			if err != nil {
				return err
			}
			fmt.Printf("Converting %d book(s), job %s\n", len(books), handle.ID)

			if err := handle.Wait(cmd.Context()); err != nil {
				return err
			}

			snap, err := l.Read(handle.ID)
			if err != nil {
				return err
			}
			return printJobResults(snap)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (overrides config)")

	return cmd
}

func printJobResults(snap models.Snapshot) error {
	failed := 0
	fmt.Println()
	for _, r := range snap.Results {
		if r.Succeeded() {
			fmt.Printf("  ✅ %s\n     %s\n     %s\n", r.Title, r.EPUBPath, r.DevicePath)
			continue
		}
		failed++
		fmt.Printf("  ❌ %s: %s\n", r.Title, r.Error)
	}
	fmt.Printf("\n%d of %d book(s) converted\n", len(snap.Results)-failed, len(snap.Results))

	if failed > 0 {
		return fmt.Errorf("%d book(s) failed", failed)
	}
	return nil
}
