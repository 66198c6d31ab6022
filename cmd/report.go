package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/bindery/internal/history"
	"github.com/lehigh-university-libraries/bindery/internal/results"
)

func newReportCmd() *cobra.Command {
	var (
		outputDir   string
		format      string
		parquetPath string
		fromDB      bool
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize finished conversion jobs",
		Long: `Reads the report.yaml written into each job's output directory and
prints a summary, or exports one row per book to a parquet file.

With --db the summary comes from the job history database instead.`,
		Example: `  # Text summary of every job under the configured output directory
  bindery report

  # Export every book outcome for analysis
  bindery report --parquet books.parquet

  # Recent jobs from the history database
  bindery report --db --limit 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}

			if fromDB {
				if cfg.DatabaseURL == "" {
					return fmt.Errorf("--db requires database_url (BINDERY_DATABASE_URL)")
				}
				store, err := history.Open(cmd.Context(), cfg.DatabaseURL, nil)
				if err != nil {
					return err
				}
				defer store.Close()
				snaps, err := store.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				reports := make([]results.Report, 0, len(snaps))
				for _, s := range snaps {
					full, err := store.Job(cmd.Context(), s.JobID)
					if err != nil {
						return err
					}
					reports = append(reports, results.FromSnapshot(full))
				}
				return printReports(reports, format)
			}

			reports, err := results.LoadAll(cfg.OutputDir)
			if err != nil {
				return fmt.Errorf("failed to load reports: %w", err)
			}

			if parquetPath != "" {
				return exportParquet(reports, parquetPath)
			}
			return printReports(reports, format)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory holding job reports (overrides config)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json, csv")
	cmd.Flags().StringVar(&parquetPath, "parquet", "", "Write one row per book to this parquet file")
	cmd.Flags().BoolVar(&fromDB, "db", false, "Read jobs from the history database")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum jobs to read with --db")

	return cmd
}

func printReports(reports []results.Report, format string) error {
	switch format {
	case "text":
		return printTextReport(reports)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "csv":
		return printCSVReport(reports)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printTextReport(reports []results.Report) error {
	fmt.Println("========================================")
	fmt.Println("Bindery Conversion Report")
	fmt.Println("========================================")

	totals := results.Aggregate(reports)
	fmt.Printf("Jobs:      %d\n", totals.Jobs)
	fmt.Printf("Books:     %d\n", totals.Books)
	fmt.Printf("Succeeded: %d\n", totals.Succeeded)
	fmt.Printf("Failed:    %d\n", totals.Failed)
	fmt.Printf("Success:   %.2f%%\n", totals.SuccessRate()*100)

	for _, r := range reports {
		s := r.Summary
		fmt.Printf("\n[%s] %s  %d/%d converted  %s\n", s.Status, s.JobID, s.Succeeded, s.Books, s.CreatedAt.Format("2006-01-02 15:04:05"))
		for _, res := range r.Results {
			if res.Succeeded() {
				fmt.Printf("  ✅ %s\n", res.Title)
			} else {
				fmt.Printf("  ❌ %s: %s\n", res.Title, res.Error)
			}
		}
	}
	return nil
}

func printCSVReport(reports []results.Report) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"job_id", "status", "book_index", "title", "succeeded", "device_path", "error"}); err != nil {
		return err
	}
	for _, row := range results.Rows(reports) {
		record := []string{
			row.JobID,
			row.JobStatus,
			strconv.Itoa(row.BookIndex),
			row.Title,
			strconv.FormatBool(row.Succeeded),
			row.DevicePath,
			row.Error,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}

func exportParquet(reports []results.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	rows := results.Rows(reports)
	if err := results.WriteParquet(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("✅ Wrote %d row(s) to %s\n", len(rows), path)
	return nil
}
