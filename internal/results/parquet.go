package results

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// Row is one book outcome flattened for columnar export.
type Row struct {
	JobID       string `parquet:"job_id"`
	CreatedAt   int64  `parquet:"created_at_ms"`
	BookIndex   int    `parquet:"book_index"`
	Title       string `parquet:"title"`
	Succeeded   bool   `parquet:"succeeded"`
	EPUBPath    string `parquet:"epub_path,optional"`
	DevicePath  string `parquet:"device_path,optional"`
	Error       string `parquet:"error,optional"`
	JobStatus   string `parquet:"job_status"`
	JobProgress int    `parquet:"job_progress"`
}

// Rows flattens reports into one row per book.
func Rows(reports []Report) []Row {
	var rows []Row
	for _, r := range reports {
		for _, res := range r.Results {
			rows = append(rows, Row{
				JobID:       r.Summary.JobID,
				CreatedAt:   r.Summary.CreatedAt.UnixMilli(),
				BookIndex:   res.Index,
				Title:       res.Title,
				Succeeded:   res.Succeeded(),
				EPUBPath:    res.EPUBPath,
				DevicePath:  res.DevicePath,
				Error:       res.Error,
				JobStatus:   string(r.Summary.Status),
				JobProgress: r.Summary.Progress,
			})
		}
	}
	return rows
}

// WriteParquet writes rows to w as a single parquet file.
func WriteParquet(w io.Writer, rows []Row) error {
	pw := parquet.NewGenericWriter[Row](w)
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return nil
}

// ReadParquet reads back a file produced by WriteParquet.
func ReadParquet(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var records []Row
	buf := make([]Row, 128)
	for {
		n, err := reader.Read(buf)
		records = append(records, buf[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return records, nil
}
