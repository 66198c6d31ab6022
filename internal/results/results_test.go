package results

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/bindery/internal/models"
)

func snapshot(id string, created time.Time) models.Snapshot {
	return models.Snapshot{
		JobID:       id,
		Progress:    2,
		Status:      models.StatusCompleted,
		Books:       2,
		CreatedAt:   created,
		CompletedAt: created.Add(time.Minute),
		Results: []models.BookResult{
			{Index: 1, Title: "alpha", EPUBPath: "out/alpha.epub", DevicePath: "out/alpha.mobi"},
			{Index: 2, Title: "beta", Error: "conversion failed"},
		},
	}
}

func TestFromSnapshot(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := FromSnapshot(snapshot("job-1", created))

	assert.Equal(t, "job-1", r.Summary.JobID)
	assert.Equal(t, models.StatusCompleted, r.Summary.Status)
	assert.Equal(t, 1, r.Summary.Succeeded)
	assert.Equal(t, 1, r.Summary.Failed)
	assert.Len(t, r.Results, 2)
}

func TestSaveAndLoadAll(t *testing.T) {
	root := t.TempDir()
	older := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	_, err := Save(filepath.Join(root, "job-b"), FromSnapshot(snapshot("job-b", newer)))
	require.NoError(t, err)
	path, err := Save(filepath.Join(root, "job-a"), FromSnapshot(snapshot("job-a", older)))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "job-a", ReportFile), path)

	// A job directory without a report and a corrupt report are both skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "job-c"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "job-d"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "job-d", ReportFile), []byte("summary: [unterminated"), 0644))

	reports, err := LoadAll(root)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "job-a", reports[0].Summary.JobID)
	assert.Equal(t, "job-b", reports[1].Summary.JobID)
	assert.True(t, reports[0].Summary.CreatedAt.Equal(older))
	assert.Equal(t, "conversion failed", reports[0].Results[1].Error)

	totals := Aggregate(reports)
	assert.Equal(t, Totals{Jobs: 2, Books: 4, Succeeded: 2, Failed: 2}, totals)
	assert.InDelta(t, 0.5, totals.SuccessRate(), 0.0001)
}

func TestLoadAllMissingRoot(t *testing.T) {
	reports, err := LoadAll(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Zero(t, Aggregate(reports).SuccessRate())
}

func TestParquetExport(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := Rows([]Report{FromSnapshot(snapshot("job-1", created))})
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Succeeded)
	assert.False(t, rows[1].Succeeded)

	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, rows))

	path := filepath.Join(t.TempDir(), "results.parquet")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	got, err := ReadParquet(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "job-1", got[0].JobID)
	assert.Equal(t, created.UnixMilli(), got[0].CreatedAt)
	assert.Equal(t, "alpha", got[0].Title)
	assert.Equal(t, "out/alpha.mobi", got[0].DevicePath)
	assert.Equal(t, "conversion failed", got[1].Error)
	assert.Equal(t, "completed", got[1].JobStatus)
}
