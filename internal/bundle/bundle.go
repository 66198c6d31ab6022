// Package bundle packs a job's device-format outputs into one zip.
package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/bindery/internal/models"
)

// Filename is the name offered to clients downloading a bundle.
const Filename = "conversion.zip"

type Bundler struct {
	outputDir string
	ext       string
}

// New returns a Bundler collecting files with extension ext (".mobi") from
// per-job directories under outputDir.
func New(outputDir, ext string) *Bundler {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &Bundler{outputDir: outputDir, ext: strings.ToLower(ext)}
}

// Collect lists the job's device-format files sorted by name.
func (b *Bundler) Collect(jobID string) ([]string, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, fmt.Errorf("job %q: %w", jobID, models.ErrNotFound)
	}

	dir := filepath.Join(b.outputDir, jobID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read job directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.ToLower(filepath.Ext(e.Name())) == b.ext {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("job %s has no %s files: %w", jobID, b.ext, models.ErrNotFound)
	}
	sort.Strings(files)
	return files, nil
}

// Write streams a zip of the job's device-format files to w.
func (b *Bundler) Write(w io.Writer, jobID string) error {
	files, err := b.Collect(jobID)
	if err != nil {
		return err
	}
	return WriteFiles(w, files)
}

// WriteFiles zips files, each under its base name, to w.
func WriteFiles(w io.Writer, files []string) error {
	zw := zip.NewWriter(w)
	for _, path := range files {
		if err := addFile(zw, path); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish zip: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", header.Name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", header.Name, err)
	}
	return nil
}
