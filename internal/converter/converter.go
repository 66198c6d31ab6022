// Package converter turns EPUB containers into device formats with an
// external tool.
package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/lehigh-university-libraries/bindery/internal/models"
)

const (
	DefaultBinary        = "ebook-convert"
	DefaultFormat        = "mobi"
	DefaultOutputProfile = "kindle_pw3"

	// maxOutput caps the tool output kept on a ConversionError.
	maxOutput = 4 << 10
)

// Converter produces a device-format file from an EPUB.
type Converter interface {
	Convert(ctx context.Context, input, output string, profile Profile) error
}

// Profile holds the fixed invocation parameters for a conversion.
type Profile struct {
	Format        string
	OutputProfile string
	ExtraArgs     []string
}

func DefaultProfile() Profile {
	return Profile{
		Format:        DefaultFormat,
		OutputProfile: DefaultOutputProfile,
	}
}

// Ext returns the output file extension including the dot.
func (p Profile) Ext() string {
	if p.Format == "" {
		return "." + DefaultFormat
	}
	return "." + strings.ToLower(p.Format)
}

// Args returns the flags passed after the input and output paths.
func (p Profile) Args() []string {
	profile := p.OutputProfile
	if profile == "" {
		profile = DefaultOutputProfile
	}
	args := []string{
		"--output-profile", profile,
		"--no-inline-toc",
		"--chapter", "/",
		"--page-breaks-before", "/",
	}
	if p.Ext() == ".mobi" {
		args = append(args, "--mobi-keep-original-images")
	}
	return append(args, p.ExtraArgs...)
}

// ConversionError reports a tool run that failed or wrote nothing.
type ConversionError struct {
	Input    string
	ExitCode int
	Output   string
	Err      error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("converting %s: exit status %d", e.Input, e.ExitCode)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Err }

func (e *ConversionError) Is(target error) bool {
	return target == models.ErrConversionFailed
}

// Calibre runs Calibre's ebook-convert.
type Calibre struct {
	binary   string
	runner   Runner
	logger   *slog.Logger
	lookPath func(string) (string, error)
}

func NewCalibre(binary string, logger *slog.Logger) *Calibre {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Calibre{
		binary:   binary,
		runner:   execRunner{},
		logger:   logger,
		lookPath: exec.LookPath,
	}
}

// Available reports whether the binary can be found.
func (c *Calibre) Available() error {
	if _, err := c.lookPath(c.binary); err != nil {
		return fmt.Errorf("%s: %w", c.binary, models.ErrToolMissing)
	}
	return nil
}

// Convert writes output from input. The output file must exist afterwards for
// the conversion to count as a success. On failure nothing is left at output.
func (c *Calibre) Convert(ctx context.Context, input, output string, profile Profile) (err error) {
	if err := c.Available(); err != nil {
		return err
	}

	// A stale file from an earlier run would mask a tool that wrote nothing.
	if err := os.Remove(output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear %s: %w", output, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rmErr := os.Remove(output); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			c.logger.Warn("Failed to remove partial output", "output", output, "err", rmErr)
		}
	}()

	args := append([]string{input, output}, profile.Args()...)
	stdout, stderr, err := c.runner.Run(ctx, c.binary, c.logger, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%s: %w", c.binary, models.ErrToolMissing)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &ConversionError{
			Input:    input,
			ExitCode: code,
			Output:   toolOutput(stderr, stdout),
			Err:      err,
		}
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		return &ConversionError{
			Input:  input,
			Output: "no output written to " + output,
			Err:    err,
		}
	}

	c.logger.Info("Converted book", "input", input, "output", output, "bytes", info.Size())
	return nil
}

func toolOutput(stderr, stdout []byte) string {
	out := strings.TrimSpace(string(stderr))
	if out == "" {
		out = strings.TrimSpace(string(stdout))
	}
	if len(out) > maxOutput {
		out = "..." + out[len(out)-maxOutput:]
	}
	return out
}
