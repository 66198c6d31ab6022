// Package config loads service settings from defaults, an optional YAML file
// and BINDERY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/bindery/internal/converter"
	"github.com/lehigh-university-libraries/bindery/internal/normalize"
)

const envPrefix = "BINDERY_"

type Config struct {
	Addr              string          `yaml:"addr" validate:"required"`
	UploadDir         string          `yaml:"upload_dir" validate:"required"`
	OutputDir         string          `yaml:"output_dir" validate:"required"`
	Converter         ConverterConfig `yaml:"converter"`
	JPEGQuality       int             `yaml:"jpeg_quality" validate:"gte=1,lte=100"`
	MaxPageHeight     int             `yaml:"max_page_height" validate:"gte=0"`
	MaxUploadBytes    int64           `yaml:"max_upload_bytes" validate:"gte=0"`
	MaxConcurrentJobs int             `yaml:"max_concurrent_jobs" validate:"gte=0"`
	ShutdownTimeout   time.Duration   `yaml:"shutdown_timeout" validate:"gte=0"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
	DatabaseURL       string          `yaml:"database_url" validate:"omitempty,url"`
}

type ConverterConfig struct {
	Binary        string   `yaml:"binary" validate:"required"`
	OutputFormat  string   `yaml:"output_format" validate:"oneof=mobi azw3"`
	OutputProfile string   `yaml:"output_profile" validate:"required"`
	ExtraArgs     []string `yaml:"extra_args"`
}

// RateLimitConfig limits POST /convert per client. RPS 0 disables it.
// TrustedProxies lists the proxies whose X-Forwarded-For header is honoured.
type RateLimitConfig struct {
	RPS            float64  `yaml:"rps" validate:"gte=0"`
	Burst          int      `yaml:"burst" validate:"gte=0"`
	TrustedProxies []string `yaml:"trusted_proxies" validate:"dive,ip|cidr"`
}

func Default() Config {
	return Config{
		Addr:      ":8888",
		UploadDir: "uploads",
		OutputDir: "output",
		Converter: ConverterConfig{
			Binary:        converter.DefaultBinary,
			OutputFormat:  converter.DefaultFormat,
			OutputProfile: converter.DefaultOutputProfile,
		},
		JPEGQuality:     normalize.DefaultJPEGQuality,
		MaxUploadBytes:  512 << 20,
		ShutdownTimeout: 30 * time.Second,
		RateLimit: RateLimitConfig{
			RPS:   1,
			Burst: 5,
		},
	}
}

// Load applies the YAML file at path (if any) and then the environment on
// top of the defaults, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	c.Addr = getEnv("ADDR", c.Addr)
	c.UploadDir = getEnv("UPLOAD_DIR", c.UploadDir)
	c.OutputDir = getEnv("OUTPUT_DIR", c.OutputDir)
	c.Converter.Binary = getEnv("CONVERTER_BINARY", c.Converter.Binary)
	c.Converter.OutputFormat = getEnv("CONVERTER_OUTPUT_FORMAT", c.Converter.OutputFormat)
	c.Converter.OutputProfile = getEnv("CONVERTER_OUTPUT_PROFILE", c.Converter.OutputProfile)
	if v := getEnv("CONVERTER_EXTRA_ARGS", ""); v != "" {
		c.Converter.ExtraArgs = strings.Fields(v)
	}
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	if v := getEnv("RATE_LIMIT_TRUSTED_PROXIES", ""); v != "" {
		c.RateLimit.TrustedProxies = strings.Split(v, ",")
		for i := range c.RateLimit.TrustedProxies {
			c.RateLimit.TrustedProxies[i] = strings.TrimSpace(c.RateLimit.TrustedProxies[i])
		}
	}

	c.JPEGQuality = getEnvAsInt("JPEG_QUALITY", c.JPEGQuality, &errs)
	c.MaxPageHeight = getEnvAsInt("MAX_PAGE_HEIGHT", c.MaxPageHeight, &errs)
	c.MaxUploadBytes = int64(getEnvAsInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes), &errs))
	c.MaxConcurrentJobs = getEnvAsInt("MAX_CONCURRENT_JOBS", c.MaxConcurrentJobs, &errs)
	c.RateLimit.Burst = getEnvAsInt("RATE_LIMIT_BURST", c.RateLimit.Burst, &errs)

	if v := getEnv("RATE_LIMIT_RPS", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_LIMIT_RPS: %w", envPrefix, err))
		} else {
			c.RateLimit.RPS = f
		}
	}
	if v := getEnv("SHUTDOWN_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSHUTDOWN_TIMEOUT: %w", envPrefix, err))
		} else {
			c.ShutdownTimeout = d
		}
	}
	return errors.Join(errs...)
}

var validate = validator.New()

// Validate checks field constraints and reports every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = fmt.Sprintf("%s is required", fe.Namespace())
		case "oneof":
			msg = fmt.Sprintf("%s must be one of: %s", fe.Namespace(), fe.Param())
		case "gte", "lte":
			msg = fmt.Sprintf("%s must be %s %s", fe.Namespace(), fe.Tag(), fe.Param())
		case "url":
			msg = fmt.Sprintf("%s must be a valid URL", fe.Namespace())
		default:
			msg = fmt.Sprintf("%s is invalid", fe.Namespace())
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// Profile returns the converter invocation parameters.
func (c Config) Profile() converter.Profile {
	return converter.Profile{
		Format:        c.Converter.OutputFormat,
		OutputProfile: c.Converter.OutputProfile,
		ExtraArgs:     c.Converter.ExtraArgs,
	}
}

// NormalizeOptions returns the page normalizer settings.
func (c Config) NormalizeOptions() normalize.Options {
	return normalize.Options{
		JPEGQuality: c.JPEGQuality,
		MaxHeight:   c.MaxPageHeight,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return defaultValue
	}
	return intVal
}
