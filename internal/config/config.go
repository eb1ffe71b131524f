package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"pathgc/internal/fsops"
	"pathgc/internal/jobpath"
)

const (
	FileSystemLocal = "local"
	FileSystemS3    = "s3"
)

type S3Cfg struct {
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`     // S3-compatible endpoint (MinIO, Ceph RGW)
	PathStyle bool   `yaml:"path_style" json:"path_style"` // Required by most S3-compatible stores
}

type FileSystemCfg struct {
	Type       string `yaml:"type" json:"type"`                               // local or s3
	Root       string `yaml:"root" json:"root"`                               // Host directory that job paths are resolved under (local only)
	NFSTimeout int    `yaml:"nfs_timeout_seconds" json:"nfs_timeout_seconds"` // Timeout for stat on NFS mounts
	S3         S3Cfg  `yaml:"s3" json:"s3"`
}

type LoggingCfg struct {
	Type         string `yaml:"type" json:"type"`                   // json, text or tint
	Level        string `yaml:"level" json:"level"`                 // debug, info, warn, error
	File         string `yaml:"file" json:"file"`                   // Optional log file, tee'd with stdout
	RotationDays int    `yaml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

type PrometheusCfg struct {
	Pushgateway string `yaml:"pushgateway" json:"pushgateway"` // Empty disables pushing
	Job         string `yaml:"job" json:"job"`
}

type SafetyCfg struct {
	AllowedRoots      []string `yaml:"allowed_roots" json:"allowed_roots"`
	ProtectedPaths    []string `yaml:"protected_paths" json:"protected_paths"`
	ProtectedPatterns []string `yaml:"protected_patterns" json:"protected_patterns"`
}

type Config struct {
	WorkingDir     string        `yaml:"working_dir" json:"working_dir"`
	JobDirTemplate string        `yaml:"job_dir_template" json:"job_dir_template"`
	FileSystem     FileSystemCfg `yaml:"filesystem" json:"filesystem"`
	Logging        LoggingCfg    `yaml:"logging" json:"logging"`
	Prometheus     PrometheusCfg `yaml:"prometheus" json:"prometheus"`
	DatabasePath   string        `yaml:"database_path" json:"database_path"` // Path to SQLite database for run history; empty disables it
	Safety         SafetyCfg     `yaml:"safety" json:"safety"`
}

var (
	errNoWorkingDir    = errors.New("configuration must specify working_dir")
	errInvalidPath     = errors.New("path must be absolute")
	errUnknownFS       = errors.New("unknown filesystem type")
	errNoBucket        = errors.New("s3 filesystem requires a bucket")
	errUnknownLogType  = errors.New("unknown logging type")
	errUnknownLogLevel = errors.New("unknown logging level")
	errBadPattern      = errors.New("invalid protected pattern")
)

// Load reads a YAML config file. ${VAR} references are expanded from the
// environment before decoding.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes, defaults and validates a config.
func Parse(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) validateAndDefault() error {
	if c.WorkingDir == "" {
		return errNoWorkingDir
	}
	wd, err := cleanAbsolute(c.WorkingDir)
	if err != nil {
		return fmt.Errorf("working_dir: %w", err)
	}
	c.WorkingDir = wd

	if c.JobDirTemplate == "" {
		c.JobDirTemplate = jobpath.DefaultTemplate
	}
	if _, err := c.Layout(); err != nil {
		return fmt.Errorf("job_dir_template: %w", err)
	}

	// Filesystem
	if c.FileSystem.Type == "" {
		c.FileSystem.Type = FileSystemLocal
	}
	switch c.FileSystem.Type {
	case FileSystemLocal:
		if c.FileSystem.NFSTimeout <= 0 {
			c.FileSystem.NFSTimeout = 5 // Default: 5 seconds timeout for NFS operations
		}
	case FileSystemS3:
		if c.FileSystem.S3.Bucket == "" {
			return errNoBucket
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownFS, c.FileSystem.Type)
	}

	// Logging
	if c.Logging.Type == "" {
		c.Logging.Type = "tint"
	}
	switch c.Logging.Type {
	case "json", "text", "tint":
	default:
		return fmt.Errorf("%w: %q", errUnknownLogType, c.Logging.Type)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", errUnknownLogLevel, c.Logging.Level)
	}
	if c.Logging.RotationDays <= 0 {
		c.Logging.RotationDays = 30 // Default: keep logs for 30 days
	}

	if c.Prometheus.Job == "" {
		c.Prometheus.Job = "pathgc"
	}

	// Safety
	for i, p := range c.Safety.AllowedRoots {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return fmt.Errorf("safety.allowed_roots: %w", err)
		}
		c.Safety.AllowedRoots[i] = cp
	}
	for i, p := range c.Safety.ProtectedPaths {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return fmt.Errorf("safety.protected_paths: %w", err)
		}
		c.Safety.ProtectedPaths[i] = cp
	}
	for _, pattern := range c.Safety.ProtectedPatterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: %q", errBadPattern, pattern)
		}
	}

	return nil
}

func cleanAbsolute(p string) (string, error) {
	if !fsops.IsAbs(p) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return fsops.CleanPath(p), nil
}

// Layout returns the job working-directory convention.
func (c *Config) Layout() (*jobpath.Layout, error) {
	return jobpath.New(c.WorkingDir, c.JobDirTemplate)
}

func (c *Config) StatTimeout() time.Duration {
	return time.Duration(c.FileSystem.NFSTimeout) * time.Second
}

// S3Options maps the s3 block onto the object-store backend's options.
func (c *Config) S3Options() fsops.S3Options {
	return fsops.S3Options{
		Bucket:    c.FileSystem.S3.Bucket,
		Region:    c.FileSystem.S3.Region,
		Endpoint:  c.FileSystem.S3.Endpoint,
		PathStyle: c.FileSystem.S3.PathStyle,
	}
}
