// Package config loads glimm settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/kimhsiao/glimm/backend/internal/export"
	archivecrypto "github.com/kimhsiao/glimm/backend/internal/export/crypto"
	"github.com/kimhsiao/glimm/backend/internal/export/scheduler"
	"github.com/kimhsiao/glimm/backend/internal/logging"
	"github.com/kimhsiao/glimm/backend/internal/reminder"
)

// DefaultEnvFile is read when no env file is named explicitly.
const DefaultEnvFile = ".env"

// Config holds process configuration.
type Config struct {
	DataDir             string `env:"GLIMM_DATA_DIR" envDefault:".glimm"`
	ExportDir           string `env:"GLIMM_EXPORT_DIR"` // defaults to <DataDir>/exports
	WorkDir             string `env:"GLIMM_WORK_DIR"`   // defaults to the OS temp dir
	AppVersion          string `env:"GLIMM_APP_VERSION" envDefault:"1.0.0"`
	ArchiveFormat       string `env:"GLIMM_ARCHIVE_FORMAT" envDefault:"zip"`
	LogLevel            string `env:"GLIMM_LOG_LEVEL" envDefault:"INFO"`
	HTTPAddr            string `env:"GLIMM_HTTP_ADDR" envDefault:"127.0.0.1:8090"`
	Timezone            string `env:"GLIMM_TIMEZONE"` // IANA name; empty means local time
	BackupInterval      string `env:"GLIMM_BACKUP_INTERVAL" envDefault:"manual"`
	BackupRetention     int    `env:"GLIMM_BACKUP_RETENTION" envDefault:"5"`
	ReminderHorizonDays int    `env:"GLIMM_REMINDER_HORIZON_DAYS" envDefault:"7"`
	BackupPassword      string `env:"GLIMM_BACKUP_PASSWORD"` // encrypts automatic backups when set

	format   export.Format
	interval scheduler.ExportInterval
	location *time.Location
}

// Load reads envFile into the process environment and parses the
// configuration. An empty envFile means DefaultEnvFile, which may be
// absent; a named file must exist.
func Load(envFile string) (*Config, error) {
	explicit := envFile != ""
	if !explicit {
		envFile = DefaultEnvFile
	}

	if err := godotenv.Load(envFile); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	} else {
		logging.Debug("loaded env file", logging.Fields{"path": envFile})
	}

	return parse(env.Options{})
}

// FromMap parses configuration from environ instead of the process
// environment.
func FromMap(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve fills derived defaults and validates enumerations.
func (c *Config) resolve() error {
	if c.ExportDir == "" {
		c.ExportDir = filepath.Join(c.DataDir, "exports")
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}

	format, err := export.ParseFormat(c.ArchiveFormat)
	if err != nil {
		return fmt.Errorf("GLIMM_ARCHIVE_FORMAT: %w", err)
	}
	c.format = format

	interval, err := scheduler.ParseInterval(c.BackupInterval)
	if err != nil {
		return fmt.Errorf("GLIMM_BACKUP_INTERVAL: %w", err)
	}
	c.interval = interval

	c.location = time.Local
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("GLIMM_TIMEZONE: %w", err)
		}
		c.location = loc
	}

	if c.BackupRetention < 0 {
		return fmt.Errorf("GLIMM_BACKUP_RETENTION must not be negative")
	}
	if c.BackupPassword != "" {
		if err := archivecrypto.ValidatePassword(c.BackupPassword); err != nil {
			return fmt.Errorf("GLIMM_BACKUP_PASSWORD: %w", err)
		}
	}
	if c.ReminderHorizonDays <= 0 {
		c.ReminderHorizonDays = reminder.DefaultHorizonDays
	}
	return nil
}

// Format returns the parsed archive format.
func (c *Config) Format() export.Format { return c.format }

// Interval returns the parsed automatic backup interval.
func (c *Config) Interval() scheduler.ExportInterval { return c.interval }

// Location returns the zone used for month buckets and reminder times.
func (c *Config) Location() *time.Location { return c.location }

// Level returns the parsed log level.
func (c *Config) Level() logging.LogLevel { return logging.ParseLevel(c.LogLevel) }
