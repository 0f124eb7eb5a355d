// Package scheduler provides automatic backup scheduling with archive
// retention.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/kimhsiao/glimm/backend/internal/export"
	"github.com/kimhsiao/glimm/backend/internal/logging"
)

// ExportInterval defines the scheduling frequency.
type ExportInterval string

const (
	IntervalManual  ExportInterval = "manual"
	IntervalDaily   ExportInterval = "daily"
	IntervalWeekly  ExportInterval = "weekly"
	IntervalMonthly ExportInterval = "monthly"
)

// ParseInterval accepts the interval names case-insensitively; empty
// means manual.
func ParseInterval(s string) (ExportInterval, error) {
	switch ExportInterval(strings.ToLower(strings.TrimSpace(s))) {
	case "", IntervalManual:
		return IntervalManual, nil
	case IntervalDaily:
		return IntervalDaily, nil
	case IntervalWeekly:
		return IntervalWeekly, nil
	case IntervalMonthly:
		return IntervalMonthly, nil
	default:
		return "", fmt.Errorf("unknown interval: %s", s)
	}
}

// SchedulerConfig holds the scheduler configuration.
type SchedulerConfig struct {
	Interval       ExportInterval // How often to export
	RetentionCount int            // Number of archives to keep (0 = unlimited)
	ExportDir      string         // Directory to store exports (default: "exports")
	Format         export.Format  // Archive container (empty = builder default)
	Password       string         // Encrypts automatic backups when set
}

// Scheduler manages automatic backups.
type Scheduler struct {
	mu      sync.Mutex
	service export.ExportServiceInterface
	fs      afero.Fs
	clock   clockwork.Clock
	config  *SchedulerConfig
	cron    gocron.Scheduler
	done    chan struct{} // closed when the current run stops
}

// NewScheduler creates a new backup scheduler. fs must be the filesystem
// the service writes archives to; nil means the OS filesystem. A nil
// clock means the wall clock.
func NewScheduler(service export.ExportServiceInterface, fs afero.Fs, clock clockwork.Clock, config *SchedulerConfig) *Scheduler {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.ExportDir == "" {
		config.ExportDir = "exports"
	}
	if config.RetentionCount < 0 {
		config.RetentionCount = 0
	}

	return &Scheduler{
		service: service,
		fs:      fs,
		clock:   clock,
		config:  config,
	}
}

// Start begins automatic backups. The first backup runs immediately
// unless the interval is manual. Cancelling ctx stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Interval == IntervalManual {
		logging.Info("backup scheduler in manual mode, automatic backups disabled")
		return nil
	}
	if s.cron != nil {
		return fmt.Errorf("scheduler already running")
	}

	dur, err := s.intervalDuration()
	if err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}

	cron, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = cron.NewJob(
		gocron.DurationJob(dur),
		gocron.NewTask(func() {
			if err := s.runExport(ctx); err != nil {
				logging.Error("scheduled backup failed", err)
			}
		}),
		gocron.WithName("auto-backup"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cron.Shutdown()
		return fmt.Errorf("failed to schedule backup: %w", err)
	}

	cron.Start()
	done := make(chan struct{})
	s.cron = cron
	s.done = done
	logging.Info("backup scheduler started", logging.Fields{
		"interval":        string(s.config.Interval),
		"retention_count": s.config.RetentionCount,
		"export_dir":      s.config.ExportDir,
	})

	go func() {
		select {
		case <-ctx.Done():
			s.stop(done)
		case <-done:
		}
	}()

	return nil
}

// Stop shuts down the scheduler. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stop(nil)
}

// stop shuts down the current run. A non-nil run only stops the run it
// belongs to, so a cancelled context from an earlier Start cannot stop a
// later one.
func (s *Scheduler) stop(run chan struct{}) {
	s.mu.Lock()
	cron := s.cron
	if cron == nil || (run != nil && run != s.done) {
		s.mu.Unlock()
		return
	}
	close(s.done)
	s.cron = nil
	s.done = nil
	s.mu.Unlock()

	// outside the lock: Shutdown waits for a running backup, which reads
	// the config
	if err := cron.Shutdown(); err != nil {
		logging.Warn("backup scheduler shutdown", logging.Fields{"error": err.Error()})
	}
	logging.Info("backup scheduler stopped")
}

// Running reports whether automatic backups are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// runExport performs a single backup with retention management.
func (s *Scheduler) runExport(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := s.GetConfig()
	result, err := s.service.Export(&export.ExportConfig{
		OutputDir: cfg.ExportDir,
		Format:    cfg.Format,
		Password:  cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	logging.Info("scheduled backup completed", logging.Fields{
		"file":       result.FilePath,
		"item_count": result.ItemCount,
	})

	if cfg.RetentionCount > 0 {
		// Don't fail the backup if retention fails
		if err := s.applyRetentionPolicy(cfg); err != nil {
			logging.Error("retention policy failed", err)
		}
	}

	return nil
}

// intervalDuration converts the interval to a time.Duration.
func (s *Scheduler) intervalDuration() (time.Duration, error) {
	switch s.config.Interval {
	case IntervalDaily:
		return 24 * time.Hour, nil
	case IntervalWeekly:
		return 7 * 24 * time.Hour, nil
	case IntervalMonthly:
		// Approximate as 30 days
		return 30 * 24 * time.Hour, nil
	case IntervalManual:
		return 0, fmt.Errorf("manual interval has no duration")
	default:
		return 0, fmt.Errorf("unknown interval: %s", s.config.Interval)
	}
}

// applyRetentionPolicy removes the oldest backups beyond the retention count.
func (s *Scheduler) applyRetentionPolicy(cfg SchedulerConfig) error {
	archives, err := listArchives(s.fs, cfg.ExportDir)
	if err != nil {
		return fmt.Errorf("failed to list archives: %w", err)
	}

	// oldest first; names carry the export date, so they break ties
	sort.Slice(archives, func(i, j int) bool {
		if !archives[i].CreatedAt.Equal(archives[j].CreatedAt) {
			return archives[i].CreatedAt.Before(archives[j].CreatedAt)
		}
		return archives[i].Path < archives[j].Path
	})

	if len(archives) <= cfg.RetentionCount {
		return nil
	}
	for _, archive := range archives[:len(archives)-cfg.RetentionCount] {
		if err := s.fs.Remove(archive.Path); err != nil {
			logging.Error("failed to delete old archive", err, logging.Fields{"path": archive.Path})
			continue
		}
		logging.Info("deleted old archive", logging.Fields{"path": archive.Path})
	}
	return nil
}

// ArchiveInfo represents metadata about a backup archive on disk.
type ArchiveInfo struct {
	Path      string
	SizeBytes int64
	CreatedAt time.Time
}

// listArchives returns the backups directly inside exportDir. Other files
// and unfinished .tmp archives are ignored.
func listArchives(fs afero.Fs, exportDir string) ([]*ArchiveInfo, error) {
	var archives []*ArchiveInfo

	entries, err := afero.ReadDir(fs, exportDir)
	if os.IsNotExist(err) {
		return archives, nil
	}
	if err != nil {
		return nil, err
	}

	for _, fi := range entries {
		if fi.IsDir() || !isBackupArchive(fi.Name()) {
			continue
		}
		archives = append(archives, &ArchiveInfo{
			Path:      filepath.Join(exportDir, fi.Name()),
			SizeBytes: fi.Size(),
			CreatedAt: fi.ModTime(),
		})
	}
	return archives, nil
}

func isBackupArchive(name string) bool {
	if !strings.HasPrefix(name, export.BackupPrefix) {
		return false
	}
	name = strings.TrimSuffix(name, export.EncryptedExt)
	return strings.HasSuffix(name, export.FormatZip.Ext()) || strings.HasSuffix(name, export.FormatTarGz.Ext())
}

// UpdateConfig replaces the configuration. A running scheduler is stopped;
// the caller needs to call Start again.
func (s *Scheduler) UpdateConfig(config *SchedulerConfig) {
	if config.ExportDir == "" {
		config.ExportDir = "exports"
	}
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
}

// GetConfig returns a copy of the current configuration.
func (s *Scheduler) GetConfig() SchedulerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.config
}
