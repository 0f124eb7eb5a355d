package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"

	"github.com/kimhsiao/glimm/backend/internal/config"
	"github.com/kimhsiao/glimm/backend/internal/db"
	"github.com/kimhsiao/glimm/backend/internal/export"
	"github.com/kimhsiao/glimm/backend/internal/logging"
	"github.com/kimhsiao/glimm/backend/internal/telemetry"
)

// app holds the long-lived components built from a Config.
type app struct {
	cfg      *config.Config
	db       *db.DB
	repo     *db.Repository
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	export   *export.ExportService
}

func openApp(cfg *config.Config) (*app, error) {
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	repo := db.NewRepository(database.DB)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	builder := export.NewBuilder(afero.NewOsFs(), nil, export.BuilderConfig{
		WorkRoot:   cfg.WorkDir,
		OutputDir:  cfg.ExportDir,
		AppVersion: cfg.AppVersion,
		Format:     cfg.Format(),
		Location:   cfg.Location(),
	})

	logging.Debug("store opened", logging.Fields{"data_dir": cfg.DataDir})

	return &app{
		cfg:      cfg,
		db:       database,
		repo:     repo,
		registry: registry,
		metrics:  metrics,
		export:   export.NewExportService(repo, repo, builder, metrics),
	}, nil
}

// Close releases cached statements and the database handle.
func (a *app) Close() error {
	if err := a.repo.Close(); err != nil {
		logging.Warn("failed to close statements", logging.Fields{"error": err.Error()})
	}
	return a.db.Close()
}
