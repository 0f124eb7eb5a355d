package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/kimhsiao/glimm/backend/cmd/glimm/handlers"
	"github.com/kimhsiao/glimm/backend/internal/export/scheduler"
	"github.com/kimhsiao/glimm/backend/internal/logging"
	"github.com/kimhsiao/glimm/backend/internal/models"
	"github.com/kimhsiao/glimm/backend/internal/notify"
)

const shutdownTimeout = 10 * time.Second

func (c *cli) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reminder daemon, automatic backups and the local API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return c.withApp(func(a *app) error {
				return serve(ctx, a)
			})
		},
	}
}

// serve runs until ctx is cancelled or the HTTP server fails.
func serve(ctx context.Context, a *app) error {
	cfg := a.cfg

	dispatcher, err := notify.NewDispatcher(notify.DispatcherConfig{
		Location:    cfg.Location(),
		HorizonDays: cfg.ReminderHorizonDays,
		Metrics:     a.metrics,
	})
	if err != nil {
		return err
	}
	dispatcher.Start(ctx)
	defer dispatcher.Shutdown()

	window := func() (models.ReminderWindow, error) {
		settings, err := a.repo.GetSettings()
		if err != nil {
			return models.ReminderWindow{}, err
		}
		return settings.Reminders, nil
	}
	if w, err := window(); err != nil {
		logging.Error("failed to load reminder window", err)
	} else if _, err := dispatcher.Rearm(ctx, w); err != nil {
		logging.Warn("initial reminder arm skipped", logging.Fields{"error": err.Error()})
	}
	if err := dispatcher.ScheduleDailyRearm(ctx, window); err != nil {
		return err
	}

	backups := scheduler.NewScheduler(a.export, afero.NewOsFs(), nil, &scheduler.SchedulerConfig{
		Interval:       cfg.Interval(),
		RetentionCount: cfg.BackupRetention,
		ExportDir:      cfg.ExportDir,
		Format:         cfg.Format(),
		Password:       cfg.BackupPassword,
	})
	if err := backups.Start(ctx); err != nil {
		return err
	}
	defer backups.Stop()

	router := handlers.NewRouter(
		handlers.NewExportHandler(a.export, a.repo, cfg.ExportDir),
		handlers.NewReminderHandler(dispatcher, a.repo),
		promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("glimm server listening", logging.Fields{"addr": cfg.HTTPAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
