package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	h "github.com/fjod/mindquiz/internal/http"
	"github.com/fjod/mindquiz/internal/maintenance"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the maintenance schedule",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.Error("close failed", "error", err)
		}
	}()

	sched, err := maintenance.NewScheduler(a.jobs, maintenance.Schedules{
		Rotate:    cfg.RotateCron,
		Backup:    cfg.BackupCron,
		Prune:     cfg.PruneCron,
		PruneDays: cfg.PruneDays,
	}, logger)
	if err != nil {
		return err
	}

	router := h.NewRouter(
		h.RouterConfig{
			AdminPass:      cfg.AdminPass,
			MetricsToken:   cfg.MetricsToken,
			AnalyticsToken: cfg.AnalyticsToken,
			RequestTimeout: cfg.RequestTimeout,
		},
		h.NewPaymentHandler(a.payments, cfg.RequestTimeout),
		h.NewOpsHandler(a.records, a.events, a.metrics, a.jobs, h.OpsConfig{
			Version:     cfg.AppVersion,
			Commit:      cfg.GitSHA,
			Environment: cfg.Environment,
			PruneDays:   cfg.PruneDays,
			SiteURL:     cfg.SiteURL,
		}, cfg.RequestTimeout),
		a.metrics,
		logger,
	)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.ProviderTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "ledger", cfg.LedgerBackend, "payments_enabled", cfg.PaymentsEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	sched.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		sched.Stop(context.Background())
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}
