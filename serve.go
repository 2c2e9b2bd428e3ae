package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"faultline/config"
	"faultline/core"
	"faultline/database"
	"faultline/handlers"
	"faultline/service"
	"faultline/version"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the error telemetry HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.Settings)
		},
	}
	config.BindServerFlags(cmd.Flags())
	return cmd
}

func serve(ctx context.Context, settings *config.Config) error {
	logrus.WithField("version", version.GetFullVersion()).Info("System starting up...")

	if err := database.InitDB(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := database.CloseDB(); err != nil {
			logrus.WithError(err).Warn("Error closing database")
		}
	}()

	svc := service.InitServices(database.DB, settings)
	if err := svc.Retention.Start(); err != nil {
		return fmt.Errorf("failed to start retention scheduler: %w", err)
	}

	routeGinLogs(logrus.IsLevelEnabled(logrus.DebugLevel))
	router, err := handlers.NewRouter(svc, settings)
	if err != nil {
		return err
	}

	listener, err := core.Listen("0.0.0.0", settings.Port)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("Server listening on http://%s", listener.Addr())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logrus.Info("Received interrupt signal")
	case err := <-serveErr:
		if err != nil {
			logrus.WithError(err).Error("Server stopped unexpectedly")
		}
	}

	logrus.Info("System shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(settings.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Server forced to shutdown")
	}
	svc.Retention.Stop(shutdownCtx)

	logrus.Info("Server exited")
	return nil
}
