package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskorder/internal/access"
	"github.com/twiced-technology-gmbh/taskorder/internal/config"
	"github.com/twiced-technology-gmbh/taskorder/internal/httpapi"
	"github.com/twiced-technology-gmbh/taskorder/internal/logging"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the board's tasks over HTTP",
	Long: `Exposes the configured backend as the taskorder JSON API, so other machines can
use it with backend.kind=http. Prometheus metrics are served on /metrics.

The server stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (default: server.listen from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Backend.Kind == config.BackendHTTP {
		return errors.New("serve needs a file or redis backend; backend.kind=http would proxy to itself")
	}

	addr, _ := cmd.Flags().GetString("listen")
	if addr == "" {
		addr = cfg.Server.Listen
	}
	if addr == "" {
		addr = config.DefaultListen
	}

	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, closeSvc, err := openService(ctx, cfg, access.Owner{}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSvc(); err != nil {
			logger.WithError(err).Warn("closing backend")
		}
	}()

	e := httpapi.New(svc, httpapi.Options{
		Logger:     logger,
		Gatherer:   prometheus.DefaultGatherer,
		Registerer: prometheus.DefaultRegisterer,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{
			"addr":    addr,
			"backend": cfg.Backend.Kind,
		}).Info("serving task API")
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
