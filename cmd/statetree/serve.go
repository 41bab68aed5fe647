package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/statetree/internal/api"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the agent fleet and expose it over HTTP",
	Long: `Opens the database, restores checkpointed agents, starts the cron scheduler
and the frame loop, and serves the JSON API, SSE event stream and Prometheus
metrics on --listen-addr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfg Config, logger *slog.Logger) error {
	h, err := newHost(ctx, cfg, logger, hostOptions{persist: true})
	if err != nil {
		return err
	}
	if err := h.start(ctx); err != nil {
		_ = h.shutdown(context.Background())
		return err
	}

	writePID(logger)
	defer os.Remove(pidPath())

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: api.NewServer(api.Deps{
			Fleet:     h.fleet,
			Store:     h.store,
			Hub:       h.hub,
			Scheduler: h.scheduler,
			Logger:    logger,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	loopDone := make(chan error, 1)
	go func() { loopDone <- h.loop.Run(loopCtx) }()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful http shutdown failed", slog.Any("error", err))
		_ = srv.Close()
	}
	stopLoop()
	<-loopDone
	return errors.Join(runErr, h.shutdown(shutdownCtx))
}

func writePID(logger *slog.Logger) {
	if err := os.MkdirAll(stateTreeDir(), 0o700); err != nil {
		logger.Warn("create state dir", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		logger.Warn("write pid file", slog.Any("error", err))
	}
}
