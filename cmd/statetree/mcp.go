package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/statetree/pkg/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server over stdio",
	Long: `Hosts the agent fleet and exposes it as MCP tools on stdin/stdout so AI
clients can define trees, spawn agents, signal and tick them. Agent events are
pushed to the session that last addressed each agent. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		h, err := newHost(ctx, cfg, logger, hostOptions{persist: true})
		if err != nil {
			return err
		}
		if err := h.start(ctx); err != nil {
			_ = h.shutdown(context.Background())
			return err
		}

		srv := mcp.NewStateTreeServer(mcp.StateTreeServerDeps{
			Fleet:     h.fleet,
			Store:     h.store,
			Hub:       h.hub,
			Scheduler: h.scheduler,
			Logger:    logger,
		})

		loopCtx, stopLoop := context.WithCancel(ctx)
		loopDone := make(chan error, 1)
		go func() { loopDone <- h.loop.Run(loopCtx) }()

		logger.Info("mcp server listening on stdio")
		serveErr := srv.Serve(ctx)
		if errors.Is(serveErr, context.Canceled) {
			serveErr = nil
		}
		if serveErr != nil {
			logger.Error("mcp server stopped", slog.Any("error", serveErr))
		}

		stopLoop()
		<-loopDone
		return errors.Join(serveErr, h.shutdown(context.Background()))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
