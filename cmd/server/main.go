package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arranmoreferry/mcp-server/internal/domain/shared"
	"github.com/arranmoreferry/mcp-server/internal/infrastructure/logging"
	"github.com/arranmoreferry/mcp-server/internal/infrastructure/server"
	"github.com/arranmoreferry/mcp-server/internal/interfaces/rest"
	"github.com/arranmoreferry/mcp-server/internal/usecases/dates"
	"github.com/arranmoreferry/mcp-server/internal/usecases/ferries"
	"github.com/arranmoreferry/mcp-server/internal/usecases/uptime"
)

const (
	serverName    = "arranmore-mcp-server"
	serverVersion = "1.0.0"
)

func main() {
	var (
		addr        = flag.String("addr", envOr("MCP_SERVER_ADDR", ":3000"), "HTTP listen address")
		refresh     = flag.Duration("refresh", 5*time.Second, "tool catalog refresh interval")
		development = flag.Bool("dev", false, "enable development logging")
	)
	flag.Parse()

	var logger *logging.Logger
	var err error
	if *development {
		logger, err = logging.NewDevelopment()
	} else {
		logger, err = logging.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Wire the core: registry, catalog, streamer, router.
	registry := server.NewSessionRegistry(logger)
	catalog := server.NewToolCatalog(logger)
	streamer := server.NewNotificationStreamer(registry, catalog, logger,
		server.WithRefreshInterval(*refresh),
	)

	uptimeHandler := uptime.NewHandler()
	ferriesHandler := ferries.NewHandler(logger)
	datesHandler := dates.NewHandler()

	catalog.Register(uptimeHandler.Definition(), uptimeHandler.GetUptime)
	catalog.Register(ferriesHandler.BaseDefinition(), ferriesHandler.GetBase)
	catalog.Register(ferriesHandler.FerriesDefinition(), ferriesHandler.GetFerries)
	catalog.Register(datesHandler.Definition(), datesHandler.InterpretDay)

	info := shared.ServerInfo{Name: serverName, Version: serverVersion}
	mcpHandler := server.NewStreamableHTTPHandler(registry, catalog, streamer, info, logger)

	httpServer := rest.NewServer(*addr, mcpHandler, uptimeHandler, logger)

	streamer.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", logging.Fields{"signal": sig.String()})
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", logging.Fields{"error": err.Error()})
		}
	}

	streamer.Stop()
	registry.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", logging.Fields{"error": err.Error()})
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
