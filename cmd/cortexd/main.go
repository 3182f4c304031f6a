// Command cortexd runs the persistent memory engine behind either the
// HTTP/WebSocket API (the default) or, with -mcp, the MCP stdio server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/cortexmem/cortex/internal/api"
	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/engine"
	"github.com/cortexmem/cortex/internal/eventbus"
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/mcptools"
)

func main() {
	mcpMode := flag.Bool("mcp", false, "serve MCP tools over stdio instead of HTTP")
	flag.Parse()

	log := logging.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng, err := engine.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open engine")
	}
	defer func() {
		eng.Bus.Publish(eventbus.ServerRestarting, nil)
		if err := eng.Close(); err != nil {
			log.Error().Err(err).Msg("error closing engine")
		}
	}()

	if *mcpMode {
		log.Info().Msg("serving MCP tools over stdio")
		mcpServer := mcptools.Register(eng)
		if err := server.ServeStdio(mcpServer); err != nil {
			log.Fatal().Err(err).Msg("mcp server exited with error")
		}
		return
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewServer(eng),
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("db", cfg.DBPath).Msg("cortexd listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server exited with error")
	}
}
