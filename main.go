package main

import (
	"context"
	"errors"
	"graphmem/app/config"
	"graphmem/app/service/graph"
	"graphmem/app/service/search"
	"graphmem/app/service/tools"
	"graphmem/app/util/mylog"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, graph.New)
	do.Provide(di, search.New)
	do.Provide(di, tools.New)

	slog.Info("Service started", "memory_file", cfg.Store.FilePath)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	go func() {
		if err := do.MustInvoke[*tools.Service](di).Serve(appCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP server stopped", "error", err)
		}

		cancel()
	}()

	<-appCtx.Done()
}
