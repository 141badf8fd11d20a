// Command ringguard-watch monitors a directory of finished call recordings
// and submits them to a running ringguard server, chunk by chunk.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ringguard/ringguard/internal/config"
	"github.com/ringguard/ringguard/internal/watcher"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	dir := flag.String("dir", "", "recordings directory (overrides watch.dir)")
	serverURL := flag.String("server", "", "analysis server base URL (overrides watch.server_url)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ringguard-watch: %v\n", err)
		return 1
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.SlogLevel(),
	})))

	if *dir != "" {
		cfg.Watch.Dir = *dir
	}
	if *serverURL != "" {
		cfg.Watch.ServerURL = *serverURL
	}
	if cfg.Watch.Dir == "" {
		fmt.Fprintln(os.Stderr, "ringguard-watch: no recordings directory configured (watch.dir or -dir)")
		return 1
	}
	if cfg.Watch.ServerURL == "" {
		cfg.Watch.ServerURL = "http://localhost" + cfg.Server.ListenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := watcher.NewClient(cfg.Watch.ServerURL)
	w := watcher.New(cfg.Watch.Dir, cfg.Watch.ProcessedDir, cfg.Watch.ChunkSeconds, client)

	slog.Info("ringguard-watch starting",
		"dir", cfg.Watch.Dir,
		"server", cfg.Watch.ServerURL,
		"chunk_seconds", cfg.Watch.ChunkSeconds,
	)

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("watcher error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}
