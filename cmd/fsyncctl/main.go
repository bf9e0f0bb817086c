// fsyncctl is a small demo client: it opens one file, tails its events to
// stdout, and optionally serves the diagnostics endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/owtaylor/organized/pkg/clientconfig"
	"github.com/owtaylor/organized/pkg/diag"
	"github.com/owtaylor/organized/pkg/fsync"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config", getEnv("FSYNC_CONFIG", "./client.yaml"),
		"Path to the client configuration file")
	path := flag.String("path", "", "Path of the file to tail")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envPath := getEnv("FSYNC_ENV_FILE", ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("fsyncctl: could not load .env file, continuing with process environment", "path", envPath, "error", err)
	}

	cfg, err := clientconfig.Load(ctx, *configPath)
	if err != nil {
		slog.Error("fsyncctl: config load failed", "error", err)
		os.Exit(1)
	}
	setLogLevel(cfg.LogLevel)

	if *path == "" {
		slog.Error("fsyncctl: -path is required")
		os.Exit(1)
	}

	client := fsync.NewClient(*cfg)
	client.AddStateListener(func(s fsync.State) {
		slog.Info("fsyncctl: connection state changed", "state", s.String())
	})

	if cfg.DiagAddr != "" {
		diagServer := diag.New(cfg.DiagAddr, client)
		go func() {
			if err := diagServer.Run(); err != nil {
				slog.Error("fsyncctl: diagnostics server stopped", "error", err)
			}
		}()
		slog.Info("fsyncctl: diagnostics server listening", "addr", cfg.DiagAddr)
	}

	f := client.OpenFile(*path)
	defer f.Close()

	go func() {
		<-ctx.Done()
		client.Disconnect()
	}()

	for ev, err := range f.GetEvents() {
		if err != nil {
			slog.Error("fsyncctl: file event stream ended", "path", *path, "error", err)
			return
		}
		fmt.Printf("%s %s: %s\n", *path, ev.Type, ev.Content)
	}
}

func setLogLevel(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetLogLoggerLevel(lvl)
}
