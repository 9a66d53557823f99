package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"emberfall/internal/app"
	"emberfall/internal/config"
)

func main() {
	cfg := config.DefaultClient()
	cfg.ApplyEnv()

	flag.StringVar(&cfg.Host, "host", cfg.Host, "server address")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "server port")
	flag.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport: udp, ws, or memory")
	flag.StringVar(&cfg.LogPath, "log", cfg.LogPath, "log file path")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunClient(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
