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
	cfg := config.DefaultServer()
	cfg.ApplyEnv()

	flag.StringVar(&cfg.Host, "host", cfg.Host, "bind address")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "bind port")
	flag.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport: udp or ws")
	flag.StringVar(&cfg.LogPath, "log", cfg.LogPath, "log file path")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")
	var width = flag.Float64("world-width", float64(cfg.WorldWidth), "world width in pixels")
	var height = flag.Float64("world-height", float64(cfg.WorldHeight), "world height in pixels")
	flag.Parse()
	cfg.WorldWidth = float32(*width)
	cfg.WorldHeight = float32(*height)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunServer(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
