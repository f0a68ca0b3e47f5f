package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kitchen-display/internal/broadcast"
	"kitchen-display/internal/common/logger"
	"kitchen-display/internal/config"
	"kitchen-display/internal/connections/database"
	"kitchen-display/internal/connections/rabbitmq"
	"kitchen-display/internal/microservices/dispatcher"
	"kitchen-display/internal/microservices/display"
)

func main() {
	mode := flag.String("mode", "", "dispatcher | display")
	port := flag.Int("port", 0, "http port")
	screenID := flag.Int("screen-id", 0, "display: kitchen screen to run (overrides config)")
	flag.Parse()

	lg := logger.New("kitchen-display")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	path, err := config.FindConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "no config.yaml found")
		os.Exit(2)
	}
	cfg, err := config.Load(path)
	if err != nil {
		lg.Error("config_load_failed", err, map[string]any{"path": path})
		os.Exit(1)
	}
	if *screenID > 0 {
		cfg.Display.ScreenID = *screenID
	}

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		lg.Error("db_connect_failed", err, nil)
		os.Exit(1)
	}
	defer db.Close()

	// A dead broker never takes the kitchen down: both roles degrade to
	// the remaining channels and the polling fallback.
	rmq, err := rabbitmq.Dial(cfg.Rabbit)
	if err != nil {
		lg.Warn("rabbitmq_unavailable", err, nil)
		rmq = nil
	} else {
		defer rmq.Close()
	}

	bus := broadcast.New()
	defer bus.Close()

	switch *mode {
	case "dispatcher":
		if *port == 0 {
			*port = 3000
		}
		lg.Info("service_started", map[string]any{"service": "dispatcher", "port": *port})
		if err := dispatcher.Run(ctx, *port, db, rmq, bus, lg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "display":
		if *port == 0 {
			*port = 3001
		}
		lg.Info("service_started", map[string]any{"service": "display", "screen_id": cfg.Display.ScreenID})
		if err := display.Run(ctx, *port, cfg.Display, db, rmq, bus, lg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: dispatcher | display")
		os.Exit(2)
	}
}
