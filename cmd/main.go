package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fruitninja/api"
	"fruitninja/config"
	"fruitninja/events"
	"fruitninja/game"
	"fruitninja/network"
	"fruitninja/room"
)

func main() {
	config.InitConfig()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := cfg.NewLogger()
	slog.SetDefault(log)

	bus := events.NewBus()
	engine := game.NewEngine(game.Config{
		TickInterval: cfg.TickInterval(),
		GridSize:     cfg.GridSize,
		SpawnChance:  cfg.SpawnChance,
	}, bus, log)
	rooms := room.NewManager(cfg.RoundDuration, log)
	gw := network.NewGateway(rooms, engine, bus, network.Options{
		GracePeriod:    cfg.GracePeriod,
		AllowedOrigins: cfg.AllowedOrigins,
	}, log)
	go gw.Run()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(rooms, engine, gw, cfg.AllowedOrigins, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("listening", slog.String("addr", cfg.Addr), slog.Int("tickHz", cfg.TickHz))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", slog.String("error", err.Error()))
	}
	gw.Close()
	rooms.Close()
	engine.Close()
}
