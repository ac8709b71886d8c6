package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-client/internal/config"
	"chat-client/internal/controller"
	"chat-client/internal/credstore"
	"chat-client/internal/directory"
	"chat-client/internal/live"
	"chat-client/internal/telemetry"
	"chat-client/internal/term"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("setup tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("metrics listener: %v", err)
			}
		}()
	}

	creds, err := credstore.Open(cfg.StateDir)
	if err != nil {
		log.Fatalf("open credential store: %v", err)
	}
	defer creds.Close()

	dir := directory.New(cfg.ServerURL)

	dial := func(ctx context.Context, token, identity, room string, handlers live.Handlers) (controller.Channel, error) {
		return live.Dial(ctx, cfg.LiveURL, token, identity, room, handlers)
	}

	ctrl := controller.New(dir, creds, dial, controller.Options{
		HistoryPageSize: cfg.HistoryPageSize,
		TypingTTL:       time.Duration(cfg.TypingTTLSeconds) * time.Second,
		Notifications:   cfg.Notifications,
	})
	defer ctrl.Close()

	ui := term.New(ctrl, os.Stdin, os.Stdout)

	if err := ctrl.Start(ctx); err != nil {
		log.Printf("restore session: %v", err)
	}

	if err := ui.Run(ctx); err != nil {
		log.Fatalf("terminal loop: %v", err)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".chat-client", "config.toml")
}
