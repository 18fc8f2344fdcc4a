package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"farewatch/internal/config"
	"farewatch/internal/database"
	"farewatch/internal/model"
	"farewatch/internal/notify"
	"farewatch/internal/provider"
	"farewatch/internal/refresh"
	"farewatch/internal/secrets"
	"farewatch/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: loading .env: %v\n", err)
	}

	configPath := flag.String("config", "farewatch.yaml", "Path to configuration file")
	refreshNow := flag.Bool("refresh-now", false, "Run one refresh immediately on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	store, err := database.New(cfg.DBPath)
	if err != nil {
		log.Error("open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.SeedDefaultRoutes(model.DefaultRoutes(time.Now().UTC())); err != nil {
		log.Error("seed default routes", "error", err)
		os.Exit(1)
	}
	if err := store.SetSetting(database.SettingProvider, cfg.Provider); err != nil {
		log.Error("record provider selection", "error", err)
		os.Exit(1)
	}

	secretStore, err := secrets.NewFileStore(cfg.SecretsPath)
	if err != nil {
		log.Error("open secret store", "path", cfg.SecretsPath, "error", err)
		os.Exit(1)
	}

	prov, err := buildProvider(cfg, secretStore)
	if err != nil {
		log.Error("configure provider", "error", err)
		os.Exit(1)
	}
	prov = provider.NewRateLimited(prov, cfg.Refresh.RateRPS, cfg.Refresh.RateBurst)

	sinks := []notify.Sink{notify.TerminalSink{W: os.Stderr}}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.WebhookSink{URL: cfg.WebhookURL})
	}
	notifier := notify.New(log, sinks...)

	orchestrator := refresh.NewOrchestrator(store, prov, notifier, log, refresh.Options{
		Concurrency:  cfg.Refresh.Concurrency,
		Delay:        cfg.Refresh.Delay,
		FetchTimeout: cfg.Refresh.FetchTimeout,
	})

	scheduler := refresh.NewScheduler(func(ctx context.Context) {
		if err := orchestrator.RefreshAll(ctx); err != nil {
			log.Warn("scheduled refresh", "error", err)
		}
	}, cfg.Refresh.Hours, log)
	scheduler.Start()
	defer scheduler.Stop()

	if *refreshNow {
		go func() {
			if err := orchestrator.RefreshAll(context.Background()); err != nil {
				log.Warn("startup refresh", "error", err)
			}
		}()
	}

	srv := server.New(store, orchestrator, prov.Name(), log)
	go func() {
		if err := srv.Start(cfg.ListenAddr); err != nil {
			log.Error("api server stopped", "error", err)
			os.Exit(1)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	log.Info("shutting down", "signal", sig.String())
}

// buildProvider constructs the configured fare backend with credentials
// from the secret store (environment variables take precedence).
func buildProvider(cfg config.Config, secretStore secrets.Store) (provider.Provider, error) {
	deny := provider.NewDenylist(cfg.Denylist)
	switch cfg.Provider {
	case "skyquery":
		key, _ := secrets.Lookup(secretStore, secrets.KeySkyQueryAPIKey)
		p := provider.NewSkyQuery(key, deny)
		p.Currency = cfg.Currency
		return p, nil
	case "airdist":
		id, _ := secrets.Lookup(secretStore, secrets.KeyAirDistClientID)
		secret, _ := secrets.Lookup(secretStore, secrets.KeyAirDistClientSecret)
		p := provider.NewAirDist(id, secret, deny)
		p.Currency = cfg.Currency
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
