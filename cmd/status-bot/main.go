package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/space-status/db"
	"github.com/thatsimonsguy/space-status/internal/api"
	"github.com/thatsimonsguy/space-status/internal/cache"
	"github.com/thatsimonsguy/space-status/internal/config"
	"github.com/thatsimonsguy/space-status/internal/datadog"
	"github.com/thatsimonsguy/space-status/internal/fetcher"
	"github.com/thatsimonsguy/space-status/internal/health"
	"github.com/thatsimonsguy/space-status/internal/logging"
	"github.com/thatsimonsguy/space-status/internal/monitor"
	"github.com/thatsimonsguy/space-status/internal/notifications"
	"github.com/thatsimonsguy/space-status/internal/parser"
	"github.com/thatsimonsguy/space-status/internal/status"
	"github.com/thatsimonsguy/space-status/internal/updater"
	"github.com/thatsimonsguy/space-status/system/shutdown"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("source_url", cfg.SourceURL).
		Str("space", cfg.SpaceName).
		Msg("Starting status bot")

	datadog.InitMetrics(datadog.Options{
		Enabled:   cfg.EnableDatadog,
		AgentAddr: cfg.DDAgentAddr,
		Namespace: cfg.DDNamespace,
		Tags:      cfg.DDTags,
	})

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to open database")
	}
	closeDB := shutdown.Step{Name: "db", Fn: func(context.Context) error { return conn.Close() }}

	if err := db.SeedMutedChannels(conn, cfg.QuietChannels); err != nil {
		shutdown.ShutdownWithError(err, "Failed to seed quiet channels", closeDB)
	}

	p := parser.New(parser.Options{SpaceName: cfg.SpaceName, Location: cfg.Location()})
	f := fetcher.New(fetcher.Options{Timeout: cfg.FetchTimeout(), Backoff: cfg.FetchBackoff()})
	u, err := updater.New(updater.Options{
		SourceURL:         cfg.SourceURL,
		MinChangeInterval: cfg.MinChangeInterval(),
	}, f, p)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to create updater", closeDB)
	}

	statusCache := cache.New(db.NewKVStore(conn))
	hub := api.NewHub()
	broadcaster := notifications.New(notifications.Options{
		Server:    cfg.NtfyServer,
		Channels:  cfg.Channels,
		UseNotice: cfg.UseNotice,
		Title:     cfg.SpaceName + " status",
	}, db.NewChannels(conn))

	sensorHealth := health.New(health.Options{
		MaxFailures: cfg.OfflineAfterFailures,
		SpaceName:   cfg.SpaceName,
	}, broadcaster.Alerter(cfg.AlertChannel))

	mon := monitor.New(monitor.Options{
		ConnectDelay: cfg.ConnectDelay(),
		Interval:     cfg.PollInterval(),
		Observer:     sensorHealth,
		Parked:       cfg.Parked,
	}, u, statusCache, broadcaster, hub)

	statusService := status.New(status.Options{
		MaxAge:        cfg.MaxStatusAge(),
		Parked:        cfg.Parked,
		ParkedMessage: cfg.ParkedMessage,
	}, statusCache, mon)

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		mon.Run(ctx)
	}()

	server := api.NewServer(statusService, broadcaster, hub).WithHealth(sensorHealth)
	if cfg.APIPort > 0 {
		go func() {
			if err := server.Start(cfg.APIPort); err != nil {
				log.Error().Err(err).Msg("API server failed")
				stop()
			}
		}()
	} else {
		log.Warn().Msg("api_port is 0 - REST API disabled")
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown requested")

	shutdown.Shutdown(shutdown.DefaultTimeout,
		shutdown.Step{Name: "api", Fn: server.Shutdown},
		shutdown.Step{Name: "monitor", Fn: func(ctx context.Context) error {
			select {
			case <-monitorDone:
				return nil
			case <-ctx.Done():
				return errors.New("status cycle still running")
			}
		}},
		closeDB,
		shutdown.Step{Name: "metrics", Fn: func(context.Context) error {
			datadog.Close()
			return nil
		}},
	)
}
