package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"eventstore/core"
	"eventstore/pkg/config"
	"eventstore/pkg/resources"
	"eventstore/pkg/servers"
	"eventstore/pkg/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	var err error

	// 1. Config (Logger base included)
	ctx = config.Default(ctx, name, version, env)
	settings := config.Load(name, version, env)

	startupLogger := log.Ctx(ctx).With().Str("stage", "startup").Str("component", "main").Logger()
	shutdownLogger := log.Ctx(ctx).With().Str("stage", "shut down").Str("component", "main").Logger()

	startupLogger.Info().Msg("application starting up")
	defer shutdownLogger.Info().Msg("application stopped")

	// 2. Telemetry (traces/metrics/logs), zerolog bridged to OTel logs
	hookFn := func(ctx context.Context) (context.Context, error) {
		log.Logger = log.Logger.Hook(resources.NewZerologHook(name, version))
		return log.Logger.WithContext(ctx), nil
	}

	telemetryOpts := []telemetry.Option{
		telemetry.WithEnabled(settings.Telemetry.Enabled),
		telemetry.WithEndpoint(settings.Telemetry.Endpoint),
	}
	if settings.Telemetry.Insecure {
		telemetryOpts = append(telemetryOpts, telemetry.WithInsecure())
	}

	ctx, stopTelemetryFn, err := telemetry.Observe(ctx, name, version, env, hookFn, telemetryOpts...)
	if err != nil {
		shutdownLogger.Error().Err(err).Msg("unable to setup otel telemetry")
		return fmt.Errorf("unable to setup otel telemetry: %w", err)
	}
	defer stopTelemetryFn(ctx, settings.ShutdownTimeout)

	// 3. Resources
	store, err := resources.CreateFileStore(ctx)
	if err != nil {
		return fmt.Errorf("unable to create file store: %w", err)
	}

	repo, err := core.NewRepository(ctx, store,
		core.WithStrictLoad(settings.Store.StrictLoad),
		core.WithStrictTimes(settings.Store.StrictTimes),
	)
	if err != nil {
		shutdownLogger.Error().Err(err).Msg("unable to load events")
		return fmt.Errorf("unable to load events: %w", err)
	}

	registry := resources.NewRegistry()

	err = resources.RegisterGaugeFunc(registry, "eventstore", "events_stored", "Number of events currently stored.",
		func() float64 { return float64(repo.Count()) })
	if err != nil {
		return err
	}

	// 4. Wiring
	handlers := core.NewHandlers(name, repo)

	restHandler, err := newRestHandler(settings, handlers)
	if err != nil {
		shutdownLogger.Error().Err(err).Msg("unable to build rest handler")
		return fmt.Errorf("unable to build rest handler: %w", err)
	}

	// 5. Daemons/servers lifecycle
	errChan := make(chan error, 16)

	_, stopBaseFn, err := servers.Build(ctx, "base-server", servers.NewBaseServer(repo), errChan)
	if err != nil {
		return fmt.Errorf("unable to build base server: %w", err)
	}
	defer stopBaseFn(ctx, settings.ShutdownTimeout)

	if settings.Debug.Enabled {
		debugServer := servers.NewServer(settings.Debug.Host, settings.Debug.Port, newDebugHandler(registry))

		_, stopDebugFn, err := servers.Build(ctx, "debug-server", servers.NewHttpServer("debug-server", debugServer), errChan)
		if err != nil {
			return fmt.Errorf("unable to build debug server: %w", err)
		}
		defer stopDebugFn(ctx, settings.ShutdownTimeout)
	}

	if settings.Snapshot.Cron != "" {
		scheduler, err := newSnapshotScheduler(ctx, repo, settings.Snapshot)
		if err != nil {
			return err
		}

		_, stopCronFn, err := servers.Build(ctx, "snapshot-server", servers.NewCronServer("snapshot-server", scheduler), errChan)
		if err != nil {
			return fmt.Errorf("unable to build snapshot server: %w", err)
		}
		defer stopCronFn(ctx, settings.ShutdownTimeout)
	}

	restServer := servers.NewServer(settings.Server.Host, settings.Server.Port, restHandler)

	_, stopRestFn, err := servers.Build(ctx, "rest-server", servers.NewHttpServer("rest-server", restServer), errChan)
	if err != nil {
		return fmt.Errorf("unable to build rest server: %w", err)
	}
	defer stopRestFn(ctx, settings.ShutdownTimeout)

	startupLogger.Info().Str("address", restServer.Addr).Msg("application running")

	// 6. Wait for shutdown signal
	notifyCtx, cancelNotifyFn := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancelNotifyFn()

	select {
	case <-notifyCtx.Done():
		shutdownLogger.Info().Msg("application shutdown requested")
		return nil
	case runErr := <-errChan:
		shutdownLogger.Error().Err(runErr).Msg("runtime error")
		return runErr
	}
}

func newRestHandler(settings config.Settings, handlers core.Handlers) (http.Handler, error) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(resources.RequestIDMiddleware())
	router.Use(resources.AccessLogMiddleware())
	router.Use(resources.TracerMiddleware(settings.Name))
	router.Use(resources.MeterMiddleware(settings.Name))

	corsMiddleware, err := resources.CORSMiddleware(settings.CORS.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	if corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	core.RegisterRoutes(router, handlers)

	return router, nil
}

func newDebugHandler(registry *prometheus.Registry) http.Handler {
	debugHandler := http.NewServeMux()
	debugHandler.HandleFunc("/debug/pprof/", pprof.Index)
	debugHandler.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	debugHandler.HandleFunc("/debug/pprof/profile", pprof.Profile)
	debugHandler.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	debugHandler.HandleFunc("/debug/pprof/trace", pprof.Trace)
	debugHandler.Handle("/metrics", resources.MetricsHandler(registry))

	return debugHandler
}

func newSnapshotScheduler(ctx context.Context, repo core.Repository, settings config.SnapshotSettings) (*cron.Cron, error) {
	scheduler := cron.New()

	_, err := scheduler.AddFunc(settings.Cron, func() {
		path, err := repo.Snapshot(ctx, settings.Dir)
		if err != nil {
			log.Ctx(ctx).Error().Str("component", "snapshot-server").Err(err).Msg("snapshot failed")
			return
		}

		log.Ctx(ctx).Info().Str("component", "snapshot-server").Str("path", path).Msg("snapshot written")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot schedule %q: %w", settings.Cron, err)
	}

	return scheduler, nil
}
