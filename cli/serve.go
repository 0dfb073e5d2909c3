package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/petal-labs/flowstep/daemon"
	"github.com/petal-labs/flowstep/engine"
	flowotel "github.com/petal-labs/flowstep/otel"
	"github.com/petal-labs/flowstep/registry"
	"github.com/petal-labs/flowstep/server"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}

	cmd.Flags().IntP("port", "p", 8080, "Listen port")
	cmd.Flags().String("host", "0.0.0.0", "Listen host")
	cmd.Flags().String("config", "", "Path to flowstep.yaml config")
	cmd.Flags().String("cors-origin", "*", "Allowed CORS origin")
	cmd.Flags().Int64("max-body", 1<<20, "Max request body size in bytes")
	cmd.Flags().Int("max-steps", 100, "Step limit per run")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	cmd.Flags().Duration("schedule-poll", 5*time.Second, "Schedule poll interval")
	cmd.Flags().String("otlp-endpoint", "", "OTLP trace collector endpoint (host:port)")
	cmd.Flags().String("log-level", "", "Log level: debug | info | warn | error")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveServeConfig(cmd)
	if err != nil {
		return err
	}

	level, err := daemon.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := setupTracing(ctx, cfg.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("initializing OTLP tracing: %w", err)
		}
		defer shutdown()
	}

	tracing := flowotel.NewTracingHandler(otelapi.GetTracerProvider().Tracer("flowstep/engine"))
	metrics, err := flowotel.NewMetricsHandler(otelapi.GetMeterProvider().Meter("flowstep/engine"))
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	reg := registry.New()
	if err := registry.RegisterBuiltins(reg); err != nil {
		return fmt.Errorf("registering builtins: %w", err)
	}

	eng := engine.New(reg, engine.Options{
		MaxSteps:     cfg.MaxSteps,
		Logger:       logger,
		EventHandler: engine.CombineHandlers(tracing.Handle, metrics.Handle),
	})

	schedules := server.NewScheduleStore()
	srv := server.New(server.Config{
		Engine:     eng,
		Schedules:  schedules,
		CORSOrigin: cfg.CORSOrigin,
		MaxBody:    cfg.MaxBody,
		Logger:     logger,
	})

	scheduler, err := server.NewScheduler(server.SchedulerConfig{
		Engine:       eng,
		Store:        schedules,
		PollInterval: cfg.SchedulePoll,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// resolveServeConfig loads the config file (if any) and overlays explicitly
// set flags on top of it.
func resolveServeConfig(cmd *cobra.Command) (daemon.Config, error) {
	explicitPath, _ := cmd.Flags().GetString("config")

	cfg := daemon.DefaultConfig()
	path, found, err := daemon.DiscoverConfigPath(explicitPath)
	if err != nil {
		return daemon.Config{}, exitError(exitFileNotFound, "%v", err)
	}
	if found {
		cfg, err = daemon.LoadConfig(path)
		if err != nil {
			return daemon.Config{}, exitError(exitInputParse, "%v", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("cors-origin") {
		cfg.CORSOrigin, _ = flags.GetString("cors-origin")
	}
	if flags.Changed("max-body") {
		cfg.MaxBody, _ = flags.GetInt64("max-body")
	}
	if flags.Changed("max-steps") {
		cfg.MaxSteps, _ = flags.GetInt("max-steps")
	}
	if flags.Changed("read-timeout") {
		cfg.ReadTimeout, _ = flags.GetDuration("read-timeout")
	}
	if flags.Changed("write-timeout") {
		cfg.WriteTimeout, _ = flags.GetDuration("write-timeout")
	}
	if flags.Changed("schedule-poll") {
		cfg.SchedulePoll, _ = flags.GetDuration("schedule-poll")
	}
	if flags.Changed("otlp-endpoint") {
		cfg.OTLPEndpoint, _ = flags.GetString("otlp-endpoint")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	return cfg, nil
}

// setupTracing installs a global OTLP-exporting tracer provider and returns
// its shutdown function.
func setupTracing(ctx context.Context, endpoint string) (func(), error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(sdkresource.NewSchemaless(
			attribute.String("service.name", "flowstep"),
		)),
	)
	otelapi.SetTracerProvider(tp)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}, nil
}
