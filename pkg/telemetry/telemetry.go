package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// HookFn runs once the providers are installed, typically to bridge the logger.
type HookFn func(ctx context.Context) (context.Context, error)

type StopFn func(ctx context.Context, timeout time.Duration)

type options struct {
	enabled  bool
	endpoint string
	insecure bool
}

type Option func(*options)

func WithEnabled(enabled bool) Option {
	return func(o *options) { o.enabled = enabled }
}

func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

func WithInsecure() Option {
	return func(o *options) { o.insecure = true }
}

// Observe installs the global trace, metric and log providers exporting over
// OTLP gRPC. When disabled, the no-op globals stay in place and hookFn is not run.
func Observe(ctx context.Context, name string, version string, env string, hookFn HookFn, opts ...Option) (context.Context, StopFn, error) {
	o := &options{enabled: true, endpoint: "localhost:4317"}
	for _, opt := range opts {
		opt(o)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !o.enabled {
		log.Ctx(ctx).Info().Str("stage", "startup").Str("component", "telemetry").Msg("telemetry disabled")
		return ctx, func(context.Context, time.Duration) {}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", version),
		attribute.String("deployment.environment", env),
	)

	tp, err := newTracerProvider(ctx, res, o)
	if err != nil {
		return ctx, func(context.Context, time.Duration) {}, err
	}

	mp, err := newMeterProvider(ctx, res, o)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return ctx, func(context.Context, time.Duration) {}, err
	}

	lp, err := newLoggerProvider(ctx, res, o)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)

		return ctx, func(context.Context, time.Duration) {}, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)

	stopFn := func(ctx context.Context, timeout time.Duration) {
		stopCtx, cancelFn := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancelFn()

		err := errors.Join(tp.Shutdown(stopCtx), mp.Shutdown(stopCtx), lp.Shutdown(stopCtx))
		if err != nil {
			log.Ctx(ctx).Error().Str("stage", "shut down").Str("component", "telemetry").Err(err).Msg("unable to flush telemetry")
		}
	}

	if hookFn != nil {
		ctx, err = hookFn(ctx)
		if err != nil {
			stopFn(ctx, 5*time.Second)
			return ctx, func(context.Context, time.Duration) {}, fmt.Errorf("failed to run telemetry hook: %w", err)
		}
	}

	log.Ctx(ctx).Info().Str("stage", "startup").Str("component", "telemetry").Str("endpoint", o.endpoint).Msg("telemetry enabled")

	return ctx, stopFn, nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource, o *options) (*sdktrace.TracerProvider, error) {
	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.endpoint)}
	if o.insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}

	exp, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create the OTLP trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, o *options) (*sdkmetric.MeterProvider, error) {
	exporterOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(o.endpoint)}
	if o.insecure {
		exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create the OTLP metric exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	), nil
}

func newLoggerProvider(ctx context.Context, res *resource.Resource, o *options) (*sdklog.LoggerProvider, error) {
	exporterOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(o.endpoint)}
	if o.insecure {
		exporterOpts = append(exporterOpts, otlploggrpc.WithInsecure())
	}

	exp, err := otlploggrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create the OTLP log exporter: %w", err)
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	), nil
}
