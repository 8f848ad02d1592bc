package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Config contains tracing configuration
type Config struct {
	Enabled     bool
	ServiceName string

	// OTLP gRPC collector address, host:port
	Endpoint string
	Insecure bool

	// Fraction of root traces sampled; child spans follow their parent
	SamplingRatio float64

	// Export timeout
	Timeout time.Duration

	// Extra resource attributes, e.g. deployment.environment
	Attributes map[string]string
}

// DefaultConfig returns a configuration with tracing off
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		ServiceName:   "verse",
		Endpoint:      "localhost:4317",
		Insecure:      true,
		SamplingRatio: 1.0,
		Timeout:       5 * time.Second,
		Attributes:    map[string]string{},
	}
}

// Setup installs a global OTLP tracer provider and W3C propagators. When
// tracing is disabled it installs nothing and returns a no-op shutdown.
func Setup(ctx context.Context, config Config) (shutdown func(context.Context) error, err error) {
	if !config.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	logger := log.With().Str("component", "telemetry").Logger()

	exporter, err := newExporter(ctx, config)
	if err != nil {
		return nil, err
	}
	res, err := newResource(ctx, config)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SamplingRatio))),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info().
		Str("endpoint", config.Endpoint).
		Float64("sampling_ratio", config.SamplingRatio).
		Msg("Tracing enabled")

	return func(ctx context.Context) error {
		logger.Debug().Msg("Flushing traces")
		return provider.Shutdown(ctx)
	}, nil
}

func newExporter(ctx context.Context, config Config) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(config.Endpoint),
		otlptracegrpc.WithTimeout(config.Timeout),
	}
	if config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}
	return exporter, nil
}

func newResource(ctx context.Context, config Config) (*resource.Resource, error) {
	attrs := make([]attribute.KeyValue, 0, len(config.Attributes)+1)
	attrs = append(attrs, semconv.ServiceNameKey.String(config.ServiceName))
	for k, v := range config.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithProcessPID(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}
	return res, nil
}

// TracerName is the instrumentation name used for spans created here
const TracerName = "github.com/nkkko/verse"

// Tracer returns a named tracer from the global provider
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
