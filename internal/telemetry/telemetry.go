package telemetry

import (
	"context"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	pkglog "github.com/BengeeL/Dental-Chatbot/pkg/log"
)

// Setup installs a global tracer provider exporting over OTLP gRPC. Without
// OTEL_EXPORTER_OTLP_ENDPOINT it is a no-op and so is the returned shutdown.
func Setup(ctx context.Context, serviceName string, logger pkglog.Logger) func(context.Context) error {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return func(context.Context) error { return nil }
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true" {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		logger.Warn().Err(err).Msg("otel exporter disabled")
		return func(context.Context) error { return nil }
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		logger.Warn().Err(err).Msg("otel resource incomplete")
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	logger.Info().Str("endpoint", endpoint).Msg("tracing enabled")
	return provider.Shutdown
}

// Wrap instruments an HTTP handler with server spans.
func Wrap(h http.Handler, operation string) http.Handler {
	return otelhttp.NewHandler(h, operation)
}
