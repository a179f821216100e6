// Package telemetry sets up OpenTelemetry tracing for every spacegraph server
// and the HTTP clients they use to reach the data source and the subgraphs.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Setting struct {
	Tracing TracingSetting `yaml:"tracing"`
}

type TracingSetting struct {
	Enable      bool    `yaml:"enable"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`
}

// Setup installs a global tracer provider exporting over OTLP/HTTP. The returned
// function flushes and stops the provider; it is a no-op when tracing is disabled.
func Setup(ctx context.Context, serviceName string, setting TracingSetting) (func(context.Context) error, error) {
	if !setting.Enable {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{}
	if setting.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(setting.Endpoint))
	}
	if setting.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
	}

	ratio := setting.SampleRatio
	if ratio <= 0 {
		ratio = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}

// NewHTTPClient returns a client with the given timeout whose transport is
// instrumented when tracing is enabled.
func NewHTTPClient(timeout time.Duration, setting TracingSetting) *http.Client {
	client := &http.Client{Timeout: timeout}
	if setting.Enable {
		client.Transport = otelhttp.NewTransport(http.DefaultTransport)
	}
	return client
}

// WrapHandler instruments h with a server span named operation when tracing is enabled.
func WrapHandler(h http.Handler, operation string, setting TracingSetting) http.Handler {
	if !setting.Enable {
		return h
	}
	return otelhttp.NewHandler(h, operation)
}
