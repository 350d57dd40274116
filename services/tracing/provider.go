// Package tracing installs the global OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/trezcool/mycourse/core"
)

// Provider flushes the exported spans on Shutdown. A disabled Provider does nothing.
type Provider struct {
	tp *sdktrace.TracerProvider
}

func NewProvider(ctx context.Context, conf *core.Config) (*Provider, error) {
	return newProvider(ctx, conf, os.Stdout)
}

func newProvider(ctx context.Context, conf *core.Config, stdout io.Writer) (*Provider, error) {
	if !conf.Tracing.Enabled {
		return &Provider{}, nil
	}

	var (
		exp sdktrace.SpanExporter
		err error
	)
	if conf.Tracing.Endpoint != "" {
		exp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(conf.Tracing.Endpoint))
	} else {
		exp, err = stdouttrace.New(stdouttrace.WithWriter(stdout), stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return nil, errors.Wrap(err, "creating span exporter")
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(conf.AppName),
		semconv.ServiceVersion(conf.Build),
		semconv.DeploymentEnvironment(conf.Env),
	))
	if err != nil {
		return nil, errors.Wrap(err, "creating tracing resource")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(conf.Tracing.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return &Provider{tp: tp}, nil
}

func (p *Provider) Enabled() bool { return p.tp != nil }

func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return errors.Wrap(p.tp.Shutdown(ctx), "shutting down tracer provider")
}
