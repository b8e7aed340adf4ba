// Package telemetry wires the OpenTelemetry providers used by the gateway.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitTracer initializes the OpenTelemetry tracer provider. Span export is
// left to the default (none); the provider still feeds instrumentation such
// as the Mongo command monitor.
func InitTracer(serviceName string) (*trace.TracerProvider, error) {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)
	tp := trace.NewTracerProvider(trace.WithResource(res))
	otel.SetTracerProvider(tp)
	log.Info().Str("service", serviceName).Msg("tracer provider initialized")
	return tp, nil
}

// InitMeterProvider initializes the meter provider with a Prometheus exporter
// registered on reg, which /metrics serves.
func InitMeterProvider(reg prometheus.Registerer) (*metric.MeterProvider, error) {
	exporter, err := prometheusexporter.New(prometheusexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	mp := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	log.Info().Msg("meter provider initialized with prometheus exporter")
	return mp, nil
}

// Shutdown flushes and stops both providers.
func Shutdown(ctx context.Context, tp *trace.TracerProvider, mp *metric.MeterProvider) {
	if tp != nil {
		if err := tp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}
	if mp != nil {
		if err := mp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("error shutting down meter provider")
		}
	}
}
