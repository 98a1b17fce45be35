// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry sets up the scheduler daemon's OpenTelemetry tracer
// and meter providers. It is a slimmed-down version of the teacher's
// internal/tracing.OTelProvider: the scheduler has no notion of an
// abstract observability.Tracer interface to satisfy, so this package
// hands callers the concrete otel.Tracer/otel.Meter directly instead of
// wrapping them. The meter provider exports through the OTel Prometheus
// bridge onto the same registry the scheduler's own promauto metrics
// use, so both surface on one /metrics endpoint.
package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the tracer and meter providers.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// PrettyPrint enables indented stdout trace output, useful when
	// running the daemon interactively during development.
	PrettyPrint bool

	// MetricsRegisterer, when non-nil, wires the OTel meter provider's
	// Prometheus exporter to this registerer instead of the package
	// default, so spans' companion counters/histograms surface on the
	// same /metrics endpoint the scheduler's own promauto metrics use.
	MetricsRegisterer prometheus.Registerer
}

// Provider wraps the SDK tracer and meter providers along with the
// shutdown hook callers must run before process exit.
type Provider struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// NewProvider builds a Provider exporting spans to stdout. This is the
// same console-first default the teacher's internal/tracing/export
// package offers before OTLP is configured; an OTLP exporter can be
// swapped in later by changing only the exporter passed to
// sdktrace.WithBatcher, the resource/sampler wiring stays the same.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building telemetry resource: %w", err)
	}

	var exporterOpts []stdouttrace.Option
	if cfg.PrettyPrint {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("building stdout span exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	promExporterOpts := []otelprom.Option{}
	if cfg.MetricsRegisterer != nil {
		promExporterOpts = append(promExporterOpts, otelprom.WithRegisterer(cfg.MetricsRegisterer))
	}
	metricReader, err := otelprom.New(promExporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("building prometheus metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(metricReader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return &Provider{tp: tp, mp: mp}, nil
}

// Tracer returns a named tracer from the underlying provider.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Meter returns a named meter from the underlying provider, surfaced
// on the same /metrics endpoint as the scheduler's promauto counters.
func (p *Provider) Meter(name string) metric.Meter {
	return p.mp.Meter(name)
}

// Shutdown flushes and releases the provider's resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		return err
	}
	return p.mp.Shutdown(ctx)
}
