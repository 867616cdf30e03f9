// Package telemetry wires the process-wide OTel meter provider and exposes
// the handful of instruments the ingestion and chunking packages record
// against (stage latency, boundary-clamp frequency), per spec.md §9's note
// that a RAPTOR-scale ingest needs visibility into per-phase cost and into
// how often the LLM-boundary strategy has to be corrected.
package telemetry

import (
	"context"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	once     sync.Once
	provider *sdkmetric.MeterProvider
)

// Init installs a process-wide SDK meter provider and returns its shutdown
// func. Safe to call more than once; only the first call takes effect. No
// OTLP exporter is wired — a CLI run has no collector endpoint to ship to —
// so a periodic stdout reader stands in, printing accumulated counter and
// histogram values every 30 seconds.
func Init() func(context.Context) error {
	once.Do(func() {
		provider = newProvider(nil, 30*time.Second)
		otel.SetMeterProvider(provider)
	})
	if provider == nil {
		return func(context.Context) error { return nil }
	}
	return provider.Shutdown
}

// newProvider builds a meter provider exporting to w (os.Stdout when nil) on
// the given interval, factored out so tests can point it at a buffer instead
// of the process's real stdout.
func newProvider(w io.Writer, interval time.Duration) *sdkmetric.MeterProvider {
	opts := []stdoutmetric.Option{}
	if w != nil {
		opts = append(opts, stdoutmetric.WithWriter(w))
	}
	exporter, err := stdoutmetric.New(opts...)
	if err != nil {
		return sdkmetric.NewMeterProvider()
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

// Meter returns the docmind instrumentation-scope meter. Safe to call before
// Init; readings simply accumulate against the no-op provider until Init
// installs the real one.
func Meter() metric.Meter {
	return otel.Meter("docmind")
}
