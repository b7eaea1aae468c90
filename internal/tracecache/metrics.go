package tracecache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("junctionwalk.tracecache")

var (
	cacheHits          metric.Int64Counter
	cacheMisses        metric.Int64Counter
	traceParses        metric.Int64Counter
	traceInvalidations metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments once. With no meter provider installed
// the instruments are no-ops.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"tracecache_hits_total",
			metric.WithDescription("Trace lookups served from the cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"tracecache_misses_total",
			metric.WithDescription("Trace lookups that required a load"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		traceParses, err = meter.Int64Counter(
			"tracecache_parses_total",
			metric.WithDescription("Trace files parsed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		traceInvalidations, err = meter.Int64Counter(
			"tracecache_invalidations_total",
			metric.WithDescription("Cached traces dropped by invalidation"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordHit(ctx context.Context) {
	if initMetrics() != nil {
		return
	}
	cacheHits.Add(ctx, 1)
}

func recordMiss(ctx context.Context) {
	if initMetrics() != nil {
		return
	}
	cacheMisses.Add(ctx, 1)
}

func recordParse(ctx context.Context, ok bool) {
	if initMetrics() != nil {
		return
	}
	traceParses.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", ok)))
}

func recordInvalidation(ctx context.Context, reason string) {
	if initMetrics() != nil {
		return
	}
	traceInvalidations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
