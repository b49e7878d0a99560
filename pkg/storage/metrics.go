package storage

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radiance_storage_operations_total",
			Help: "Storage operations by adapter, operation and status",
		},
		[]string{"adapter", "operation", "status"},
	)

	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "radiance_storage_operation_duration_seconds",
			Help:    "Storage operation latency by adapter and operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"adapter", "operation"},
	)

	dualWriteSecondaryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radiance_dualwrite_secondary_failures_total",
			Help: "Best-effort secondary writes that failed, by operation",
		},
		[]string{"operation"},
	)
)

// InstrumentedAdapter decorates a base adapter with Prometheus request
// counters and latency histograms. ErrNotFound counts as "not_found"
// rather than "error"; a miss is a normal outcome.
type InstrumentedAdapter struct {
	base Adapter
}

// NewInstrumentedAdapter wraps base with metrics collection.
func NewInstrumentedAdapter(base Adapter) *InstrumentedAdapter {
	return &InstrumentedAdapter{base: base}
}

// Name implements Adapter.Name.
func (a *InstrumentedAdapter) Name() string { return a.base.Name() }

func (a *InstrumentedAdapter) observe(op string, start time.Time, err error) {
	status := "ok"
	switch {
	case IsNotFound(err):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	storageOperations.WithLabelValues(a.base.Name(), op, status).Inc()
	storageOperationDuration.WithLabelValues(a.base.Name(), op).Observe(time.Since(start).Seconds())
}

// Save implements Adapter.Save.
func (a *InstrumentedAdapter) Save(ctx context.Context, collection string, data Document, id string) (string, error) {
	start := time.Now()
	savedID, err := a.base.Save(ctx, collection, data, id)
	a.observe("save", start, err)
	return savedID, err
}

// Load implements Adapter.Load.
func (a *InstrumentedAdapter) Load(ctx context.Context, collection, id string) (Document, error) {
	start := time.Now()
	doc, err := a.base.Load(ctx, collection, id)
	a.observe("load", start, err)
	return doc, err
}

// List implements Adapter.List.
func (a *InstrumentedAdapter) List(ctx context.Context, collection string, opts ListOptions) ([]Document, error) {
	start := time.Now()
	docs, err := a.base.List(ctx, collection, opts)
	a.observe("list", start, err)
	return docs, err
}

// Update implements Adapter.Update.
func (a *InstrumentedAdapter) Update(ctx context.Context, collection, id string, partial Document) (bool, error) {
	start := time.Now()
	ok, err := a.base.Update(ctx, collection, id, partial)
	a.observe("update", start, err)
	return ok, err
}

// Delete implements Adapter.Delete.
func (a *InstrumentedAdapter) Delete(ctx context.Context, collection, id string) (bool, error) {
	start := time.Now()
	ok, err := a.base.Delete(ctx, collection, id)
	a.observe("delete", start, err)
	return ok, err
}

// Count implements Adapter.Count.
func (a *InstrumentedAdapter) Count(ctx context.Context, collection string, filters map[string]any) (int, error) {
	start := time.Now()
	n, err := a.base.Count(ctx, collection, filters)
	a.observe("count", start, err)
	return n, err
}

// Exists implements Adapter.Exists.
func (a *InstrumentedAdapter) Exists(ctx context.Context, collection, id string) (bool, error) {
	start := time.Now()
	ok, err := a.base.Exists(ctx, collection, id)
	a.observe("exists", start, err)
	return ok, err
}

// Clear implements Adapter.Clear.
func (a *InstrumentedAdapter) Clear(ctx context.Context, collection string) (bool, error) {
	start := time.Now()
	ok, err := a.base.Clear(ctx, collection)
	a.observe("clear", start, err)
	return ok, err
}

// Search implements Adapter.Search.
func (a *InstrumentedAdapter) Search(ctx context.Context, collection, query string, filters map[string]any, limit int) ([]Document, error) {
	start := time.Now()
	docs, err := a.base.Search(ctx, collection, query, filters, limit)
	a.observe("search", start, err)
	return docs, err
}

// HealthCheck implements Adapter.HealthCheck.
func (a *InstrumentedAdapter) HealthCheck(ctx context.Context) error {
	return a.base.HealthCheck(ctx)
}

// Close implements Adapter.Close.
func (a *InstrumentedAdapter) Close() error { return a.base.Close() }

// Unwrap exposes the decorated adapter for callers that need to reach
// the underlying composition (e.g. flipping dual-write routing).
func (a *InstrumentedAdapter) Unwrap() Adapter { return a.base }
