package storage

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultSecondaryTimeout bounds the best-effort secondary write.
const DefaultSecondaryTimeout = 2 * time.Second

// DualWriteAdapter fans writes out to a primary and a secondary backend
// to support online migration between them. Writes hit the primary
// first; only after primary success is the same operation attempted on
// the secondary, under a short timeout and detached from the caller's
// cancellation. A secondary failure is logged, counted, and journaled
// when a Journal is attached; it never fails the caller and is never
// retried in-request. Replays belong to the offline reconciliation job.
//
// Reads are routed entirely to one side, selected by the read-from flag;
// results are never split or merged across backends. The migration
// sequence is: dual-write reading old, verify the new backend
// out-of-band, then flip the flag to read new.
type DualWriteAdapter struct {
	primary   Adapter
	secondary Adapter

	mu              sync.RWMutex
	readFromPrimary bool

	secondaryTimeout time.Duration
	journal          Journal
	log              *logrus.Entry
}

// DualWriteOption customizes a DualWriteAdapter.
type DualWriteOption func(*DualWriteAdapter)

// WithSecondaryTimeout bounds each secondary write attempt.
func WithSecondaryTimeout(d time.Duration) DualWriteOption {
	return func(a *DualWriteAdapter) {
		if d > 0 {
			a.secondaryTimeout = d
		}
	}
}

// WithJournal records failed secondary writes for offline replay.
func WithJournal(j Journal) DualWriteOption {
	return func(a *DualWriteAdapter) { a.journal = j }
}

// WithDualWriteLogger overrides the default logger.
func WithDualWriteLogger(log *logrus.Logger) DualWriteOption {
	return func(a *DualWriteAdapter) {
		a.log = log.WithField("component", "dualwrite")
	}
}

// NewDualWriteAdapter composes primary and secondary.
func NewDualWriteAdapter(primary, secondary Adapter, readFromPrimary bool, opts ...DualWriteOption) *DualWriteAdapter {
	a := &DualWriteAdapter{
		primary:          primary,
		secondary:        secondary,
		readFromPrimary:  readFromPrimary,
		secondaryTimeout: DefaultSecondaryTimeout,
		log:              logrus.StandardLogger().WithField("component", "dualwrite"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Adapter.Name.
func (a *DualWriteAdapter) Name() string { return AdapterDual }

type unwrapper interface{ Unwrap() Adapter }

// AsDualWrite walks a decorator chain (cache, metrics) looking for the
// dual-write adapter. Used by administrative read-cutover handling.
func AsDualWrite(a Adapter) (*DualWriteAdapter, bool) {
	for a != nil {
		if d, ok := a.(*DualWriteAdapter); ok {
			return d, true
		}
		u, ok := a.(unwrapper)
		if !ok {
			return nil, false
		}
		a = u.Unwrap()
	}
	return nil, false
}

// Primary returns the primary backend.
func (a *DualWriteAdapter) Primary() Adapter { return a.primary }

// Secondary returns the secondary backend.
func (a *DualWriteAdapter) Secondary() Adapter { return a.secondary }

// ReadFromPrimary reports the current read routing.
func (a *DualWriteAdapter) ReadFromPrimary() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.readFromPrimary
}

// SetReadFromPrimary flips the read routing. This is the cutover switch
// of the migration sequence; writes keep going to both sides.
func (a *DualWriteAdapter) SetReadFromPrimary(v bool) {
	a.mu.Lock()
	a.readFromPrimary = v
	a.mu.Unlock()
	a.log.WithField("read_from_primary", v).Info("dual-write read routing changed")
}

func (a *DualWriteAdapter) reader() Adapter {
	if a.ReadFromPrimary() {
		return a.primary
	}
	return a.secondary
}

// mirror applies a write to the secondary backend. It runs under its own
// timeout, detached from the caller's context, so a caller that returns
// (or cancels) right after primary success does not abort the mirror.
func (a *DualWriteAdapter) mirror(op, collection, id string, data Document, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.secondaryTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		dualWriteSecondaryFailures.WithLabelValues(op).Inc()
		log := a.log.WithFields(logrus.Fields{
			"op":         op,
			"collection": collection,
			"id":         id,
			"secondary":  a.secondary.Name(),
		})
		log.WithError(err).Warn("secondary write failed")

		if a.journal != nil {
			// The mirror context is already spent when the secondary
			// timed out; the journal write needs its own deadline.
			jctx, jcancel := context.WithTimeout(context.Background(), a.secondaryTimeout)
			defer jcancel()
			if jerr := a.journal.Record(jctx, op, collection, id, data); jerr != nil {
				log.WithError(jerr).Error("failed to journal secondary write failure")
			}
		}
	}
}

// Save implements Adapter.Save: primary first, then best-effort mirror.
func (a *DualWriteAdapter) Save(ctx context.Context, collection string, data Document, id string) (string, error) {
	savedID, err := a.primary.Save(ctx, collection, data, id)
	if err != nil {
		return "", err
	}
	a.mirror("save", collection, savedID, data, func(ctx context.Context) error {
		_, err := a.secondary.Save(ctx, collection, data, savedID)
		return err
	})
	return savedID, nil
}

// Update implements Adapter.Update: primary first, then best-effort mirror.
func (a *DualWriteAdapter) Update(ctx context.Context, collection, id string, partial Document) (bool, error) {
	ok, err := a.primary.Update(ctx, collection, id, partial)
	if err != nil || !ok {
		return ok, err
	}
	a.mirror("update", collection, id, partial, func(ctx context.Context) error {
		_, err := a.secondary.Update(ctx, collection, id, partial)
		return err
	})
	return true, nil
}

// Delete implements Adapter.Delete: primary first, then best-effort mirror.
func (a *DualWriteAdapter) Delete(ctx context.Context, collection, id string) (bool, error) {
	ok, err := a.primary.Delete(ctx, collection, id)
	if err != nil || !ok {
		return ok, err
	}
	a.mirror("delete", collection, id, nil, func(ctx context.Context) error {
		_, err := a.secondary.Delete(ctx, collection, id)
		return err
	})
	return true, nil
}

// Clear implements Adapter.Clear: primary first, then best-effort mirror.
func (a *DualWriteAdapter) Clear(ctx context.Context, collection string) (bool, error) {
	ok, err := a.primary.Clear(ctx, collection)
	if err != nil || !ok {
		return ok, err
	}
	a.mirror("clear", collection, "", nil, func(ctx context.Context) error {
		_, err := a.secondary.Clear(ctx, collection)
		return err
	})
	return true, nil
}

// Load implements Adapter.Load from the configured read side.
func (a *DualWriteAdapter) Load(ctx context.Context, collection, id string) (Document, error) {
	return a.reader().Load(ctx, collection, id)
}

// List implements Adapter.List from the configured read side.
func (a *DualWriteAdapter) List(ctx context.Context, collection string, opts ListOptions) ([]Document, error) {
	return a.reader().List(ctx, collection, opts)
}

// Count implements Adapter.Count from the configured read side.
func (a *DualWriteAdapter) Count(ctx context.Context, collection string, filters map[string]any) (int, error) {
	return a.reader().Count(ctx, collection, filters)
}

// Exists implements Adapter.Exists from the configured read side.
func (a *DualWriteAdapter) Exists(ctx context.Context, collection, id string) (bool, error) {
	return a.reader().Exists(ctx, collection, id)
}

// Search implements Adapter.Search from the configured read side.
func (a *DualWriteAdapter) Search(ctx context.Context, collection, query string, filters map[string]any, limit int) ([]Document, error) {
	return a.reader().Search(ctx, collection, query, filters, limit)
}

// HealthCheck implements Adapter.HealthCheck. Only the primary must be
// healthy; a degraded secondary is reported through logs and metrics.
func (a *DualWriteAdapter) HealthCheck(ctx context.Context) error {
	if err := a.primary.HealthCheck(ctx); err != nil {
		return err
	}
	if err := a.secondary.HealthCheck(ctx); err != nil {
		a.log.WithError(err).Warn("secondary backend unhealthy")
	}
	return nil
}

// Close implements Adapter.Close.
func (a *DualWriteAdapter) Close() error {
	err := a.primary.Close()
	if serr := a.secondary.Close(); err == nil {
		err = serr
	}
	return err
}
