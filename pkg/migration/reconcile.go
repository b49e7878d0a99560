package migration

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/radiancehq/radiance/pkg/storage"
)

// Reconciler replays journaled dual-write failures against the
// secondary backend. The primary is the source of truth: save and
// update entries are replayed by copying the document's *current*
// primary state, so stale journal payloads cannot roll the secondary
// backwards. Delete entries are replayed as deletes.
type Reconciler struct {
	journal   *JournalStore
	primary   storage.Adapter
	secondary storage.Adapter
	batchSize int
	log       *logrus.Entry
}

// ReconcilerOption customizes a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcileBatchSize bounds how many entries one Run processes.
func WithReconcileBatchSize(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithReconcilerLogger overrides the default logger.
func WithReconcilerLogger(log *logrus.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.log = log.WithField("component", "reconciler") }
}

// NewReconciler creates a reconciler replaying journal entries from
// primary state onto the secondary.
func NewReconciler(journal *JournalStore, primary, secondary storage.Adapter, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		journal:   journal,
		primary:   primary,
		secondary: secondary,
		batchSize: 100,
		log:       logrus.StandardLogger().WithField("component", "reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes one batch of pending entries. Entries that fail to
// replay stay pending for the next run; the run itself only errors on
// journal-store failures.
func (r *Reconciler) Run(ctx context.Context) (replayed, failed int, err error) {
	entries, err := r.journal.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, entry := range entries {
		log := r.log.WithFields(logrus.Fields{
			"entry":      entry.ID,
			"op":         entry.Op,
			"collection": entry.Collection,
			"id":         entry.DocID,
		})

		if err := r.replay(ctx, entry); err != nil {
			failed++
			log.WithError(err).Warn("failed to replay journal entry")
			continue
		}
		if err := r.journal.MarkReplayed(ctx, entry.ID); err != nil {
			return replayed, failed, err
		}
		replayed++
	}

	if replayed > 0 || failed > 0 {
		r.log.WithFields(logrus.Fields{
			"replayed": replayed,
			"failed":   failed,
		}).Info("reconciliation run finished")
	}
	return replayed, failed, nil
}

func (r *Reconciler) replay(ctx context.Context, entry JournalEntry) error {
	switch entry.Op {
	case "save", "update":
		doc, err := r.primary.Load(ctx, entry.Collection, entry.DocID)
		if err != nil {
			if storage.IsNotFound(err) {
				// Deleted on primary since the failure; mirror that.
				_, derr := r.secondary.Delete(ctx, entry.Collection, entry.DocID)
				return derr
			}
			return err
		}
		_, err = r.secondary.Save(ctx, entry.Collection, doc, entry.DocID)
		return err
	case "delete":
		_, err := r.secondary.Delete(ctx, entry.Collection, entry.DocID)
		return err
	case "clear":
		_, err := r.secondary.Clear(ctx, entry.Collection)
		return err
	default:
		return fmt.Errorf("unknown journal op %q", entry.Op)
	}
}

// Schedule runs the reconciler on a cron schedule (e.g. "@every 5m").
// The returned cron is already started; callers stop it on shutdown.
func (r *Reconciler) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, _, err := r.Run(context.Background()); err != nil {
			r.log.WithError(err).Error("scheduled reconciliation failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
