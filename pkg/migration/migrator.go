package migration

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/radiancehq/radiance/pkg/storage"
)

var migrationTracer = otel.Tracer("radiance/migration")

// DefaultBatchSize is the page size used when paginating the source.
const DefaultBatchSize = 100

// ItemFailure records a single document whose copy failed.
type ItemFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Report summarizes one collection's migration run. It is produced per
// run and not persisted beyond the run's own log output.
type Report struct {
	Collection string        `json:"collection"`
	Total      int           `json:"total"`
	Success    int           `json:"success"`
	Failures   []ItemFailure `json:"failures,omitempty"`
	DryRun     bool          `json:"dry_run"`
}

// Failed reports whether any document copy failed.
func (r *Report) Failed() bool { return len(r.Failures) > 0 }

// RunOptions control a migration run.
type RunOptions struct {
	// DryRun performs only the counting step; the target is untouched.
	DryRun bool

	// Resume continues from the collection's checkpoint instead of
	// starting at offset zero. Requires a checkpoint store.
	Resume bool
}

// Migrator copies documents collection-by-collection between adapters.
type Migrator struct {
	source      storage.Adapter
	target      storage.Adapter
	batchSize   int
	checkpoints *CheckpointStore
	log         *logrus.Entry
}

// Option customizes a Migrator.
type Option func(*Migrator)

// WithBatchSize overrides the source pagination size.
func WithBatchSize(n int) Option {
	return func(m *Migrator) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithCheckpoints enables resumable runs backed by the given store.
func WithCheckpoints(cs *CheckpointStore) Option {
	return func(m *Migrator) { m.checkpoints = cs }
}

// WithLogger overrides the default logger.
func WithLogger(log *logrus.Logger) Option {
	return func(m *Migrator) { m.log = log.WithField("component", "migrator") }
}

// NewMigrator creates a migrator copying from source to target.
func NewMigrator(source, target storage.Adapter, opts ...Option) *Migrator {
	m := &Migrator{
		source:    source,
		target:    target,
		batchSize: DefaultBatchSize,
		log:       logrus.StandardLogger().WithField("component", "migrator"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MigrateCollection copies one collection from source to target,
// preserving ids. Individual failures are accumulated in the report
// rather than aborting the run; only infrastructure errors (source
// unreachable, checkpoint store broken) abort.
//
// Re-running is idempotent by id: saves are upserts, so documents copied
// by an earlier run are re-saved harmlessly. Documents whose id was
// reassigned between runs are copied under the new id and the old copy
// is not cleaned up; callers needing strict incrementality must track
// succeeded ids themselves.
func (m *Migrator) MigrateCollection(ctx context.Context, collection string, opts RunOptions) (*Report, error) {
	ctx, span := migrationTracer.Start(ctx, "Migrator.MigrateCollection",
		trace.WithAttributes(
			attribute.String("migration.collection", collection),
			attribute.Bool("migration.dry_run", opts.DryRun),
		))
	defer span.End()

	report := &Report{Collection: collection, DryRun: opts.DryRun}
	log := m.log.WithFields(logrus.Fields{
		"collection": collection,
		"source":     m.source.Name(),
		"target":     m.target.Name(),
	})

	total, err := m.source.Count(ctx, collection, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to count source collection %s: %w", collection, err)
	}
	report.Total = total

	if opts.DryRun {
		log.WithField("total", total).Info("dry run: counted source documents")
		return report, nil
	}

	offset := 0
	if opts.Resume && m.checkpoints != nil {
		cp, err := m.checkpoints.Get(ctx, collection)
		if err != nil {
			return nil, err
		}
		if cp != nil {
			offset = cp.NextOffset
			report.Success = cp.Success
			log.WithField("offset", offset).Info("resuming from checkpoint")
		}
	}

	for {
		docs, err := m.source.List(ctx, collection, storage.ListOptions{
			Limit:   m.batchSize,
			Offset:  offset,
			OrderBy: storage.FieldID,
		})
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return report, fmt.Errorf("failed to list source collection %s at offset %d: %w", collection, offset, err)
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			id := doc.ID()
			if id == "" {
				report.Failures = append(report.Failures, ItemFailure{Reason: "document has no id"})
				continue
			}
			if _, err := m.target.Save(ctx, collection, doc, id); err != nil {
				report.Failures = append(report.Failures, ItemFailure{ID: id, Reason: err.Error()})
				log.WithField("id", id).WithError(err).Warn("failed to copy document")
				continue
			}
			report.Success++
		}

		offset += len(docs)
		if m.checkpoints != nil {
			cp := &Checkpoint{
				Collection: collection,
				NextOffset: offset,
				Total:      total,
				Success:    report.Success,
			}
			if err := m.checkpoints.Put(ctx, cp); err != nil {
				return report, fmt.Errorf("failed to record checkpoint for %s: %w", collection, err)
			}
		}

		if len(docs) < m.batchSize {
			break
		}
	}

	log.WithFields(logrus.Fields{
		"total":    report.Total,
		"success":  report.Success,
		"failures": len(report.Failures),
	}).Info("collection migration finished")
	return report, nil
}

// MigrateAll migrates several collections with bounded parallelism.
// Collections are independent, so a failing one does not stop the
// others; the first infrastructure error is returned alongside the
// reports that completed.
func (m *Migrator) MigrateAll(ctx context.Context, collections []string, parallelism int, opts RunOptions) ([]*Report, error) {
	if parallelism <= 0 {
		parallelism = 1
	}

	reports := make([]*Report, len(collections))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, collection := range collections {
		g.Go(func() error {
			report, err := m.MigrateCollection(ctx, collection, opts)
			reports[i] = report
			return err
		})
	}

	err := g.Wait()

	out := reports[:0]
	for _, r := range reports {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, err
}
