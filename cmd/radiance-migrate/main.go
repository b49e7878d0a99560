// radiance-migrate copies collections between storage backends, with
// optional pre-migration S3 snapshots and journal reconciliation.
//
// Typical migration window:
//
//	radiance-migrate -collection affirmations -dry-run
//	radiance-migrate -collection affirmations -backup
//	radiance-migrate -all -parallelism 3
//	radiance-migrate -reconcile
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/radiancehq/radiance/pkg/config"
	"github.com/radiancehq/radiance/pkg/migration"
	"github.com/radiancehq/radiance/pkg/storage"
)

var (
	configPath   = flag.String("config", "", "Path to YAML config file (optional; env vars override)")
	source       = flag.String("source", "json", "Source adapter: json or supabase")
	target       = flag.String("target", "supabase", "Target adapter: json or supabase")
	collection   = flag.String("collection", "", "Collection to migrate")
	all          = flag.Bool("all", false, "Migrate all known collections")
	dryRun       = flag.Bool("dry-run", false, "Count source documents without writing")
	resume       = flag.Bool("resume", false, "Resume from the last checkpoint")
	batchSize    = flag.Int("batch-size", migration.DefaultBatchSize, "Documents copied per page")
	parallelism  = flag.Int("parallelism", 2, "Collections migrated concurrently with -all")
	checkpointDB = flag.String("checkpoint-db", "", "Checkpoint database path (default from config)")
	backup       = flag.Bool("backup", false, "Snapshot the source collection(s) to S3 before copying")
	reconcile    = flag.Bool("reconcile", false, "Replay pending dual-write journal entries and exit")
	schedule     = flag.String("schedule", "", "Run -reconcile on a cron schedule instead of once")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src, err := buildAdapter(*source, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize source adapter: %v", err)
	}
	defer src.Close()
	dst, err := buildAdapter(*target, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize target adapter: %v", err)
	}
	defer dst.Close()

	if *reconcile {
		if err := runReconcile(ctx, cfg, src, dst, log); err != nil {
			log.Fatalf("Reconciliation failed: %v", err)
		}
		return
	}

	collections, err := resolveCollections()
	if err != nil {
		log.Fatal(err)
	}

	if *backup {
		archiver, err := migration.NewArchiver(ctx, cfg.Migration.Backup)
		if err != nil {
			log.Fatalf("Failed to initialize backup archiver: %v", err)
		}
		for _, c := range collections {
			key, err := archiver.BackupCollection(ctx, src, c)
			if err != nil {
				log.Fatalf("Backup of %s failed: %v", c, err)
			}
			log.WithFields(logrus.Fields{"collection": c, "key": key}).Info("backup uploaded")
		}
	}

	cpPath := cfg.Migration.CheckpointDB
	if *checkpointDB != "" {
		cpPath = *checkpointDB
	}
	checkpoints, err := migration.NewCheckpointStore(cpPath)
	if err != nil {
		log.Fatalf("Failed to open checkpoint database: %v", err)
	}
	defer checkpoints.Close()

	m := migration.NewMigrator(src, dst,
		migration.WithBatchSize(*batchSize),
		migration.WithCheckpoints(checkpoints),
		migration.WithLogger(log),
	)
	opts := migration.RunOptions{DryRun: *dryRun, Resume: *resume}

	reports, err := m.MigrateAll(ctx, collections, *parallelism, opts)
	for _, r := range reports {
		printReport(r)
	}
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	for _, r := range reports {
		if len(r.Failures) > 0 {
			os.Exit(1)
		}
	}
}

func buildAdapter(kind string, cfg *config.Config) (storage.Adapter, error) {
	sc := cfg.Storage.ToStorage()
	switch kind {
	case storage.AdapterJSON:
		return storage.NewJSONAdapter(sc.JSONPath)
	case storage.AdapterSupabase:
		return storage.NewSupabaseAdapter(sc)
	default:
		return nil, fmt.Errorf("unknown adapter %q (want json or supabase)", kind)
	}
}

func resolveCollections() ([]string, error) {
	if *all {
		return storage.KnownCollections(), nil
	}
	if *collection == "" {
		return nil, fmt.Errorf("either -collection or -all is required")
	}
	var out []string
	for _, c := range strings.Split(*collection, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

func runReconcile(ctx context.Context, cfg *config.Config, primary, secondary storage.Adapter, log *logrus.Logger) error {
	journal, err := migration.NewJournalStore(cfg.Migration.JournalDB)
	if err != nil {
		return err
	}
	defer journal.Close()

	r := migration.NewReconciler(journal, primary, secondary, migration.WithReconcilerLogger(log))

	if *schedule != "" {
		c, err := r.Schedule(*schedule)
		if err != nil {
			return err
		}
		defer c.Stop()
		log.WithField("schedule", *schedule).Info("reconciler running; Ctrl-C to stop")
		<-ctx.Done()
		return nil
	}

	replayed, failed, err := r.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("reconciled %d entries, %d still pending\n", replayed, failed)
	return nil
}

func printReport(r *migration.Report) {
	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	fmt.Printf("%s%s: %d total, %d copied, %d failed\n",
		r.Collection, mode, r.Total, r.Success, len(r.Failures))
	for _, f := range r.Failures {
		fmt.Printf("  %s: %s\n", f.ID, f.Reason)
	}
}
