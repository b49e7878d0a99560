package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/radiancehq/radiance/pkg/admin"
	"github.com/radiancehq/radiance/pkg/api"
	"github.com/radiancehq/radiance/pkg/config"
	"github.com/radiancehq/radiance/pkg/migration"
	"github.com/radiancehq/radiance/pkg/storage"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (optional; env vars override)")
	adapter    = flag.String("adapter", "", "Storage adapter override: json, supabase or dual")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if *adapter != "" {
		cfg.Storage.Adapter = *adapter
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	log.SetFormatter(&logrus.JSONFormatter{})

	// The journal only matters in dual-write mode, but opening it is
	// cheap and keeps a later swap-to-dual from losing failures.
	journal, err := migration.NewJournalStore(cfg.Migration.JournalDB)
	if err != nil {
		log.Fatalf("Failed to open dual-write journal: %v", err)
	}
	defer journal.Close()

	factory, err := storage.NewFactory(cfg.Storage.ToStorage(),
		storage.WithFactoryJournal(journal),
		storage.WithFactoryLogger(log),
	)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer factory.Close()
	log.WithField("adapter", factory.Kind()).Info("storage initialized")

	// In dual-write mode a background reconciler drains the journal.
	if dual, ok := storage.AsDualWrite(factory.Adapter()); ok {
		reconciler := migration.NewReconciler(journal, dual.Primary(), dual.Secondary(),
			migration.WithReconcilerLogger(log))
		c, err := reconciler.Schedule(cfg.Migration.ReconcileSchedule)
		if err != nil {
			log.Fatalf("Failed to schedule reconciler: %v", err)
		}
		defer c.Stop()
		log.WithField("schedule", cfg.Migration.ReconcileSchedule).Info("reconciler scheduled")
	}

	adminServer := admin.NewServer(factory,
		admin.WithLogger(log),
		admin.WithMigrate(func(r *http.Request, collection string, opts migration.RunOptions) (*migration.Report, error) {
			dual, ok := storage.AsDualWrite(factory.Adapter())
			if !ok {
				return nil, fmt.Errorf("online migration requires dual-write mode")
			}
			m := migration.NewMigrator(dual.Primary(), dual.Secondary(), migration.WithLogger(log))
			return m.MigrateCollection(r.Context(), collection, opts)
		}),
	)

	dataServer := api.NewServer(factory, log)

	root := http.NewServeMux()
	root.Handle("/v1/", dataServer)
	root.Handle("/", adminServer)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithField("addr", addr).Info("admin server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
