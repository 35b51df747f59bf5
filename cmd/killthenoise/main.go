// Package main is the killthenoise server entrypoint.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/killthenoise/killthenoise/internal/api"
	"github.com/killthenoise/killthenoise/internal/config"
	"github.com/killthenoise/killthenoise/internal/crypto"
	"github.com/killthenoise/killthenoise/internal/db"
	"github.com/killthenoise/killthenoise/internal/db/migrations"
	"github.com/killthenoise/killthenoise/internal/dbpool"
	"github.com/killthenoise/killthenoise/internal/provider"
	"github.com/killthenoise/killthenoise/internal/service"
	"github.com/killthenoise/killthenoise/internal/store"
	"github.com/killthenoise/killthenoise/internal/ws"
)

// version is set via ldflags at build time.
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load() //nolint:errcheck // missing .env is fine.

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value())
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
		return err
	}

	keys, err := newKeyProvider(cfg)
	if err != nil {
		return err
	}

	base := store.Base{Pool: pool, Log: log, Crypto: crypto.NewService(keys)}

	tenants := store.NewTenantStore(pool)
	integrationStore := store.NewIntegrationStore(base)
	issues := store.NewIssueStore(base)
	syncStore := store.NewSyncStore(base)
	groupStore := store.NewGroupStore(base)
	analytics := store.NewAnalyticsStore(base)
	settings := store.NewSettingsStore(base)

	factory := provider.NewFactory(cfg)
	oauth := provider.NewOAuthFlow(cfg)

	integrations := service.NewIntegrationService(integrationStore, oauth, factory, log)

	var (
		summarizer service.Summarizer
		aiProber   service.AIProber
	)
	if cfg.AIEnabled() {
		analyzer := service.NewAnalyzer(cfg.AIURL, cfg.AIAPIKey.Value(), cfg.AIModel)
		summarizer = analyzer
		aiProber = analyzer
		log.WithField("model", cfg.AIModel).Info("AI summarization enabled")
	}

	cluster := service.NewClusterService(issues, groupStore, summarizer, settings, log)

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	syncs := service.NewSyncService(integrations, syncStore, cluster, hub, log)

	worker := service.NewSyncWorker(syncs, log, 100, cfg.SyncWorkers)
	go worker.Run(ctx)

	if cfg.SchedulerEnabled {
		scheduler := service.NewSyncScheduler(integrationStore, worker, log)
		go scheduler.Run(ctx)
	}

	prober := service.NewConnectionChecker(integrations, pool, aiProber)

	router := api.NewRouter(ctx, &api.RouterDeps{
		Log:          log,
		Pool:         pool,
		Hub:          hub,
		Integrations: integrations,
		Syncs:        syncs,
		SyncQueue:    worker,
		Issues:       issues,
		Groups:       cluster,
		Analytics:    analytics,
		Settings:     settings,
		Prober:       prober,
		TenantLookup: tenants,
		CORSOrigins:  cfg.CORSOrigins,
		Version:      version,
		AIModel:      cfg.AIModel,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.Addr(), "version": version}).Info("server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	hub.Shutdown()

	return srv.Shutdown(shutdownCtx)
}

func newKeyProvider(cfg *config.Config) (crypto.KeyProvider, error) {
	switch cfg.EncryptionProvider {
	case "vault":
		return crypto.NewVaultProvider(cfg.VaultAddr, cfg.VaultToken.Value()), nil
	default:
		return crypto.NewStaticProvider(cfg.EncryptionKey.Value())
	}
}
