package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"compass.education/internal/audit"
	"compass.education/internal/authn"
	"compass.education/internal/config"
	"compass.education/internal/filesec"
	"compass.education/internal/httpapi"
	"compass.education/internal/identity"
	"compass.education/internal/obs"
	"compass.education/internal/offline"
	"compass.education/internal/ratelimit"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("COMPASS_CONFIG"), "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Logger()

	// Identity provider client. The gateway is useless without one.
	if cfg.Identity.BaseURL == "" {
		log.Fatal("missing identity provider URL: set COMPASS_IDENTITY_URL or identity.baseURL")
	}
	idClient, err := identity.NewClient(cfg.Identity.BaseURL,
		identity.WithSessionSecret(cfg.Identity.SessionSecret),
		identity.WithTimeout(cfg.Identity.Timeout),
	)
	if err != nil {
		log.Fatalf("identity client: %v", err)
	}

	cache, err := offline.NewCache(1024, cfg.Auth.SessionTimeout)
	if err != nil {
		log.Fatalf("offline cache: %v", err)
	}
	queue := offline.NewQueue()

	resolver, err := authn.NewResolver(idClient, cache, queue)
	if err != nil {
		log.Fatalf("auth resolver: %v", err)
	}

	limiter := ratelimit.New()

	// Audit store is optional per stage: without a DSN entries are dropped
	// and only readiness reflects the missing database.
	var (
		auditor    audit.Logger = audit.Discard{}
		dispatcher *audit.Dispatcher
		pgStore    *audit.PGStore
	)
	if cfg.Features.EnableAuditLogging && cfg.Database.DSN != "" {
		pgStore, err = audit.Open(cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open audit store: %v", err)
		}
		dispatcher = audit.NewDispatcher(pgStore, 256)
		auditor = dispatcher
	}

	pipeline, err := httpapi.NewPipeline(resolver, limiter, auditor, cfg.Features.EnableRateLimiting)
	if err != nil {
		log.Fatalf("security pipeline: %v", err)
	}

	uploads := filesec.NewPipeline(filesec.Config{
		MaxFileSize:      cfg.FileUpload.MaxFileSize,
		AllowedMimeTypes: cfg.FileUpload.AllowedMimeTypes,
	}, nil)

	deps := httpapi.Deps{
		Resolver: resolver,
		Pipeline: pipeline,
		Uploads:  uploads,
		Auditor:  auditor,
		Config:   cfg,
		Version:  version,
	}
	if pgStore != nil {
		deps.Ownership = pgStore
		deps.ReadyProbe = httpapi.ReadyProbe{DB: pgStore.DB()}
	}
	api := httpapi.New(deps)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Live-reload is best effort; a broken rewrite keeps the last good config.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if *configPath != "" {
		go func() {
			if err := config.Watch(watchCtx, *configPath, func(next config.Config) {
				logger.Info("configuration reloaded")
			}); err != nil {
				logger.WithError(err).Warn("config watcher stopped")
			}
		}()
	}

	logger.WithField("addr", srv.Addr).WithField("version", version).Info("compass gateway starting")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	limiter.Stop()
	if dispatcher != nil {
		dispatcher.Close()
	}
	if pgStore != nil {
		_ = pgStore.Close()
	}

	// Surface any operations still queued for the identity provider.
	if queue.Len() > 0 {
		logger.WithField("pending", queue.Len()).Warn("retry queue not empty at shutdown")
	}

	logger.Info("stopped")
}
