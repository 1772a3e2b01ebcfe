// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

// Package app wires configuration, storage, messaging and the HTTP API
// into a running halcyon server.
package app

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/halcyonrmm/halcyon/internal/api"
	"github.com/halcyonrmm/halcyon/internal/api/handlers"
	"github.com/halcyonrmm/halcyon/internal/api/middleware"
	"github.com/halcyonrmm/halcyon/internal/events"
	inats "github.com/halcyonrmm/halcyon/internal/nats"
	"github.com/halcyonrmm/halcyon/internal/pkg/logger"
	"github.com/halcyonrmm/halcyon/internal/repository/postgres"
	"github.com/halcyonrmm/halcyon/internal/services/assignment"
	"github.com/halcyonrmm/halcyon/internal/services/audit"
	"github.com/halcyonrmm/halcyon/internal/services/policy"
	"github.com/halcyonrmm/halcyon/internal/services/resolution"
)

// Build-time variables, injected via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = ""
)

// PrintVersion prints build information to stdout.
func PrintVersion() {
	fmt.Printf("halcyon %s (commit %s", Version, Commit)
	if BuildTime != "" {
		fmt.Printf(", built %s", BuildTime)
	}
	fmt.Println(")")
}

// Application holds the running components.
type Application struct {
	Config *Config
	Logger *logger.Logger
	DB     *postgres.DB
	NATS   *inats.Client
	Server *api.Server
}

// Run starts the server and blocks until a shutdown signal arrives.
func Run(cfgFile string) error {
	ctx := context.Background()

	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("starting halcyon",
		"version", Version,
		"commit", Commit,
	)

	// Database
	db, err := postgres.New(ctx, cfg.Database.URL, postgres.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database connected and migrated")

	// NATS is optional: without it change events are dropped, resolution
	// and the API work unchanged.
	var nc *inats.Client
	var policyEvents policy.Events = events.Nop{}
	var assignmentEvents assignment.Events = events.Nop{}
	if cfg.NATS.URL != "" {
		natsCfg := inats.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Name = cfg.NATS.Name
		natsCfg.Token = cfg.NATS.Token
		natsCfg.Username = cfg.NATS.Username
		natsCfg.Password = cfg.NATS.Password
		natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
		natsCfg.ReconnectWait = cfg.NATS.ReconnectWait
		natsCfg.JetStreamEnabled = cfg.NATS.JetStream.Enabled
		natsCfg.JetStreamDomain = cfg.NATS.JetStream.Domain

		if cfg.NATS.TLS.Enabled {
			tlsCfg, tlsErr := buildNATSTLSConfig(cfg.NATS.TLS.CertFile, cfg.NATS.TLS.KeyFile, cfg.NATS.TLS.CAFile, cfg.NATS.TLS.SkipVerify)
			if tlsErr != nil {
				return fmt.Errorf("failed to configure NATS TLS: %w", tlsErr)
			}
			natsCfg.TLSConfig = tlsCfg
		}

		nc = inats.NewClient(natsCfg, log)
		if err := nc.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()
		log.Info("NATS connected", "url", cfg.NATS.URL)

		var js *inats.JetStream
		if cfg.NATS.JetStream.Enabled {
			js, err = inats.NewJetStream(nc, log)
			if err != nil {
				log.Warn("jetstream unavailable, events will not be retained", "error", err)
				js = nil
			}
		}

		pub := events.NewPublisher(nc, js, log)
		if err := pub.EnsureStream(); err != nil {
			log.Warn("failed to ensure event stream", "error", err)
		}
		policyEvents = pub
		assignmentEvents = pub
	}

	// Repositories
	policyRepo := postgres.NewPolicyRepository(db)
	assignmentRepo := postgres.NewAssignmentRepository(db)
	directoryRepo := postgres.NewDirectoryRepository(db)
	auditRepo := postgres.NewAuditLogRepository(db)
	featureRegistry := postgres.NewFeaturePolicyRegistry(db)
	resolutionStore := postgres.NewResolutionStore(db)

	// Services
	auditSvc := audit.NewService(auditRepo, log, audit.Config{
		Enabled:         cfg.Audit.Enabled,
		RetentionDays:   cfg.Audit.RetentionDays,
		CleanupInterval: cfg.Audit.CleanupInterval,
	})
	policySvc := policy.NewService(policyRepo, featureRegistry, policyEvents, log)
	assignmentSvc := assignment.NewService(assignmentRepo, policyRepo, directoryRepo, assignmentEvents, log)
	resolverSvc := resolution.NewService(resolutionStore, resolutionStore, log)

	// HTTP server
	routerCfg := api.DefaultRouterConfig(cfg.Security.JWTSecret)
	routerCfg.CORSConfig = middleware.CORSFromEnv(cfg.Security.CORSOrigins, cfg.Security.CORSCredentials)
	routerCfg.RateLimitPerMinute = cfg.Server.RateLimitRPM
	routerCfg.RequestTimeout = cfg.Server.RequestTimeout
	routerCfg.MetricsEnabled = cfg.Metrics.Enabled
	if cfg.Metrics.Path != "" {
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	serverCfg := api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		HTTPSPort:       cfg.Server.HTTPSPort,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RouterConfig:    routerCfg,
		Version:         Version,
		Commit:          Commit,
		BuildTime:       BuildTime,
		Logger:          log,
	}
	if cfg.Server.TLS.Enabled {
		serverCfg.TLSCert = cfg.Server.TLS.CertFile
		serverCfg.TLSKey = cfg.Server.TLS.KeyFile
	}

	server := api.NewServer(serverCfg)

	h := server.Handlers()
	h.Policy = handlers.NewPolicyHandler(policySvc, auditSvc, log)
	h.Assignment = handlers.NewAssignmentHandler(assignmentSvc, auditSvc, log)
	h.Resolution = handlers.NewResolutionHandler(resolverSvc, log)
	h.Audit = handlers.NewAuditHandler(auditSvc, log)

	server.RegisterDatabaseHealth(db.Ping)
	if nc != nil {
		server.RegisterNATSHealth(nc.Health)
	}
	server.Setup()

	// Background workers stop when workerCtx is cancelled during shutdown.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	auditSvc.StartCleanupWorker(workerCtx)

	app := &Application{
		Config: cfg,
		Logger: log,
		DB:     db,
		NATS:   nc,
		Server: server,
	}

	errCh := server.StartAsync()

	log.Info("halcyon started",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig.String())
	}

	return app.shutdown()
}

func (app *Application) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := app.Server.Shutdown(ctx); err != nil {
		app.Logger.Error("error shutting down server", "error", err)
		return err
	}

	app.Logger.Info("halcyon stopped")
	return nil
}

// buildNATSTLSConfig creates a *tls.Config from certificate file paths.
func buildNATSTLSConfig(certFile, keyFile, caFile string, skipVerify bool) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: skipVerify, //nolint:gosec
	}

	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if caFile != "" {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no certificates found in CA file %s", caFile)
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}
