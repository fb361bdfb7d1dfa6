package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secure-transfer/internal/audit"
	"secure-transfer/internal/auth"
	"secure-transfer/internal/config"
	"secure-transfer/internal/kv"
	"secure-transfer/internal/logging"
	"secure-transfer/internal/security"
	"secure-transfer/internal/server"
	"secure-transfer/internal/storage"
)

func main() {
	if err := run(); err != nil {
		logging.Error("backend exited", nil, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Configure(os.Stdout, logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Env: cfg.Env})
	cfg.WarnOnRiskySettings()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openKV(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return err
	}
	files := storage.NewFileStore(blobs)

	var (
		sink    audit.Sink
		auditDB server.Pinger
	)
	if cfg.DatabaseURL != "" {
		db, err := openAuditDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		pg := audit.NewPostgresSink(db)
		sink, auditDB = pg, pg
	}

	nonces := security.NewNonceStore(store, cfg.NonceTTL)
	authn, err := auth.New(authConfig(cfg), nonces)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	var limiter *security.RateLimiter
	if cfg.RateLimitEnabled {
		limiter = security.NewRateLimiter(store, cfg.RateLimitMax, cfg.RateLimitWindow)
	}

	urls, err := security.NewSignedURLs(security.SignedURLConfig{
		Secret:     []byte(cfg.SignedURLSecret),
		BaseURL:    cfg.PublicBaseURL,
		DefaultTTL: cfg.SignedURLTTL,
		MaxTTL:     cfg.SignedURLMaxTTL,
		BindIP:     cfg.SignedURLBindIP,
	}, store, files)
	if err != nil {
		return fmt.Errorf("signed urls: %w", err)
	}

	go storage.StartSweepJob(ctx, storage.SweepConfig{
		Enabled:  cfg.SweepEnabled,
		Interval: cfg.SweepInterval,
		MinAge:   cfg.SweepMinAge,
		Blobs:    blobs,
	})

	shutdownTracing, err := server.SetupTracing(ctx, cfg.OTLPEndpoint, "secure-transfer", cfg.Version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(tctx)
	}()

	srv, err := server.New(server.Config{
		Addr:       cfg.Addr,
		TrustProxy: cfg.TrustProxy,
		Version:    cfg.Version,
		Commit:     cfg.Commit,
	}, server.Deps{
		Auth:       authn,
		Limiter:    limiter,
		SignedURLs: urls,
		Files:      files,
		Validator:  storage.NewValidator(cfg.MaxUploadBytes, cfg.AllowedMimeTypes),
		KV:         store,
		Audit:      audit.NewLogger(sink, audit.Options{LogIP: cfg.AuditLogIP, LogHash: cfg.AuditLogHash}),
		AuditDB:    auditDB,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("starting", map[string]any{
			"addr":     cfg.Addr,
			"version":  cfg.Version,
			"commit":   cfg.Commit,
			"strategy": authn.Name(),
			"storage":  cfg.StorageBackend,
			"kv":       cfg.KVBackend,
		})
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logging.Info("shutting down", nil)
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logging.Info("shutdown complete", nil)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func authConfig(cfg config.Config) auth.Config {
	return auth.Config{
		Strategy:        cfg.AuthStrategy,
		BearerToken:     cfg.BearerToken,
		HMACSecret:      cfg.HMACSecret,
		HMACTolerance:   cfg.HMACTolerance,
		JWTSecret:       cfg.JWTSecret,
		JWTPublicKeyPEM: cfg.JWTPublicKeyPEM,
		JWTAlgorithm:    cfg.JWTAlgorithm,
		JWTIssuer:       cfg.JWTIssuer,
		JWTReplayGuard:  cfg.JWTReplayGuard,
	}
}

func openKV(ctx context.Context, cfg config.Config) (kv.Store, error) {
	switch cfg.KVBackend {
	case "redis":
		s, err := kv.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return s, nil
	default:
		return kv.NewMemoryStore(), nil
	}
}

func openBlobs(ctx context.Context, cfg config.Config) (storage.BlobStore, error) {
	switch cfg.StorageBackend {
	case "minio":
		b, err := storage.NewMinioBlobStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		return b, nil
	default:
		b, err := storage.NewFSBlobStore(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("storage dir: %w", err)
		}
		return b, nil
	}
}

func openAuditDB(url string) (*sql.DB, error) {
	db, err := audit.OpenDB(url)
	if err != nil {
		return nil, fmt.Errorf("audit db: %w", err)
	}
	logging.Info("running migrations", nil)
	if err := audit.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit migrations: %w", err)
	}
	return db, nil
}
