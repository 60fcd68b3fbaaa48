package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"certintake/internal/config"
	"certintake/internal/email/noop"
	"certintake/internal/email/ses"
	"certintake/internal/handler"
	"certintake/internal/mailparse"
	"certintake/internal/port"
	"certintake/internal/reconcile"
	"certintake/internal/repository/memory"
	"certintake/internal/repository/postgres"
	"certintake/internal/router"
	"certintake/internal/secrets"
	"certintake/internal/service"
	"certintake/internal/shipment"
	s3storage "certintake/internal/storage/s3"
	"certintake/internal/whitelist"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize repositories
	var (
		docRepo   port.DocumentRepository
		auditRepo port.DocumentAuditRepository
		pinger    handler.Pinger
	)
	if cfg.DB.UsesMemory() {
		log.Println("Using in-memory document repository")
		docRepo = memory.NewDocumentRepo()
		auditRepo = memory.NewAuditRepo()
	} else {
		db, err := postgres.NewDB(ctx, &cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		docRepo = postgres.NewDocumentRepo(db)
		auditRepo = postgres.NewDocumentAuditRepo(db)
		pinger = db
	}

	// Initialize storage
	s3Client, err := s3storage.NewS3Client(&cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	// Initialize notifier
	var notifier port.Notifier
	switch cfg.Email.Provider {
	case "ses":
		notifier, err = ses.NewSESNotifier(cfg.Email.Region, cfg.Email.FromName)
		if err != nil {
			return fmt.Errorf("failed to initialize SES notifier: %w", err)
		}
		log.Printf("Email notifier: SES (region=%s)", cfg.Email.Region)
	default:
		notifier = noop.NewNoopNotifier()
		log.Println("Email notifier: noop (emails will be logged)")
	}

	// Initialize shipment verification
	secretStore := secrets.NewEnvStore()
	var verifier port.ShipmentVerifier
	if cfg.Shipment.BaseURL != "" {
		verifier = shipment.NewHTTPVerifier(cfg.Shipment, secretStore, &http.Client{Timeout: cfg.Shipment.Timeout})
		log.Printf("Shipment verifier: %s", cfg.Shipment.BaseURL)
	} else {
		verifier = shipment.NewAcceptAllVerifier()
		log.Println("Shipment verifier: accept-all (no base URL configured)")
	}

	// Initialize services
	engine := reconcile.NewEngine(docRepo, auditRepo, reconcile.Config{DocumentType: cfg.Intake.DocumentType})
	senders := whitelist.NewStoredWhitelist(s3Client, cfg.S3.Bucket, cfg.S3.WhitelistKey, whitelist.DefaultTTL)
	authSvc := service.NewAuthService(cfg.JWT)
	intakeSvc := service.NewIntakeService(
		s3Client, mailparse.NewParser(), senders, verifier, engine, notifier, secretStore,
		service.IntakeConfig{
			Bucket:          cfg.S3.Bucket,
			PendingPrefix:   cfg.S3.PendingPrefix,
			TechnicalPrefix: cfg.S3.TechnicalPrefix,
			ReceiptsPrefix:  cfg.S3.ReceiptsPrefix,
		},
	)

	worker := service.NewIntakeWorker(s3Client, intakeSvc, service.IntakeWorkerConfig{
		Bucket:        cfg.S3.Bucket,
		PendingPrefix: cfg.S3.PendingPrefix,
		PollInterval:  time.Duration(cfg.Intake.PollIntervalSecs) * time.Second,
		Concurrency:   cfg.Intake.Concurrency,
		BatchSize:     cfg.Intake.BatchSize,
		Timeout:       time.Duration(cfg.Intake.TimeoutSecs) * time.Second,
	})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	// Initialize handlers
	healthH := handler.NewHealthHandler(pinger)
	shipmentH := handler.NewShipmentHandler(engine)
	intakeH := handler.NewIntakeHandler(intakeSvc)

	// Setup router
	r := router.Setup(authSvc, healthH, shipmentH, intakeH, cfg.Server.CORSOrigins)

	if cfg.Server.Environment == "development" {
		if token, err := authSvc.IssueToken("dev-operator", service.RoleOperator, 24*time.Hour); err == nil {
			log.Printf("Development operator token: %s", token)
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	wg.Wait()
	log.Println("Server stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}
