package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/assessment"
	"github.com/stemsi/exstem-proctor/internal/clock"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("assessment_api", cfg.AssessmentAPIURL).
		Msg("Starting ExStem Proctor")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.PolicyFile).Msg("Failed to load monitoring policy")
	}
	log.Info().
		Int("tab_switch_limit", policy.TabSwitchLimit).
		Int("multiple_faces_limit", policy.MultipleFacesLimit).
		Int("no_face_limit", policy.NoFaceLimit).
		Msg("Monitoring policy loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to PostgreSQL (optional) ──────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	if pool != nil {
		defer pool.Close()
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	snapshotRepo := repository.NewRedisSnapshotRepository(rdb, cfg.SnapshotTTL)
	var audit proctor.AuditSink = repository.NoopAudit{}
	var auditRepo *repository.AuditRepository
	if pool != nil {
		auditRepo = repository.NewAuditRepository(pool)
		audit = repository.NewAuditQueue(rdb)
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers []<-chan struct{}
	startWorker := func(run func(context.Context)) {
		done := make(chan struct{})
		workers = append(workers, done)
		go func() {
			defer close(done)
			run(workerCtx)
		}()
	}

	snapshotWriter := worker.NewSnapshotWriter(snapshotRepo, log)
	startWorker(snapshotWriter.Start)
	if auditRepo != nil {
		startWorker(worker.NewAuditWorker(auditRepo, rdb, log).Start)
	}

	sessionLimiter := middleware.NewRateLimiter(cfg.SessionOpenRate, time.Minute)
	go sessionLimiter.Run(workerCtx)

	// ─── Initialize Handlers ──────────────────────────────────────────
	// Sessions outlive the HTTP shutdown window; they end when sessionCtx
	// is cancelled.
	sessionCtx, sessionCancel := context.WithCancel(context.Background())
	remote := assessment.NewClient(cfg.AssessmentAPIURL, cfg.AssessmentAPITimeout, log)

	sessionHandler := handler.NewSessionHandler(sessionCtx, remote, snapshotWriter, audit, policy, clock.Real{}, log, cfg.AllowedOrigins)
	handlers := &router.Handlers{
		Session:  sessionHandler,
		Snapshot: handler.NewSnapshotHandler(snapshotRepo, audit, log),
		System:   handler.NewSystemHandler(rdb, policy, log),
	}
	if auditRepo != nil {
		handlers.Audit = handler.NewAuditHandler(auditRepo, log)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, sessionLimiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. End live sessions. In-flight submissions finish before their
	// engines return.
	sessionCancel()
	if !sessionHandler.Wait(15 * time.Second) {
		log.Warn().Msg("Sessions still open after shutdown timeout")
	}

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	for _, done := range workers {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			log.Warn().Msg("Worker did not stop in time")
		}
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
