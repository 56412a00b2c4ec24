package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicemail-recorder/internal/calls"
	"voicemail-recorder/internal/config"
	"voicemail-recorder/internal/enrichment"
	"voicemail-recorder/internal/telephony"
	"voicemail-recorder/internal/voicemail"
	"voicemail-recorder/internal/vonage"
	"voicemail-recorder/pkg/logger"
	"voicemail-recorder/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := calls.Migrate(cfg.DB.URL, log); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.DB.URL, utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	store := calls.NewPostgresRepo(db)

	signer, err := vonage.LoadTokenSigner(cfg.Vonage.ApplicationID, cfg.Vonage.PrivateKeyPath)
	if err != nil {
		log.Error("vonage signer init failed", "err", err)
		os.Exit(1)
	}
	vclient, err := vonage.New(vonage.Config{
		APIKey:         cfg.Vonage.APIKey,
		APISecret:      cfg.Vonage.APISecret,
		SMSFrom:        cfg.Enrichment.SMSFrom,
		Signer:         signer,
		RecordingHosts: cfg.Vonage.RecordingHosts,
	})
	if err != nil {
		log.Error("vonage client init failed", "err", err)
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.Redis.Addr})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	var (
		enqueuer voicemail.Enqueuer
		pool     *enrichment.Pool
	)
	if cfg.Enrichment.Enabled {
		pool = newEnrichmentPool(cfg, vclient, rdb, log)
		enqueuer = pool
	}

	manager := voicemail.NewRecordingManager(store, vclient, enqueuer, voicemail.ManagerConfig{
		Dir:             cfg.Recording.Dir,
		Format:          cfg.Recording.Format,
		DownloadTimeout: cfg.Recording.DownloadTimeout,
	}, log)
	orchestrator := voicemail.NewOrchestrator(store, telephony.NewNCCOBuilder(cfg), manager, log)

	r := newRouter(log, telephony.WebhookHandler{Hooks: orchestrator, Recordings: manager})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Recording.DownloadTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("application_initialized",
		"env", cfg.App.Env,
		"answer_url", cfg.Webhooks.AnswerURL,
		"event_url", cfg.Webhooks.EventURL,
		"recording_url", cfg.Webhooks.RecordingURL,
		"enrichment_enabled", cfg.Enrichment.Enabled,
		"endpoints", publicEndpoints,
	)

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if pool != nil {
		if err := pool.Shutdown(shutdownCtx); err != nil {
			log.Error("enrichment shutdown failed", "err", err)
		}
	}
}

func newEnrichmentPool(cfg config.Config, notifier enrichment.Notifier, rdb *redis.Client, log *slog.Logger) *enrichment.Pool {
	ec := cfg.Enrichment

	pipeline := enrichment.NewPipeline(
		enrichment.NewWhisperClient(enrichment.WhisperConfig{APIKey: ec.OpenAIAPIKey, Language: ec.TranscriptionLanguage}),
		enrichment.NewMurekaClient(enrichment.MurekaConfig{APIKey: ec.MurekaAPIKey}),
		notifier,
		enrichment.PipelineConfig{
			MusicStyle:            ec.MusicStyle,
			GenerationMaxAttempts: ec.GenerationMaxAttempts,
			GenerationRetryDelay:  ec.GenerationRetryDelay,
			PollInterval:          ec.PollInterval,
			PollTimeout:           ec.PollTimeout,
		},
		log,
	)

	pc := enrichment.PoolConfig{Workers: ec.Workers, QueueSize: ec.QueueSize}
	if rdb != nil && ec.GlobalLimit > 0 {
		pc.Limiter = enrichment.NewRedisLimiter(rdb, enrichment.DefaultLimiterKey, ec.GlobalLimit, ec.JobBudget())
	}
	return enrichment.NewPool(pipeline, pc, log)
}
