package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"insta-vault/internal/adapters/api"
	"insta-vault/internal/adapters/repo"
	"insta-vault/internal/adapters/scraper"
	"insta-vault/internal/domain"
	"insta-vault/internal/infra/cache"
	"insta-vault/internal/infra/config"
	"insta-vault/internal/infra/db"
	httpinfra "insta-vault/internal/infra/http"
	applog "insta-vault/internal/infra/log"
	"insta-vault/internal/infra/metrics"
	"insta-vault/internal/infra/queue"
	contentsusecase "insta-vault/internal/usecase/contents"
	ingestusecase "insta-vault/internal/usecase/ingest"
	webhooksusecase "insta-vault/internal/usecase/webhooks"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось применить миграции")
	}

	repoAdapter := repo.NewPostgres(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	var transcriptionQueue domain.TranscriptionQueue
	switch {
	case cfg.RabbitURL != "":
		rabbitQueue, err := queue.NewRabbitTranscriptionQueue(cfg.RabbitURL, cfg.Queues.Transcription)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbitQueue.Close()
		transcriptionQueue = rabbitQueue
	case redisClient != nil:
		transcriptionQueue = queue.NewRedisTranscriptionQueue(redisClient, cfg.Queues.Transcription)
	default:
		logger.Fatal().Msg("api: не задана очередь задач (RABBITMQ_URL или REDIS_ADDR)")
	}

	if cfg.Apify.APIKey == "" {
		logger.Fatal().Msg("api: не указан ключ Apify (APIFY_API_KEY)")
	}
	apifyClient, err := scraper.NewApify(scraper.Config{
		APIKey:  cfg.Apify.APIKey,
		BaseURL: cfg.Apify.BaseURL,
		Actor:   cfg.Apify.Actor,
		Timeout: cfg.Apify.Timeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось создать клиента Apify")
	}

	var ingestLock domain.IngestLock
	if redisClient != nil {
		ingestLock = cache.NewRedis(redisClient)
	}

	ingestService := ingestusecase.NewService(repoAdapter, apifyClient, transcriptionQueue, ingestLock,
		logger.With().Str("component", "ingest").Logger())
	contentsService := contentsusecase.NewService(repoAdapter)
	webhooksService := webhooksusecase.NewService(repoAdapter)
	imageProxy := api.NewImageProxy(cfg.Proxy.Timeout, logger.With().Str("component", "proxy").Logger())

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("api: не указан секрет JWT (AUTH_JWT_SECRET)")
	}

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	handler := api.NewHandler(logger.With().Str("component", "api").Logger(),
		ingestService, contentsService, webhooksService, imageProxy)
	handler.Routes(server.Router, httpinfra.BearerAuthMiddleware(cfg.Auth.JWTSecret))

	go func() {
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
