package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"insta-vault/internal/adapters/ocr"
	"insta-vault/internal/adapters/repo"
	"insta-vault/internal/adapters/speech"
	"insta-vault/internal/domain"
	"insta-vault/internal/infra/config"
	"insta-vault/internal/infra/db"
	applog "insta-vault/internal/infra/log"
	"insta-vault/internal/infra/metrics"
	"insta-vault/internal/infra/queue"
	transcribeusecase "insta-vault/internal/usecase/transcribe"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9091")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var transcriptionQueue domain.TranscriptionQueue
	switch {
	case cfg.RabbitURL != "":
		rabbitQueue, err := queue.NewRabbitTranscriptionQueue(cfg.RabbitURL, cfg.Queues.Transcription)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbitQueue.Close()
		transcriptionQueue = rabbitQueue
	case cfg.RedisAddr != "":
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		transcriptionQueue = queue.NewRedisTranscriptionQueue(redisClient, cfg.Queues.Transcription)
	default:
		logger.Fatal().Msg("worker: не задана очередь задач (RABBITMQ_URL или REDIS_ADDR)")
	}

	if cfg.AssemblyAI.APIKey == "" {
		logger.Fatal().Msg("worker: не указан ключ AssemblyAI (ASSEMBLYAI_API_KEY)")
	}
	speechClient, err := speech.NewAssemblyAI(cfg.AssemblyAI.APIKey, cfg.AssemblyAI.BaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось создать клиента AssemblyAI")
	}

	if cfg.OCR.BaseURL == "" {
		logger.Fatal().Msg("worker: не указан адрес OCR-сервиса (OCR_BASE_URL)")
	}
	ocrClient, err := ocr.NewTesseract(ocr.Config{
		BaseURL:   cfg.OCR.BaseURL,
		Languages: cfg.OCR.Languages,
		Timeout:   cfg.OCR.Timeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось создать OCR-клиента")
	}

	service := transcribeusecase.NewService(repoAdapter, repoAdapter, speechClient, ocrClient,
		cfg.Transcribe.PollInterval, cfg.Transcribe.MaxWait,
		logger.With().Str("component", "transcribe").Logger())

	worker := &jobWorker{log: logger, queue: transcriptionQueue, service: service}
	logger.Info().Msg("worker: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("worker: остановлен")
}

type jobWorker struct {
	log     zerolog.Logger
	queue   domain.TranscriptionQueue
	service *transcribeusecase.Service
}

// Run обрабатывает задачи до отмены контекста. Ошибка одной задачи не
// останавливает обработку остальных.
func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("worker: ошибка чтения очереди")
			continue
		}

		processErr := w.service.Process(ctx, job)
		if processErr != nil {
			w.log.Error().Err(processErr).Str("content_id", job.ContentID.String()).Msg("worker: задача завершилась ошибкой")
		}
		// При ошибке задача вернётся в очередь; если терминальный статус уже
		// записан, повторная доставка упрётся в захват статуса и станет no-op.
		if err := ack(processErr == nil); err != nil {
			w.log.Error().Err(err).Msg("worker: не удалось подтвердить задачу")
		}
	}
}
