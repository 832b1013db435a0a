package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"insta-vault/internal/domain"
	"insta-vault/internal/infra/metrics"
)

// ErrTimeout возвращается, когда внешняя задача не завершилась за отведённое время.
var ErrTimeout = errors.New("расшифровка не завершилась за отведённое время")

const (
	defaultPollInterval = 5 * time.Second
	defaultMaxWait      = 5 * time.Minute
)

// Service выполняет задачи расшифровки: распознавание речи по видео и OCR по
// изображениям. Статус записи проходит pending → processing → completed|failed;
// из терминальных состояний автоматических переходов нет.
type Service struct {
	contents       domain.ContentRepo
	transcriptions domain.TranscriptionRepo
	speech         domain.SpeechTranscriber
	ocr            domain.OCRClient
	pollInterval   time.Duration
	maxWait        time.Duration
	log            zerolog.Logger
}

// NewService создаёт сервис расшифровки.
func NewService(contents domain.ContentRepo, transcriptions domain.TranscriptionRepo, speech domain.SpeechTranscriber, ocr domain.OCRClient, pollInterval, maxWait time.Duration, log zerolog.Logger) *Service {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	return &Service{
		contents:       contents,
		transcriptions: transcriptions,
		speech:         speech,
		ocr:            ocr,
		pollInterval:   pollInterval,
		maxWait:        maxWait,
		log:            log,
	}
}

// Process выполняет одну задачу расшифровки. Повторная доставка задачи для
// уже обрабатываемой или завершённой записи — no-op.
func (s *Service) Process(ctx context.Context, job domain.TranscriptionJob) error {
	claimed, err := s.contents.ClaimTranscription(ctx, job.ContentID)
	if err != nil {
		return fmt.Errorf("захват записи: %w", err)
	}
	if !claimed {
		s.log.Debug().Str("content_id", job.ContentID.String()).Msg("transcribe: запись уже обработана, пропуск")
		return nil
	}

	start := time.Now()
	text, language, err := s.run(ctx, job)
	metrics.ObserveTranscription(string(job.Kind), start, err)
	if err != nil {
		s.log.Error().Err(err).Str("content_id", job.ContentID.String()).Str("kind", string(job.Kind)).Msg("transcribe: задача завершилась ошибкой")
		if finishErr := s.contents.FinishTranscription(ctx, job.ContentID, domain.TranscriptionFailed); finishErr != nil {
			return fmt.Errorf("фиксация ошибки: %w", finishErr)
		}
		return err
	}

	if _, err := s.transcriptions.UpsertTranscription(ctx, job.ContentID, text, language); err != nil {
		if finishErr := s.contents.FinishTranscription(ctx, job.ContentID, domain.TranscriptionFailed); finishErr != nil {
			s.log.Error().Err(finishErr).Str("content_id", job.ContentID.String()).Msg("transcribe: не удалось выставить failed")
		}
		return err
	}
	if err := s.contents.FinishTranscription(ctx, job.ContentID, domain.TranscriptionCompleted); err != nil {
		return fmt.Errorf("фиксация результата: %w", err)
	}
	s.log.Info().Str("content_id", job.ContentID.String()).Int("chars", len(text)).Msg("transcribe: расшифровка сохранена")
	return nil
}

func (s *Service) run(ctx context.Context, job domain.TranscriptionJob) (string, string, error) {
	switch job.Kind {
	case domain.TranscriptionKindAudio:
		return s.transcribeAudio(ctx, job.MediaURL)
	case domain.TranscriptionKindOCR:
		return s.recognizeImages(ctx, job.ImageURLs)
	default:
		return "", "", fmt.Errorf("неизвестный тип задачи: %s", job.Kind)
	}
}

// transcribeAudio отправляет задачу во внешний сервис и опрашивает её статус
// с фиксированным интервалом до истечения максимального ожидания.
func (s *Service) transcribeAudio(ctx context.Context, audioURL string) (string, string, error) {
	jobID, err := s.speech.Submit(ctx, audioURL)
	if err != nil {
		return "", "", fmt.Errorf("создание задачи распознавания: %w", err)
	}
	s.log.Debug().Str("job_id", jobID).Msg("transcribe: задача распознавания создана")

	deadline := time.Now().Add(s.maxWait)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		result, err := s.speech.Poll(ctx, jobID)
		if err != nil {
			return "", "", fmt.Errorf("опрос задачи распознавания: %w", err)
		}
		switch result.Status {
		case domain.SpeechJobCompleted:
			language := result.Language
			if language == "" {
				language = "auto"
			}
			return result.Text, language, nil
		case domain.SpeechJobError:
			return "", "", fmt.Errorf("распознавание завершилось ошибкой: %s", result.Error)
		}
		if time.Now().After(deadline) {
			return "", "", ErrTimeout
		}
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// recognizeImages распознаёт текст на изображениях в исходном порядке.
// Пустые результаты пропускаются; при нескольких изображениях каждый блок
// получает маркер с номером изображения.
func (s *Service) recognizeImages(ctx context.Context, imageURLs []string) (string, string, error) {
	if len(imageURLs) == 0 {
		return "", "", errors.New("нет изображений для распознавания")
	}
	var b strings.Builder
	for i, imageURL := range imageURLs {
		text, err := s.ocr.Recognize(ctx, imageURL)
		if err != nil {
			return "", "", fmt.Errorf("распознавание изображения %d: %w", i+1, err)
		}
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		if len(imageURLs) > 1 {
			fmt.Fprintf(&b, "[Image %d]\n%s\n\n", i+1, trimmed)
		} else {
			fmt.Fprintf(&b, "%s\n", trimmed)
		}
	}
	return b.String(), "auto", nil
}
