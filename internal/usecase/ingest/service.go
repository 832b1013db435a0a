package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"insta-vault/internal/domain"
	"insta-vault/internal/infra/metrics"
)

const dispatchLockTTL = 10 * time.Minute

// Service координирует сохранение публикации: валидация → дедупликация →
// скрейп → запись → постановка расшифровки в очередь.
type Service struct {
	contents domain.ContentRepo
	scraper  domain.Scraper
	queue    domain.TranscriptionQueue
	lock     domain.IngestLock
	log      zerolog.Logger
}

// NewService создаёт сервис сохранения. lock может быть nil — тогда защита
// от повторной постановки задачи держится только на захвате статуса воркером.
func NewService(contents domain.ContentRepo, scraper domain.Scraper, queue domain.TranscriptionQueue, lock domain.IngestLock, log zerolog.Logger) *Service {
	return &Service{contents: contents, scraper: scraper, queue: queue, lock: lock, log: log}
}

// Save сохраняет публикацию для пользователя. Если публикация уже сохранена,
// возвращает существующую запись и created=false без повторного скрейпа;
// политику ответа на дубликат (конфликт или идемпотентный успех) выбирает
// транспортный слой.
func (s *Service) Save(ctx context.Context, userID uuid.UUID, rawURL string) (domain.SavedContent, bool, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return domain.SavedContent{}, false, err
	}

	existing, err := s.contents.FindByPostID(ctx, userID, normalized.PostID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrContentNotFound) {
		return domain.SavedContent{}, false, fmt.Errorf("проверка дубликата: %w", err)
	}

	s.log.Info().Str("post_id", normalized.PostID).Msg("ingest: скрейп публикации")
	scraped, err := s.scraper.Scrape(ctx, normalized.URL)
	if err != nil {
		return domain.SavedContent{}, false, err
	}

	postID := scraped.PostID
	if postID == "" {
		postID = normalized.PostID
	}

	status := domain.TranscriptionCompleted
	if scraped.NeedsTranscription() {
		status = domain.TranscriptionPending
	}

	content, err := s.contents.InsertContent(ctx, domain.NewContent{
		UserID:              userID,
		InstagramURL:        normalized.URL,
		PostID:              postID,
		ContentType:         scraped.ContentType,
		AuthorUsername:      scraped.AuthorUsername,
		AuthorName:          scraped.AuthorName,
		AuthorProfilePic:    scraped.AuthorProfile,
		AuthorVerified:      scraped.AuthorVerified,
		Caption:             scraped.Caption,
		ThumbnailURL:        scraped.ThumbnailURL,
		VideoURL:            scraped.VideoURL,
		ImageURLs:           scraped.ImageURLs,
		CarouselMedia:       scraped.CarouselMedia,
		LikesCount:          scraped.LikesCount,
		CommentsCount:       scraped.CommentsCount,
		ViewsCount:          scraped.ViewsCount,
		PlaysCount:          scraped.PlaysCount,
		PostedAt:            scraped.PostedAt,
		IsProcessed:         true,
		TranscriptionStatus: status,
	})
	if err != nil {
		// Уникальный индекс (user_id, post_id) закрывает гонку двух
		// одновременных сохранений: проигравший получает существующую запись.
		if errors.Is(err, domain.ErrAlreadySaved) {
			existing, findErr := s.contents.FindByPostID(ctx, userID, postID)
			if findErr != nil {
				return domain.SavedContent{}, false, fmt.Errorf("поиск после конфликта: %w", findErr)
			}
			return existing, false, nil
		}
		return domain.SavedContent{}, false, err
	}

	s.dispatchTranscription(content.ID, scraped)

	return content, true, nil
}

// dispatchTranscription ставит задачу расшифровки, не блокируя ответ.
// Неудача постановки фатальна только для расшифровки этой записи.
func (s *Service) dispatchTranscription(contentID uuid.UUID, scraped domain.ScrapedPost) {
	job, ok := domain.JobForScraped(contentID, scraped)
	if !ok {
		return
	}

	enqueue := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.queue.Enqueue(ctx, job)
	}

	var err error
	if s.lock != nil {
		err = s.lock.Once("transcribe:dispatch:"+contentID.String(), dispatchLockTTL, enqueue)
	} else {
		err = enqueue()
	}
	if err != nil {
		s.log.Error().Err(err).Str("content_id", contentID.String()).Msg("ingest: не удалось поставить задачу расшифровки")
		return
	}
	s.log.Info().Str("content_id", contentID.String()).Str("kind", string(job.Kind)).Msg("ingest: задача расшифровки поставлена")
	metrics.TranscriptionJobsTotal.WithLabelValues(string(job.Kind), "enqueued").Inc()
}
