package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NewContent содержит данные для вставки новой записи контента.
type NewContent struct {
	UserID              uuid.UUID
	InstagramURL        string
	PostID              string
	ContentType         ContentType
	AuthorUsername      string
	AuthorName          *string
	AuthorProfilePic    *string
	AuthorVerified      bool
	Caption             *string
	ThumbnailURL        *string
	VideoURL            *string
	ImageURLs           []string
	CarouselMedia       []CarouselItem
	LikesCount          int64
	CommentsCount       int64
	ViewsCount          *int64
	PlaysCount          *int64
	PostedAt            *time.Time
	IsProcessed         bool
	TranscriptionStatus TranscriptionStatus
}

// ContentRepo управляет сохранёнными публикациями.
type ContentRepo interface {
	// InsertContent вставляет запись; при нарушении уникальности
	// (user_id, post_id) возвращает ErrAlreadySaved.
	InsertContent(ctx context.Context, content NewContent) (SavedContent, error)
	// FindByPostID ищет запись пользователя по идентификатору публикации.
	// Возвращает ErrContentNotFound, если записи нет.
	FindByPostID(ctx context.Context, userID uuid.UUID, postID string) (SavedContent, error)
	GetContent(ctx context.Context, userID, contentID uuid.UUID) (ContentWithTranscription, error)
	ListContents(ctx context.Context, userID uuid.UUID, filter ContentFilter) (ContentPage, error)
	DeleteContent(ctx context.Context, userID, contentID uuid.UUID) error
	// ClaimTranscription переводит статус pending → processing и возвращает
	// false без ошибки, если запись уже обрабатывается или завершена.
	ClaimTranscription(ctx context.Context, contentID uuid.UUID) (bool, error)
	// FinishTranscription выставляет терминальный статус расшифровки.
	FinishTranscription(ctx context.Context, contentID uuid.UUID, status TranscriptionStatus) error
}

// TranscriptionRepo управляет расшифровками.
type TranscriptionRepo interface {
	// UpsertTranscription создаёт или перезаписывает расшифровку по content_id.
	UpsertTranscription(ctx context.Context, contentID uuid.UUID, text, language string) (Transcription, error)
}

// WebhookTokenRepo управляет токенами вебхуков.
type WebhookTokenRepo interface {
	CreateToken(ctx context.Context, userID uuid.UUID, name string) (WebhookToken, error)
	ListTokens(ctx context.Context, userID uuid.UUID) ([]WebhookToken, error)
	DeleteToken(ctx context.Context, userID, tokenID uuid.UUID) error
	// RegenerateToken заменяет значение токена; прежнее значение перестаёт
	// действовать сразу же.
	RegenerateToken(ctx context.Context, userID, tokenID uuid.UUID) (WebhookToken, error)
	// FindActiveToken ищет активный токен по значению. Неактивный или
	// неизвестный токен — ErrTokenNotFound.
	FindActiveToken(ctx context.Context, token string) (WebhookToken, error)
	TouchToken(ctx context.Context, tokenID uuid.UUID) error
}

// Scraper извлекает структурированные данные публикации по её URL.
type Scraper interface {
	Scrape(ctx context.Context, instagramURL string) (ScrapedPost, error)
}

// SpeechJobStatus описывает состояние внешней задачи распознавания речи.
type SpeechJobStatus string

const (
	SpeechJobQueued     SpeechJobStatus = "queued"
	SpeechJobProcessing SpeechJobStatus = "processing"
	SpeechJobCompleted  SpeechJobStatus = "completed"
	SpeechJobError      SpeechJobStatus = "error"
)

// SpeechJobResult — результат опроса задачи распознавания речи.
type SpeechJobResult struct {
	Status   SpeechJobStatus
	Text     string
	Language string
	Error    string
}

// SpeechTranscriber — клиент внешнего сервиса распознавания речи.
type SpeechTranscriber interface {
	Submit(ctx context.Context, audioURL string) (string, error)
	Poll(ctx context.Context, jobID string) (SpeechJobResult, error)
}

// OCRClient распознаёт текст на изображении.
type OCRClient interface {
	Recognize(ctx context.Context, imageURL string) (string, error)
}

// IngestLock защищает от параллельной обработки одной и той же публикации.
type IngestLock interface {
	// Once выполняет fn, если ключ ещё не занят; при занятом ключе
	// возвращает без вызова fn.
	Once(key string, ttl time.Duration, fn func() error) error
}
