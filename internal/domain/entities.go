package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContentType описывает тип сохранённой публикации Instagram.
type ContentType string

const (
	// ContentTypePost — одиночное фото.
	ContentTypePost ContentType = "post"
	// ContentTypeReel — видео (reel).
	ContentTypeReel ContentType = "reel"
	// ContentTypeCarousel — карусель из нескольких медиа.
	ContentTypeCarousel ContentType = "carousel"
)

// TranscriptionStatus описывает состояние расшифровки контента.
type TranscriptionStatus string

const (
	// TranscriptionPending — расшифровка поставлена в очередь.
	TranscriptionPending TranscriptionStatus = "pending"
	// TranscriptionProcessing — воркер начал обработку.
	TranscriptionProcessing TranscriptionStatus = "processing"
	// TranscriptionCompleted — расшифровка завершена либо не требуется.
	TranscriptionCompleted TranscriptionStatus = "completed"
	// TranscriptionFailed — расшифровка завершилась ошибкой, автоматических повторов нет.
	TranscriptionFailed TranscriptionStatus = "failed"
)

// CarouselMediaType описывает тип элемента карусели.
type CarouselMediaType string

const (
	CarouselMediaImage CarouselMediaType = "image"
	CarouselMediaVideo CarouselMediaType = "video"
)

// CarouselItem описывает один элемент карусели.
type CarouselItem struct {
	Type      CarouselMediaType `json:"type"`
	URL       string            `json:"url"`
	Thumbnail string            `json:"thumbnail,omitempty"`
}

// SavedContent представляет сохранённую публикацию пользователя.
type SavedContent struct {
	ID                  uuid.UUID
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
	SavedAt             time.Time
	IsProcessed         bool
	TranscriptionStatus TranscriptionStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Transcription содержит текст расшифровки, привязанный к контенту 1:1.
type Transcription struct {
	ID        uuid.UUID
	ContentID uuid.UUID
	Text      string
	Language  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContentWithTranscription объединяет контент с его расшифровкой.
type ContentWithTranscription struct {
	SavedContent
	Transcription *Transcription
}

// WebhookToken — токен публичного вебхука для автоматических отправок.
type WebhookToken struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Token      string
	Name       string
	IsActive   bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ScrapedPost — нормализованный результат скрейпа одной публикации.
type ScrapedPost struct {
	PostID         string
	ContentType    ContentType
	AuthorUsername string
	AuthorName     *string
	AuthorProfile  *string
	AuthorVerified bool
	Caption        *string
	ThumbnailURL   *string
	VideoURL       *string
	ImageURLs      []string
	CarouselMedia  []CarouselItem
	LikesCount     int64
	CommentsCount  int64
	ViewsCount     *int64
	PlaysCount     *int64
	PostedAt       *time.Time
}

// HasVideo сообщает, есть ли у публикации видеодорожка.
func (p ScrapedPost) HasVideo() bool {
	return p.VideoURL != nil && *p.VideoURL != ""
}

// NeedsTranscription сообщает, требуется ли публикации расшифровка.
func (p ScrapedPost) NeedsTranscription() bool {
	return p.HasVideo() || len(p.ImageURLs) > 0
}

// ContentFilter описывает параметры выборки контента.
type ContentFilter struct {
	ContentType ContentType
	Search      string
	DateFrom    *time.Time
	DateTo      *time.Time
	Page        int
	Limit       int
}

// ContentPage — страница списка контента.
type ContentPage struct {
	Items      []SavedContent
	Page       int
	Limit      int
	Total      int
	TotalPages int
}
