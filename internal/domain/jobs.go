package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TranscriptionKind описывает способ расшифровки.
type TranscriptionKind string

const (
	// TranscriptionKindAudio — распознавание речи по видеодорожке.
	TranscriptionKindAudio TranscriptionKind = "audio"
	// TranscriptionKindOCR — распознавание текста на изображениях.
	TranscriptionKindOCR TranscriptionKind = "ocr"
)

// TranscriptionJob содержит задачу расшифровки одной публикации.
type TranscriptionJob struct {
	ID         string            `json:"job_id,omitempty"`
	ContentID  uuid.UUID         `json:"content_id"`
	Kind       TranscriptionKind `json:"kind"`
	MediaURL   string            `json:"media_url,omitempty"`
	ImageURLs  []string          `json:"image_urls,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// TranscriptionQueue описывает очередь задач расшифровки.
type TranscriptionQueue interface {
	Enqueue(ctx context.Context, job TranscriptionJob) error
	Receive(ctx context.Context) (TranscriptionJob, TranscriptionAckFunc, error)
}

// TranscriptionAckFunc подтверждает обработку или запрашивает повтор доставки задачи.
type TranscriptionAckFunc func(success bool) error

// JobForScraped собирает задачу расшифровки по результату скрейпа.
// Видео имеет приоритет над изображениями; если расшифровывать нечего,
// возвращается false.
func JobForScraped(contentID uuid.UUID, post ScrapedPost) (TranscriptionJob, bool) {
	job := TranscriptionJob{
		ID:         uuid.NewString(),
		ContentID:  contentID,
		EnqueuedAt: time.Now().UTC(),
	}
	switch {
	case post.HasVideo():
		job.Kind = TranscriptionKindAudio
		job.MediaURL = *post.VideoURL
	case len(post.ImageURLs) > 0:
		job.Kind = TranscriptionKindOCR
		job.ImageURLs = post.ImageURLs
	default:
		return TranscriptionJob{}, false
	}
	return job, true
}
