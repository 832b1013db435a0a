package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"insta-vault/internal/domain"
)

type stubContentRepo struct {
	existing   map[string]domain.SavedContent
	inserted   []domain.NewContent
	insertErr  error
	findCalls  int
	findMisses int
}

func (s *stubContentRepo) InsertContent(_ context.Context, content domain.NewContent) (domain.SavedContent, error) {
	if s.insertErr != nil {
		return domain.SavedContent{}, s.insertErr
	}
	s.inserted = append(s.inserted, content)
	return domain.SavedContent{
		ID:                  uuid.New(),
		UserID:              content.UserID,
		InstagramURL:        content.InstagramURL,
		PostID:              content.PostID,
		ContentType:         content.ContentType,
		VideoURL:            content.VideoURL,
		ImageURLs:           content.ImageURLs,
		IsProcessed:         content.IsProcessed,
		TranscriptionStatus: content.TranscriptionStatus,
		SavedAt:             time.Now(),
	}, nil
}

func (s *stubContentRepo) FindByPostID(_ context.Context, _ uuid.UUID, postID string) (domain.SavedContent, error) {
	s.findCalls++
	if s.findCalls <= s.findMisses {
		return domain.SavedContent{}, domain.ErrContentNotFound
	}
	if found, ok := s.existing[postID]; ok {
		return found, nil
	}
	return domain.SavedContent{}, domain.ErrContentNotFound
}

func (s *stubContentRepo) GetContent(context.Context, uuid.UUID, uuid.UUID) (domain.ContentWithTranscription, error) {
	return domain.ContentWithTranscription{}, domain.ErrContentNotFound
}
func (s *stubContentRepo) ListContents(context.Context, uuid.UUID, domain.ContentFilter) (domain.ContentPage, error) {
	return domain.ContentPage{}, nil
}
func (s *stubContentRepo) DeleteContent(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (s *stubContentRepo) ClaimTranscription(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}
func (s *stubContentRepo) FinishTranscription(context.Context, uuid.UUID, domain.TranscriptionStatus) error {
	return nil
}

type stubScraper struct {
	post  domain.ScrapedPost
	err   error
	calls int
	urls  []string
}

func (s *stubScraper) Scrape(_ context.Context, url string) (domain.ScrapedPost, error) {
	s.calls++
	s.urls = append(s.urls, url)
	if s.err != nil {
		return domain.ScrapedPost{}, s.err
	}
	return s.post, nil
}

type stubQueue struct {
	jobs []domain.TranscriptionJob
	err  error
}

func (s *stubQueue) Enqueue(_ context.Context, job domain.TranscriptionJob) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *stubQueue) Receive(context.Context) (domain.TranscriptionJob, domain.TranscriptionAckFunc, error) {
	return domain.TranscriptionJob{}, nil, errors.New("не используется")
}

func strPtr(s string) *string { return &s }

func newTestService(repo *stubContentRepo, scraper *stubScraper, queue *stubQueue) *Service {
	return NewService(repo, scraper, queue, nil, zerolog.Nop())
}

func TestSaveVideoDispatchesAudioJob(t *testing.T) {
	repo := &stubContentRepo{}
	scraper := &stubScraper{post: domain.ScrapedPost{
		PostID:         "XYZ",
		ContentType:    domain.ContentTypeReel,
		AuthorUsername: "author",
		VideoURL:       strPtr("https://cdn.example/video.mp4"),
	}}
	queue := &stubQueue{}
	service := newTestService(repo, scraper, queue)

	content, created, err := service.Save(context.Background(), uuid.New(), "https://instagram.com/reel/XYZ")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !created {
		t.Fatalf("ожидали создание новой записи")
	}
	if content.TranscriptionStatus != domain.TranscriptionPending {
		t.Fatalf("ожидали статус pending, получили %s", content.TranscriptionStatus)
	}
	if scraper.calls != 1 {
		t.Fatalf("ожидали 1 вызов скрейпера, получили %d", scraper.calls)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("ожидали 1 задачу в очереди, получили %d", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.Kind != domain.TranscriptionKindAudio {
		t.Fatalf("ожидали аудио-задачу, получили %s", job.Kind)
	}
	if job.MediaURL != "https://cdn.example/video.mp4" {
		t.Fatalf("задача получила неверный URL: %s", job.MediaURL)
	}
}

func TestSaveImagesDispatchesOCRJob(t *testing.T) {
	repo := &stubContentRepo{}
	scraper := &stubScraper{post: domain.ScrapedPost{
		PostID:      "IMG1",
		ContentType: domain.ContentTypePost,
		ImageURLs:   []string{"https://cdn.example/a.jpg", "https://cdn.example/b.jpg"},
	}}
	queue := &stubQueue{}
	service := newTestService(repo, scraper, queue)

	content, created, err := service.Save(context.Background(), uuid.New(), "https://instagram.com/p/IMG1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !created {
		t.Fatalf("ожидали создание новой записи")
	}
	if content.TranscriptionStatus != domain.TranscriptionPending {
		t.Fatalf("ожидали статус pending, получили %s", content.TranscriptionStatus)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].Kind != domain.TranscriptionKindOCR {
		t.Fatalf("ожидали одну OCR-задачу")
	}
	if len(queue.jobs[0].ImageURLs) != 2 {
		t.Fatalf("задача должна содержать оба изображения")
	}
}

func TestSaveWithoutMediaCompletesImmediately(t *testing.T) {
	repo := &stubContentRepo{}
	scraper := &stubScraper{post: domain.ScrapedPost{PostID: "TXT", ContentType: domain.ContentTypePost}}
	queue := &stubQueue{}
	service := newTestService(repo, scraper, queue)

	content, _, err := service.Save(context.Background(), uuid.New(), "https://instagram.com/p/TXT")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if content.TranscriptionStatus != domain.TranscriptionCompleted {
		t.Fatalf("ожидали статус completed, получили %s", content.TranscriptionStatus)
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("без медиа задач быть не должно")
	}
}

func TestSaveDuplicateSkipsScrape(t *testing.T) {
	existing := domain.SavedContent{ID: uuid.New(), PostID: "DUP"}
	repo := &stubContentRepo{existing: map[string]domain.SavedContent{"DUP": existing}}
	scraper := &stubScraper{}
	queue := &stubQueue{}
	service := newTestService(repo, scraper, queue)

	content, created, err := service.Save(context.Background(), uuid.New(), "https://instagram.com/p/DUP")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if created {
		t.Fatalf("дубликат не должен создавать запись")
	}
	if content.ID != existing.ID {
		t.Fatalf("ожидали существующую запись")
	}
	if scraper.calls != 0 {
		t.Fatalf("скрейпер не должен вызываться для дубликата")
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("очередь не должна получать задач для дубликата")
	}
	if len(repo.inserted) != 0 {
		t.Fatalf("вставки быть не должно")
	}
}

func TestSaveInvalidURLNoSideEffects(t *testing.T) {
	repo := &stubContentRepo{}
	scraper := &stubScraper{}
	queue := &stubQueue{}
	service := newTestService(repo, scraper, queue)

	_, _, err := service.Save(context.Background(), uuid.New(), "https://example.com/p/ABC")
	if !errors.Is(err, domain.ErrUnsupportedLink) {
		t.Fatalf("ожидали ErrUnsupportedLink, получили %v", err)
	}
	if repo.findCalls != 0 || scraper.calls != 0 || len(queue.jobs) != 0 {
		t.Fatalf("до валидации не должно быть побочных эффектов")
	}
}

func TestSaveInsertConflictReturnsExisting(t *testing.T) {
	// Гонка: обе отправки прошли проверку дубликата, вторая вставка упёрлась
	// в уникальный индекс.
	// Первый поиск — промах, после конфликта вставки запись уже видна.
	existing := domain.SavedContent{ID: uuid.New(), PostID: "RACE"}
	repo := &stubContentRepo{
		existing:   map[string]domain.SavedContent{"RACE": existing},
		insertErr:  domain.ErrAlreadySaved,
		findMisses: 1,
	}
	scraper := &stubScraper{post: domain.ScrapedPost{PostID: "RACE"}}
	queue := &stubQueue{}
	service := newTestService(repo, scraper, queue)

	content, created, err := service.Save(context.Background(), uuid.New(), "https://instagram.com/p/RACE")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if created {
		t.Fatalf("конфликт вставки не должен считаться созданием")
	}
	if content.ID != existing.ID {
		t.Fatalf("ожидали существующую запись после конфликта")
	}
}

func TestSaveScrapeErrorPropagates(t *testing.T) {
	repo := &stubContentRepo{}
	scraper := &stubScraper{err: domain.ErrScrapeQuota}
	queue := &stubQueue{}
	service := newTestService(repo, scraper, queue)

	_, _, err := service.Save(context.Background(), uuid.New(), "https://instagram.com/p/FAIL")
	if !errors.Is(err, domain.ErrScrapeQuota) {
		t.Fatalf("ожидали ErrScrapeQuota, получили %v", err)
	}
	if len(repo.inserted) != 0 {
		t.Fatalf("после ошибки скрейпа вставки быть не должно")
	}
}
