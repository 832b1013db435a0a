package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"insta-vault/internal/domain"
)

func newTestApify(t *testing.T, handler http.HandlerFunc) *Apify {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewApify(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("не удалось создать клиента: %v", err)
	}
	return client
}

func TestScrapeMapsSidecar(t *testing.T) {
	var gotAuth string
	var gotBody runRequest
	client := newTestApify(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"shortCode":     "ABC123",
			"type":          "Sidecar",
			"caption":       "подпись",
			"ownerUsername": "author",
			"displayUrl":    "https://cdn.example/cover.jpg",
			"images":        []string{"https://cdn.example/cover.jpg", "https://cdn.example/second.jpg"},
			"childPosts": []map[string]any{
				{"type": "Image", "displayUrl": "https://cdn.example/second.jpg"},
				{"type": "Video", "displayUrl": "https://cdn.example/thumb.jpg", "video_url": "https://cdn.example/clip.mp4"},
			},
			"likesCount":    10,
			"commentsCount": 2,
		}})
	})

	post, err := client.Scrape(context.Background(), "https://instagram.com/p/ABC123")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("неверный заголовок авторизации: %q", gotAuth)
	}
	if len(gotBody.DirectURLs) != 1 || gotBody.ResultsType != "posts" || gotBody.ResultsLimit != 1 {
		t.Fatalf("неверное тело запуска актора: %+v", gotBody)
	}
	if post.PostID != "ABC123" {
		t.Fatalf("неверный post_id: %q", post.PostID)
	}
	if post.ContentType != domain.ContentTypeCarousel {
		t.Fatalf("sidecar должен мапиться в carousel, получили %s", post.ContentType)
	}
	// Дубликаты изображений схлопываются, порядок сохраняется.
	wantImages := []string{"https://cdn.example/cover.jpg", "https://cdn.example/second.jpg", "https://cdn.example/thumb.jpg"}
	if len(post.ImageURLs) != len(wantImages) {
		t.Fatalf("ожидали %d изображений, получили %v", len(wantImages), post.ImageURLs)
	}
	for i, want := range wantImages {
		if post.ImageURLs[i] != want {
			t.Fatalf("изображение %d: ожидали %q, получили %q", i, want, post.ImageURLs[i])
		}
	}
	if len(post.CarouselMedia) != 2 {
		t.Fatalf("ожидали 2 элемента карусели, получили %d", len(post.CarouselMedia))
	}
	video := post.CarouselMedia[1]
	if video.Type != domain.CarouselMediaVideo || video.URL != "https://cdn.example/clip.mp4" || video.Thumbnail != "https://cdn.example/thumb.jpg" {
		t.Fatalf("видео-элемент карусели собран неверно: %+v", video)
	}
}

func TestScrapeMapsVideoToReel(t *testing.T) {
	client := newTestApify(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"shortCode":  "REEL1",
			"type":       "Video",
			"videoUrl":   "https://cdn.example/reel.mp4",
			"displayUrl": "https://cdn.example/reel.jpg",
		}})
	})

	post, err := client.Scrape(context.Background(), "https://instagram.com/reel/REEL1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if post.ContentType != domain.ContentTypeReel {
		t.Fatalf("video должен мапиться в reel, получили %s", post.ContentType)
	}
	if post.VideoURL == nil || *post.VideoURL != "https://cdn.example/reel.mp4" {
		t.Fatalf("неверный video_url: %v", post.VideoURL)
	}
	if !post.NeedsTranscription() {
		t.Fatalf("публикация с видео требует расшифровки")
	}
}

func TestScrapeErrorKinds(t *testing.T) {
	cases := map[int]error{
		http.StatusPaymentRequired:     domain.ErrScrapeQuota,
		http.StatusUnauthorized:        domain.ErrScrapeAuth,
		http.StatusInternalServerError: domain.ErrScrapeFailed,
	}
	for status, want := range cases {
		client := newTestApify(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		})
		_, err := client.Scrape(context.Background(), "https://instagram.com/p/X")
		if !errors.Is(err, want) {
			t.Fatalf("для статуса %d ожидали %v, получили %v", status, want, err)
		}
	}
}

func TestScrapeEmptyDataset(t *testing.T) {
	client := newTestApify(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})
	_, err := client.Scrape(context.Background(), "https://instagram.com/p/X")
	if !errors.Is(err, domain.ErrScrapeFailed) {
		t.Fatalf("пустой датасет должен давать ErrScrapeFailed, получили %v", err)
	}
}
