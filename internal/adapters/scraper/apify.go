package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"insta-vault/internal/domain"
	"insta-vault/internal/infra/metrics"
)

// Config описывает настройки клиента Apify.
type Config struct {
	APIKey  string
	BaseURL string
	Actor   string
	Timeout time.Duration
}

// Apify реализует domain.Scraper через актор instagram-scraper,
// запущенный в синхронном режиме run-sync-get-dataset-items.
type Apify struct {
	client  *http.Client
	baseURL string
	actor   string
	apiKey  string
}

var _ domain.Scraper = (*Apify)(nil)

// NewApify создаёт клиента скрейпера.
func NewApify(cfg Config) (*Apify, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("apify api key is empty")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.apify.com"
	}
	actor := cfg.Actor
	if actor == "" {
		actor = "apify~instagram-scraper"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Apify{
		client:  &http.Client{Timeout: timeout},
		baseURL: base,
		actor:   actor,
		apiKey:  cfg.APIKey,
	}, nil
}

type runRequest struct {
	DirectURLs   []string `json:"directUrls"`
	ResultsType  string   `json:"resultsType"`
	ResultsLimit int      `json:"resultsLimit"`
}

type apifyChildPost struct {
	Type       string `json:"type"`
	DisplayURL string `json:"displayUrl"`
	VideoURL   string `json:"videoUrl"`
	// Некоторые версии актора отдают snake_case.
	VideoURLSnake string `json:"video_url"`
}

type apifyItem struct {
	ID                 string           `json:"id"`
	ShortCode          string           `json:"shortCode"`
	Type               string           `json:"type"`
	Caption            string           `json:"caption"`
	OwnerUsername      string           `json:"ownerUsername"`
	OwnerFullName      string           `json:"ownerFullName"`
	OwnerProfilePicURL string           `json:"ownerProfilePicUrl"`
	IsVerified         bool             `json:"isVerified"`
	DisplayURL         string           `json:"displayUrl"`
	VideoURL           string           `json:"videoUrl"`
	Images             []string         `json:"images"`
	ChildPosts         []apifyChildPost `json:"childPosts"`
	LikesCount         int64            `json:"likesCount"`
	CommentsCount      int64            `json:"commentsCount"`
	VideoViewCount     *int64           `json:"videoViewCount"`
	VideoPlayCount     *int64           `json:"videoPlayCount"`
	Timestamp          *time.Time       `json:"timestamp"`
}

// Scrape запускает актор и возвращает нормализованные данные публикации.
func (a *Apify) Scrape(ctx context.Context, instagramURL string) (domain.ScrapedPost, error) {
	body, err := json.Marshal(runRequest{
		DirectURLs:   []string{instagramURL},
		ResultsType:  "posts",
		ResultsLimit: 1,
	})
	if err != nil {
		return domain.ScrapedPost{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items", a.baseURL, url.PathEscape(a.actor))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ScrapedPost{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	metrics.ObserveNetworkRequest("apify", "run_sync", a.actor, start, err)
	metrics.ScrapeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ScrapeErrors.WithLabelValues("network").Inc()
		return domain.ScrapedPost{}, fmt.Errorf("%w: %v", domain.ErrScrapeFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPaymentRequired:
		metrics.ScrapeErrors.WithLabelValues("quota").Inc()
		return domain.ScrapedPost{}, domain.ErrScrapeQuota
	case http.StatusUnauthorized:
		metrics.ScrapeErrors.WithLabelValues("auth").Inc()
		return domain.ScrapedPost{}, domain.ErrScrapeAuth
	}
	if resp.StatusCode >= 300 {
		metrics.ScrapeErrors.WithLabelValues("status").Inc()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.ScrapedPost{}, fmt.Errorf("%w: status %d: %s", domain.ErrScrapeFailed, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var items []apifyItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		metrics.ScrapeErrors.WithLabelValues("decode").Inc()
		return domain.ScrapedPost{}, fmt.Errorf("%w: decode response: %v", domain.ErrScrapeFailed, err)
	}
	if len(items) == 0 {
		metrics.ScrapeErrors.WithLabelValues("empty").Inc()
		return domain.ScrapedPost{}, fmt.Errorf("%w: пустой датасет", domain.ErrScrapeFailed)
	}
	return mapItem(items[0]), nil
}

func mapItem(item apifyItem) domain.ScrapedPost {
	post := domain.ScrapedPost{
		PostID:         item.ShortCode,
		ContentType:    mapContentType(item.Type),
		AuthorUsername: item.OwnerUsername,
		AuthorVerified: item.IsVerified,
		LikesCount:     item.LikesCount,
		CommentsCount:  item.CommentsCount,
		ViewsCount:     item.VideoViewCount,
		PlaysCount:     item.VideoPlayCount,
		PostedAt:       item.Timestamp,
		ImageURLs:      extractImageURLs(item),
		CarouselMedia:  extractCarouselMedia(item),
	}
	if post.PostID == "" {
		post.PostID = item.ID
	}
	if item.OwnerFullName != "" {
		name := item.OwnerFullName
		post.AuthorName = &name
	}
	if item.OwnerProfilePicURL != "" {
		pic := item.OwnerProfilePicURL
		post.AuthorProfile = &pic
	}
	if item.Caption != "" {
		caption := item.Caption
		post.Caption = &caption
	}
	if item.DisplayURL != "" {
		thumb := item.DisplayURL
		post.ThumbnailURL = &thumb
	}
	if item.VideoURL != "" {
		video := item.VideoURL
		post.VideoURL = &video
	}
	return post
}

func mapContentType(apifyType string) domain.ContentType {
	switch strings.ToLower(apifyType) {
	case "video":
		return domain.ContentTypeReel
	case "sidecar":
		return domain.ContentTypeCarousel
	default:
		return domain.ContentTypePost
	}
}

func extractImageURLs(item apifyItem) []string {
	var images []string
	seen := make(map[string]struct{})
	add := func(url string) {
		if url == "" {
			return
		}
		if _, ok := seen[url]; ok {
			return
		}
		seen[url] = struct{}{}
		images = append(images, url)
	}
	add(item.DisplayURL)
	for _, img := range item.Images {
		add(img)
	}
	for _, child := range item.ChildPosts {
		add(child.DisplayURL)
	}
	return images
}

func extractCarouselMedia(item apifyItem) []domain.CarouselItem {
	if len(item.ChildPosts) == 0 {
		return nil
	}
	media := make([]domain.CarouselItem, 0, len(item.ChildPosts))
	for _, child := range item.ChildPosts {
		videoURL := child.VideoURL
		if videoURL == "" {
			videoURL = child.VideoURLSnake
		}
		isVideo := strings.EqualFold(child.Type, "video") || videoURL != ""
		entry := domain.CarouselItem{Type: domain.CarouselMediaImage, URL: child.DisplayURL}
		if isVideo {
			entry.Type = domain.CarouselMediaVideo
			if videoURL != "" {
				entry.URL = videoURL
			}
			entry.Thumbnail = child.DisplayURL
		}
		media = append(media, entry)
	}
	return media
}
