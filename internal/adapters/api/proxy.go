package api

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	httpinfra "insta-vault/internal/infra/http"
	"insta-vault/internal/infra/metrics"
)

// ImageProxy отдаёт медиа с CDN Instagram, обходя защиту от хотлинка.
// Разрешены только хосты из allow-листа.
type ImageProxy struct {
	client *http.Client
	log    zerolog.Logger
}

// NewImageProxy создаёт прокси с ограниченным таймаутом загрузки.
func NewImageProxy(timeout time.Duration, log zerolog.Logger) *ImageProxy {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ImageProxy{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func allowedMediaHost(host string) bool {
	host = strings.ToLower(host)
	return strings.HasSuffix(host, ".cdninstagram.com") ||
		host == "cdninstagram.com" ||
		strings.HasSuffix(host, ".fbcdn.net") ||
		host == "instagram.com" ||
		strings.HasSuffix(host, ".instagram.com")
}

// ServeImage проксирует изображение или видео по URL из query-параметра.
func (p *ImageProxy) ServeImage(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		httpinfra.WriteError(w, http.StatusBadRequest, "ValidationError", "URL parameter is required")
		return
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		httpinfra.WriteError(w, http.StatusBadRequest, "ValidationError", "Invalid URL")
		return
	}
	if !allowedMediaHost(parsed.Hostname()) {
		httpinfra.WriteError(w, http.StatusForbidden, "NotAuthorized", "URL not allowed")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "ValidationError", "Invalid URL")
		return
	}
	// CDN отдаёт медиа только браузероподобным клиентам с Referer.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "image/webp,image/apng,image/*,video/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://www.instagram.com/")

	start := time.Now()
	resp, err := p.client.Do(req)
	metrics.ObserveNetworkRequest("proxy", "fetch_media", parsed.Hostname(), start, err)
	if err != nil {
		p.log.Error().Err(err).Str("host", parsed.Hostname()).Msg("proxy: не удалось получить медиа")
		httpinfra.WriteError(w, http.StatusBadGateway, "UpstreamServiceError", "Failed to fetch media")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		httpinfra.WriteError(w, http.StatusBadGateway, "UpstreamServiceError", "Failed to fetch media")
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
	if length := resp.Header.Get("Content-Length"); length != "" {
		w.Header().Set("Content-Length", length)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, resp.Body); err != nil {
		p.log.Debug().Err(err).Msg("proxy: передача медиа прервана")
	}
}
