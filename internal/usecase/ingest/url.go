package ingest

import (
	"net/url"
	"regexp"
	"strings"

	"insta-vault/internal/domain"
)

// NormalizedURL — каноничный URL публикации и извлечённый идентификатор.
type NormalizedURL struct {
	URL    string
	PostID string
}

var (
	postKinds   = map[string]struct{}{"p": {}, "reel": {}, "reels": {}, "tv": {}}
	postIDRegex = regexp.MustCompile(`^[\w-]+`)
)

// NormalizeURL проверяет ссылку на публикацию Instagram, отбрасывает
// query-параметры и фрагмент и извлекает идентификатор публикации.
// Чистая функция без побочных эффектов.
func NormalizeURL(raw string) (NormalizedURL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return NormalizedURL{}, domain.ErrInvalidURL
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return NormalizedURL{}, domain.ErrInvalidURL
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return NormalizedURL{}, domain.ErrUnsupportedLink
	}
	host := strings.ToLower(parsed.Hostname())
	bare := strings.TrimPrefix(host, "www.")
	if bare != "instagram.com" && bare != "instagr.am" {
		return NormalizedURL{}, domain.ErrUnsupportedLink
	}

	segments := strings.Split(strings.Trim(parsed.EscapedPath(), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return NormalizedURL{}, domain.ErrUnsupportedLink
	}
	if _, ok := postKinds[strings.ToLower(segments[0])]; !ok {
		return NormalizedURL{}, domain.ErrUnsupportedLink
	}
	if len(segments) < 2 {
		return NormalizedURL{}, domain.ErrMissingPostID
	}
	postID := postIDRegex.FindString(segments[1])
	if postID == "" {
		return NormalizedURL{}, domain.ErrMissingPostID
	}

	return NormalizedURL{
		URL:    scheme + "://" + host + parsed.EscapedPath(),
		PostID: postID,
	}, nil
}
