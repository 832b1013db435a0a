package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"insta-vault/internal/domain"
)

// APIError — тело ответа об ошибке.
type APIError struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// WriteJSON сериализует ответ с указанным статусом.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError пишет тело ошибки со стабильным машинным кодом.
func WriteError(w http.ResponseWriter, status int, kind, msg string) {
	WriteJSON(w, status, APIError{Error: kind, Message: msg, StatusCode: status})
}

// WriteDomainError отображает доменную ошибку в HTTP-статус и код.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidURL):
		WriteError(w, http.StatusBadRequest, "ValidationError", "Invalid URL format")
	case errors.Is(err, domain.ErrUnsupportedLink):
		WriteError(w, http.StatusBadRequest, "ValidationError", "URL must be a valid Instagram post, reel, or TV link")
	case errors.Is(err, domain.ErrMissingPostID):
		WriteError(w, http.StatusBadRequest, "ValidationError", "Could not extract post ID from URL")
	case errors.Is(err, domain.ErrAlreadySaved):
		WriteError(w, http.StatusConflict, "Conflict", "Content already saved")
	case errors.Is(err, domain.ErrContentNotFound):
		WriteError(w, http.StatusNotFound, "NotFound", "Content not found")
	case errors.Is(err, domain.ErrTokenNotFound):
		WriteError(w, http.StatusNotFound, "NotFound", "Webhook not found or inactive")
	case errors.Is(err, domain.ErrScrapeQuota):
		WriteError(w, http.StatusBadGateway, "UpstreamServiceError", "Scraper credits exhausted")
	case errors.Is(err, domain.ErrScrapeAuth):
		WriteError(w, http.StatusBadGateway, "UpstreamServiceError", "Invalid scraper API key")
	case errors.Is(err, domain.ErrScrapeFailed):
		WriteError(w, http.StatusBadGateway, "UpstreamServiceError", "Failed to scrape Instagram post")
	default:
		WriteError(w, http.StatusInternalServerError, "InternalServerError", "Something went wrong")
	}
}
