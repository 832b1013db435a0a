package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"insta-vault/internal/domain"
	httpinfra "insta-vault/internal/infra/http"
	"insta-vault/internal/infra/metrics"
	"insta-vault/internal/usecase/contents"
	"insta-vault/internal/usecase/ingest"
	"insta-vault/internal/usecase/webhooks"
)

// Handler обслуживает HTTP API.
type Handler struct {
	log        zerolog.Logger
	ingestUC   *ingest.Service
	contentsUC *contents.Service
	webhooksUC *webhooks.Service
	proxy      *ImageProxy
}

// NewHandler создаёт обработчик API.
func NewHandler(log zerolog.Logger, ingestUC *ingest.Service, contentsUC *contents.Service, webhooksUC *webhooks.Service, proxy *ImageProxy) *Handler {
	return &Handler{
		log:        log,
		ingestUC:   ingestUC,
		contentsUC: contentsUC,
		webhooksUC: webhooksUC,
		proxy:      proxy,
	}
}

// Routes регистрирует маршруты API.
func (h *Handler) Routes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpinfra.WriteJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(protected chi.Router) {
			protected.Use(authMiddleware)

			protected.Post("/contents", h.createContent)
			protected.Get("/contents", h.listContents)
			protected.Get("/contents/{id}", h.getContent)
			protected.Delete("/contents/{id}", h.deleteContent)

			protected.Get("/webhooks", h.listWebhooks)
			protected.Post("/webhooks", h.createWebhook)
			protected.Delete("/webhooks/{id}", h.deleteWebhook)
			protected.Post("/webhooks/{id}/regenerate", h.regenerateWebhook)
		})

		r.Post("/webhook/{token}", h.handleWebhook)
		r.Get("/proxy/image", h.proxy.ServeImage)
	})
}

type createContentRequest struct {
	InstagramURL string `json:"instagram_url"`
}

// createContent сохраняет публикацию для аутентифицированного пользователя.
// Повторное сохранение той же публикации — конфликт.
func (h *Handler) createContent(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpinfra.UserID(r.Context())
	if !ok {
		httpinfra.WriteError(w, http.StatusUnauthorized, "NotAuthenticated", "User not authenticated")
		return
	}

	defer r.Body.Close()
	var req createContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "ValidationError", "Invalid request body")
		return
	}

	content, created, err := h.ingestUC.Save(r.Context(), userID, req.InstagramURL)
	if err != nil {
		metrics.IncIngest("api", "error")
		h.log.Error().Err(err).Str("user_id", userID.String()).Msg("api: не удалось сохранить контент")
		httpinfra.WriteDomainError(w, err)
		return
	}
	if !created {
		metrics.IncIngest("api", "duplicate")
		httpinfra.WriteError(w, http.StatusConflict, "Conflict", "Content already saved")
		return
	}
	metrics.IncIngest("api", "created")
	httpinfra.WriteJSON(w, http.StatusCreated, contentToJSON(content))
}

// listContents возвращает страницу контента с фильтрами.
func (h *Handler) listContents(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpinfra.UserID(r.Context())
	if !ok {
		httpinfra.WriteError(w, http.StatusUnauthorized, "NotAuthenticated", "User not authenticated")
		return
	}

	filter, err := parseContentFilter(r)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "ValidationError", err.Error())
		return
	}

	page, err := h.contentsUC.List(r.Context(), userID, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("api: не удалось получить список контента")
		httpinfra.WriteDomainError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, contentToJSON(item))
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"data": items,
		"pagination": map[string]any{
			"page":       page.Page,
			"limit":      page.Limit,
			"total":      page.Total,
			"totalPages": page.TotalPages,
		},
	})
}

// getContent возвращает запись вместе с расшифровкой.
func (h *Handler) getContent(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpinfra.UserID(r.Context())
	if !ok {
		httpinfra.WriteError(w, http.StatusUnauthorized, "NotAuthenticated", "User not authenticated")
		return
	}
	contentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpinfra.WriteError(w, http.StatusNotFound, "NotFound", "Content not found")
		return
	}

	content, err := h.contentsUC.Get(r.Context(), userID, contentID)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}

	body := contentToJSON(content.SavedContent)
	if content.Transcription != nil {
		body["transcription"] = map[string]any{
			"id":         content.Transcription.ID,
			"content_id": content.Transcription.ContentID,
			"text":       content.Transcription.Text,
			"language":   content.Transcription.Language,
			"created_at": content.Transcription.CreatedAt,
			"updated_at": content.Transcription.UpdatedAt,
		}
	} else {
		body["transcription"] = nil
	}
	httpinfra.WriteJSON(w, http.StatusOK, body)
}

// deleteContent удаляет запись владельца.
func (h *Handler) deleteContent(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpinfra.UserID(r.Context())
	if !ok {
		httpinfra.WriteError(w, http.StatusUnauthorized, "NotAuthenticated", "User not authenticated")
		return
	}
	contentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpinfra.WriteError(w, http.StatusNotFound, "NotFound", "Content not found")
		return
	}

	if err := h.contentsUC.Delete(r.Context(), userID, contentID); err != nil {
		h.log.Error().Err(err).Msg("api: не удалось удалить контент")
		httpinfra.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseContentFilter(r *http.Request) (domain.ContentFilter, error) {
	q := r.URL.Query()
	filter := domain.ContentFilter{Page: 1, Limit: 20}

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return domain.ContentFilter{}, errInvalidQuery("page")
		}
		filter.Page = page
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			return domain.ContentFilter{}, errInvalidQuery("limit")
		}
		filter.Limit = limit
	}
	switch kind := q.Get("filter"); kind {
	case "", "all":
	case "post", "reel", "carousel":
		filter.ContentType = domain.ContentType(kind)
	default:
		return domain.ContentFilter{}, errInvalidQuery("filter")
	}
	filter.Search = q.Get("search")
	if raw := q.Get("date_from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return domain.ContentFilter{}, errInvalidQuery("date_from")
		}
		filter.DateFrom = &from
	}
	if raw := q.Get("date_to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return domain.ContentFilter{}, errInvalidQuery("date_to")
		}
		// Верхняя граница включает весь день.
		end := to.Add(24*time.Hour - time.Millisecond)
		filter.DateTo = &end
	}
	return filter, nil
}

type queryError string

func (e queryError) Error() string { return "invalid query parameter: " + string(e) }

func errInvalidQuery(name string) error { return queryError(name) }

func contentToJSON(c domain.SavedContent) map[string]any {
	return map[string]any{
		"id":                   c.ID,
		"user_id":              c.UserID,
		"instagram_url":        c.InstagramURL,
		"post_id":              c.PostID,
		"content_type":         c.ContentType,
		"author_username":      c.AuthorUsername,
		"author_name":          c.AuthorName,
		"author_profile_pic":   c.AuthorProfilePic,
		"author_verified":      c.AuthorVerified,
		"caption":              c.Caption,
		"thumbnail_url":        c.ThumbnailURL,
		"video_url":            c.VideoURL,
		"image_urls":           c.ImageURLs,
		"carousel_media":       c.CarouselMedia,
		"likes_count":          c.LikesCount,
		"comments_count":       c.CommentsCount,
		"views_count":          c.ViewsCount,
		"plays_count":          c.PlaysCount,
		"posted_at":            c.PostedAt,
		"saved_at":             c.SavedAt,
		"is_processed":         c.IsProcessed,
		"transcription_status": c.TranscriptionStatus,
		"created_at":           c.CreatedAt,
		"updated_at":           c.UpdatedAt,
	}
}
