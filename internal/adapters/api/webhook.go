package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	httpinfra "insta-vault/internal/infra/http"
	"insta-vault/internal/infra/metrics"
)

const maxWebhookBody = 64 << 10

// handleWebhook принимает публичную отправку URL по токену из пути.
// Повторная отправка уже сохранённой публикации идемпотентна: внешние
// автоматизации должны иметь возможность слать повторы вслепую.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	webhook, err := h.webhooksUC.Authenticate(r.Context(), token)
	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("token_rejected").Inc()
		httpinfra.WriteDomainError(w, err)
		return
	}

	rawURL, err := extractURLFromBody(r)
	if err != nil || rawURL == "" {
		metrics.WebhookRequestsTotal.WithLabelValues("bad_body").Inc()
		httpinfra.WriteError(w, http.StatusBadRequest, "ValidationError", "No Instagram URL provided in request body")
		return
	}

	h.log.Info().Str("user_id", webhook.UserID.String()).Msg("webhook: получена отправка")

	content, created, err := h.ingestUC.Save(r.Context(), webhook.UserID, rawURL)
	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("error").Inc()
		h.log.Error().Err(err).Str("user_id", webhook.UserID.String()).Msg("webhook: не удалось сохранить контент")
		httpinfra.WriteDomainError(w, err)
		return
	}

	if !created {
		metrics.WebhookRequestsTotal.WithLabelValues("duplicate").Inc()
		httpinfra.WriteJSON(w, http.StatusOK, webhookResponse(false, content.ID))
		return
	}

	// Отметка использования обновляется только после полного успеха:
	// упавший скрейп не должен выглядеть как сработавший вебхук.
	if err := h.webhooksUC.Touch(r.Context(), webhook.ID); err != nil {
		h.log.Error().Err(err).Str("token_id", webhook.ID.String()).Msg("webhook: не удалось обновить last_used_at")
	}

	metrics.WebhookRequestsTotal.WithLabelValues("created").Inc()
	httpinfra.WriteJSON(w, http.StatusCreated, webhookResponse(true, content.ID))
}

func webhookResponse(created bool, contentID uuid.UUID) map[string]any {
	message := "Content already saved"
	if created {
		message = "Content saved successfully"
	}
	return map[string]any{
		"success":    true,
		"message":    message,
		"content_id": contentID,
	}
}

// extractURLFromBody достаёт URL из тела запроса: JSON с одним из полей
// url/text/link/instagram_url, form-данные или сырой текст.
func extractURLFromBody(r *http.Request) (string, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return "", err
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "" {
		if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
			contentType = parsed
		}
	}

	switch contentType {
	case "application/json":
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			return "", err
		}
		return urlFromFields(payload), nil
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return "", err
		}
		fields := make(map[string]any, len(values))
		for key := range values {
			fields[key] = values.Get(key)
		}
		return urlFromFields(fields), nil
	default:
		// text/plain и всё остальное: тело целиком — это URL.
		// Некоторые автоматизации шлют JSON без Content-Type.
		trimmed := strings.TrimSpace(string(body))
		if strings.HasPrefix(trimmed, "{") {
			var payload map[string]any
			if err := json.Unmarshal(body, &payload); err == nil {
				return urlFromFields(payload), nil
			}
		}
		return trimmed, nil
	}
}

func urlFromFields(fields map[string]any) string {
	for _, key := range []string{"url", "text", "link", "instagram_url"} {
		if value, ok := fields[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
