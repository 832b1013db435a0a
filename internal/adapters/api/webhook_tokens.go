package api

import (
	"encoding/json"
	"errors"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"insta-vault/internal/domain"
	httpinfra "insta-vault/internal/infra/http"
	"insta-vault/internal/usecase/webhooks"
)

// listWebhooks возвращает токены пользователя.
func (h *Handler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpinfra.UserID(r.Context())
	if !ok {
		httpinfra.WriteError(w, http.StatusUnauthorized, "NotAuthenticated", "User not authenticated")
		return
	}

	tokens, err := h.webhooksUC.List(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("api: не удалось получить токены")
		httpinfra.WriteDomainError(w, err)
		return
	}

	body := make([]map[string]any, 0, len(tokens))
	for _, token := range tokens {
		body = append(body, tokenToJSON(token))
	}
	httpinfra.WriteJSON(w, http.StatusOK, body)
}

type createWebhookRequest struct {
	Name string `json:"name"`
}

// createWebhook создаёт токен вебхука.
func (h *Handler) createWebhook(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpinfra.UserID(r.Context())
	if !ok {
		httpinfra.WriteError(w, http.StatusUnauthorized, "NotAuthenticated", "User not authenticated")
		return
	}

	defer r.Body.Close()
	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Name = ""
	}

	token, err := h.webhooksUC.Create(r.Context(), userID, req.Name)
	if err != nil {
		if errors.Is(err, webhooks.ErrNameInvalid) {
			httpinfra.WriteError(w, http.StatusBadRequest, "ValidationError", "Webhook name is too long")
			return
		}
		h.log.Error().Err(err).Msg("api: не удалось создать токен")
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, tokenToJSON(token))
}

// deleteWebhook удаляет токен владельца.
func (h *Handler) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpinfra.UserID(r.Context())
	if !ok {
		httpinfra.WriteError(w, http.StatusUnauthorized, "NotAuthenticated", "User not authenticated")
		return
	}
	tokenID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpinfra.WriteError(w, http.StatusNotFound, "NotFound", "Webhook not found")
		return
	}

	if err := h.webhooksUC.Delete(r.Context(), userID, tokenID); err != nil {
		h.log.Error().Err(err).Msg("api: не удалось удалить токен")
		httpinfra.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// regenerateWebhook заменяет значение токена; старое значение перестаёт
// действовать немедленно.
func (h *Handler) regenerateWebhook(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpinfra.UserID(r.Context())
	if !ok {
		httpinfra.WriteError(w, http.StatusUnauthorized, "NotAuthenticated", "User not authenticated")
		return
	}
	tokenID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpinfra.WriteError(w, http.StatusNotFound, "NotFound", "Webhook not found")
		return
	}

	token, err := h.webhooksUC.Regenerate(r.Context(), userID, tokenID)
	if err != nil {
		h.log.Error().Err(err).Msg("api: не удалось перегенерировать токен")
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, tokenToJSON(token))
}

func tokenToJSON(token domain.WebhookToken) map[string]any {
	return map[string]any{
		"id":           token.ID,
		"user_id":      token.UserID,
		"token":        token.Token,
		"name":         token.Name,
		"is_active":    token.IsActive,
		"last_used_at": token.LastUsedAt,
		"created_at":   token.CreatedAt,
		"updated_at":   token.UpdatedAt,
	}
}
