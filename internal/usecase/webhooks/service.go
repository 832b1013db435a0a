package webhooks

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"insta-vault/internal/domain"
)

// ErrNameInvalid возвращается при недопустимом имени токена.
var ErrNameInvalid = errors.New("недопустимое имя токена")

const maxNameLength = 100

// Service управляет токенами вебхуков пользователя.
type Service struct {
	repo domain.WebhookTokenRepo
}

// NewService создаёт сервис токенов.
func NewService(repo domain.WebhookTokenRepo) *Service {
	return &Service{repo: repo}
}

// Create создаёт токен с указанным именем. Пустое имя заменяется на "Default".
func (s *Service) Create(ctx context.Context, userID uuid.UUID, name string) (domain.WebhookToken, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Default"
	}
	if len(name) > maxNameLength {
		return domain.WebhookToken{}, ErrNameInvalid
	}
	return s.repo.CreateToken(ctx, userID, name)
}

// List возвращает токены пользователя.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]domain.WebhookToken, error) {
	return s.repo.ListTokens(ctx, userID)
}

// Delete удаляет токен в рамках владельца.
func (s *Service) Delete(ctx context.Context, userID, tokenID uuid.UUID) error {
	return s.repo.DeleteToken(ctx, userID, tokenID)
}

// Regenerate заменяет значение токена; прежнее значение перестаёт действовать
// немедленно, без переходного периода.
func (s *Service) Regenerate(ctx context.Context, userID, tokenID uuid.UUID) (domain.WebhookToken, error) {
	return s.repo.RegenerateToken(ctx, userID, tokenID)
}

// Authenticate ищет активный токен по значению из пути вебхука.
// Неизвестный и неактивный токены неотличимы для вызывающего.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.WebhookToken, error) {
	if token == "" {
		return domain.WebhookToken{}, domain.ErrTokenNotFound
	}
	return s.repo.FindActiveToken(ctx, token)
}

// Touch обновляет отметку последнего использования токена.
func (s *Service) Touch(ctx context.Context, tokenID uuid.UUID) error {
	return s.repo.TouchToken(ctx, tokenID)
}
