package contents

import (
	"context"

	"github.com/google/uuid"

	"insta-vault/internal/domain"
)

// Service предоставляет операции над сохранённым контентом пользователя.
type Service struct {
	repo domain.ContentRepo
}

// NewService создаёт сервис контента.
func NewService(repo domain.ContentRepo) *Service {
	return &Service{repo: repo}
}

// List возвращает страницу контента с фильтрами и поиском.
func (s *Service) List(ctx context.Context, userID uuid.UUID, filter domain.ContentFilter) (domain.ContentPage, error) {
	return s.repo.ListContents(ctx, userID, filter)
}

// Get возвращает запись с расшифровкой.
func (s *Service) Get(ctx context.Context, userID, contentID uuid.UUID) (domain.ContentWithTranscription, error) {
	return s.repo.GetContent(ctx, userID, contentID)
}

// Delete удаляет запись в рамках владельца.
func (s *Service) Delete(ctx context.Context, userID, contentID uuid.UUID) error {
	return s.repo.DeleteContent(ctx, userID, contentID)
}
