package webhooks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"insta-vault/internal/domain"
)

type stubTokenRepo struct {
	createdName string
	findCalls   int
	active      map[string]domain.WebhookToken
}

func (s *stubTokenRepo) CreateToken(_ context.Context, userID uuid.UUID, name string) (domain.WebhookToken, error) {
	s.createdName = name
	return domain.WebhookToken{ID: uuid.New(), UserID: userID, Name: name, Token: uuid.NewString(), IsActive: true}, nil
}

func (s *stubTokenRepo) ListTokens(context.Context, uuid.UUID) ([]domain.WebhookToken, error) {
	return nil, nil
}
func (s *stubTokenRepo) DeleteToken(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (s *stubTokenRepo) RegenerateToken(_ context.Context, userID, tokenID uuid.UUID) (domain.WebhookToken, error) {
	return domain.WebhookToken{ID: tokenID, UserID: userID, Token: uuid.NewString(), IsActive: true}, nil
}

func (s *stubTokenRepo) FindActiveToken(_ context.Context, token string) (domain.WebhookToken, error) {
	s.findCalls++
	if found, ok := s.active[token]; ok {
		return found, nil
	}
	return domain.WebhookToken{}, domain.ErrTokenNotFound
}

func (s *stubTokenRepo) TouchToken(context.Context, uuid.UUID) error { return nil }

func TestCreateDefaultsEmptyName(t *testing.T) {
	repo := &stubTokenRepo{}
	service := NewService(repo)

	token, err := service.Create(context.Background(), uuid.New(), "   ")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if token.Name != "Default" {
		t.Fatalf("пустое имя должно заменяться на Default, получили %q", token.Name)
	}
}

func TestCreateRejectsLongName(t *testing.T) {
	repo := &stubTokenRepo{}
	service := NewService(repo)

	_, err := service.Create(context.Background(), uuid.New(), strings.Repeat("a", 101))
	if !errors.Is(err, ErrNameInvalid) {
		t.Fatalf("ожидали ErrNameInvalid, получили %v", err)
	}
	if repo.createdName != "" {
		t.Fatalf("при недопустимом имени токен создаваться не должен")
	}
}

func TestAuthenticateEmptyToken(t *testing.T) {
	repo := &stubTokenRepo{}
	service := NewService(repo)

	_, err := service.Authenticate(context.Background(), "")
	if !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("ожидали ErrTokenNotFound, получили %v", err)
	}
	if repo.findCalls != 0 {
		t.Fatalf("пустой токен не должен доходить до хранилища")
	}
}

func TestAuthenticateUnknownToken(t *testing.T) {
	repo := &stubTokenRepo{active: map[string]domain.WebhookToken{}}
	service := NewService(repo)

	_, err := service.Authenticate(context.Background(), "nope")
	if !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("ожидали ErrTokenNotFound, получили %v", err)
	}
}
