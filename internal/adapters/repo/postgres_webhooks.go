package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"insta-vault/internal/domain"
	"insta-vault/internal/infra/metrics"
)

const tokenColumns = `id, user_id, token, name, is_active, last_used_at, created_at, updated_at`

// CreateToken создаёт токен вебхука. Значение токена генерируется здесь,
// чтобы не зависеть от расширений БД.
func (p *Postgres) CreateToken(ctx context.Context, userID uuid.UUID, name string) (domain.WebhookToken, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO webhook_tokens (user_id, token, name)
VALUES ($1, $2, $3)
RETURNING `+tokenColumns, userID, uuid.NewString(), name)
	token, err := scanToken(row)
	metrics.ObserveNetworkRequest("postgres", "webhook_tokens_insert", "webhook_tokens", start, err)
	if err != nil {
		return domain.WebhookToken{}, fmt.Errorf("создание токена: %w", err)
	}
	return token, nil
}

// ListTokens возвращает токены пользователя.
func (p *Postgres) ListTokens(ctx context.Context, userID uuid.UUID) ([]domain.WebhookToken, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+tokenColumns+` FROM webhook_tokens WHERE user_id = $1 ORDER BY created_at DESC
`, userID)
	metrics.ObserveNetworkRequest("postgres", "webhook_tokens_list", "webhook_tokens", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка токенов: %w", err)
	}
	defer rows.Close()

	var tokens []domain.WebhookToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("чтение строки токена: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("итерация по токенам: %w", err)
	}
	return tokens, nil
}

// DeleteToken удаляет токен в рамках владельца.
func (p *Postgres) DeleteToken(ctx context.Context, userID, tokenID uuid.UUID) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM webhook_tokens WHERE id = $1 AND user_id = $2`, tokenID, userID)
	metrics.ObserveNetworkRequest("postgres", "webhook_tokens_delete", "webhook_tokens", start, err)
	if err != nil {
		return fmt.Errorf("удаление токена: %w", err)
	}
	return nil
}

// RegenerateToken заменяет значение токена. Прежнее значение перестаёт
// действовать в момент обновления строки.
func (p *Postgres) RegenerateToken(ctx context.Context, userID, tokenID uuid.UUID) (domain.WebhookToken, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
UPDATE webhook_tokens SET token = $3, updated_at = now()
WHERE id = $1 AND user_id = $2
RETURNING `+tokenColumns, tokenID, userID, uuid.NewString())
	token, err := scanToken(row)
	metrics.ObserveNetworkRequest("postgres", "webhook_tokens_regenerate", "webhook_tokens", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WebhookToken{}, domain.ErrTokenNotFound
		}
		return domain.WebhookToken{}, fmt.Errorf("перегенерация токена: %w", err)
	}
	return token, nil
}

// FindActiveToken ищет активный токен по значению.
func (p *Postgres) FindActiveToken(ctx context.Context, token string) (domain.WebhookToken, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+tokenColumns+` FROM webhook_tokens WHERE token = $1 AND is_active
`, token)
	found, err := scanToken(row)
	metrics.ObserveNetworkRequest("postgres", "webhook_tokens_find", "webhook_tokens", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WebhookToken{}, domain.ErrTokenNotFound
		}
		return domain.WebhookToken{}, fmt.Errorf("поиск токена: %w", err)
	}
	return found, nil
}

// TouchToken обновляет отметку последнего использования.
func (p *Postgres) TouchToken(ctx context.Context, tokenID uuid.UUID) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE webhook_tokens SET last_used_at = now() WHERE id = $1`, tokenID)
	metrics.ObserveNetworkRequest("postgres", "webhook_tokens_touch", "webhook_tokens", start, err)
	if err != nil {
		return fmt.Errorf("обновление токена: %w", err)
	}
	return nil
}

func scanToken(row pgx.Row) (domain.WebhookToken, error) {
	var (
		token    domain.WebhookToken
		lastUsed sql.NullTime
	)
	err := row.Scan(&token.ID, &token.UserID, &token.Token, &token.Name, &token.IsActive,
		&lastUsed, &token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		return domain.WebhookToken{}, err
	}
	if lastUsed.Valid {
		ts := lastUsed.Time
		token.LastUsedAt = &ts
	}
	return token, nil
}
