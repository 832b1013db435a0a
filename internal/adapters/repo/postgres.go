package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"insta-vault/internal/domain"
	"insta-vault/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ContentRepo       = (*Postgres)(nil)
	_ domain.TranscriptionRepo = (*Postgres)(nil)
	_ domain.WebhookTokenRepo  = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const contentColumns = `id, user_id, instagram_url, post_id, content_type, author_username, author_name,
author_profile_pic, author_verified, caption, thumbnail_url, video_url, image_urls, carousel_media,
likes_count, comments_count, views_count, plays_count, posted_at, saved_at, is_processed,
transcription_status, created_at, updated_at`

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
}

// InsertContent вставляет запись контента. Конфликт по (user_id, post_id)
// считается авторитетным сигналом дубликата и отображается в ErrAlreadySaved.
func (p *Postgres) InsertContent(ctx context.Context, content domain.NewContent) (domain.SavedContent, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	imageURLs, err := marshalNullable(content.ImageURLs)
	if err != nil {
		return domain.SavedContent{}, fmt.Errorf("сериализация image_urls: %w", err)
	}
	carousel, err := marshalNullable(content.CarouselMedia)
	if err != nil {
		return domain.SavedContent{}, fmt.Errorf("сериализация carousel_media: %w", err)
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO saved_contents (user_id, instagram_url, post_id, content_type, author_username, author_name,
author_profile_pic, author_verified, caption, thumbnail_url, video_url, image_urls, carousel_media,
likes_count, comments_count, views_count, plays_count, posted_at, is_processed, transcription_status)
VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), NULLIF($7,''), $8, NULLIF($9,''), NULLIF($10,''), NULLIF($11,''), $12, $13, $14, $15, $16, $17, $18, $19, $20)
RETURNING `+contentColumns,
		content.UserID, content.InstagramURL, content.PostID, content.ContentType, content.AuthorUsername,
		deref(content.AuthorName), deref(content.AuthorProfilePic), content.AuthorVerified,
		deref(content.Caption), deref(content.ThumbnailURL), deref(content.VideoURL),
		imageURLs, carousel, content.LikesCount, content.CommentsCount,
		nullInt64(content.ViewsCount), nullInt64(content.PlaysCount), nullTime(content.PostedAt),
		content.IsProcessed, content.TranscriptionStatus)
	saved, err := scanContent(row)
	metrics.ObserveNetworkRequest("postgres", "contents_insert", "saved_contents", start, err)
	if err != nil {
		if isUniqueViolation(err, "saved_contents_user_id_post_id_key") {
			return domain.SavedContent{}, domain.ErrAlreadySaved
		}
		return domain.SavedContent{}, fmt.Errorf("вставка контента: %w", err)
	}
	return saved, nil
}

// FindByPostID ищет запись пользователя по идентификатору публикации.
func (p *Postgres) FindByPostID(ctx context.Context, userID uuid.UUID, postID string) (domain.SavedContent, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+contentColumns+` FROM saved_contents WHERE user_id = $1 AND post_id = $2
`, userID, postID)
	saved, err := scanContent(row)
	metrics.ObserveNetworkRequest("postgres", "contents_find_by_post", "saved_contents", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SavedContent{}, domain.ErrContentNotFound
		}
		return domain.SavedContent{}, fmt.Errorf("поиск контента: %w", err)
	}
	return saved, nil
}

// GetContent возвращает запись вместе с расшифровкой, если она есть.
func (p *Postgres) GetContent(ctx context.Context, userID, contentID uuid.UUID) (domain.ContentWithTranscription, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+contentColumns+` FROM saved_contents WHERE id = $1 AND user_id = $2
`, contentID, userID)
	saved, err := scanContent(row)
	metrics.ObserveNetworkRequest("postgres", "contents_get", "saved_contents", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ContentWithTranscription{}, domain.ErrContentNotFound
		}
		return domain.ContentWithTranscription{}, fmt.Errorf("получение контента: %w", err)
	}

	result := domain.ContentWithTranscription{SavedContent: saved}

	start = time.Now()
	var tr domain.Transcription
	err = p.pool.QueryRow(ctx, `
SELECT id, content_id, text, language, created_at, updated_at FROM transcriptions WHERE content_id = $1
`, contentID).Scan(&tr.ID, &tr.ContentID, &tr.Text, &tr.Language, &tr.CreatedAt, &tr.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "transcriptions_get", "transcriptions", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return result, nil
		}
		return domain.ContentWithTranscription{}, fmt.Errorf("получение расшифровки: %w", err)
	}
	result.Transcription = &tr
	return result, nil
}

// ListContents возвращает страницу контента с фильтрами и поиском.
func (p *Postgres) ListContents(ctx context.Context, userID uuid.UUID, filter domain.ContentFilter) (domain.ContentPage, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	conds := []string{"user_id = $1"}
	args := []any{userID}

	if filter.ContentType != "" {
		args = append(args, filter.ContentType)
		conds = append(conds, fmt.Sprintf("content_type = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conds = append(conds, fmt.Sprintf("saved_at >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conds = append(conds, fmt.Sprintf("saved_at <= $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(author_username ILIKE $%d OR author_name ILIKE $%d OR caption ILIKE $%d
OR id IN (SELECT content_id FROM transcriptions WHERE text ILIKE $%d))`, n, n, n, n))
	}

	where := strings.Join(conds, " AND ")

	start := time.Now()
	var total int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM saved_contents WHERE `+where, args...).Scan(&total)
	metrics.ObserveNetworkRequest("postgres", "contents_count", "saved_contents", start, err)
	if err != nil {
		return domain.ContentPage{}, fmt.Errorf("подсчёт контента: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM saved_contents WHERE %s ORDER BY saved_at DESC LIMIT $%d OFFSET $%d`,
		contentColumns, where, len(args)-1, len(args))

	start = time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "contents_list", "saved_contents", start, err)
	if err != nil {
		return domain.ContentPage{}, fmt.Errorf("выборка контента: %w", err)
	}
	defer rows.Close()

	items := make([]domain.SavedContent, 0, limit)
	for rows.Next() {
		saved, err := scanContent(rows)
		if err != nil {
			return domain.ContentPage{}, fmt.Errorf("чтение строки контента: %w", err)
		}
		items = append(items, saved)
	}
	if err := rows.Err(); err != nil {
		return domain.ContentPage{}, fmt.Errorf("итерация по контенту: %w", err)
	}

	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}
	return domain.ContentPage{Items: items, Page: page, Limit: limit, Total: total, TotalPages: totalPages}, nil
}

// DeleteContent удаляет запись в рамках владельца. Расшифровка удаляется
// каскадно на уровне схемы.
func (p *Postgres) DeleteContent(ctx context.Context, userID, contentID uuid.UUID) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM saved_contents WHERE id = $1 AND user_id = $2`, contentID, userID)
	metrics.ObserveNetworkRequest("postgres", "contents_delete", "saved_contents", start, err)
	if err != nil {
		return fmt.Errorf("удаление контента: %w", err)
	}
	return nil
}

// ClaimTranscription переводит статус pending → processing.
func (p *Postgres) ClaimTranscription(ctx context.Context, contentID uuid.UUID) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE saved_contents SET transcription_status = 'processing', updated_at = now()
WHERE id = $1 AND transcription_status = 'pending'
`, contentID)
	metrics.ObserveNetworkRequest("postgres", "transcription_claim", "saved_contents", start, err)
	if err != nil {
		return false, fmt.Errorf("захват расшифровки: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FinishTranscription выставляет терминальный статус.
func (p *Postgres) FinishTranscription(ctx context.Context, contentID uuid.UUID, status domain.TranscriptionStatus) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE saved_contents SET transcription_status = $2, is_processed = is_processed OR $2 = 'completed', updated_at = now()
WHERE id = $1
`, contentID, status)
	metrics.ObserveNetworkRequest("postgres", "transcription_finish", "saved_contents", start, err)
	if err != nil {
		return fmt.Errorf("завершение расшифровки: %w", err)
	}
	return nil
}

// UpsertTranscription создаёт или перезаписывает расшифровку.
func (p *Postgres) UpsertTranscription(ctx context.Context, contentID uuid.UUID, text, language string) (domain.Transcription, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var tr domain.Transcription
	err := p.pool.QueryRow(ctx, `
INSERT INTO transcriptions (content_id, text, language)
VALUES ($1, $2, $3)
ON CONFLICT (content_id) DO UPDATE SET text = EXCLUDED.text, language = EXCLUDED.language, updated_at = now()
RETURNING id, content_id, text, language, created_at, updated_at
`, contentID, text, language).Scan(&tr.ID, &tr.ContentID, &tr.Text, &tr.Language, &tr.CreatedAt, &tr.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "transcriptions_upsert", "transcriptions", start, err)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("сохранение расшифровки: %w", err)
	}
	return tr, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch val := v.(type) {
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case []domain.CarouselItem:
		if len(val) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func scanContent(row pgx.Row) (domain.SavedContent, error) {
	var (
		saved      domain.SavedContent
		authorName sql.NullString
		profile    sql.NullString
		caption    sql.NullString
		thumbnail  sql.NullString
		videoURL   sql.NullString
		imagesRaw  []byte
		carousel   []byte
		views      sql.NullInt64
		plays      sql.NullInt64
		postedAt   sql.NullTime
	)
	err := row.Scan(&saved.ID, &saved.UserID, &saved.InstagramURL, &saved.PostID, &saved.ContentType,
		&saved.AuthorUsername, &authorName, &profile, &saved.AuthorVerified, &caption, &thumbnail,
		&videoURL, &imagesRaw, &carousel, &saved.LikesCount, &saved.CommentsCount, &views, &plays,
		&postedAt, &saved.SavedAt, &saved.IsProcessed, &saved.TranscriptionStatus, &saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return domain.SavedContent{}, err
	}
	if authorName.Valid {
		saved.AuthorName = &authorName.String
	}
	if profile.Valid {
		saved.AuthorProfilePic = &profile.String
	}
	if caption.Valid {
		saved.Caption = &caption.String
	}
	if thumbnail.Valid {
		saved.ThumbnailURL = &thumbnail.String
	}
	if videoURL.Valid {
		saved.VideoURL = &videoURL.String
	}
	if len(imagesRaw) > 0 {
		if err := json.Unmarshal(imagesRaw, &saved.ImageURLs); err != nil {
			return domain.SavedContent{}, fmt.Errorf("распаковка image_urls: %w", err)
		}
	}
	if len(carousel) > 0 {
		if err := json.Unmarshal(carousel, &saved.CarouselMedia); err != nil {
			return domain.SavedContent{}, fmt.Errorf("распаковка carousel_media: %w", err)
		}
	}
	if views.Valid {
		saved.ViewsCount = &views.Int64
	}
	if plays.Valid {
		saved.PlaysCount = &plays.Int64
	}
	if postedAt.Valid {
		ts := postedAt.Time
		saved.PostedAt = &ts
	}
	return saved, nil
}
