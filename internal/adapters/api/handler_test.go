package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"insta-vault/internal/domain"
	httpinfra "insta-vault/internal/infra/http"
	"insta-vault/internal/usecase/contents"
	"insta-vault/internal/usecase/ingest"
	"insta-vault/internal/usecase/webhooks"
)

const testJWTSecret = "test-secret"

type memContentRepo struct {
	byPostID map[string]domain.SavedContent
	inserted int
}

func newMemContentRepo() *memContentRepo {
	return &memContentRepo{byPostID: make(map[string]domain.SavedContent)}
}

func (m *memContentRepo) InsertContent(_ context.Context, content domain.NewContent) (domain.SavedContent, error) {
	if _, ok := m.byPostID[content.PostID]; ok {
		return domain.SavedContent{}, domain.ErrAlreadySaved
	}
	m.inserted++
	saved := domain.SavedContent{
		ID:                  uuid.New(),
		UserID:              content.UserID,
		InstagramURL:        content.InstagramURL,
		PostID:              content.PostID,
		ContentType:         content.ContentType,
		AuthorUsername:      content.AuthorUsername,
		VideoURL:            content.VideoURL,
		TranscriptionStatus: content.TranscriptionStatus,
		SavedAt:             time.Now(),
	}
	m.byPostID[content.PostID] = saved
	return saved, nil
}

func (m *memContentRepo) FindByPostID(_ context.Context, _ uuid.UUID, postID string) (domain.SavedContent, error) {
	if saved, ok := m.byPostID[postID]; ok {
		return saved, nil
	}
	return domain.SavedContent{}, domain.ErrContentNotFound
}

func (m *memContentRepo) GetContent(context.Context, uuid.UUID, uuid.UUID) (domain.ContentWithTranscription, error) {
	return domain.ContentWithTranscription{}, domain.ErrContentNotFound
}
func (m *memContentRepo) ListContents(context.Context, uuid.UUID, domain.ContentFilter) (domain.ContentPage, error) {
	return domain.ContentPage{Page: 1, Limit: 20}, nil
}
func (m *memContentRepo) DeleteContent(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (m *memContentRepo) ClaimTranscription(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}
func (m *memContentRepo) FinishTranscription(context.Context, uuid.UUID, domain.TranscriptionStatus) error {
	return nil
}

type memTokenRepo struct {
	byValue    map[string]domain.WebhookToken
	touchCalls int
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{byValue: make(map[string]domain.WebhookToken)}
}

func (m *memTokenRepo) addActive(userID uuid.UUID, value string) domain.WebhookToken {
	token := domain.WebhookToken{ID: uuid.New(), UserID: userID, Name: "Default", Token: value, IsActive: true}
	m.byValue[value] = token
	return token
}

func (m *memTokenRepo) CreateToken(_ context.Context, userID uuid.UUID, name string) (domain.WebhookToken, error) {
	token := domain.WebhookToken{ID: uuid.New(), UserID: userID, Name: name, Token: uuid.NewString(), IsActive: true}
	m.byValue[token.Token] = token
	return token, nil
}

func (m *memTokenRepo) ListTokens(context.Context, uuid.UUID) ([]domain.WebhookToken, error) {
	return nil, nil
}
func (m *memTokenRepo) DeleteToken(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (m *memTokenRepo) RegenerateToken(_ context.Context, _, tokenID uuid.UUID) (domain.WebhookToken, error) {
	for value, token := range m.byValue {
		if token.ID == tokenID {
			delete(m.byValue, value)
			token.Token = uuid.NewString()
			m.byValue[token.Token] = token
			return token, nil
		}
	}
	return domain.WebhookToken{}, domain.ErrTokenNotFound
}

func (m *memTokenRepo) FindActiveToken(_ context.Context, token string) (domain.WebhookToken, error) {
	if found, ok := m.byValue[token]; ok && found.IsActive {
		return found, nil
	}
	return domain.WebhookToken{}, domain.ErrTokenNotFound
}

func (m *memTokenRepo) TouchToken(context.Context, uuid.UUID) error {
	m.touchCalls++
	return nil
}

type stubScraper struct {
	calls int
	post  domain.ScrapedPost
}

func (s *stubScraper) Scrape(_ context.Context, _ string) (domain.ScrapedPost, error) {
	s.calls++
	return s.post, nil
}

type stubQueue struct {
	jobs []domain.TranscriptionJob
}

func (s *stubQueue) Enqueue(_ context.Context, job domain.TranscriptionJob) error {
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *stubQueue) Receive(context.Context) (domain.TranscriptionJob, domain.TranscriptionAckFunc, error) {
	return domain.TranscriptionJob{}, nil, domain.ErrContentNotFound
}

type testEnv struct {
	router   chi.Router
	contents *memContentRepo
	tokens   *memTokenRepo
	scraper  *stubScraper
	queue    *stubQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.Nop()
	contentsRepo := newMemContentRepo()
	tokenRepo := newMemTokenRepo()
	scraper := &stubScraper{post: domain.ScrapedPost{PostID: "ABC", ContentType: domain.ContentTypeReel}}
	queue := &stubQueue{}

	ingestUC := ingest.NewService(contentsRepo, scraper, queue, nil, log)
	contentsUC := contents.NewService(contentsRepo)
	webhooksUC := webhooks.NewService(tokenRepo)
	handler := NewHandler(log, ingestUC, contentsUC, webhooksUC, NewImageProxy(time.Second, log))

	router := chi.NewRouter()
	handler.Routes(router, httpinfra.BearerAuthMiddleware(testJWTSecret))

	return &testEnv{router: router, contents: contentsRepo, tokens: tokenRepo, scraper: scraper, queue: queue}
}

func signToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("не удалось подписать токен: %v", err)
	}
	return signed
}

func TestWebhookUnknownTokenRejected(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/nope", strings.NewReader("https://instagram.com/p/ABC"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("ожидали 404, получили %d: %s", rec.Code, rec.Body.String())
	}
	if env.scraper.calls != 0 || env.contents.inserted != 0 {
		t.Fatalf("отклонённый токен не должен запускать обработку")
	}
}

func TestWebhookSavesContent(t *testing.T) {
	env := newTestEnv(t)
	videoURL := "https://cdn.example/reel.mp4"
	env.scraper.post.VideoURL = &videoURL
	env.tokens.addActive(uuid.New(), "valid-token")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/valid-token", strings.NewReader(`{"url":"https://instagram.com/reel/ABC?utm_source=share"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("ожидали 201, получили %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success   bool   `json:"success"`
		ContentID string `json:"content_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("неразборчивый ответ: %v", err)
	}
	if !resp.Success || resp.ContentID == "" {
		t.Fatalf("неожиданное тело ответа: %s", rec.Body.String())
	}
	if len(env.queue.jobs) != 1 {
		t.Fatalf("ожидали одну задачу расшифровки, получили %d", len(env.queue.jobs))
	}
	if env.tokens.touchCalls != 1 {
		t.Fatalf("успешный вебхук должен обновлять last_used_at")
	}
}

func TestWebhookDuplicateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	env.tokens.addActive(userID, "valid-token")

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/valid-token", strings.NewReader("https://instagram.com/p/ABC"))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusCreated {
		t.Fatalf("первая отправка: ожидали 201, получили %d", rec.Code)
	}
	rec := send()
	if rec.Code != http.StatusOK {
		t.Fatalf("повторная отправка: ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	if env.scraper.calls != 1 {
		t.Fatalf("повтор не должен скрейпить заново, вызовов: %d", env.scraper.calls)
	}
}

func TestWebhookRegenerateInvalidatesOldValue(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	token := env.tokens.addActive(userID, "old-value")

	regReq := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/"+token.ID.String()+"/regenerate", nil)
	regReq.Header.Set("Authorization", "Bearer "+signToken(t, userID))
	regRec := httptest.NewRecorder()
	env.router.ServeHTTP(regRec, regReq)
	if regRec.Code != http.StatusOK {
		t.Fatalf("перегенерация: ожидали 200, получили %d: %s", regRec.Code, regRec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/old-value", strings.NewReader("https://instagram.com/p/ABC"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("старое значение токена должно перестать действовать, получили %d", rec.Code)
	}
}

func TestCreateContentRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/contents", strings.NewReader(`{"instagram_url":"https://instagram.com/p/ABC"}`))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("без токена ожидали 401, получили %d", rec.Code)
	}
}

func TestCreateContentDuplicateConflicts(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	auth := "Bearer " + signToken(t, userID)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/contents", strings.NewReader(`{"instagram_url":"https://instagram.com/p/ABC"}`))
		req.Header.Set("Authorization", auth)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusCreated {
		t.Fatalf("первое сохранение: ожидали 201, получили %d: %s", rec.Code, rec.Body.String())
	}
	rec := send()
	if rec.Code != http.StatusConflict {
		t.Fatalf("повторное сохранение: ожидали 409, получили %d", rec.Code)
	}
	var apiErr struct {
		Error      string `json:"error"`
		StatusCode int    `json:"statusCode"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("неразборчивое тело ошибки: %v", err)
	}
	if apiErr.Error != "Conflict" || apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("неверное тело ошибки: %s", rec.Body.String())
	}
}

func TestCreateContentUnsupportedLink(t *testing.T) {
	env := newTestEnv(t)
	auth := "Bearer " + signToken(t, uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/contents", strings.NewReader(`{"instagram_url":"https://example.com/p/ABC"}`))
	req.Header.Set("Authorization", auth)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("недопустимая ссылка: ожидали 400, получили %d: %s", rec.Code, rec.Body.String())
	}
	if env.scraper.calls != 0 {
		t.Fatalf("недопустимая ссылка не должна доходить до скрейпера")
	}
}

func TestExtractURLFromBody(t *testing.T) {
	cases := map[string]struct {
		contentType string
		body        string
		want        string
	}{
		"json url":        {"application/json", `{"url":"https://instagram.com/p/A"}`, "https://instagram.com/p/A"},
		"json text":       {"application/json", `{"text":"https://instagram.com/p/B"}`, "https://instagram.com/p/B"},
		"json link":       {"application/json", `{"link":"https://instagram.com/p/C"}`, "https://instagram.com/p/C"},
		"form":            {"application/x-www-form-urlencoded", "url=https%3A%2F%2Finstagram.com%2Fp%2FD", "https://instagram.com/p/D"},
		"plain text":      {"text/plain", "  https://instagram.com/p/E\n", "https://instagram.com/p/E"},
		"json no header":  {"", `{"instagram_url":"https://instagram.com/p/F"}`, "https://instagram.com/p/F"},
		"empty json body": {"application/json", `{}`, ""},
	}
	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(tc.body))
		if tc.contentType != "" {
			req.Header.Set("Content-Type", tc.contentType)
		}
		got, err := extractURLFromBody(req)
		if err != nil {
			t.Fatalf("%s: не ожидали ошибку: %v", name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: ожидали %q, получили %q", name, tc.want, got)
		}
	}
}
