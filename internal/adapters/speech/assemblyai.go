package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"insta-vault/internal/domain"
	"insta-vault/internal/infra/metrics"
)

// AssemblyAI реализует domain.SpeechTranscriber через AssemblyAI v2 API.
type AssemblyAI struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

var _ domain.SpeechTranscriber = (*AssemblyAI)(nil)

// NewAssemblyAI создаёт клиента распознавания речи.
func NewAssemblyAI(apiKey, baseURL string) (*AssemblyAI, error) {
	if apiKey == "" {
		return nil, errors.New("assemblyai api key is empty")
	}
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://api.assemblyai.com/v2"
	}
	return &AssemblyAI{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: base,
		apiKey:  apiKey,
	}, nil
}

type submitRequest struct {
	AudioURL          string `json:"audio_url"`
	LanguageDetection bool   `json:"language_detection"`
}

type transcriptResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
	Error        string `json:"error"`
}

// Submit создаёт задачу расшифровки и возвращает её идентификатор.
func (a *AssemblyAI) Submit(ctx context.Context, audioURL string) (string, error) {
	body, err := json.Marshal(submitRequest{AudioURL: audioURL, LanguageDetection: true})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	metrics.ObserveNetworkRequest("assemblyai", "submit", "transcript", start, err)
	if err != nil {
		return "", fmt.Errorf("submit transcript: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("submit transcript: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var parsed transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.ID == "" {
		return "", errors.New("assemblyai: пустой идентификатор задачи")
	}
	return parsed.ID, nil
}

// Poll возвращает текущее состояние задачи расшифровки.
func (a *AssemblyAI) Poll(ctx context.Context, jobID string) (domain.SpeechJobResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/transcript/"+jobID, nil)
	if err != nil {
		return domain.SpeechJobResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", a.apiKey)

	start := time.Now()
	resp, err := a.client.Do(req)
	metrics.ObserveNetworkRequest("assemblyai", "poll", "transcript", start, err)
	if err != nil {
		return domain.SpeechJobResult{}, fmt.Errorf("poll transcript: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.SpeechJobResult{}, fmt.Errorf("poll transcript: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var parsed transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.SpeechJobResult{}, fmt.Errorf("decode response: %w", err)
	}
	result := domain.SpeechJobResult{
		Text:     parsed.Text,
		Language: parsed.LanguageCode,
		Error:    parsed.Error,
	}
	switch parsed.Status {
	case "completed":
		result.Status = domain.SpeechJobCompleted
	case "error":
		result.Status = domain.SpeechJobError
	case "processing":
		result.Status = domain.SpeechJobProcessing
	default:
		result.Status = domain.SpeechJobQueued
	}
	return result, nil
}
