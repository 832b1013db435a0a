package ocr

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

// Config описывает настройки OCR-клиента.
type Config struct {
	BaseURL   string
	Languages string
	Timeout   time.Duration
}

// Tesseract реализует domain.OCRClient через HTTP API self-hosted
// tesseract-server.
type Tesseract struct {
	client    *http.Client
	baseURL   string
	languages string
}

var _ domain.OCRClient = (*Tesseract)(nil)

// NewTesseract создаёт OCR-клиента.
func NewTesseract(cfg Config) (*Tesseract, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("ocr base url is empty")
	}
	languages := cfg.Languages
	if languages == "" {
		languages = "eng+por"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Tesseract{
		client:    &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		languages: languages,
	}, nil
}

type recognizeRequest struct {
	URL       string `json:"url"`
	Languages string `json:"languages"`
}

type recognizeResponse struct {
	Data struct {
		Text string `json:"text"`
	} `json:"data"`
	Error string `json:"error"`
}

// Recognize распознаёт текст на изображении по его URL.
func (t *Tesseract) Recognize(ctx context.Context, imageURL string) (string, error) {
	body, err := json.Marshal(recognizeRequest{URL: imageURL, Languages: t.languages})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/recognize", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := t.client.Do(req)
	metrics.ObserveNetworkRequest("tesseract", "recognize", "ocr", start, err)
	if err != nil {
		return "", fmt.Errorf("recognize image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("recognize image: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var parsed recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("recognize image: %s", parsed.Error)
	}
	return parsed.Data.Text, nil
}
