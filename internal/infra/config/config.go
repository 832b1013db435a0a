package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Auth struct {
		JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
	} `envconfig:""`

	Apify struct {
		APIKey  string        `envconfig:"APIFY_API_KEY"`
		BaseURL string        `envconfig:"APIFY_BASE_URL" default:"https://api.apify.com"`
		Actor   string        `envconfig:"APIFY_ACTOR" default:"apify~instagram-scraper"`
		Timeout time.Duration `envconfig:"APIFY_TIMEOUT" default:"2m"`
	} `envconfig:""`

	AssemblyAI struct {
		APIKey  string `envconfig:"ASSEMBLYAI_API_KEY"`
		BaseURL string `envconfig:"ASSEMBLYAI_BASE_URL" default:"https://api.assemblyai.com/v2"`
	} `envconfig:""`

	OCR struct {
		BaseURL   string        `envconfig:"OCR_BASE_URL"`
		Languages string        `envconfig:"OCR_LANGUAGES" default:"eng+por"`
		Timeout   time.Duration `envconfig:"OCR_TIMEOUT" default:"1m"`
	} `envconfig:""`

	Transcribe struct {
		PollInterval time.Duration `envconfig:"TRANSCRIBE_POLL_INTERVAL" default:"5s"`
		MaxWait      time.Duration `envconfig:"TRANSCRIBE_MAX_WAIT" default:"5m"`
	} `envconfig:""`

	Proxy struct {
		Timeout time.Duration `envconfig:"PROXY_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Queues struct {
		Transcription string `envconfig:"TRANSCRIPTION_QUEUE_KEY" default:"transcription_jobs"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
