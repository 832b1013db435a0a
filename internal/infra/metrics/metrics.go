package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	IngestRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_requests_total",
		Help: "Количество запросов на сохранение публикаций",
	}, []string{"source", "result"})

	ScrapeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scrape_duration_seconds",
		Help:    "Длительность скрейпа публикации",
		Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120},
	})

	ScrapeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scrape_errors_total",
		Help: "Ошибки скрейпа публикаций",
	}, []string{"kind"})

	TranscriptionJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transcription_jobs_total",
		Help: "Количество задач расшифровки по типу и исходу",
	}, []string{"kind", "result"})

	TranscriptionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transcription_duration_seconds",
		Help:    "Длительность расшифровки",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 240, 300, 360},
	}, []string{"kind"})

	WebhookRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_requests_total",
		Help: "Количество запросов публичного вебхука",
	}, []string{"result"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30, 60, 120, 300},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		IngestRequestsTotal,
		ScrapeDuration,
		ScrapeErrors,
		TranscriptionJobsTotal,
		TranscriptionDuration,
		WebhookRequestsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveTranscription записывает исход и длительность задачи расшифровки.
func ObserveTranscription(kind string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	TranscriptionJobsTotal.WithLabelValues(kind, result).Inc()
	TranscriptionDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// IncIngest увеличивает счётчик запросов на сохранение.
func IncIngest(source, result string) {
	IngestRequestsTotal.WithLabelValues(source, result).Inc()
}
