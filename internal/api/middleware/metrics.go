// metrics.go — Prometheus HTTP метрики Insurance API.
// Регистрирует метрики: ins_http_requests_total, ins_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики Insurance API
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ins_http_requests_total",
			Help: "Общее количество HTTP-запросов к Insurance API",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ins_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Insurance API в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем значения поиска на {value} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет искомые значения в путях поиска на {value},
// чтобы лейблы метрик не росли по одному на каждого клиента и полис.
// /clients/name/Britney → /clients/name/{value}
// /policies/by_policy/64cce... → /policies/by_policy/{value}
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics", "/login":
		return path
	}

	// Динамические пути поиска: последний сегмент — искомое значение
	for _, prefix := range []string{
		"/clients/name/", "/clients/id/",
		"/clients/email/", "/clients/role/",
		"/users/name/", "/users/id/",
		"/users/email/", "/users/role/",
		"/policies/by_policy/", "/policies/by_client_name/",
	} {
		if strings.HasPrefix(path, prefix) {
			return prefix + "{value}"
		}
	}

	return path
}
