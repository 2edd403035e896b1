// handler.go — основной обработчик API Insurance API.
// Объединяет health и бизнес-обработчики, делегируя запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/insurance-api/internal/api/errors"
	"github.com/bigkaa/insurance-api/internal/dataset"
	"github.com/bigkaa/insurance-api/internal/service"
	"github.com/bigkaa/insurance-api/internal/upstream"
)

// APIHandler — основной обработчик API Insurance API.
type APIHandler struct {
	auth   *service.AuthService
	lookup *service.LookupService
	health *HealthHandler
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	auth *service.AuthService,
	lookup *service.LookupService,
	health *HealthHandler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		auth:   auth,
		lookup: lookup,
		health: health,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeLookupError транслирует ошибку lookup-резолвера в HTTP-ответ.
// "Не найдено" → 404, нарушение схемы источника → 500 SCHEMA_VIOLATION,
// недоступность источника → 502, остальное → 500.
func (h *APIHandler) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrClientNotFound):
		apierrors.NotFound(w, "Клиент не найден")
	case errors.Is(err, service.ErrPolicyNotFound):
		apierrors.NotFound(w, "Полис не найден")
	case errors.Is(err, service.ErrNoPolicies):
		apierrors.NotFound(w, "Полисы клиента не найдены")
	default:
		h.writeSourceError(w, r, err)
	}
}

// writeSourceError транслирует сбои работы с источником данных.
func (h *APIHandler) writeSourceError(w http.ResponseWriter, r *http.Request, err error) {
	var schemaErr *dataset.SchemaViolationError
	switch {
	case errors.As(err, &schemaErr):
		h.logger.Error("Данные источника не прошли валидацию схемы",
			slog.String("path", r.URL.Path),
			slog.String("dataset", schemaErr.Dataset),
			slog.String("error", err.Error()),
		)
		apierrors.SchemaViolation(w, "Данные источника не прошли валидацию схемы")
	case errors.Is(err, upstream.ErrUnavailable):
		h.logger.Error("Источник данных недоступен",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.UpstreamUnavailable(w, "Источник данных недоступен")
	default:
		h.logger.Error("Внутренняя ошибка обработки запроса",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервиса")
	}
}
