// health.go — обработчики health endpoints Insurance API.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (источники clients и policies доступны)
// /metrics — Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/insurance-api/internal/config"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	clientsChecker  ReadinessChecker
	policiesChecker ReadinessChecker
	promHandler     http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// Checkers могут быть nil — readiness вернёт "fail" по соответствующей зависимости.
func NewHealthHandler(clientsChecker, policiesChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		clientsChecker:  clientsChecker,
		policiesChecker: policiesChecker,
		promHandler:     promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		ClientsSource  healthCheckResult `json:"clients_source"`
		PoliciesSource healthCheckResult `json:"policies_source"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   config.ServiceName,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady — readiness probe. Проверяет источники clients и policies.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   config.ServiceName,
	}

	resp.Checks.ClientsSource = runCheck(h.clientsChecker)
	resp.Checks.PoliciesSource = runCheck(h.policiesChecker)

	resp.Status = overallStatus(
		resp.Checks.ClientsSource.Status,
		resp.Checks.PoliciesSource.Status,
	)

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == statusFail {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// Константы статусов health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// runCheck выполняет проверку зависимости с защитой от nil-checker'а.
func runCheck(checker ReadinessChecker) healthCheckResult {
	if checker == nil {
		return healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}
	status, message := checker.CheckReady()
	return healthCheckResult{Status: status, Message: message}
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		switch s {
		case statusFail:
			return statusFail
		case statusDegraded:
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}
