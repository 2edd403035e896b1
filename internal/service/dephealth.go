// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Insurance API мониторит два восходящих endpoint'а датасетов:
//   - clients-source — HTTP checker к URL коллекции clients (critical)
//   - policies-source — HTTP checker к URL коллекции policies (critical)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
//
// Параметры:
//   - serviceID — имя вершины графа текущего приложения (e.g. "insurance-api")
//   - group — имя группы в метриках (INS_DEPHEALTH_GROUP)
//   - clientsURL, policiesURL — URL восходящих коллекций
//   - checkInterval — интервал проверки зависимостей (INS_DEPHEALTH_CHECK_INTERVAL)
//   - isEntry — при true добавляет лейбл isentry=yes ко всем зависимостям (DEPHEALTH_ISENTRY)
func NewDephealthService(
	serviceID string,
	group string,
	clientsURL string,
	policiesURL string,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, clientsURL, policiesURL, checkInterval, isEntry, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	clientsURL string,
	policiesURL string,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, clientsURL, policiesURL, checkInterval, isEntry,
		logger, dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(
	serviceID string,
	group string,
	clientsURL string,
	policiesURL string,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	opts := make([]dephealth.Option, 0, 3+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.HTTP("clients-source", sourceDepOpts(clientsURL, checkInterval, isEntry)...),
		dephealth.HTTP("policies-source", sourceDepOpts(policiesURL, checkInterval, isEntry)...),
	)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// sourceDepOpts — опции зависимости одного восходящего endpoint'а.
// Probe path — путь самой коллекции: отдельного health endpoint у источника нет.
func sourceDepOpts(sourceURL string, checkInterval time.Duration, isEntry bool) []dephealth.DependencyOption {
	depOpts := []dephealth.DependencyOption{
		dephealth.FromURL(sourceURL),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(true),
	}
	if parsed, err := url.Parse(sourceURL); err == nil && parsed.Path != "" {
		depOpts = append(depOpts, dephealth.WithHTTPHealthPath(parsed.Path))
	}
	if isEntry {
		depOpts = append(depOpts, dephealth.WithLabel("isentry", "yes"))
	}
	return depOpts
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (clients-source + policies-source)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
