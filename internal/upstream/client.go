// Пакет upstream — HTTP-клиент восходящего источника данных.
// Источник отдаёт две коллекции ("clients", "policies") в форме
// { "<имя>": { "<ключ>": <запись>, ... } }. Wire-формат записей
// для клиента непрозрачен — валидация выполняется выше (internal/validate).
package upstream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// ErrUnavailable — восходящий источник недоступен (транспортная ошибка
// или не-2xx ответ). Не ретраится автоматически: следующий внешний
// запрос инициирует новую попытку.
var ErrUnavailable = errors.New("восходящий источник недоступен")

// Client — HTTP-клиент восходящего источника.
type Client struct {
	httpClient *http.Client
	// urls — маппинг имени датасета в URL коллекции
	urls   map[string]string
	logger *slog.Logger
}

// New создаёт клиент восходящего источника.
// clientsURL, policiesURL — URL коллекций (из конфигурации).
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// timeout — таймаут HTTP-запросов (INS_UPSTREAM_TIMEOUT).
func New(clientsURL, policiesURL, caCertPath string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата источника: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат источника добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient: httpClient,
		urls: map[string]string{
			"clients":  clientsURL,
			"policies": policiesURL,
		},
		logger: logger.With(slog.String("component", "upstream_client")),
	}, nil
}

// FetchCollection запрашивает коллекцию с указанным именем.
// Возвращает маппинг ключ записи → сырая запись.
// Транспортные ошибки и не-2xx статусы оборачивают ErrUnavailable.
func (c *Client) FetchCollection(ctx context.Context, name string) (map[string]json.RawMessage, error) {
	reqURL, ok := c.urls[name]
	if !ok {
		return nil, fmt.Errorf("неизвестный датасет %q", name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса коллекции %s: %w", name, err)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("запрос коллекции %s: %w: %w", name, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("источник вернул статус %d для коллекции %s: %s: %w",
			resp.StatusCode, name, string(body), ErrUnavailable)
	}

	// Полезная нагрузка: { "<имя>": { "<ключ>": <запись> } }
	var payload map[string]map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("декодирование коллекции %s: %w: %w", name, ErrUnavailable, err)
	}

	records, ok := payload[name]
	if !ok {
		return nil, fmt.Errorf("в ответе источника нет ключа %q: %w", name, ErrUnavailable)
	}

	c.logger.Debug("Коллекция получена от источника",
		slog.String("dataset", name),
		slog.Int("records", len(records)),
	)

	return records, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// --- ReadinessChecker для восходящего источника ---

const statusFail = "fail"

// CollectionChecker — проверка доступности одной коллекции источника.
// Используется в /health/ready.
type CollectionChecker struct {
	url    string
	name   string
	client *http.Client
}

// NewCollectionChecker создаёт checker доступности коллекции.
func NewCollectionChecker(collectionURL, name string, readinessTimeout time.Duration) *CollectionChecker {
	return &CollectionChecker{
		url:    collectionURL,
		name:   name,
		client: &http.Client{Timeout: readinessTimeout},
	}
}

// CheckReady выполняет GET коллекции и проверяет форму ответа.
func (cc *CollectionChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, cc.url, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := cc.client.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return statusFail, fmt.Sprintf("источник %s недоступен: %v", cc.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("источник %s вернул статус %d", cc.name, resp.StatusCode)
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "degraded", fmt.Sprintf("источник %s: невалидный JSON: %v", cc.name, err)
	}
	if _, ok := payload[cc.name]; !ok {
		return "degraded", fmt.Sprintf("источник %s: в ответе нет коллекции", cc.name)
	}

	return "ok", fmt.Sprintf("коллекция %s доступна", cc.name)
}
