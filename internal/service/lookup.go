// Пакет service — бизнес-логика Insurance API.
// lookup.go — резолвер lookup-запросов над снапшотами датасетов.
// Точечные запросы (id/name/email/role), cross-entity запросы
// (полис → клиент-владелец, клиент → его полисы).
//
// Резолвер читает уже полученные снапшоты и не мутирует кэш напрямую;
// после успешного ответа он лишь перевзводит cooldown-инвалидацию
// использованных снапшотов.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/insurance-api/internal/dataset"
	"github.com/bigkaa/insurance-api/internal/domain/model"
)

// Ошибки резолвера. "Не найдено" — ожидаемый исход, не сбой:
// наверх транслируется в 404 и не логируется как ошибка.
var (
	// ErrClientNotFound — клиент не найден.
	ErrClientNotFound = errors.New("клиент не найден")
	// ErrPolicyNotFound — полис не найден.
	ErrPolicyNotFound = errors.New("полис не найден")
	// ErrNoPolicies — у клиента нет полисов.
	ErrNoPolicies = errors.New("полисы клиента не найдены")
)

// Prometheus-метрики lookup-запросов.
var (
	lookupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ins_lookup_total",
		Help: "Общее количество lookup-запросов по операциям.",
	}, []string{"operation"})
	lookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ins_lookup_duration_seconds",
		Help:    "Длительность lookup-запросов (включая fetch при промахе кэша).",
		Buckets: prometheus.DefBuckets,
	})
)

// LookupService — резолвер lookup-запросов.
type LookupService struct {
	clients  *dataset.Cache[model.Client]
	policies *dataset.Cache[model.Policy]
	// cooldown — задержка инвалидации снапшота после успешного использования
	cooldown time.Duration
	logger   *slog.Logger
}

// NewLookupService создаёт резолвер.
// cooldown — INS_CACHE_COOLDOWN (по умолчанию 30s).
func NewLookupService(
	clients *dataset.Cache[model.Client],
	policies *dataset.Cache[model.Policy],
	cooldown time.Duration,
	logger *slog.Logger,
) *LookupService {
	return &LookupService{
		clients:  clients,
		policies: policies,
		cooldown: cooldown,
		logger:   logger.With(slog.String("component", "lookup_service")),
	}
}

// ClientByID возвращает клиента по id (без учёта регистра, первое совпадение).
func (s *LookupService) ClientByID(ctx context.Context, id string) (*model.Client, error) {
	return s.clientBy(ctx, "client_by_id", id, func(c model.Client) string { return c.ID })
}

// ClientByName возвращает клиента по имени (без учёта регистра, первое совпадение).
func (s *LookupService) ClientByName(ctx context.Context, name string) (*model.Client, error) {
	return s.clientBy(ctx, "client_by_name", name, func(c model.Client) string { return c.Name })
}

// ClientByEmail возвращает клиента по email (без учёта регистра, первое совпадение).
func (s *LookupService) ClientByEmail(ctx context.Context, email string) (*model.Client, error) {
	return s.clientBy(ctx, "client_by_email", email, func(c model.Client) string { return c.Email })
}

// ClientsByRole возвращает всех клиентов с указанной ролью.
// Пустой результат — ErrClientNotFound.
func (s *LookupService) ClientsByRole(ctx context.Context, role string) ([]model.Client, error) {
	start := time.Now()
	lookupTotal.WithLabelValues("clients_by_role").Inc()

	snap, err := s.clients.Get(ctx)
	if err != nil {
		return nil, err
	}

	var matched []model.Client
	for _, key := range sortedKeys(snap) {
		if strings.EqualFold(snap[key].Role, role) {
			matched = append(matched, snap[key])
		}
	}
	if len(matched) == 0 {
		return nil, ErrClientNotFound
	}

	s.served(start, s.clients.Name(), len(matched))
	s.clients.ScheduleInvalidate(s.cooldown)
	return matched, nil
}

// ClientByPolicy резолвит полис по id и возвращает клиента-владельца.
// Отсутствие полиса и отсутствие клиента сигнализируются независимо.
func (s *LookupService) ClientByPolicy(ctx context.Context, policyID string) (*model.Client, error) {
	start := time.Now()
	lookupTotal.WithLabelValues("client_by_policy").Inc()

	policies, err := s.policies.Get(ctx)
	if err != nil {
		return nil, err
	}
	policy, ok := findFirst(policies, policyID, func(p model.Policy) string { return p.ID })
	if !ok {
		return nil, ErrPolicyNotFound
	}

	clients, err := s.clients.Get(ctx)
	if err != nil {
		return nil, err
	}
	client, ok := findFirst(clients, policy.ClientID, func(c model.Client) string { return c.ID })
	if !ok {
		// Висячий clientId — штатный 404, не паника
		return nil, ErrClientNotFound
	}

	s.served(start, "policies+clients", 1)
	s.policies.ScheduleInvalidate(s.cooldown)
	s.clients.ScheduleInvalidate(s.cooldown)
	return &client, nil
}

// PoliciesByClientName резолвит клиента по имени и возвращает его полисы.
func (s *LookupService) PoliciesByClientName(ctx context.Context, name string) ([]model.Policy, error) {
	start := time.Now()
	lookupTotal.WithLabelValues("policies_by_client_name").Inc()

	clients, err := s.clients.Get(ctx)
	if err != nil {
		return nil, err
	}
	client, ok := findFirst(clients, name, func(c model.Client) string { return c.Name })
	if !ok {
		return nil, ErrClientNotFound
	}

	policies, err := s.policies.Get(ctx)
	if err != nil {
		return nil, err
	}

	var matched []model.Policy
	for _, key := range sortedKeys(policies) {
		if strings.EqualFold(policies[key].ClientID, client.ID) {
			matched = append(matched, policies[key])
		}
	}
	if len(matched) == 0 {
		return nil, ErrNoPolicies
	}

	s.served(start, "clients+policies", len(matched))
	s.clients.ScheduleInvalidate(s.cooldown)
	s.policies.ScheduleInvalidate(s.cooldown)
	return matched, nil
}

// clientBy — общий точечный запрос по полю клиента.
func (s *LookupService) clientBy(ctx context.Context, operation, value string, keyOf func(model.Client) string) (*model.Client, error) {
	start := time.Now()
	lookupTotal.WithLabelValues(operation).Inc()

	snap, err := s.clients.Get(ctx)
	if err != nil {
		return nil, err
	}

	client, ok := findFirst(snap, value, keyOf)
	if !ok {
		return nil, ErrClientNotFound
	}

	s.served(start, s.clients.Name(), 1)
	s.clients.ScheduleInvalidate(s.cooldown)
	return &client, nil
}

// served фиксирует метрики и debug-лог успешного запроса.
func (s *LookupService) served(start time.Time, datasets string, matched int) {
	duration := time.Since(start)
	lookupDuration.Observe(duration.Seconds())
	s.logger.Debug("Lookup выполнен",
		slog.String("datasets", datasets),
		slog.Int("matched", matched),
		slog.Duration("duration", duration),
	)
}

// findFirst возвращает первую запись снапшота, чьё ключевое поле равно value
// без учёта регистра. Ключи обходятся в отсортированном порядке, чтобы
// "первое совпадение" при дубликатах было детерминированным.
func findFirst[T any](snap dataset.Snapshot[T], value string, keyOf func(T) string) (T, bool) {
	for _, key := range sortedKeys(snap) {
		if strings.EqualFold(keyOf(snap[key]), value) {
			return snap[key], true
		}
	}
	var zero T
	return zero, false
}

// sortedKeys возвращает ключи снапшота в отсортированном порядке.
func sortedKeys[T any](snap dataset.Snapshot[T]) []string {
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
