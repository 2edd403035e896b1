// Пакет dataset — in-memory кэш снапшотов восходящих датасетов.
//
// Cache хранит одну именованную коллекцию в трёх состояниях:
// absent → in-flight → ready. Промах инициирует ровно один fetch
// независимо от числа конкурентных вызовов (single-flight):
// все ожидающие получают один результат или одну ошибку.
// Снапшот заменяется целиком, никогда не патчится по полям.
//
// Инвалидация — не TTL от момента создания, а cooldown после
// использования: резолвер перевзводит таймер после каждого
// успешного запроса (ScheduleInvalidate).
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

// Prometheus-метрики кэша датасетов.
var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ins_dataset_cache_hits_total",
		Help: "Количество попаданий в кэш снапшотов по датасетам.",
	}, []string{"dataset"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ins_dataset_cache_misses_total",
		Help: "Количество промахов кэша снапшотов по датасетам.",
	}, []string{"dataset"})
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ins_dataset_fetch_total",
		Help: "Количество fetch-циклов по датасетам и исходам.",
	}, []string{"dataset", "outcome"})
	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ins_dataset_fetch_duration_seconds",
		Help:    "Длительность fetch+validate циклов.",
		Buckets: prometheus.DefBuckets,
	}, []string{"dataset"})
)

// Snapshot — иммутабельный маппинг ключ записи → провалидированная запись.
// Производится атомарно одним fetch+validate циклом.
type Snapshot[T any] map[string]T

// DecodeFunc валидирует одну сырую запись и возвращает доменную модель.
type DecodeFunc[T any] func(raw json.RawMessage) (T, error)

// Fetcher — источник сырых коллекций (реализуется upstream.Client).
type Fetcher interface {
	FetchCollection(ctx context.Context, name string) (map[string]json.RawMessage, error)
}

// SchemaViolationError — хотя бы одна запись не прошла валидацию.
// Вся выборка отброшена, кэш остался пустым (all-or-nothing).
type SchemaViolationError struct {
	// Dataset — имя датасета
	Dataset string
	// Key — ключ невалидной записи
	Key string
	// Reason — ошибка валидации
	Reason error
}

// Error реализует error.
func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("датасет %s: невалидная запись %q: %v", e.Dataset, e.Key, e.Reason)
}

// Unwrap открывает причину для errors.Is/As.
func (e *SchemaViolationError) Unwrap() error { return e.Reason }

// Cache — кэш одного именованного датасета.
type Cache[T any] struct {
	name    string
	fetcher Fetcher
	decode  DecodeFunc[T]
	logger  *slog.Logger

	group singleflight.Group

	mu        sync.RWMutex
	snap      Snapshot[T]
	fetchedAt time.Time
	timer     *time.Timer
}

// NewCache создаёт кэш датасета с указанным именем.
func NewCache[T any](name string, fetcher Fetcher, decode DecodeFunc[T], logger *slog.Logger) *Cache[T] {
	return &Cache[T]{
		name:    name,
		fetcher: fetcher,
		decode:  decode,
		logger:  logger.With(slog.String("component", "dataset_cache"), slog.String("dataset", name)),
	}
}

// Name возвращает имя датасета.
func (c *Cache[T]) Name() string { return c.name }

// Get возвращает текущий снапшот, инициируя fetch+validate цикл при промахе.
// Конкурентные вызовы во время промаха разделяют один fetch (single-flight)
// и получают одинаковый результат или одинаковую ошибку.
func (c *Cache[T]) Get(ctx context.Context) (Snapshot[T], error) {
	c.mu.RLock()
	if c.snap != nil {
		snap := c.snap
		c.mu.RUnlock()
		cacheHitsTotal.WithLabelValues(c.name).Inc()
		return snap, nil
	}
	c.mu.RUnlock()

	cacheMissesTotal.WithLabelValues(c.name).Inc()

	v, err, _ := c.group.Do(c.name, func() (any, error) {
		// Повторная проверка: предыдущий flight мог уже заполнить кэш
		c.mu.RLock()
		snap := c.snap
		c.mu.RUnlock()
		if snap != nil {
			return snap, nil
		}

		// Fetch отвязан от контекста инициатора: результат разделяют
		// все ожидающие, отключение одного вызова не отменяет flight.
		return c.fetch(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.(Snapshot[T]), nil
}

// fetch выполняет один fetch+validate цикл.
// При ошибке валидации любой записи вся выборка отбрасывается,
// кэш остаётся пустым — негативного кэширования нет.
func (c *Cache[T]) fetch(ctx context.Context) (Snapshot[T], error) {
	start := time.Now()

	raw, err := c.fetcher.FetchCollection(ctx, c.name)
	if err != nil {
		fetchTotal.WithLabelValues(c.name, "upstream_error").Inc()
		c.logger.Error("Ошибка загрузки датасета", slog.String("error", err.Error()))
		return nil, err
	}

	snap := make(Snapshot[T], len(raw))
	for key, rec := range raw {
		val, err := c.decode(rec)
		if err != nil {
			fetchTotal.WithLabelValues(c.name, "schema_violation").Inc()
			verr := &SchemaViolationError{Dataset: c.name, Key: key, Reason: err}
			c.logger.Error("Ошибка валидации датасета", slog.String("error", verr.Error()))
			return nil, verr
		}
		snap[key] = val
	}

	c.mu.Lock()
	c.snap = snap
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	duration := time.Since(start)
	fetchTotal.WithLabelValues(c.name, "success").Inc()
	fetchDuration.WithLabelValues(c.name).Observe(duration.Seconds())

	c.logger.Info("Датасет загружен и провалидирован",
		slog.Int("records", len(snap)),
		slog.Duration("duration", duration),
	)

	return snap, nil
}

// Invalidate сбрасывает кэшированный снапшот.
// Следующий Get инициирует новый fetch+validate цикл.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap = nil
	c.fetchedAt = time.Time{}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// ScheduleInvalidate взводит отложенную инвалидацию через d.
// Повторный вызов перевзводит таймер: каждое успешное использование
// снапшота продлевает его жизнь ещё на d (post-use cooldown).
func (c *Cache[T]) ScheduleInvalidate(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(d, func() {
		c.Invalidate()
		c.logger.Debug("Снапшот инвалидирован по cooldown", slog.Duration("cooldown", d))
	})
}

// FetchedAt возвращает время создания текущего снапшота
// (нулевое время — снапшота нет).
func (c *Cache[T]) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}
