package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/insurance-api/internal/domain/model"
)

// testLogger — логгер для тестов (только ошибки).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockFetcher — мок Fetcher для unit-тестов.
type mockFetcher struct {
	fetchFn func(ctx context.Context, name string) (map[string]json.RawMessage, error)
}

func (m *mockFetcher) FetchCollection(ctx context.Context, name string) (map[string]json.RawMessage, error) {
	return m.fetchFn(ctx, name)
}

// decodeClient — декодер записей клиентов для тестов (без полной валидации).
func decodeClient(raw json.RawMessage) (model.Client, error) {
	var c model.Client
	if err := json.Unmarshal(raw, &c); err != nil {
		return model.Client{}, err
	}
	if c.ID == "" {
		return model.Client{}, errors.New("пустой id")
	}
	return c, nil
}

// clientsPayload — две записи клиентов.
func clientsPayload() map[string]json.RawMessage {
	return map[string]json.RawMessage{
		"0": json.RawMessage(`{"id":"c1","name":"Alice","email":"a@x.com","role":"admin"}`),
		"1": json.RawMessage(`{"id":"c2","name":"Bob","email":"b@x.com","role":"user"}`),
	}
}

// TestCache_GetMissThenHit проверяет: первый Get — fetch, второй — из кэша.
func TestCache_GetMissThenHit(t *testing.T) {
	var calls atomic.Int32
	fetcher := &mockFetcher{
		fetchFn: func(_ context.Context, name string) (map[string]json.RawMessage, error) {
			if name != "clients" {
				t.Errorf("датасет = %q, ожидался clients", name)
			}
			calls.Add(1)
			return clientsPayload(), nil
		},
	}

	cache := NewCache("clients", fetcher, decodeClient, testLogger())

	snap, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if len(snap) != 2 {
		t.Errorf("записей = %d, ожидалось 2", len(snap))
	}
	if snap["0"].Name != "Alice" {
		t.Errorf("Name = %q, ожидалась Alice", snap["0"].Name)
	}

	// Повторный Get — из кэша, fetch не вызывается
	snap2, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("Get (hit) ошибка: %v", err)
	}
	if len(snap2) != 2 {
		t.Errorf("записей = %d, ожидалось 2", len(snap2))
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fetch вызван %d раз, ожидался 1", got)
	}
}

// TestCache_SingleFlight проверяет: N конкурентных Get во время промаха
// инициируют ровно один fetch, и все получают один результат.
func TestCache_SingleFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	fetcher := &mockFetcher{
		fetchFn: func(context.Context, string) (map[string]json.RawMessage, error) {
			calls.Add(1)
			<-release // держим fetch, пока все читатели не подвиснут
			return clientsPayload(), nil
		},
	}

	cache := NewCache("clients", fetcher, decodeClient, testLogger())

	const n = 25
	var wg sync.WaitGroup
	errs := make([]error, n)
	snaps := make([]Snapshot[model.Client], n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snaps[i], errs[i] = cache.Get(context.Background())
		}(i)
	}

	// Даём читателям время попасть в single-flight, затем отпускаем fetch
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("fetch вызван %d раз, ожидался 1 (single-flight)", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Get[%d] ошибка: %v", i, errs[i])
		}
		if len(snaps[i]) != 2 {
			t.Errorf("Get[%d]: записей = %d, ожидалось 2", i, len(snaps[i]))
		}
	}
}

// TestCache_SchemaViolation проверяет: невалидная запись отбрасывает
// всю выборку, кэш остаётся пустым, следующий Get делает новый fetch.
func TestCache_SchemaViolation(t *testing.T) {
	var calls atomic.Int32
	fetcher := &mockFetcher{
		fetchFn: func(context.Context, string) (map[string]json.RawMessage, error) {
			if calls.Add(1) == 1 {
				// Первая выборка содержит запись без id
				return map[string]json.RawMessage{
					"0": json.RawMessage(`{"id":"c1","name":"Alice"}`),
					"1": json.RawMessage(`{"name":"NoID"}`),
				}, nil
			}
			return clientsPayload(), nil
		},
	}

	cache := NewCache("clients", fetcher, decodeClient, testLogger())

	_, err := cache.Get(context.Background())
	if err == nil {
		t.Fatal("ожидалась ошибка SchemaViolation")
	}
	var sverr *SchemaViolationError
	if !errors.As(err, &sverr) {
		t.Fatalf("ошибка = %v, ожидалась SchemaViolationError", err)
	}
	if sverr.Dataset != "clients" {
		t.Errorf("Dataset = %q, ожидался clients", sverr.Dataset)
	}
	if !cache.FetchedAt().IsZero() {
		t.Error("после SchemaViolation кэш должен остаться пустым")
	}

	// Следующий Get — новый fetch (негативного кэширования нет)
	snap, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("повторный Get ошибка: %v", err)
	}
	if len(snap) != 2 {
		t.Errorf("записей = %d, ожидалось 2", len(snap))
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fetch вызван %d раз, ожидалось 2", got)
	}
}

// TestCache_UpstreamError проверяет проброс ошибки источника всем ожидающим
// без кэширования неудачи.
func TestCache_UpstreamError(t *testing.T) {
	upstreamErr := errors.New("источник недоступен")
	var calls atomic.Int32
	fetcher := &mockFetcher{
		fetchFn: func(context.Context, string) (map[string]json.RawMessage, error) {
			if calls.Add(1) == 1 {
				return nil, upstreamErr
			}
			return clientsPayload(), nil
		},
	}

	cache := NewCache("clients", fetcher, decodeClient, testLogger())

	if _, err := cache.Get(context.Background()); !errors.Is(err, upstreamErr) {
		t.Fatalf("ошибка = %v, ожидалась ошибка источника", err)
	}

	// Следующий вызов ретраит с нуля
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("повторный Get ошибка: %v", err)
	}
}

// TestCache_Invalidate проверяет явную инвалидацию: следующий Get делает fetch.
func TestCache_Invalidate(t *testing.T) {
	var calls atomic.Int32
	fetcher := &mockFetcher{
		fetchFn: func(context.Context, string) (map[string]json.RawMessage, error) {
			calls.Add(1)
			return clientsPayload(), nil
		},
	}

	cache := NewCache("clients", fetcher, decodeClient, testLogger())

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	cache.Invalidate()
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get после Invalidate ошибка: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fetch вызван %d раз, ожидалось 2", got)
	}
}

// TestCache_ScheduleInvalidate проверяет отложенную инвалидацию
// и перевзвод таймера повторным вызовом.
func TestCache_ScheduleInvalidate(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(context.Context, string) (map[string]json.RawMessage, error) {
			return clientsPayload(), nil
		},
	}

	cache := NewCache("clients", fetcher, decodeClient, testLogger())
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}

	cache.ScheduleInvalidate(60 * time.Millisecond)

	// Перевзводим до срабатывания — снапшот должен пережить первый дедлайн
	time.Sleep(30 * time.Millisecond)
	cache.ScheduleInvalidate(60 * time.Millisecond)

	time.Sleep(40 * time.Millisecond) // 70ms от первого взвода, 40ms от второго
	if cache.FetchedAt().IsZero() {
		t.Fatal("снапшот инвалидирован до истечения перевзведённого cooldown")
	}

	time.Sleep(40 * time.Millisecond) // 80ms от второго взвода
	if !cache.FetchedAt().IsZero() {
		t.Fatal("снапшот не инвалидирован после истечения cooldown")
	}
}
