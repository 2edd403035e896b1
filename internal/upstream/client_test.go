package upstream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

// testLogger — логгер для тестов (только ошибки).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestClient создаёт клиент, у которого обе коллекции указывают на srv.
func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(srv.URL+"/clients", srv.URL+"/policies", "", 2*time.Second, testLogger())
	if err != nil {
		t.Fatalf("New ошибка: %v", err)
	}
	return c
}

// TestClient_FetchCollection проверяет получение коллекции в форме
// { "<имя>": { "<ключ>": <запись> } }.
func TestClient_FetchCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/clients" {
			t.Errorf("путь = %q, ожидался /clients", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"clients":{"0":{"id":"c1","name":"A"},"1":{"id":"c2","name":"B"}}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	records, err := c.FetchCollection(context.Background(), "clients")
	if err != nil {
		t.Fatalf("FetchCollection ошибка: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("записей = %d, ожидалось 2", len(records))
	}
	if _, ok := records["0"]; !ok {
		t.Error("отсутствует запись с ключом \"0\"")
	}
}

// TestClient_FetchCollection_Non200 проверяет оборачивание ErrUnavailable
// при не-2xx статусе источника.
func TestClient_FetchCollection_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	_, err := c.FetchCollection(context.Background(), "policies")
	if err == nil {
		t.Fatal("ожидалась ошибка при статусе 502")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("ошибка = %v, ожидалась ErrUnavailable", err)
	}
}

// TestClient_FetchCollection_TransportError проверяет транспортную ошибку
// (сервер остановлен).
func TestClient_FetchCollection_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.FetchCollection(context.Background(), "clients")
	if err == nil {
		t.Fatal("ожидалась транспортная ошибка")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("ошибка = %v, ожидалась ErrUnavailable", err)
	}
}

// TestClient_FetchCollection_MissingKey проверяет ответ без ключа коллекции.
func TestClient_FetchCollection_MissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"unexpected":{}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	_, err := c.FetchCollection(context.Background(), "clients")
	if err == nil {
		t.Fatal("ожидалась ошибка при отсутствии ключа коллекции")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("ошибка = %v, ожидалась ErrUnavailable", err)
	}
}

// TestClient_FetchCollection_UnknownDataset проверяет запрос неизвестного имени.
func TestClient_FetchCollection_UnknownDataset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	c := newTestClient(t, srv)

	if _, err := c.FetchCollection(context.Background(), "unknown"); err == nil {
		t.Fatal("ожидалась ошибка для неизвестного датасета")
	}
}

// TestCollectionChecker_CheckReady проверяет readiness probe источника.
func TestCollectionChecker_CheckReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"clients":{}}`))
	}))
	defer srv.Close()

	checker := NewCollectionChecker(srv.URL, "clients", time.Second)
	status, _ := checker.CheckReady()
	if status != "ok" {
		t.Errorf("status = %q, ожидался ok", status)
	}

	// Ответ без коллекции — degraded
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer badSrv.Close()

	checker = NewCollectionChecker(badSrv.URL, "clients", time.Second)
	status, _ = checker.CheckReady()
	if status != "degraded" {
		t.Errorf("status = %q, ожидался degraded", status)
	}

	// Сервер остановлен — fail
	deadSrv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := deadSrv.URL
	deadSrv.Close()

	checker = NewCollectionChecker(deadURL, "clients", time.Second)
	status, _ = checker.CheckReady()
	if status != statusFail {
		t.Errorf("status = %q, ожидался fail", status)
	}
}
