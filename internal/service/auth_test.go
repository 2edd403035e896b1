package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/insurance-api/internal/dataset"
	"github.com/bigkaa/insurance-api/internal/domain/model"
)

const testSecret = "test-secret"

// newTestAuth собирает AuthService поверх мока клиентов.
func newTestAuth(t *testing.T, clients map[string]model.Client) *AuthService {
	t.Helper()

	fetcher := &mockFetcher{
		collections: map[string]map[string]json.RawMessage{
			"clients": rawRecords(clients),
		},
	}
	decodeClient := func(raw json.RawMessage) (model.Client, error) {
		var c model.Client
		return c, json.Unmarshal(raw, &c)
	}
	cache := dataset.NewCache("clients", fetcher, decodeClient, testLogger())

	return NewAuthService(cache, testSecret, 24*time.Hour, testLogger())
}

// TestAuthService_Login_RoundTrip проверяет выпуск токена и его
// верификацию: claims равны {id, email, role} клиента.
func TestAuthService_Login_RoundTrip(t *testing.T) {
	svc := newTestAuth(t, testClients())

	token, err := svc.Login(context.Background(), "a@x.com", "c1")
	if err != nil {
		t.Fatalf("Login ошибка: %v", err)
	}
	if token == "" {
		t.Fatal("пустой токен")
	}

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		t.Fatalf("верификация токена: %v", err)
	}
	if !parsed.Valid {
		t.Fatal("токен невалиден")
	}

	if claims.UserID != "c1" {
		t.Errorf("id = %q, ожидался c1", claims.UserID)
	}
	if claims.Email != "a@x.com" {
		t.Errorf("email = %q, ожидался a@x.com", claims.Email)
	}
	if claims.Role != "admin" {
		t.Errorf("role = %q, ожидался admin", claims.Role)
	}

	// Срок жизни — 24 часа от выпуска
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl < 23*time.Hour || ttl > 24*time.Hour {
		t.Errorf("срок жизни токена = %v, ожидалось ~24h", ttl)
	}
	if claims.ID == "" {
		t.Error("пустой jti")
	}
}

// TestAuthService_Login_Errors проверяет варианты отказа.
func TestAuthService_Login_Errors(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{name: "нет email", email: "", password: "c1", want: ErrMissingCredentials},
		{name: "нет пароля", email: "a@x.com", password: "", want: ErrMissingCredentials},
		{name: "неизвестный email", email: "ghost@x.com", password: "c1", want: ErrUnknownPrincipal},
		{name: "email чувствителен к регистру", email: "A@X.COM", password: "c1", want: ErrUnknownPrincipal},
		{name: "неверный пароль", email: "a@x.com", password: "wrong", want: ErrInvalidCredentials},
	}

	svc := newTestAuth(t, testClients())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.email, tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("ошибка = %v, ожидалась %v", err, tt.want)
			}
		})
	}
}

// TestAuthService_Login_UpstreamError проверяет проброс ошибки источника.
func TestAuthService_Login_UpstreamError(t *testing.T) {
	fetcher := &mockFetcher{err: errors.New("источник недоступен")}
	decodeClient := func(raw json.RawMessage) (model.Client, error) {
		var c model.Client
		return c, json.Unmarshal(raw, &c)
	}
	cache := dataset.NewCache("clients", fetcher, decodeClient, testLogger())
	svc := NewAuthService(cache, testSecret, 24*time.Hour, testLogger())

	if _, err := svc.Login(context.Background(), "a@x.com", "c1"); err == nil {
		t.Fatal("ожидалась ошибка источника")
	}
}
