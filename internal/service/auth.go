// auth.go — выпуск подписанных identity-токенов.
// Принципалы — записи датасета "clients": email служит логином,
// а паролем — собственный id клиента. Схема унаследована от источника
// как placeholder; реальная система должна использовать отдельное
// хранилище учётных данных с солёными хэшами.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/insurance-api/internal/dataset"
	"github.com/bigkaa/insurance-api/internal/domain/model"
)

// Ошибки аутентификации. Все терминальны для текущего запроса.
var (
	// ErrMissingCredentials — email или пароль не переданы.
	ErrMissingCredentials = errors.New("email и пароль обязательны")
	// ErrUnknownPrincipal — клиент с таким email не найден.
	ErrUnknownPrincipal = errors.New("клиент с указанным email не найден")
	// ErrInvalidCredentials — пароль не совпал.
	ErrInvalidCredentials = errors.New("неверный пароль")
)

// Prometheus-метрики логина.
var loginTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ins_login_total",
	Help: "Количество попыток логина по исходам.",
}, []string{"outcome"})

// tokenClaims — claims выпускаемого токена: {id, email, role} + registered.
type tokenClaims struct {
	jwt.RegisteredClaims
	// UserID — id клиента
	UserID string `json:"id"`
	// Email — email клиента
	Email string `json:"email"`
	// Role — роль клиента (admin/user)
	Role string `json:"role"`
}

// AuthService — выпуск identity-токенов по снапшоту клиентов.
type AuthService struct {
	clients *dataset.Cache[model.Client]
	secret  []byte
	// tokenTTL — срок жизни токена (по умолчанию 24h)
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
// secret — секрет подписи HS256 (INS_JWT_SECRET).
func NewAuthService(
	clients *dataset.Cache[model.Client],
	secret string,
	tokenTTL time.Duration,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		clients:  clients,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		logger:   logger.With(slog.String("component", "auth_service")),
	}
}

// Login аутентифицирует клиента и возвращает подписанный токен.
// Поиск по email — точное совпадение; паролем служит id клиента.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		loginTotal.WithLabelValues("missing_credentials").Inc()
		return "", ErrMissingCredentials
	}

	snap, err := s.clients.Get(ctx)
	if err != nil {
		loginTotal.WithLabelValues("upstream_error").Inc()
		return "", err
	}

	var client *model.Client
	for _, key := range sortedKeys(snap) {
		if snap[key].Email == email {
			c := snap[key]
			client = &c
			break
		}
	}
	if client == nil {
		loginTotal.WithLabelValues("unknown_principal").Inc()
		return "", ErrUnknownPrincipal
	}

	if password != client.ID {
		loginTotal.WithLabelValues("invalid_credentials").Inc()
		s.logger.Warn("Неверный пароль при логине", slog.String("email", email))
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
		UserID: client.ID,
		Email:  client.Email,
		Role:   client.Role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		loginTotal.WithLabelValues("sign_error").Inc()
		return "", fmt.Errorf("подпись токена: %w", err)
	}

	loginTotal.WithLabelValues("success").Inc()
	s.logger.Info("Токен выпущен",
		slog.String("client_id", client.ID),
		slog.String("role", client.Role),
	)

	return token, nil
}
