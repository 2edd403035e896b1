// auth.go — JWT middleware для аутентификации и авторизации Insurance API.
// Токены выпускает и проверяет сам сервис (HS256, общий секрет из
// конфигурации) — внешнего IdP и JWKS endpoint'а здесь нет.
// Проверенные claims кэшируются в expirable LRU: повторные запросы
// с тем же bearer-токеном не перепроверяют подпись до истечения TTL,
// срок жизни самого токена перепроверяется при каждом попадании.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/insurance-api/internal/api/errors"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — извлечённые claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// Prometheus-метрики кэша проверенных claims.
var (
	tokenCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ins_token_cache_hits_total",
		Help: "Количество попаданий в LRU-кэш проверенных claims.",
	})
	tokenCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ins_token_cache_misses_total",
		Help: "Количество промахов LRU-кэша проверенных claims.",
	})
)

// AuthClaims — проверенные claims identity-токена.
// Помещаются в контекст запроса для downstream handlers.
type AuthClaims struct {
	// Subject — id клиента (claim "id")
	Subject string
	// Email — email клиента
	Email string
	// Role — роль клиента (admin/user)
	Role string
	// ExpiresAt — срок жизни токена; перепроверяется при cache hit
	ExpiresAt time.Time
}

// HasRole проверяет, совпадает ли роль субъекта с указанной.
func (c *AuthClaims) HasRole(role string) bool {
	return c.Role == role
}

// HasAnyRole — чистая проверка принадлежности роли allow-list'у операции.
func (c *AuthClaims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// rawTokenClaims — raw claims выпущенного токена для парсинга.
type rawTokenClaims struct {
	jwt.RegisteredClaims
	// UserID — id клиента.
	UserID string `json:"id"`
	// Email — email клиента.
	Email string `json:"email"`
	// Role — роль клиента.
	Role string `json:"role"`
}

// JWTAuth — middleware для JWT-аутентификации по общему секрету.
type JWTAuth struct {
	secret []byte
	leeway time.Duration
	// cache — проверенные claims по строке токена
	cache  *expirable.LRU[string, *AuthClaims]
	logger *slog.Logger
}

// NewJWTAuth создаёт JWT middleware.
// secret — секрет подписи HS256 (INS_JWT_SECRET).
// leeway — допустимое отклонение времени при проверке JWT.
// cacheSize, cacheTTL — параметры LRU-кэша проверенных claims.
func NewJWTAuth(secret string, leeway time.Duration, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		secret: []byte(secret),
		leeway: leeway,
		cache:  expirable.NewLRU[string, *AuthClaims](cacheSize, nil, cacheTTL),
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует подпись (HS256) и срок жизни,
// помещает claims в контекст запроса.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем Bearer token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := parts[1]
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			claims, err := j.verify(r.Context(), tokenString)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// verify проверяет токен, используя LRU-кэш проверенных claims.
// Срок жизни токена проверяется и при попадании в кэш.
func (j *JWTAuth) verify(_ context.Context, tokenString string) (*AuthClaims, error) {
	if claims, ok := j.cache.Get(tokenString); ok {
		tokenCacheHitsTotal.Inc()
		if time.Now().After(claims.ExpiresAt.Add(j.leeway)) {
			j.cache.Remove(tokenString)
			return nil, jwt.ErrTokenExpired
		}
		return claims, nil
	}
	tokenCacheMissesTotal.Inc()

	raw := &rawTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, raw,
		func(*jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.leeway),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}

	claims := &AuthClaims{
		Subject:   raw.UserID,
		Email:     raw.Email,
		Role:      raw.Role,
		ExpiresAt: raw.ExpiresAt.Time,
	}
	j.cache.Add(tokenString, claims)
	return claims, nil
}

// --- RBAC middleware ---

// RequireRole возвращает middleware, пропускающий субъектов с одной
// из указанных ролей. Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}

			if !claims.HasAnyRole(roles...) {
				apierrors.Forbidden(w, "Недостаточно прав: требуется роль "+strings.Join(roles, " или "))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// SubjectFromContext извлекает id субъекта из контекста запроса.
// Возвращает пустую строку, если claims не найдены.
func SubjectFromContext(ctx context.Context) string {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	return claims.Subject
}
