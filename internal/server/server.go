// Пакет server — HTTP-сервер Insurance API с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/insurance-api/internal/api/handlers"
	"github.com/bigkaa/insurance-api/internal/api/middleware"
	"github.com/bigkaa/insurance-api/internal/config"
	"github.com/bigkaa/insurance-api/internal/domain/model"
)

// Server — HTTP-сервер Insurance API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// handler — API-обработчики, jwtAuth — middleware аутентификации.
// commonMiddlewares (metrics, logging) применяются ко всем маршрутам
// в порядке переданного среза.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	handler *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	commonMiddlewares ...func(http.Handler) http.Handler,
) *Server {
	router := chi.NewRouter()

	for _, mw := range commonMiddlewares {
		router.Use(mw)
	}

	registerRoutes(router, handler, jwtAuth)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// registerRoutes регистрирует маршруты Insurance API.
// Открытые: login, health, metrics. Остальные — за JWT middleware,
// с RBAC-группами: клиенты — user|admin, полисы — только admin.
func registerRoutes(router chi.Router, handler *handlers.APIHandler, jwtAuth *middleware.JWTAuth) {
	// Открытые endpoints
	router.Post("/login", handler.Login)
	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Get("/metrics", handler.GetMetrics)

	// Защищённые endpoints
	router.Group(func(r chi.Router) {
		r.Use(jwtAuth.Middleware())

		// Поиск клиентов: роли user и admin.
		// /users — исторический алиас /clients.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleUser, model.RoleAdmin))

			for _, prefix := range []string{"/clients", "/users"} {
				r.Get(prefix+"/name/{value}", handler.GetClientByName)
				r.Get(prefix+"/id/{value}", handler.GetClientByID)
				r.Get(prefix+"/email/{value}", handler.GetClientByEmail)
				r.Get(prefix+"/role/{value}", handler.GetClientsByRole)
			}
		})

		// Cross-entity запросы по полисам: только admin.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))

			r.Get("/policies/by_policy/{value}", handler.GetClientByPolicy)
			r.Get("/policies/by_client_name/{value}", handler.GetPoliciesByClientName)
		})
	})
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
