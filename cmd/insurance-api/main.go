// main.go — точка входа Insurance API.
// Сборка компонентов: config → logger → upstream → кэши датасетов →
// сервисы → middleware → HTTP-сервер.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/bigkaa/insurance-api/internal/api/handlers"
	"github.com/bigkaa/insurance-api/internal/api/middleware"
	"github.com/bigkaa/insurance-api/internal/config"
	"github.com/bigkaa/insurance-api/internal/dataset"
	"github.com/bigkaa/insurance-api/internal/domain/model"
	"github.com/bigkaa/insurance-api/internal/server"
	"github.com/bigkaa/insurance-api/internal/service"
	"github.com/bigkaa/insurance-api/internal/upstream"
	"github.com/bigkaa/insurance-api/internal/validate"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Insurance API запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Клиент восходящих источников данных
	upstreamClient, err := upstream.New(
		cfg.ClientsURL,
		cfg.PoliciesURL,
		cfg.UpstreamCACert,
		cfg.UpstreamTimeout,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания upstream-клиента", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Валидатор схем и кэши датасетов
	vd := validate.New()
	clientsCache := dataset.NewCache[model.Client]("clients", upstreamClient, vd.Client, logger)
	policiesCache := dataset.NewCache[model.Policy]("policies", upstreamClient, vd.Policy, logger)

	// 5. Сервисы
	authSvc := service.NewAuthService(clientsCache, cfg.JWTSecret, cfg.TokenTTL, logger)
	lookupSvc := service.NewLookupService(clientsCache, policiesCache, cfg.CacheCooldown, logger)

	// 5.1 topologymetrics — мониторинг восходящих источников
	ctx := context.Background()
	dephealthSvc, dephealthErr := service.NewDephealthService(
		config.ServiceName,
		cfg.DephealthGroup,
		cfg.ClientsURL,
		cfg.PoliciesURL,
		cfg.DephealthCheckInterval,
		cfg.DephealthIsEntry,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Не удалось запустить мониторинг зависимостей",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("Мониторинг зависимостей запущен",
				slog.String("group", cfg.DephealthGroup),
			)
		}
	}

	// 6. Health handler с readiness-проверками источников
	healthHandler := handlers.NewHealthHandler(
		upstream.NewCollectionChecker(cfg.ClientsURL, "clients", cfg.ReadinessTimeout),
		upstream.NewCollectionChecker(cfg.PoliciesURL, "policies", cfg.ReadinessTimeout),
	)

	// 7. API handler
	apiHandler := handlers.NewAPIHandler(authSvc, lookupSvc, healthHandler, logger)

	// 8. JWT middleware
	jwtAuth := middleware.NewJWTAuth(
		cfg.JWTSecret,
		cfg.JWTLeeway,
		cfg.AuthCacheSize,
		cfg.AuthCacheTTL,
		logger,
	)

	// 9. HTTP-сервер: metrics и logging middleware — на всех маршрутах
	srv := server.New(cfg, logger, apiHandler, jwtAuth,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	// 10. Запуск сервера (блокирующий вызов с graceful shutdown)
	runErr := srv.Run()

	if dephealthSvc != nil && dephealthErr == nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}

	logger.Info("Insurance API остановлен")
}
