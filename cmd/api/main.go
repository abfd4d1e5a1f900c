// Package main - точка входа HTTP API сервиса прогрессии StudyHub.
//
// Сервис принимает события активности пользователей, начисляет очки,
// ведёт ledger, считает уровни, серии и достижения, и отдаёт снапшоты,
// рейтинг и ежедневные челленджи через REST API.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: чистая бизнес-логика без внешних зависимостей
// - Application: оркестрация use cases (Commands/Queries)
// - Infrastructure: PostgreSQL, Redis, event bus
// - Interface: HTTP endpoints
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	// Configuration
	"github.com/studyhub/progression-engine/config"

	// Application layer
	"github.com/studyhub/progression-engine/internal/application/command"
	"github.com/studyhub/progression-engine/internal/application/eventhandler"
	"github.com/studyhub/progression-engine/internal/application/query"

	// Domain layer
	"github.com/studyhub/progression-engine/internal/domain/achievement"
	"github.com/studyhub/progression-engine/internal/domain/progression"

	// Infrastructure layer
	"github.com/studyhub/progression-engine/internal/infrastructure/messaging"
	"github.com/studyhub/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/studyhub/progression-engine/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/studyhub/progression-engine/internal/interface/http"
	"github.com/studyhub/progression-engine/internal/interface/http/handlers"

	// Packages
	"github.com/studyhub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запускаем приложение
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting progression engine API",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	// Логгер application-слоя (command/query handlers).
	appLog := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	// Проверяем соединение
	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("running database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	status, err := migrator.Status(ctx)
	if err != nil {
		log.Warn("failed to get migration status", "error", err)
	} else {
		appliedCount := 0
		for _, m := range status {
			if m.IsApplied {
				appliedCount++
			}
		}
		log.Info("migrations completed", "applied", appliedCount, "total", len(status))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. СИД КАТАЛОГА ДОСТИЖЕНИЙ
	// ─────────────────────────────────────────────────────────────────────────
	// Стандартный каталог дозаполняется на старте; существующие записи
	// (в том числе правки администратора) не перезаписываются.
	achievementRepo := postgres.NewAchievementRepository(dbConn)
	seeded, err := achievement.SeedCatalog(ctx, achievementRepo)
	if err != nil {
		return fmt.Errorf("failed to seed achievement catalog: %w", err)
	}
	if seeded > 0 {
		log.Info("achievement catalog seeded", "created", seeded)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var leaderboardCache progression.LeaderboardCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCache, err = redis.NewCache(buildRedisConfig(cfg.Redis))
		if err != nil {
			// Кеш вторичен: рейтинг читается из Postgres, пока Redis недоступен.
			log.Warn("failed to connect to Redis, leaderboard cache disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			leaderboardCache = redis.NewLeaderboardCache(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	accountRepo := postgres.NewAccountRepository(dbConn)
	ledgerRepo := postgres.NewLedgerRepository(dbConn)
	challengeRepo := postgres.NewChallengeRepository(dbConn)
	store := postgres.NewStore(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ИНИЦИАЛИЗАЦИЯ EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = log
	eventBusConfig.AsyncMode = true
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ИНИЦИАЛИЗАЦИЯ APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")

	curve := progression.ExponentialCurve{
		Base:     cfg.Engine.CurveBase,
		Exponent: cfg.Engine.CurveExponent,
	}

	submitActivityCmd := command.NewSubmitActivityHandler(store, curve, eventBus, leaderboardCache, appLog)
	generateChallengesCmd := command.NewGenerateChallengesHandler(challengeRepo, eventBus, appLog)

	snapshotQuery := query.NewGetSnapshotHandler(accountRepo, ledgerRepo, achievementRepo, leaderboardCache, curve)
	if redisCache != nil {
		snapshotQuery = snapshotQuery.WithSnapshotCache(redis.NewSnapshotCache(redisCache))
	}
	leaderboardQuery := query.NewGetLeaderboardHandler(accountRepo, leaderboardCache)
	achievementsQuery := query.NewGetAchievementsHandler(achievementRepo, accountRepo, ledgerRepo)
	challengesQuery := query.NewGetDailyChallengesHandler(challengeRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. РЕГИСТРАЦИЯ EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("registering event handlers...")

	dispatcherConfig := messaging.DefaultDispatcherConfig(eventBus)
	dispatcherConfig.Logger = log
	dispatcher := messaging.NewDispatcher(dispatcherConfig)

	levelUpHandler := eventhandler.NewOnLevelUpHandler(
		accountRepo, leaderboardCache, log, eventhandler.DefaultLevelUpConfig())
	if err := dispatcher.Register(levelUpHandler.EventType(), "on_level_up", levelUpHandler.Handle); err != nil {
		return fmt.Errorf("failed to register level up handler: %w", err)
	}

	rankChangedHandler := eventhandler.NewOnRankChangedHandler(
		log, eventhandler.DefaultRankChangedConfig())
	if err := dispatcher.Register(rankChangedHandler.EventType(), "on_rank_changed", rankChangedHandler.Handle); err != nil {
		return fmt.Errorf("failed to register rank changed handler: %w", err)
	}

	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start event dispatcher: %w", err)
	}
	defer func() {
		_ = dispatcher.Stop()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 11. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("database", handlers.NewDatabaseCheck(dbConn))
	if redisCache != nil {
		healthChecker.AddCheck("cache", handlers.NewCacheCheck(redisCache))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. СОЗДАНИЕ HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.APIKeyHeader = cfg.HTTP.APIKeyHeader
	httpConfig.APIKeys = cfg.HTTP.APIKeys
	httpConfig.EnableMetrics = cfg.HTTP.EnableMetrics
	httpConfig.EnablePprof = cfg.HTTP.EnablePprof

	httpDeps := httpserver.Dependencies{
		SubmitActivityHandler:     submitActivityCmd,
		GenerateChallengesHandler: generateChallengesCmd,
		GetSnapshotHandler:        snapshotQuery,
		GetLeaderboardHandler:     leaderboardQuery,
		GetAchievementsHandler:    achievementsQuery,
		GetDailyChallengesHandler: challengesQuery,
		Logger:                    appLog,
		HealthChecker:             healthChecker,
	}

	httpServer := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 13. ЗАПУСК СЕРВИСОВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting services...")

	// Канал для ошибок
	errCh := make(chan error, 1)

	// Запускаем HTTP сервер
	go func() {
		log.Info("starting HTTP server", "address", httpServer.Address())
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 14. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("progression engine API is running",
		"http_address", httpServer.Address(),
		"redis_enabled", redisCache != nil,
	)

	// Ожидаем сигнал завершения или ошибку
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	}

	// Начинаем graceful shutdown
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	// 1. Останавливаем HTTP сервер (перестаём принимать новые запросы)
	log.Info("stopping HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		shutdownErr = err
	}

	// 2. Event bus закроется через defer (дожидается async handlers)

	// 3. База данных и Redis закроются через defer

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseSlogLevel(cfg.Observability.LogLevel),
	}

	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		// JSON формат для production (лучше для агрегаторов логов)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		// Текстовый формат для development (лучше читается)
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

// parseSlogLevel переводит строковый уровень из конфигурации в slog.Level.
func parseSlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildRedisConfig собирает конфигурацию Redis-клиента из настроек приложения.
func buildRedisConfig(cfg config.RedisConfig) redis.Config {
	redisCfg := redis.DefaultConfig()
	if cfg.Host != "" {
		redisCfg.Host = cfg.Host
	}
	if cfg.Port != 0 {
		redisCfg.Port = cfg.Port
	}
	redisCfg.Password = cfg.Password
	redisCfg.DB = cfg.DB
	if cfg.PoolSize > 0 {
		redisCfg.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		redisCfg.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		redisCfg.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		redisCfg.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		redisCfg.WriteTimeout = cfg.WriteTimeout
	}
	return redisCfg
}
