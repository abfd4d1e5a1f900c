// Package main - точка входа для фоновых процессов (Worker) движка прогрессии.
//
// Worker отвечает за периодические задачи:
// - Генерация ежедневных челленджей
// - Пересчёт кеша рейтинга и публикация изменений рангов
// - Сверка сумм аккаунтов с ledger и починка расхождений
//
// Worker и API делят одну базу: API пишет транзакционно, Worker
// поддерживает вторичные представления (кеш рейтинга) и инварианты
// (total == сумма ledger) в актуальном состоянии.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Configuration
	"github.com/studyhub/progression-engine/config"

	// Application layer
	"github.com/studyhub/progression-engine/internal/application/command"
	"github.com/studyhub/progression-engine/internal/application/eventhandler"

	// Domain layer
	"github.com/studyhub/progression-engine/internal/domain/progression"

	// Infrastructure layer
	"github.com/studyhub/progression-engine/internal/infrastructure/messaging"
	"github.com/studyhub/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/studyhub/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/studyhub/progression-engine/internal/infrastructure/scheduler"
	"github.com/studyhub/progression-engine/internal/infrastructure/scheduler/jobs"

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
	log.Info("starting progression engine worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler is disabled, worker has nothing to do")
		return nil
	}

	// Логгер application-слоя (command handlers).
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

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// Миграции прогоняет API при старте; Worker только проверяет статус.
	migrator := postgres.NewMigrator(dbConn)
	if status, err := migrator.Status(ctx); err == nil {
		pending := 0
		for _, m := range status {
			if !m.IsApplied {
				pending++
			}
		}
		if pending > 0 {
			log.Warn("database has pending migrations", "pending", pending)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var leaderboardCache progression.LeaderboardCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCache, err = redis.NewCache(buildRedisConfig(cfg.Redis))
		if err != nil {
			log.Warn("failed to connect to Redis, leaderboard rebuild disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			leaderboardCache = redis.NewLeaderboardCache(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	accountRepo := postgres.NewAccountRepository(dbConn)
	ledgerRepo := postgres.NewLedgerRepository(dbConn)
	challengeRepo := postgres.NewChallengeRepository(dbConn)
	store := postgres.NewStore(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ EVENT BUS И EVENT HANDLERS
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

	// Job сверки публикует события расхождений, job пересчёта рейтинга -
	// события изменения рангов. Оба потребителя живут здесь же.
	dispatcherConfig := messaging.DefaultDispatcherConfig(eventBus)
	dispatcherConfig.Logger = log
	dispatcher := messaging.NewDispatcher(dispatcherConfig)

	driftHandler := eventhandler.NewOnLedgerDriftHandler(
		log, eventhandler.DefaultLedgerDriftConfig())
	if err := dispatcher.Register(driftHandler.EventType(), "on_ledger_drift", driftHandler.Handle); err != nil {
		return fmt.Errorf("failed to register ledger drift handler: %w", err)
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
	// 7. ИНИЦИАЛИЗАЦИЯ JOBS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing background jobs...")

	curve := progression.ExponentialCurve{
		Base:     cfg.Engine.CurveBase,
		Exponent: cfg.Engine.CurveExponent,
	}

	generateChallengesCmd := command.NewGenerateChallengesHandler(challengeRepo, eventBus, appLog)
	challengesJob := jobs.NewGenerateChallengesJob(generateChallengesCmd, log)
	if redisCache != nil {
		// Несколько реплик Worker-а не должны генерировать кохорту
		// одновременно.
		challengesJob = challengesJob.WithLock(
			redis.NewDistributedLock(redisCache, "generate_challenges", 2*time.Minute))
	}

	reconcileConfig := jobs.DefaultReconcileLedgerConfig()
	reconcileConfig.Repair = cfg.Engine.ReconcileRepair
	if cfg.Scheduler.JobTimeout > 0 {
		reconcileConfig.Timeout = cfg.Scheduler.JobTimeout
	}
	// Прогон сверки по всей базе публикует события расхождений пачкой;
	// буферизация сглаживает этот всплеск для подписчиков.
	driftBus := messaging.NewBufferedEventBus(messaging.BufferedEventBusConfig{
		Inner:         eventBus,
		BufferSize:    50,
		FlushInterval: 5 * time.Second,
		Logger:        log,
	})
	defer func() {
		_ = driftBus.Close()
	}()
	reconcileJob := jobs.NewReconcileLedgerJob(
		accountRepo, ledgerRepo, store, curve, driftBus, log, reconcileConfig)

	var rebuildJob *jobs.RebuildLeaderboardJob
	if leaderboardCache != nil {
		rebuildConfig := jobs.DefaultRebuildLeaderboardConfig()
		rebuildConfig.TopLimit = cfg.Engine.LeaderboardTopLimit
		if cfg.Scheduler.JobTimeout > 0 {
			rebuildConfig.Timeout = cfg.Scheduler.JobTimeout
		}
		rebuildJob = jobs.NewRebuildLeaderboardJob(
			accountRepo, leaderboardCache, eventBus, log, rebuildConfig)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ИНИЦИАЛИЗАЦИЯ SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing scheduler...")

	schedConfig := scheduler.DefaultSchedulerConfig()
	schedConfig.Logger = log
	schedConfig.Timezone = cfg.App.Location
	sched := scheduler.NewScheduler(schedConfig)

	// Челленджи генерируются раз в сутки, сразу после границы дня.
	challengeCron, err := scheduler.ParseCronExpression(fmt.Sprintf("%d %d * * *",
		cfg.Scheduler.ChallengeGenerationMinute, cfg.Scheduler.ChallengeGenerationHour))
	if err != nil {
		return fmt.Errorf("invalid challenge generation schedule: %w", err)
	}
	if err := sched.Register(challengesJob, challengeCron); err != nil {
		return fmt.Errorf("failed to register challenges job: %w", err)
	}

	if err := sched.Register(reconcileJob,
		scheduler.NewIntervalSchedule(cfg.Scheduler.ReconcileLedgerInterval)); err != nil {
		return fmt.Errorf("failed to register reconcile job: %w", err)
	}

	if rebuildJob != nil {
		if err := sched.Register(rebuildJob,
			scheduler.NewIntervalSchedule(cfg.Scheduler.RebuildLeaderboardInterval)); err != nil {
			return fmt.Errorf("failed to register rebuild job: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	log.Info("progression engine worker is running",
		"challenge_schedule", challengeCron.String(),
		"reconcile_interval", cfg.Scheduler.ReconcileLedgerInterval.String(),
		"leaderboard_rebuild", rebuildJob != nil,
	)

	// Ожидаем сигнал завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	// Начинаем graceful shutdown
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", "error", err)
	}

	// Event bus, Redis и база данных закроются через defer

	log.Info("shutdown completed successfully")
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
