package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON LEVEL UP HANDLER
// Обрабатывает событие повышения уровня пользователя.
//
// Командный путь обновляет в кеше рейтинга только очки. Этот обработчик
// дотягивает в кеш новый уровень, чтобы строка рейтинга показывала
// актуальный титул, и фиксирует круглые уровни как вехи.
// ═══════════════════════════════════════════════════════════════════════════

// OnLevelUpHandler обрабатывает событие повышения уровня.
type OnLevelUpHandler struct {
	accounts progression.AccountRepository
	cache    progression.LeaderboardCache

	logger *slog.Logger
	config LevelUpConfig
}

// LevelUpConfig содержит конфигурацию обработчика.
type LevelUpConfig struct {
	// MilestoneLevels — уровни, достижение которых фиксируется как веха.
	MilestoneLevels []int

	// Timeout — ограничение на обращение к хранилищу и кешу.
	Timeout time.Duration
}

// DefaultLevelUpConfig возвращает конфигурацию по умолчанию.
func DefaultLevelUpConfig() LevelUpConfig {
	return LevelUpConfig{
		MilestoneLevels: []int{5, 10, 25, 50, 100},
		Timeout:         5 * time.Second,
	}
}

// NewOnLevelUpHandler создаёт новый обработчик события повышения уровня.
// cache может быть nil — тогда обработчик только журналирует вехи.
func NewOnLevelUpHandler(
	accounts progression.AccountRepository,
	cache progression.LeaderboardCache,
	logger *slog.Logger,
	config LevelUpConfig,
) *OnLevelUpHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &OnLevelUpHandler{
		accounts: accounts,
		cache:    cache,
		logger:   logger.With("handler", "on_level_up"),
		config:   config,
	}
}

// Handle обрабатывает событие повышения уровня.
func (h *OnLevelUpHandler) Handle(event shared.Event) error {
	levelEvent, ok := event.(shared.LevelUpEvent)
	if !ok {
		h.logger.Warn("received non-LevelUpEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing level up event",
		"user_id", levelEvent.UserID,
		"old_level", levelEvent.OldLevel,
		"new_level", levelEvent.NewLevel,
		"title", levelEvent.Title,
	)

	// 1. Обновляем уровень в кеше рейтинга.
	if h.cache != nil {
		account, err := h.accounts.Get(ctx, levelEvent.UserID)
		if err != nil {
			h.logger.Error("failed to get account",
				"user_id", levelEvent.UserID,
				"error", err,
			)
			return fmt.Errorf("get account: %w", err)
		}

		if err := h.cache.UpdateScore(ctx, levelEvent.UserID, account.TotalPoints, account.CurrentLevel); err != nil {
			// Кеш вторичен: при следующем полном пересчёте строка выровняется.
			h.logger.Warn("failed to refresh leaderboard cache",
				"user_id", levelEvent.UserID,
				"error", err,
			)
		}
	}

	// 2. Фиксируем круглые уровни.
	for _, milestone := range h.config.MilestoneLevels {
		if levelEvent.OldLevel < milestone && levelEvent.NewLevel >= milestone {
			h.logger.Info("user reached milestone level",
				"user_id", levelEvent.UserID,
				"milestone", milestone,
				"new_level", levelEvent.NewLevel,
				"title", levelEvent.Title,
			)
		}
	}

	return nil
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnLevelUpHandler) EventType() shared.EventType {
	return shared.EventLevelUp
}
