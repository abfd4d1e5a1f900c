// Package eventhandler содержит обработчики доменных событий.
// Эти обработчики реализуют event-driven архитектуру и связывают
// различные части системы через асинхронные события.
//
// Философия: обработчики событий — это "реактивная" часть системы.
// Они реагируют на изменения и запускают побочные эффекты,
// такие как прогрев кеша или журналирование заметных вех,
// не задерживая командный путь.
package eventhandler

import (
	"log/slog"

	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON RANK CHANGED HANDLER
// Обрабатывает событие изменения позиции пользователя в рейтинге.
//
// Рейтинг пересчитывается фоновым job-ом, поэтому событие приходит
// асинхронно относительно начисления очков. Обработчик фиксирует
// заметные перемещения и пересечения порогов топ-N — эти записи
// потребляет аналитика платформы.
// ═══════════════════════════════════════════════════════════════════════════

// OnRankChangedHandler обрабатывает событие изменения ранга пользователя.
type OnRankChangedHandler struct {
	logger *slog.Logger
	config RankChangedConfig
}

// RankChangedConfig содержит конфигурацию обработчика.
type RankChangedConfig struct {
	// MinRankChangeForLog — минимальное изменение ранга, которое
	// считается заметным. Шум в одну-две позиции не фиксируем.
	MinRankChangeForLog int

	// TopNMilestones — пороги топ-N, пересечение которых фиксируется
	// отдельной записью. Например: [10, 50, 100].
	TopNMilestones []int
}

// DefaultRankChangedConfig возвращает конфигурацию по умолчанию.
func DefaultRankChangedConfig() RankChangedConfig {
	return RankChangedConfig{
		MinRankChangeForLog: 3,
		TopNMilestones:      []int{10, 50, 100},
	}
}

// NewOnRankChangedHandler создаёт новый обработчик события изменения ранга.
func NewOnRankChangedHandler(logger *slog.Logger, config RankChangedConfig) *OnRankChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &OnRankChangedHandler{
		logger: logger.With("handler", "on_rank_changed"),
		config: config,
	}
}

// Handle обрабатывает событие изменения ранга.
func (h *OnRankChangedHandler) Handle(event shared.Event) error {
	rankEvent, ok := event.(shared.RankChangedEvent)
	if !ok {
		h.logger.Warn("received non-RankChangedEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	change := rankEvent.NewRank - rankEvent.OldRank
	absChange := change
	if absChange < 0 {
		absChange = -absChange
	}

	// Пересечения порогов топ-N фиксируем независимо от величины сдвига:
	// вход в топ-10 с позиции 11 — это сдвиг на одну позицию, но веха.
	h.checkTopNMilestones(rankEvent)

	if absChange < h.config.MinRankChangeForLog {
		return nil
	}

	if rankEvent.OldRank == 0 {
		h.logger.Info("user entered leaderboard",
			"user_id", rankEvent.UserID,
			"new_rank", rankEvent.NewRank,
		)
		return nil
	}

	if rankEvent.MovedUp() {
		h.logger.Info("user moved up in leaderboard",
			"user_id", rankEvent.UserID,
			"old_rank", rankEvent.OldRank,
			"new_rank", rankEvent.NewRank,
			"positions_gained", rankEvent.OldRank-rankEvent.NewRank,
		)
	} else if rankEvent.MovedDown() {
		h.logger.Info("user moved down in leaderboard",
			"user_id", rankEvent.UserID,
			"old_rank", rankEvent.OldRank,
			"new_rank", rankEvent.NewRank,
			"positions_lost", rankEvent.NewRank-rankEvent.OldRank,
		)
	}

	return nil
}

// checkTopNMilestones проверяет пересечение порогов топ-N.
// OldRank == 0 означает, что пользователь раньше не был в рейтинге.
func (h *OnRankChangedHandler) checkTopNMilestones(event shared.RankChangedEvent) {
	for _, milestone := range h.config.TopNMilestones {
		enteredTop := (event.OldRank == 0 || event.OldRank > milestone) && event.NewRank != 0 && event.NewRank <= milestone
		leftTop := event.OldRank != 0 && event.OldRank <= milestone && (event.NewRank == 0 || event.NewRank > milestone)

		if enteredTop {
			h.logger.Info("user entered top-N",
				"user_id", event.UserID,
				"top_n", milestone,
				"new_rank", event.NewRank,
			)
		}

		if leftTop {
			h.logger.Info("user left top-N",
				"user_id", event.UserID,
				"top_n", milestone,
				"new_rank", event.NewRank,
			)
		}
	}
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnRankChangedHandler) EventType() shared.EventType {
	return shared.EventRankChanged
}
