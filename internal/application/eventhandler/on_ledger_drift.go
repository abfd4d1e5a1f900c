package eventhandler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON LEDGER DRIFT HANDLER
// Обрабатывает событие расхождения между кешированной суммой очков
// аккаунта и суммой записей ledger.
//
// Единичное расхождение — ожидаемый артефакт прерванной транзакции,
// его чинит job сверки. Серия расхождений за короткое окно — признак
// бага в командном пути, и её нужно эскалировать.
// ═══════════════════════════════════════════════════════════════════════════

// OnLedgerDriftHandler обрабатывает событие расхождения ledger.
type OnLedgerDriftHandler struct {
	logger *slog.Logger
	config LedgerDriftConfig

	mu         sync.Mutex
	driftTimes []time.Time
}

// LedgerDriftConfig содержит конфигурацию обработчика.
type LedgerDriftConfig struct {
	// EscalationThreshold — количество расхождений в окне,
	// после которого обработчик эскалирует до уровня Error.
	EscalationThreshold int

	// Window — окно подсчёта расхождений.
	Window time.Duration
}

// DefaultLedgerDriftConfig возвращает конфигурацию по умолчанию.
func DefaultLedgerDriftConfig() LedgerDriftConfig {
	return LedgerDriftConfig{
		EscalationThreshold: 5,
		Window:              time.Hour,
	}
}

// NewOnLedgerDriftHandler создаёт новый обработчик расхождений ledger.
func NewOnLedgerDriftHandler(logger *slog.Logger, config LedgerDriftConfig) *OnLedgerDriftHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &OnLedgerDriftHandler{
		logger: logger.With("handler", "on_ledger_drift"),
		config: config,
	}
}

// Handle обрабатывает событие расхождения.
func (h *OnLedgerDriftHandler) Handle(event shared.Event) error {
	driftEvent, ok := event.(shared.LedgerDriftDetectedEvent)
	if !ok {
		h.logger.Warn("received non-LedgerDriftDetectedEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	recentCount := h.recordDrift(time.Now())

	h.logger.Warn("ledger drift detected",
		"user_id", driftEvent.UserID,
		"cached_total", driftEvent.CachedTotal,
		"ledger_total", driftEvent.LedgerTotal,
		"delta", driftEvent.CachedTotal-driftEvent.LedgerTotal,
		"repaired", driftEvent.Repaired,
		"recent_drifts", recentCount,
	)

	if recentCount >= h.config.EscalationThreshold {
		h.logger.Error("ledger drift rate exceeded threshold",
			"recent_drifts", recentCount,
			"threshold", h.config.EscalationThreshold,
			"window", h.config.Window.String(),
		)
	}

	return nil
}

// recordDrift регистрирует расхождение и возвращает количество
// расхождений внутри текущего окна.
func (h *OnLedgerDriftHandler) recordDrift(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := now.Add(-h.config.Window)
	kept := h.driftTimes[:0]
	for _, t := range h.driftTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	h.driftTimes = append(kept, now)

	return len(h.driftTimes)
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnLedgerDriftHandler) EventType() shared.EventType {
	return shared.EventLedgerDriftDetected
}
