package progression

import (
	"time"

	"github.com/google/uuid"

	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// LedgerEntry - неизменяемая запись о начислении очков.
// Записи только добавляются; update/delete к ledger не выполняются никогда.
// Сумма pointsEarned по пользователю - источник истины для totalPoints.
type LedgerEntry struct {
	// ID - уникальный идентификатор записи.
	ID string

	// UserID - кому начислены очки.
	UserID string

	// ActivityType - тип активности.
	ActivityType ActivityType

	// PointsEarned - начислено очков (>= 0, никогда не отрицательное).
	PointsEarned int

	// Description - человекочитаемое описание.
	Description string

	// Metadata - полезная нагрузка события (сериализуется в jsonb).
	Metadata map[string]interface{}

	// CreatedAt - момент записи.
	CreatedAt time.Time
}

// NewLedgerEntry создаёт запись ledger для обработанного события.
func NewLedgerEntry(userID string, activityType ActivityType, points int, description string, metadata Metadata) (*LedgerEntry, error) {
	if points < 0 {
		return nil, shared.NewDomainError("progression", "NewLedgerEntry",
			shared.ErrNegativeValue, "ledger entry cannot carry negative points")
	}
	if description == "" {
		description = DefaultDescription(activityType, metadata)
	}
	var payload map[string]interface{}
	if metadata != nil {
		payload = metadata.Payload()
	}
	return &LedgerEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		ActivityType: activityType,
		PointsEarned: points,
		Description:  description,
		Metadata:     payload,
		CreatedAt:    time.Now().UTC(),
	}, nil
}
