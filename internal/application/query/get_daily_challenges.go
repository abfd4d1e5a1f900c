package query

import (
	"context"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/challenge"
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DAILY CHALLENGES QUERY
// Возвращает челленджи на дату вместе с прогрессом пользователя.
// ══════════════════════════════════════════════════════════════════════════════

// GetDailyChallengesQuery содержит параметры запроса челленджей.
type GetDailyChallengesQuery struct {
	// UserID - идентификатор пользователя.
	UserID string

	// Date - дата челленджей (ноль = сегодня).
	Date time.Time
}

// Validate проверяет корректность параметров запроса.
func (q *GetDailyChallengesQuery) Validate() error {
	if q.UserID == "" {
		return shared.NewDomainError("query", "GetDailyChallenges", shared.ErrEmptyValue, "user id is required")
	}
	return nil
}

// ChallengeDTO - DTO челленджа с прогрессом пользователя.
type ChallengeDTO struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Type              string     `json:"type"`
	Difficulty        string     `json:"difficulty"`
	PointsReward      int        `json:"points_reward"`
	Completed         bool       `json:"completed"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CompletionPercent float64    `json:"completion_percent"`
}

// GetDailyChallengesResult содержит челленджи дня с прогрессом.
type GetDailyChallengesResult struct {
	Date           string         `json:"date"`
	Challenges     []ChallengeDTO `json:"challenges"`
	CompletedCount int            `json:"completed_count"`
}

// GetDailyChallengesHandler обрабатывает запросы челленджей дня.
type GetDailyChallengesHandler struct {
	challenges challenge.Repository
}

// NewGetDailyChallengesHandler создаёт новый обработчик.
func NewGetDailyChallengesHandler(challenges challenge.Repository) *GetDailyChallengesHandler {
	return &GetDailyChallengesHandler{challenges: challenges}
}

// Handle выполняет запрос челленджей дня.
func (h *GetDailyChallengesHandler) Handle(ctx context.Context, query GetDailyChallengesQuery) (*GetDailyChallengesResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	date := query.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	date = timeutil.StartOfDay(date)

	challenges, err := h.challenges.ActiveForDate(ctx, date)
	if err != nil {
		return nil, shared.WrapError("query", "GetDailyChallenges", shared.ErrStorage,
			"failed to load challenges", err)
	}

	progress, err := h.challenges.ProgressForDate(ctx, query.UserID, date)
	if err != nil {
		return nil, shared.WrapError("query", "GetDailyChallenges", shared.ErrStorage,
			"failed to load progress", err)
	}

	result := &GetDailyChallengesResult{
		Date:       timeutil.FormatDateStr(date),
		Challenges: make([]ChallengeDTO, 0, len(challenges)),
	}
	for _, c := range challenges {
		dto := ChallengeDTO{
			ID:           c.ID,
			Title:        c.Title,
			Description:  c.Description,
			Type:         string(c.Type),
			Difficulty:   c.Difficulty(),
			PointsReward: c.PointsReward,
		}
		if p, ok := progress[c.ID]; ok && p != nil {
			dto.Completed = p.Completed
			dto.CompletionPercent = p.CompletionPercent(c)
			if p.Completed {
				at := p.CompletedAt
				dto.CompletedAt = &at
				result.CompletedCount++
			}
		}
		result.Challenges = append(result.Challenges, dto)
	}

	return result, nil
}
