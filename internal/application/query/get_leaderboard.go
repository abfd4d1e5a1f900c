// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Получает топ-N пользователей по суммарным очкам. Сначала пробует
// Redis-кеш; при промахе или ошибке падает на PostgreSQL.
// Порядок: total_points DESC, current_level DESC.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса лидерборда.
type GetLeaderboardQuery struct {
	// Limit - количество записей (по умолчанию 20, максимум 100).
	Limit int

	// Offset - смещение для пагинации.
	Offset int
}

// Validate проверяет корректность параметров запроса.
func (q *GetLeaderboardQuery) Validate() error {
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		return errors.New("offset cannot be negative")
	}
	return nil
}

// LeaderboardEntryDTO - DTO для записи лидерборда (Data Transfer Object).
type LeaderboardEntryDTO struct {
	// Rank - позиция в рейтинге (начиная с 1).
	Rank int `json:"rank"`

	// UserID - идентификатор пользователя.
	UserID string `json:"user_id"`

	// TotalPoints - суммарные очки за всё время.
	TotalPoints int `json:"total_points"`

	// Level - текущий уровень.
	Level int `json:"level"`

	// LevelTitle - название уровня.
	LevelTitle string `json:"level_title"`
}

// GetLeaderboardResult содержит результат запроса лидерборда.
type GetLeaderboardResult struct {
	// Entries - записи лидерборда.
	Entries []LeaderboardEntryDTO `json:"entries"`

	// TotalCount - общее количество пользователей с аккаунтом.
	TotalCount int `json:"total_count"`

	// FromCache - получен ли результат из кеша.
	FromCache bool `json:"from_cache"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`

	// HasMore - есть ли ещё записи после текущей страницы.
	HasMore bool `json:"has_more"`
}

// GetLeaderboardHandler обрабатывает запросы на получение лидерборда.
type GetLeaderboardHandler struct {
	accounts progression.AccountRepository
	cache    progression.LeaderboardCache
}

// NewGetLeaderboardHandler создаёт новый обработчик запроса лидерборда.
func NewGetLeaderboardHandler(
	accounts progression.AccountRepository,
	cache progression.LeaderboardCache,
) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{
		accounts: accounts,
		cache:    cache,
	}
}

// Handle выполняет запрос на получение лидерборда.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, query GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrValidation, err.Error(), err)
	}

	totalCount, err := h.accounts.Count(ctx)
	if err != nil {
		totalCount = 0
	}

	// Попытка получить из кеша
	rows, fromCache := h.tryGetFromCache(ctx, query.Limit+query.Offset)
	if !fromCache {
		rows, err = h.fetchFromRepository(ctx, query.Limit+query.Offset)
		if err != nil {
			return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrStorage,
				"failed to get leaderboard", err)
		}
	}

	rows = paginate(rows, query.Offset, query.Limit)

	entries := make([]LeaderboardEntryDTO, len(rows))
	for i, row := range rows {
		entries[i] = LeaderboardEntryDTO{
			Rank:        row.Rank,
			UserID:      row.UserID,
			TotalPoints: row.TotalPoints,
			Level:       row.Level,
			LevelTitle:  row.LevelTitle,
		}
	}

	return &GetLeaderboardResult{
		Entries:     entries,
		TotalCount:  totalCount,
		FromCache:   fromCache,
		GeneratedAt: time.Now().UTC(),
		HasMore:     query.Offset+len(entries) < totalCount,
	}, nil
}

// tryGetFromCache пытается получить лидерборд из кеша.
func (h *GetLeaderboardHandler) tryGetFromCache(ctx context.Context, limit int) ([]progression.LeaderboardRow, bool) {
	if h.cache == nil {
		return nil, false
	}
	rows, err := h.cache.Top(ctx, limit)
	if err != nil || len(rows) == 0 {
		return nil, false
	}
	return rows, true
}

// fetchFromRepository строит лидерборд напрямую из PostgreSQL.
func (h *GetLeaderboardHandler) fetchFromRepository(ctx context.Context, limit int) ([]progression.LeaderboardRow, error) {
	accounts, err := h.accounts.Top(ctx, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]progression.LeaderboardRow, len(accounts))
	for i, a := range accounts {
		rows[i] = progression.LeaderboardRow{
			Rank:        i + 1,
			UserID:      a.UserID,
			TotalPoints: a.TotalPoints,
			Level:       a.CurrentLevel,
			LevelTitle:  a.LevelTitle(),
		}
	}
	return rows, nil
}

// paginate применяет пагинацию к записям.
func paginate(rows []progression.LeaderboardRow, offset, limit int) []progression.LeaderboardRow {
	if offset >= len(rows) {
		return []progression.LeaderboardRow{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}
