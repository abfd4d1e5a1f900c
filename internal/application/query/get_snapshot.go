package query

import (
	"context"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/achievement"
	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SNAPSHOT QUERY
// Собирает полный срез прогресса пользователя для дашборда: очки,
// уровень, стрики, ранг, счётчик достижений и последние транзакции.
// ══════════════════════════════════════════════════════════════════════════════

// recentTransactionsLimit - количество транзакций в срезе.
const recentTransactionsLimit = 10

// GetSnapshotQuery содержит параметры запроса среза.
type GetSnapshotQuery struct {
	// UserID - идентификатор пользователя.
	UserID string

	// Now - опорное время для "сегодня"/"за неделю" (ноль = текущее).
	Now time.Time
}

// Validate проверяет корректность параметров запроса.
func (q *GetSnapshotQuery) Validate() error {
	if q.UserID == "" {
		return shared.NewDomainError("query", "GetSnapshot", shared.ErrEmptyValue, "user id is required")
	}
	return nil
}

// TransactionDTO - DTO записи журнала очков.
type TransactionDTO struct {
	ID           string    `json:"id"`
	ActivityType string    `json:"activity_type"`
	PointsEarned int       `json:"points_earned"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

// SnapshotResult содержит срез прогресса пользователя.
type SnapshotResult struct {
	UserID string `json:"user_id"`

	// TotalPoints - суммарные очки за всё время.
	TotalPoints int `json:"total_points"`

	// CurrentLevel и LevelTitle - текущий уровень и его название.
	CurrentLevel int    `json:"current_level"`
	LevelTitle   string `json:"level_title"`

	// PointsToNextLevel - сколько очков осталось до следующего уровня.
	PointsToNextLevel int `json:"points_to_next_level"`

	// LevelProgress - прогресс внутри уровня в процентах (0-100).
	LevelProgress float64 `json:"level_progress"`

	// DailyStreak и WeeklyStreak - текущие стрики.
	DailyStreak  int `json:"daily_streak"`
	WeeklyStreak int `json:"weekly_streak"`

	// Rank - позиция в лидерборде (1-based, 0 = нет аккаунта).
	Rank int `json:"rank"`

	// TodaysPoints и WeeklyPoints - очки за сегодня и за 7 дней.
	TodaysPoints int `json:"todays_points"`
	WeeklyPoints int `json:"weekly_points"`

	// AchievementsCount - количество разблокированных достижений.
	AchievementsCount int `json:"achievements_count"`

	// RecentTransactions - последние записи журнала, новые первыми.
	RecentTransactions []TransactionDTO `json:"recent_transactions"`
}

// SnapshotCache - опциональный кеш собранных срезов. Срез трогает
// несколько таблиц, поэтому дашборды, опрашивающие его, выигрывают от
// короткоживущего кеша.
type SnapshotCache interface {
	// Get загружает кешированный срез в dest. false - промах.
	Get(ctx context.Context, userID string, dest interface{}) (bool, error)

	// Set сохраняет срез с TTL по умолчанию.
	Set(ctx context.Context, userID string, snapshot interface{}) error
}

// GetSnapshotHandler обрабатывает запросы среза прогресса.
type GetSnapshotHandler struct {
	accounts     progression.AccountRepository
	ledger       progression.LedgerRepository
	achievements achievement.Repository
	cache        progression.LeaderboardCache
	curve        progression.Curve
	snapshots    SnapshotCache
}

// NewGetSnapshotHandler создаёт новый обработчик запроса среза.
func NewGetSnapshotHandler(
	accounts progression.AccountRepository,
	ledger progression.LedgerRepository,
	achievements achievement.Repository,
	cache progression.LeaderboardCache,
	curve progression.Curve,
) *GetSnapshotHandler {
	if curve == nil {
		curve = progression.DefaultCurve()
	}
	return &GetSnapshotHandler{
		accounts:     accounts,
		ledger:       ledger,
		achievements: achievements,
		cache:        cache,
		curve:        curve,
	}
}

// WithSnapshotCache подключает кеш готовых срезов.
func (h *GetSnapshotHandler) WithSnapshotCache(snapshots SnapshotCache) *GetSnapshotHandler {
	h.snapshots = snapshots
	return h
}

// Handle выполняет запрос среза прогресса.
func (h *GetSnapshotHandler) Handle(ctx context.Context, query GetSnapshotQuery) (*SnapshotResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	// Кешируем только запросы "на сейчас": срез для произвольного
	// опорного времени в кеш не попадает.
	cacheable := h.snapshots != nil && query.Now.IsZero()
	if cacheable {
		var cached SnapshotResult
		if ok, err := h.snapshots.Get(ctx, query.UserID, &cached); err == nil && ok {
			return &cached, nil
		}
	}

	now := query.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	account, err := h.accounts.Get(ctx, query.UserID)
	if err != nil {
		if shared.IsNotFound(err) {
			// Пользователь без активности: пустой срез первого уровня.
			fresh := progression.NewAccount(query.UserID)
			return h.emptySnapshot(fresh), nil
		}
		return nil, shared.WrapError("query", "GetSnapshot", shared.ErrStorage,
			"failed to load account", err)
	}

	result := &SnapshotResult{
		UserID:            account.UserID,
		TotalPoints:       account.TotalPoints,
		CurrentLevel:      account.CurrentLevel,
		LevelTitle:        account.LevelTitle(),
		PointsToNextLevel: account.PointsToNextLevel(h.curve),
		LevelProgress:     account.LevelProgress(h.curve),
		DailyStreak:       account.DailyStreak,
		WeeklyStreak:      account.WeeklyStreak,
	}

	// Ранг: кеш, затем PostgreSQL. Ошибки не фатальны для среза.
	result.Rank = h.resolveRank(ctx, query.UserID)

	if points, err := h.ledger.SumSince(ctx, query.UserID, timeutil.StartOfDay(now)); err == nil {
		result.TodaysPoints = points
	}
	if points, err := h.ledger.SumSince(ctx, query.UserID, timeutil.StartOfDay(now).AddDate(0, 0, -6)); err == nil {
		result.WeeklyPoints = points
	}
	if count, err := h.achievements.CountUnlocked(ctx, query.UserID); err == nil {
		result.AchievementsCount = count
	}

	entries, err := h.ledger.RecentEntries(ctx, query.UserID, recentTransactionsLimit)
	if err == nil {
		result.RecentTransactions = make([]TransactionDTO, len(entries))
		for i, e := range entries {
			result.RecentTransactions[i] = TransactionDTO{
				ID:           e.ID,
				ActivityType: string(e.ActivityType),
				PointsEarned: e.PointsEarned,
				Description:  e.Description,
				CreatedAt:    e.CreatedAt,
			}
		}
	}

	if cacheable {
		// Ошибка записи в кеш не портит ответ.
		_ = h.snapshots.Set(ctx, query.UserID, result)
	}

	return result, nil
}

// resolveRank возвращает позицию пользователя: сначала кеш, потом БД.
func (h *GetSnapshotHandler) resolveRank(ctx context.Context, userID string) int {
	if h.cache != nil {
		if rank, err := h.cache.RankOf(ctx, userID); err == nil && rank > 0 {
			return rank
		}
	}
	if rank, err := h.accounts.RankOf(ctx, userID); err == nil {
		return rank
	}
	return 0
}

// emptySnapshot строит срез для пользователя без единой активности.
func (h *GetSnapshotHandler) emptySnapshot(account *progression.Account) *SnapshotResult {
	return &SnapshotResult{
		UserID:             account.UserID,
		TotalPoints:        0,
		CurrentLevel:       account.CurrentLevel,
		LevelTitle:         account.LevelTitle(),
		PointsToNextLevel:  account.PointsToNextLevel(h.curve),
		LevelProgress:      0,
		RecentTransactions: []TransactionDTO{},
	}
}
