package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/progression-engine/internal/domain/achievement"
	"github.com/studyhub/progression-engine/internal/domain/challenge"
	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUBS
// ══════════════════════════════════════════════════════════════════════════════

type stubAccounts struct {
	account *progression.Account
	top     []*progression.Account
	count   int
	rank    int
	topErr  error
}

func (s *stubAccounts) Get(_ context.Context, _ string) (*progression.Account, error) {
	if s.account == nil {
		return nil, shared.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *stubAccounts) GetOrCreateForUpdate(_ context.Context, userID string) (*progression.Account, error) {
	return s.Get(context.Background(), userID)
}

func (s *stubAccounts) Save(_ context.Context, _ *progression.Account) error { return nil }

func (s *stubAccounts) Top(_ context.Context, limit int) ([]*progression.Account, error) {
	if s.topErr != nil {
		return nil, s.topErr
	}
	if limit > len(s.top) {
		limit = len(s.top)
	}
	return s.top[:limit], nil
}

func (s *stubAccounts) RankOf(_ context.Context, _ string) (int, error) { return s.rank, nil }
func (s *stubAccounts) Count(_ context.Context) (int, error)           { return s.count, nil }
func (s *stubAccounts) AllUserIDs(_ context.Context) ([]string, error) { return nil, nil }

type stubLedger struct {
	entries []*progression.LedgerEntry
}

func (s *stubLedger) Append(_ context.Context, e *progression.LedgerEntry) error {
	s.entries = append(s.entries, e)
	return nil
}

func (s *stubLedger) SumPoints(_ context.Context, _ string) (int, error) {
	sum := 0
	for _, e := range s.entries {
		sum += e.PointsEarned
	}
	return sum, nil
}

func (s *stubLedger) SumSince(_ context.Context, _ string, cutoff time.Time) (int, error) {
	sum := 0
	for _, e := range s.entries {
		if !e.CreatedAt.Before(cutoff) {
			sum += e.PointsEarned
		}
	}
	return sum, nil
}

func (s *stubLedger) RecentEntries(_ context.Context, _ string, limit int) ([]*progression.LedgerEntry, error) {
	var out []*progression.LedgerEntry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *stubLedger) CountByType(_ context.Context, _ string, t progression.ActivityType) (int, error) {
	count := 0
	for _, e := range s.entries {
		if e.ActivityType == t {
			count++
		}
	}
	return count, nil
}

func (s *stubLedger) CountPerfectScores(_ context.Context, _ string) (int, error) {
	count := 0
	for _, e := range s.entries {
		if e.ActivityType != progression.ActivityQuizCompleted {
			continue
		}
		if score, ok := e.Metadata["score"].(int); ok && score >= 100 {
			count++
		}
	}
	return count, nil
}

type stubAchievements struct {
	catalog []*achievement.Achievement
	unlocks []achievement.Unlock
}

func (s *stubAchievements) ActiveCatalog(_ context.Context) ([]*achievement.Achievement, error) {
	return s.catalog, nil
}

func (s *stubAchievements) FullCatalog(_ context.Context) ([]*achievement.Achievement, error) {
	return s.catalog, nil
}

func (s *stubAchievements) Upsert(_ context.Context, _ *achievement.Achievement) error { return nil }

func (s *stubAchievements) UnlockedIDs(_ context.Context, _ string) (map[string]bool, error) {
	ids := map[string]bool{}
	for _, u := range s.unlocks {
		ids[u.AchievementID] = true
	}
	return ids, nil
}

func (s *stubAchievements) Unlocks(_ context.Context, _ string) ([]achievement.Unlock, error) {
	return s.unlocks, nil
}

func (s *stubAchievements) InsertUnlock(_ context.Context, _, _ string, _ time.Time) (bool, error) {
	return false, nil
}

func (s *stubAchievements) CountUnlocked(_ context.Context, _ string) (int, error) {
	return len(s.unlocks), nil
}

type stubChallenges struct {
	challenges []*challenge.Challenge
	progress   map[string]*challenge.Progress
}

func (s *stubChallenges) ActiveForDate(_ context.Context, date time.Time) ([]*challenge.Challenge, error) {
	var out []*challenge.Challenge
	for _, c := range s.challenges {
		if c.Active && c.Date.Equal(date) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubChallenges) ExistsForDate(_ context.Context, _ time.Time) (bool, error) {
	return len(s.challenges) > 0, nil
}

func (s *stubChallenges) Insert(_ context.Context, _ *challenge.Challenge) (bool, error) {
	return false, nil
}

func (s *stubChallenges) GetProgress(_ context.Context, _, challengeID string) (*challenge.Progress, error) {
	return s.progress[challengeID], nil
}

func (s *stubChallenges) SaveProgress(_ context.Context, _ *challenge.Progress) error { return nil }

func (s *stubChallenges) ProgressForDate(_ context.Context, _ string, _ time.Time) (map[string]*challenge.Progress, error) {
	return s.progress, nil
}

type stubLeaderboardCache struct {
	rows []progression.LeaderboardRow
	rank int
	err  error
}

func (s *stubLeaderboardCache) UpdateScore(_ context.Context, _ string, _, _ int) error { return nil }

func (s *stubLeaderboardCache) Top(_ context.Context, limit int) ([]progression.LeaderboardRow, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > len(s.rows) {
		limit = len(s.rows)
	}
	return s.rows[:limit], nil
}

func (s *stubLeaderboardCache) RankOf(_ context.Context, _ string) (int, error) {
	return s.rank, s.err
}

func (s *stubLeaderboardCache) Rebuild(_ context.Context, _ []progression.LeaderboardRow) error {
	return nil
}

type stubSnapshotCache struct {
	stored map[string]SnapshotResult
	hits   int
	sets   int
}

func newStubSnapshotCache() *stubSnapshotCache {
	return &stubSnapshotCache{stored: map[string]SnapshotResult{}}
}

func (s *stubSnapshotCache) Get(_ context.Context, userID string, dest interface{}) (bool, error) {
	cached, ok := s.stored[userID]
	if !ok {
		return false, nil
	}
	s.hits++
	*dest.(*SnapshotResult) = cached
	return true, nil
}

func (s *stubSnapshotCache) Set(_ context.Context, userID string, snapshot interface{}) error {
	s.sets++
	s.stored[userID] = *snapshot.(*SnapshotResult)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func TestGetLeaderboard_FromCache(t *testing.T) {
	cache := &stubLeaderboardCache{rows: []progression.LeaderboardRow{
		{Rank: 1, UserID: "u1", TotalPoints: 900, Level: 3, LevelTitle: "Dedicated Scholar"},
		{Rank: 2, UserID: "u2", TotalPoints: 500, Level: 2, LevelTitle: "Curious Student"},
	}}
	handler := NewGetLeaderboardHandler(&stubAccounts{count: 2}, cache)

	result, err := handler.Handle(context.Background(), GetLeaderboardQuery{Limit: 10})
	require.NoError(t, err)

	assert.True(t, result.FromCache)
	assert.Equal(t, 2, result.TotalCount)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "u1", result.Entries[0].UserID)
	assert.Equal(t, 1, result.Entries[0].Rank)
	assert.False(t, result.HasMore)
}

func TestGetLeaderboard_FallsBackToRepository(t *testing.T) {
	accounts := &stubAccounts{
		count: 2,
		top: []*progression.Account{
			{UserID: "u1", TotalPoints: 900, CurrentLevel: 3},
			{UserID: "u2", TotalPoints: 500, CurrentLevel: 2},
		},
	}
	cache := &stubLeaderboardCache{err: assert.AnError}
	handler := NewGetLeaderboardHandler(accounts, cache)

	result, err := handler.Handle(context.Background(), GetLeaderboardQuery{})
	require.NoError(t, err)

	assert.False(t, result.FromCache)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, 1, result.Entries[0].Rank)
	assert.Equal(t, "Dedicated Scholar", result.Entries[0].LevelTitle)
}

func TestGetLeaderboard_WithoutCache(t *testing.T) {
	accounts := &stubAccounts{
		count: 1,
		top:   []*progression.Account{{UserID: "u1", TotalPoints: 100, CurrentLevel: 1}},
	}
	handler := NewGetLeaderboardHandler(accounts, nil)

	result, err := handler.Handle(context.Background(), GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Len(t, result.Entries, 1)
}

func TestGetLeaderboard_Pagination(t *testing.T) {
	rows := make([]progression.LeaderboardRow, 30)
	for i := range rows {
		rows[i] = progression.LeaderboardRow{Rank: i + 1, UserID: "u", TotalPoints: 1000 - i}
	}
	handler := NewGetLeaderboardHandler(&stubAccounts{count: 30}, &stubLeaderboardCache{rows: rows})

	result, err := handler.Handle(context.Background(), GetLeaderboardQuery{Limit: 10, Offset: 25})
	require.NoError(t, err)

	require.Len(t, result.Entries, 5)
	assert.Equal(t, 26, result.Entries[0].Rank)
	assert.False(t, result.HasMore)

	result, err = handler.Handle(context.Background(), GetLeaderboardQuery{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 10)
	assert.True(t, result.HasMore)
}

func TestGetLeaderboard_Validation(t *testing.T) {
	handler := NewGetLeaderboardHandler(&stubAccounts{}, nil)

	_, err := handler.Handle(context.Background(), GetLeaderboardQuery{Limit: -1})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = handler.Handle(context.Background(), GetLeaderboardQuery{Offset: -1})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// ══════════════════════════════════════════════════════════════════════════════
// GET SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

func TestGetSnapshot_EmptyForUnknownUser(t *testing.T) {
	handler := NewGetSnapshotHandler(&stubAccounts{}, &stubLedger{}, &stubAchievements{}, nil, nil)

	result, err := handler.Handle(context.Background(), GetSnapshotQuery{UserID: "ghost"})
	require.NoError(t, err)

	assert.Equal(t, "ghost", result.UserID)
	assert.Equal(t, 0, result.TotalPoints)
	assert.Equal(t, 1, result.CurrentLevel)
	assert.Equal(t, "Novice Learner", result.LevelTitle)
	assert.Equal(t, 0, result.Rank)
	assert.Empty(t, result.RecentTransactions)
}

func TestGetSnapshot_AssemblesFullView(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	account := &progression.Account{
		UserID: "u1", TotalPoints: 400, CurrentLevel: 2, PointsInLevel: 118,
		DailyStreak: 4, WeeklyStreak: 2,
	}
	ledger := &stubLedger{entries: []*progression.LedgerEntry{
		{ID: "e1", UserID: "u1", ActivityType: progression.ActivityQuizCompleted,
			PointsEarned: 25, Description: "Completed quiz with 80% score",
			CreatedAt: now.AddDate(0, 0, -3)},
		{ID: "e2", UserID: "u1", ActivityType: progression.ActivityQuizCompleted,
			PointsEarned: 10, Description: "Completed quiz with 40% score",
			CreatedAt: now.Add(-2 * time.Hour)},
	}}
	achievements := &stubAchievements{unlocks: []achievement.Unlock{
		{UserID: "u1", AchievementID: "a1", UnlockedAt: now},
	}}
	cache := &stubLeaderboardCache{rank: 7}

	handler := NewGetSnapshotHandler(&stubAccounts{account: account, rank: 9}, ledger, achievements, cache, nil)
	result, err := handler.Handle(context.Background(), GetSnapshotQuery{UserID: "u1", Now: now})
	require.NoError(t, err)

	assert.Equal(t, 400, result.TotalPoints)
	assert.Equal(t, 2, result.CurrentLevel)
	assert.Equal(t, "Curious Student", result.LevelTitle)
	assert.Equal(t, 4, result.DailyStreak)

	// Ранг берётся из кеша, PostgreSQL - только при промахе.
	assert.Equal(t, 7, result.Rank)

	assert.Equal(t, 10, result.TodaysPoints)
	assert.Equal(t, 35, result.WeeklyPoints)
	assert.Equal(t, 1, result.AchievementsCount)

	require.Len(t, result.RecentTransactions, 2)
	assert.Equal(t, "e2", result.RecentTransactions[0].ID, "recent entries come newest first")
}

func TestGetSnapshot_RankFallsBackToRepository(t *testing.T) {
	account := &progression.Account{UserID: "u1", TotalPoints: 50, CurrentLevel: 1}
	cache := &stubLeaderboardCache{rank: 0}
	handler := NewGetSnapshotHandler(&stubAccounts{account: account, rank: 3}, &stubLedger{}, &stubAchievements{}, cache, nil)

	result, err := handler.Handle(context.Background(), GetSnapshotQuery{UserID: "u1", Now: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Rank)
}

func TestGetSnapshot_UsesSnapshotCache(t *testing.T) {
	account := &progression.Account{UserID: "u1", TotalPoints: 50, CurrentLevel: 1}
	snapshots := newStubSnapshotCache()
	handler := NewGetSnapshotHandler(&stubAccounts{account: account}, &stubLedger{}, &stubAchievements{}, nil, nil).
		WithSnapshotCache(snapshots)
	ctx := context.Background()

	// Первый запрос собирает срез и кладёт его в кеш.
	first, err := handler.Handle(ctx, GetSnapshotQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, snapshots.sets)
	assert.Equal(t, 0, snapshots.hits)

	second, err := handler.Handle(ctx, GetSnapshotQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, snapshots.hits)
	assert.Equal(t, first.TotalPoints, second.TotalPoints)
}

func TestGetSnapshot_ExplicitTimeBypassesCache(t *testing.T) {
	account := &progression.Account{UserID: "u1", TotalPoints: 50, CurrentLevel: 1}
	snapshots := newStubSnapshotCache()
	handler := NewGetSnapshotHandler(&stubAccounts{account: account}, &stubLedger{}, &stubAchievements{}, nil, nil).
		WithSnapshotCache(snapshots)

	// Срез для произвольного опорного времени в кеш не попадает.
	_, err := handler.Handle(context.Background(), GetSnapshotQuery{UserID: "u1", Now: timeutil.Date(2026, 3, 4)})
	require.NoError(t, err)
	assert.Equal(t, 0, snapshots.sets)
	assert.Equal(t, 0, snapshots.hits)
}

func TestGetSnapshot_Validation(t *testing.T) {
	handler := NewGetSnapshotHandler(&stubAccounts{}, &stubLedger{}, &stubAchievements{}, nil, nil)
	_, err := handler.Handle(context.Background(), GetSnapshotQuery{})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

func achievementsFixture() *stubAchievements {
	return &stubAchievements{
		catalog: []*achievement.Achievement{
			{ID: "a1", Name: "First Steps", Category: "milestones", Rarity: achievement.RarityCommon,
				PointsReward: 25, Active: true,
				Criteria: []achievement.Criterion{{Type: achievement.CriterionTotalQuizzes, Value: 1}}},
			{ID: "a2", Name: "Quiz Enthusiast", Category: "milestones", Rarity: achievement.RarityRare,
				PointsReward: 75, Active: true,
				Criteria: []achievement.Criterion{{Type: achievement.CriterionTotalQuizzes, Value: 10}}},
		},
		unlocks: []achievement.Unlock{
			{UserID: "u1", AchievementID: "a1", UnlockedAt: timeutil.Date(2026, 3, 1)},
		},
	}
}

func TestGetAchievements_AnnotatesCatalog(t *testing.T) {
	ledger := &stubLedger{entries: []*progression.LedgerEntry{
		{ActivityType: progression.ActivityQuizCompleted, PointsEarned: 10},
	}}
	handler := NewGetAchievementsHandler(achievementsFixture(), &stubAccounts{}, ledger)

	result, err := handler.Handle(context.Background(), GetAchievementsQuery{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalCount)
	assert.Equal(t, 1, result.UnlockedCount)
	require.Len(t, result.Achievements, 2)

	first := result.Achievements[0]
	assert.True(t, first.Unlocked)
	assert.Equal(t, float64(100), first.CompletionPercent)
	require.NotNil(t, first.UnlockedAt)
	assert.Equal(t, "Common", first.RarityLabel)

	second := result.Achievements[1]
	assert.False(t, second.Unlocked)
	assert.Nil(t, second.UnlockedAt)
	assert.Equal(t, float64(0), second.CompletionPercent)
}

func TestGetAchievements_OnlyUnlocked(t *testing.T) {
	handler := NewGetAchievementsHandler(achievementsFixture(), &stubAccounts{}, &stubLedger{})

	result, err := handler.Handle(context.Background(), GetAchievementsQuery{UserID: "u1", OnlyUnlocked: true})
	require.NoError(t, err)

	require.Len(t, result.Achievements, 1)
	assert.Equal(t, "a1", result.Achievements[0].ID)
	assert.Equal(t, 2, result.TotalCount)
	assert.Equal(t, 1, result.UnlockedCount)
}

func TestGetAchievements_Validation(t *testing.T) {
	handler := NewGetAchievementsHandler(&stubAchievements{}, &stubAccounts{}, &stubLedger{})
	_, err := handler.Handle(context.Background(), GetAchievementsQuery{})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

// ══════════════════════════════════════════════════════════════════════════════
// GET DAILY CHALLENGES
// ══════════════════════════════════════════════════════════════════════════════

func TestGetDailyChallenges_WithProgress(t *testing.T) {
	date := timeutil.Date(2026, 3, 4)
	completedAt := date.Add(10 * time.Hour)
	repo := &stubChallenges{
		challenges: []*challenge.Challenge{
			{ID: "c1", Title: "Quiz Master", Type: challenge.TypeQuizCount,
				Requirements: challenge.Requirements{TargetCount: 3},
				PointsReward: 50, Date: date, Active: true},
			{ID: "c2", Title: "Perfect Score", Type: challenge.TypePerfectScore,
				Requirements: challenge.Requirements{TargetCount: 1},
				PointsReward: 75, Date: date, Active: true},
		},
		progress: map[string]*challenge.Progress{
			"c1": {UserID: "u1", ChallengeID: "c1", Completed: true, CompletedAt: completedAt,
				Counters: challenge.Counters{CompletedQuizzes: 3}},
			"c2": {UserID: "u1", ChallengeID: "c2"},
		},
	}
	handler := NewGetDailyChallengesHandler(repo)

	result, err := handler.Handle(context.Background(), GetDailyChallengesQuery{UserID: "u1", Date: date})
	require.NoError(t, err)

	assert.Equal(t, "2026-03-04", result.Date)
	assert.Equal(t, 1, result.CompletedCount)
	require.Len(t, result.Challenges, 2)

	assert.True(t, result.Challenges[0].Completed)
	assert.Equal(t, float64(100), result.Challenges[0].CompletionPercent)
	require.NotNil(t, result.Challenges[0].CompletedAt)
	assert.Equal(t, "Medium", result.Challenges[0].Difficulty)

	assert.False(t, result.Challenges[1].Completed)
	assert.Nil(t, result.Challenges[1].CompletedAt)
}

func TestGetDailyChallenges_EmptyDay(t *testing.T) {
	handler := NewGetDailyChallengesHandler(&stubChallenges{})

	result, err := handler.Handle(context.Background(), GetDailyChallengesQuery{
		UserID: "u1", Date: timeutil.Date(2026, 3, 4),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Challenges)
	assert.Equal(t, 0, result.CompletedCount)
}

func TestGetDailyChallenges_Validation(t *testing.T) {
	handler := NewGetDailyChallengesHandler(&stubChallenges{})
	_, err := handler.Handle(context.Background(), GetDailyChallengesQuery{})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}
