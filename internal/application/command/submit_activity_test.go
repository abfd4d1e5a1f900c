package command

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
// IN-MEMORY FAKES
// memStore implements both Store and TxRepos: Execute просто выполняет fn
// на себе. Транзакционность в этих тестах не проверяется.
// ══════════════════════════════════════════════════════════════════════════════

type memAccountRepo struct {
	accounts map[string]*progression.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: map[string]*progression.Account{}}
}

func (r *memAccountRepo) Get(_ context.Context, userID string) (*progression.Account, error) {
	a, ok := r.accounts[userID]
	if !ok {
		return nil, shared.ErrAccountNotFound
	}
	return a, nil
}

func (r *memAccountRepo) GetOrCreateForUpdate(_ context.Context, userID string) (*progression.Account, error) {
	if a, ok := r.accounts[userID]; ok {
		return a, nil
	}
	a := progression.NewAccount(userID)
	r.accounts[userID] = a
	return a, nil
}

func (r *memAccountRepo) Save(_ context.Context, account *progression.Account) error {
	r.accounts[account.UserID] = account
	return nil
}

func (r *memAccountRepo) Top(_ context.Context, _ int) ([]*progression.Account, error) {
	return nil, nil
}

func (r *memAccountRepo) RankOf(_ context.Context, _ string) (int, error) { return 0, nil }
func (r *memAccountRepo) Count(_ context.Context) (int, error)            { return len(r.accounts), nil }

func (r *memAccountRepo) AllUserIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	return ids, nil
}

type memLedgerRepo struct {
	entries []*progression.LedgerEntry
}

func (r *memLedgerRepo) Append(_ context.Context, entry *progression.LedgerEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memLedgerRepo) SumPoints(_ context.Context, userID string) (int, error) {
	sum := 0
	for _, e := range r.entries {
		if e.UserID == userID {
			sum += e.PointsEarned
		}
	}
	return sum, nil
}

func (r *memLedgerRepo) SumSince(_ context.Context, userID string, cutoff time.Time) (int, error) {
	sum := 0
	for _, e := range r.entries {
		if e.UserID == userID && !e.CreatedAt.Before(cutoff) {
			sum += e.PointsEarned
		}
	}
	return sum, nil
}

func (r *memLedgerRepo) RecentEntries(_ context.Context, userID string, limit int) ([]*progression.LedgerEntry, error) {
	var out []*progression.LedgerEntry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.entries[i].UserID == userID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *memLedgerRepo) CountByType(_ context.Context, userID string, activityType progression.ActivityType) (int, error) {
	count := 0
	for _, e := range r.entries {
		if e.UserID == userID && e.ActivityType == activityType {
			count++
		}
	}
	return count, nil
}

func (r *memLedgerRepo) CountPerfectScores(_ context.Context, userID string) (int, error) {
	count := 0
	for _, e := range r.entries {
		if e.UserID != userID || e.ActivityType != progression.ActivityQuizCompleted {
			continue
		}
		if score, ok := e.Metadata["score"].(int); ok && score >= 100 {
			count++
		}
	}
	return count, nil
}

type memAchievementRepo struct {
	catalog    []*achievement.Achievement
	unlocks    map[string]map[string]time.Time
	catalogErr error
}

func newMemAchievementRepo(catalog ...*achievement.Achievement) *memAchievementRepo {
	return &memAchievementRepo{
		catalog: catalog,
		unlocks: map[string]map[string]time.Time{},
	}
}

func (r *memAchievementRepo) ActiveCatalog(_ context.Context) ([]*achievement.Achievement, error) {
	if r.catalogErr != nil {
		return nil, r.catalogErr
	}
	var active []*achievement.Achievement
	for _, a := range r.catalog {
		if a.Active {
			active = append(active, a)
		}
	}
	return active, nil
}

func (r *memAchievementRepo) FullCatalog(_ context.Context) ([]*achievement.Achievement, error) {
	return r.catalog, nil
}

func (r *memAchievementRepo) Upsert(_ context.Context, a *achievement.Achievement) error {
	r.catalog = append(r.catalog, a)
	return nil
}

func (r *memAchievementRepo) UnlockedIDs(_ context.Context, userID string) (map[string]bool, error) {
	ids := map[string]bool{}
	for id := range r.unlocks[userID] {
		ids[id] = true
	}
	return ids, nil
}

func (r *memAchievementRepo) Unlocks(_ context.Context, userID string) ([]achievement.Unlock, error) {
	var out []achievement.Unlock
	for id, at := range r.unlocks[userID] {
		out = append(out, achievement.Unlock{UserID: userID, AchievementID: id, UnlockedAt: at})
	}
	return out, nil
}

func (r *memAchievementRepo) InsertUnlock(_ context.Context, userID, achievementID string, unlockedAt time.Time) (bool, error) {
	if r.unlocks[userID] == nil {
		r.unlocks[userID] = map[string]time.Time{}
	}
	if _, exists := r.unlocks[userID][achievementID]; exists {
		return false, nil
	}
	r.unlocks[userID][achievementID] = unlockedAt
	return true, nil
}

func (r *memAchievementRepo) CountUnlocked(_ context.Context, userID string) (int, error) {
	return len(r.unlocks[userID]), nil
}

type progressKey struct{ userID, challengeID string }

type memChallengeRepo struct {
	challenges []*challenge.Challenge
	progress   map[progressKey]*challenge.Progress
	activeErr  error
	saves      int
}

func newMemChallengeRepo(challenges ...*challenge.Challenge) *memChallengeRepo {
	return &memChallengeRepo{
		challenges: challenges,
		progress:   map[progressKey]*challenge.Progress{},
	}
}

func (r *memChallengeRepo) ActiveForDate(_ context.Context, date time.Time) ([]*challenge.Challenge, error) {
	if r.activeErr != nil {
		return nil, r.activeErr
	}
	var out []*challenge.Challenge
	for _, c := range r.challenges {
		if c.Active && c.Date.Equal(date) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memChallengeRepo) ExistsForDate(_ context.Context, date time.Time) (bool, error) {
	for _, c := range r.challenges {
		if c.Date.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memChallengeRepo) Insert(_ context.Context, c *challenge.Challenge) (bool, error) {
	for _, existing := range r.challenges {
		if existing.Date.Equal(c.Date) && existing.Title == c.Title {
			return false, nil
		}
	}
	r.challenges = append(r.challenges, c)
	return true, nil
}

func (r *memChallengeRepo) GetProgress(_ context.Context, userID, challengeID string) (*challenge.Progress, error) {
	return r.progress[progressKey{userID, challengeID}], nil
}

func (r *memChallengeRepo) SaveProgress(_ context.Context, p *challenge.Progress) error {
	r.saves++
	r.progress[progressKey{p.UserID, p.ChallengeID}] = p
	return nil
}

func (r *memChallengeRepo) ProgressForDate(_ context.Context, userID string, date time.Time) (map[string]*challenge.Progress, error) {
	out := map[string]*challenge.Progress{}
	for _, c := range r.challenges {
		if !c.Date.Equal(date) {
			continue
		}
		if p := r.progress[progressKey{userID, c.ID}]; p != nil {
			out[c.ID] = p
		}
	}
	return out, nil
}

type memStore struct {
	accounts     *memAccountRepo
	ledger       *memLedgerRepo
	achievements *memAchievementRepo
	challenges   *memChallengeRepo
}

func newMemStore() *memStore {
	return &memStore{
		accounts:     newMemAccountRepo(),
		ledger:       &memLedgerRepo{},
		achievements: newMemAchievementRepo(),
		challenges:   newMemChallengeRepo(),
	}
}

func (s *memStore) Execute(_ context.Context, _ string, fn func(tx TxRepos) error) error {
	return fn(s)
}

func (s *memStore) Accounts() progression.AccountRepository { return s.accounts }
func (s *memStore) Ledger() progression.LedgerRepository    { return s.ledger }
func (s *memStore) Achievements() achievement.Repository    { return s.achievements }
func (s *memStore) Challenges() challenge.Repository        { return s.challenges }

// flakyStore отклоняет первые failures вызовов конфликтом блокировки.
type flakyStore struct {
	inner    *memStore
	failures int
	attempts int
}

func (s *flakyStore) Execute(ctx context.Context, userID string, fn func(tx TxRepos) error) error {
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return shared.ErrConcurrencyConflict
	}
	return s.inner.Execute(ctx, userID, fn)
}

// assertLedgerInvariant проверяет totalPoints == sum(pointsEarned).
func assertLedgerInvariant(t *testing.T, store *memStore, userID string) {
	t.Helper()
	account, err := store.accounts.Get(context.Background(), userID)
	require.NoError(t, err)
	sum, err := store.ledger.SumPoints(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, sum, account.TotalPoints, "total points must equal ledger sum")
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestSubmitActivity_SimpleQuiz(t *testing.T) {
	store := newMemStore()
	handler := NewSubmitActivityHandler(store, nil, nil, nil, nil)
	today := timeutil.Date(2026, 3, 4)

	result, err := handler.Handle(context.Background(), SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityQuizCompleted,
		Metadata:     progression.QuizMetadata{Score: 60},
		Today:        today,
	})
	require.NoError(t, err)

	assert.Equal(t, progression.PointsQuizBase, result.Entry.PointsEarned)
	assert.Equal(t, progression.PointsQuizBase, result.TotalPoints)
	assert.Equal(t, 1, result.CurrentLevel)
	assert.Empty(t, result.CascadeEntries)
	assert.Nil(t, result.LevelUp)
	assert.True(t, result.StreakOutcome.Touched)
	assert.Equal(t, 1, result.StreakOutcome.DailyStreak)
	assert.Empty(t, result.Warnings)

	assertLedgerInvariant(t, store, "user-1")
}

func TestSubmitActivity_Validation(t *testing.T) {
	handler := NewSubmitActivityHandler(newMemStore(), nil, nil, nil, nil)
	ctx := context.Background()

	_, err := handler.Handle(ctx, SubmitActivityCommand{
		ActivityType: progression.ActivityQuizCompleted,
	})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	_, err = handler.Handle(ctx, SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityType("teleport"),
	})
	assert.ErrorIs(t, err, shared.ErrUnknownActivityType)

	// Синтетические типы генерирует сам движок.
	_, err = handler.Handle(ctx, SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityDailyStreak,
		Metadata:     progression.StreakMetadata{StreakDays: 5},
	})
	assert.ErrorIs(t, err, shared.ErrUnknownActivityType)

	_, err = handler.Handle(ctx, SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityQuizCompleted,
		Metadata:     progression.QuizMetadata{Score: 120},
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSubmitActivity_PerfectQuizUnlocksAchievements(t *testing.T) {
	store := newMemStore()
	store.achievements = newMemAchievementRepo(
		&achievement.Achievement{
			ID: "a-first", Name: "First Steps", Active: true, PointsReward: 25,
			Criteria: []achievement.Criterion{{Type: achievement.CriterionTotalQuizzes, Value: 1}},
		},
		&achievement.Achievement{
			ID: "a-perfect", Name: "Perfect Score", Active: true, PointsReward: 50,
			Criteria: []achievement.Criterion{{Type: achievement.CriterionPerfectScores, Value: 1}},
		},
	)
	handler := NewSubmitActivityHandler(store, nil, nil, nil, nil)

	result, err := handler.Handle(context.Background(), SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityQuizCompleted,
		Metadata:     progression.QuizMetadata{Score: 100, QuizID: "q-1"},
		Today:        timeutil.Date(2026, 3, 4),
	})
	require.NoError(t, err)

	assert.Equal(t, progression.PointsQuizPerfect, result.Entry.PointsEarned)
	assert.Len(t, result.NewAchievements, 2)
	assert.Len(t, result.CascadeEntries, 2)
	assert.Equal(t, 50+25+50, result.TotalPoints)

	// Каскадные записи в ledger несут награды достижений.
	var bonusSum int
	for _, e := range result.CascadeEntries {
		assert.Equal(t, progression.ActivityAchievementUnlocked, e.ActivityType)
		bonusSum += e.PointsEarned
	}
	assert.Equal(t, 75, bonusSum)

	assertLedgerInvariant(t, store, "user-1")
}

func TestSubmitActivity_AchievementUnlockIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.achievements = newMemAchievementRepo(
		&achievement.Achievement{
			ID: "a-perfect", Name: "Perfect Score", Active: true, PointsReward: 50,
			Criteria: []achievement.Criterion{{Type: achievement.CriterionPerfectScores, Value: 1}},
		},
	)
	handler := NewSubmitActivityHandler(store, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := handler.Handle(ctx, SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityQuizCompleted,
		Metadata:     progression.QuizMetadata{Score: 100},
		Today:        timeutil.Date(2026, 3, 4),
	})
	require.NoError(t, err)

	// Второй идеальный квиз не разблокирует достижение повторно.
	result, err := handler.Handle(ctx, SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityQuizCompleted,
		Metadata:     progression.QuizMetadata{Score: 100},
		Today:        timeutil.Date(2026, 3, 4),
	})
	require.NoError(t, err)

	assert.Empty(t, result.NewAchievements)
	count, _ := store.achievements.CountUnlocked(ctx, "user-1")
	assert.Equal(t, 1, count)
	assertLedgerInvariant(t, store, "user-1")
}

func TestSubmitActivity_LevelUpCascade(t *testing.T) {
	store := newMemStore()
	curve := progression.TableCurve{Thresholds: []int{100, 300, 10000}}
	handler := NewSubmitActivityHandler(store, curve, nil, nil, nil)

	result, err := handler.Handle(context.Background(), SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityManualAward,
		Metadata:     progression.ManualMetadata{Points: 400, Reason: "import"},
		Today:        timeutil.Date(2026, 3, 4),
	})
	require.NoError(t, err)

	require.NotNil(t, result.LevelUp)
	assert.Equal(t, 1, result.LevelUp.OldLevel)
	assert.Equal(t, 2, result.LevelUp.NewLevel)
	assert.Equal(t, 2, result.CurrentLevel)

	// Бонус за уровень (newLevel * 25) прошёл отдельной каскадной записью.
	require.Len(t, result.CascadeEntries, 1)
	assert.Equal(t, progression.ActivityLevelUp, result.CascadeEntries[0].ActivityType)
	assert.Equal(t, 2*progression.PointsPerLevel, result.CascadeEntries[0].PointsEarned)
	assert.Equal(t, 400+50, result.TotalPoints)

	assertLedgerInvariant(t, store, "user-1")
}

func TestSubmitActivity_CascadeDepthExceeded(t *testing.T) {
	store := newMemStore()
	// Патологическая кривая: бонус за уровень N ровно оплачивает уровень N+1,
	// каскад повышений никогда не затухает.
	curve := progression.TableCurve{Thresholds: []int{25, 25, 50, 75, 100, 125, 150}}
	handler := NewSubmitActivityHandler(store, curve, nil, nil, nil)

	_, err := handler.Handle(context.Background(), SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityManualAward,
		Metadata:     progression.ManualMetadata{Points: 25},
		Today:        timeutil.Date(2026, 3, 4),
	})
	assert.ErrorIs(t, err, shared.ErrCascadeDepthExceeded)
}

func TestSubmitActivity_StreakBonusOnThirdDay(t *testing.T) {
	store := newMemStore()
	handler := NewSubmitActivityHandler(store, nil, nil, nil, nil)
	ctx := context.Background()
	day1 := timeutil.Date(2026, 3, 2)

	submit := func(today time.Time) *ProgressionResult {
		result, err := handler.Handle(ctx, SubmitActivityCommand{
			UserID:       "user-1",
			ActivityType: progression.ActivityQuizCompleted,
			Metadata:     progression.QuizMetadata{Score: 60},
			Today:        today,
		})
		require.NoError(t, err)
		return result
	}

	submit(day1)
	result := submit(day1.AddDate(0, 0, 1))
	assert.Equal(t, 2, result.StreakOutcome.DailyStreak)
	assert.Empty(t, result.CascadeEntries)

	// Третий день подряд приносит синтетический бонус серии.
	result = submit(day1.AddDate(0, 0, 2))
	assert.Equal(t, 3, result.StreakOutcome.DailyStreak)
	require.Len(t, result.CascadeEntries, 1)
	assert.Equal(t, progression.ActivityDailyStreak, result.CascadeEntries[0].ActivityType)
	assert.Equal(t, progression.PointsDailyStreakBase+2*2, result.CascadeEntries[0].PointsEarned)

	assertLedgerInvariant(t, store, "user-1")
}

func TestSubmitActivity_SameDayDoesNotAdvanceStreak(t *testing.T) {
	store := newMemStore()
	handler := NewSubmitActivityHandler(store, nil, nil, nil, nil)
	ctx := context.Background()
	today := timeutil.Date(2026, 3, 4)

	for i := 0; i < 3; i++ {
		result, err := handler.Handle(ctx, SubmitActivityCommand{
			UserID:       "user-1",
			ActivityType: progression.ActivityQuizCompleted,
			Metadata:     progression.QuizMetadata{Score: 60},
			Today:        today,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.StreakOutcome.DailyStreak)
	}

	account, err := store.accounts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, account.DailyStreak)
}

func TestSubmitActivity_ChallengeCompletion(t *testing.T) {
	today := timeutil.Date(2026, 3, 4)
	store := newMemStore()
	store.challenges = newMemChallengeRepo(&challenge.Challenge{
		ID: "ch-1", Title: "Quiz Sprint", Type: challenge.TypeQuizCount,
		Requirements: challenge.Requirements{TargetCount: 1},
		PointsReward: 30, Date: today, Active: true,
	})
	handler := NewSubmitActivityHandler(store, nil, nil, nil, nil)

	result, err := handler.Handle(context.Background(), SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityQuizCompleted,
		Metadata:     progression.QuizMetadata{Score: 60},
		Today:        today,
	})
	require.NoError(t, err)

	require.Len(t, result.CompletedChallenges, 1)
	assert.Equal(t, "Quiz Sprint", result.CompletedChallenges[0].Challenge.Title)
	assert.Equal(t, 30, result.CompletedChallenges[0].PointsEarned)

	require.Len(t, result.CascadeEntries, 1)
	assert.Equal(t, progression.ActivityChallengeCompleted, result.CascadeEntries[0].ActivityType)
	assert.Equal(t, 10+30, result.TotalPoints)

	// Выполненная строка заморожена: повторный квиз ничего не начисляет.
	result, err = handler.Handle(context.Background(), SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityQuizCompleted,
		Metadata:     progression.QuizMetadata{Score: 60},
		Today:        today,
	})
	require.NoError(t, err)
	assert.Empty(t, result.CompletedChallenges)

	assertLedgerInvariant(t, store, "user-1")
}

func TestSubmitActivity_NoProgressChangeSkipsSave(t *testing.T) {
	today := timeutil.Date(2026, 3, 4)
	store := newMemStore()
	store.challenges = newMemChallengeRepo(&challenge.Challenge{
		ID: "ch-1", Title: "High Achiever", Type: challenge.TypeQuizScore,
		Requirements: challenge.Requirements{TargetScore: 85},
		PointsReward: 30, Date: today, Active: true,
	})
	handler := NewSubmitActivityHandler(store, nil, nil, nil, nil)
	ctx := context.Background()

	submit := func(score int) {
		_, err := handler.Handle(ctx, SubmitActivityCommand{
			UserID:       "user-1",
			ActivityType: progression.ActivityQuizCompleted,
			Metadata:     progression.QuizMetadata{Score: score},
			Today:        today,
		})
		require.NoError(t, err)
	}

	submit(70)
	assert.Equal(t, 1, store.challenges.saves)

	// Худший балл не меняет счётчики - прогресс не перезаписывается.
	submit(40)
	assert.Equal(t, 1, store.challenges.saves)

	submit(90)
	assert.Equal(t, 2, store.challenges.saves)
}

func TestSubmitActivity_ChallengeFailureDegradesResult(t *testing.T) {
	store := newMemStore()
	store.challenges.activeErr = assert.AnError
	handler := NewSubmitActivityHandler(store, nil, nil, nil, nil)

	result, err := handler.Handle(context.Background(), SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityQuizCompleted,
		Metadata:     progression.QuizMetadata{Score: 60},
		Today:        timeutil.Date(2026, 3, 4),
	})
	require.NoError(t, err)

	// Начисление прошло, сбой челленджей отражён предупреждением.
	assert.Equal(t, progression.PointsQuizBase, result.TotalPoints)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "challenge advancement skipped")
}

func TestSubmitActivity_AchievementFailureDegradesResult(t *testing.T) {
	store := newMemStore()
	store.achievements.catalogErr = assert.AnError
	handler := NewSubmitActivityHandler(store, nil, nil, nil, nil)

	result, err := handler.Handle(context.Background(), SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityQuizCompleted,
		Metadata:     progression.QuizMetadata{Score: 60},
		Today:        timeutil.Date(2026, 3, 4),
	})
	require.NoError(t, err)

	assert.Equal(t, progression.PointsQuizBase, result.TotalPoints)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "achievement evaluation unavailable")
}

func TestSubmitActivity_ConflictIsRetried(t *testing.T) {
	store := &flakyStore{inner: newMemStore(), failures: 1}
	handler := NewSubmitActivityHandler(store, nil, nil, nil, nil)

	result, err := handler.Handle(context.Background(), SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityQuizCompleted,
		Metadata:     progression.QuizMetadata{Score: 60},
		Today:        timeutil.Date(2026, 3, 4),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, store.attempts)
	assert.Equal(t, progression.PointsQuizBase, result.TotalPoints)
}

func TestSubmitActivity_ConflictExhaustsRetries(t *testing.T) {
	store := &flakyStore{inner: newMemStore(), failures: 10}
	handler := NewSubmitActivityHandler(store, nil, nil, nil, nil)

	_, err := handler.Handle(context.Background(), SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityQuizCompleted,
		Metadata:     progression.QuizMetadata{Score: 60},
		Today:        timeutil.Date(2026, 3, 4),
	})
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)
	assert.Equal(t, 3, store.attempts)
}

func TestSubmitActivity_EventsPublishedAfterCommit(t *testing.T) {
	store := newMemStore()
	bus := &capturingPublisher{}
	handler := NewSubmitActivityHandler(store, nil, bus, nil, nil)

	result, err := handler.Handle(context.Background(), SubmitActivityCommand{
		UserID:       "user-1",
		ActivityType: progression.ActivityQuizCompleted,
		Metadata:     progression.QuizMetadata{Score: 60},
		Today:        timeutil.Date(2026, 3, 4),
	})
	require.NoError(t, err)

	assert.Equal(t, len(result.Events), len(bus.events))

	types := map[shared.EventType]int{}
	for _, e := range bus.events {
		types[e.EventType()]++
	}
	assert.Equal(t, 1, types[shared.EventPointsAwarded])
	assert.Equal(t, 1, types[shared.EventStreakUpdated])
}

type capturingPublisher struct {
	events []shared.Event
}

func (p *capturingPublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}
