// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Progression events
	EventPointsAwarded EventType = "progression.points_awarded"
	EventLevelUp       EventType = "progression.level_up"
	EventStreakUpdated EventType = "progression.streak_updated"
	EventStreakBroken  EventType = "progression.streak_broken"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"

	// Challenge events
	EventChallengeCompleted  EventType = "challenge.completed"
	EventChallengesGenerated EventType = "challenge.cohort_generated"

	// Leaderboard events
	EventRankChanged        EventType = "leaderboard.rank_changed"
	EventLeaderboardUpdated EventType = "leaderboard.updated"

	// System events
	EventLedgerDriftDetected EventType = "system.ledger_drift_detected"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression Events
// ═══════════════════════════════════════════════════════════════════════════

// PointsAwardedEvent is emitted when a user earns points for an activity.
type PointsAwardedEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	ActivityType string `json:"activity_type"`
	Points       int    `json:"points"`
	NewTotal     int    `json:"new_total"`
	Description  string `json:"description,omitempty"`
}

// Payload implements Event interface.
func (e PointsAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"activity_type": e.ActivityType,
		"points":        e.Points,
		"new_total":     e.NewTotal,
		"description":   e.Description,
	}
}

// NewPointsAwardedEvent creates a new PointsAwardedEvent.
func NewPointsAwardedEvent(userID, activityType string, points, newTotal int, description string) PointsAwardedEvent {
	return PointsAwardedEvent{
		BaseEvent:    NewBaseEvent(EventPointsAwarded, userID),
		UserID:       userID,
		ActivityType: activityType,
		Points:       points,
		NewTotal:     newTotal,
		Description:  description,
	}
}

// LevelUpEvent is emitted when a user's accumulated points cross a level threshold.
type LevelUpEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	Title    string `json:"title"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"title":     e.Title,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel int, title string) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID),
		UserID:    userID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		Title:     title,
	}
}

// StreakUpdatedEvent is emitted when a user's daily streak advances.
type StreakUpdatedEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	DailyStreak  int    `json:"daily_streak"`
	WeeklyStreak int    `json:"weekly_streak"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"daily_streak":  e.DailyStreak,
		"weekly_streak": e.WeeklyStreak,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(userID string, dailyStreak, weeklyStreak int) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:    NewBaseEvent(EventStreakUpdated, userID),
		UserID:       userID,
		DailyStreak:  dailyStreak,
		WeeklyStreak: weeklyStreak,
	}
}

// StreakBrokenEvent is emitted when a gap in activity resets a user's streak.
type StreakBrokenEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	PreviousStreak int    `json:"previous_streak"`
	DaysMissed     int    `json:"days_missed"`
}

// Payload implements Event interface.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"previous_streak": e.PreviousStreak,
		"days_missed":     e.DaysMissed,
	}
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(userID string, previousStreak, daysMissed int) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventStreakBroken, userID),
		UserID:         userID,
		PreviousStreak: previousStreak,
		DaysMissed:     daysMissed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted when a user unlocks an achievement.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID          string `json:"user_id"`
	AchievementID   string `json:"achievement_id"`
	AchievementName string `json:"achievement_name"`
	PointsReward    int    `json:"points_reward"`
	Rarity          int    `json:"rarity"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"achievement_id":   e.AchievementID,
		"achievement_name": e.AchievementName,
		"points_reward":    e.PointsReward,
		"rarity":           e.Rarity,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementID, name string, reward, rarity int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:       NewBaseEvent(EventAchievementUnlocked, userID),
		UserID:          userID,
		AchievementID:   achievementID,
		AchievementName: name,
		PointsReward:    reward,
		Rarity:          rarity,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Challenge Events
// ═══════════════════════════════════════════════════════════════════════════

// ChallengeCompletedEvent is emitted when a user completes a daily challenge.
type ChallengeCompletedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	ChallengeID   string `json:"challenge_id"`
	ChallengeName string `json:"challenge_name"`
	PointsReward  int    `json:"points_reward"`
}

// Payload implements Event interface.
func (e ChallengeCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"challenge_id":   e.ChallengeID,
		"challenge_name": e.ChallengeName,
		"points_reward":  e.PointsReward,
	}
}

// NewChallengeCompletedEvent creates a new ChallengeCompletedEvent.
func NewChallengeCompletedEvent(userID, challengeID, name string, reward int) ChallengeCompletedEvent {
	return ChallengeCompletedEvent{
		BaseEvent:     NewBaseEvent(EventChallengeCompleted, userID),
		UserID:        userID,
		ChallengeID:   challengeID,
		ChallengeName: name,
		PointsReward:  reward,
	}
}

// ChallengesGeneratedEvent is emitted when a day's challenge cohort is created.
type ChallengesGeneratedEvent struct {
	BaseEvent
	Date    string `json:"date"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
}

// Payload implements Event interface.
func (e ChallengesGeneratedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"date":    e.Date,
		"created": e.Created,
		"skipped": e.Skipped,
	}
}

// NewChallengesGeneratedEvent creates a new ChallengesGeneratedEvent.
func NewChallengesGeneratedEvent(date string, created, skipped int) ChallengesGeneratedEvent {
	return ChallengesGeneratedEvent{
		BaseEvent: NewBaseEvent(EventChallengesGenerated, date),
		Date:      date,
		Created:   created,
		Skipped:   skipped,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Leaderboard Events
// ═══════════════════════════════════════════════════════════════════════════

// RankChangedEvent is emitted when a user's leaderboard rank changes.
type RankChangedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	OldRank    int    `json:"old_rank"`
	NewRank    int    `json:"new_rank"`
	RankChange int    `json:"rank_change"` // Positive = moved up, Negative = moved down
}

// Payload implements Event interface.
func (e RankChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"old_rank":    e.OldRank,
		"new_rank":    e.NewRank,
		"rank_change": e.RankChange,
	}
}

// NewRankChangedEvent creates a new RankChangedEvent.
func NewRankChangedEvent(userID string, oldRank, newRank int) RankChangedEvent {
	return RankChangedEvent{
		BaseEvent:  NewBaseEvent(EventRankChanged, userID),
		UserID:     userID,
		OldRank:    oldRank,
		NewRank:    newRank,
		RankChange: oldRank - newRank, // Positive means moved up
	}
}

// MovedUp returns true if the user moved up in rank.
func (e RankChangedEvent) MovedUp() bool {
	return e.RankChange > 0
}

// MovedDown returns true if the user moved down in rank.
func (e RankChangedEvent) MovedDown() bool {
	return e.RankChange < 0
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// LedgerDriftDetectedEvent is emitted when the reconciliation job finds an
// account whose cached total disagrees with the sum of its ledger entries.
type LedgerDriftDetectedEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	CachedTotal int    `json:"cached_total"`
	LedgerTotal int    `json:"ledger_total"`
	Repaired    bool   `json:"repaired"`
}

// Payload implements Event interface.
func (e LedgerDriftDetectedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"cached_total": e.CachedTotal,
		"ledger_total": e.LedgerTotal,
		"repaired":     e.Repaired,
	}
}

// NewLedgerDriftDetectedEvent creates a new LedgerDriftDetectedEvent.
func NewLedgerDriftDetectedEvent(userID string, cachedTotal, ledgerTotal int, repaired bool) LedgerDriftDetectedEvent {
	return LedgerDriftDetectedEvent{
		BaseEvent:   NewBaseEvent(EventLedgerDriftDetected, userID),
		UserID:      userID,
		CachedTotal: cachedTotal,
		LedgerTotal: ledgerTotal,
		Repaired:    repaired,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
