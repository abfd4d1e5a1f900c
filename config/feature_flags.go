package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles and gradual rollouts.
// Supports percentage rollout, per-user overrides, and time-based activation.
type FeatureFlags struct {
	mu sync.RWMutex

	// Core features
	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // userID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Users are assigned based on hash of their ID
	RolloutPercent int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time

	// A/B test variant (for experiments)
	Variants []string
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID  string // progression account user ID
	IsAdmin bool   // administrative caller
}

// Predefined feature flag names.
const (
	// === Progression Features ===
	FeatureProgressionWeeklyStreaks = "progression.weekly_streaks" // weekly streak bonuses
	FeatureProgressionStreakRepair  = "progression.streak_repair"  // allow repairing a broken streak

	// === Achievement Features ===
	FeatureAchievements           = "achievements.unlocks"       // achievement evaluation
	FeatureAchievementRareTiers   = "achievements.rare_tiers"    // epic/legendary tiers
	FeatureAchievementCatalogSync = "achievements.catalog_sync"  // live catalog updates

	// === Challenge Features ===
	FeatureChallenges         = "challenges.daily"          // daily challenge cohort
	FeatureChallengeHardMode  = "challenges.hard_mode"      // harder challenge variants
	FeatureChallengeStreakDay = "challenges.streak_credit"  // streak counts toward challenges

	// === Leaderboard Features ===
	FeatureLeaderboardCache       = "leaderboard.cache"        // Redis-backed leaderboard
	FeatureLeaderboardRankEvents  = "leaderboard.rank_events"  // rank change events
	FeatureLeaderboardLevelTitles = "leaderboard.level_titles" // show level titles

	// === Operational Features ===
	FeatureOpsLedgerRepair = "ops.ledger_repair" // reconcile job rewrites drifted accounts

	// === Experimental Features ===
	FeatureExperimentalAnalytics = "experimental.analytics" // advanced analytics
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	// Initialize all features with defaults
	ff.initializeDefaults()

	// Load overrides from environment
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	// Progression features - core loop, enabled by default
	ff.features[FeatureProgressionWeeklyStreaks] = &Feature{
		Name:           FeatureProgressionWeeklyStreaks,
		Description:    "Weekly streak bonuses on ISO week transitions",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureProgressionStreakRepair] = &Feature{
		Name:           FeatureProgressionStreakRepair,
		Description:    "Allow repairing a broken daily streak",
		Enabled:        false, // Phase 2
		RolloutPercent: 0,
	}

	// Achievement features
	ff.features[FeatureAchievements] = &Feature{
		Name:           FeatureAchievements,
		Description:    "Evaluate and unlock achievements on submission",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureAchievementRareTiers] = &Feature{
		Name:           FeatureAchievementRareTiers,
		Description:    "Epic and legendary achievement tiers",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureAchievementCatalogSync] = &Feature{
		Name:           FeatureAchievementCatalogSync,
		Description:    "Live achievement catalog updates",
		Enabled:        false, // Phase 2
		RolloutPercent: 0,
	}

	// Challenge features
	ff.features[FeatureChallenges] = &Feature{
		Name:           FeatureChallenges,
		Description:    "Daily challenge cohort and progress tracking",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureChallengeHardMode] = &Feature{
		Name:           FeatureChallengeHardMode,
		Description:    "Harder challenge variants with bigger rewards",
		Enabled:        true,
		RolloutPercent: 50, // Gradual rollout
	}

	ff.features[FeatureChallengeStreakDay] = &Feature{
		Name:           FeatureChallengeStreakDay,
		Description:    "Streak continuation counts toward streak challenges",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Leaderboard features
	ff.features[FeatureLeaderboardCache] = &Feature{
		Name:           FeatureLeaderboardCache,
		Description:    "Serve leaderboard from Redis sorted set",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureLeaderboardRankEvents] = &Feature{
		Name:           FeatureLeaderboardRankEvents,
		Description:    "Emit rank change events on rebuilds",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureLeaderboardLevelTitles] = &Feature{
		Name:           FeatureLeaderboardLevelTitles,
		Description:    "Show level titles next to entries",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Operational features
	ff.features[FeatureOpsLedgerRepair] = &Feature{
		Name:           FeatureOpsLedgerRepair,
		Description:    "Reconcile job rewrites drifted accounts from the ledger",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Experimental features - disabled by default
	ff.features[FeatureExperimentalAnalytics] = &Feature{
		Name:           FeatureExperimentalAnalytics,
		Description:    "Advanced analytics dashboard",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_CHALLENGES_DAILY=true
// Example: FEATURE_CHALLENGES_HARD_MODE=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "challenges.hard_mode" -> "FEATURE_CHALLENGES_HARD_MODE"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check user overrides first
	if ctx != nil && ctx.UserID != "" {
		if userOverrides, ok := ff.userOverrides[ctx.UserID]; ok {
			if enabled, ok := userOverrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Admin users get all features
	if ctx != nil && ctx.IsAdmin {
		return true
	}

	// Check if feature is enabled at all
	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return ff.isInRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a user is in the rollout percentage.
// Uses consistent hashing so users stay in their bucket.
func (ff *FeatureFlags) isInRollout(userID string, featureName string, percent int) bool {
	// Create a consistent hash for this user+feature combination
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// GetVariant returns the A/B test variant for a user.
// Returns empty string if no variants defined or feature disabled.
func (ff *FeatureFlags) GetVariant(featureName string, ctx *FeatureContext) string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || !ff.IsEnabled(featureName, ctx) {
		return ""
	}

	if len(feature.Variants) == 0 {
		return ""
	}

	// Use consistent hashing to assign variant
	h := fnv.New32a()
	h.Write([]byte(featureName + "_variant"))
	h.Write([]byte(ctx.UserID))
	hash := h.Sum32()

	variantIndex := int(hash % uint32(len(feature.Variants)))
	return feature.Variants[variantIndex]
}

// SetUserOverride sets a feature override for a specific user.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetUserOverride(userID string, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		// Return a copy
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Convenience methods for common checks ---

// GamificationEnabled checks if the cascade-producing features are enabled.
func (ff *FeatureFlags) GamificationEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureAchievements, ctx) ||
		ff.IsEnabled(FeatureChallenges, ctx)
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
