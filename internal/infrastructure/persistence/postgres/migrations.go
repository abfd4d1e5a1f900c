// Package postgres implements the PostgreSQL persistence layer of the
// progression engine.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PROGRESSION
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create progression accounts and the points ledger
-- Version: 001

-- One row per user; total_points is a cached projection of the ledger.
CREATE TABLE IF NOT EXISTS progression_accounts (
    user_id UUID PRIMARY KEY,
    total_points INTEGER NOT NULL DEFAULT 0,
    current_level INTEGER NOT NULL DEFAULT 1,
    points_in_level INTEGER NOT NULL DEFAULT 0,
    daily_streak INTEGER NOT NULL DEFAULT 0,
    weekly_streak INTEGER NOT NULL DEFAULT 0,
    last_activity_date DATE,
    last_week_start DATE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_points CHECK (total_points >= 0),
    CONSTRAINT valid_current_level CHECK (current_level >= 1),
    CONSTRAINT valid_points_in_level CHECK (points_in_level >= 0),
    CONSTRAINT valid_daily_streak CHECK (daily_streak >= 0),
    CONSTRAINT valid_weekly_streak CHECK (weekly_streak >= 0)
);

-- Composite index for leaderboard queries
CREATE INDEX IF NOT EXISTS idx_accounts_leaderboard
    ON progression_accounts(total_points DESC, current_level DESC);

-- Append-only points ledger: rows are never updated or deleted.
CREATE TABLE IF NOT EXISTS point_transactions (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    activity_type VARCHAR(40) NOT NULL,
    points_earned INTEGER NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    metadata JSONB,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_points_earned CHECK (points_earned >= 0)
);

CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON point_transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON point_transactions(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_user_type ON point_transactions(user_id, activity_type);
`

const migration001Down = `
DROP TABLE IF EXISTS point_transactions;
DROP TABLE IF EXISTS progression_accounts;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create achievement catalog and unlocks
-- Version: 002

CREATE TABLE IF NOT EXISTS achievements (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name VARCHAR(100) NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    category VARCHAR(40) NOT NULL DEFAULT 'general',
    rarity SMALLINT NOT NULL DEFAULT 1,
    criteria JSONB NOT NULL DEFAULT '[]'::jsonb,
    points_reward INTEGER NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_rarity CHECK (rarity BETWEEN 1 AND 4),
    CONSTRAINT valid_points_reward CHECK (points_reward >= 0)
);

CREATE INDEX IF NOT EXISTS idx_achievements_active ON achievements(is_active) WHERE is_active;

-- The composite primary key doubles as the idempotency guard:
-- INSERT ... ON CONFLICT DO NOTHING, only the inserting caller awards
-- the bonus points.
CREATE TABLE IF NOT EXISTS achievement_unlocks (
    user_id UUID NOT NULL,
    achievement_id UUID NOT NULL REFERENCES achievements(id) ON DELETE CASCADE,
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_unlocks_user_id ON achievement_unlocks(user_id);
`

const migration002Down = `
DROP TABLE IF EXISTS achievement_unlocks;
DROP TABLE IF EXISTS achievements;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE CHALLENGES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create daily challenges and per-user progress
-- Version: 003

-- The (challenge_date, title) uniqueness makes cohort generation
-- idempotent under concurrent generators.
CREATE TABLE IF NOT EXISTS daily_challenges (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    title VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    challenge_type VARCHAR(30) NOT NULL,
    requirements JSONB NOT NULL DEFAULT '{}'::jsonb,
    points_reward INTEGER NOT NULL DEFAULT 0,
    challenge_date DATE NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_challenge_type CHECK (
        challenge_type IN ('quiz_count', 'quiz_score', 'perfect_score', 'streak', 'study_time')
    ),
    CONSTRAINT valid_reward CHECK (points_reward >= 0),

    UNIQUE (challenge_date, title)
);

CREATE INDEX IF NOT EXISTS idx_challenges_date ON daily_challenges(challenge_date) WHERE is_active;

-- completed is a monotonic latch: once TRUE the row is frozen.
CREATE TABLE IF NOT EXISTS challenge_progress (
    user_id UUID NOT NULL,
    challenge_id UUID NOT NULL REFERENCES daily_challenges(id) ON DELETE CASCADE,
    counters JSONB NOT NULL DEFAULT '{}'::jsonb,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, challenge_id)
);

CREATE INDEX IF NOT EXISTS idx_progress_user_id ON challenge_progress(user_id);
`

const migration003Down = `
DROP TABLE IF EXISTS challenge_progress;
DROP TABLE IF EXISTS daily_challenges;
`
