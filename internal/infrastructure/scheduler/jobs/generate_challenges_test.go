package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/progression-engine/internal/application/command"
	"github.com/studyhub/progression-engine/internal/domain/challenge"
)

// fakeChallengeRepo counts inserts; enough to observe whether a run generated.
type fakeChallengeRepo struct {
	inserted int
}

func (r *fakeChallengeRepo) ActiveForDate(_ context.Context, _ time.Time) ([]*challenge.Challenge, error) {
	return nil, nil
}

func (r *fakeChallengeRepo) ExistsForDate(_ context.Context, _ time.Time) (bool, error) {
	return r.inserted > 0, nil
}

func (r *fakeChallengeRepo) Insert(_ context.Context, _ *challenge.Challenge) (bool, error) {
	r.inserted++
	return true, nil
}

func (r *fakeChallengeRepo) GetProgress(_ context.Context, _, _ string) (*challenge.Progress, error) {
	return nil, nil
}

func (r *fakeChallengeRepo) SaveProgress(_ context.Context, _ *challenge.Progress) error { return nil }

func (r *fakeChallengeRepo) ProgressForDate(_ context.Context, _ string, _ time.Time) (map[string]*challenge.Progress, error) {
	return nil, nil
}

// stubLocker records acquire/release calls.
type stubLocker struct {
	ok         bool
	acquireErr error
	acquired   bool
	released   bool
}

func (l *stubLocker) Acquire(_ context.Context) (bool, error) {
	l.acquired = true
	return l.ok, l.acquireErr
}

func (l *stubLocker) Release(_ context.Context) error {
	l.released = true
	return nil
}

func newJob(repo *fakeChallengeRepo) *GenerateChallengesJob {
	handler := command.NewGenerateChallengesHandler(repo, nil, nil)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGenerateChallengesJob(handler, log)
}

func TestGenerateChallengesJob_Run(t *testing.T) {
	repo := &fakeChallengeRepo{}
	job := newJob(repo)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, repo.inserted)
}

func TestGenerateChallengesJob_WithLockReleasesAfterRun(t *testing.T) {
	repo := &fakeChallengeRepo{}
	lock := &stubLocker{ok: true}
	job := newJob(repo).WithLock(lock)

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 3, repo.inserted)
	assert.True(t, lock.acquired)
	assert.True(t, lock.released)
}

func TestGenerateChallengesJob_SkipsWhenLockHeld(t *testing.T) {
	repo := &fakeChallengeRepo{}
	lock := &stubLocker{ok: false}
	job := newJob(repo).WithLock(lock)

	// Another replica holds the lock: no work, no error.
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 0, repo.inserted)
	assert.False(t, lock.released)
}

func TestGenerateChallengesJob_LockFailureProceeds(t *testing.T) {
	repo := &fakeChallengeRepo{}
	lock := &stubLocker{acquireErr: assert.AnError}
	job := newJob(repo).WithLock(lock)

	// Lock backend outage must not block generation, it is idempotent.
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 3, repo.inserted)
	assert.False(t, lock.released)
}

func TestGenerateChallengesJob_Metadata(t *testing.T) {
	job := newJob(&fakeChallengeRepo{})
	assert.Equal(t, "generate_challenges", job.Name())
	assert.NotEmpty(t, job.Description())
}
