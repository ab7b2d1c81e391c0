package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryckox/syntagma/internal/service"
	"github.com/ryckox/syntagma/pkg/migrate"
)

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j *funcJob) Name() string                      { return j.name }
func (j *funcJob) Timeout() time.Duration            { return time.Second }
func (j *funcJob) Execute(ctx context.Context) error { return j.fn(ctx) }

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := NewScheduler()
	var runs atomic.Int32
	require.NoError(t, s.Register("* * * * * *", &funcJob{name: "tick", fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_Register(t *testing.T) {
	s := NewScheduler()
	job := &funcJob{name: "noop", fn: func(context.Context) error { return nil }}

	assert.Error(t, s.Register("kein cron", job))
	require.NoError(t, s.Register("", job))
	assert.Error(t, s.Register("", job))
	assert.Empty(t, s.cron.Entries())

	assert.NoError(t, s.Trigger("noop"))
	assert.ErrorIs(t, s.Trigger("missing"), ErrJobNotFound)
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := NewScheduler()
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Register("", &funcJob{name: "slow", fn: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))

	done := make(chan error, 1)
	go func() { done <- s.Trigger("slow") }()
	<-started

	assert.ErrorIs(t, s.Trigger("slow"), ErrJobRunning)
	close(release)
	assert.NoError(t, <-done)
}

func TestScheduler_PropagatesJobError(t *testing.T) {
	s := NewScheduler()
	boom := errors.New("boom")
	require.NoError(t, s.Register("", &funcJob{name: "fail", fn: func(context.Context) error { return boom }}))

	assert.ErrorIs(t, s.Trigger("fail"), boom)
}

func TestScheduler_StoppedSchedulerDoesNotRun(t *testing.T) {
	s := NewScheduler()
	var ran bool
	require.NoError(t, s.Register("", &funcJob{name: "late", fn: func(context.Context) error {
		ran = true
		return nil
	}}))
	s.Start()
	s.Stop()

	assert.ErrorIs(t, s.Trigger("late"), context.Canceled)
	assert.False(t, ran)
}

func TestBackupJob(t *testing.T) {
	var calls int
	backups := service.NewBackupService(migrate.BackupFunc(func(context.Context) (string, error) {
		calls++
		return "backup.db", nil
	}))
	job := NewBackupJob(backups)

	s := NewScheduler()
	require.NoError(t, s.Register("", job))
	require.NoError(t, s.Trigger(job.Name()))
	assert.Equal(t, 1, calls)
}
