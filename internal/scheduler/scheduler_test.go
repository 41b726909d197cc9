package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs int32
	err  error
}

func (j *countingJob) Run() error {
	atomic.AddInt32(&j.runs, 1)
	return j.err
}

func (j *countingJob) Name() string { return j.name }

func TestScheduler_AddJobRejectsInvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", &countingJob{name: "bad"})
	assert.Error(t, err)
}

func TestScheduler_RunNowExecutesImmediately(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "once"}

	require.NoError(t, s.RunNow(job))

	assert.EqualValues(t, 1, atomic.LoadInt32(&job.runs))
}

func TestScheduler_RunNowPropagatesJobError(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "failing", err: assert.AnError}

	err := s.RunNow(job)

	assert.ErrorIs(t, err, assert.AnError)
}

func TestScheduler_StartRunsRegisteredJobOnEverySecond(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "tick"}
	require.NoError(t, s.AddJob("* * * * * *", job))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&job.runs) >= 1
	}, 3*time.Second, 50*time.Millisecond, "a per-second schedule must fire at least once within a few seconds")
}
