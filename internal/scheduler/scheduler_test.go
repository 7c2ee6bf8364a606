package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/tickwatch/tickwatch/internal/platform/config"
)

type fakeJob struct {
	mu    sync.Mutex
	runs  int
	count int
	err   error
	block chan struct{}
}

func (j *fakeJob) Run(_ context.Context) (int, error) {
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()

	if j.block != nil {
		<-j.block
	}

	return j.count, j.err
}

func (j *fakeJob) runCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.runs
}

func newTestScheduler(ingest, triage, fetch, classify, personalize, rank *fakeJob) *Scheduler {
	nop := zerolog.Nop()

	return New(&config.Config{}, ingest, triage, fetch, classify, personalize, rank, nil, &nop)
}

func noopJobs() (*fakeJob, *fakeJob, *fakeJob, *fakeJob, *fakeJob) {
	return &fakeJob{}, &fakeJob{}, &fakeJob{}, &fakeJob{}, &fakeJob{}
}

func TestRunIngestReturnsCount(t *testing.T) {
	ingest := &fakeJob{count: 7}
	triage, fetch, classify, personalize, rank := noopJobs()

	s := newTestScheduler(ingest, triage, fetch, classify, personalize, rank)

	assert.Equal(t, 7, s.RunIngest(context.Background()))
	assert.Equal(t, 1, ingest.runCount())
}

func TestRunIngestSingleFlight(t *testing.T) {
	block := make(chan struct{})
	ingest := &fakeJob{count: 3, block: block}
	triage, fetch, classify, personalize, rank := noopJobs()

	s := newTestScheduler(ingest, triage, fetch, classify, personalize, rank)

	first := make(chan int, 1)

	go func() {
		first <- s.RunIngest(context.Background())
	}()

	// Wait for the first invocation to take the lock.
	for i := 0; i < 100 && ingest.runCount() == 0; i++ {
		time.Sleep(time.Millisecond)
	}

	// Overlapping invocation is dropped, not queued.
	assert.Equal(t, 0, s.RunIngest(context.Background()))

	close(block)

	assert.Equal(t, 3, <-first)
	assert.Equal(t, 1, ingest.runCount())
}

func TestRunJobSwallowsErrors(t *testing.T) {
	ingest := &fakeJob{count: 9, err: errors.New("provider exploded")}
	triage, fetch, classify, personalize, rank := noopJobs()

	s := newTestScheduler(ingest, triage, fetch, classify, personalize, rank)

	assert.Equal(t, 0, s.RunIngest(context.Background()))

	// The lock was released; the next cadence runs normally.
	ingest.err = nil
	assert.Equal(t, 9, s.RunIngest(context.Background()))
}

func TestRunJobRecoversPanic(t *testing.T) {
	triage, fetch, classify, personalize, rank := noopJobs()
	s := newTestScheduler(&fakeJob{}, triage, fetch, classify, personalize, rank)

	got := s.runJob(context.Background(), JobIngest, func(_ context.Context) (int, error) {
		panic("stage blew up")
	})

	assert.Equal(t, 0, got)
	assert.False(t, s.locks.Held(JobIngest), "lock must be released after a panic")
}

func TestRunProcessSumsStagesAndSurvivesFailures(t *testing.T) {
	ingest := &fakeJob{}
	triage := &fakeJob{count: 4}
	fetch := &fakeJob{err: errors.New("network down")}
	classify := &fakeJob{count: 2}
	personalize := &fakeJob{count: 1}
	rank := &fakeJob{}

	s := newTestScheduler(ingest, triage, fetch, classify, personalize, rank)

	assert.Equal(t, 7, s.RunProcess(context.Background()))

	// Every stage ran despite the fetch failure.
	assert.Equal(t, 1, triage.runCount())
	assert.Equal(t, 1, fetch.runCount())
	assert.Equal(t, 1, classify.runCount())
	assert.Equal(t, 1, personalize.runCount())
}

func TestTasksDisabledByConfig(t *testing.T) {
	nop := zerolog.Nop()
	triage, fetch, classify, personalize, rank := noopJobs()
	s := New(&config.Config{SchedulerDisabled: true}, &fakeJob{}, triage, fetch, classify, personalize, rank, nil, &nop)

	assert.Empty(t, s.Tasks())
}

func TestTasksStaggeredDelays(t *testing.T) {
	nop := zerolog.Nop()
	triage, fetch, classify, personalize, rank := noopJobs()

	cfg := &config.Config{
		IngestInterval:  15 * time.Minute,
		ProcessInterval: 5 * time.Minute,
		RankInterval:    10 * time.Minute,
		InitialDelay:    10 * time.Second,
	}

	s := New(cfg, &fakeJob{}, triage, fetch, classify, personalize, rank, nil, &nop)

	tasks := s.Tasks()
	assert.Len(t, tasks, 3)

	for i := 1; i < len(tasks); i++ {
		assert.Greater(t, tasks[i].InitialDelay, tasks[i-1].InitialDelay, "kick-offs must be staggered")
	}
}
