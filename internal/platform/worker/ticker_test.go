package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWait(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Wait with zero duration should return immediately, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Wait(ctx, time.Hour); err == nil {
		t.Error("Wait on a cancelled context should return an error")
	}
}

func TestTickerLoopRunsTask(t *testing.T) {
	var runs atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = TickerLoop(ctx, TickerConfig{
			Name: "test",
			Tasks: []TickerTask{{
				Name:     "tick",
				Interval: 5 * time.Millisecond,
				Run: func(_ context.Context) {
					runs.Add(1)
				},
			}},
		})
	}()

	deadline := time.After(time.Second)

	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("task did not run twice within a second")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestTickerLoopSkipsInvalidTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := TickerLoop(ctx, TickerConfig{
		Name:  "test",
		Tasks: []TickerTask{{Name: "no-run", Interval: time.Millisecond}},
	})
	if err == nil {
		t.Error("TickerLoop should return the context error on cancellation")
	}
}
