package utils

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
)

func TestStoppableWorkers(t *testing.T) {
	var started atomic.Bool
	workers := NewStoppableWorkers(func(ctx context.Context) {
		started.Store(true)
		<-ctx.Done()
	})
	workers.Stop()
	test.That(t, started.Load(), test.ShouldBeTrue)
	test.That(t, workers.Context().Err(), test.ShouldNotBeNil)

	// Workers added after Stop never run.
	var lateRan atomic.Bool
	workers.AddWorkers(func(context.Context) { lateRan.Store(true) })
	test.That(t, lateRan.Load(), test.ShouldBeFalse)
}

func TestStoppableWorkerWithTicker(t *testing.T) {
	mockClock := clock.NewMock()
	calls := make(chan struct{}, 10)
	workers := NewStoppableWorkerWithTicker(mockClock, 15*time.Millisecond, func(context.Context) {
		calls <- struct{}{}
	})
	defer workers.Stop()

	for i := 0; i < 3; i++ {
		// Give the worker goroutine a moment to register its ticker with the mock clock.
		time.Sleep(10 * time.Millisecond)
		mockClock.Add(15 * time.Millisecond)
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatal("ticker worker was not called")
		}
	}
}
