package utils

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"
)

func TestStoppableWorkers(t *testing.T) {
	var running atomic.Int32
	workers := NewStoppableWorkers(func(ctx context.Context) {
		running.Inc()
		<-ctx.Done()
		running.Dec()
	})
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, running.Load(), test.ShouldEqual, 1)
	})
	test.That(t, workers.Stopped(), test.ShouldBeFalse)

	workers.Stop()
	test.That(t, running.Load(), test.ShouldEqual, 0)
	test.That(t, workers.Stopped(), test.ShouldBeTrue)
	test.That(t, workers.Context().Err(), test.ShouldNotBeNil)

	// Adding after Stop never starts the function.
	var started atomic.Bool
	workers.AddWorkers(func(ctx context.Context) { started.Store(true) })
	workers.Stop()
	test.That(t, started.Load(), test.ShouldBeFalse)
}

func TestRunEvery(t *testing.T) {
	mockClock := clock.NewMock()
	var calls atomic.Int32
	workers := NewStoppableWorkers(func(ctx context.Context) {
		RunEvery(ctx, mockClock, 10*time.Millisecond, func(context.Context) {
			calls.Inc()
		})
	})
	defer workers.Stop()

	test.That(t, calls.Load(), test.ShouldEqual, 0)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mockClock.Add(10 * time.Millisecond)
		test.That(tb, calls.Load(), test.ShouldBeGreaterThanOrEqualTo, 3)
	})
}
