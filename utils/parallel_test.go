package utils

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/atomic"
	"go.viam.com/test"
)

func TestForEachChunk(t *testing.T) {
	ctx := context.Background()
	items := make([]int, 103)
	for i := range items {
		items[i] = i
	}

	t.Run("every item visited once", func(t *testing.T) {
		var mu sync.Mutex
		seen := map[int]int{}
		var chunks atomic.Int32
		err := ForEachChunk(ctx, items, 4, func(ctx context.Context, chunk []int) error {
			chunks.Inc()
			mu.Lock()
			defer mu.Unlock()
			for _, item := range chunk {
				seen[item]++
			}
			return nil
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(seen), test.ShouldEqual, len(items))
		for _, count := range seen {
			test.That(t, count, test.ShouldEqual, 1)
		}
		test.That(t, chunks.Load(), test.ShouldEqual, 4)
	})

	t.Run("single worker runs inline", func(t *testing.T) {
		calls := 0
		err := ForEachChunk(ctx, items, 1, func(ctx context.Context, chunk []int) error {
			calls++
			test.That(t, len(chunk), test.ShouldEqual, len(items))
			return nil
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, calls, test.ShouldEqual, 1)
	})

	t.Run("empty input", func(t *testing.T) {
		err := ForEachChunk(ctx, []int{}, 4, func(ctx context.Context, chunk []int) error {
			return errors.New("should not run")
		})
		test.That(t, err, test.ShouldBeNil)
	})

	t.Run("error is returned", func(t *testing.T) {
		err := ForEachChunk(ctx, items, 3, func(ctx context.Context, chunk []int) error {
			if chunk[0] == 0 {
				return errors.New("bad")
			}
			return nil
		})
		test.That(t, err, test.ShouldBeError, errors.New("bad"))
	})
}

func TestMath(t *testing.T) {
	test.That(t, DegToRad(180), test.ShouldAlmostEqual, 3.141592653589793)
	test.That(t, RadToDeg(DegToRad(90)), test.ShouldAlmostEqual, 90)
	test.That(t, Float64AlmostEqual(1, 1.0000001, 1e-6), test.ShouldBeTrue)
	test.That(t, Float64AlmostEqual(1, 1.1, 1e-6), test.ShouldBeFalse)
	test.That(t, IsFinite(1, 2, 3), test.ShouldBeTrue)
}
