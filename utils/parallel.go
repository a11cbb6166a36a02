package utils

import (
	"context"
	"runtime"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// ForEachChunk splits items into at most `workers` contiguous chunks and runs fn on each chunk
// in its own goroutine. With one worker (or one item) fn runs on the calling goroutine. The first
// error cancels the context handed to the remaining chunks and is returned.
func ForEachChunk[T any](ctx context.Context, items []T, workers int, fn func(ctx context.Context, chunk []T) error) error {
	if len(items) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = ParallelFactor
	}
	if workers == 1 || len(items) == 1 {
		return fn(ctx, items)
	}

	chunkSize := (len(items) + workers - 1) / workers
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for _, chunk := range lo.Chunk(items, chunkSize) {
		chunk := chunk
		group.Go(func() error {
			return fn(groupCtx, chunk)
		})
	}
	return group.Wait()
}
