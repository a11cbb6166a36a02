package culling

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"go.viam.com/culling/visibility"
)

// durationWindow is how many recent pass durations feed the average and percentile.
const durationWindow = 120

// Statistics is a snapshot of the engine's most recent pass.
type Statistics struct {
	// Frame counts passes that classified objects.
	Frame uint64
	// Processed is the number of objects classified by the last pass.
	Processed int
	// Candidates is how many of those the spatial indexes handed to the evaluator.
	Candidates int
	Visible    int
	Culled     int
	// Skipped counts passes skipped for lack of a usable camera.
	Skipped             uint64
	PassDuration        time.Duration
	AveragePassDuration time.Duration
	P95PassDuration     time.Duration
	TrackedCount        int
	// OcclusionTests counts occlusion ray-marches since the engine started.
	OcclusionTests int64
	Mode           visibility.Mode
	LastPass       time.Time
}

// PassDurationMs returns the last pass duration in milliseconds.
func (s Statistics) PassDurationMs() float64 {
	return float64(s.PassDuration) / float64(time.Millisecond)
}

// statsTracker accumulates pass statistics.
type statsTracker struct {
	mu        sync.Mutex
	current   Statistics
	durations []float64
	next      int
}

func (st *statsTracker) snapshot() Statistics {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.current
}

func (st *statsTracker) recordSkip(tracked int, occlusionTests int64) Statistics {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.current.Skipped++
	st.current.TrackedCount = tracked
	st.current.OcclusionTests = occlusionTests
	return st.current
}

func (st *statsTracker) recordPass(pass Statistics) Statistics {
	st.mu.Lock()
	defer st.mu.Unlock()

	ms := float64(pass.PassDuration) / float64(time.Millisecond)
	if len(st.durations) < durationWindow {
		st.durations = append(st.durations, ms)
	} else {
		st.durations[st.next] = ms
		st.next = (st.next + 1) % durationWindow
	}
	mean, _ := stats.Mean(st.durations)
	p95, err := stats.Percentile(st.durations, 95)
	if err != nil {
		// Too few samples to interpolate a percentile.
		p95, _ = stats.Max(st.durations)
	}

	pass.Frame = st.current.Frame + 1
	pass.Skipped = st.current.Skipped
	pass.AveragePassDuration = time.Duration(mean * float64(time.Millisecond))
	pass.P95PassDuration = time.Duration(p95 * float64(time.Millisecond))
	st.current = pass
	return pass
}

func (st *statsTracker) setTracked(tracked int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.current.TrackedCount = tracked
}
