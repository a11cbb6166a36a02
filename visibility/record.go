package visibility

import (
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/culling/spatialmath"
)

// Record is the cached visibility of one object.
type Record struct {
	IsVisible bool
	// LastChecked is when the object was last fully classified.
	LastChecked time.Time
	// FramesSinceVisible is 0 on the frame the object is found visible and grows by one for
	// every culled or coherence-skipped frame after that.
	FramesSinceVisible int
	// Evaluated is false until the first classification.
	Evaluated bool
}

// MarkVisible records a visible classification at now.
func (r *Record) MarkVisible(now time.Time) {
	r.IsVisible = true
	r.FramesSinceVisible = 0
	r.LastChecked = now
	r.Evaluated = true
}

// MarkCulled records a culled classification at now.
func (r *Record) MarkCulled(now time.Time) {
	r.IsVisible = false
	r.FramesSinceVisible++
	r.LastChecked = now
	r.Evaluated = true
}

func (r *Record) markCoherent() {
	r.FramesSinceVisible++
}

// Target is the world-space snapshot of an object under evaluation.
type Target struct {
	ID       string
	Position r3.Vector
	// Bounds is the object's box translated to world space.
	Bounds spatialmath.AABB
	Opaque bool
}

// OccluderSource finds tracked objects whose world box may contain a point. Results may include
// objects that do not.
type OccluderSource interface {
	OccludersNear(point r3.Vector, radius float64) []Target
}

// OccluderSourceFunc adapts a function to an OccluderSource.
type OccluderSourceFunc func(point r3.Vector, radius float64) []Target

// OccludersNear calls f.
func (f OccluderSourceFunc) OccludersNear(point r3.Vector, radius float64) []Target {
	return f(point, radius)
}
