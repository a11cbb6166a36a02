package visibility

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/culling/frustum"
	"go.viam.com/culling/utils"
)

// Defaults for EvaluatorConfig.
const (
	DefaultOcclusionStep     = 1.0
	DefaultMaxOcclusionSteps = 64
	DefaultCoherenceFrames   = 3
)

// Reason explains a classification.
type Reason int

// Reasons, in the order the checks run. ReasonOutOfRange is assigned by callers to objects the
// spatial indexes ruled out before evaluation.
const (
	ReasonDisabled Reason = iota
	ReasonInvalid
	ReasonOutOfRange
	ReasonDistance
	ReasonFrustum
	ReasonCoherent
	ReasonOccluded
	ReasonVisible
)

func (r Reason) String() string {
	switch r {
	case ReasonDisabled:
		return "disabled"
	case ReasonInvalid:
		return "invalid"
	case ReasonOutOfRange:
		return "out_of_range"
	case ReasonDistance:
		return "distance"
	case ReasonFrustum:
		return "frustum"
	case ReasonCoherent:
		return "coherent"
	case ReasonOccluded:
		return "occluded"
	case ReasonVisible:
		return "visible"
	}
	return "unknown"
}

// Outcome is the result of evaluating one object.
type Outcome struct {
	Visible bool
	Reason  Reason
	// Plane is the frustum plane the object lies outside of when Reason is ReasonFrustum.
	Plane frustum.PlaneIndex
}

// EvaluatorConfig bounds the cost of a single evaluation.
type EvaluatorConfig struct {
	// OcclusionStep is the distance between ray-march samples.
	OcclusionStep float64
	// MaxOcclusionSteps caps the samples per ray; longer rays use proportionally wider steps.
	MaxOcclusionSteps int
	// CoherenceFrames is how many frames a visible object is trusted without an occlusion test.
	CoherenceFrames int
}

// Validate fills in defaults and rejects negative values.
func (cfg *EvaluatorConfig) Validate() error {
	if cfg.OcclusionStep < 0 || !utils.IsFinite(cfg.OcclusionStep) {
		return errors.Errorf("occlusion step must be a positive number, got %v", cfg.OcclusionStep)
	}
	if cfg.MaxOcclusionSteps < 0 {
		return errors.Errorf("max occlusion steps must not be negative, got %d", cfg.MaxOcclusionSteps)
	}
	if cfg.CoherenceFrames < 0 {
		return errors.Errorf("coherence frames must not be negative, got %d", cfg.CoherenceFrames)
	}
	if cfg.OcclusionStep == 0 {
		cfg.OcclusionStep = DefaultOcclusionStep
	}
	if cfg.MaxOcclusionSteps == 0 {
		cfg.MaxOcclusionSteps = DefaultMaxOcclusionSteps
	}
	if cfg.CoherenceFrames == 0 {
		cfg.CoherenceFrames = DefaultCoherenceFrames
	}
	return nil
}

// Pass is the shared, read-only input to every evaluation of one culling pass.
type Pass struct {
	Frustum frustum.Frustum
	Camera  r3.Vector
	Mode    Mode
	Config  ModeConfig
	Now     time.Time
	// Occluders is consulted by the occlusion test. A nil source disables it.
	Occluders OccluderSource
	// SearchRadius is the radius around each ray sample passed to Occluders. It must be at least
	// the largest distance from an object's position to a corner of its box.
	SearchRadius float64
}

// Evaluator classifies objects. It is safe for concurrent use as long as each goroutine works
// on its own Record.
type Evaluator struct {
	cfg              EvaluatorConfig
	occlusionTests   atomic.Int64
	occlusionSamples atomic.Int64
}

// NewEvaluator returns an evaluator using cfg.
func NewEvaluator(cfg EvaluatorConfig) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{cfg: cfg}, nil
}

// Config returns the evaluator's configuration with defaults applied.
func (e *Evaluator) Config() EvaluatorConfig {
	return e.cfg
}

// OcclusionTests returns the number of occlusion ray-marches run so far.
func (e *Evaluator) OcclusionTests() int64 {
	return e.occlusionTests.Load()
}

// OcclusionSamples returns the number of ray-march samples taken so far.
func (e *Evaluator) OcclusionSamples() int64 {
	return e.occlusionSamples.Load()
}

// Evaluate classifies target for the pass and updates rec. Cheaper checks run first and the
// first check that culls the object decides the outcome.
func (e *Evaluator) Evaluate(pass *Pass, target Target, rec *Record) Outcome {
	if pass.Mode == Disabled {
		rec.MarkVisible(pass.Now)
		return Outcome{Visible: true, Reason: ReasonDisabled}
	}

	if !target.Bounds.Valid() || !utils.IsFinite(target.Position.X, target.Position.Y, target.Position.Z) {
		rec.MarkCulled(pass.Now)
		return Outcome{Reason: ReasonInvalid}
	}

	if target.Position.Distance(pass.Camera) > pass.Config.MaxDistance {
		rec.MarkCulled(pass.Now)
		return Outcome{Reason: ReasonDistance}
	}

	if plane, outside := pass.Frustum.SeparatingPlane(target.Bounds); outside {
		rec.MarkCulled(pass.Now)
		return Outcome{Reason: ReasonFrustum, Plane: plane}
	}

	if !pass.Config.OcclusionCulling || pass.Occluders == nil {
		rec.MarkVisible(pass.Now)
		return Outcome{Visible: true, Reason: ReasonVisible}
	}

	if rec.Evaluated && rec.IsVisible && rec.FramesSinceVisible < e.cfg.CoherenceFrames {
		rec.markCoherent()
		return Outcome{Visible: true, Reason: ReasonCoherent}
	}

	if e.occluded(pass, target) {
		rec.MarkCulled(pass.Now)
		return Outcome{Reason: ReasonOccluded}
	}
	rec.MarkVisible(pass.Now)
	return Outcome{Visible: true, Reason: ReasonVisible}
}

// occluded marches from the camera toward the target's position and reports whether any sample
// falls inside the box of another opaque object. Samples are tested against boxes, not rays, so
// this approximates real occlusion. Objects whose box contains the camera never occlude, and
// static geometry that is not tracked is not considered.
func (e *Evaluator) occluded(pass *Pass, target Target) bool {
	e.occlusionTests.Inc()

	ray := target.Position.Sub(pass.Camera)
	length := ray.Norm()
	if length == 0 {
		return false
	}
	dir := ray.Mul(1 / length)

	step := e.cfg.OcclusionStep
	steps := int(math.Ceil(length/step)) - 1
	if steps > e.cfg.MaxOcclusionSteps {
		steps = e.cfg.MaxOcclusionSteps
		step = length / float64(steps+1)
	}

	for i := 1; i <= steps; i++ {
		sample := pass.Camera.Add(dir.Mul(step * float64(i)))
		e.occlusionSamples.Inc()
		for _, o := range pass.Occluders.OccludersNear(sample, pass.SearchRadius) {
			if o.ID == target.ID || !o.Opaque {
				continue
			}
			if o.Bounds.ContainsPoint(sample) && !o.Bounds.ContainsPoint(pass.Camera) {
				return true
			}
		}
	}
	return false
}
