package culling

import (
	"context"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/culling/spatialmath"
	"go.viam.com/culling/utils"
	"go.viam.com/culling/visibility"
)

// State is the scheduler's lifecycle state. Idle moves to Running on the first camera update;
// Terminated is final.
type State int32

// The scheduler states.
const (
	Idle State = iota
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// State returns the scheduler state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// start moves an idle engine to Running and starts the periodic pass.
func (e *Engine) start() {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	if !e.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return
	}
	if e.manual {
		e.logger.Infow("culling scheduler running, passes are forced")
		return
	}
	e.logger.Infow("culling scheduler running", "interval", e.interval)
	e.startWorkerLocked()
}

func (e *Engine) startWorkerLocked() {
	interval := e.interval
	e.worker = utils.NewStoppableWorkers(func(ctx context.Context) {
		utils.RunEvery(ctx, e.clock, interval, e.runTick)
	})
}

func (e *Engine) stopWorker() {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	if e.worker != nil {
		e.worker.Stop()
		e.worker = nil
	}
}

func (e *Engine) runTick(ctx context.Context) {
	if _, err := e.tick(ctx); err != nil && !errors.Is(err, ErrEngineClosed) {
		e.logger.Warnw("culling pass failed", "error", err)
	}
}

// SetTickInterval changes how often the periodic pass runs, restarting it if it is running.
func (e *Engine) SetTickInterval(d time.Duration) error {
	if d <= 0 {
		return errors.Errorf("tick interval must be positive, got %s", d)
	}
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	if e.State() == Terminated {
		return ErrEngineClosed
	}
	if d == e.interval {
		return nil
	}
	e.interval = d
	if e.worker != nil {
		e.worker.Stop()
		e.startWorkerLocked()
	}
	e.logger.Debugw("tick interval changed", "interval", d)
	return nil
}

// TickInterval returns the current tick interval.
func (e *Engine) TickInterval() time.Duration {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	return e.interval
}

// ForceTick runs one pass immediately, outside of the periodic schedule, and returns its
// statistics.
func (e *Engine) ForceTick(ctx context.Context) (Statistics, error) {
	return e.tick(ctx)
}

// work is one object's share of a pass.
type work struct {
	obj       *trackedObject
	target    visibility.Target
	candidate bool
	outcome   visibility.Outcome
}

func (e *Engine) tick(ctx context.Context) (Statistics, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	if e.State() == Terminated {
		return Statistics{}, ErrEngineClosed
	}
	if !e.enabled.Load() {
		return e.stats.snapshot(), nil
	}

	ctx, span := trace.StartSpan(ctx, "culling::tick")
	defer span.End()

	camera := e.camera.Load()
	if camera == nil || camera.err != nil {
		if camera != nil {
			e.logger.Warnw("skipping culling pass, camera matrices are degenerate", "error", camera.err)
		}
		stats := e.stats.recordSkip(e.TrackedCount(), e.evaluator.OcclusionTests())
		e.publish(stats)
		return stats, nil
	}

	start := e.clock.Now()
	mode, modeCfg := e.currentMode()
	dangling := e.refreshPositions()

	e.mu.RLock()
	items, candidates := e.gather(camera, mode, modeCfg)
	pass := &visibility.Pass{
		Frustum:      camera.frustum,
		Camera:       camera.position,
		Mode:         mode,
		Config:       modeCfg,
		Now:          start,
		SearchRadius: e.reach,
	}
	pass.Occluders = e.occluders(items)

	err := utils.ForEachChunk(ctx, items, e.workers, func(ctx context.Context, chunk []*work) error {
		for _, w := range chunk {
			e.classify(pass, w)
		}
		return nil
	})
	if err != nil {
		e.mu.RUnlock()
		return e.stats.snapshot(), err
	}

	result := Statistics{
		Processed:  len(items),
		Candidates: candidates,
		Mode:       mode,
		LastPass:   start,
	}
	var changed []*work
	for _, w := range items {
		if w.outcome.Visible {
			result.Visible++
		} else {
			result.Culled++
		}
		e.logObjectError(w)
		if w.obj.dangling {
			continue
		}
		if !w.obj.reported || w.obj.visible != w.outcome.Visible {
			changed = append(changed, w)
		}
	}
	result.TrackedCount = e.objects.size()
	e.mu.RUnlock()

	for _, w := range changed {
		res := Result{Handle: w.obj.handle, ID: w.obj.id, Visible: w.outcome.Visible}
		if err := e.sink.Apply(ctx, res); err != nil {
			e.logger.Warnw("failed to apply visibility", "id", res.ID, "visible", res.Visible, "error", err)
			continue
		}
		w.obj.reported = true
		w.obj.visible = w.outcome.Visible
	}

	if len(dangling) > 0 {
		e.mu.Lock()
		for _, h := range dangling {
			if obj, ok := e.objects.get(h); ok {
				e.logger.Infow("renderable no longer exists, unregistering object", "id", obj.id)
				e.unregisterLocked(h)
			}
		}
		result.TrackedCount = e.objects.size()
		e.mu.Unlock()
	}

	result.PassDuration = e.clock.Since(start)
	result.OcclusionTests = e.evaluator.OcclusionTests()
	stats := e.stats.recordPass(result)
	e.logger.CDebugw(ctx, "culling pass complete",
		"frame", stats.Frame, "visible", stats.Visible, "culled", stats.Culled, "duration", stats.PassDuration)
	span.AddAttributes(
		trace.Int64Attribute("processed", int64(stats.Processed)),
		trace.Int64Attribute("visible", int64(stats.Visible)),
	)
	e.publish(stats)
	return stats, nil
}

func (e *Engine) publish(stats Statistics) {
	if e.onStats != nil {
		e.onStats(stats)
	}
}

// refreshPositions re-reads every object's position and moves its index entries. It returns the
// objects whose renderable is gone.
func (e *Engine) refreshPositions() []Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	var dangling []Handle
	reach := 0.0
	e.objects.each(func(obj *trackedObject) {
		if obj.reach > reach {
			reach = obj.reach
		}
		position, ok := obj.provider.WorldPosition()
		if !ok {
			obj.dangling = true
			dangling = append(dangling, obj.handle)
			return
		}
		e.reindex(obj, position)
	})
	e.reach = reach
	return dangling
}

// gather builds the work list for a pass. Objects are candidates when both indexes place them
// near the frustum; every other object is culled without evaluation. Callers hold mu for reading.
func (e *Engine) gather(camera *cameraSnapshot, mode visibility.Mode, modeCfg visibility.ModeConfig) ([]*work, int) {
	items := make([]*work, 0, e.objects.size())
	byHandle := make(map[Handle]*work, e.objects.size())
	e.objects.each(func(obj *trackedObject) {
		w := &work{obj: obj, target: obj.target()}
		items = append(items, w)
		byHandle[obj.handle] = w
	})

	if mode == visibility.Disabled {
		for _, w := range items {
			w.candidate = true
		}
		return items, len(items)
	}

	// An object can only be visible if its position is within reach of a point inside the
	// frustum, and within the distance limit of the camera.
	radius := modeCfg.MaxDistance + e.reach
	region, ok := camera.bounds.Expand(e.reach).Intersection(spatialmath.NewAABB(
		camera.position.Sub(r3.Vector{X: radius, Y: radius, Z: radius}),
		camera.position.Add(r3.Vector{X: radius, Y: radius, Z: radius}),
	))

	inRegion := make(map[Handle]struct{}, len(e.outside))
	for h := range e.outside {
		inRegion[h] = struct{}{}
	}
	if ok {
		e.tree.QueryFunc(region, func(h Handle, _ r3.Vector) bool {
			inRegion[h] = struct{}{}
			return true
		})
	}

	candidates := 0
	e.grid.QueryFunc(camera.position, radius, func(h Handle, _ r3.Vector) bool {
		if _, ok := inRegion[h]; ok {
			if w, ok := byHandle[h]; ok && !w.candidate {
				w.candidate = true
				candidates++
			}
		}
		return true
	})

	// Objects with unusable positions or bounds go to the evaluator to be classified as invalid.
	for _, w := range items {
		if (w.obj.badPos || !w.obj.bounds.Valid()) && !w.candidate {
			w.candidate = true
			candidates++
		}
	}
	return items, candidates
}

func (e *Engine) classify(pass *visibility.Pass, w *work) {
	switch {
	case w.obj.dangling:
		w.obj.record.MarkCulled(pass.Now)
		w.outcome = visibility.Outcome{Reason: visibility.ReasonInvalid}
	case !w.candidate:
		w.obj.record.MarkCulled(pass.Now)
		w.outcome = visibility.Outcome{Reason: visibility.ReasonOutOfRange}
	default:
		w.outcome = e.evaluator.Evaluate(pass, w.target, &w.obj.record)
	}
	w.obj.lastOutcome = w.outcome
}

// occluders looks up nearby objects in the grid. It is only used while mu is held for reading.
func (e *Engine) occluders(items []*work) visibility.OccluderSource {
	targets := make(map[Handle]visibility.Target, len(items))
	for _, w := range items {
		if w.obj.opaque && !w.obj.dangling && !w.obj.badPos && w.target.Bounds.Valid() {
			targets[w.obj.handle] = w.target
		}
	}
	return visibility.OccluderSourceFunc(func(point r3.Vector, radius float64) []visibility.Target {
		var out []visibility.Target
		e.grid.QueryFunc(point, radius, func(h Handle, _ r3.Vector) bool {
			if t, ok := targets[h]; ok {
				out = append(out, t)
			}
			return true
		})
		return out
	})
}

// logObjectError logs an object's invalid classification the first time it happens.
func (e *Engine) logObjectError(w *work) {
	if w.outcome.Reason != visibility.ReasonInvalid || w.obj.errorLogged || w.obj.dangling {
		return
	}
	w.obj.errorLogged = true
	e.logger.Warnw("object has invalid bounds or position, treating it as culled",
		"id", w.obj.id, "bounds", w.obj.bounds, "position", w.target.Position)
}
