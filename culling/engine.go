// Package culling decides, every frame, which tracked objects a renderer should draw.
//
// An Engine indexes registered objects in a uniform grid and an octree, extracts the camera's
// frustum whenever the camera moves, and runs a periodic pass that classifies every object and
// reports visibility changes to a ResultSink.
package culling

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/culling/config"
	"go.viam.com/culling/frustum"
	"go.viam.com/culling/logging"
	"go.viam.com/culling/octree"
	"go.viam.com/culling/spatialgrid"
	"go.viam.com/culling/spatialmath"
	"go.viam.com/culling/utils"
	"go.viam.com/culling/visibility"
)

// ErrEngineClosed is returned by operations on an engine that has been closed.
var ErrEngineClosed = errors.New("culling engine is closed")

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock that drives the periodic pass and timestamps records.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) {
		e.clock = clk
	}
}

// WithStatisticsCallback registers fn to receive the statistics of every pass, including skipped
// ones. It runs on the pass goroutine.
func WithStatisticsCallback(fn func(Statistics)) Option {
	return func(e *Engine) {
		e.onStats = fn
	}
}

// WithManualTicks keeps the periodic pass from running. The engine still moves from Idle to
// Running on the first camera update, but passes only happen through ForceTick.
func WithManualTicks() Option {
	return func(e *Engine) {
		e.manual = true
	}
}

// RegisterOption configures a single registration.
type RegisterOption func(*trackedObject)

// WithOpaque sets whether the object can hide other objects. Objects are opaque by default.
func WithOpaque(opaque bool) RegisterOption {
	return func(obj *trackedObject) {
		obj.opaque = opaque
	}
}

// cameraSnapshot is published atomically so a pass never sees planes from two camera updates.
type cameraSnapshot struct {
	frustum  frustum.Frustum
	bounds   spatialmath.AABB
	position r3.Vector
	err      error
}

// Engine is a visibility culling engine. All methods are safe for concurrent use.
type Engine struct {
	logger  logging.Logger
	clock   clock.Clock
	sink    ResultSink
	onStats func(Statistics)
	workers int

	// mu guards the object table and both spatial indexes. Registration takes it for writing;
	// a pass holds it for reading while evaluating.
	mu      sync.RWMutex
	objects handleTable
	grid    *spatialgrid.Grid[Handle]
	tree    *octree.Octree[Handle]
	outside map[Handle]struct{}
	reach   float64

	evaluator *visibility.Evaluator

	configMu sync.RWMutex
	mode     visibility.Mode
	modes    map[visibility.Mode]visibility.ModeConfig

	camera  atomic.Pointer[cameraSnapshot]
	enabled atomic.Bool
	state   atomic.Int32

	// tickMu serializes passes.
	tickMu sync.Mutex
	stats  statsTracker

	schedMu  sync.Mutex
	interval time.Duration
	manual   bool
	worker   utils.StoppableWorkers
}

// NewEngine builds an engine from cfg, which is validated first. A nil cfg uses config.Default.
// The engine stays Idle until the first camera update.
func NewEngine(cfg *config.Config, sink ResultSink, logger logging.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate("culling"); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = noopSink
	}

	logger = logger.Sublogger("culling")
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	grid, err := spatialgrid.New[Handle](cfg.CellSize)
	if err != nil {
		return nil, err
	}
	tree, err := octree.New[Handle](
		cfg.Octree.Center.R3(),
		cfg.Octree.HalfSize,
		cfg.Octree.Depth(),
		cfg.Octree.MaxObjectsPerNode,
		logger.Sublogger("octree"),
	)
	if err != nil {
		return nil, err
	}
	evaluator, err := visibility.NewEvaluator(cfg.EvaluatorConfig())
	if err != nil {
		return nil, err
	}
	mode, err := cfg.CullingMode()
	if err != nil {
		return nil, err
	}
	modes, err := cfg.ModeConfigs()
	if err != nil {
		return nil, err
	}
	interval, err := cfg.ParsedTickInterval()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		logger:    logger,
		clock:     clock.New(),
		sink:      sink,
		workers:   cfg.Workers,
		objects:   newHandleTable(),
		grid:      grid,
		tree:      tree,
		outside:   map[Handle]struct{}{},
		evaluator: evaluator,
		mode:      mode,
		modes:     modes,
		interval:  interval,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.enabled.Store(true)
	e.state.Store(int32(Idle))
	return e, nil
}

// RegisterObject starts tracking a renderable. bounds is relative to the renderable's position.
// Registration fails, with a warning and the zero Handle, if id is empty or already registered,
// if provider is nil, or if the renderable is already gone.
func (e *Engine) RegisterObject(id string, bounds spatialmath.AABB, provider PositionProvider, opts ...RegisterOption) Handle {
	if e.State() == Terminated {
		e.logger.Warnw("cannot register object on a closed engine", "id", id)
		return Handle{}
	}
	if id == "" || provider == nil {
		e.logger.Warnw("cannot register object without an identifier and position provider", "id", id)
		return Handle{}
	}
	position, ok := provider.WorldPosition()
	if !ok {
		e.logger.Warnw("cannot register object whose renderable no longer exists", "id", id)
		return Handle{}
	}

	obj := &trackedObject{id: id, provider: provider, opaque: true}
	for _, opt := range opts {
		opt(obj)
	}
	obj.setBounds(bounds)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.objects.lookup(id); exists {
		e.logger.Warnw("object is already registered", "id", id)
		return Handle{}
	}
	h := e.objects.add(obj)
	e.index(obj, position)
	if obj.reach > e.reach {
		e.reach = obj.reach
	}
	e.stats.setTracked(e.objects.size())
	e.logger.Debugw("registered object", "id", id, "handle", h)
	return h
}

// UnregisterObject stops tracking the object. Unknown and stale handles are ignored.
func (e *Engine) UnregisterObject(h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unregisterLocked(h)
}

func (e *Engine) unregisterLocked(h Handle) bool {
	obj, ok := e.objects.remove(h)
	if !ok {
		return false
	}
	e.unindex(obj)
	e.stats.setTracked(e.objects.size())
	e.logger.Debugw("unregistered object", "id", obj.id, "handle", h)
	return true
}

// UpdateBounds replaces the object's bounds after its geometry changed. It returns false for
// unknown or stale handles.
func (e *Engine) UpdateBounds(h Handle, bounds spatialmath.AABB) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects.get(h)
	if !ok {
		return false
	}
	obj.setBounds(bounds)
	if obj.reach > e.reach {
		e.reach = obj.reach
	}
	return true
}

// Outcome returns the object's classification from the most recent pass, and false for unknown
// or stale handles.
func (e *Engine) Outcome(h Handle) (visibility.Outcome, visibility.Record, bool) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	e.mu.RLock()
	defer e.mu.RUnlock()
	obj, ok := e.objects.get(h)
	if !ok {
		return visibility.Outcome{}, visibility.Record{}, false
	}
	return obj.lastOutcome, obj.record, true
}

// TrackedCount returns the number of registered objects.
func (e *Engine) TrackedCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.objects.size()
}

// index places obj at position in the spatial indexes. Callers hold mu for writing.
func (e *Engine) index(obj *trackedObject, position r3.Vector) {
	if !utils.IsFinite(position.X, position.Y, position.Z) {
		obj.badPos = true
		obj.position = position
		return
	}
	obj.badPos = false
	obj.position = position
	e.grid.Insert(obj.handle, position)
	obj.inOctree = e.tree.Insert(obj.handle, position)
	if !obj.inOctree {
		e.outside[obj.handle] = struct{}{}
	}
}

func (e *Engine) unindex(obj *trackedObject) {
	if obj.badPos {
		return
	}
	e.grid.Remove(obj.handle, obj.position)
	if obj.inOctree {
		e.tree.Remove(obj.handle, obj.position)
	} else {
		delete(e.outside, obj.handle)
	}
}

// reindex moves obj to a new position. Non-finite positions leave the object out of the
// indexes until a finite one is reported.
func (e *Engine) reindex(obj *trackedObject, position r3.Vector) {
	if !obj.badPos && position == obj.position {
		return
	}
	if !utils.IsFinite(position.X, position.Y, position.Z) {
		e.unindex(obj)
		obj.badPos = true
		obj.position = position
		return
	}
	if obj.badPos {
		e.index(obj, position)
		return
	}
	e.grid.Move(obj.handle, obj.position, position)
	wasInOctree := obj.inOctree
	if wasInOctree {
		obj.inOctree = e.tree.Move(obj.handle, obj.position, position)
	} else {
		obj.inOctree = e.tree.Insert(obj.handle, position)
	}
	switch {
	case wasInOctree && !obj.inOctree:
		e.outside[obj.handle] = struct{}{}
	case !wasInOctree && obj.inOctree:
		delete(e.outside, obj.handle)
	}
	obj.position = position
}

// UpdateCamera publishes a new camera. The frustum is extracted immediately; if the matrices are
// degenerate the following passes are skipped until a usable camera arrives. The first call
// starts the periodic pass.
func (e *Engine) UpdateCamera(view, projection mgl64.Mat4) {
	if e.State() == Terminated {
		return
	}
	snapshot := &cameraSnapshot{}
	f, err := frustum.Extract(projection, view)
	if err == nil {
		snapshot.frustum = f
		snapshot.bounds = f.Bounds()
		snapshot.position, err = frustum.CameraPosition(view)
	}
	if err != nil {
		e.logger.Warnw("camera matrices are degenerate, culling is paused until the next camera update", "error", err)
		snapshot = &cameraSnapshot{err: err}
	}
	e.camera.Store(snapshot)
	e.start()
}

// SetCullingMode selects the mode used from the next pass on.
func (e *Engine) SetCullingMode(mode visibility.Mode) error {
	if mode < visibility.Disabled || mode > visibility.Aggressive {
		return errors.Errorf("unknown culling mode %d", int(mode))
	}
	e.configMu.Lock()
	defer e.configMu.Unlock()
	if mode != e.mode {
		e.logger.Infow("culling mode changed", "from", e.mode, "to", mode)
	}
	e.mode = mode
	return nil
}

// CullingMode returns the current mode.
func (e *Engine) CullingMode() visibility.Mode {
	e.configMu.RLock()
	defer e.configMu.RUnlock()
	return e.mode
}

// SetModeConfig replaces the parameters of a mode. Quality or battery managers use this to
// trade accuracy for cost at runtime.
func (e *Engine) SetModeConfig(mode visibility.Mode, mc visibility.ModeConfig) error {
	if mode <= visibility.Disabled || mode > visibility.Aggressive {
		return errors.Errorf("cannot configure culling mode %s", mode)
	}
	if mc.MaxDistance <= 0 || !utils.IsFinite(mc.MaxDistance) {
		return errors.Errorf("max distance must be a positive number, got %v", mc.MaxDistance)
	}
	e.configMu.Lock()
	defer e.configMu.Unlock()
	e.modes[mode] = mc
	return nil
}

// ApplyConfig updates the runtime parameters that can change without rebuilding the indexes:
// mode, per-mode limits and tick interval.
func (e *Engine) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate("culling"); err != nil {
		return err
	}
	mode, err := cfg.CullingMode()
	if err != nil {
		return err
	}
	modes, err := cfg.ModeConfigs()
	if err != nil {
		return err
	}
	interval, err := cfg.ParsedTickInterval()
	if err != nil {
		return err
	}
	if err := e.SetCullingMode(mode); err != nil {
		return err
	}
	for m, mc := range modes {
		if err := e.SetModeConfig(m, mc); err != nil {
			return err
		}
	}
	return e.SetTickInterval(interval)
}

func (e *Engine) currentMode() (visibility.Mode, visibility.ModeConfig) {
	e.configMu.RLock()
	defer e.configMu.RUnlock()
	return e.mode, e.modes[e.mode]
}

// SetEnabled pauses or resumes culling. Passes while disabled do nothing.
func (e *Engine) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
}

// Enabled reports whether culling is enabled.
func (e *Engine) Enabled() bool {
	return e.enabled.Load()
}

// Statistics returns the statistics of the last pass.
func (e *Engine) Statistics() Statistics {
	return e.stats.snapshot()
}

// Close stops the periodic pass, waits for a pass in flight, and drops every object. The engine
// cannot be used afterwards.
func (e *Engine) Close(ctx context.Context) error {
	if State(e.state.Swap(int32(Terminated))) == Terminated {
		return nil
	}
	e.stopWorker()

	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.objects = newHandleTable()
	e.grid.Clear()
	e.tree.Clear()
	e.outside = map[Handle]struct{}{}
	e.stats.setTracked(0)
	e.logger.CDebugw(ctx, "culling engine closed")
	return nil
}
