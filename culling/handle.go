package culling

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/culling/spatialmath"
	"go.viam.com/culling/visibility"
)

// Handle refers to a registered object. A handle goes stale once its object is unregistered,
// even if the slot behind it is reused. The zero Handle is never valid.
type Handle struct {
	index      uint32
	generation uint32
}

// Valid reports whether h was ever returned by a successful registration.
func (h Handle) Valid() bool {
	return h.generation != 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.index, h.generation)
}

// PositionProvider reports the world position of an externally owned renderable. It returns
// false once the renderable no longer exists, after which the object is unregistered.
type PositionProvider interface {
	WorldPosition() (r3.Vector, bool)
}

// PositionFunc adapts a function to a PositionProvider.
type PositionFunc func() (r3.Vector, bool)

// WorldPosition calls f.
func (f PositionFunc) WorldPosition() (r3.Vector, bool) {
	return f()
}

// trackedObject is the engine's view of one registered renderable. Index fields are guarded by
// the engine's mutex; the pass fields are only touched by the goroutine running a pass.
type trackedObject struct {
	handle   Handle
	id       string
	provider PositionProvider
	opaque   bool

	bounds   spatialmath.AABB
	reach    float64
	position r3.Vector
	inOctree bool
	badPos   bool
	dangling bool

	record      visibility.Record
	reported    bool
	visible     bool
	errorLogged bool
	lastOutcome visibility.Outcome
}

func (obj *trackedObject) setBounds(bounds spatialmath.AABB) {
	obj.bounds = bounds
	obj.errorLogged = false
	if !bounds.Valid() {
		obj.reach = 0
		return
	}
	farthest := r3.Vector{
		X: math.Max(math.Abs(bounds.Min.X), math.Abs(bounds.Max.X)),
		Y: math.Max(math.Abs(bounds.Min.Y), math.Abs(bounds.Max.Y)),
		Z: math.Max(math.Abs(bounds.Min.Z), math.Abs(bounds.Max.Z)),
	}
	obj.reach = farthest.Norm()
}

func (obj *trackedObject) target() visibility.Target {
	return visibility.Target{
		ID:       obj.id,
		Position: obj.position,
		Bounds:   obj.bounds.Translate(obj.position),
		Opaque:   obj.opaque,
	}
}

type slot struct {
	generation uint32
	obj        *trackedObject
}

// handleTable maps handles and identifiers to objects. Freed slots are reused with a bumped
// generation so that stale handles never resolve.
type handleTable struct {
	slots []slot
	free  []uint32
	byID  map[string]Handle
}

func newHandleTable() handleTable {
	return handleTable{byID: map[string]Handle{}}
}

func (t *handleTable) add(obj *trackedObject) Handle {
	var index uint32
	if n := len(t.free); n > 0 {
		index = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		index = uint32(len(t.slots))
		t.slots = append(t.slots, slot{})
	}
	s := &t.slots[index]
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.obj = obj
	obj.handle = Handle{index: index, generation: s.generation}
	t.byID[obj.id] = obj.handle
	return obj.handle
}

func (t *handleTable) get(h Handle) (*trackedObject, bool) {
	if !h.Valid() || int(h.index) >= len(t.slots) {
		return nil, false
	}
	s := t.slots[h.index]
	if s.generation != h.generation || s.obj == nil {
		return nil, false
	}
	return s.obj, true
}

func (t *handleTable) lookup(id string) (Handle, bool) {
	h, ok := t.byID[id]
	return h, ok
}

func (t *handleTable) remove(h Handle) (*trackedObject, bool) {
	obj, ok := t.get(h)
	if !ok {
		return nil, false
	}
	t.slots[h.index].obj = nil
	t.free = append(t.free, h.index)
	delete(t.byID, obj.id)
	return obj, true
}

func (t *handleTable) size() int {
	return len(t.byID)
}

func (t *handleTable) each(fn func(obj *trackedObject)) {
	for _, s := range t.slots {
		if s.obj != nil {
			fn(s.obj)
		}
	}
}
