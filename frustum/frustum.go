// Package frustum extracts view frustum planes from camera matrices and tests bounding volumes
// against them.
//
// Matrices follow the mgl64 conventions: column-major storage, column vectors
// (clip = projection * view * p) and OpenGL clip space, in which a point is visible when
// -w <= x, y, z <= w.
package frustum

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/culling/spatialmath"
	"go.viam.com/culling/utils"
)

// ErrDegenerateMatrix is returned when camera matrices cannot produce a usable frustum.
var ErrDegenerateMatrix = errors.New("degenerate camera matrix")

// minNormalLength is the shortest raw plane normal that is still normalized.
const minNormalLength = 1e-12

// PlaneIndex identifies one of the six frustum planes.
type PlaneIndex int

// Planes are stored in this order.
const (
	Left PlaneIndex = iota
	Right
	Bottom
	Top
	Near
	Far
	planeCount
)

func (i PlaneIndex) String() string {
	switch i {
	case Left:
		return "left"
	case Right:
		return "right"
	case Bottom:
		return "bottom"
	case Top:
		return "top"
	case Near:
		return "near"
	case Far:
		return "far"
	case planeCount:
	}
	return "unknown"
}

// Plane is the set of points p with Normal.Dot(p) + D == 0. Normal has unit length and points
// into the frustum.
type Plane struct {
	Normal r3.Vector
	D      float64
}

// Distance returns the signed distance from the plane to p; positive is inside.
func (p Plane) Distance(pt r3.Vector) float64 {
	return p.Normal.Dot(pt) + p.D
}

// Frustum is an immutable snapshot of the six planes and eight corners of a camera's view volume.
type Frustum struct {
	Planes  [6]Plane
	Corners [8]r3.Vector
}

// Extract derives the frustum for projection * view. Each plane is a sum or difference of the
// fourth row of the combined matrix with one of the others, then normalized.
func Extract(projection, view mgl64.Mat4) (Frustum, error) {
	m := projection.Mul4(view)
	r0, r1, r2, r3w := m.Row(0), m.Row(1), m.Row(2), m.Row(3)
	raw := [planeCount]mgl64.Vec4{
		Left:   r3w.Add(r0),
		Right:  r3w.Sub(r0),
		Bottom: r3w.Add(r1),
		Top:    r3w.Sub(r1),
		Near:   r3w.Add(r2),
		Far:    r3w.Sub(r2),
	}

	var f Frustum
	for i, c := range raw {
		normal := r3.Vector{X: c[0], Y: c[1], Z: c[2]}
		length := normal.Norm()
		if !utils.IsFinite(length, c[3]) || length < minNormalLength {
			return Frustum{}, errors.Wrapf(ErrDegenerateMatrix, "%s plane has a zero-length normal", PlaneIndex(i))
		}
		f.Planes[i] = Plane{Normal: normal.Mul(1 / length), D: c[3] / length}
	}

	corners, err := unprojectCorners(m)
	if err != nil {
		return Frustum{}, err
	}
	f.Corners = corners
	return f, nil
}

// unprojectCorners maps the corners of the NDC cube back to world space.
func unprojectCorners(m mgl64.Mat4) ([8]r3.Vector, error) {
	var corners [8]r3.Vector
	det := m.Det()
	if !utils.IsFinite(det) || math.Abs(det) < minNormalLength {
		return corners, errors.Wrap(ErrDegenerateMatrix, "projection-view matrix is not invertible")
	}
	inv := m.Inv()
	i := 0
	for _, x := range []float64{-1, 1} {
		for _, y := range []float64{-1, 1} {
			for _, z := range []float64{-1, 1} {
				v := inv.Mul4x1(mgl64.Vec4{x, y, z, 1})
				if math.Abs(v[3]) < minNormalLength {
					return corners, errors.Wrap(ErrDegenerateMatrix, "frustum corner is at infinity")
				}
				corners[i] = r3.Vector{X: v[0] / v[3], Y: v[1] / v[3], Z: v[2] / v[3]}
				i++
			}
		}
	}
	return corners, nil
}

// Bounds returns the world-space box enclosing the frustum corners.
func (f Frustum) Bounds() spatialmath.AABB {
	box, _ := spatialmath.BoundingAABB(f.Corners[:]...)
	return box
}

// ContainsPoint reports whether p is on the inner side of every plane.
func (f Frustum) ContainsPoint(p r3.Vector) bool {
	for _, plane := range f.Planes {
		if plane.Distance(p) < 0 {
			return false
		}
	}
	return true
}

// IntersectsAABB reports whether box may overlap the frustum. The test is conservative: a box
// that intersects the frustum is never rejected, though some boxes near the frustum's edges
// are kept even though they lie outside.
func (f Frustum) IntersectsAABB(box spatialmath.AABB) bool {
	_, outside := f.SeparatingPlane(box)
	return !outside
}

// SeparatingPlane returns the first plane that box lies entirely outside of, if any. Only the
// box corner farthest along each plane normal is tested.
func (f Frustum) SeparatingPlane(box spatialmath.AABB) (PlaneIndex, bool) {
	for i, plane := range f.Planes {
		if plane.Distance(box.PositiveVertex(plane.Normal)) < 0 {
			return PlaneIndex(i), true
		}
	}
	return 0, false
}

// IntersectsSphere reports whether the sphere may overlap the frustum.
func (f Frustum) IntersectsSphere(center r3.Vector, radius float64) bool {
	for _, plane := range f.Planes {
		if plane.Distance(center) < -radius {
			return false
		}
	}
	return true
}
