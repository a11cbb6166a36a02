package frustum

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/culling/spatialmath"
)

// originCamera looks down -Z from the origin with a 90 degree field of view.
func originCamera(t *testing.T) Frustum {
	t.Helper()
	projection, err := Perspective(90, 1, 0.1, 100)
	test.That(t, err, test.ShouldBeNil)
	view := LookAt(r3.Vector{}, r3.Vector{Z: -1}, r3.Vector{Y: 1})
	f, err := Extract(projection, view)
	test.That(t, err, test.ShouldBeNil)
	return f
}

func box(t *testing.T, center r3.Vector, size float64) spatialmath.AABB {
	t.Helper()
	b, err := spatialmath.NewAABBFromCenter(center, r3.Vector{X: size, Y: size, Z: size})
	test.That(t, err, test.ShouldBeNil)
	return b
}

func TestExtractPlanes(t *testing.T) {
	f := originCamera(t)
	inv := 1 / math.Sqrt2

	expected := [6]Plane{
		Left:   {Normal: r3.Vector{X: inv, Z: -inv}},
		Right:  {Normal: r3.Vector{X: -inv, Z: -inv}},
		Bottom: {Normal: r3.Vector{Y: inv, Z: -inv}},
		Top:    {Normal: r3.Vector{Y: -inv, Z: -inv}},
		Near:   {Normal: r3.Vector{Z: -1}, D: -0.1},
		Far:    {Normal: r3.Vector{Z: 1}, D: 100},
	}
	for i, plane := range f.Planes {
		test.That(t, plane.Normal.Norm(), test.ShouldAlmostEqual, 1)
		test.That(t, plane.Normal.X, test.ShouldAlmostEqual, expected[i].Normal.X)
		test.That(t, plane.Normal.Y, test.ShouldAlmostEqual, expected[i].Normal.Y)
		test.That(t, plane.Normal.Z, test.ShouldAlmostEqual, expected[i].Normal.Z)
		test.That(t, plane.D, test.ShouldAlmostEqual, expected[i].D, 1e-6)
	}
}

func TestScenario(t *testing.T) {
	f := originCamera(t)

	test.That(t, f.IntersectsAABB(box(t, r3.Vector{Z: -10}, 1)), test.ShouldBeTrue)

	_, outside := f.SeparatingPlane(box(t, r3.Vector{Z: 10}, 1))
	test.That(t, outside, test.ShouldBeTrue)

	plane, outside := f.SeparatingPlane(box(t, r3.Vector{X: 200, Z: -10}, 1))
	test.That(t, outside, test.ShouldBeTrue)
	test.That(t, plane, test.ShouldEqual, Right)

	plane, outside = f.SeparatingPlane(box(t, r3.Vector{Z: -200}, 1))
	test.That(t, outside, test.ShouldBeTrue)
	test.That(t, plane, test.ShouldEqual, Far)
}

func TestIntersectsAABBPerPlane(t *testing.T) {
	f := originCamera(t)

	for _, tc := range []struct {
		plane     PlaneIndex
		straddle  spatialmath.AABB
		outsideOf spatialmath.AABB
	}{
		{Left, box(t, r3.Vector{X: -10, Z: -10}, 2), box(t, r3.Vector{X: -15, Z: -10}, 2)},
		{Right, box(t, r3.Vector{X: 10, Z: -10}, 2), box(t, r3.Vector{X: 15, Z: -10}, 2)},
		{Bottom, box(t, r3.Vector{Y: -10, Z: -10}, 2), box(t, r3.Vector{Y: -15, Z: -10}, 2)},
		{Top, box(t, r3.Vector{Y: 10, Z: -10}, 2), box(t, r3.Vector{Y: 15, Z: -10}, 2)},
		{Near, box(t, r3.Vector{Z: -0.1}, 1), box(t, r3.Vector{Z: -0.05}, 0.02)},
		{Far, box(t, r3.Vector{Z: -100}, 2), box(t, r3.Vector{Z: -102}, 2)},
	} {
		t.Run(tc.plane.String(), func(t *testing.T) {
			test.That(t, f.IntersectsAABB(tc.straddle), test.ShouldBeTrue)

			plane, outside := f.SeparatingPlane(tc.outsideOf)
			test.That(t, outside, test.ShouldBeTrue)
			test.That(t, plane, test.ShouldEqual, tc.plane)
			test.That(t, f.IntersectsAABB(tc.outsideOf), test.ShouldBeFalse)
		})
	}

	t.Run("fully inside", func(t *testing.T) {
		test.That(t, f.IntersectsAABB(box(t, r3.Vector{X: 1, Y: -1, Z: -20}, 3)), test.ShouldBeTrue)
	})

	t.Run("enclosing the frustum", func(t *testing.T) {
		test.That(t, f.IntersectsAABB(box(t, r3.Vector{}, 1000)), test.ShouldBeTrue)
	})
}

func TestContainment(t *testing.T) {
	f := originCamera(t)

	test.That(t, f.ContainsPoint(r3.Vector{Z: -50}), test.ShouldBeTrue)
	test.That(t, f.ContainsPoint(r3.Vector{Z: -0.05}), test.ShouldBeFalse)
	test.That(t, f.ContainsPoint(r3.Vector{X: 11, Z: -10}), test.ShouldBeFalse)

	test.That(t, f.IntersectsSphere(r3.Vector{X: 11, Z: -10}, 1), test.ShouldBeTrue)
	test.That(t, f.IntersectsSphere(r3.Vector{X: 20, Z: -10}, 1), test.ShouldBeFalse)
	test.That(t, f.IntersectsSphere(r3.Vector{Z: 5}, 1), test.ShouldBeFalse)
}

func TestBounds(t *testing.T) {
	f := originCamera(t)
	b := f.Bounds()

	test.That(t, b.Min.X, test.ShouldAlmostEqual, -100, 1e-6)
	test.That(t, b.Min.Y, test.ShouldAlmostEqual, -100, 1e-6)
	test.That(t, b.Min.Z, test.ShouldAlmostEqual, -100, 1e-6)
	test.That(t, b.Max.X, test.ShouldAlmostEqual, 100, 1e-6)
	test.That(t, b.Max.Y, test.ShouldAlmostEqual, 100, 1e-6)
	test.That(t, b.Max.Z, test.ShouldAlmostEqual, -0.1, 1e-6)

	for _, c := range f.Corners {
		for _, plane := range f.Planes {
			test.That(t, plane.Distance(c), test.ShouldBeGreaterThanOrEqualTo, -1e-6)
		}
	}
}

func TestDegenerate(t *testing.T) {
	projection, err := Perspective(90, 1, 0.1, 100)
	test.That(t, err, test.ShouldBeNil)

	_, err = Extract(projection, mgl64.Mat4{})
	test.That(t, errors.Is(err, ErrDegenerateMatrix), test.ShouldBeTrue)

	nan := mgl64.Ident4()
	nan[0] = math.NaN()
	_, err = Extract(projection, nan)
	test.That(t, errors.Is(err, ErrDegenerateMatrix), test.ShouldBeTrue)

	_, err = CameraPosition(mgl64.Mat4{})
	test.That(t, errors.Is(err, ErrDegenerateMatrix), test.ShouldBeTrue)
}

func TestCameraHelpers(t *testing.T) {
	eye := r3.Vector{X: 3, Y: 4, Z: 5}
	pos, err := CameraPosition(LookAt(eye, r3.Vector{}, r3.Vector{Y: 1}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos.X, test.ShouldAlmostEqual, eye.X)
	test.That(t, pos.Y, test.ShouldAlmostEqual, eye.Y)
	test.That(t, pos.Z, test.ShouldAlmostEqual, eye.Z)

	_, err = Perspective(0, 1, 0.1, 100)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Perspective(60, 0, 0.1, 100)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Perspective(60, 1, 1, 1)
	test.That(t, err, test.ShouldNotBeNil)
}
