package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestNewAABB(t *testing.T) {
	t.Run("corners are reordered", func(t *testing.T) {
		box := NewAABB(r3.Vector{X: 1, Y: -1, Z: 5}, r3.Vector{X: -1, Y: 1, Z: 3})
		test.That(t, box.Min, test.ShouldResemble, r3.Vector{X: -1, Y: -1, Z: 3})
		test.That(t, box.Max, test.ShouldResemble, r3.Vector{X: 1, Y: 1, Z: 5})
		test.That(t, box.Valid(), test.ShouldBeTrue)
	})

	t.Run("from center", func(t *testing.T) {
		box, err := NewAABBFromCenter(r3.Vector{X: 0, Y: 0, Z: -10}, r3.Vector{X: 1, Y: 2, Z: 4})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, box.Center(), test.ShouldResemble, r3.Vector{X: 0, Y: 0, Z: -10})
		test.That(t, box.Size(), test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 4})
		test.That(t, box.HalfSize(), test.ShouldResemble, r3.Vector{X: 0.5, Y: 1, Z: 2})

		_, err = NewAABBFromCenter(r3.Vector{}, r3.Vector{X: -1, Y: 1, Z: 1})
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("invalid boxes", func(t *testing.T) {
		test.That(t, AABB{Min: r3.Vector{X: 1}, Max: r3.Vector{}}.Valid(), test.ShouldBeFalse)
		test.That(t, AABB{Min: r3.Vector{X: math.NaN()}, Max: r3.Vector{X: 1}}.Valid(), test.ShouldBeFalse)
		test.That(t, AABB{Max: r3.Vector{Y: math.Inf(1)}}.Valid(), test.ShouldBeFalse)
	})
}

func TestAABBQueries(t *testing.T) {
	box := NewAABB(r3.Vector{X: -1, Y: -1, Z: -1}, r3.Vector{X: 1, Y: 1, Z: 1})

	test.That(t, box.ContainsPoint(r3.Vector{}), test.ShouldBeTrue)
	test.That(t, box.ContainsPoint(r3.Vector{X: 1, Y: 1, Z: 1}), test.ShouldBeTrue)
	test.That(t, box.ContainsPoint(r3.Vector{X: 1.01}), test.ShouldBeFalse)

	touching := box.Translate(r3.Vector{X: 2})
	test.That(t, box.Intersects(touching), test.ShouldBeTrue)
	apart := box.Translate(r3.Vector{X: 2.5})
	test.That(t, box.Intersects(apart), test.ShouldBeFalse)
	_, ok := box.Intersection(apart)
	test.That(t, ok, test.ShouldBeFalse)

	overlap, ok := box.Intersection(box.Translate(r3.Vector{X: 1}))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, overlap, test.ShouldResemble, NewAABB(r3.Vector{X: 0, Y: -1, Z: -1}, r3.Vector{X: 1, Y: 1, Z: 1}))

	union := box.Union(apart)
	test.That(t, union.Min, test.ShouldResemble, r3.Vector{X: -1, Y: -1, Z: -1})
	test.That(t, union.Max, test.ShouldResemble, r3.Vector{X: 3.5, Y: 1, Z: 1})

	grown := box.Expand(0.5)
	test.That(t, grown.Size(), test.ShouldResemble, r3.Vector{X: 3, Y: 3, Z: 3})
}

func TestAABBVertices(t *testing.T) {
	box := NewAABB(r3.Vector{X: 0, Y: 0, Z: 0}, r3.Vector{X: 2, Y: 4, Z: 6})

	corners := box.Corners()
	for _, c := range corners {
		test.That(t, box.ContainsPoint(c), test.ShouldBeTrue)
	}
	bounds, ok := BoundingAABB(corners[:]...)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, bounds, test.ShouldResemble, box)

	_, ok = BoundingAABB()
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, box.PositiveVertex(r3.Vector{X: 1, Y: -1, Z: 0}), test.ShouldResemble, r3.Vector{X: 2, Y: 0, Z: 6})
	test.That(t, box.PositiveVertex(r3.Vector{X: -1, Y: 1, Z: -1}), test.ShouldResemble, r3.Vector{X: 0, Y: 4, Z: 0})
}
