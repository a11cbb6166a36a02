// Package spatialmath defines the axis-aligned bounding volumes used by the culling engine.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/culling/utils"
)

// Ordered list of box corner signs, relative to the box center.
var boxVertices = [8]r3.Vector{
	{X: 1, Y: 1, Z: 1},
	{X: 1, Y: 1, Z: -1},
	{X: 1, Y: -1, Z: 1},
	{X: 1, Y: -1, Z: -1},
	{X: -1, Y: 1, Z: 1},
	{X: -1, Y: 1, Z: -1},
	{X: -1, Y: -1, Z: 1},
	{X: -1, Y: -1, Z: -1},
}

// AABB is an axis-aligned bounding box. The zero value is a degenerate box at the origin.
type AABB struct {
	Min r3.Vector
	Max r3.Vector
}

// NewAABB returns the box spanning min and max. The corners are reordered per axis so that the
// result is always valid for finite input.
func NewAABB(minPt, maxPt r3.Vector) AABB {
	return AABB{
		Min: r3.Vector{X: math.Min(minPt.X, maxPt.X), Y: math.Min(minPt.Y, maxPt.Y), Z: math.Min(minPt.Z, maxPt.Z)},
		Max: r3.Vector{X: math.Max(minPt.X, maxPt.X), Y: math.Max(minPt.Y, maxPt.Y), Z: math.Max(minPt.Z, maxPt.Z)},
	}
}

// NewAABBFromCenter returns the box centered at center with the given full dimensions.
// Negative dimensions are not allowed.
func NewAABBFromCenter(center, dims r3.Vector) (AABB, error) {
	if dims.X < 0 || dims.Y < 0 || dims.Z < 0 {
		return AABB{}, errors.Errorf("invalid box dimensions %v, dimensions must be non-negative", dims)
	}
	half := dims.Mul(0.5)
	return AABB{Min: center.Sub(half), Max: center.Add(half)}, nil
}

// Center returns the center point of the box.
func (b AABB) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the full dimensions of the box.
func (b AABB) Size() r3.Vector {
	return b.Max.Sub(b.Min)
}

// HalfSize returns half the dimensions of the box.
func (b AABB) HalfSize() r3.Vector {
	return b.Size().Mul(0.5)
}

// Valid reports whether every coordinate is finite and Min <= Max on every axis.
func (b AABB) Valid() bool {
	if !utils.IsFinite(b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z) {
		return false
	}
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}

// Translate returns the box moved by offset.
func (b AABB) Translate(offset r3.Vector) AABB {
	return AABB{Min: b.Min.Add(offset), Max: b.Max.Add(offset)}
}

// Expand returns the box grown by margin on every side.
func (b AABB) Expand(margin float64) AABB {
	m := r3.Vector{X: margin, Y: margin, Z: margin}
	return AABB{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

// ContainsPoint reports whether p lies inside the box or on its surface.
func (b AABB) ContainsPoint(p r3.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Intersects reports whether the two boxes overlap. Touching faces count as overlapping.
func (b AABB) Intersects(other AABB) bool {
	return b.Min.X <= other.Max.X && b.Max.X >= other.Min.X &&
		b.Min.Y <= other.Max.Y && b.Max.Y >= other.Min.Y &&
		b.Min.Z <= other.Max.Z && b.Max.Z >= other.Min.Z
}

// Intersection returns the overlap of the two boxes, and false if they do not overlap.
func (b AABB) Intersection(other AABB) (AABB, bool) {
	if !b.Intersects(other) {
		return AABB{}, false
	}
	return AABB{
		Min: r3.Vector{X: math.Max(b.Min.X, other.Min.X), Y: math.Max(b.Min.Y, other.Min.Y), Z: math.Max(b.Min.Z, other.Min.Z)},
		Max: r3.Vector{X: math.Min(b.Max.X, other.Max.X), Y: math.Min(b.Max.Y, other.Max.Y), Z: math.Min(b.Max.Z, other.Max.Z)},
	}, true
}

// Union returns the smallest box containing both boxes.
func (b AABB) Union(other AABB) AABB {
	return AABB{
		Min: r3.Vector{X: math.Min(b.Min.X, other.Min.X), Y: math.Min(b.Min.Y, other.Min.Y), Z: math.Min(b.Min.Z, other.Min.Z)},
		Max: r3.Vector{X: math.Max(b.Max.X, other.Max.X), Y: math.Max(b.Max.Y, other.Max.Y), Z: math.Max(b.Max.Z, other.Max.Z)},
	}
}

// Corners returns the 8 corners of the box.
func (b AABB) Corners() [8]r3.Vector {
	center := b.Center()
	half := b.HalfSize()
	var corners [8]r3.Vector
	for i, v := range boxVertices {
		corners[i] = r3.Vector{X: center.X + v.X*half.X, Y: center.Y + v.Y*half.Y, Z: center.Z + v.Z*half.Z}
	}
	return corners
}

// PositiveVertex returns the corner of the box farthest along normal.
func (b AABB) PositiveVertex(normal r3.Vector) r3.Vector {
	p := b.Min
	if normal.X >= 0 {
		p.X = b.Max.X
	}
	if normal.Y >= 0 {
		p.Y = b.Max.Y
	}
	if normal.Z >= 0 {
		p.Z = b.Max.Z
	}
	return p
}

// BoundingAABB returns the smallest box containing every point. It returns false for no points.
func BoundingAABB(points ...r3.Vector) (AABB, bool) {
	if len(points) == 0 {
		return AABB{}, false
	}
	box := AABB{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		box = box.Union(AABB{Min: p, Max: p})
	}
	return box, true
}

// String returns a human readable string that represents the box.
func (b AABB) String() string {
	c := b.Center()
	s := b.Size()
	return fmt.Sprintf("Type: AABB | Center: X:%.2f, Y:%.2f, Z:%.2f | Dims: X:%.2f, Y:%.2f, Z:%.2f",
		c.X, c.Y, c.Z, s.X, s.Y, s.Z)
}
