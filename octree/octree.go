// Package octree implements a bounded-depth octree over object positions, used to prune
// candidate sets with box queries before exact visibility tests.
package octree

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/culling/logging"
	"go.viam.com/culling/spatialmath"
	"go.viam.com/culling/utils"
)

// Each node in the octree is either an internal node which links to exactly eight children, or a
// leaf node which holds up to maxObjectsPerNode entries (more once maxDepth is reached).
const (
	InternalNode = NodeType(iota)
	LeafNode
)

const (
	// DefaultMaxDepth is the depth past which leaves stop splitting.
	DefaultMaxDepth = 8
	// DefaultMaxObjectsPerNode is the leaf capacity that triggers a split.
	DefaultMaxObjectsPerNode = 10
)

// NodeType represents the possible types of nodes in an octree.
type NodeType uint8

func (n NodeType) String() string {
	switch n {
	case InternalNode:
		return "InternalNode"
	case LeafNode:
		return "LeafNode"
	}
	return "Unknown"
}

// Entry is an item stored in the octree together with the position it was indexed at.
type Entry[T comparable] struct {
	Item     T
	Position r3.Vector
}

// Octree recursively partitions a cube of space into octants. Items are indexed by a single
// point; a leaf splits once it holds more than maxObjectsPerNode entries, until maxDepth.
// It is not safe for concurrent mutation.
type Octree[T comparable] struct {
	logger            logging.Logger
	root              *basicOctree[T]
	maxDepth          int
	maxObjectsPerNode int
}

// New creates an empty octree centered at center, extending halfSize in every direction.
func New[T comparable](
	center r3.Vector,
	halfSize float64,
	maxDepth, maxObjectsPerNode int,
	logger logging.Logger,
) (*Octree[T], error) {
	if halfSize <= 0 || !utils.IsFinite(halfSize, center.X, center.Y, center.Z) {
		return nil, errors.Errorf("invalid half size (%.2f) for octree", halfSize)
	}
	if maxDepth < 0 {
		return nil, errors.Errorf("invalid max depth (%d) for octree", maxDepth)
	}
	if maxObjectsPerNode <= 0 {
		return nil, errors.Errorf("invalid max objects per node (%d) for octree", maxObjectsPerNode)
	}
	return &Octree[T]{
		logger:            logger,
		root:              newLeaf[T](center, halfSize, 0),
		maxDepth:          maxDepth,
		maxObjectsPerNode: maxObjectsPerNode,
	}, nil
}

// Bounds returns the cube covered by the octree.
func (o *Octree[T]) Bounds() spatialmath.AABB {
	return o.root.bounds()
}

// Size returns the number of entries stored in the octree.
func (o *Octree[T]) Size() int {
	return o.root.size
}

// NodeCount returns the total number of nodes, internal and leaf.
func (o *Octree[T]) NodeCount() int {
	return o.root.nodeCount()
}

// Depth returns the level of the deepest node; a lone root is depth 0.
func (o *Octree[T]) Depth() int {
	return o.root.maxLevel()
}

// Insert adds item at position. Positions outside the octree's bounds are not stored and Insert
// returns false.
func (o *Octree[T]) Insert(item T, position r3.Vector) bool {
	if !o.root.checkPointPlacement(position) {
		o.logger.Debugw("position is outside the bounds of the octree, skipping insertion",
			"position", position, "bounds", o.root.bounds())
		return false
	}
	o.root.insert(Entry[T]{Item: item, Position: position}, o.maxDepth, o.maxObjectsPerNode)
	return true
}

// Remove deletes item indexed at position. It returns false if no such entry exists.
func (o *Octree[T]) Remove(item T, position r3.Vector) bool {
	if !o.root.checkPointPlacement(position) {
		return false
	}
	return o.root.remove(item, position, o.maxObjectsPerNode)
}

// Move re-indexes item from one position to another and reports whether the item is stored
// after the move.
func (o *Octree[T]) Move(item T, from, to r3.Vector) bool {
	o.Remove(item, from)
	return o.Insert(item, to)
}

// Query returns every item whose indexed position lies inside box.
func (o *Octree[T]) Query(box spatialmath.AABB) []T {
	var out []T
	o.QueryFunc(box, func(item T, _ r3.Vector) bool {
		out = append(out, item)
		return true
	})
	return out
}

// QueryFunc calls fn for every entry whose position lies inside box, stopping early when fn
// returns false.
func (o *Octree[T]) QueryFunc(box spatialmath.AABB, fn func(item T, position r3.Vector) bool) {
	o.root.query(box, fn)
}

// Clear removes every entry, leaving a single empty root.
func (o *Octree[T]) Clear() {
	o.root = newLeafInBox[T](o.root.center, o.root.halfSize, o.root.box, 0)
}
