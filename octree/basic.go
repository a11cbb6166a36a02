package octree

import (
	"github.com/golang/geo/r3"

	"go.viam.com/culling/spatialmath"
)

// basicOctree is one node of the tree: the cube it covers, its depth, and its node data.
// box is built from the parent's exact boundary values so that sibling boxes share faces
// bit for bit; center and halfSize are only used to split.
type basicOctree[T comparable] struct {
	node     basicOctreeNode[T]
	center   r3.Vector
	halfSize float64
	box      spatialmath.AABB
	level    int
	size     int
}

// basicOctreeNode holds the node type along with either its children or its entries.
type basicOctreeNode[T comparable] struct {
	nodeType NodeType
	children []*basicOctree[T]
	entries  []Entry[T]
}

func newLeaf[T comparable](center r3.Vector, halfSize float64, level int) *basicOctree[T] {
	half := r3.Vector{X: halfSize, Y: halfSize, Z: halfSize}
	return newLeafInBox[T](center, halfSize, spatialmath.AABB{Min: center.Sub(half), Max: center.Add(half)}, level)
}

func newLeafInBox[T comparable](center r3.Vector, halfSize float64, box spatialmath.AABB, level int) *basicOctree[T] {
	return &basicOctree[T]{
		node:     basicOctreeNode[T]{nodeType: LeafNode},
		center:   center,
		halfSize: halfSize,
		box:      box,
		level:    level,
	}
}

func (octree *basicOctree[T]) bounds() spatialmath.AABB {
	return octree.box
}

// checkPointPlacement reports whether p lies inside the node's cube, faces included.
func (octree *basicOctree[T]) checkPointPlacement(p r3.Vector) bool {
	return octree.box.ContainsPoint(p)
}

// childFor returns the octant owning p. Ties on the center go to the upper octant, so every
// point inside the node maps to exactly one child.
func (octree *basicOctree[T]) childFor(p r3.Vector) *basicOctree[T] {
	idx := 0
	if p.X >= octree.center.X {
		idx += 4
	}
	if p.Y >= octree.center.Y {
		idx += 2
	}
	if p.Z >= octree.center.Z {
		idx++
	}
	return octree.node.children[idx]
}

// split returns the half of [lo, hi] on the given side of mid.
func split(lo, mid, hi, side float64) (float64, float64) {
	if side < 0 {
		return lo, mid
	}
	return mid, hi
}

// insert places e in the first child containing its position, splitting a full leaf first.
// Leaves at maxDepth grow without bound so that coincident points cannot recurse forever.
func (octree *basicOctree[T]) insert(e Entry[T], maxDepth, maxObjects int) {
	octree.size++
	if octree.node.nodeType == LeafNode {
		if len(octree.node.entries) < maxObjects || octree.level >= maxDepth {
			octree.node.entries = append(octree.node.entries, e)
			return
		}
		octree.splitIntoOctants(maxDepth, maxObjects)
	}
	octree.childFor(e.Position).insert(e, maxDepth, maxObjects)
}

// splitIntoOctants turns a leaf into an internal node with eight children and pushes its
// entries down into them.
func (octree *basicOctree[T]) splitIntoOctants(maxDepth, maxObjects int) {
	quarter := octree.halfSize / 2
	children := make([]*basicOctree[T], 0, 8)
	for _, i := range []float64{-1, 1} {
		for _, j := range []float64{-1, 1} {
			for _, k := range []float64{-1, 1} {
				center := r3.Vector{
					X: octree.center.X + i*quarter,
					Y: octree.center.Y + j*quarter,
					Z: octree.center.Z + k*quarter,
				}
				var box spatialmath.AABB
				box.Min.X, box.Max.X = split(octree.box.Min.X, octree.center.X, octree.box.Max.X, i)
				box.Min.Y, box.Max.Y = split(octree.box.Min.Y, octree.center.Y, octree.box.Max.Y, j)
				box.Min.Z, box.Max.Z = split(octree.box.Min.Z, octree.center.Z, octree.box.Max.Z, k)
				children = append(children, newLeafInBox[T](center, quarter, box, octree.level+1))
			}
		}
	}

	entries := octree.node.entries
	octree.node = basicOctreeNode[T]{nodeType: InternalNode, children: children}
	for _, e := range entries {
		octree.childFor(e.Position).insert(e, maxDepth, maxObjects)
	}
}

// remove deletes the entry for item at p from the node that owns p. An internal node whose
// subtree drops to maxObjects entries or fewer collapses back into a leaf.
func (octree *basicOctree[T]) remove(item T, p r3.Vector, maxObjects int) bool {
	removed := false
	switch octree.node.nodeType {
	case LeafNode:
		for i, e := range octree.node.entries {
			if e.Item == item && e.Position == p {
				last := len(octree.node.entries) - 1
				octree.node.entries[i] = octree.node.entries[last]
				octree.node.entries[last] = Entry[T]{}
				octree.node.entries = octree.node.entries[:last]
				removed = true
				break
			}
		}
	case InternalNode:
		removed = octree.childFor(p).remove(item, p, maxObjects)
		if removed && octree.size-1 <= maxObjects {
			octree.collapse()
		}
	}
	if removed {
		octree.size--
	}
	return removed
}

// collapse gathers every entry in the subtree into this node and makes it a leaf.
func (octree *basicOctree[T]) collapse() {
	entries := make([]Entry[T], 0, octree.size)
	octree.collectEntries(&entries)
	octree.node = basicOctreeNode[T]{nodeType: LeafNode, entries: entries}
}

func (octree *basicOctree[T]) collectEntries(out *[]Entry[T]) {
	if octree.node.nodeType == LeafNode {
		*out = append(*out, octree.node.entries...)
		return
	}
	for _, child := range octree.node.children {
		child.collectEntries(out)
	}
}

func (octree *basicOctree[T]) query(box spatialmath.AABB, fn func(item T, position r3.Vector) bool) bool {
	if octree.size == 0 || !octree.bounds().Intersects(box) {
		return true
	}
	switch octree.node.nodeType {
	case LeafNode:
		for _, e := range octree.node.entries {
			if box.ContainsPoint(e.Position) && !fn(e.Item, e.Position) {
				return false
			}
		}
	case InternalNode:
		for _, child := range octree.node.children {
			if !child.query(box, fn) {
				return false
			}
		}
	}
	return true
}

func (octree *basicOctree[T]) nodeCount() int {
	count := 1
	for _, child := range octree.node.children {
		count += child.nodeCount()
	}
	return count
}

func (octree *basicOctree[T]) maxLevel() int {
	deepest := octree.level
	for _, child := range octree.node.children {
		if l := child.maxLevel(); l > deepest {
			deepest = l
		}
	}
	return deepest
}
