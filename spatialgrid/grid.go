// Package spatialgrid implements a uniform-cell hash index over object positions.
package spatialgrid

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/culling/utils"
)

// Cell is the integer coordinate of a grid cell: floor(position / cellSize) per axis.
type Cell struct {
	X, Y, Z int
}

// maxReach bounds the per-axis sweep; larger radii cover every occupied cell.
const maxReach = 1 << 20

type entry[T comparable] struct {
	item     T
	position r3.Vector
}

// Grid indexes items by the cell their position falls in. It is not safe for concurrent
// mutation; callers serialize writers against queries.
type Grid[T comparable] struct {
	cellSize float64
	cells    map[Cell][]entry[T]
	size     int
}

// New returns an empty grid with the given cell size in world units.
func New[T comparable](cellSize float64) (*Grid[T], error) {
	if cellSize <= 0 || !utils.IsFinite(cellSize) {
		return nil, errors.Errorf("invalid cell size (%.2f) for spatial grid", cellSize)
	}
	return &Grid[T]{
		cellSize: cellSize,
		cells:    map[Cell][]entry[T]{},
	}, nil
}

// CellSize returns the edge length of a cell.
func (g *Grid[T]) CellSize() float64 {
	return g.cellSize
}

// CellOf returns the cell containing position.
func (g *Grid[T]) CellOf(position r3.Vector) Cell {
	return Cell{
		X: int(math.Floor(position.X / g.cellSize)),
		Y: int(math.Floor(position.Y / g.cellSize)),
		Z: int(math.Floor(position.Z / g.cellSize)),
	}
}

// Insert appends item to the bucket of the cell containing position.
func (g *Grid[T]) Insert(item T, position r3.Vector) {
	cell := g.CellOf(position)
	g.cells[cell] = append(g.cells[cell], entry[T]{item: item, position: position})
	g.size++
}

// Remove deletes item from the bucket of the cell containing position. Buckets that become
// empty are dropped. It returns false if the item was not in that cell.
func (g *Grid[T]) Remove(item T, position r3.Vector) bool {
	cell := g.CellOf(position)
	bucket, ok := g.cells[cell]
	if !ok {
		return false
	}
	for i, e := range bucket {
		if e.item != item {
			continue
		}
		last := len(bucket) - 1
		bucket[i] = bucket[last]
		var zero entry[T]
		bucket[last] = zero
		bucket = bucket[:last]
		if len(bucket) == 0 {
			delete(g.cells, cell)
		} else {
			g.cells[cell] = bucket
		}
		g.size--
		return true
	}
	return false
}

// Move relocates item from one position to another. It is a no-op if both positions share a cell.
func (g *Grid[T]) Move(item T, from, to r3.Vector) {
	if g.CellOf(from) == g.CellOf(to) {
		g.updatePosition(item, from, to)
		return
	}
	if g.Remove(item, from) {
		g.Insert(item, to)
	}
}

func (g *Grid[T]) updatePosition(item T, from, to r3.Vector) {
	bucket := g.cells[g.CellOf(from)]
	for i := range bucket {
		if bucket[i].item == item {
			bucket[i].position = to
			return
		}
	}
}

// Query returns every item in the cells within ceil(radius / cellSize) cells of the center's cell
// on every axis. The result over-approximates the sphere: callers re-test exact distance. Items
// whose position lies within radius of center are always included.
func (g *Grid[T]) Query(center r3.Vector, radius float64) []T {
	var out []T
	g.QueryFunc(center, radius, func(item T, _ r3.Vector) bool {
		out = append(out, item)
		return true
	})
	return out
}

// QueryFunc calls fn for every item Query would return, along with its indexed position. It
// stops early when fn returns false.
func (g *Grid[T]) QueryFunc(center r3.Vector, radius float64, fn func(item T, position r3.Vector) bool) {
	if radius < 0 || math.IsNaN(radius) {
		radius = 0
	}
	reachCells := math.Ceil(radius / g.cellSize)
	if reachCells > maxReach {
		for _, bucket := range g.cells {
			if !visit(bucket, fn) {
				return
			}
		}
		return
	}
	reach := int(reachCells)
	origin := g.CellOf(center)
	lo := Cell{origin.X - reach, origin.Y - reach, origin.Z - reach}
	hi := Cell{origin.X + reach, origin.Y + reach, origin.Z + reach}

	// Sweeping more cells than are occupied is wasted work, so walk the occupied cells instead.
	span := float64(2*reach + 1)
	if span*span*span > float64(len(g.cells)) {
		for cell, bucket := range g.cells {
			if cell.X < lo.X || cell.X > hi.X || cell.Y < lo.Y || cell.Y > hi.Y || cell.Z < lo.Z || cell.Z > hi.Z {
				continue
			}
			if !visit(bucket, fn) {
				return
			}
		}
		return
	}

	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				if !visit(g.cells[Cell{x, y, z}], fn) {
					return
				}
			}
		}
	}
}

func visit[T comparable](bucket []entry[T], fn func(item T, position r3.Vector) bool) bool {
	for _, e := range bucket {
		if !fn(e.item, e.position) {
			return false
		}
	}
	return true
}

// ActiveCells returns the number of non-empty cells.
func (g *Grid[T]) ActiveCells() int {
	return len(g.cells)
}

// Len returns the number of indexed items.
func (g *Grid[T]) Len() int {
	return g.size
}

// Clear removes every item.
func (g *Grid[T]) Clear() {
	g.cells = map[Cell][]entry[T]{}
	g.size = 0
}
