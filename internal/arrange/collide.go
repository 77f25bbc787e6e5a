package arrange

import (
	"math"
	"sort"
)

// obstacle is an enabled display the dropped box must not overlap, at its
// committed (pre-drag) position.
type obstacle struct {
	box   Box
	order int
}

func collides(b Box, obstacles []obstacle) bool {
	for _, o := range obstacles {
		if b.overlaps(o.box) {
			return true
		}
	}
	return false
}

// resolveCollision finds the final position for a dropped box. A free,
// in-bounds drop stands as snapped. An occupied drop walks the arrangement
// grid outward from the drop point, nearest cell first (the cell under the
// drop, then its axis neighbors, then diagonals, ring by ring), and takes
// the first free, in-bounds cell. When the whole canvas is full the box
// returns to its pre-drag anchor, so drag end always produces a valid
// arrangement.
func resolveCollision(b Box, obstacles []obstacle, bounds Box, grid float64, anchor Point) (pos Point, displaced, reverted bool) {
	free := func(c Box) bool {
		return c.inside(bounds) && !collides(c, obstacles)
	}
	if free(b) {
		return Point{X: b.X, Y: b.Y}, false, false
	}

	// Feasible cell range: every cell whose box still fits inside bounds.
	minCX := int(math.Ceil((bounds.X - collisionEpsilon) / grid))
	maxCX := int(math.Floor((bounds.Right() - b.W + collisionEpsilon) / grid))
	minCY := int(math.Ceil((bounds.Y - collisionEpsilon) / grid))
	maxCY := int(math.Floor((bounds.Bottom() - b.H + collisionEpsilon) / grid))
	if maxCX < minCX || maxCY < minCY {
		return anchor, false, true
	}

	type cell struct {
		x, y int
		dist float64
	}
	cells := make([]cell, 0, (maxCX-minCX+1)*(maxCY-minCY+1))
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			dx := float64(cx)*grid - b.X
			dy := float64(cy)*grid - b.Y
			cells = append(cells, cell{x: cx, y: cy, dist: dx*dx + dy*dy})
		}
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].dist != cells[j].dist {
			return cells[i].dist < cells[j].dist
		}
		if cells[i].y != cells[j].y {
			return cells[i].y < cells[j].y
		}
		return cells[i].x < cells[j].x
	})

	for _, c := range cells {
		cand := Box{X: float64(c.x) * grid, Y: float64(c.y) * grid, W: b.W, H: b.H}
		if free(cand) {
			return Point{X: cand.X, Y: cand.Y}, true, false
		}
	}
	return anchor, false, true
}

// clampBox keeps a box inside the canvas bounds, pinning at the top-left
// when the box is larger than the bounds.
func clampBox(b, bounds Box) Box {
	if b.X < bounds.X {
		b.X = bounds.X
	}
	if b.Y < bounds.Y {
		b.Y = bounds.Y
	}
	if b.Right() > bounds.Right() {
		b.X = bounds.Right() - b.W
	}
	if b.Bottom() > bounds.Bottom() {
		b.Y = bounds.Bottom() - b.H
	}
	if b.X < bounds.X {
		b.X = bounds.X
	}
	if b.Y < bounds.Y {
		b.Y = bounds.Y
	}
	return b
}
