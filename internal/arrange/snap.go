package arrange

import "math"

// edgeCandidate is one possible alignment of the dropped box on a single
// axis: value is the resulting top-left coordinate, dist how far the drop
// was from it, euclid the center distance to the display owning the edge,
// order that display's position in the session list. euclid and order only
// break ties between equally distant edges.
type edgeCandidate struct {
	value  float64
	dist   float64
	euclid float64
	order  int
}

// snapAxis resolves one axis of a drop. The nearest edge alignment within
// the snap threshold wins outright, however close a grid line may be;
// without one the coordinate rounds to the coarse arrangement grid.
func snapAxis(raw float64, candidates []edgeCandidate, opts Options) (float64, bool) {
	best := -1
	for i, c := range candidates {
		if best < 0 {
			if c.dist <= opts.SnapThreshold {
				best = i
			}
			continue
		}
		b := candidates[best]
		if c.dist > opts.SnapThreshold {
			continue
		}
		if c.dist != b.dist {
			if c.dist < b.dist {
				best = i
			}
			continue
		}
		if c.euclid != b.euclid {
			if c.euclid < b.euclid {
				best = i
			}
			continue
		}
		if c.order < b.order {
			best = i
		}
	}
	if best >= 0 {
		return candidates[best].value, true
	}
	return math.Round(raw/opts.GridSize) * opts.GridSize, false
}

// axisCandidates builds the edge alignments for one axis of the dropped
// box. Both of the box's own edges may align against both edges of every
// obstacle: four candidate positions per obstacle and axis.
func axisCandidates(raw, size float64, boxCenter Point, obstacles []obstacle, horizontal bool) []edgeCandidate {
	out := make([]edgeCandidate, 0, len(obstacles)*4)
	for _, o := range obstacles {
		var lo, hi float64
		if horizontal {
			lo, hi = o.box.X, o.box.Right()
		} else {
			lo, hi = o.box.Y, o.box.Bottom()
		}
		oc := Point{X: o.box.X + o.box.W/2, Y: o.box.Y + o.box.H/2}
		euclid := math.Hypot(boxCenter.X-oc.X, boxCenter.Y-oc.Y)
		for _, edge := range [2]float64{lo, hi} {
			for _, value := range [2]float64{edge, edge - size} {
				out = append(out, edgeCandidate{
					value:  value,
					dist:   math.Abs(value - raw),
					euclid: euclid,
					order:  o.order,
				})
			}
		}
	}
	return out
}

// snapBox snaps a dropped box against the other enabled displays, each axis
// independently. Returns the snapped position and whether each axis landed
// on an edge (as opposed to the grid).
func snapBox(b Box, obstacles []obstacle, opts Options) (Point, bool, bool) {
	center := Point{X: b.X + b.W/2, Y: b.Y + b.H/2}
	x, edgeX := snapAxis(b.X, axisCandidates(b.X, b.W, center, obstacles, true), opts)
	y, edgeY := snapAxis(b.Y, axisCandidates(b.Y, b.H, center, obstacles, false), opts)
	return Point{X: x, Y: y}, edgeX, edgeY
}
