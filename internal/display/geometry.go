package display

// Rect is an axis-aligned rectangle in virtual desktop coordinates.
type Rect struct {
	X, Y, Width, Height int32
}

// Bounds returns the left, top, right and bottom edges.
func (r Rect) Bounds() (x1, y1, x2, y2 int32) {
	return r.X, r.Y, r.X + r.Width, r.Y + r.Height
}

// Empty reports whether the rectangle covers no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Contains reports whether the point lies inside the rectangle.
func (r Rect) Contains(p Position) bool {
	return p.X >= r.X && p.X < r.X+r.Width &&
		p.Y >= r.Y && p.Y < r.Y+r.Height
}

// Overlaps reports whether two rectangles share interior area. Rectangles
// that only touch along an edge or at a corner do not overlap; adjacent
// displays in a layout touch by construction.
func (r Rect) Overlaps(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// Union returns the smallest rectangle covering both. An empty rectangle
// contributes nothing.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x1, y1, x2, y2 := r.Bounds()
	ox1, oy1, ox2, oy2 := o.Bounds()
	if ox1 < x1 {
		x1 = ox1
	}
	if oy1 < y1 {
		y1 = oy1
	}
	if ox2 > x2 {
		x2 = ox2
	}
	if oy2 > y2 {
		y2 = oy2
	}
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Touches reports whether two rectangles share at least an edge segment or
// overlap. A re-enabled output must touch the bounding box of the already
// enabled ones.
func (r Rect) Touches(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X <= o.X+o.Width && o.X <= r.X+r.Width &&
		r.Y <= o.Y+o.Height && o.Y <= r.Y+r.Height
}
