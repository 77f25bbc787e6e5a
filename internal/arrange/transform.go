// Package arrange implements the spatial arrangement engine: a pure,
// value-semantics drag session over a display snapshot. Pointer events move
// displays freely across a scaled canvas; snapping and collision resolution
// run once, at drag end, and always yield a valid arrangement.
package arrange

import (
	"math"

	"github.com/bnema/wayrange/internal/display"
)

// Point is a location in canvas units.
type Point struct {
	X, Y float64
}

// Box is an axis-aligned rectangle in canvas units.
type Box struct {
	X, Y, W, H float64
}

// Right returns the X coordinate of the right edge.
func (b Box) Right() float64 { return b.X + b.W }

// Bottom returns the Y coordinate of the bottom edge.
func (b Box) Bottom() float64 { return b.Y + b.H }

// Contains reports whether the point lies inside the box.
func (b Box) Contains(p Point) bool {
	return p.X >= b.X && p.X < b.Right() && p.Y >= b.Y && p.Y < b.Bottom()
}

// collisionEpsilon absorbs float noise from scaling so boxes that touch
// along an edge never read as overlapping.
const collisionEpsilon = 1e-6

func (b Box) overlaps(o Box) bool {
	if b.W <= 0 || b.H <= 0 || o.W <= 0 || o.H <= 0 {
		return false
	}
	return b.X < o.Right()-collisionEpsilon && o.X < b.Right()-collisionEpsilon &&
		b.Y < o.Bottom()-collisionEpsilon && o.Y < b.Bottom()-collisionEpsilon
}

func (b Box) inside(bounds Box) bool {
	return b.X >= bounds.X-collisionEpsilon && b.Y >= bounds.Y-collisionEpsilon &&
		b.Right() <= bounds.Right()+collisionEpsilon && b.Bottom() <= bounds.Bottom()+collisionEpsilon
}

// Transform maps virtual desktop pixels onto the canvas: one fixed scale
// factor plus an offset locating desktop (0,0). The mapping is exactly
// invertible for integer desktop coordinates: ToDesktop(ToCanvas(p)) == p.
type Transform struct {
	Scale  float64
	Offset Point
}

// ToCanvas projects a desktop position onto the canvas.
func (t Transform) ToCanvas(p display.Position) Point {
	return Point{
		X: float64(p.X)*t.Scale + t.Offset.X,
		Y: float64(p.Y)*t.Scale + t.Offset.Y,
	}
}

// ToDesktop projects a canvas point back to the nearest integer desktop
// position.
func (t Transform) ToDesktop(c Point) display.Position {
	return display.Position{
		X: int32(math.Round((c.X - t.Offset.X) / t.Scale)),
		Y: int32(math.Round((c.Y - t.Offset.Y) / t.Scale)),
	}
}

// Length scales a desktop pixel length to canvas units.
func (t Transform) Length(px int32) float64 { return float64(px) * t.Scale }

// BoxOf projects a desktop rectangle onto the canvas.
func (t Transform) BoxOf(r display.Rect) Box {
	origin := t.ToCanvas(display.Position{X: r.X, Y: r.Y})
	return Box{X: origin.X, Y: origin.Y, W: t.Length(r.Width), H: t.Length(r.Height)}
}
