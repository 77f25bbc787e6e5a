package ui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/wayrange/internal/arrange"
	"github.com/bnema/wayrange/internal/display"
)

// cellAspect is how many canvas units one terminal row spans relative to a
// column. Terminal cells are roughly twice as tall as they are wide, so a
// row covers two units where a column covers one; without this, layouts
// render stretched vertically.
const cellAspect = 2.0

// viewport maps canvas coordinates onto a block of terminal cells. The
// mapping is fixed for a given canvas bounds and terminal size, so mouse
// cells convert back to canvas points with the same numbers the renderer
// used.
type viewport struct {
	bounds arrange.Box
	zoom   float64 // terminal columns per canvas unit
	cols   int
	rows   int
}

// fitViewport sizes the viewport so the whole canvas fits the given cell
// block. Zoom never exceeds 1 column per unit: a single laptop panel should
// stay a small box, not fill the terminal.
func fitViewport(bounds arrange.Box, cols, rows int) viewport {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	zoom := 1.0
	if bounds.W > 0 {
		zoom = float64(cols) / bounds.W
	}
	if bounds.H > 0 {
		if z := float64(rows) * cellAspect / bounds.H; z < zoom {
			zoom = z
		}
	}
	if zoom > 1.0 {
		zoom = 1.0
	}
	return viewport{bounds: bounds, zoom: zoom, cols: cols, rows: rows}
}

// cellOf returns the terminal cell containing a canvas point.
func (v viewport) cellOf(p arrange.Point) (col, row int) {
	col = int(math.Floor((p.X - v.bounds.X) * v.zoom))
	row = int(math.Floor((p.Y - v.bounds.Y) * v.zoom / cellAspect))
	return col, row
}

// pointAt returns the canvas point at the center of a terminal cell. It is
// the inverse of cellOf up to cell granularity: cellOf(pointAt(c,r)) is
// always (c,r) for cells inside the viewport.
func (v viewport) pointAt(col, row int) arrange.Point {
	return arrange.Point{
		X: v.bounds.X + (float64(col)+0.5)/v.zoom,
		Y: v.bounds.Y + (float64(row)+0.5)*cellAspect/v.zoom,
	}
}

// cellBox is a tile's footprint in terminal cells, at least 2x2 so the
// border always closes.
func (v viewport) cellBox(b arrange.Box) (col, row, w, h int) {
	col, row = v.cellOf(arrange.Point{X: b.X, Y: b.Y})
	w = int(math.Round(b.W * v.zoom))
	h = int(math.Round(b.H * v.zoom / cellAspect))
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	return col, row, w, h
}

// hitTile maps a pressed terminal cell to the tile rendered there. The
// test runs in cell space against the same cellBox the renderer uses, so
// every cell a tile paints is grabbable: pointAt alone returns the cell's
// center, which for border cells can land just outside the canvas box.
// On overlap the topmost tile wins, matching draw order. The returned
// point is clamped into the tile's box so the drag anchors inside it.
func hitTile(tiles []arrange.Tile, v viewport, col, row int) (arrange.Tile, arrange.Point, bool) {
	hit := -1
	for i, t := range tiles {
		c, r, w, h := v.cellBox(t.Box)
		if col < c || col >= c+w || row < r || row >= r+h {
			continue
		}
		if hit < 0 || tileLayer(t) >= tileLayer(tiles[hit]) {
			hit = i
		}
	}
	if hit < 0 {
		return arrange.Tile{}, arrange.Point{}, false
	}
	t := tiles[hit]
	p := v.pointAt(col, row)
	p.X = math.Min(math.Max(p.X, t.Box.X), t.Box.X+t.Box.W)
	p.Y = math.Min(math.Max(p.Y, t.Box.Y), t.Box.Y+t.Box.H)
	return t, p, true
}

func tileLayer(t arrange.Tile) int {
	if t.Dragging {
		return 1
	}
	return 0
}

// grid is the character buffer the canvas renders into; styles runs in
// parallel so runs of equally styled cells render as one lipgloss call.
type grid struct {
	cols, rows int
	runes      []rune
	styles     []*lipgloss.Style
}

func newGrid(cols, rows int) *grid {
	g := &grid{cols: cols, rows: rows}
	g.runes = make([]rune, cols*rows)
	g.styles = make([]*lipgloss.Style, cols*rows)
	for i := range g.runes {
		g.runes[i] = ' '
	}
	return g
}

func (g *grid) set(col, row int, r rune, style *lipgloss.Style) {
	if col < 0 || col >= g.cols || row < 0 || row >= g.rows {
		return
	}
	i := row*g.cols + col
	g.runes[i] = r
	g.styles[i] = style
}

func (g *grid) text(col, row int, s string, style *lipgloss.Style) {
	for i, r := range []rune(s) {
		g.set(col+i, row, r, style)
	}
}

// String renders the buffer, merging adjacent cells with the same style
// into one styled run per row.
func (g *grid) String() string {
	var out strings.Builder
	for row := 0; row < g.rows; row++ {
		var run []rune
		var runStyle *lipgloss.Style
		flush := func() {
			if len(run) == 0 {
				return
			}
			if runStyle != nil {
				out.WriteString(runStyle.Render(string(run)))
			} else {
				out.WriteString(string(run))
			}
			run = run[:0]
		}
		for col := 0; col < g.cols; col++ {
			i := row*g.cols + col
			if g.styles[i] != runStyle {
				flush()
				runStyle = g.styles[i]
			}
			run = append(run, g.runes[i])
		}
		flush()
		if row < g.rows-1 {
			out.WriteByte('\n')
		}
	}
	return out.String()
}

// renderCanvas draws every tile into a cell buffer. Draw order is
// committed tiles, then the selected one, then dragged ones, so the display
// the user is acting on stays on top when boxes overlap mid-drag.
func renderCanvas(tiles []arrange.Tile, v viewport, selected display.Handle) string {
	g := newGrid(v.cols, v.rows)

	order := make([]int, 0, len(tiles))
	for pass := 0; pass < 3; pass++ {
		for i := range tiles {
			var want int
			switch {
			case tiles[i].Dragging:
				want = 2
			case tiles[i].Display.Handle == selected:
				want = 1
			}
			if want == pass {
				order = append(order, i)
			}
		}
	}

	for _, i := range order {
		drawTile(g, v, tiles[i], tiles[i].Display.Handle == selected)
	}
	return g.String()
}

func drawTile(g *grid, v viewport, t arrange.Tile, selected bool) {
	style := &tileStyle
	switch {
	case t.Dragging:
		style = &tileDraggingStyle
	case selected:
		style = &tileSelectedStyle
	case !t.Display.Enabled:
		style = &tileDisabledStyle
	}

	col, row, w, h := v.cellBox(t.Box)

	g.set(col, row, '╭', style)
	g.set(col+w-1, row, '╮', style)
	g.set(col, row+h-1, '╰', style)
	g.set(col+w-1, row+h-1, '╯', style)
	for x := col + 1; x < col+w-1; x++ {
		g.set(x, row, '─', style)
		g.set(x, row+h-1, '─', style)
	}
	for y := row + 1; y < row+h-1; y++ {
		g.set(col, y, '│', style)
		g.set(col+w-1, y, '│', style)
		for x := col + 1; x < col+w-1; x++ {
			g.set(x, y, ' ', style)
		}
	}

	labels := tileLabels(t.Display, w-2)
	for i, label := range labels {
		y := row + 1 + i
		if y >= row+h-1 {
			break
		}
		x := col + 1 + (w-2-len([]rune(label)))/2
		g.text(x, y, label, style)
	}

	if t.Display.Primary && t.Display.Enabled {
		g.set(col+1, row, '★', &tilePrimaryMarkStyle)
	}
}

// tileLabels picks what fits inside a tile: connector name, then the mode
// line for enabled displays or an off marker.
func tileLabels(d display.DisplayInfo, width int) []string {
	if width < 1 {
		return nil
	}
	labels := []string{clip(d.Name, width)}
	if d.Enabled {
		labels = append(labels, clip(d.Mode.String(), width))
	} else {
		labels = append(labels, clip("off", width))
	}
	return labels
}

func clip(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width < 1 {
		return ""
	}
	return string(r[:width])
}
