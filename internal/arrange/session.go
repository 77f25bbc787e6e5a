package arrange

import (
	"github.com/bnema/wayrange/internal/display"
)

// State is the arrangement session's lifecycle position. It travels inside
// the Session value; there is no package-level state anywhere in the engine.
type State int

const (
	StateIdle State = iota
	StateDragging
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDragging:
		return "dragging"
	case StateCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

// Options tune the canvas. Zero fields take defaults; a zero BoundsMargin
// sizes the margin from the largest display so even a full row of monitors
// leaves room to park one above or below the layout.
type Options struct {
	Scale         float64 // canvas units per desktop pixel
	SnapThreshold float64 // canvas units; edge snapping wins within this distance
	GridSize      float64 // canvas units; coarse fallback grid
	BoundsMargin  float64 // canvas units around the layout; 0 = derive
}

// DefaultOptions returns the stock canvas tuning: 1 canvas unit per 10
// desktop pixels, edge snapping within 24 desktop pixels, a 50 pixel grid.
func DefaultOptions() Options {
	return Options{Scale: 0.1, SnapThreshold: 2.4, GridSize: 5}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Scale <= 0 {
		o.Scale = def.Scale
	}
	if o.SnapThreshold <= 0 {
		o.SnapThreshold = def.SnapThreshold
	}
	if o.GridSize <= 0 {
		o.GridSize = def.GridSize
	}
	return o
}

const (
	defaultModeWidth  = 1920
	defaultModeHeight = 1080
)

// Drag tracks one in-flight drag. Start and Current are pointer positions;
// Anchor is the canvas position of the display's top-left corner when the
// drag began, which is also where the display returns if the drop cannot be
// placed anywhere.
type Drag struct {
	Handle  display.Handle
	Start   Point
	Current Point
	Anchor  Point
	Active  bool
}

// Placement is the outcome of one drag end.
type Placement struct {
	Handle   display.Handle
	Position display.Position // final desktop position
	EdgeX    bool             // x axis snapped to another display's edge
	EdgeY    bool             // y axis snapped to another display's edge
	Moved    bool             // collision displaced it from the snapped spot
	Reverted bool             // nowhere to place it; returned to the pre-drag position
}

// Tile is one display prepared for rendering: its working state plus the
// canvas box to draw, live during drags.
type Tile struct {
	Display  display.DisplayInfo
	Box      Box
	Dragging bool
}

// Session is an arrangement in progress over one snapshot. Sessions are
// values: every transition returns the successor session and the caller
// owns the current one. Concurrent drags on different displays are
// permitted and resolve independently at their own drag end, each against
// the other displays' committed positions.
type Session struct {
	opts      Options
	transform Transform
	bounds    Box
	serial    uint64
	state     State
	displays  []display.DisplayInfo
	drags     []Drag

	// lastModes remembers the mode each display ran before it was
	// disabled, so re-enabling restores it instead of the preferred one.
	lastModes map[display.Handle]display.Mode
}

// NewSession builds a working arrangement over a snapshot's displays.
func NewSession(snap *display.Snapshot, opts Options) Session {
	opts = opts.withDefaults()
	working := snap.Clone()
	t, bounds := fitCanvas(working.Displays, opts)
	return Session{
		opts:      opts,
		transform: t,
		bounds:    bounds,
		serial:    snap.Serial,
		state:     StateIdle,
		displays:  working.Displays,
	}
}

// fitCanvas derives the session transform and the generous canvas bounds
// from the displays' union rectangle.
func fitCanvas(displays []display.DisplayInfo, opts Options) (Transform, Box) {
	var union display.Rect
	var maxDim int32
	for i := range displays {
		r := sizedRect(&displays[i])
		union = union.Union(r)
		if r.Width > maxDim {
			maxDim = r.Width
		}
		if r.Height > maxDim {
			maxDim = r.Height
		}
	}
	if union.Empty() {
		union = display.Rect{Width: defaultModeWidth, Height: defaultModeHeight}
		maxDim = defaultModeWidth
	}
	margin := opts.BoundsMargin
	if margin <= 0 {
		margin = 1.5 * float64(maxDim) * opts.Scale
	}
	t := Transform{
		Scale: opts.Scale,
		Offset: Point{
			X: margin - float64(union.X)*opts.Scale,
			Y: margin - float64(union.Y)*opts.Scale,
		},
	}
	bounds := Box{
		W: float64(union.Width)*opts.Scale + 2*margin,
		H: float64(union.Height)*opts.Scale + 2*margin,
	}
	return t, bounds
}

// sizedRect is the display's desktop rectangle with a usable size even for
// disabled outputs, which carry no current mode.
func sizedRect(d *display.DisplayInfo) display.Rect {
	m := d.EffectiveMode()
	if !m.Valid() {
		m = display.Mode{Width: defaultModeWidth, Height: defaultModeHeight, RefreshMHz: 60000}
	}
	return display.Rect{X: d.Position.X, Y: d.Position.Y, Width: m.Width, Height: m.Height}
}

// State returns the session's lifecycle position.
func (s Session) State() State { return s.state }

// Serial returns the inventory serial the session was built from.
func (s Session) Serial() uint64 { return s.serial }

// Transform returns the session's fixed canvas transform.
func (s Session) Transform() Transform { return s.transform }

// CanvasBounds returns the generous boundary drags are clamped to.
func (s Session) CanvasBounds() Box { return s.bounds }

// Displays returns a copy of the working display set.
func (s Session) Displays() []display.DisplayInfo {
	out := make([]display.DisplayInfo, len(s.displays))
	copy(out, s.displays)
	return out
}

// Display returns the working state of one display.
func (s Session) Display(h display.Handle) (display.DisplayInfo, bool) {
	if d := s.find(h); d != nil {
		return *d, true
	}
	return display.DisplayInfo{}, false
}

func (s *Session) find(h display.Handle) *display.DisplayInfo {
	for i := range s.displays {
		if s.displays[i].Handle == h {
			return &s.displays[i]
		}
	}
	return nil
}

func (s *Session) dragIndex(h display.Handle) int {
	for i := range s.drags {
		if s.drags[i].Handle == h {
			return i
		}
	}
	return -1
}

// clone copies the mutable session innards so transitions never alias the
// caller's previous value.
func (s Session) clone() Session {
	displays := make([]display.DisplayInfo, len(s.displays))
	copy(displays, s.displays)
	drags := make([]Drag, len(s.drags))
	copy(drags, s.drags)
	s.displays = displays
	s.drags = drags
	if s.lastModes != nil {
		last := make(map[display.Handle]display.Mode, len(s.lastModes))
		for h, m := range s.lastModes {
			last[h] = m
		}
		s.lastModes = last
	}
	return s
}

// box returns the display's committed canvas box.
func (s *Session) box(d *display.DisplayInfo) Box {
	return s.transform.BoxOf(sizedRect(d))
}

// dragBox returns the live canvas box of a dragged display: its anchor
// displaced by the pointer delta, clamped to the canvas bounds. Clamping is
// the only constraint applied during motion.
func (s *Session) dragBox(dr Drag) Box {
	d := s.find(dr.Handle)
	b := s.box(d)
	b.X = dr.Anchor.X + (dr.Current.X - dr.Start.X)
	b.Y = dr.Anchor.Y + (dr.Current.Y - dr.Start.Y)
	return clampBox(b, s.bounds)
}

// obstacles collects the other enabled displays at their committed
// positions, which for a display mid-drag is still its pre-drag position.
func (s *Session) obstacles(moving display.Handle) []obstacle {
	out := make([]obstacle, 0, len(s.displays))
	for i := range s.displays {
		d := &s.displays[i]
		if d.Handle == moving || !d.Enabled {
			continue
		}
		out = append(out, obstacle{box: s.box(d), order: i})
	}
	return out
}

// Tiles returns every display ready for rendering, dragged ones at their
// live positions.
func (s Session) Tiles() []Tile {
	out := make([]Tile, 0, len(s.displays))
	for i := range s.displays {
		d := s.displays[i]
		t := Tile{Display: d, Box: s.box(&d)}
		if idx := s.dragIndex(d.Handle); idx >= 0 {
			t.Box = s.dragBox(s.drags[idx])
			t.Dragging = true
		}
		out = append(out, t)
	}
	return out
}

// HitTest returns the display under a canvas point, dragged displays first,
// later-listed displays above earlier ones.
func (s Session) HitTest(p Point) (display.Handle, bool) {
	for i := len(s.drags) - 1; i >= 0; i-- {
		if s.dragBox(s.drags[i]).Contains(p) {
			return s.drags[i].Handle, true
		}
	}
	for i := len(s.displays) - 1; i >= 0; i-- {
		d := &s.displays[i]
		if s.dragIndex(d.Handle) >= 0 {
			continue
		}
		if s.box(d).Contains(p) {
			return d.Handle, true
		}
	}
	return 0, false
}

// PointerDown begins dragging the display under handle h at pointer point
// p. A second PointerDown while another display is mid-drag starts an
// independent drag. Returns false while committing, for unknown handles,
// and for displays already being dragged.
func (s Session) PointerDown(h display.Handle, p Point) (Session, bool) {
	if s.state == StateCommitting {
		return s, false
	}
	d := s.find(h)
	if d == nil || s.dragIndex(h) >= 0 {
		return s, false
	}
	s = s.clone()
	anchor := s.transform.ToCanvas(d.Position)
	s.drags = append(s.drags, Drag{
		Handle:  h,
		Start:   p,
		Current: p,
		Anchor:  anchor,
		Active:  true,
	})
	s.state = StateDragging
	return s, true
}

// PointerMove updates the most recent drag's current position
// unconditionally. No snapping or collision checks run during motion.
func (s Session) PointerMove(p Point) Session {
	if len(s.drags) == 0 {
		return s
	}
	return s.PointerMoveOn(s.drags[len(s.drags)-1].Handle, p)
}

// PointerMoveOn updates one specific drag, for callers tracking several.
func (s Session) PointerMoveOn(h display.Handle, p Point) Session {
	idx := s.dragIndex(h)
	if idx < 0 {
		return s
	}
	s = s.clone()
	s.drags[idx].Current = p
	return s
}

// PointerUp ends the most recent drag at pointer point p.
func (s Session) PointerUp(p Point) (Session, Placement, bool) {
	if len(s.drags) == 0 {
		return s, Placement{}, false
	}
	return s.PointerUpOn(s.drags[len(s.drags)-1].Handle, p)
}

// PointerUpOn ends one specific drag. This is the only point where snapping
// and collision resolution run: the drop snaps per axis (edges of other
// enabled displays first, the coarse grid otherwise), then the snapped box
// is collision-resolved to the nearest free grid cell or reverted to its
// pre-drag position. The result is always a valid arrangement.
func (s Session) PointerUpOn(h display.Handle, p Point) (Session, Placement, bool) {
	idx := s.dragIndex(h)
	if idx < 0 {
		return s, Placement{}, false
	}
	s = s.clone()
	dr := s.drags[idx]
	dr.Current = p

	b := s.dragBox(dr)
	obs := s.obstacles(h)
	snapped, edgeX, edgeY := snapBox(b, obs, s.opts)
	b.X, b.Y = snapped.X, snapped.Y

	pos, displaced, reverted := resolveCollision(b, obs, s.bounds, s.opts.GridSize, dr.Anchor)

	d := s.find(h)
	d.Position = s.transform.ToDesktop(pos)

	s.drags = append(s.drags[:idx], s.drags[idx+1:]...)
	if len(s.drags) == 0 {
		s.state = StateIdle
	}

	return s, Placement{
		Handle:   h,
		Position: d.Position,
		EdgeX:    edgeX && !displaced && !reverted,
		EdgeY:    edgeY && !displaced && !reverted,
		Moved:    displaced,
		Reverted: reverted,
	}, true
}

// Cancel abandons every in-flight drag, leaving committed positions
// untouched.
func (s Session) Cancel() Session {
	if len(s.drags) == 0 {
		return s
	}
	s = s.clone()
	s.drags = s.drags[:0]
	if s.state == StateDragging {
		s.state = StateIdle
	}
	return s
}

// SetEnabled toggles a display. Disabling zeroes its mode (disabled outputs
// never carry one) and drops its primary flag. Re-enabling restores a
// complete mode (the one it ran before disabling if still available, else
// preferred, else best available) and parks the display against the
// bounding box of the currently enabled ones, touching it, so the result
// validates.
func (s Session) SetEnabled(h display.Handle, enabled bool) (Session, bool) {
	if s.state == StateCommitting {
		return s, false
	}
	d := s.find(h)
	if d == nil {
		return s, false
	}
	if d.Enabled == enabled {
		return s, true
	}
	s = s.clone()
	d = s.find(h)
	if !enabled {
		if d.Mode.Valid() {
			if s.lastModes == nil {
				s.lastModes = make(map[display.Handle]display.Mode)
			}
			s.lastModes[h] = d.Mode
		}
		d.Enabled = false
		d.Mode = display.Mode{}
		d.Primary = false
		return s, true
	}

	mode := s.lastModes[h]
	if !mode.Valid() || !d.HasMode(mode) {
		mode = display.PreferredMode(d.Modes)
	}
	if !mode.Valid() {
		mode = display.Mode{Width: defaultModeWidth, Height: defaultModeHeight, RefreshMHz: 60000}
	}
	d.Mode = mode
	d.Enabled = true
	d.Position = s.adjacentPosition(d)
	return s, true
}

// adjacentPosition finds where a re-enabled display goes: flush against the
// right edge of the enabled bounding box, falling back to the other three
// sides if the right would overlap a display parked out there. With nothing
// else enabled it goes to the origin.
func (s *Session) adjacentPosition(d *display.DisplayInfo) display.Position {
	var bbox display.Rect
	for i := range s.displays {
		o := &s.displays[i]
		if o.Handle == d.Handle || !o.Enabled {
			continue
		}
		bbox = bbox.Union(sizedRect(o))
	}
	if bbox.Empty() {
		return display.Position{}
	}

	r := sizedRect(d)
	candidates := []display.Position{
		{X: bbox.X + bbox.Width, Y: bbox.Y},  // right
		{X: bbox.X - r.Width, Y: bbox.Y},     // left
		{X: bbox.X, Y: bbox.Y + bbox.Height}, // below
		{X: bbox.X, Y: bbox.Y - r.Height},    // above
	}
	for _, pos := range candidates {
		cand := display.Rect{X: pos.X, Y: pos.Y, Width: r.Width, Height: r.Height}
		ok := true
		for i := range s.displays {
			o := &s.displays[i]
			if o.Handle == d.Handle || !o.Enabled {
				continue
			}
			if cand.Overlaps(sizedRect(o)) {
				ok = false
				break
			}
		}
		if ok {
			return pos
		}
	}
	return display.Position{X: bbox.X + bbox.Width, Y: bbox.Y}
}

// SetPrimary marks one enabled display primary and clears the rest.
func (s Session) SetPrimary(h display.Handle) (Session, bool) {
	d := s.find(h)
	if d == nil || !d.Enabled {
		return s, false
	}
	s = s.clone()
	for i := range s.displays {
		s.displays[i].Primary = s.displays[i].Handle == h
	}
	return s, true
}

// SetMode switches an enabled display to another of its available modes.
func (s Session) SetMode(h display.Handle, m display.Mode) (Session, bool) {
	d := s.find(h)
	if d == nil || !d.Enabled || !d.HasMode(m) {
		return s, false
	}
	s = s.clone()
	s.find(h).Mode = m
	return s, true
}

// BeginCommit freezes the session and produces the pending configuration
// for the applier: the full working display set plus the serial of the
// snapshot it came from. Consumed exactly once; pointer events are rejected
// until EndCommit. Fails while drags are in flight.
func (s Session) BeginCommit() (Session, display.Pending, bool) {
	if s.state != StateIdle || len(s.drags) > 0 {
		return s, display.Pending{}, false
	}
	s = s.clone()
	s.state = StateCommitting
	pending := display.Pending{
		Serial:   s.serial,
		Displays: make([]display.DisplayInfo, len(s.displays)),
	}
	copy(pending.Displays, s.displays)
	return s, pending, true
}

// EndCommit closes the commit, rebasing the session on the snapshot
// re-queried after the apply. Both success and failure paths come through
// here; callers always re-enumerate first, so the session never continues
// over state the OS may have diverged from.
func (s Session) EndCommit(snap *display.Snapshot) Session {
	if snap != nil {
		return NewSession(snap, s.opts)
	}
	s = s.clone()
	s.state = StateIdle
	return s
}
