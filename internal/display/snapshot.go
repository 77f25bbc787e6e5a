package display

import "time"

// Snapshot is one enumeration of the output set. Serial is an opaque
// freshness token: the compositor's configuration serial on the native
// backend, a state fingerprint on the CLI backend. Any apply derived from
// this snapshot must present the same serial.
type Snapshot struct {
	Serial   uint64        `json:"serial"`
	Taken    time.Time     `json:"taken"`
	Displays []DisplayInfo `json:"displays"`
}

// ByHandle returns the display carrying h, or nil.
func (s *Snapshot) ByHandle(h Handle) *DisplayInfo {
	for i := range s.Displays {
		if s.Displays[i].Handle == h {
			return &s.Displays[i]
		}
	}
	return nil
}

// ByName returns the display with the given connector name, or nil.
func (s *Snapshot) ByName(name string) *DisplayInfo {
	for i := range s.Displays {
		if s.Displays[i].Name == name {
			return &s.Displays[i]
		}
	}
	return nil
}

// Enabled returns the enabled displays in snapshot order.
func (s *Snapshot) Enabled() []DisplayInfo {
	out := make([]DisplayInfo, 0, len(s.Displays))
	for _, d := range s.Displays {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// ActiveBounds returns the union of the enabled displays' rectangles.
func (s *Snapshot) ActiveBounds() Rect {
	var b Rect
	for i := range s.Displays {
		if s.Displays[i].Enabled {
			b = b.Union(s.Displays[i].Rect())
		}
	}
	return b
}

// Pending is a desired end state awaiting apply: the full display set with
// target positions, modes and flags, plus the serial of the snapshot it was
// derived from. An apply presented with a Pending whose serial is no longer
// the latest observed one must fail fast.
type Pending struct {
	Serial   uint64
	Displays []DisplayInfo
}

// Clone deep-copies the snapshot so arrangement sessions can mutate a
// working set without touching the inventory's record.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Serial:   s.Serial,
		Taken:    s.Taken,
		Displays: make([]DisplayInfo, len(s.Displays)),
	}
	copy(out.Displays, s.Displays)
	for i := range out.Displays {
		d := &out.Displays[i]
		if len(d.Modes) > 0 {
			modes := make([]Mode, len(d.Modes))
			copy(modes, d.Modes)
			d.Modes = modes
		}
		if len(d.Identity) > 0 {
			id := make([]byte, len(d.Identity))
			copy(id, d.Identity)
			d.Identity = id
		}
	}
	return out
}
