// Package display defines the core types shared by the inventory,
// arrangement and configuration layers: volatile output handles, modes,
// positions and rectangles in virtual desktop coordinates.
package display

import (
	"fmt"
	"sort"

	"github.com/bnema/wayrange/internal/identity"
)

// Handle identifies an output within a single enumeration session. On the
// native backend it is the protocol object id of the head, on the CLI
// backend the list index. Handles are volatile: never persist one, and never
// use one against a snapshot other than the one that produced it.
type Handle uint32

// Mode describes a display mode. The zero value is the "no mode" sentinel
// carried by disabled outputs.
type Mode struct {
	Width      int32 `json:"width" yaml:"width"`
	Height     int32 `json:"height" yaml:"height"`
	RefreshMHz int32 `json:"refresh_mhz" yaml:"refresh_mhz"`
	Preferred  bool  `json:"preferred,omitempty" yaml:"-"`
}

// IsZero reports whether the mode is the disabled-output sentinel.
func (m Mode) IsZero() bool {
	return m.Width == 0 && m.Height == 0 && m.RefreshMHz == 0
}

// Valid reports whether the mode is usable for an enabled output.
func (m Mode) Valid() bool {
	return m.Width > 0 && m.Height > 0 && m.RefreshMHz > 0
}

// RefreshHz returns the refresh rate in hertz.
func (m Mode) RefreshHz() float64 { return float64(m.RefreshMHz) / 1000.0 }

// PixelCount returns width*height, the primary sort key for mode lists.
func (m Mode) PixelCount() int64 { return int64(m.Width) * int64(m.Height) }

// SameResolution reports whether two modes share width and height.
func (m Mode) SameResolution(o Mode) bool {
	return m.Width == o.Width && m.Height == o.Height
}

func (m Mode) String() string {
	if m.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%dx%d@%.3fHz", m.Width, m.Height, m.RefreshHz())
}

// Position is a point in virtual desktop coordinates.
type Position struct {
	X int32 `json:"x" yaml:"x"`
	Y int32 `json:"y" yaml:"y"`
}

func (p Position) String() string { return fmt.Sprintf("%d,%d", p.X, p.Y) }

// DisplayInfo is everything the system knows about one output.
type DisplayInfo struct {
	Handle      Handle      `json:"handle"`
	Identity    identity.ID `json:"identity"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Make        string      `json:"make,omitempty"`
	Model       string      `json:"model,omitempty"`
	Serial      string      `json:"serial,omitempty"`
	Enabled     bool        `json:"enabled"`
	Position    Position    `json:"position"`
	Mode        Mode        `json:"mode"` // current; zero when disabled
	Scale       float64     `json:"scale,omitempty"`
	Transform   int32       `json:"transform,omitempty"`
	Primary     bool        `json:"primary"`
	Modes       []Mode      `json:"modes,omitempty"`
	MmWidth     int32       `json:"mm_width,omitempty"`
	MmHeight    int32       `json:"mm_height,omitempty"`
}

// Rect returns the desktop rectangle the output covers. Zero-sized for
// disabled outputs, which carry no mode.
func (d *DisplayInfo) Rect() Rect {
	return Rect{X: d.Position.X, Y: d.Position.Y, Width: d.Mode.Width, Height: d.Mode.Height}
}

// EffectiveMode returns the current mode, or the best available one for a
// disabled output. Zero only when the output reported no modes at all.
func (d *DisplayInfo) EffectiveMode() Mode {
	if d.Mode.Valid() {
		return d.Mode
	}
	return PreferredMode(d.Modes)
}

// HasMode reports whether m is drawn from the output's available modes
// (exact width, height and refresh match).
func (d *DisplayInfo) HasMode(m Mode) bool {
	for _, avail := range d.Modes {
		if avail.SameResolution(m) && avail.RefreshMHz == m.RefreshMHz {
			return true
		}
	}
	return false
}

// NormalizeModes deduplicates and orders a mode list the way pickers present
// it: resolution groups by descending pixel count, refresh rates descending
// within a group.
func NormalizeModes(modes []Mode) []Mode {
	type key struct{ w, h, r int32 }
	seen := make(map[key]int, len(modes))
	out := make([]Mode, 0, len(modes))
	for _, m := range modes {
		k := key{m.Width, m.Height, m.RefreshMHz}
		if i, ok := seen[k]; ok {
			if m.Preferred {
				out[i].Preferred = true
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if pi, pj := out[i].PixelCount(), out[j].PixelCount(); pi != pj {
			return pi > pj
		}
		if out[i].Width != out[j].Width {
			return out[i].Width > out[j].Width
		}
		return out[i].RefreshMHz > out[j].RefreshMHz
	})
	return out
}

// PreferredMode returns the mode flagged preferred, or the first of a
// normalized list. Zero when the list is empty.
func PreferredMode(modes []Mode) Mode {
	for _, m := range modes {
		if m.Preferred {
			return m
		}
	}
	if len(modes) > 0 {
		return modes[0]
	}
	return Mode{}
}

// FindMode locates the available mode with the given resolution and the
// refresh rate closest to refreshMHz. Exact matches win; otherwise the
// nearest rate within toleranceMHz is accepted. CLI backends report rates
// rounded from hertz floats, so callers matching saved modes pass a small
// tolerance.
func FindMode(modes []Mode, width, height, refreshMHz, toleranceMHz int32) (Mode, bool) {
	best := Mode{}
	bestDiff := int32(-1)
	for _, m := range modes {
		if m.Width != width || m.Height != height {
			continue
		}
		diff := m.RefreshMHz - refreshMHz
		if diff < 0 {
			diff = -diff
		}
		if diff == 0 {
			return m, true
		}
		if diff <= toleranceMHz && (bestDiff < 0 || diff < bestDiff) {
			best, bestDiff = m, diff
		}
	}
	return best, bestDiff >= 0
}

// DeviceConfig is the compiled per-output target handed to a backend.
// Disabling an output nulls the mode fields explicitly: Enable false always
// travels with the zero Mode, never a leftover one.
type DeviceConfig struct {
	Handle   Handle
	Name     string // connector name, for CLI backends and logs
	Enable   bool
	Mode     Mode
	Position Position
	Scale    float64
}

func (c DeviceConfig) String() string {
	if !c.Enable {
		return fmt.Sprintf("%s: off", c.Name)
	}
	return fmt.Sprintf("%s: %s at %s scale %.2f", c.Name, c.Mode, c.Position, c.Scale)
}
