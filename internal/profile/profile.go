// Package profile saves display arrangements keyed by hardware identity
// and matches them back against whatever is connected later, regardless of
// which connector each display came back on.
package profile

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/wayrange/internal/display"
	"github.com/bnema/wayrange/internal/identity"
)

// modeMatchToleranceMHz bridges refresh rates saved from one backend and
// matched against another: CLI tools round hertz floats, the protocol
// reports exact millihertz.
const modeMatchToleranceMHz = 500

// Entry is one saved display. Identity is the durable key; Name is the
// connector it sat on at save time and the fallback matcher for displays
// that expose no usable identity.
type Entry struct {
	Identity identity.ID      `yaml:"identity,omitempty"`
	Name     string           `yaml:"name"`
	Make     string           `yaml:"make,omitempty"`
	Model    string           `yaml:"model,omitempty"`
	Enabled  bool             `yaml:"enabled"`
	Position display.Position `yaml:"position"`
	Mode     display.Mode     `yaml:"mode"`
	Scale    float64          `yaml:"scale,omitempty"`
	Primary  bool             `yaml:"primary,omitempty"`
}

// Label returns a human-readable handle for the saved display.
func (e Entry) Label() string {
	parts := make([]string, 0, 2)
	if e.Make != "" || e.Model != "" {
		parts = append(parts, strings.TrimSpace(e.Make+" "+e.Model))
	}
	if e.Name != "" {
		parts = append(parts, fmt.Sprintf("(%s)", e.Name))
	}
	if len(parts) == 0 {
		return "unknown display"
	}
	return strings.Join(parts, " ")
}

// Profile is one named arrangement.
type Profile struct {
	Name    string    `yaml:"-"`
	Saved   time.Time `yaml:"saved"`
	Entries []Entry   `yaml:"displays"`
}

// FromSnapshot captures the current arrangement as a profile.
func FromSnapshot(name string, snap *display.Snapshot) *Profile {
	p := &Profile{Name: name, Saved: time.Now().UTC()}
	for i := range snap.Displays {
		d := &snap.Displays[i]
		entry := Entry{
			Identity: d.Identity,
			Name:     d.Name,
			Make:     d.Make,
			Model:    d.Model,
			Enabled:  d.Enabled,
		}
		if d.Enabled {
			entry.Position = d.Position
			entry.Mode = d.Mode
			entry.Scale = d.Scale
			entry.Primary = d.Primary
		}
		p.Entries = append(p.Entries, entry)
	}
	return p
}

// Confidence says how an entry was paired with a display.
type Confidence int

const (
	// ConfidenceIdentity is a hardware identity match.
	ConfidenceIdentity Confidence = iota
	// ConfidenceName is a connector-name fallback, used when the saved
	// display exposed no usable identity.
	ConfidenceName
)

func (c Confidence) String() string {
	if c == ConfidenceIdentity {
		return "identity"
	}
	return "name"
}

// Pair binds a saved entry to a connected display.
type Pair struct {
	Entry      Entry
	Display    display.DisplayInfo
	Confidence Confidence
}

// MatchResult is the outcome of pairing a profile against a snapshot.
type MatchResult struct {
	Pairs     []Pair
	Unmatched []Entry
	Extra     []display.DisplayInfo
}

// FullIdentity reports whether every entry matched on identity and no
// enabled display was left unclaimed. This is the bar for applying a
// profile without being asked.
func (r MatchResult) FullIdentity() bool {
	if len(r.Unmatched) > 0 {
		return false
	}
	for _, p := range r.Pairs {
		if p.Confidence != ConfidenceIdentity {
			return false
		}
	}
	for _, d := range r.Extra {
		if d.Enabled {
			return false
		}
	}
	return len(r.Pairs) > 0
}

// Match pairs a profile's entries against the snapshot's displays.
// Identity matches claim displays first, in entry order, so duplicate
// identical monitors pair deterministically. Entries without an identity
// match fall back to their saved connector name. Whatever remains on
// either side is reported, never dropped.
func Match(p *Profile, snap *display.Snapshot) MatchResult {
	var result MatchResult
	claimed := make([]bool, len(snap.Displays))
	paired := make([]int, len(p.Entries)) // display index per entry, -1 = none
	for i := range paired {
		paired[i] = -1
	}

	for ei, entry := range p.Entries {
		if !entry.Identity.Valid() {
			continue
		}
		for di := range snap.Displays {
			if claimed[di] || !snap.Displays[di].Identity.Equal(entry.Identity) {
				continue
			}
			claimed[di] = true
			paired[ei] = di
			result.Pairs = append(result.Pairs, Pair{
				Entry:      entry,
				Display:    snap.Displays[di],
				Confidence: ConfidenceIdentity,
			})
			break
		}
	}

	for ei, entry := range p.Entries {
		if paired[ei] >= 0 || entry.Identity.Valid() {
			continue
		}
		for di := range snap.Displays {
			if claimed[di] || snap.Displays[di].Name != entry.Name {
				continue
			}
			claimed[di] = true
			paired[ei] = di
			result.Pairs = append(result.Pairs, Pair{
				Entry:      entry,
				Display:    snap.Displays[di],
				Confidence: ConfidenceName,
			})
			break
		}
	}

	for ei, entry := range p.Entries {
		if paired[ei] < 0 {
			result.Unmatched = append(result.Unmatched, entry)
		}
	}
	for di := range snap.Displays {
		if !claimed[di] {
			result.Extra = append(result.Extra, snap.Displays[di])
		}
	}
	return result
}

// UnmatchedError reports every saved display the current session has no
// counterpart for. Resolve still returns a usable pending state alongside
// it; the caller decides whether a partial restore is acceptable.
type UnmatchedError struct {
	Profile string
	Entries []Entry
}

func (e *UnmatchedError) Error() string {
	labels := make([]string, len(e.Entries))
	for i, entry := range e.Entries {
		labels[i] = entry.Label()
	}
	return fmt.Sprintf("profile %s: %d saved displays are not connected: %s",
		e.Profile, len(e.Entries), strings.Join(labels, ", "))
}

// Resolve turns a profile into a desired state for the given snapshot.
// Matched displays take the saved position, mode, scale and primary flag;
// displays the profile does not mention keep their current state. The
// returned error is an *UnmatchedError when saved displays are missing
// from the session; the pending state is still valid for the displays that
// did match.
func Resolve(p *Profile, snap *display.Snapshot) (display.Pending, MatchResult, error) {
	result := Match(p, snap)

	desired := snap.Clone()
	for _, pair := range result.Pairs {
		d := findHandle(desired.Displays, pair.Display.Handle)
		if d == nil {
			continue
		}
		if !pair.Entry.Enabled {
			d.Enabled = false
			d.Mode = display.Mode{}
			d.Primary = false
			continue
		}
		d.Enabled = true
		d.Position = pair.Entry.Position
		d.Mode = resolveMode(d, pair.Entry.Mode)
		if pair.Entry.Scale > 0 {
			d.Scale = pair.Entry.Scale
		}
		d.Primary = pair.Entry.Primary
	}

	pending := display.Pending{Serial: desired.Serial, Displays: desired.Displays}
	if len(result.Unmatched) > 0 {
		return pending, result, &UnmatchedError{Profile: p.Name, Entries: result.Unmatched}
	}
	return pending, result, nil
}

// resolveMode maps a saved mode onto the display's advertised list,
// absorbing refresh rounding across backends. A mode the display no longer
// offers is kept verbatim so validation reports it instead of silently
// substituting another.
func resolveMode(d *display.DisplayInfo, saved display.Mode) display.Mode {
	if m, ok := display.FindMode(d.Modes, saved.Width, saved.Height, saved.RefreshMHz, modeMatchToleranceMHz); ok {
		return m
	}
	return saved
}

func findHandle(ds []display.DisplayInfo, h display.Handle) *display.DisplayInfo {
	for i := range ds {
		if ds[i].Handle == h {
			return &ds[i]
		}
	}
	return nil
}
