// Package inventory detects the displays attached to the session and
// carries configuration changes back to the compositor. Detection and
// apply both go through a Backend; the Inventory wraps whichever backend
// is available and normalizes what it reports into snapshots the rest of
// the system consumes.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bnema/wayrange/internal/display"
	"github.com/bnema/wayrange/internal/identity"
	"github.com/bnema/wayrange/internal/logger"
)

// Sentinel errors a Backend returns from Apply. The configure layer
// classifies them into its own taxonomy.
var (
	// ErrRejected means the compositor or tool refused the staged
	// configuration outright and kept the previous state.
	ErrRejected = errors.New("configuration rejected")

	// ErrOutdated means the configuration was built against output state
	// the compositor has already moved past.
	ErrOutdated = errors.New("configuration built against outdated state")
)

// DetectionError wraps a backend failure during enumeration. It is the
// caller's signal that detection itself failed, as opposed to a session
// with no displays, which is a valid snapshot with an empty list.
type DetectionError struct {
	Backend string
	Err     error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("display detection failed (%s backend): %v", e.Backend, e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

// Backend is one way of talking to the session's output configuration.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Enumerate reports every output the session knows about, enabled or
	// not, stamped with the backend's state serial.
	Enumerate(ctx context.Context) (*display.Snapshot, error)

	// Apply stages every device in configs against the given state serial
	// and commits them as one operation. It returns ErrOutdated when the
	// serial no longer matches the live state and ErrRejected when the
	// compositor refuses the configuration.
	Apply(ctx context.Context, serial uint64, configs []display.DeviceConfig) error

	// Watch calls fn whenever the backend observes an output state change,
	// until ctx is cancelled. Registration returns immediately.
	Watch(ctx context.Context, fn func()) error

	Close() error
}

// Options selects and tunes the backend.
type Options struct {
	// Backend picks a specific backend by name, or "auto" (the default)
	// to try them in order of preference.
	Backend string

	// WlrRandrPath overrides where the wlr-randr backend finds its tool.
	// Empty means look it up on PATH.
	WlrRandrPath string

	// PollInterval sets how often the wlr-randr backend re-reads output
	// state to notice changes. Zero means the backend default.
	PollInterval time.Duration
}

// Inventory is the detection and apply façade over one live backend.
type Inventory struct {
	backend Backend

	mu     sync.Mutex
	latest *display.Snapshot
}

// New selects a backend and returns an Inventory over it. With "auto" the
// native wlr-output-management protocol is preferred and the wlr-randr
// tool is the fallback.
func New(ctx context.Context, opts Options) (*Inventory, error) {
	constructors := []struct {
		name  string
		build func(context.Context, Options) (Backend, error)
	}{
		{"wlr", newWlrBackend},
		{"wlr-randr", newRandrBackend},
	}

	choice := opts.Backend
	if choice == "" {
		choice = "auto"
	}

	if choice != "auto" {
		for _, c := range constructors {
			if c.name != choice {
				continue
			}
			backend, err := c.build(ctx, opts)
			if err != nil {
				return nil, fmt.Errorf("backend %s unavailable: %w", c.name, err)
			}
			logger.Debugf("Using display backend: %s", c.name)
			return NewWithBackend(backend), nil
		}
		return nil, fmt.Errorf("unknown display backend %q", choice)
	}

	for _, c := range constructors {
		backend, err := c.build(ctx, opts)
		if err != nil {
			logger.Debugf("Display backend %s unavailable: %v", c.name, err)
			continue
		}
		logger.Debugf("Using display backend: %s", c.name)
		return NewWithBackend(backend), nil
	}

	return nil, fmt.Errorf("no display backend available: need a compositor speaking wlr-output-management or the wlr-randr tool")
}

// NewWithBackend wraps an already constructed backend.
func NewWithBackend(b Backend) *Inventory {
	return &Inventory{backend: b}
}

// Backend returns the name of the live backend.
func (inv *Inventory) Backend() string {
	return inv.backend.Name()
}

// Enumerate queries the backend and normalizes the result: identities
// derived, mode lists deduplicated and ordered, disabled outputs parked
// outside the active bounding box, and exactly one enabled display marked
// primary. The returned snapshot becomes the latest known state.
func (inv *Inventory) Enumerate(ctx context.Context) (*display.Snapshot, error) {
	snap, err := inv.backend.Enumerate(ctx)
	if err != nil {
		return nil, &DetectionError{Backend: inv.backend.Name(), Err: err}
	}

	normalize(snap)
	logger.Debugf("Enumerated %d displays (serial %d, backend %s)", len(snap.Displays), snap.Serial, inv.backend.Name())

	inv.mu.Lock()
	inv.latest = snap
	inv.mu.Unlock()
	return snap, nil
}

// Latest returns the most recent snapshot Enumerate produced, or nil
// before the first enumeration. Treat it as read-only.
func (inv *Inventory) Latest() *display.Snapshot {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.latest
}

// Apply hands a compiled configuration to the backend.
func (inv *Inventory) Apply(ctx context.Context, serial uint64, configs []display.DeviceConfig) error {
	return inv.backend.Apply(ctx, serial, configs)
}

// Watch registers fn to run whenever the backend observes a change.
func (inv *Inventory) Watch(ctx context.Context, fn func()) error {
	return inv.backend.Watch(ctx, fn)
}

// Close shuts the backend down.
func (inv *Inventory) Close() error {
	return inv.backend.Close()
}

// parkGap separates parked disabled outputs from the active bounding box
// and from each other, in desktop pixels.
const parkGap = 256

// normalize rewrites a raw backend snapshot into canonical form.
func normalize(snap *display.Snapshot) {
	for i := range snap.Displays {
		d := &snap.Displays[i]
		d.Identity = identity.Derive(d.Make, d.Model, d.Serial)
		d.Modes = display.NormalizeModes(d.Modes)
		if !d.Enabled {
			d.Mode = display.Mode{}
			d.Primary = false
		}
		if d.Scale <= 0 {
			d.Scale = 1.0
		}
	}

	sort.SliceStable(snap.Displays, func(i, j int) bool {
		return snap.Displays[i].Name < snap.Displays[j].Name
	})

	parkDisabled(snap.Displays)
	ensurePrimary(snap.Displays)
}

// parkDisabled assigns placeholder positions to disabled outputs: a row to
// the right of the active bounding box, so they are visible and draggable
// without overlapping live displays.
func parkDisabled(displays []display.DisplayInfo) {
	var active display.Rect
	for i := range displays {
		if displays[i].Enabled {
			active = active.Union(displays[i].Rect())
		}
	}

	x := active.X + active.Width + parkGap
	y := active.Y
	if active.Empty() {
		x, y = 0, 0
	}

	for i := range displays {
		d := &displays[i]
		if d.Enabled {
			continue
		}
		d.Position = display.Position{X: x, Y: y}
		x += d.EffectiveMode().Width + parkGap
	}
}

// ensurePrimary leaves exactly one enabled display marked primary. A flag
// reported by the backend wins; otherwise the display at the desktop
// origin, and failing that the first enabled one.
func ensurePrimary(displays []display.DisplayInfo) {
	seen := false
	for i := range displays {
		d := &displays[i]
		if !d.Primary {
			continue
		}
		if !d.Enabled || seen {
			d.Primary = false
			continue
		}
		seen = true
	}
	if seen {
		return
	}

	for i := range displays {
		d := &displays[i]
		if d.Enabled && d.Position.X == 0 && d.Position.Y == 0 {
			d.Primary = true
			return
		}
	}
	for i := range displays {
		if displays[i].Enabled {
			displays[i].Primary = true
			return
		}
	}
}
