// Package configure turns a desired arrangement into an applied one. The
// applier validates the whole configuration up front, compiles it into
// per-device changes, commits them as one serial-checked operation and
// re-queries the compositor to verify what actually took effect.
package configure

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/wayrange/internal/display"
	"github.com/bnema/wayrange/internal/inventory"
	"github.com/bnema/wayrange/internal/logger"
)

// verifyRefreshToleranceMHz absorbs backend rounding when comparing
// refresh rates: CLI backends report hertz floats that round-trip within
// half a hertz of the compositor's millihertz value.
const verifyRefreshToleranceMHz = 500

// verifyScaleTolerance absorbs fixed-point (24.8) and decimal rounding in
// reported scale factors.
const verifyScaleTolerance = 0.01

// Applier carries desired arrangements to the compositor through an
// Inventory.
type Applier struct {
	inv *inventory.Inventory
}

// NewApplier returns an Applier over the given inventory.
func NewApplier(inv *inventory.Inventory) *Applier {
	return &Applier{inv: inv}
}

// Plan validates the desired state and compiles the per-device changes
// without touching the compositor.
func (a *Applier) Plan(pending display.Pending) ([]display.DeviceConfig, error) {
	if err := Validate(pending.Displays); err != nil {
		return nil, err
	}
	return Compile(pending.Displays), nil
}

// Apply commits a desired arrangement. On success it returns the
// re-queried snapshot reflecting the new state. On failure the returned
// snapshot is the freshest actual state the applier could obtain (nil when
// nothing was committed or detection failed) and the error says what
// happened: *ValidationError, *StaleSnapshotError, *RejectedError,
// *PartialApplyError or *VerifyError. The applier never retries.
func (a *Applier) Apply(ctx context.Context, pending display.Pending) (*display.Snapshot, error) {
	before := a.inv.Latest()
	if before != nil && before.Serial != pending.Serial {
		return nil, &StaleSnapshotError{PendingSerial: pending.Serial, LatestSerial: before.Serial}
	}

	configs, err := a.Plan(pending)
	if err != nil {
		return nil, err
	}

	logger.Infof("Applying configuration for %d outputs (serial %d)", len(configs), pending.Serial)
	for _, cfg := range configs {
		logger.Debugf("  %s", cfg)
	}

	applyErr := a.inv.Apply(ctx, pending.Serial, configs)

	switch {
	case applyErr == nil:
		fresh, err := a.inv.Enumerate(ctx)
		if err != nil {
			return nil, fmt.Errorf("configuration applied but re-query failed: %w", err)
		}
		if devs := diffState(pending.Displays, fresh); len(devs) > 0 {
			return fresh, &VerifyError{Actual: fresh, Deviations: devs}
		}
		logger.Info("Configuration applied and verified")
		return fresh, nil

	case errors.Is(applyErr, inventory.ErrOutdated):
		latest := pending.Serial
		fresh, err := a.inv.Enumerate(ctx)
		if err == nil {
			latest = fresh.Serial
		}
		return fresh, &StaleSnapshotError{PendingSerial: pending.Serial, LatestSerial: latest}

	case errors.Is(applyErr, inventory.ErrRejected):
		fresh, _ := a.inv.Enumerate(ctx)
		return fresh, &RejectedError{Err: applyErr}

	default:
		// The outcome is unknown (timeout, transport failure). Read the
		// actual state and let it decide the classification.
		fresh, enumErr := a.inv.Enumerate(ctx)
		if enumErr != nil {
			return nil, &PartialApplyError{Cause: applyErr}
		}
		devs := diffState(pending.Displays, fresh)
		if len(devs) == 0 {
			logger.Warnf("Apply reported %v but the requested state is in effect", applyErr)
			return fresh, nil
		}
		if before != nil && len(diffState(before.Displays, fresh)) == 0 {
			return fresh, &RejectedError{Err: applyErr}
		}
		return fresh, &PartialApplyError{Cause: applyErr, Actual: fresh, Deviations: devs}
	}
}

// Validate checks a desired configuration as a whole and reports every
// problem at once.
func Validate(displays []display.DisplayInfo) error {
	var problems []string
	enabled := 0
	primaries := 0

	for i := range displays {
		d := &displays[i]
		if d.Enabled {
			enabled++
			if d.Primary {
				primaries++
			}
			if !d.Mode.Valid() {
				problems = append(problems, fmt.Sprintf("%s: enabled without a mode", d.Name))
			} else if !d.HasMode(d.Mode) {
				problems = append(problems, fmt.Sprintf("%s: mode %s is not offered by the display", d.Name, d.Mode))
			}
			if d.Scale <= 0 {
				problems = append(problems, fmt.Sprintf("%s: scale %g is not positive", d.Name, d.Scale))
			}
			continue
		}
		if !d.Mode.IsZero() {
			problems = append(problems, fmt.Sprintf("%s: disabled but still carries mode %s", d.Name, d.Mode))
		}
		if d.Primary {
			problems = append(problems, fmt.Sprintf("%s: disabled display cannot be primary", d.Name))
		}
	}

	if enabled == 0 {
		problems = append(problems, "at least one display must remain enabled")
	}
	if primaries > 1 {
		problems = append(problems, fmt.Sprintf("%d displays marked primary, at most one allowed", primaries))
	}

	for i := range displays {
		if !displays[i].Enabled {
			continue
		}
		for j := i + 1; j < len(displays); j++ {
			if !displays[j].Enabled {
				continue
			}
			if displays[i].Rect().Overlaps(displays[j].Rect()) {
				problems = append(problems, fmt.Sprintf("%s and %s overlap", displays[i].Name, displays[j].Name))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Compile turns the desired state into per-device changes. Every display
// in the snapshot gets an entry: the commit must cover all of them, and a
// disabled one travels with explicitly nulled mode fields.
func Compile(displays []display.DisplayInfo) []display.DeviceConfig {
	configs := make([]display.DeviceConfig, 0, len(displays))
	for i := range displays {
		d := &displays[i]
		cfg := display.DeviceConfig{Handle: d.Handle, Name: d.Name, Enable: d.Enabled}
		if d.Enabled {
			cfg.Mode = d.Mode
			cfg.Position = d.Position
			cfg.Scale = d.Scale
		}
		configs = append(configs, cfg)
	}
	return configs
}

// InEffect reports whether the desired state is already what the session
// shows. The comparison is the one post-apply verification uses.
func InEffect(pending display.Pending, snap *display.Snapshot) bool {
	return len(diffState(pending.Displays, snap)) == 0
}

// diffState compares the requested state against an observed snapshot.
// Disabled outputs are compared on the enabled flag alone: their parked
// positions are a client-side convention the compositor never sees.
// Primary is likewise derived locally and not part of the comparison.
func diffState(want []display.DisplayInfo, got *display.Snapshot) []Deviation {
	var devs []Deviation
	for i := range want {
		w := &want[i]
		g := matchActual(w, got)
		if g == nil {
			devs = append(devs, Deviation{Name: w.Name, Field: "present", Want: "present", Got: "missing"})
			continue
		}
		if w.Enabled != g.Enabled {
			devs = append(devs, Deviation{
				Name: w.Name, Field: "enabled",
				Want: fmt.Sprintf("%t", w.Enabled), Got: fmt.Sprintf("%t", g.Enabled),
			})
			continue
		}
		if !w.Enabled {
			continue
		}
		if w.Position != g.Position {
			devs = append(devs, Deviation{
				Name: w.Name, Field: "position",
				Want: w.Position.String(), Got: g.Position.String(),
			})
		}
		if !modeClose(w.Mode, g.Mode) {
			devs = append(devs, Deviation{
				Name: w.Name, Field: "mode",
				Want: w.Mode.String(), Got: g.Mode.String(),
			})
		}
		if !scaleClose(w.Scale, g.Scale) {
			devs = append(devs, Deviation{
				Name: w.Name, Field: "scale",
				Want: fmt.Sprintf("%g", w.Scale), Got: fmt.Sprintf("%g", g.Scale),
			})
		}
	}
	return devs
}

// matchActual finds the observed counterpart of a requested display:
// by hardware identity when it is unambiguous, by connector name
// otherwise.
func matchActual(want *display.DisplayInfo, got *display.Snapshot) *display.DisplayInfo {
	if want.Identity.Valid() {
		var found *display.DisplayInfo
		count := 0
		for i := range got.Displays {
			if got.Displays[i].Identity.Equal(want.Identity) {
				found = &got.Displays[i]
				count++
			}
		}
		if count == 1 {
			return found
		}
	}
	return got.ByName(want.Name)
}

func modeClose(want, got display.Mode) bool {
	if !want.SameResolution(got) {
		return false
	}
	diff := want.RefreshMHz - got.RefreshMHz
	if diff < 0 {
		diff = -diff
	}
	return diff <= verifyRefreshToleranceMHz
}

func scaleClose(want, got float64) bool {
	diff := want - got
	if diff < 0 {
		diff = -diff
	}
	return diff <= verifyScaleTolerance
}
