package configure

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/wayrange/internal/display"
	"github.com/bnema/wayrange/internal/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	current  *display.Snapshot
	enumErr  error
	applyErr error
	effect   func(configs []display.DeviceConfig)
	applied  [][]display.DeviceConfig
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Enumerate(_ context.Context) (*display.Snapshot, error) {
	if f.enumErr != nil {
		return nil, f.enumErr
	}
	return f.current.Clone(), nil
}

func (f *fakeBackend) Apply(_ context.Context, _ uint64, configs []display.DeviceConfig) error {
	f.applied = append(f.applied, configs)
	if f.effect != nil {
		f.effect(configs)
	}
	return f.applyErr
}

func (f *fakeBackend) Watch(_ context.Context, _ func()) error { return nil }

func (f *fakeBackend) Close() error { return nil }

// commit mimics a compositor that applies every staged change.
func (f *fakeBackend) commit(configs []display.DeviceConfig) {
	applyConfigs(f.current, configs)
}

func applyConfigs(snap *display.Snapshot, configs []display.DeviceConfig) {
	for _, cfg := range configs {
		d := snap.ByName(cfg.Name)
		if d == nil {
			continue
		}
		d.Enabled = cfg.Enable
		if cfg.Enable {
			d.Mode = cfg.Mode
			d.Position = cfg.Position
			if cfg.Scale > 0 {
				d.Scale = cfg.Scale
			}
		} else {
			d.Mode = display.Mode{}
			d.Position = display.Position{}
			d.Primary = false
		}
	}
	snap.Serial++
}

func baseSnapshot() *display.Snapshot {
	return &display.Snapshot{
		Serial: 7,
		Displays: []display.DisplayInfo{
			{
				Handle:   10,
				Name:     "eDP-1",
				Make:     "BOE",
				Model:    "0x0791",
				Enabled:  true,
				Position: display.Position{X: 0, Y: 0},
				Mode:     display.Mode{Width: 1920, Height: 1080, RefreshMHz: 60012, Preferred: true},
				Scale:    1,
				Modes: []display.Mode{
					{Width: 1920, Height: 1080, RefreshMHz: 60012, Preferred: true},
					{Width: 1280, Height: 720, RefreshMHz: 60000},
				},
			},
			{
				Handle:   11,
				Name:     "DP-3",
				Make:     "Dell Inc.",
				Model:    "U2720Q",
				Serial:   "XYZ123",
				Enabled:  true,
				Position: display.Position{X: 1920, Y: 0},
				Mode:     display.Mode{Width: 2560, Height: 1440, RefreshMHz: 59951, Preferred: true},
				Scale:    1,
				Modes: []display.Mode{
					{Width: 2560, Height: 1440, RefreshMHz: 59951, Preferred: true},
					{Width: 1920, Height: 1080, RefreshMHz: 60000},
				},
			},
		},
	}
}

// setup enumerates once so the inventory has a latest snapshot, the way
// every real caller arrives at an apply.
func setup(t *testing.T) (*fakeBackend, *inventory.Inventory, *Applier, *display.Snapshot) {
	t.Helper()
	fake := &fakeBackend{current: baseSnapshot()}
	inv := inventory.NewWithBackend(fake)
	snap, err := inv.Enumerate(context.Background())
	require.NoError(t, err)
	return fake, inv, NewApplier(inv), snap
}

func pendingFrom(snap *display.Snapshot, mutate func(ds []display.DisplayInfo)) display.Pending {
	c := snap.Clone()
	if mutate != nil {
		mutate(c.Displays)
	}
	return display.Pending{Serial: c.Serial, Displays: c.Displays}
}

func byName(ds []display.DisplayInfo, name string) *display.DisplayInfo {
	for i := range ds {
		if ds[i].Name == name {
			return &ds[i]
		}
	}
	return nil
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	displays := []display.DisplayInfo{
		{
			Name:     "A",
			Enabled:  true,
			Primary:  true,
			Position: display.Position{X: 0, Y: 0},
			Mode:     display.Mode{Width: 1920, Height: 1080, RefreshMHz: 60000},
			Scale:    1,
			Modes:    []display.Mode{{Width: 1280, Height: 720, RefreshMHz: 60000}},
		},
		{
			Name:     "B",
			Enabled:  true,
			Primary:  true,
			Position: display.Position{X: 100, Y: 100},
			Mode:     display.Mode{Width: 1920, Height: 1080, RefreshMHz: 60000},
			Scale:    1,
			Modes:    []display.Mode{{Width: 1920, Height: 1080, RefreshMHz: 60000}},
		},
		{
			Name:    "C",
			Enabled: false,
			Primary: true,
			Mode:    display.Mode{Width: 1920, Height: 1080, RefreshMHz: 60000},
		},
	}

	err := Validate(displays)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 5)

	msg := err.Error()
	assert.Contains(t, msg, "A: mode 1920x1080@60.000Hz is not offered")
	assert.Contains(t, msg, "C: disabled but still carries mode")
	assert.Contains(t, msg, "C: disabled display cannot be primary")
	assert.Contains(t, msg, "2 displays marked primary")
	assert.Contains(t, msg, "A and B overlap")
}

func TestValidateRequiresAnEnabledDisplay(t *testing.T) {
	displays := []display.DisplayInfo{
		{Name: "A", Enabled: false},
		{Name: "B", Enabled: false},
	}

	var verr *ValidationError
	require.ErrorAs(t, Validate(displays), &verr)
	assert.Contains(t, verr.Error(), "at least one display must remain enabled")
}

func TestValidateTouchingEdgesAreNotOverlap(t *testing.T) {
	mode := display.Mode{Width: 1920, Height: 1080, RefreshMHz: 60000}
	displays := []display.DisplayInfo{
		{Name: "A", Enabled: true, Position: display.Position{X: 0, Y: 0}, Mode: mode, Scale: 1, Modes: []display.Mode{mode}},
		{Name: "B", Enabled: true, Position: display.Position{X: 1920, Y: 0}, Mode: mode, Scale: 1, Modes: []display.Mode{mode}},
	}

	assert.NoError(t, Validate(displays))
}

func TestCompileCoversEveryDisplay(t *testing.T) {
	mode := display.Mode{Width: 1920, Height: 1080, RefreshMHz: 60000}
	displays := []display.DisplayInfo{
		{Handle: 1, Name: "A", Enabled: true, Position: display.Position{X: 0, Y: 0}, Mode: mode, Scale: 1.25},
		{Handle: 2, Name: "B", Enabled: false, Position: display.Position{X: 9999, Y: 0}},
	}

	configs := Compile(displays)
	require.Len(t, configs, 2)

	assert.Equal(t, display.DeviceConfig{
		Handle: 1, Name: "A", Enable: true,
		Mode: mode, Position: display.Position{X: 0, Y: 0}, Scale: 1.25,
	}, configs[0])

	// Disabling nulls every mode field; the parked position does not travel.
	assert.Equal(t, display.DeviceConfig{Handle: 2, Name: "B", Enable: false}, configs[1])
}

func TestApplyFailsFastOnStaleSnapshot(t *testing.T) {
	fake, _, applier, snap := setup(t)

	pending := pendingFrom(snap, nil)
	pending.Serial = snap.Serial - 1

	_, err := applier.Apply(context.Background(), pending)
	var stale *StaleSnapshotError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, snap.Serial-1, stale.PendingSerial)
	assert.Equal(t, snap.Serial, stale.LatestSerial)
	assert.Empty(t, fake.applied, "nothing may reach the compositor once the snapshot is stale")
}

func TestApplySuccessRoundTrip(t *testing.T) {
	fake, _, applier, snap := setup(t)
	fake.effect = fake.commit

	pending := pendingFrom(snap, func(ds []display.DisplayInfo) {
		byName(ds, "DP-3").Position = display.Position{X: 2000, Y: 0}
	})

	fresh, err := applier.Apply(context.Background(), pending)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Greater(t, fresh.Serial, snap.Serial)
	assert.Equal(t, display.Position{X: 2000, Y: 0}, fresh.ByName("DP-3").Position)

	require.Len(t, fake.applied, 1)
	require.Len(t, fake.applied[0], 2, "the commit covers every output, moved or not")
}

func TestApplyDisableNullsModeFields(t *testing.T) {
	fake, _, applier, snap := setup(t)
	fake.effect = fake.commit

	pending := pendingFrom(snap, func(ds []display.DisplayInfo) {
		d := byName(ds, "DP-3")
		d.Enabled = false
		d.Mode = display.Mode{}
		d.Primary = false
	})

	fresh, err := applier.Apply(context.Background(), pending)
	require.NoError(t, err)

	var dpCfg *display.DeviceConfig
	for i := range fake.applied[0] {
		if fake.applied[0][i].Name == "DP-3" {
			dpCfg = &fake.applied[0][i]
		}
	}
	require.NotNil(t, dpCfg)
	assert.False(t, dpCfg.Enable)
	assert.True(t, dpCfg.Mode.IsZero())

	dp := fresh.ByName("DP-3")
	assert.False(t, dp.Enabled)
	assert.False(t, dp.Primary)
}

func TestApplyRejectedKeepsOldState(t *testing.T) {
	fake, _, applier, snap := setup(t)
	fake.applyErr = inventory.ErrRejected

	pending := pendingFrom(snap, func(ds []display.DisplayInfo) {
		byName(ds, "DP-3").Position = display.Position{X: 2000, Y: 0}
	})

	fresh, err := applier.Apply(context.Background(), pending)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	require.NotNil(t, fresh, "the caller always gets the actual state back")
	assert.Equal(t, display.Position{X: 1920, Y: 0}, fresh.ByName("DP-3").Position)
}

func TestApplyOutdatedAtCommitMapsToStale(t *testing.T) {
	fake, _, applier, snap := setup(t)
	fake.applyErr = inventory.ErrOutdated
	fake.effect = func([]display.DeviceConfig) { fake.current.Serial++ }

	pending := pendingFrom(snap, nil)

	fresh, err := applier.Apply(context.Background(), pending)
	var stale *StaleSnapshotError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, snap.Serial, stale.PendingSerial)
	assert.Equal(t, snap.Serial+1, stale.LatestSerial)
	require.NotNil(t, fresh)
}

func TestApplyAmbiguousOutcomeRejectedWhenStateUnchanged(t *testing.T) {
	fake, _, applier, snap := setup(t)
	cause := errors.New("timeout waiting for configuration outcome")
	fake.applyErr = cause

	pending := pendingFrom(snap, func(ds []display.DisplayInfo) {
		byName(ds, "DP-3").Position = display.Position{X: 2000, Y: 0}
	})

	_, err := applier.Apply(context.Background(), pending)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.ErrorIs(t, err, cause)
}

func TestApplyAmbiguousOutcomePartialWhenStateDiverged(t *testing.T) {
	fake, _, applier, snap := setup(t)
	cause := errors.New("connection reset during apply")
	fake.applyErr = cause
	// Only one of the two staged changes lands.
	fake.effect = func(configs []display.DeviceConfig) {
		for _, cfg := range configs {
			if cfg.Name == "eDP-1" {
				applyConfigs(fake.current, []display.DeviceConfig{cfg})
			}
		}
	}

	pending := pendingFrom(snap, func(ds []display.DisplayInfo) {
		byName(ds, "eDP-1").Position = display.Position{X: 0, Y: 1440}
		byName(ds, "DP-3").Position = display.Position{X: 2000, Y: 0}
	})

	fresh, err := applier.Apply(context.Background(), pending)
	var partial *PartialApplyError
	require.ErrorAs(t, err, &partial)
	require.NotNil(t, partial.Actual)
	require.NotNil(t, fresh)
	require.Len(t, partial.Deviations, 1)
	assert.Equal(t, "DP-3", partial.Deviations[0].Name)
	assert.Equal(t, "position", partial.Deviations[0].Field)
	assert.ErrorIs(t, err, cause)
}

func TestApplyAmbiguousOutcomeSuccessWhenStateMatches(t *testing.T) {
	fake, _, applier, snap := setup(t)
	fake.applyErr = errors.New("timeout waiting for configuration outcome")
	fake.effect = fake.commit

	pending := pendingFrom(snap, func(ds []display.DisplayInfo) {
		byName(ds, "DP-3").Position = display.Position{X: 2000, Y: 0}
	})

	fresh, err := applier.Apply(context.Background(), pending)
	require.NoError(t, err, "a change that landed in full is a success, whatever the transport said")
	assert.Equal(t, display.Position{X: 2000, Y: 0}, fresh.ByName("DP-3").Position)
}

func TestApplyVerifyMismatch(t *testing.T) {
	fake, _, applier, snap := setup(t)
	// The compositor accepts the change but nudges one output elsewhere.
	fake.effect = func(configs []display.DeviceConfig) {
		applyConfigs(fake.current, configs)
		fake.current.ByName("DP-3").Position.X = 1928
	}

	pending := pendingFrom(snap, func(ds []display.DisplayInfo) {
		byName(ds, "DP-3").Position = display.Position{X: 2000, Y: 0}
	})

	fresh, err := applier.Apply(context.Background(), pending)
	var verify *VerifyError
	require.ErrorAs(t, err, &verify)
	require.NotNil(t, fresh)
	require.NotEmpty(t, verify.Deviations)
	assert.Equal(t, "DP-3", verify.Deviations[0].Name)
	assert.Equal(t, "position", verify.Deviations[0].Field)
	assert.Equal(t, "2000,0", verify.Deviations[0].Want)
	assert.Equal(t, "1928,0", verify.Deviations[0].Got)
}

func TestVerifyToleratesRefreshRounding(t *testing.T) {
	fake, _, applier, snap := setup(t)
	fake.effect = func(configs []display.DeviceConfig) {
		applyConfigs(fake.current, configs)
		// A CLI backend reports back a rate rounded from a hertz float.
		fake.current.ByName("eDP-1").Mode.RefreshMHz = 60000
	}

	pending := pendingFrom(snap, nil)

	_, err := applier.Apply(context.Background(), pending)
	assert.NoError(t, err)
}

func TestApplySucceededButRequeryFailed(t *testing.T) {
	fake, _, applier, snap := setup(t)
	fake.effect = func(configs []display.DeviceConfig) {
		applyConfigs(fake.current, configs)
		fake.enumErr = errors.New("socket gone")
	}

	pending := pendingFrom(snap, nil)

	fresh, err := applier.Apply(context.Background(), pending)
	require.Error(t, err)
	assert.Nil(t, fresh)

	var detection *inventory.DetectionError
	assert.ErrorAs(t, err, &detection)
}

func TestApplyValidatesBeforeTouchingTheCompositor(t *testing.T) {
	fake, _, applier, snap := setup(t)

	pending := pendingFrom(snap, func(ds []display.DisplayInfo) {
		// Move one display onto the other.
		byName(ds, "DP-3").Position = display.Position{X: 100, Y: 0}
	})

	_, err := applier.Apply(context.Background(), pending)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, fake.applied)
}
