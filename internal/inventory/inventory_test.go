package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/wayrange/internal/display"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	name     string
	snap     *display.Snapshot
	enumErr  error
	applied  [][]display.DeviceConfig
	applyErr error
}

func (f *fakeBackend) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeBackend) Enumerate(_ context.Context) (*display.Snapshot, error) {
	if f.enumErr != nil {
		return nil, f.enumErr
	}
	return f.snap.Clone(), nil
}

func (f *fakeBackend) Apply(_ context.Context, _ uint64, configs []display.DeviceConfig) error {
	f.applied = append(f.applied, configs)
	return f.applyErr
}

func (f *fakeBackend) Watch(_ context.Context, _ func()) error { return nil }

func (f *fakeBackend) Close() error { return nil }

func testMode(w, h, mhz int32, preferred bool) display.Mode {
	return display.Mode{Width: w, Height: h, RefreshMHz: mhz, Preferred: preferred}
}

func TestEnumerateNormalizesSnapshot(t *testing.T) {
	backend := &fakeBackend{
		snap: &display.Snapshot{
			Serial: 7,
			Displays: []display.DisplayInfo{
				{
					Handle:  2,
					Name:    "HDMI-A-1",
					Make:    "Dell Inc.",
					Model:   "U2720Q",
					Serial:  "ABC123",
					Enabled: false,
					Modes: []display.Mode{
						testMode(2560, 1440, 59951, true),
						testMode(1920, 1080, 60000, false),
					},
				},
				{
					Handle:   1,
					Name:     "eDP-1",
					Make:     "BOE",
					Model:    "0x0791",
					Enabled:  true,
					Position: display.Position{X: 0, Y: 0},
					Mode:     testMode(1920, 1080, 60012, false),
					Modes: []display.Mode{
						testMode(1920, 1080, 60012, true),
						testMode(1920, 1080, 60012, false),
						testMode(1280, 720, 60000, false),
					},
				},
			},
		},
	}

	inv := NewWithBackend(backend)
	snap, err := inv.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Displays, 2)
	assert.Equal(t, uint64(7), snap.Serial)

	// Sorted by connector name.
	assert.Equal(t, "HDMI-A-1", snap.Displays[0].Name)
	assert.Equal(t, "eDP-1", snap.Displays[1].Name)

	edp := snap.ByName("eDP-1")
	require.NotNil(t, edp)
	assert.True(t, edp.Identity.Valid())
	assert.True(t, edp.Primary, "enabled display at the origin becomes primary")
	// Duplicate mode collapsed, preferred flag kept.
	require.Len(t, edp.Modes, 2)
	assert.True(t, edp.Modes[0].Preferred)

	hdmi := snap.ByName("HDMI-A-1")
	require.NotNil(t, hdmi)
	assert.True(t, hdmi.Identity.Valid())
	assert.True(t, hdmi.Mode.IsZero(), "disabled display carries no mode")
	assert.False(t, hdmi.Primary)

	// Parked to the right of the active bounding box.
	assert.Equal(t, int32(1920+parkGap), hdmi.Position.X)
	assert.Equal(t, int32(0), hdmi.Position.Y)
	assert.False(t, hdmi.Rect().Overlaps(edp.Rect()))

	assert.Same(t, snap, inv.Latest())
}

func TestEnumerateWrapsBackendFailure(t *testing.T) {
	backend := &fakeBackend{enumErr: errors.New("socket gone")}
	inv := NewWithBackend(backend)

	_, err := inv.Enumerate(context.Background())
	require.Error(t, err)

	var detection *DetectionError
	require.ErrorAs(t, err, &detection)
	assert.Equal(t, "fake", detection.Backend)
	assert.Contains(t, detection.Error(), "socket gone")
	assert.Nil(t, inv.Latest())
}

func TestEnumerateEmptySessionIsNotAFailure(t *testing.T) {
	backend := &fakeBackend{snap: &display.Snapshot{Serial: 1}}
	inv := NewWithBackend(backend)

	snap, err := inv.Enumerate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Displays)
}

func TestEnsurePrimary(t *testing.T) {
	mk := func(name string, enabled, primary bool, x int32) display.DisplayInfo {
		return display.DisplayInfo{
			Name:     name,
			Enabled:  enabled,
			Primary:  primary,
			Position: display.Position{X: x},
			Mode:     testMode(1920, 1080, 60000, false),
		}
	}

	tests := []struct {
		name        string
		displays    []display.DisplayInfo
		wantPrimary string
	}{
		{
			name:        "backend flag wins over origin rule",
			displays:    []display.DisplayInfo{mk("A", true, false, 0), mk("B", true, true, 1920)},
			wantPrimary: "B",
		},
		{
			name:        "flag on disabled display is dropped",
			displays:    []display.DisplayInfo{mk("A", false, true, 0), mk("B", true, false, 0)},
			wantPrimary: "B",
		},
		{
			name:        "origin display when nothing is flagged",
			displays:    []display.DisplayInfo{mk("A", true, false, -1920), mk("B", true, false, 0)},
			wantPrimary: "B",
		},
		{
			name:        "first enabled when nothing sits at the origin",
			displays:    []display.DisplayInfo{mk("A", true, false, -1920), mk("B", true, false, 1920)},
			wantPrimary: "A",
		},
		{
			name:        "duplicate flags collapse to the first",
			displays:    []display.DisplayInfo{mk("A", true, true, 0), mk("B", true, true, 1920)},
			wantPrimary: "A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ensurePrimary(tt.displays)

			count := 0
			var primary string
			for _, d := range tt.displays {
				if d.Primary {
					count++
					primary = d.Name
				}
			}
			if count != 1 {
				t.Fatalf("expected exactly 1 primary display, got %d", count)
			}
			if primary != tt.wantPrimary {
				t.Errorf("expected %s to be primary, got %s", tt.wantPrimary, primary)
			}
		})
	}
}

func TestEnsurePrimaryAllDisabled(t *testing.T) {
	displays := []display.DisplayInfo{
		{Name: "A", Enabled: false},
		{Name: "B", Enabled: false},
	}
	ensurePrimary(displays)
	for _, d := range displays {
		assert.False(t, d.Primary)
	}
}

func TestParkDisabledWithoutActiveDisplays(t *testing.T) {
	displays := []display.DisplayInfo{
		{Name: "A", Enabled: false, Modes: []display.Mode{testMode(1920, 1080, 60000, true)}},
		{Name: "B", Enabled: false, Modes: []display.Mode{testMode(2560, 1440, 60000, true)}},
	}
	parkDisabled(displays)

	assert.Equal(t, display.Position{X: 0, Y: 0}, displays[0].Position)
	assert.Equal(t, display.Position{X: 1920 + parkGap, Y: 0}, displays[1].Position)
}

func TestApplyPassesThrough(t *testing.T) {
	backend := &fakeBackend{snap: &display.Snapshot{Serial: 3}}
	inv := NewWithBackend(backend)

	configs := []display.DeviceConfig{{Name: "eDP-1", Enable: true}}
	require.NoError(t, inv.Apply(context.Background(), 3, configs))
	require.Len(t, backend.applied, 1)
	assert.Equal(t, configs, backend.applied[0])

	backend.applyErr = ErrRejected
	err := inv.Apply(context.Background(), 3, configs)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), Options{Backend: "x11"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown display backend")
}
