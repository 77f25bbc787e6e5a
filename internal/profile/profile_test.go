package profile

import (
	"testing"

	"github.com/bnema/wayrange/internal/display"
	"github.com/bnema/wayrange/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkDisplay(handle display.Handle, name, maker, model, serial string, enabled bool, x int32) display.DisplayInfo {
	mode := display.Mode{Width: 1920, Height: 1080, RefreshMHz: 60000, Preferred: true}
	d := display.DisplayInfo{
		Handle:   handle,
		Identity: identity.Derive(maker, model, serial),
		Name:     name,
		Make:     maker,
		Model:    model,
		Serial:   serial,
		Enabled:  enabled,
		Scale:    1,
		Modes:    []display.Mode{mode, {Width: 1280, Height: 720, RefreshMHz: 60000}},
	}
	if enabled {
		d.Position = display.Position{X: x, Y: 0}
		d.Mode = mode
	}
	return d
}

func TestMatchByIdentityAcrossConnectors(t *testing.T) {
	saved := &display.Snapshot{Serial: 1, Displays: []display.DisplayInfo{
		mkDisplay(1, "DP-3", "Dell Inc.", "U2720Q", "XYZ123", true, 0),
		mkDisplay(2, "HDMI-A-1", "LG Electronics", "LG HDR 4K", "706NT", true, 1920),
	}}
	p := FromSnapshot("desk", saved)

	// Same hardware, rebooted onto different connectors and reported in a
	// different order.
	current := &display.Snapshot{Serial: 9, Displays: []display.DisplayInfo{
		mkDisplay(7, "DP-1", "LG Electronics", "LG HDR 4K", "706NT", true, 0),
		mkDisplay(8, "DP-2", "Dell Inc.", "U2720Q", "XYZ123", true, 1920),
	}}

	result := Match(p, current)
	require.Len(t, result.Pairs, 2)
	assert.Empty(t, result.Unmatched)
	assert.Empty(t, result.Extra)
	assert.True(t, result.FullIdentity())

	for _, pair := range result.Pairs {
		assert.Equal(t, ConfidenceIdentity, pair.Confidence)
		assert.True(t, pair.Entry.Identity.Equal(pair.Display.Identity))
	}
}

func TestMatchDuplicateIdentitiesPairInOrder(t *testing.T) {
	// Two identical monitors with no serial: identities collide.
	a := mkDisplay(1, "DP-1", "AOC", "24G2W1G4", "", true, 0)
	b := mkDisplay(2, "DP-2", "AOC", "24G2W1G4", "", true, 1920)
	require.True(t, a.Identity.Equal(b.Identity))

	saved := &display.Snapshot{Serial: 1, Displays: []display.DisplayInfo{a, b}}
	p := FromSnapshot("twins", saved)

	current := &display.Snapshot{Serial: 2, Displays: []display.DisplayInfo{
		mkDisplay(5, "DP-1", "AOC", "24G2W1G4", "", true, 0),
		mkDisplay(6, "DP-2", "AOC", "24G2W1G4", "", true, 1920),
	}}

	first := Match(p, current)
	second := Match(p, current)
	require.Len(t, first.Pairs, 2)
	for i := range first.Pairs {
		assert.Equal(t, first.Pairs[i].Display.Handle, second.Pairs[i].Display.Handle,
			"duplicate identities must pair the same way every time")
	}
	assert.Equal(t, display.Handle(5), first.Pairs[0].Display.Handle)
	assert.Equal(t, display.Handle(6), first.Pairs[1].Display.Handle)
}

func TestMatchFallsBackToConnectorName(t *testing.T) {
	// A display with nothing but placeholder strings has no identity.
	anon := mkDisplay(1, "HDMI-A-1", "unknown", "", "", true, 0)
	require.False(t, anon.Identity.Valid())

	saved := &display.Snapshot{Serial: 1, Displays: []display.DisplayInfo{anon}}
	p := FromSnapshot("tv", saved)

	current := &display.Snapshot{Serial: 2, Displays: []display.DisplayInfo{
		mkDisplay(3, "HDMI-A-1", "unknown", "", "", true, 0),
	}}

	result := Match(p, current)
	require.Len(t, result.Pairs, 1)
	assert.Equal(t, ConfidenceName, result.Pairs[0].Confidence)
	assert.False(t, result.FullIdentity(), "a name-only match is not enough to auto-apply")
}

func TestMatchReportsUnmatchedAndExtra(t *testing.T) {
	saved := &display.Snapshot{Serial: 1, Displays: []display.DisplayInfo{
		mkDisplay(1, "DP-3", "Dell Inc.", "U2720Q", "XYZ123", true, 0),
		mkDisplay(2, "HDMI-A-1", "LG Electronics", "LG HDR 4K", "706NT", true, 1920),
	}}
	p := FromSnapshot("desk", saved)

	current := &display.Snapshot{Serial: 2, Displays: []display.DisplayInfo{
		mkDisplay(7, "DP-1", "Dell Inc.", "U2720Q", "XYZ123", true, 0),
		mkDisplay(8, "eDP-1", "BOE", "0x0791", "INTERNAL", true, 1920),
	}}

	result := Match(p, current)
	require.Len(t, result.Pairs, 1)
	require.Len(t, result.Unmatched, 1)
	assert.Equal(t, "HDMI-A-1", result.Unmatched[0].Name)
	require.Len(t, result.Extra, 1)
	assert.Equal(t, "eDP-1", result.Extra[0].Name)
	assert.False(t, result.FullIdentity())
}

func TestResolveAppliesSavedLayout(t *testing.T) {
	saved := &display.Snapshot{Serial: 1, Displays: []display.DisplayInfo{
		mkDisplay(1, "DP-3", "Dell Inc.", "U2720Q", "XYZ123", true, 0),
		mkDisplay(2, "HDMI-A-1", "LG Electronics", "LG HDR 4K", "706NT", true, 1920),
	}}
	saved.Displays[0].Primary = true
	p := FromSnapshot("desk", saved)

	// The same hardware comes back on swapped connectors, both parked at
	// whatever positions the compositor chose.
	current := &display.Snapshot{Serial: 42, Displays: []display.DisplayInfo{
		mkDisplay(7, "DP-1", "LG Electronics", "LG HDR 4K", "706NT", true, 500),
		mkDisplay(8, "DP-2", "Dell Inc.", "U2720Q", "XYZ123", true, 3000),
	}}

	pending, result, err := Resolve(p, current)
	require.NoError(t, err)
	assert.True(t, result.FullIdentity())
	assert.Equal(t, uint64(42), pending.Serial)

	var dell, lg *display.DisplayInfo
	for i := range pending.Displays {
		switch pending.Displays[i].Name {
		case "DP-2":
			dell = &pending.Displays[i]
		case "DP-1":
			lg = &pending.Displays[i]
		}
	}
	require.NotNil(t, dell)
	require.NotNil(t, lg)

	assert.Equal(t, display.Position{X: 0, Y: 0}, dell.Position)
	assert.True(t, dell.Primary)
	assert.Equal(t, display.Position{X: 1920, Y: 0}, lg.Position)
	assert.False(t, lg.Primary)
}

func TestResolveDisabledEntryNullsMode(t *testing.T) {
	saved := &display.Snapshot{Serial: 1, Displays: []display.DisplayInfo{
		mkDisplay(1, "eDP-1", "BOE", "0x0791", "INTERNAL", true, 0),
		mkDisplay(2, "DP-3", "Dell Inc.", "U2720Q", "XYZ123", false, 0),
	}}
	p := FromSnapshot("laptop-only", saved)

	current := &display.Snapshot{Serial: 2, Displays: []display.DisplayInfo{
		mkDisplay(3, "eDP-1", "BOE", "0x0791", "INTERNAL", true, 0),
		mkDisplay(4, "DP-3", "Dell Inc.", "U2720Q", "XYZ123", true, 1920),
	}}

	pending, _, err := Resolve(p, current)
	require.NoError(t, err)

	for i := range pending.Displays {
		if pending.Displays[i].Name != "DP-3" {
			continue
		}
		assert.False(t, pending.Displays[i].Enabled)
		assert.True(t, pending.Displays[i].Mode.IsZero())
		assert.False(t, pending.Displays[i].Primary)
	}
}

func TestResolveUnmatchedIsReportedNotDropped(t *testing.T) {
	saved := &display.Snapshot{Serial: 1, Displays: []display.DisplayInfo{
		mkDisplay(1, "eDP-1", "BOE", "0x0791", "INTERNAL", true, 0),
		mkDisplay(2, "DP-3", "Dell Inc.", "U2720Q", "XYZ123", true, 1920),
		mkDisplay(3, "HDMI-A-1", "LG Electronics", "LG HDR 4K", "706NT", true, 4480),
	}}
	p := FromSnapshot("triple", saved)

	current := &display.Snapshot{Serial: 2, Displays: []display.DisplayInfo{
		mkDisplay(5, "eDP-1", "BOE", "0x0791", "INTERNAL", true, 0),
	}}

	pending, result, err := Resolve(p, current)
	require.Error(t, err)

	var unmatched *UnmatchedError
	require.ErrorAs(t, err, &unmatched)
	assert.Equal(t, "triple", unmatched.Profile)
	require.Len(t, unmatched.Entries, 2)
	assert.Contains(t, unmatched.Error(), "2 saved displays are not connected")
	assert.Contains(t, unmatched.Error(), "Dell Inc. U2720Q (DP-3)")

	// The matched part is still a usable pending state.
	require.Len(t, pending.Displays, 1)
	assert.Equal(t, "eDP-1", pending.Displays[0].Name)
	assert.Len(t, result.Pairs, 1)
}

func TestResolveExtrasKeepCurrentState(t *testing.T) {
	saved := &display.Snapshot{Serial: 1, Displays: []display.DisplayInfo{
		mkDisplay(1, "eDP-1", "BOE", "0x0791", "INTERNAL", true, 0),
	}}
	p := FromSnapshot("solo", saved)

	extra := mkDisplay(9, "DP-3", "Dell Inc.", "U2720Q", "XYZ123", true, 5000)
	current := &display.Snapshot{Serial: 2, Displays: []display.DisplayInfo{
		mkDisplay(5, "eDP-1", "BOE", "0x0791", "INTERNAL", true, 0),
		extra,
	}}

	pending, result, err := Resolve(p, current)
	require.NoError(t, err)
	require.Len(t, result.Extra, 1)

	for i := range pending.Displays {
		if pending.Displays[i].Name == "DP-3" {
			assert.Equal(t, extra.Position, pending.Displays[i].Position)
			assert.Equal(t, extra.Mode, pending.Displays[i].Mode)
			assert.True(t, pending.Displays[i].Enabled)
		}
	}
}

func TestResolveAbsorbsRefreshRounding(t *testing.T) {
	d := mkDisplay(1, "DP-3", "Dell Inc.", "U2720Q", "XYZ123", true, 0)
	d.Modes = []display.Mode{{Width: 2560, Height: 1440, RefreshMHz: 143912, Preferred: true}}
	d.Mode = d.Modes[0]
	saved := &display.Snapshot{Serial: 1, Displays: []display.DisplayInfo{d}}
	p := FromSnapshot("gaming", saved)

	// The saved rate came from a CLI backend that rounded 143.912 Hz to
	// 144 Hz before we stored it.
	p.Entries[0].Mode.RefreshMHz = 144000

	current := &display.Snapshot{Serial: 2, Displays: []display.DisplayInfo{
		mkDisplay(4, "DP-3", "Dell Inc.", "U2720Q", "XYZ123", true, 0),
	}}
	current.Displays[0].Modes = []display.Mode{{Width: 2560, Height: 1440, RefreshMHz: 143912, Preferred: true}}
	current.Displays[0].Mode = current.Displays[0].Modes[0]

	pending, _, err := Resolve(p, current)
	require.NoError(t, err)
	assert.Equal(t, int32(143912), pending.Displays[0].Mode.RefreshMHz,
		"the saved mode resolves to the display's advertised rate")
}

func TestEntryLabel(t *testing.T) {
	tests := []struct {
		entry Entry
		want  string
	}{
		{Entry{Make: "Dell Inc.", Model: "U2720Q", Name: "DP-3"}, "Dell Inc. U2720Q (DP-3)"},
		{Entry{Model: "U2720Q", Name: "DP-3"}, "U2720Q (DP-3)"},
		{Entry{Name: "DP-3"}, "(DP-3)"},
		{Entry{}, "unknown display"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.entry.Label())
	}
}
