package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeModes(t *testing.T) {
	modes := []Mode{
		{Width: 1920, Height: 1080, RefreshMHz: 60000},
		{Width: 2560, Height: 1440, RefreshMHz: 59951},
		{Width: 1920, Height: 1080, RefreshMHz: 144000},
		{Width: 2560, Height: 1440, RefreshMHz: 144000, Preferred: true},
		{Width: 1920, Height: 1080, RefreshMHz: 60000}, // duplicate
		{Width: 1280, Height: 1024, RefreshMHz: 75025},
	}

	got := NormalizeModes(modes)

	want := []Mode{
		{Width: 2560, Height: 1440, RefreshMHz: 144000, Preferred: true},
		{Width: 2560, Height: 1440, RefreshMHz: 59951},
		{Width: 1920, Height: 1080, RefreshMHz: 144000},
		{Width: 1920, Height: 1080, RefreshMHz: 60000},
		{Width: 1280, Height: 1024, RefreshMHz: 75025},
	}
	assert.Equal(t, want, got)
}

func TestNormalizeModesKeepsPreferredAcrossDuplicates(t *testing.T) {
	modes := []Mode{
		{Width: 1920, Height: 1080, RefreshMHz: 60000},
		{Width: 1920, Height: 1080, RefreshMHz: 60000, Preferred: true},
	}
	got := NormalizeModes(modes)
	assert.Len(t, got, 1)
	assert.True(t, got[0].Preferred)
}

func TestPreferredMode(t *testing.T) {
	modes := []Mode{
		{Width: 3840, Height: 2160, RefreshMHz: 60000},
		{Width: 2560, Height: 1440, RefreshMHz: 144000, Preferred: true},
	}
	assert.Equal(t, modes[1], PreferredMode(modes))

	// Without a preferred flag the first (best) mode wins.
	assert.Equal(t, modes[0], PreferredMode([]Mode{modes[0], {Width: 800, Height: 600, RefreshMHz: 60000}}))

	assert.True(t, PreferredMode(nil).IsZero())
}

func TestFindMode(t *testing.T) {
	modes := []Mode{
		{Width: 2560, Height: 1440, RefreshMHz: 143912},
		{Width: 1920, Height: 1080, RefreshMHz: 60000},
		{Width: 1920, Height: 1080, RefreshMHz: 59940},
	}

	m, ok := FindMode(modes, 1920, 1080, 60000, 0)
	assert.True(t, ok)
	assert.Equal(t, int32(60000), m.RefreshMHz)

	// Nearest within tolerance: 143912 is 88mHz from the rounded 144000.
	m, ok = FindMode(modes, 2560, 1440, 144000, 500)
	assert.True(t, ok)
	assert.Equal(t, int32(143912), m.RefreshMHz)

	_, ok = FindMode(modes, 2560, 1440, 144000, 0)
	assert.False(t, ok)

	_, ok = FindMode(modes, 1024, 768, 60000, 500)
	assert.False(t, ok)
}

func TestModeSentinel(t *testing.T) {
	var zero Mode
	assert.True(t, zero.IsZero())
	assert.False(t, zero.Valid())
	assert.Equal(t, "none", zero.String())

	m := Mode{Width: 1920, Height: 1080, RefreshMHz: 59940}
	assert.False(t, m.IsZero())
	assert.True(t, m.Valid())
	assert.Equal(t, "1920x1080@59.940Hz", m.String())
}

func TestSnapshotHelpers(t *testing.T) {
	snap := &Snapshot{
		Serial: 7,
		Displays: []DisplayInfo{
			{Handle: 1, Name: "eDP-1", Enabled: true, Position: Position{0, 0}, Mode: Mode{Width: 1920, Height: 1080, RefreshMHz: 60000}},
			{Handle: 2, Name: "DP-1", Enabled: true, Position: Position{1920, 0}, Mode: Mode{Width: 2560, Height: 1440, RefreshMHz: 144000}},
			{Handle: 3, Name: "HDMI-A-1", Enabled: false},
		},
	}

	assert.Equal(t, "DP-1", snap.ByHandle(2).Name)
	assert.Nil(t, snap.ByHandle(9))
	assert.Equal(t, Handle(3), snap.ByName("HDMI-A-1").Handle)
	assert.Len(t, snap.Enabled(), 2)
	assert.Equal(t, Rect{0, 0, 4480, 1440}, snap.ActiveBounds())
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	snap := &Snapshot{
		Serial: 1,
		Displays: []DisplayInfo{
			{Handle: 1, Name: "DP-1", Modes: []Mode{{Width: 1920, Height: 1080, RefreshMHz: 60000}}, Identity: []byte{1, 2, 3}},
		},
	}

	c := snap.Clone()
	c.Displays[0].Name = "changed"
	c.Displays[0].Modes[0].Width = 1
	c.Displays[0].Identity[0] = 9

	assert.Equal(t, "DP-1", snap.Displays[0].Name)
	assert.Equal(t, int32(1920), snap.Displays[0].Modes[0].Width)
	assert.Equal(t, byte(1), snap.Displays[0].Identity[0])
}
