package cmd

import (
	"context"

	"github.com/bnema/wayrange/internal/arrange"
	"github.com/bnema/wayrange/internal/config"
	"github.com/bnema/wayrange/internal/inventory"
	"github.com/bnema/wayrange/internal/profile"
)

// openInventory builds the inventory from the configured backend
// selection. The caller closes it.
func openInventory(ctx context.Context) (*inventory.Inventory, error) {
	cfg := config.Get().Backend
	return inventory.New(ctx, inventory.Options{
		Backend:      cfg.Name,
		WlrRandrPath: cfg.WlrRandrPath,
		PollInterval: cfg.PollInterval,
	})
}

// canvasOptions converts the config's desktop-pixel thresholds into canvas
// units for the arrangement engine.
func canvasOptions() arrange.Options {
	cfg := config.Get().Canvas
	scale := cfg.Scale
	if scale <= 0 {
		scale = arrange.DefaultOptions().Scale
	}
	return arrange.Options{
		Scale:         scale,
		SnapThreshold: float64(cfg.SnapThreshold) * scale,
		GridSize:      float64(cfg.GridSize) * scale,
		BoundsMargin:  float64(cfg.BoundsMargin) * scale,
	}
}

// openStore returns the profile store at the configured directory.
func openStore() *profile.Store {
	if dir := config.Get().Profiles.Dir; dir != "" {
		return profile.NewStore(dir)
	}
	return profile.NewStore(profile.DefaultDir())
}
