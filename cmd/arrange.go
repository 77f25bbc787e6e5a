package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/bnema/wayrange/internal/config"
	"github.com/bnema/wayrange/internal/configure"
	"github.com/bnema/wayrange/internal/logger"
	"github.com/bnema/wayrange/internal/ui"
)

var arrangeCmd = &cobra.Command{
	Use:   "arrange",
	Short: "Arrange displays interactively",
	Long: `Open the arrangement canvas: drag displays with the mouse or nudge them
with the arrow keys, toggle, re-mode and re-prime them, then apply the
layout or save it as a profile.`,
	RunE: runArrange,
}

func init() {
	rootCmd.AddCommand(arrangeCmd)
}

func runArrange(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	inv, err := openInventory(ctx)
	if err != nil {
		return err
	}
	defer inv.Close()

	snap, err := inv.Enumerate(ctx)
	if err != nil {
		return err
	}

	// The TUI owns the terminal; log lines would tear the canvas. Point
	// them at the configured file, or drop them.
	if path := config.Get().Log.File; path != "" {
		if f, err := logger.FileOutput(path); err == nil {
			defer f.Close()
		} else {
			logger.SetOutput(io.Discard)
		}
	} else {
		logger.SetOutput(io.Discard)
	}

	return ui.Run(ctx, snap, canvasOptions(), ui.Deps{
		Applier:   configure.NewApplier(inv),
		Store:     openStore(),
		Enumerate: inv.Enumerate,
	})
}
