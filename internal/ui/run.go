package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bnema/wayrange/internal/arrange"
	"github.com/bnema/wayrange/internal/display"
)

// Run starts the arrange screen on the local terminal and blocks until the
// user quits. The alternate screen keeps the shell scrollback clean and
// all-motion mouse reporting makes drags track cell by cell.
func Run(ctx context.Context, snap *display.Snapshot, opts arrange.Options, deps Deps) error {
	p := tea.NewProgram(New(ctx, snap, opts, deps),
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	return err
}
