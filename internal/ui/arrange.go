package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/wayrange/internal/arrange"
	"github.com/bnema/wayrange/internal/configure"
	"github.com/bnema/wayrange/internal/display"
	"github.com/bnema/wayrange/internal/profile"
)

// headerRows and footerRows frame the canvas: title above, status line,
// selection detail and help below.
const (
	headerRows = 2
	footerRows = 4
)

type uiState int

const (
	stateArrange uiState = iota
	stateSaving
	stateApplying
)

// keyMap binds the arrange actions. Mouse drag is always live alongside.
type keyMap struct {
	Next    key.Binding
	Prev    key.Binding
	Nudge   key.Binding
	Enable  key.Binding
	Primary key.Binding
	Mode    key.Binding
	Undo    key.Binding
	Apply   key.Binding
	Save    key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Next:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next display")),
		Prev:    key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev display")),
		Nudge:   key.NewBinding(key.WithKeys("up", "down", "left", "right"), key.WithHelp("arrows", "nudge")),
		Enable:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "toggle enable")),
		Primary: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "set primary")),
		Mode:    key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "cycle mode")),
		Undo:    key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "undo")),
		Apply:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "apply")),
		Save:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save profile")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "re-detect")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Nudge, k.Enable, k.Apply, k.Save, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Prev, k.Nudge, k.Undo},
		{k.Enable, k.Primary, k.Mode, k.Refresh},
		{k.Apply, k.Save, k.Help, k.Quit},
	}
}

// applyDoneMsg carries the applier's outcome back into the model. snap is
// the freshest snapshot the applier could obtain, success or not.
type applyDoneMsg struct {
	snap *display.Snapshot
	err  error
}

// refreshDoneMsg carries a re-enumeration result.
type refreshDoneMsg struct {
	snap *display.Snapshot
	err  error
}

// Deps are the collaborators the arrange screen drives. Enumerate and
// Apply run in tea commands off the update loop.
type Deps struct {
	Applier *configure.Applier
	Store   *profile.Store
	// Enumerate re-reads the session's output state.
	Enumerate func(ctx context.Context) (*display.Snapshot, error)
}

// Model is the arrange screen.
type Model struct {
	ctx  context.Context
	deps Deps
	opts arrange.Options

	session  arrange.Session
	history  []arrange.Session
	selected display.Handle
	dragging bool

	width, height int
	view          viewport

	state     uiState
	spin      spinner.Model
	nameInput textinput.Model
	help      help.Model
	keys      keyMap

	statusMsg string
	errMsg    string
}

// New builds the arrange screen over an already enumerated snapshot.
func New(ctx context.Context, snap *display.Snapshot, opts arrange.Options, deps Deps) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorSecondary)

	ti := textinput.New()
	ti.Placeholder = "profile name"
	ti.CharLimit = 64
	ti.Width = 32

	session := arrange.NewSession(snap, opts)
	m := Model{
		ctx:       ctx,
		deps:      deps,
		opts:      opts,
		session:   session,
		spin:      s,
		nameInput: ti,
		help:      help.New(),
		keys:      defaultKeyMap(),
	}
	if ds := session.Displays(); len(ds) > 0 {
		m.selected = ds[0].Handle
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.refit()
		return m, nil

	case spinner.TickMsg:
		if m.state != stateApplying {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case applyDoneMsg:
		m.state = stateArrange
		m.session = m.session.EndCommit(msg.snap)
		m.history = nil
		m.refit()
		m.reselect()
		if msg.err != nil {
			m.errMsg = DescribeError(msg.err)
		} else {
			m.statusMsg = "configuration applied and verified"
		}
		return m, nil

	case refreshDoneMsg:
		if msg.err != nil {
			m.errMsg = DescribeError(msg.err)
			return m, nil
		}
		m.session = arrange.NewSession(msg.snap, m.opts)
		m.history = nil
		m.refit()
		m.reselect()
		m.statusMsg = fmt.Sprintf("detected %d displays", len(msg.snap.Displays))
		return m, nil

	case tea.MouseMsg:
		return m.updateMouse(msg)

	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.state != stateArrange {
		return m, nil
	}
	p := m.view.pointAt(msg.X, msg.Y-headerRows)

	switch {
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		t, grab, ok := hitTile(m.session.Tiles(), m.view, msg.X, msg.Y-headerRows)
		if !ok {
			return m, nil
		}
		h := t.Display.Handle
		if next, ok := m.session.PointerDown(h, grab); ok {
			m.pushHistory()
			m.session = next
			m.selected = h
			m.dragging = true
			m.statusMsg = ""
			m.errMsg = ""
		}
		return m, nil

	case msg.Action == tea.MouseActionMotion && m.dragging:
		m.session = m.session.PointerMove(p)
		return m, nil

	case msg.Action == tea.MouseActionRelease && m.dragging:
		m.dragging = false
		next, placement, ok := m.session.PointerUp(p)
		if !ok {
			return m, nil
		}
		m.session = next
		m.statusMsg = describePlacement(m.session, placement)
		return m, nil
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state == stateSaving {
		return m.updateSaveKey(msg)
	}
	if m.state == stateApplying {
		// The commit's second phase cannot be interrupted.
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Next):
		m.cycleSelection(1)
		return m, nil

	case key.Matches(msg, m.keys.Prev):
		m.cycleSelection(-1)
		return m, nil

	case key.Matches(msg, m.keys.Nudge):
		m.nudge(msg.String())
		return m, nil

	case key.Matches(msg, m.keys.Enable):
		d, ok := m.session.Display(m.selected)
		if !ok {
			return m, nil
		}
		if next, ok := m.session.SetEnabled(m.selected, !d.Enabled); ok {
			m.pushHistory()
			m.session = next
			if d.Enabled {
				m.statusMsg = fmt.Sprintf("%s disabled", d.Name)
			} else {
				m.statusMsg = fmt.Sprintf("%s enabled", d.Name)
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Primary):
		if next, ok := m.session.SetPrimary(m.selected); ok {
			m.pushHistory()
			m.session = next
			if d, ok := m.session.Display(m.selected); ok {
				m.statusMsg = fmt.Sprintf("%s is now primary", d.Name)
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Mode):
		m.cycleMode()
		return m, nil

	case key.Matches(msg, m.keys.Undo):
		if n := len(m.history); n > 0 {
			m.session = m.history[n-1]
			m.history = m.history[:n-1]
			m.statusMsg = "undone"
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()

	case key.Matches(msg, m.keys.Save):
		m.state = stateSaving
		m.nameInput.SetValue("")
		m.errMsg = ""
		return m, m.nameInput.Focus()

	case key.Matches(msg, m.keys.Apply):
		return m.beginApply()
	}
	return m, nil
}

func (m Model) updateSaveKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.state = stateArrange
		m.nameInput.Blur()
		return m, nil
	case "enter":
		name := strings.TrimSpace(m.nameInput.Value())
		m.state = stateArrange
		m.nameInput.Blur()
		if err := m.saveProfile(name); err != nil {
			m.errMsg = err.Error()
		} else {
			m.statusMsg = fmt.Sprintf("saved profile %s", name)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

func (m *Model) saveProfile(name string) error {
	if m.deps.Store == nil {
		return fmt.Errorf("no profile store configured")
	}
	if err := profile.ValidateName(name); err != nil {
		return err
	}
	snap := &display.Snapshot{
		Serial:   m.session.Serial(),
		Taken:    time.Now(),
		Displays: m.session.Displays(),
	}
	return m.deps.Store.Save(profile.FromSnapshot(name, snap))
}

func (m Model) beginApply() (tea.Model, tea.Cmd) {
	next, pending, ok := m.session.BeginCommit()
	if !ok {
		m.errMsg = "finish the drag before applying"
		return m, nil
	}
	if err := configure.Validate(pending.Displays); err != nil {
		m.errMsg = DescribeError(err)
		return m, nil
	}
	m.session = next
	m.state = stateApplying
	m.statusMsg = ""
	m.errMsg = ""
	return m, tea.Batch(m.spin.Tick, m.applyCmd(pending))
}

func (m Model) applyCmd(pending display.Pending) tea.Cmd {
	return func() tea.Msg {
		snap, err := m.deps.Applier.Apply(m.ctx, pending)
		if snap == nil && m.deps.Enumerate != nil {
			if fresh, enumErr := m.deps.Enumerate(m.ctx); enumErr == nil {
				snap = fresh
			}
		}
		return applyDoneMsg{snap: snap, err: err}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.deps.Enumerate(m.ctx)
		return refreshDoneMsg{snap: snap, err: err}
	}
}

// nudge moves the selected display by one grid cell through the same
// pointer path a mouse drag takes, so snapping and collision resolution
// apply identically.
func (m *Model) nudge(dir string) {
	grid := m.opts.GridSize
	if grid <= 0 {
		grid = arrange.DefaultOptions().GridSize
	}
	var dx, dy float64
	switch dir {
	case "left":
		dx = -grid
	case "right":
		dx = grid
	case "up":
		dy = -grid
	case "down":
		dy = grid
	default:
		return
	}

	var center arrange.Point
	found := false
	for _, t := range m.session.Tiles() {
		if t.Display.Handle == m.selected {
			center = arrange.Point{X: t.Box.X + t.Box.W/2, Y: t.Box.Y + t.Box.H/2}
			found = true
			break
		}
	}
	if !found {
		return
	}

	m.pushHistory()
	next, ok := m.session.PointerDown(m.selected, center)
	if !ok {
		m.history = m.history[:len(m.history)-1]
		return
	}
	next = next.PointerMove(arrange.Point{X: center.X + dx, Y: center.Y + dy})
	next, placement, _ := next.PointerUp(arrange.Point{X: center.X + dx, Y: center.Y + dy})
	m.session = next
	m.statusMsg = describePlacement(m.session, placement)
}

func (m *Model) cycleMode() {
	d, ok := m.session.Display(m.selected)
	if !ok || !d.Enabled || len(d.Modes) == 0 {
		return
	}
	idx := 0
	for i, mode := range d.Modes {
		if mode.SameResolution(d.Mode) && mode.RefreshMHz == d.Mode.RefreshMHz {
			idx = (i + 1) % len(d.Modes)
			break
		}
	}
	if next, ok := m.session.SetMode(m.selected, d.Modes[idx]); ok {
		m.pushHistory()
		m.session = next
		m.statusMsg = fmt.Sprintf("%s mode %s", d.Name, d.Modes[idx])
	}
}

func (m *Model) cycleSelection(step int) {
	ds := m.session.Displays()
	if len(ds) == 0 {
		return
	}
	cur := 0
	for i := range ds {
		if ds[i].Handle == m.selected {
			cur = i
			break
		}
	}
	next := (cur + step + len(ds)) % len(ds)
	m.selected = ds[next].Handle
}

func (m *Model) pushHistory() {
	m.history = append(m.history, m.session)
	if len(m.history) > 64 {
		m.history = m.history[1:]
	}
}

func (m *Model) refit() {
	rows := m.height - headerRows - footerRows
	m.view = fitViewport(m.session.CanvasBounds(), m.width, rows)
}

// reselect keeps the selection on a real handle after the session was
// rebuilt from a fresh snapshot.
func (m *Model) reselect() {
	if _, ok := m.session.Display(m.selected); ok {
		return
	}
	if ds := m.session.Displays(); len(ds) > 0 {
		m.selected = ds[0].Handle
	} else {
		m.selected = 0
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("wayrange"))
	b.WriteString(StatusStyle.Render("  drag displays, then apply"))
	b.WriteString("\n\n")

	b.WriteString(renderCanvas(m.session.Tiles(), m.view, m.selected))
	b.WriteString("\n")

	switch {
	case m.state == stateApplying:
		b.WriteString(m.spin.View())
		b.WriteString(StatusStyle.Render(" applying configuration..."))
	case m.state == stateSaving:
		b.WriteString(PromptStyle.Render("save as: "))
		b.WriteString(m.nameInput.View())
	case m.errMsg != "":
		b.WriteString(ErrorStyle.Render(m.errMsg))
	case m.statusMsg != "":
		b.WriteString(SuccessStyle.Render(m.statusMsg))
	}
	b.WriteString("\n")

	if d, ok := m.session.Display(m.selected); ok {
		b.WriteString(StatusStyle.Render(describeDisplay(&d)))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func describeDisplay(d *display.DisplayInfo) string {
	state := "off"
	if d.Enabled {
		state = fmt.Sprintf("%s at %s scale %.2f", d.Mode, d.Position, d.Scale)
	}
	label := d.Name
	if d.Description != "" {
		label = fmt.Sprintf("%s (%s)", d.Name, d.Description)
	}
	if d.Primary {
		label += " ★"
	}
	return fmt.Sprintf("%s: %s", label, state)
}

func describePlacement(s arrange.Session, p arrange.Placement) string {
	d, ok := s.Display(p.Handle)
	if !ok {
		return ""
	}
	switch {
	case p.Reverted:
		return fmt.Sprintf("%s: no room, returned to its previous position", d.Name)
	case p.Moved:
		return fmt.Sprintf("%s moved to the nearest free spot at %s", d.Name, p.Position)
	case p.EdgeX || p.EdgeY:
		return fmt.Sprintf("%s snapped edge-to-edge at %s", d.Name, p.Position)
	default:
		return fmt.Sprintf("%s placed at %s", d.Name, p.Position)
	}
}

// DescribeError renders the apply taxonomy for the status line: validation
// problems and verification deviations get itemized, everything else its
// message.
func DescribeError(err error) string {
	var vErr *configure.ValidationError
	if errors.As(err, &vErr) {
		return "invalid layout: " + strings.Join(vErr.Problems, "; ")
	}
	var verifyErr *configure.VerifyError
	if errors.As(err, &verifyErr) {
		parts := make([]string, len(verifyErr.Deviations))
		for i, d := range verifyErr.Deviations {
			parts[i] = d.String()
		}
		return "applied but the compositor reports a different state: " + strings.Join(parts, "; ")
	}
	var staleErr *configure.StaleSnapshotError
	if errors.As(err, &staleErr) {
		return "outputs changed since this layout was built; press r to re-detect"
	}
	var unmatched *profile.UnmatchedError
	if errors.As(err, &unmatched) {
		return unmatched.Error()
	}
	return err.Error()
}
