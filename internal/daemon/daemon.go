// Package daemon runs the hotplug watch loop: when the compositor reports
// an output change it re-reads the session state, matches saved profiles
// against the connected hardware and applies the winner. A control socket
// answers status, reapply, switch and stop requests while it runs.
package daemon

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bnema/wayrange/internal/configure"
	"github.com/bnema/wayrange/internal/display"
	"github.com/bnema/wayrange/internal/inventory"
	"github.com/bnema/wayrange/internal/ipc"
	"github.com/bnema/wayrange/internal/logger"
	"github.com/bnema/wayrange/internal/profile"
)

// defaultDebounce is the quiet window after a change burst. Dock stations
// and cable replugs produce several events in quick succession; only the
// settled state matters.
const defaultDebounce = 800 * time.Millisecond

// Options tune the daemon.
type Options struct {
	// Debounce overrides the quiet window after a change burst.
	Debounce time.Duration

	// AutoApply applies a uniquely matching profile without being asked.
	AutoApply bool
}

// Daemon owns the watch loop and answers control requests.
type Daemon struct {
	inv     *inventory.Inventory
	applier *configure.Applier
	store   *profile.Store
	opts    Options

	changed chan struct{}

	// opMu serializes the apply paths: the watch loop, reapply and switch.
	opMu sync.Mutex

	mu        sync.Mutex
	runCtx    context.Context
	cancel    context.CancelFunc
	active    string
	lastApply *ipc.ApplyReport
}

// New builds a daemon over an inventory and a profile store.
func New(inv *inventory.Inventory, store *profile.Store, opts Options) *Daemon {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	return &Daemon{
		inv:     inv,
		applier: configure.NewApplier(inv),
		store:   store,
		opts:    opts,
		changed: make(chan struct{}, 1),
	}
}

// Run watches for output changes until ctx is cancelled or a stop request
// arrives. The first evaluation happens immediately, so a freshly started
// daemon fixes a mismatched layout without waiting for a hotplug.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	d.runCtx = ctx
	d.cancel = cancel
	d.mu.Unlock()

	if err := d.inv.Watch(ctx, d.notify); err != nil {
		return fmt.Errorf("failed to watch for output changes: %w", err)
	}

	d.evaluate(ctx)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			logger.Info("Watch daemon shutting down")
			return nil
		case <-d.changed:
			logger.Debug("Output state changed; debouncing")
			debounce = time.After(d.opts.Debounce)
		case <-debounce:
			debounce = nil
			d.evaluate(ctx)
		}
	}
}

// notify is the backend's change callback. It never blocks; a pending
// notification already covers any number of changes.
func (d *Daemon) notify() {
	select {
	case d.changed <- struct{}{}:
	default:
	}
}

// evaluate re-enumerates and applies the uniquely matching profile, if
// auto apply allows. Failures are logged, never retried; the next change
// event evaluates again from scratch.
func (d *Daemon) evaluate(ctx context.Context) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	snap, err := d.inv.Enumerate(ctx)
	if err != nil {
		logger.Errorf("Re-enumeration failed: %v", err)
		return
	}

	candidates, err := d.fullMatches(snap)
	if err != nil {
		logger.Errorf("Failed to load profiles: %v", err)
		return
	}

	switch len(candidates) {
	case 0:
		logger.Debug("No profile matches the connected displays")
		return
	case 1:
	default:
		logger.Infof("%d profiles match the connected displays (%s); not applying",
			len(candidates), profileNames(candidates))
		return
	}

	p := candidates[0]
	pending, _, err := profile.Resolve(p, snap)
	if err != nil {
		logger.Warnf("Profile %s stopped matching during resolve: %v", p.Name, err)
		return
	}

	if configure.InEffect(pending, snap) {
		d.mu.Lock()
		d.active = p.Name
		d.mu.Unlock()
		logger.Debugf("Profile %s is already in effect", p.Name)
		return
	}

	if !d.opts.AutoApply {
		logger.Infof("Profile %s matches the connected displays; auto apply is off", p.Name)
		return
	}

	logger.Infof("Applying profile %s", p.Name)
	if err := d.applyLocked(ctx, p.Name, pending); err != nil {
		logger.Errorf("Apply of profile %s failed: %v", p.Name, err)
	}
}

// fullMatches returns the stored profiles whose every entry matches a
// connected display at identity confidence with no enabled display left
// over.
func (d *Daemon) fullMatches(snap *display.Snapshot) ([]*profile.Profile, error) {
	profiles, err := d.store.LoadAll()
	if err != nil {
		return nil, err
	}

	var candidates []*profile.Profile
	for _, p := range profiles {
		if profile.Match(p, snap).FullIdentity() {
			candidates = append(candidates, p)
		}
	}
	return candidates, nil
}

// applyLocked runs one apply and records the outcome. Callers hold opMu.
func (d *Daemon) applyLocked(ctx context.Context, name string, pending display.Pending) error {
	_, err := d.applier.Apply(ctx, pending)

	report := &ipc.ApplyReport{Profile: name, When: time.Now(), OK: err == nil}
	if err != nil {
		report.Error = err.Error()
	}

	d.mu.Lock()
	d.lastApply = report
	if err == nil {
		d.active = name
	}
	d.mu.Unlock()
	return err
}

// Status implements ipc.Handler.
func (d *Daemon) Status() (*ipc.Status, error) {
	snap := d.inv.Latest()

	d.mu.Lock()
	defer d.mu.Unlock()
	return &ipc.Status{
		ActiveProfile: d.active,
		AutoApply:     d.opts.AutoApply,
		LastApply:     d.lastApply,
		Outputs:       ipc.Summarize(snap),
	}, nil
}

// Reapply implements ipc.Handler: re-run profile selection and apply the
// winner even when the layout already looks right.
func (d *Daemon) Reapply() (*ipc.Status, error) {
	ctx := d.runContext()

	d.opMu.Lock()
	err := d.reapplyLocked(ctx)
	d.opMu.Unlock()
	if err != nil {
		return nil, err
	}
	return d.Status()
}

func (d *Daemon) reapplyLocked(ctx context.Context) error {
	snap, err := d.inv.Enumerate(ctx)
	if err != nil {
		return err
	}

	candidates, err := d.fullMatches(snap)
	if err != nil {
		return err
	}
	switch len(candidates) {
	case 0:
		return fmt.Errorf("no profile matches the connected displays")
	case 1:
	default:
		return fmt.Errorf("%d profiles match the connected displays (%s); switch to one by name",
			len(candidates), profileNames(candidates))
	}

	pending, _, err := profile.Resolve(candidates[0], snap)
	if err != nil {
		return err
	}
	return d.applyLocked(ctx, candidates[0].Name, pending)
}

// Switch implements ipc.Handler: apply a named profile. Unlike auto apply
// this fails loudly when saved displays are missing.
func (d *Daemon) Switch(name string) (*ipc.Status, error) {
	ctx := d.runContext()

	d.opMu.Lock()
	err := d.switchLocked(ctx, name)
	d.opMu.Unlock()
	if err != nil {
		return nil, err
	}
	return d.Status()
}

func (d *Daemon) switchLocked(ctx context.Context, name string) error {
	p, err := d.store.Load(name)
	if err != nil {
		return err
	}

	snap, err := d.inv.Enumerate(ctx)
	if err != nil {
		return err
	}

	pending, _, err := profile.Resolve(p, snap)
	if err != nil {
		return err
	}
	return d.applyLocked(ctx, p.Name, pending)
}

// Stop implements ipc.Handler: signal the run loop and return, so the
// response still reaches the client.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()

	if cancel == nil {
		return fmt.Errorf("daemon is not running")
	}
	cancel()
	return nil
}

func (d *Daemon) runContext() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runCtx != nil {
		return d.runCtx
	}
	return context.Background()
}

func profileNames(profiles []*profile.Profile) string {
	names := make([]string, len(profiles))
	for i, p := range profiles {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}
