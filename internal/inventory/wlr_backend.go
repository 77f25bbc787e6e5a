package inventory

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bnema/wayrange/internal/display"
	"github.com/bnema/wayrange/internal/logger"
	"github.com/bnema/wayrange/internal/protocols"
	"github.com/bnema/wayrange/internal/wayland"
	"github.com/bnema/wlturbo/wl"
)

const (
	// wlrInitTimeout bounds the wait for the first done event after
	// binding the manager.
	wlrInitTimeout = 5 * time.Second

	// wlrApplyTimeout bounds the wait for a configuration outcome. Some
	// compositors block the outcome on a user prompt, so this is generous.
	wlrApplyTimeout = 10 * time.Second

	// wlrRefreshWait bounds the wait for the state burst that follows a
	// successful apply. A no-op apply may not produce one.
	wlrRefreshWait = time.Second
)

// wlrBackend speaks zwlr_output_manager_v1 directly. The compositor
// streams head state continuously; Enumerate reads the accumulated state
// and Apply stages a serial-checked atomic configuration.
type wlrBackend struct {
	client  *wayland.Client
	manager *protocols.OutputManager

	mu        sync.Mutex
	heads     map[uint32]*headState
	order     []uint32
	serial    uint32
	hasSerial bool
	watchFn   func()
	watchCtx  context.Context

	initCh chan struct{}
	doneCh chan uint32
}

// headState accumulates the property events for one head between done
// events.
type headState struct {
	proxy *protocols.OutputHead

	name         string
	description  string
	make         string
	model        string
	serialNumber string
	enabled      bool
	position     display.Position
	transform    int32
	scale        float64
	mmWidth      int32
	mmHeight     int32

	modes         []*modeState
	currentModeID uint32
}

type modeState struct {
	proxy *protocols.OutputMode

	width      int32
	height     int32
	refreshMHz int32
	preferred  bool
}

func (hs *headState) currentMode() *modeState {
	if hs.currentModeID == 0 {
		return nil
	}
	for _, ms := range hs.modes {
		if uint32(ms.proxy.ID()) == hs.currentModeID {
			return ms
		}
	}
	return nil
}

func (hs *headState) modeFor(m display.Mode) *modeState {
	for _, ms := range hs.modes {
		if ms.width == m.Width && ms.height == m.Height && ms.refreshMHz == m.RefreshMHz {
			return ms
		}
	}
	return nil
}

func (hs *headState) removeMode(target *modeState) {
	for i, ms := range hs.modes {
		if ms == target {
			hs.modes = append(hs.modes[:i], hs.modes[i+1:]...)
			return
		}
	}
}

// newWlrBackend connects to the compositor, binds the output manager and
// waits for the initial state burst.
func newWlrBackend(ctx context.Context, _ Options) (Backend, error) {
	client, err := wayland.Connect()
	if err != nil {
		return nil, err
	}

	if !client.HasOutputManager() {
		_ = client.Close()
		return nil, fmt.Errorf("compositor does not advertise %s", protocols.OutputManagerInterface)
	}

	b := &wlrBackend{
		client: client,
		heads:  make(map[uint32]*headState),
		initCh: make(chan struct{}, 1),
		doneCh: make(chan uint32, 1),
	}

	manager, err := client.BindOutputManager()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	b.manager = manager

	manager.SetHeadHandler(b.handleHead)
	manager.SetDoneHandler(b.handleDone)
	manager.SetFinishedHandler(b.handleFinished)

	go b.dispatchLoop()

	// Roundtrip errors during startup are surfaced as the init timeout.
	_ = client.Roundtrip()

	select {
	case <-b.initCh:
	case <-time.After(wlrInitTimeout):
		_ = b.Close()
		return nil, fmt.Errorf("timeout waiting for initial output state")
	case <-ctx.Done():
		_ = b.Close()
		return nil, ctx.Err()
	}

	return b, nil
}

func (b *wlrBackend) Name() string { return "wlr" }

func (b *wlrBackend) dispatchLoop() {
	for {
		if err := b.client.Dispatch(); err != nil {
			logger.Debugf("Wayland dispatch stopped: %v", err)
			return
		}
	}
}

func (b *wlrBackend) handleHead(head *protocols.OutputHead) {
	hs := &headState{proxy: head, scale: 1.0}
	id := uint32(head.ID())

	head.SetNameHandler(func(name string) {
		b.mu.Lock()
		hs.name = name
		b.mu.Unlock()
	})
	head.SetDescriptionHandler(func(description string) {
		b.mu.Lock()
		hs.description = description
		b.mu.Unlock()
	})
	head.SetPhysicalSizeHandler(func(w, h int32) {
		b.mu.Lock()
		hs.mmWidth, hs.mmHeight = w, h
		b.mu.Unlock()
	})
	head.SetMakeHandler(func(makeStr string) {
		b.mu.Lock()
		hs.make = makeStr
		b.mu.Unlock()
	})
	head.SetModelHandler(func(model string) {
		b.mu.Lock()
		hs.model = model
		b.mu.Unlock()
	})
	head.SetSerialNumberHandler(func(serial string) {
		b.mu.Lock()
		hs.serialNumber = serial
		b.mu.Unlock()
	})
	head.SetEnabledHandler(func(enabled int32) {
		b.mu.Lock()
		hs.enabled = enabled != 0
		if !hs.enabled {
			hs.currentModeID = 0
		}
		b.mu.Unlock()
	})
	head.SetPositionHandler(func(x, y int32) {
		b.mu.Lock()
		hs.position = display.Position{X: x, Y: y}
		b.mu.Unlock()
	})
	head.SetTransformHandler(func(transform int32) {
		b.mu.Lock()
		hs.transform = transform
		b.mu.Unlock()
	})
	head.SetScaleHandler(func(scale wl.Fixed) {
		b.mu.Lock()
		hs.scale = float64(scale) / 256.0
		if hs.scale == 0 {
			hs.scale = 1.0
		}
		b.mu.Unlock()
	})
	head.SetModeHandler(func(mode *protocols.OutputMode) {
		ms := &modeState{proxy: mode}
		mode.SetSizeHandler(func(w, h int32) {
			b.mu.Lock()
			ms.width, ms.height = w, h
			b.mu.Unlock()
		})
		mode.SetRefreshHandler(func(mhz int32) {
			b.mu.Lock()
			ms.refreshMHz = mhz
			b.mu.Unlock()
		})
		mode.SetPreferredHandler(func() {
			b.mu.Lock()
			ms.preferred = true
			b.mu.Unlock()
		})
		mode.SetFinishedHandler(func() {
			b.mu.Lock()
			hs.removeMode(ms)
			b.mu.Unlock()
		})
		b.mu.Lock()
		hs.modes = append(hs.modes, ms)
		b.mu.Unlock()
	})
	head.SetCurrentModeHandler(func(modeID uint32) {
		b.mu.Lock()
		hs.currentModeID = modeID
		b.mu.Unlock()
	})
	head.SetFinishedHandler(func() {
		b.mu.Lock()
		delete(b.heads, id)
		for i, o := range b.order {
			if o == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
	})

	b.mu.Lock()
	b.heads[id] = hs
	b.order = append(b.order, id)
	b.mu.Unlock()
}

func (b *wlrBackend) handleDone(serial uint32) {
	b.mu.Lock()
	first := !b.hasSerial
	b.serial = serial
	b.hasSerial = true
	watchFn := b.watchFn
	watchCtx := b.watchCtx
	b.mu.Unlock()

	if first {
		select {
		case b.initCh <- struct{}{}:
		default:
		}
	}
	select {
	case b.doneCh <- serial:
	default:
	}

	if !first && watchFn != nil && watchCtx.Err() == nil {
		go watchFn()
	}
}

func (b *wlrBackend) handleFinished() {
	logger.Debug("Output manager finished, compositor stopped sending output state")
}

func (b *wlrBackend) Enumerate(ctx context.Context) (*display.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasSerial {
		return nil, fmt.Errorf("no output state received from compositor")
	}

	displays := make([]display.DisplayInfo, 0, len(b.order))
	for _, id := range b.order {
		hs := b.heads[id]
		if hs == nil {
			continue
		}

		info := display.DisplayInfo{
			Handle:      display.Handle(id),
			Name:        hs.name,
			Description: hs.description,
			Make:        hs.make,
			Model:       hs.model,
			Serial:      hs.serialNumber,
			Enabled:     hs.enabled,
			Transform:   hs.transform,
			Scale:       hs.scale,
			MmWidth:     hs.mmWidth,
			MmHeight:    hs.mmHeight,
		}
		for _, ms := range hs.modes {
			info.Modes = append(info.Modes, display.Mode{
				Width:      ms.width,
				Height:     ms.height,
				RefreshMHz: ms.refreshMHz,
				Preferred:  ms.preferred,
			})
		}
		if hs.enabled {
			info.Position = hs.position
			if cur := hs.currentMode(); cur != nil {
				info.Mode = display.Mode{
					Width:      cur.width,
					Height:     cur.height,
					RefreshMHz: cur.refreshMHz,
					Preferred:  cur.preferred,
				}
			}
		}
		displays = append(displays, info)
	}

	return &display.Snapshot{
		Serial:   uint64(b.serial),
		Taken:    time.Now(),
		Displays: displays,
	}, nil
}

// Apply stages every head into one configuration and commits it. The
// compositor checks the serial: state that moved on since the snapshot
// cancels the whole configuration.
func (b *wlrBackend) Apply(ctx context.Context, serial uint64, configs []display.DeviceConfig) error {
	type staged struct {
		hs   *headState
		cfg  display.DeviceConfig
		mode *modeState
	}

	b.mu.Lock()
	plan := make([]staged, 0, len(configs))
	covered := make(map[uint32]bool, len(configs))
	for _, cfg := range configs {
		hs := b.heads[uint32(cfg.Handle)]
		if hs == nil {
			b.mu.Unlock()
			return fmt.Errorf("%w: head %d (%s) is gone", ErrOutdated, cfg.Handle, cfg.Name)
		}
		covered[uint32(cfg.Handle)] = true

		st := staged{hs: hs, cfg: cfg}
		if cfg.Enable {
			st.mode = hs.modeFor(cfg.Mode)
		}
		plan = append(plan, st)
	}
	// The protocol requires a configuration to cover every head the
	// client knows about. A head this snapshot never saw means the state
	// moved on underneath us.
	for id, hs := range b.heads {
		if !covered[id] {
			b.mu.Unlock()
			return fmt.Errorf("%w: head %d (%s) appeared after the snapshot", ErrOutdated, id, hs.name)
		}
	}
	b.mu.Unlock()

	config, err := b.manager.CreateConfiguration(uint32(serial))
	if err != nil {
		return fmt.Errorf("failed to create configuration: %w", err)
	}
	// Every exit releases the configuration, staging failures included.
	defer func() { _ = config.Destroy() }()

	outcome := make(chan error, 1)
	config.SetSucceededHandler(func() { outcome <- nil })
	config.SetFailedHandler(func() { outcome <- ErrRejected })
	config.SetCancelledHandler(func() { outcome <- ErrOutdated })

	for _, st := range plan {
		if !st.cfg.Enable {
			if err := config.DisableHead(st.hs.proxy); err != nil {
				return fmt.Errorf("failed to stage disable for %s: %w", st.cfg.Name, err)
			}
			continue
		}

		configHead, err := config.EnableHead(st.hs.proxy)
		if err != nil {
			return fmt.Errorf("failed to stage enable for %s: %w", st.cfg.Name, err)
		}
		if st.mode != nil {
			err = configHead.SetMode(st.mode.proxy)
		} else {
			err = configHead.SetCustomMode(st.cfg.Mode.Width, st.cfg.Mode.Height, st.cfg.Mode.RefreshMHz)
		}
		if err != nil {
			return fmt.Errorf("failed to stage mode for %s: %w", st.cfg.Name, err)
		}
		if err := configHead.SetPosition(st.cfg.Position.X, st.cfg.Position.Y); err != nil {
			return fmt.Errorf("failed to stage position for %s: %w", st.cfg.Name, err)
		}
		if st.cfg.Scale > 0 {
			fixed := wl.Fixed(int32(math.Round(st.cfg.Scale * 256)))
			if err := configHead.SetScale(fixed); err != nil {
				return fmt.Errorf("failed to stage scale for %s: %w", st.cfg.Name, err)
			}
		}
	}

	// Drain any done signal queued before the apply so the post-apply
	// refresh wait below observes the burst this apply causes.
	select {
	case <-b.doneCh:
	default:
	}

	if err := config.Apply(); err != nil {
		return fmt.Errorf("failed to send apply: %w", err)
	}

	var applyErr error
	select {
	case applyErr = <-outcome:
	case <-time.After(wlrApplyTimeout):
		applyErr = fmt.Errorf("timeout waiting for configuration outcome")
	case <-ctx.Done():
		applyErr = ctx.Err()
	}

	if applyErr != nil {
		return applyErr
	}

	// Wait briefly for the state burst the compositor sends after a
	// successful apply, so the caller's re-query sees the new state.
	select {
	case <-b.doneCh:
	case <-time.After(wlrRefreshWait):
	case <-ctx.Done():
	}
	return nil
}

func (b *wlrBackend) Watch(ctx context.Context, fn func()) error {
	b.mu.Lock()
	b.watchFn = fn
	b.watchCtx = ctx
	b.mu.Unlock()
	return nil
}

func (b *wlrBackend) Close() error {
	if b.manager != nil {
		_ = b.manager.Stop()
		_ = b.manager.Destroy()
	}
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
