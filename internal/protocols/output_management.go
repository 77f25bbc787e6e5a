// Package protocols carries the wire bindings for the
// wlr-output-management protocol (zwlr_output_manager_v1, version 4): the
// manager that advertises heads, the heads and modes it describes, and the
// serial-stamped configuration objects used to change them atomically.
//
// These are plain proxies over wlturbo; all bookkeeping above the wire
// (mode lookup, head state, apply sequencing) belongs to the inventory
// backend.
package protocols

import (
	"github.com/bnema/wlturbo/wl"
)

// Protocol interface names as they appear in the registry.
const (
	OutputManagerInterface           = "zwlr_output_manager_v1"
	OutputHeadInterface              = "zwlr_output_head_v1"
	OutputModeInterface              = "zwlr_output_mode_v1"
	OutputConfigurationInterface     = "zwlr_output_configuration_v1"
	OutputConfigurationHeadInterface = "zwlr_output_configuration_head_v1"
)

// OutputManagerVersion is the highest protocol version these bindings
// understand. Version 2 added make/model/serial events, 3 head release,
// 4 adaptive sync.
const OutputManagerVersion = 4

// OutputManager is the zwlr_output_manager_v1 proxy. The compositor
// announces every head through it, then stamps each completed burst of
// state with done(serial); that serial is what a configuration must present
// to prove it was derived from current state.
type OutputManager struct {
	wl.BaseProxy
	headHandler     func(*OutputHead)
	doneHandler     func(serial uint32)
	finishedHandler func()
}

// NewOutputManager creates the manager proxy on a connection context.
func NewOutputManager(ctx *wl.Context) *OutputManager {
	m := &OutputManager{}
	m.SetContext(ctx)
	return m
}

// SetHeadHandler registers the callback for new head announcements.
func (m *OutputManager) SetHeadHandler(handler func(*OutputHead)) {
	m.headHandler = handler
}

// SetDoneHandler registers the callback for done(serial) events.
func (m *OutputManager) SetDoneHandler(handler func(uint32)) {
	m.doneHandler = handler
}

// SetFinishedHandler registers the callback for the manager's finished
// event, after which the compositor sends nothing more.
func (m *OutputManager) SetFinishedHandler(handler func()) {
	m.finishedHandler = handler
}

// CreateConfiguration starts a new atomic configuration against the given
// state serial. The compositor cancels the configuration if its state has
// moved past that serial.
func (m *OutputManager) CreateConfiguration(serial uint32) (*OutputConfiguration, error) {
	config := NewOutputConfiguration(m.Context())

	const opcode = 0 // create_configuration
	if err := m.Context().SendRequest(m, opcode, config, serial); err != nil {
		m.Context().Unregister(config)
		return nil, err
	}
	return config, nil
}

// Stop asks the compositor to stop sending events for this manager.
func (m *OutputManager) Stop() error {
	const opcode = 1 // stop
	return m.Context().SendRequest(m, opcode)
}

// Destroy drops the client-side proxy.
func (m *OutputManager) Destroy() error {
	m.Context().Unregister(m)
	return nil
}

// Dispatch handles manager events.
func (m *OutputManager) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // head
		head := NewOutputHead(m.Context())
		head.SetID(event.Uint32())
		m.Context().Register(head)
		if m.headHandler != nil {
			m.headHandler(head)
		}
	case 1: // done
		if m.doneHandler != nil {
			m.doneHandler(event.Uint32())
		}
	case 2: // finished
		if m.finishedHandler != nil {
			m.finishedHandler()
		}
		m.Context().Unregister(m)
	}
}

// OutputHead is one physical or virtual output the compositor knows about,
// enabled or not. Property events arrive in a burst closed by the manager's
// done event.
type OutputHead struct {
	wl.BaseProxy
	nameHandler         func(string)
	descriptionHandler  func(string)
	physicalSizeHandler func(widthMM, heightMM int32)
	modeHandler         func(*OutputMode)
	enabledHandler      func(int32)
	currentModeHandler  func(modeID uint32)
	positionHandler     func(x, y int32)
	transformHandler    func(int32)
	scaleHandler        func(wl.Fixed)
	makeHandler         func(string)
	modelHandler        func(string)
	serialNumberHandler func(string)
	adaptiveSyncHandler func(uint32)
	finishedHandler     func()
}

// NewOutputHead creates a head proxy; the manager dispatch assigns its id.
func NewOutputHead(ctx *wl.Context) *OutputHead {
	h := &OutputHead{}
	h.SetContext(ctx)
	return h
}

func (h *OutputHead) SetNameHandler(handler func(string)) { h.nameHandler = handler }

func (h *OutputHead) SetDescriptionHandler(handler func(string)) { h.descriptionHandler = handler }

func (h *OutputHead) SetPhysicalSizeHandler(handler func(int32, int32)) {
	h.physicalSizeHandler = handler
}

// SetModeHandler registers the callback for newly announced modes. The mode
// proxy is registered before the callback runs, so its id is final.
func (h *OutputHead) SetModeHandler(handler func(*OutputMode)) { h.modeHandler = handler }

func (h *OutputHead) SetEnabledHandler(handler func(int32)) { h.enabledHandler = handler }

// SetCurrentModeHandler registers the callback for current_mode events. The
// wire carries the object id of a mode announced earlier; the caller owns
// the id-to-mode map and resolves it there.
func (h *OutputHead) SetCurrentModeHandler(handler func(uint32)) { h.currentModeHandler = handler }

func (h *OutputHead) SetPositionHandler(handler func(int32, int32)) { h.positionHandler = handler }

func (h *OutputHead) SetTransformHandler(handler func(int32)) { h.transformHandler = handler }

func (h *OutputHead) SetScaleHandler(handler func(wl.Fixed)) { h.scaleHandler = handler }

func (h *OutputHead) SetMakeHandler(handler func(string)) { h.makeHandler = handler }

func (h *OutputHead) SetModelHandler(handler func(string)) { h.modelHandler = handler }

func (h *OutputHead) SetSerialNumberHandler(handler func(string)) { h.serialNumberHandler = handler }

func (h *OutputHead) SetAdaptiveSyncHandler(handler func(uint32)) { h.adaptiveSyncHandler = handler }

// SetFinishedHandler registers the callback for the head's finished event,
// sent when the output disappears. The proxy unregisters itself after.
func (h *OutputHead) SetFinishedHandler(handler func()) { h.finishedHandler = handler }

// Release tells the compositor the client no longer follows this head.
// Requires protocol version 3.
func (h *OutputHead) Release() error {
	const opcode = 0 // release
	err := h.Context().SendRequest(h, opcode)
	h.Context().Unregister(h)
	return err
}

// Destroy drops the client-side proxy without the release request.
func (h *OutputHead) Destroy() error {
	h.Context().Unregister(h)
	return nil
}

// Dispatch handles head property events.
func (h *OutputHead) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // name
		if h.nameHandler != nil {
			h.nameHandler(event.String())
		}
	case 1: // description
		if h.descriptionHandler != nil {
			h.descriptionHandler(event.String())
		}
	case 2: // physical_size
		if h.physicalSizeHandler != nil {
			w := event.Int32()
			hh := event.Int32()
			h.physicalSizeHandler(w, hh)
		}
	case 3: // mode
		proxy := event.NewID()
		mode := NewOutputMode(h.Context())
		mode.SetID(proxy.ID())
		h.Context().Register(mode)
		if h.modeHandler != nil {
			h.modeHandler(mode)
		}
	case 4: // enabled
		if h.enabledHandler != nil {
			h.enabledHandler(event.Int32())
		}
	case 5: // current_mode
		if h.currentModeHandler != nil {
			h.currentModeHandler(event.Uint32())
		}
	case 6: // position
		if h.positionHandler != nil {
			x := event.Int32()
			y := event.Int32()
			h.positionHandler(x, y)
		}
	case 7: // transform
		if h.transformHandler != nil {
			h.transformHandler(event.Int32())
		}
	case 8: // scale
		if h.scaleHandler != nil {
			h.scaleHandler(wl.Fixed(event.Int32()))
		}
	case 9: // finished
		if h.finishedHandler != nil {
			h.finishedHandler()
		}
		h.Context().Unregister(h)
	case 10: // make (since version 2)
		if h.makeHandler != nil {
			h.makeHandler(event.String())
		}
	case 11: // model (since version 2)
		if h.modelHandler != nil {
			h.modelHandler(event.String())
		}
	case 12: // serial_number (since version 2)
		if h.serialNumberHandler != nil {
			h.serialNumberHandler(event.String())
		}
	case 13: // adaptive_sync (since version 4)
		if h.adaptiveSyncHandler != nil {
			h.adaptiveSyncHandler(event.Uint32())
		}
	}
}

// OutputMode is one mode a head supports.
type OutputMode struct {
	wl.BaseProxy
	sizeHandler      func(width, height int32)
	refreshHandler   func(mHz int32)
	preferredHandler func()
	finishedHandler  func()
}

// NewOutputMode creates a mode proxy; the head dispatch assigns its id.
func NewOutputMode(ctx *wl.Context) *OutputMode {
	m := &OutputMode{}
	m.SetContext(ctx)
	return m
}

func (m *OutputMode) SetSizeHandler(handler func(int32, int32)) { m.sizeHandler = handler }

// SetRefreshHandler registers the callback for the refresh event, in
// millihertz.
func (m *OutputMode) SetRefreshHandler(handler func(int32)) { m.refreshHandler = handler }

func (m *OutputMode) SetPreferredHandler(handler func()) { m.preferredHandler = handler }

func (m *OutputMode) SetFinishedHandler(handler func()) { m.finishedHandler = handler }

// Release tells the compositor the client no longer needs this mode.
// Requires protocol version 3.
func (m *OutputMode) Release() error {
	const opcode = 0 // release
	err := m.Context().SendRequest(m, opcode)
	m.Context().Unregister(m)
	return err
}

// Destroy drops the client-side proxy without the release request.
func (m *OutputMode) Destroy() error {
	m.Context().Unregister(m)
	return nil
}

// Dispatch handles mode property events.
func (m *OutputMode) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // size
		if m.sizeHandler != nil {
			w := event.Int32()
			h := event.Int32()
			m.sizeHandler(w, h)
		}
	case 1: // refresh
		if m.refreshHandler != nil {
			m.refreshHandler(event.Int32())
		}
	case 2: // preferred
		if m.preferredHandler != nil {
			m.preferredHandler()
		}
	case 3: // finished
		if m.finishedHandler != nil {
			m.finishedHandler()
		}
		m.Context().Unregister(m)
	}
}

// OutputConfiguration is one atomic reconfiguration attempt. Stage every
// head with EnableHead/DisableHead, then Apply (or Test) and wait for
// exactly one of succeeded, failed or cancelled.
type OutputConfiguration struct {
	wl.BaseProxy
	succeededHandler func()
	failedHandler    func()
	cancelledHandler func()
}

// NewOutputConfiguration creates a configuration proxy.
func NewOutputConfiguration(ctx *wl.Context) *OutputConfiguration {
	c := &OutputConfiguration{}
	c.SetContext(ctx)
	return c
}

// SetSucceededHandler registers the callback for a committed configuration.
func (c *OutputConfiguration) SetSucceededHandler(handler func()) { c.succeededHandler = handler }

// SetFailedHandler registers the callback for a configuration the
// compositor could not or would not apply.
func (c *OutputConfiguration) SetFailedHandler(handler func()) { c.failedHandler = handler }

// SetCancelledHandler registers the callback for a configuration built
// against a serial the compositor has moved past.
func (c *OutputConfiguration) SetCancelledHandler(handler func()) { c.cancelledHandler = handler }

// EnableHead stages a head for enabling and returns the per-head
// configuration object for its mode, position, transform and scale.
func (c *OutputConfiguration) EnableHead(head *OutputHead) (*OutputConfigurationHead, error) {
	configHead := NewOutputConfigurationHead(c.Context())

	const opcode = 0 // enable_head
	if err := c.Context().SendRequest(c, opcode, configHead, head); err != nil {
		c.Context().Unregister(configHead)
		return nil, err
	}
	return configHead, nil
}

// DisableHead stages a head for disabling. A disabled head carries no mode
// and no position.
func (c *OutputConfiguration) DisableHead(head *OutputHead) error {
	const opcode = 1 // disable_head
	return c.Context().SendRequest(c, opcode, head)
}

// Apply asks the compositor to commit the staged configuration.
func (c *OutputConfiguration) Apply() error {
	const opcode = 2 // apply
	return c.Context().SendRequest(c, opcode)
}

// Test asks the compositor to validate the staged configuration without
// committing it.
func (c *OutputConfiguration) Test() error {
	const opcode = 3 // test
	return c.Context().SendRequest(c, opcode)
}

// Destroy releases the configuration object.
func (c *OutputConfiguration) Destroy() error {
	const opcode = 4 // destroy
	err := c.Context().SendRequest(c, opcode)
	c.Context().Unregister(c)
	return err
}

// Dispatch handles the configuration outcome events.
func (c *OutputConfiguration) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // succeeded
		if c.succeededHandler != nil {
			c.succeededHandler()
		}
	case 1: // failed
		if c.failedHandler != nil {
			c.failedHandler()
		}
	case 2: // cancelled
		if c.cancelledHandler != nil {
			c.cancelledHandler()
		}
	}
}

// OutputConfigurationHead stages the properties of one enabled head.
type OutputConfigurationHead struct {
	wl.BaseProxy
}

// NewOutputConfigurationHead creates the per-head staging proxy.
func NewOutputConfigurationHead(ctx *wl.Context) *OutputConfigurationHead {
	h := &OutputConfigurationHead{}
	h.SetContext(ctx)
	return h
}

// SetMode stages one of the head's advertised modes.
func (h *OutputConfigurationHead) SetMode(mode *OutputMode) error {
	const opcode = 0 // set_mode
	return h.Context().SendRequest(h, opcode, mode)
}

// SetCustomMode stages a mode the head did not advertise. refresh is in
// millihertz; 0 lets the compositor pick.
func (h *OutputConfigurationHead) SetCustomMode(width, height, refresh int32) error {
	const opcode = 1 // set_custom_mode
	return h.Context().SendRequest(h, opcode, width, height, refresh)
}

// SetPosition stages the head's position in the global compositor space.
func (h *OutputConfigurationHead) SetPosition(x, y int32) error {
	const opcode = 2 // set_position
	return h.Context().SendRequest(h, opcode, x, y)
}

// SetTransform stages the head's output transform.
func (h *OutputConfigurationHead) SetTransform(transform int32) error {
	const opcode = 3 // set_transform
	return h.Context().SendRequest(h, opcode, transform)
}

// SetScale stages the head's scale factor.
func (h *OutputConfigurationHead) SetScale(scale wl.Fixed) error {
	const opcode = 4 // set_scale
	return h.Context().SendRequest(h, opcode, scale)
}

// SetAdaptiveSync stages the head's adaptive sync state. Requires protocol
// version 4.
func (h *OutputConfigurationHead) SetAdaptiveSync(state uint32) error {
	const opcode = 5 // set_adaptive_sync
	return h.Context().SendRequest(h, opcode, state)
}

// Destroy drops the client-side proxy. The object has no destructor on the
// wire; the configuration's lifecycle covers it.
func (h *OutputConfigurationHead) Destroy() error {
	h.Context().Unregister(h)
	return nil
}
