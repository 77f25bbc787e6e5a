// Package wayland manages the compositor connection: connecting to the
// display, tracking registry globals, and binding the output management
// protocol when the compositor advertises it.
package wayland

import (
	"fmt"
	"sync"

	"github.com/bnema/wayrange/internal/logger"
	"github.com/bnema/wayrange/internal/protocols"
	"github.com/bnema/wlturbo/wl"
)

// Global is one interface the compositor advertises through the registry.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// Client is a Wayland connection with registry bookkeeping. It implements
// wl.RegistryGlobalHandler and wl.RegistryGlobalRemoveHandler.
type Client struct {
	display  *wl.Display
	registry *wl.Registry
	context  *wl.Context

	mu      sync.Mutex
	globals map[uint32]Global
}

// Connect dials the compositor named by WAYLAND_DISPLAY and performs the
// initial roundtrip so every advertised global is known on return.
func Connect() (*Client, error) {
	display, err := wl.Connect("")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Wayland: %w", err)
	}

	c := &Client{
		display: display,
		context: display.Context(),
		globals: make(map[uint32]Global),
	}

	registry := display.GetRegistry()
	c.registry = registry

	// Listeners must be in place before the roundtrip that announces globals.
	registry.AddGlobalHandler(c)
	registry.AddGlobalRemoveHandler(c)

	if err := display.Roundtrip(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to get initial globals: %w", err)
	}

	return c, nil
}

// HandleRegistryGlobal implements wl.RegistryGlobalHandler.
func (c *Client) HandleRegistryGlobal(event wl.RegistryGlobalEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.globals[event.Name] = Global{
		Name:      event.Name,
		Interface: event.Interface,
		Version:   event.Version,
	}
}

// HandleRegistryGlobalRemove implements wl.RegistryGlobalRemoveHandler.
func (c *Client) HandleRegistryGlobalRemove(event wl.RegistryGlobalRemoveEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.globals, event.Name)
}

// FindGlobal returns the registry entry for an interface name.
func (c *Client) FindGlobal(iface string) (Global, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, g := range c.globals {
		if g.Interface == iface {
			return g, true
		}
	}
	return Global{}, false
}

// HasOutputManager reports whether the compositor advertises
// zwlr_output_manager_v1.
func (c *Client) HasOutputManager() bool {
	_, ok := c.FindGlobal(protocols.OutputManagerInterface)
	return ok
}

// BindOutputManager binds the output manager global at the highest version
// both sides understand.
func (c *Client) BindOutputManager() (*protocols.OutputManager, error) {
	g, ok := c.FindGlobal(protocols.OutputManagerInterface)
	if !ok {
		return nil, fmt.Errorf("%s not advertised: compositor does not support wlr-output-management", protocols.OutputManagerInterface)
	}

	version := min(g.Version, protocols.OutputManagerVersion)
	logger.Debugf("Binding %s v%d (name=%d)", g.Interface, version, g.Name)

	manager := protocols.NewOutputManager(c.context)
	if err := c.registry.Bind(g.Name, g.Interface, version, manager); err != nil {
		return nil, fmt.Errorf("failed to bind output manager: %w", err)
	}
	return manager, nil
}

// Display returns the underlying Wayland display.
func (c *Client) Display() *wl.Display {
	return c.display
}

// Context returns the connection context proxies are registered on.
func (c *Client) Context() *wl.Context {
	return c.context
}

// Roundtrip flushes pending requests and waits until the compositor has
// processed them all.
func (c *Client) Roundtrip() error {
	return c.display.Roundtrip()
}

// Dispatch blocks until at least one event arrives and dispatches it.
func (c *Client) Dispatch() error {
	return c.display.Dispatch()
}

// Close shuts the connection down. Proxies bound on it become invalid.
func (c *Client) Close() error {
	if c.context != nil {
		return c.context.Close()
	}
	return nil
}
