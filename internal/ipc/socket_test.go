package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// mockHandler implements Handler for testing
type mockHandler struct {
	status        *Status
	statusErr     error
	reapplyCalled bool
	switchProfile string
	stopCalled    bool
	stopErr       error
}

func (m *mockHandler) Status() (*Status, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	if m.status != nil {
		return m.status, nil
	}
	return &Status{AutoApply: true}, nil
}

func (m *mockHandler) Reapply() (*Status, error) {
	m.reapplyCalled = true
	return m.Status()
}

func (m *mockHandler) Switch(profile string) (*Status, error) {
	m.switchProfile = profile
	return m.Status()
}

func (m *mockHandler) Stop() error {
	m.stopCalled = true
	return m.stopErr
}

// testServer starts a server on a private socket and returns it with a
// client pointed at the same path.
func testServer(t *testing.T, handler Handler) (*SocketServer, *Client) {
	t.Helper()

	server := NewSocketServer(handler)
	server.socketPath = filepath.Join(t.TempDir(), "test.sock")

	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(server.Stop)

	client := &Client{socketPath: server.socketPath, timeout: 2 * time.Second}
	return server, client
}

func TestSocketServerStartStop(t *testing.T) {
	server := NewSocketServer(&mockHandler{})
	server.socketPath = filepath.Join(t.TempDir(), "test.sock")

	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := os.Stat(server.socketPath); os.IsNotExist(err) {
		t.Error("Socket file was not created")
	}

	// Starting again should not error
	if err := server.Start(); err != nil {
		t.Errorf("Start() on running server error = %v", err)
	}

	server.Stop()

	if _, err := os.Stat(server.socketPath); !os.IsNotExist(err) {
		t.Error("Socket file was not cleaned up")
	}

	// Stopping again should not panic
	server.Stop()
}

func TestStatusRoundTrip(t *testing.T) {
	handler := &mockHandler{
		status: &Status{
			ActiveProfile: "desk",
			AutoApply:     true,
			Outputs: []OutputSummary{
				{Name: "eDP-1", Enabled: true, Primary: true, Position: "0,0", Mode: "1920x1080@60.000Hz", Scale: 1},
			},
		},
	}
	_, client := testServer(t, handler)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.ActiveProfile != "desk" {
		t.Errorf("Expected active profile desk, got %s", status.ActiveProfile)
	}
	if len(status.Outputs) != 1 || status.Outputs[0].Name != "eDP-1" {
		t.Errorf("Unexpected outputs: %+v", status.Outputs)
	}
}

func TestSwitchCarriesProfileName(t *testing.T) {
	handler := &mockHandler{}
	_, client := testServer(t, handler)

	if _, err := client.Switch("home-office"); err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if handler.switchProfile != "home-office" {
		t.Errorf("Expected profile home-office, got %q", handler.switchProfile)
	}

	if _, err := client.Switch(""); err == nil {
		t.Error("Switch with an empty name should fail client-side")
	}
}

func TestReapply(t *testing.T) {
	handler := &mockHandler{}
	_, client := testServer(t, handler)

	if _, err := client.Reapply(); err != nil {
		t.Fatalf("Reapply() error = %v", err)
	}
	if !handler.reapplyCalled {
		t.Error("Reapply did not reach the handler")
	}
}

func TestHandlerErrorReachesClient(t *testing.T) {
	handler := &mockHandler{statusErr: fmt.Errorf("detection broke")}
	_, client := testServer(t, handler)

	_, err := client.Status()
	if err == nil {
		t.Fatal("Expected an error from the daemon")
	}
	if got := err.Error(); got != "daemon error: detection broke" {
		t.Errorf("Unexpected error text: %s", got)
	}
}

func TestStopRespondsBeforeShutdown(t *testing.T) {
	handler := &mockHandler{}
	_, client := testServer(t, handler)

	if err := client.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !handler.stopCalled {
		t.Error("Stop did not reach the handler")
	}
}

func TestUnknownOpRejected(t *testing.T) {
	_, client := testServer(t, &mockHandler{})

	resp, err := client.send(&Request{Op: "reboot"})
	if err != nil {
		t.Fatalf("send() error = %v", err)
	}
	if resp.OK {
		t.Error("Unknown op should not be OK")
	}
	if resp.Error == "" {
		t.Error("Unknown op should carry an error message")
	}
}

func TestClientWithoutDaemon(t *testing.T) {
	client := &Client{
		socketPath: filepath.Join(t.TempDir(), "nobody.sock"),
		timeout:    time.Second,
	}

	_, err := client.Status()
	if err == nil {
		t.Fatal("Expected an error without a daemon")
	}
	if got := err.Error(); got != "wayrange watch is not running" {
		t.Errorf("Unexpected error text: %s", got)
	}
}

func TestStartReplacesStaleSocket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stale.sock")

	// A leftover socket from a dead daemon: bind it, then close the
	// listener without removing the file.
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	listener.(*net.UnixListener).SetUnlinkOnClose(false)
	listener.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stale socket file missing: %v", err)
	}

	server := NewSocketServer(&mockHandler{})
	server.socketPath = path
	if err := server.Start(); err != nil {
		t.Fatalf("Start() with stale socket error = %v", err)
	}
	defer server.Stop()

	client := &Client{socketPath: path, timeout: time.Second}
	if _, err := client.Status(); err != nil {
		t.Errorf("Status() after stale replacement error = %v", err)
	}
}

func TestStartRefusesLiveSocket(t *testing.T) {
	handler := &mockHandler{}
	first := NewSocketServer(handler)
	first.socketPath = filepath.Join(t.TempDir(), "live.sock")
	if err := first.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer first.Stop()

	second := NewSocketServer(handler)
	second.socketPath = first.socketPath
	if err := second.Start(); err == nil {
		second.Stop()
		t.Fatal("Second server should refuse a live socket")
	}
}

func TestStopCompletesQuickly(t *testing.T) {
	server, _ := testServer(t, &mockHandler{})

	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Error("Stop() took too long")
	}
}
