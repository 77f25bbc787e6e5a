package ipc

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"
	"time"

	"github.com/bnema/wayrange/internal/logger"
)

// Client talks to a running watch daemon. Each call dials, sends one
// request and reads one response.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client against the session's control socket.
func NewClient() *Client {
	return &Client{
		socketPath: SocketPath(),
		timeout:    5 * time.Second,
	}
}

// NewClientWithTimeout creates a client with a custom per-request timeout.
func NewClientWithTimeout(timeout time.Duration) *Client {
	client := NewClient()
	client.timeout = timeout
	return client
}

// Status asks the daemon for its view of the session.
func (c *Client) Status() (*Status, error) {
	return c.sendForStatus(&Request{Op: OpStatus})
}

// Reapply asks the daemon to re-run profile selection and apply.
func (c *Client) Reapply() (*Status, error) {
	return c.sendForStatus(&Request{Op: OpReapply})
}

// Switch asks the daemon to apply a named profile.
func (c *Client) Switch(profile string) (*Status, error) {
	if profile == "" {
		return nil, fmt.Errorf("switch needs a profile name")
	}
	return c.sendForStatus(&Request{Op: OpSwitch, Profile: profile})
}

// Stop asks the daemon to shut down.
func (c *Client) Stop() error {
	resp, err := c.send(&Request{Op: OpStop})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("daemon error: %s", resp.Error)
	}
	return nil
}

func (c *Client) sendForStatus(req *Request) (*Status, error) {
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp.Status, nil
}

// send dials the socket, writes one request and reads one response.
func (c *Client) send(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		if isNotRunning(err) {
			return nil, fmt.Errorf("wayrange watch is not running")
		}
		return nil, fmt.Errorf("failed to connect to the watch daemon: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close control connection: %v", err)
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		logger.Warnf("Failed to set connection deadline: %v", err)
	}

	if err := writeFrame(conn, req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := readFrame(conn, &resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}

// isNotRunning reports whether a dial error means no daemon holds the
// socket, as opposed to a transport problem.
func isNotRunning(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}

// DaemonRunning reports whether a watch daemon answers on the control
// socket.
func DaemonRunning() bool {
	client := NewClientWithTimeout(time.Second)
	_, err := client.Status()
	return err == nil
}
