package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/wayrange/internal/logger"
)

// staleDialTimeout bounds the probe that decides whether an existing
// socket file belongs to a live daemon.
const staleDialTimeout = 250 * time.Millisecond

// Handler answers the daemon's control requests. Stop must only signal
// shutdown and return; the response is written after it returns.
type Handler interface {
	Status() (*Status, error)
	Reapply() (*Status, error)
	Switch(profile string) (*Status, error)
	Stop() error
}

// SocketServer handles incoming IPC connections
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	handler    Handler
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// NewSocketServer creates a server on the session's control socket.
func NewSocketServer(handler Handler) *SocketServer {
	return &SocketServer{
		socketPath: SocketPath(),
		handler:    handler,
	}
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// A socket file may be left behind by a daemon that died. Probe it:
	// a live daemon answers the dial and keeps its socket.
	if _, err := os.Stat(s.socketPath); err == nil {
		if conn, err := net.DialTimeout("unix", s.socketPath, staleDialTimeout); err == nil {
			conn.Close()
			return fmt.Errorf("wayrange watch is already running on %s", s.socketPath)
		}
		logger.Debugf("Removing stale socket %s", s.socketPath)
		if err := os.Remove(s.socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// Set socket permissions (user only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Infof("Control socket listening at %s", s.socketPath)
	return nil
}

// Stop stops the socket server
func (s *SocketServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	if s.cancel != nil {
		s.cancel()
	}

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()

	os.Remove(s.socketPath)

	logger.Info("Control socket stopped")
}

// acceptConnections accepts and handles incoming connections
func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					logger.Errorf("Failed to accept connection: %v", err)
					continue
				}
			}

			s.wg.Add(1)
			go s.handleConnection(ctx, conn)
		}
	}
}

// handleConnection handles a single client connection
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	logger.Debug("New control connection")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var req Request
			if err := readFrame(conn, &req); err != nil {
				logger.Debugf("Connection closed or read error: %v", err)
				return
			}

			resp := s.handleRequest(&req)
			if err := writeFrame(conn, resp); err != nil {
				logger.Errorf("Failed to send response: %v", err)
				return
			}
		}
	}
}

// handleRequest dispatches one request to the handler.
func (s *SocketServer) handleRequest(req *Request) *Response {
	switch req.Op {
	case OpStatus:
		return statusResponse(s.handler.Status())

	case OpReapply:
		return statusResponse(s.handler.Reapply())

	case OpSwitch:
		if req.Profile == "" {
			return &Response{Error: "switch needs a profile name"}
		}
		return statusResponse(s.handler.Switch(req.Profile))

	case OpStop:
		if err := s.handler.Stop(); err != nil {
			return &Response{Error: err.Error()}
		}
		return &Response{OK: true}

	default:
		return &Response{Error: fmt.Sprintf("unknown request %q", req.Op)}
	}
}

func statusResponse(st *Status, err error) *Response {
	if err != nil {
		return &Response{Error: err.Error()}
	}
	return &Response{OK: true, Status: st}
}
