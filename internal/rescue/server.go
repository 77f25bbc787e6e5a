// Package rescue runs an SSH server that serves the arrange screen to
// remote sessions. When a bad layout leaves every local monitor black, an
// SSH login from another machine can still drag the displays back and
// apply a working configuration.
package rescue

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	bm "github.com/charmbracelet/wish/bubbletea"
	"github.com/muesli/termenv"
	gossh "golang.org/x/crypto/ssh"

	"github.com/bnema/wayrange/internal/arrange"
	"github.com/bnema/wayrange/internal/configure"
	"github.com/bnema/wayrange/internal/inventory"
	"github.com/bnema/wayrange/internal/logger"
	"github.com/bnema/wayrange/internal/profile"
	"github.com/bnema/wayrange/internal/ui"
)

// shutdownTimeout bounds how long Stop waits for active sessions.
const shutdownTimeout = 5 * time.Second

// Options configure the rescue server.
type Options struct {
	BindAddress        string
	Port               int
	HostKeyPath        string
	AuthorizedKeysPath string

	// Canvas tunes the arrange screen served to sessions.
	Canvas arrange.Options
}

// Server is the SSH rescue server. Every authenticated session gets its
// own arrange screen over the shared inventory, applier and profile store.
type Server struct {
	opts    Options
	inv     *inventory.Inventory
	applier *configure.Applier
	store   *profile.Store

	authorized []gossh.PublicKey

	sshServer *ssh.Server
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New builds a rescue server. The authorized_keys file must exist and
// contain at least one key: a rescue server that accepts anyone is worse
// than no rescue server.
func New(inv *inventory.Inventory, store *profile.Store, opts Options) (*Server, error) {
	keys, err := loadAuthorizedKeys(opts.AuthorizedKeysPath)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no keys in %s: refusing to start an open rescue server", opts.AuthorizedKeysPath)
	}
	return &Server{
		opts:       opts,
		inv:        inv,
		applier:    configure.NewApplier(inv),
		store:      store,
		authorized: keys,
	}, nil
}

// loadAuthorizedKeys parses an OpenSSH authorized_keys file. Comment and
// blank lines are skipped; a malformed key line is an error, not a silent
// hole in the whitelist.
func loadAuthorizedKeys(path string) ([]gossh.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read authorized keys: %w", err)
	}

	var keys []gossh.PublicKey
	rest := data
	for len(rest) > 0 {
		key, _, _, next, err := gossh.ParseAuthorizedKey(rest)
		if err != nil {
			return nil, fmt.Errorf("failed to parse authorized keys in %s: %w", path, err)
		}
		keys = append(keys, key)
		rest = next
	}
	return keys, nil
}

// Start begins listening. It returns once the listener is up; sessions are
// served until Stop or ctx cancellation.
func (s *Server) Start(ctx context.Context) error {
	server, err := wish.NewServer(
		wish.WithAddress(fmt.Sprintf("%s:%d", s.opts.BindAddress, s.opts.Port)),
		wish.WithHostKeyPath(s.opts.HostKeyPath),
		wish.WithPublicKeyAuth(s.publicKeyAuth),
		wish.WithMiddleware(
			bm.MiddlewareWithProgramHandler(s.sessionProgram, termenv.ANSI256),
			activeterm.Middleware(),
			s.loggingMiddleware(),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create rescue server: %w", err)
	}
	s.sshServer = server

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.Infof("Rescue server listening on %s:%d", s.opts.BindAddress, s.opts.Port)
		if err := server.ListenAndServe(); err != nil && err != ssh.ErrServerClosed {
			logger.Errorf("Rescue server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop shuts the server down, closing active sessions after a grace
// period.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.sshServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = s.sshServer.Shutdown(ctx)
		}
		s.wg.Wait()
	})
}

// publicKeyAuth accepts exactly the keys in the authorized_keys file.
func (s *Server) publicKeyAuth(ctx ssh.Context, key ssh.PublicKey) bool {
	if s.keyAuthorized(key) {
		logger.Infof("Rescue login accepted user=%s addr=%s key=%s",
			ctx.User(), ctx.RemoteAddr(), gossh.FingerprintSHA256(key))
		return true
	}
	logger.Warnf("Rescue login denied user=%s addr=%s key=%s",
		ctx.User(), ctx.RemoteAddr(), gossh.FingerprintSHA256(key))
	return false
}

func (s *Server) keyAuthorized(key ssh.PublicKey) bool {
	for _, ak := range s.authorized {
		if ssh.KeysEqual(key, ak) {
			return true
		}
	}
	return false
}

func (s *Server) loggingMiddleware() wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			logger.Debugf("Rescue session started: user=%s addr=%s", sess.User(), sess.RemoteAddr())
			h(sess)
			logger.Debugf("Rescue session ended: addr=%s", sess.RemoteAddr())
		}
	}
}

// sessionProgram builds one arrange screen per SSH session, over a fresh
// enumeration so the remote user sees the state that actually needs
// rescuing. Returning nil hands the session to the next middleware with
// the error already printed.
func (s *Server) sessionProgram(sess ssh.Session) *tea.Program {
	ctx := sess.Context()
	snap, err := s.inv.Enumerate(ctx)
	if err != nil {
		wish.Println(sess, ui.DescribeError(err))
		return nil
	}

	m := ui.New(ctx, snap, s.opts.Canvas, ui.Deps{
		Applier:   s.applier,
		Store:     s.store,
		Enumerate: s.inv.Enumerate,
	})
	opts := append(bm.MakeOptions(sess), tea.WithAltScreen(), tea.WithMouseAllMotion())
	return tea.NewProgram(m, opts...)
}
