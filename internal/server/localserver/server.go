package localserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// DefaultMode is the permission of the socket file.
const DefaultMode fs.FileMode = 0o600

// Server serves an http.Handler on a Unix domain socket.
type Server struct {
	path    string
	mode    fs.FileMode
	server  *http.Server
	logger  *slog.Logger
	running atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithMode sets the socket file permissions.
func WithMode(mode fs.FileMode) Option {
	return func(s *Server) {
		s.mode = mode
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a local server for socketPath.
func New(socketPath string, handler http.Handler, opts ...Option) *Server {
	s := &Server{
		path:   socketPath,
		mode:   DefaultMode,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "localserver", "socket", socketPath)
	s.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// ListenAndServe binds the socket and serves until Shutdown. A stale
// socket left by a previous process is replaced; any other file at the
// path is an error.
func (s *Server) ListenAndServe() error {
	if err := s.removeStale(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.path, s.mode); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.running.Store(true)

	s.logger.Info("local server listening")
	err = s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, drains active requests and
// removes the socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.Swap(false) {
		return nil
	}
	err := s.server.Shutdown(ctx)
	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		err = errors.Join(err, rmErr)
	}
	return err
}

func (s *Server) removeStale() error {
	info, err := os.Lstat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", s.path)
	}

	// A live server still accepts connections.
	conn, err := net.DialTimeout("unix", s.path, 200*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("%s is in use by another process", s.path)
	}
	s.logger.Warn("removing stale socket")
	return os.Remove(s.path)
}
