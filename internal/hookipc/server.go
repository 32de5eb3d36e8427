// Package hookipc carries hook events from short-lived hook invocations
// to the long-lived daemon over a unix socket. Delivery is at-most-once:
// a message sent while no daemon is listening is lost, and senders never
// retry.
package hookipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deckhand-dev/deckhand/internal/logging"
)

// messageBuffer bounds how many accepted hook events can queue ahead of
// the daemon's event loop.
const messageBuffer = 32

// HookMessage is one hook event on the wire: a single JSON object per
// line. The payload is passed through opaque.
type HookMessage struct {
	EventName string         `json:"event_name"`
	JobID     int64          `json:"job_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// HookResponse acknowledges a HookMessage: one JSON object per line.
// Success means the event was accepted for processing, not processed.
type HookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Server listens on the daemon socket and forwards every accepted hook
// message onto one ordered channel. Connections are accepted and decoded
// concurrently, but all messages funnel through that single channel, so
// the consumer never sees two messages for the same job at once.
type Server struct {
	socketPath string
	listener   net.Listener
	logger     *logging.Logger
	messages   chan HookMessage
	mu         sync.RWMutex
	running    bool
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewServer creates a hook server for the given socket path. A stale
// socket file from a crashed daemon is removed.
func NewServer(socketPath string, logger *logging.Logger) (*Server, error) {
	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	return &Server{
		socketPath: socketPath,
		logger:     logger,
		messages:   make(chan HookMessage, messageBuffer),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Messages returns the ordered stream of accepted hook events.
func (s *Server) Messages() <-chan HookMessage {
	return s.messages
}

// Start begins listening for hook connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("hook server already running")
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create hook socket: %w", err)
	}

	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.logger.Info("hook server listening", zap.String("socket", s.socketPath))

	go s.acceptLoop(ctx)

	return nil
}

// acceptLoop accepts incoming connections until stopped.
func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		// Accept with a timeout so the stop channel is checked regularly.
		if err := s.listener.(*net.UnixListener).SetDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Warn("hook server failed to set accept deadline", zap.Error(err))
			continue
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.logger.Warn("hook server accept error", zap.Error(err))
			continue
		}

		go s.handleConnection(ctx, conn)
	}
}

// handleConnection reads one message, forwards it, and acknowledges.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		s.logger.Warn("hook server failed to set connection deadline", zap.Error(err))
		return
	}

	var msg HookMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		s.logger.Warn("hook message rejected: undecodable", zap.Error(err))
		s.respond(conn, HookResponse{Success: false, Message: fmt.Sprintf("failed to decode hook message: %v", err)})
		return
	}

	// Reject bad input here so the event loop only ever sees well-formed
	// messages.
	if msg.EventName == "" {
		s.logger.Warn("hook message rejected: missing event_name", zap.Int64("job", msg.JobID))
		s.respond(conn, HookResponse{Success: false, Message: "missing event_name"})
		return
	}
	if msg.JobID <= 0 {
		s.logger.Warn("hook message rejected: missing job_id", zap.String("event", msg.EventName))
		s.respond(conn, HookResponse{Success: false, Message: "missing job_id"})
		return
	}

	select {
	case s.messages <- msg:
		s.respond(conn, HookResponse{Success: true})
	case <-s.stopCh:
		s.respond(conn, HookResponse{Success: false, Message: "Daemon is shutting down"})
	case <-ctx.Done():
		s.respond(conn, HookResponse{Success: false, Message: "Daemon is shutting down"})
	}
}

func (s *Server) respond(conn net.Conn, resp HookResponse) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Warn("hook server failed to send response", zap.Error(err))
	}
}

// Stop stops the server and removes the socket file.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Warn("hook server error closing listener", zap.Error(err))
		}
	}

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		s.logger.Warn("hook server timeout waiting for shutdown")
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		s.logger.Warn("hook server failed to remove socket file", zap.Error(err))
	}

	s.logger.Info("hook server stopped")
	return nil
}

// IsRunning returns whether the server is currently listening.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SocketPath returns the path of the hook socket.
func (s *Server) SocketPath() string {
	return s.socketPath
}
