package hookipc

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client delivers hook messages to a running daemon.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a hook client for the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    10 * time.Second,
	}
}

// SetTimeout sets the client timeout for a whole send/ack exchange.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Send delivers one message and waits for the acknowledgement. Any
// failure here means the event is dropped; hook invocations report the
// error to their own log and exit cleanly rather than retry, because a
// missed cosmetic transition is cheaper than a hook that blocks the
// agent.
func (c *Client) Send(msg HookMessage) (*HookResponse, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon (is it running?): %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return nil, fmt.Errorf("failed to send hook message: %w", err)
	}

	var resp HookResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read hook response: %w", err)
	}

	return &resp, nil
}
