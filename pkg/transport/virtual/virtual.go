// Package virtual implements osdp.Channel over a plain net.Conn, primarily
// for local testing and the cmd/osdpctl demo — the same role the teacher's
// pkg/can/virtual TCP bus plays for CANopen, adapted from framed CAN packets
// to a raw non-blocking byte stream.
package virtual

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/osdp-go/osdp"
)

// pollDeadline bounds how long Recv blocks waiting for bytes before
// reporting "nothing available yet" — Channel.Recv must never block.
const pollDeadline = 2 * time.Millisecond

// Channel adapts a net.Conn (typically one end of a net.Pipe, or a TCP
// loopback connection) to osdp.Channel.
type Channel struct {
	id     int
	logger *slog.Logger
	mu     sync.Mutex
	conn   net.Conn
}

// New wraps conn as channel id.
func New(id int, conn net.Conn, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{id: id, conn: conn, logger: logger.With("channel", id)}
}

func (c *Channel) ID() int { return c.id }

// Recv reads whatever is currently available, returning (0, nil) rather
// than blocking when nothing has arrived within pollDeadline.
func (c *Channel) Recv(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetReadDeadline(time.Now().Add(pollDeadline)); err != nil {
		return 0, err
	}
	n, err := c.conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// Send writes buf in full; partial writes are treated as a transport error.
func (c *Channel) Send(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.conn.Write(buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, osdp.ErrWouldBlock
	}
	return n, nil
}

func (c *Channel) Flush() error {
	return nil
}

// Close releases the underlying connection.
func (c *Channel) Close() error {
	return c.conn.Close()
}
