package transport

import (
	"net"
	"time"

	"github.com/indigo-web/loom/internal/timer"
)

// Client is a single connection as seen by the protocol. Reads return a view of the
// internal buffer, valid until the next Read.
type Client interface {
	// Read returns the data pushed back earlier or, if there is none, the bytes
	// available on the connection.
	Read() ([]byte, error)
	// Pushback preserves the unconsumed part of the last read for the next one.
	Pushback([]byte)
	Write([]byte) (int, error)
	Remote() net.Addr
	// Close is safe to be called concurrently with Read and Write, which it aborts.
	Close() error
}

// Hijacker is implemented by clients able to hand the underlying connection over.
type Hijacker interface {
	// Hijack returns the connection with no deadlines set. The data pushed back is
	// read from it first. The client mustn't be used afterwards.
	Hijack() (net.Conn, error)
}

type client struct {
	conn    net.Conn
	buff    []byte
	pending []byte
	timeout time.Duration
}

// NewClient wraps the connection. Reads fail if no data arrives within the timeout.
func NewClient(conn net.Conn, timeout time.Duration, buff []byte) Client {
	return &client{
		buff:    buff,
		conn:    conn,
		timeout: timeout,
	}
}

func (c *client) Read() ([]byte, error) {
	if len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil

		return pending, nil
	}

	if err := c.conn.SetReadDeadline(timer.Deadline(c.timeout)); err != nil {
		return nil, err
	}

	n, err := c.conn.Read(c.buff)
	return c.buff[:n], err
}

func (c *client) Pushback(b []byte) {
	c.pending = b
}

func (c *client) Write(b []byte) (int, error) {
	return c.conn.Write(b)
}

// Writev writes all the buffers in as few syscalls as the connection allows.
func (c *client) Writev(buffs *net.Buffers) (int64, error) {
	return buffs.WriteTo(c.conn)
}

func (c *client) Remote() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *client) Close() error {
	return c.conn.Close()
}

func (c *client) Hijack() (net.Conn, error) {
	if err := c.conn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}

	if len(c.pending) == 0 {
		return c.conn, nil
	}

	pending := c.pending
	c.pending = nil

	// pending points into buff, which nothing else reads into from now on
	return &hijackedConn{Conn: c.conn, pending: pending}, nil
}

type hijackedConn struct {
	net.Conn
	pending []byte
}

func (h *hijackedConn) Read(b []byte) (int, error) {
	if len(h.pending) > 0 {
		n := copy(b, h.pending)
		h.pending = h.pending[n:]
		return n, nil
	}

	return h.Conn.Read(b)
}
