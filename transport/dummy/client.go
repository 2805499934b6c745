package dummy

import (
	"io"
	"net"
	"sync"

	"github.com/indigo-web/loom/transport"
)

var _ transport.Client = new(Client)

// Client returns the data it was initialised with piece by piece and journals
// everything written into it. Once the data is exhausted, reads return io.EOF, unless
// the client is set to loop or to block until closed.
type Client struct {
	mu       sync.Mutex
	data     [][]byte
	pointer  int
	pending  []byte
	written  []byte
	loop     bool
	block    bool
	readErr  error
	writeErr error
	remote   net.Addr
	closed   chan struct{}
	once     sync.Once
}

func NewMockClient(data ...[]byte) *Client {
	return &Client{
		data:   data,
		remote: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4242},
		closed: make(chan struct{}),
	}
}

// NewNopClient returns a client with nothing to read.
func NewNopClient() *Client {
	return NewMockClient()
}

// LoopReads makes the client start over once the data is exhausted.
func (c *Client) LoopReads() *Client {
	c.loop = true
	return c
}

// BlockReads makes reads past the data wait until the client is closed, as an idle
// connection would.
func (c *Client) BlockReads() *Client {
	c.block = true
	return c
}

// FailReads makes reads past the data fail with the error.
func (c *Client) FailReads(err error) *Client {
	c.readErr = err
	return c
}

// FailWrites makes every write fail with the error.
func (c *Client) FailWrites(err error) *Client {
	c.writeErr = err
	return c
}

func (c *Client) Read() ([]byte, error) {
	c.mu.Lock()

	if c.isClosed() {
		c.mu.Unlock()
		return nil, io.EOF
	}

	if len(c.pending) > 0 {
		data := c.pending
		c.pending = nil
		c.mu.Unlock()

		return data, nil
	}

	if c.pointer >= len(c.data) {
		if !c.loop || len(c.data) == 0 {
			c.mu.Unlock()
			if c.readErr != nil {
				return nil, c.readErr
			}

			if c.block {
				<-c.closed
			}

			return nil, io.EOF
		}

		c.pointer = 0
	}

	piece := c.data[c.pointer]
	c.pointer++
	c.mu.Unlock()

	return piece, nil
}

func (c *Client) Pushback(b []byte) {
	c.mu.Lock()
	c.pending = b
	c.mu.Unlock()
}

func (c *Client) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeErr != nil {
		return 0, c.writeErr
	}

	if c.isClosed() {
		return 0, net.ErrClosed
	}

	c.written = append(c.written, b...)
	return len(b), nil
}

// Written returns everything written so far.
func (c *Client) Written() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return string(c.written)
}

func (c *Client) Remote() net.Addr {
	return c.remote
}

func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.closed)
	})

	return nil
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	return c.isClosed()
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
