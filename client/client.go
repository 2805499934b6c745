package client

import (
	"context"
	"io"
	"net"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/loom/config"
	"github.com/indigo-web/loom/http"
	"github.com/indigo-web/loom/http/method"
	"github.com/indigo-web/loom/http/proto"
	"github.com/indigo-web/loom/internal/protocol/http1"
	"github.com/indigo-web/loom/transport"
)

// ErrClosed is returned by Send once the connection can't carry another request.
var ErrClosed = errors.New("connection is closed")

// Client sends requests over a single persistent connection and reads the responses
// to them. It isn't safe for concurrent use.
type Client struct {
	conn     transport.Client
	host     string
	request  *http.Request
	response *http.Response
	parser   *http1.Parser
	reader   *http1.Reader
	writer   *http1.Writer
	closed   bool
}

// Dial connects to the address. Nil cfg stands for the default configuration.
func Dial(ctx context.Context, addr string, cfg *config.Config) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %q", addr)
	}

	return New(conn, cfg), nil
}

// New wraps the established connection. Responses are bounded by the same limits as
// requests are on the server side.
func New(conn net.Conn, cfg *config.Config) *Client {
	if cfg == nil {
		cfg = config.Default()
	}

	client := transport.NewClient(conn, cfg.NET.KeepAliveTimeout, make([]byte, cfg.NET.ReadBufferSize))
	response := http.NewResponseParsed(int(cfg.Body.MaxContentLength))
	parser := http1.NewResponseParser(response, http1.LimitsOf(cfg))

	return &Client{
		conn:     client,
		host:     conn.RemoteAddr().String(),
		request:  http.NewRequest(0),
		response: response,
		parser:   parser,
		reader:   http1.NewReader(client, parser, cfg.NET.MaxReadCycles),
		writer:   http1.NewWriter(client, cfg.NET.ReadBufferSize),
	}
}

// Request returns a blank request to the path, which may carry a query. The same
// request is returned by every call.
func (c *Client) Request(m method.Method, path string) *http.Request {
	c.request.Reset()
	c.request.Method = m
	c.request.Protocol = proto.HTTP11
	c.request.Path, c.request.RawQuery, _ = strings.Cut(path, "?")

	return c.request
}

// Send writes the request and reads the response to it. The response is valid until
// the next call.
func (c *Client) Send(request *http.Request) (*http.Response, error) {
	return c.send(request, nil)
}

// SendStream is Send, except the response body is written into w instead of being
// buffered. The body is then bounded by the stream limit.
func (c *Client) SendStream(request *http.Request, w io.Writer) (*http.Response, error) {
	return c.send(request, w)
}

func (c *Client) send(request *http.Request, sink io.Writer) (*http.Response, error) {
	if c.closed {
		return nil, ErrClosed
	}

	if !request.Headers.Has("Host") {
		request.Headers.Add("Host", c.host)
	}

	if err := c.writer.WriteRequest(request, true); err != nil {
		c.closed = true
		return nil, err
	}

	c.parser.Reset()
	c.response.Reset()
	c.parser.SetRequestMethod(request.Method)

	err := c.reader.Read(func() error {
		if sink != nil {
			c.parser.SetSink(sink)
		}

		return c.parser.CheckLength()
	})
	if err != nil {
		c.closed = true
		return nil, errors.Wrap(err, "read response")
	}

	c.closed = !c.response.IsKeepAlive()
	return c.response, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.closed = true
	return c.conn.Close()
}
