// Package websocket upgrades requests to WebSocket connections. The upgrade runs on the
// hijacked connection, and the session is served by a goroutine of its own, so it
// holds neither a worker nor the connection loop.
package websocket

import (
	"bufio"
	"bytes"
	"context"
	"net"
	stdhttp "net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/indigo-web/loom/http"
	"github.com/indigo-web/loom/http/proto"
	"github.com/indigo-web/loom/http/status"
	"go.uber.org/zap"
)

// Handler serves an upgraded connection, which is closed once it returns. The request
// is a copy, kept valid for the whole session. Its context is cancelled when the server
// shuts down, closing the connection.
type Handler func(request *http.Request, conn *websocket.Conn)

type Option func(*Upgrader)

// WithLogger sets the logger failed upgrades and panicking sessions are reported to.
func WithLogger(log *zap.Logger) Option {
	return func(u *Upgrader) {
		u.log = log.Named("websocket")
	}
}

// WithSubprotocols sets the subprotocols offered, in the order of preference.
func WithSubprotocols(protocols ...string) Option {
	return func(u *Upgrader) {
		u.upgrader.Subprotocols = protocols
	}
}

// WithOriginCheck replaces the default check, which refuses cross-origin requests.
func WithOriginCheck(allow func(origin string) bool) Option {
	return func(u *Upgrader) {
		u.upgrader.CheckOrigin = func(r *stdhttp.Request) bool {
			return allow(r.Header.Get("Origin"))
		}
	}
}

// Upgrader upgrades requests and serves the sessions by the handler.
type Upgrader struct {
	upgrader websocket.Upgrader
	handler  Handler
	log      *zap.Logger
}

func New(handler Handler, opts ...Option) *Upgrader {
	u := &Upgrader{
		handler: handler,
		log:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// Handle upgrades the request. Requests that aren't valid upgrades are answered with
// the error, otherwise no response is written. It fits as an inbuilt router handler.
func (u *Upgrader) Handle(request *http.Request) *http.Response {
	w := &responseWriter{
		request: request,
		header:  make(stdhttp.Header),
	}

	conn, err := u.upgrader.Upgrade(w, adapt(request), nil)
	if err != nil {
		u.log.Debug("upgrade failed", zap.String("conn", request.Env.ConnID), zap.Error(err))
		if request.Hijacked() {
			// the connection is closed already
			return nil
		}

		return w.respond()
	}

	go u.serve(request.Clone(), conn)
	return nil
}

func (u *Upgrader) serve(request *http.Request, conn *websocket.Conn) {
	stop := context.AfterFunc(request.Ctx, func() {
		_ = conn.Close()
	})

	defer func() {
		stop()
		_ = conn.Close()

		if rec := recover(); rec != nil {
			u.log.Error("session panicked",
				zap.String("conn", request.Env.ConnID),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
		}
	}()

	u.handler(request, conn)
}

// adapt presents the request the way the upgrader expects it. Only the fields the
// handshake depends on are filled.
func adapt(request *http.Request) *stdhttp.Request {
	header := make(stdhttp.Header, request.Headers.Len())
	for key, value := range request.Headers.Pairs() {
		header.Add(key, value)
	}

	minor := 1
	if request.Protocol == proto.HTTP10 {
		minor = 0
	}

	var remote string
	if request.Remote != nil {
		remote = request.Remote.String()
	}

	std := &stdhttp.Request{
		Method:     request.Method.String(),
		URL:        &url.URL{Path: request.Path, RawQuery: request.RawQuery},
		Proto:      request.Protocol.String(),
		ProtoMajor: 1,
		ProtoMinor: minor,
		Header:     header,
		Host:       request.Headers.Value("Host"),
		RemoteAddr: remote,
	}

	return std.WithContext(request.Ctx)
}

// responseWriter collects the refusal of an upgrade and hijacks the connection for a
// successful one.
type responseWriter struct {
	request *http.Request
	header  stdhttp.Header
	code    int
	body    bytes.Buffer
}

func (w *responseWriter) Header() stdhttp.Header {
	return w.header
}

func (w *responseWriter) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.WriteHeader(stdhttp.StatusOK)
	return w.body.Write(b)
}

func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, err := w.request.Hijack()
	if err != nil {
		return nil, nil, err
	}

	return conn, bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)), nil
}

func (w *responseWriter) respond() *http.Response {
	code := status.Code(w.code)
	if code == 0 {
		code = status.BadRequest
	}

	response := w.request.Respond().Code(code)
	for key, values := range w.header {
		response.Header(key, values...)
	}

	return response.Bytes(w.body.Bytes())
}
