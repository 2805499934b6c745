package http

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/indigo-web/loom/config"
	"github.com/indigo-web/loom/http"
	"github.com/indigo-web/loom/http/proto"
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/internal/protocol/http1"
	"github.com/indigo-web/loom/metrics"
	"github.com/indigo-web/loom/router"
	"github.com/indigo-web/loom/scheduler"
	"github.com/indigo-web/loom/transport"
	"github.com/indigo-web/utils/strcomp"
	"go.uber.org/zap"
)

// Server serves connections by HTTP/1.x. Every connection is read by the goroutine
// calling Serve, while the router is always invoked on the scheduler's workers.
type Server struct {
	cfg       *config.Config
	router    router.Router
	scheduler *scheduler.Scheduler
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func NewServer(
	cfg *config.Config, r router.Router, s *scheduler.Scheduler, log *zap.Logger, m *metrics.Metrics,
) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	return &Server{
		cfg:       cfg,
		router:    r,
		scheduler: s,
		log:       log.Named("http"),
		metrics:   m,
	}
}

// Serve serves the client until either side closes the connection, the connection
// misbehaves or the server is shut down. The client is closed on return.
func (s *Server) Serve(ctx context.Context, client transport.Client) {
	release, err := s.scheduler.Acquire(client)
	if err != nil {
		s.log.Debug("connection refused", zap.Stringer("remote", client.Remote()), zap.Error(err))
		_ = client.Close()
		return
	}

	c := newConn(ctx, s, client)
	defer func() {
		c.close()
		release()
	}()

	for c.serve() {
	}
}

// conn is the context of a single connection. It's owned by the goroutine serving the
// connection, and by the worker running the router on its behalf while that goroutine
// waits for it.
type conn struct {
	server  *Server
	client  transport.Client
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	request *http.Request
	parser  *http1.Parser
	reader  *http1.Reader
	writer  *http1.Writer
	payload router.PayloadHandler
	// hijacked connections are owned by whoever took them over
	hijacked bool
}

func newConn(ctx context.Context, s *Server, client transport.Client) *conn {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)

	request := http.NewRequest(int(s.cfg.Body.MaxContentLength))
	request.Remote = client.Remote()
	request.Ctx = ctx
	request.Env.ConnID = id

	parser := http1.NewRequestParser(request, http1.LimitsOf(s.cfg))
	if hijacker, ok := client.(transport.Hijacker); ok {
		request.SetHijacker(hijacker.Hijack)
	}

	return &conn{
		server:  s,
		client:  client,
		log:     s.log.With(zap.String("conn", id), zap.Stringer("remote", client.Remote())),
		ctx:     ctx,
		cancel:  cancel,
		request: request,
		parser:  parser,
		reader:  http1.NewReader(client, parser, s.cfg.NET.MaxReadCycles),
		writer:  http1.NewWriter(client, s.cfg.NET.ReadBufferSize),
	}
}

// serve processes a single request and reports whether the connection persists.
func (c *conn) serve() (keepAlive bool) {
	defer c.reset()

	if err := c.reader.Read(c.onHeaders); err != nil {
		return c.fail(err)
	}

	start := time.Now()
	response, err := c.dispatch()
	if err != nil {
		c.log.Debug("dropping the request", zap.Error(err))
		return false
	}

	if c.request.Hijacked() {
		c.hijacked = true
		c.log.Debug("connection hijacked")
		c.server.metrics.Request(c.request.Method.String(), status.SwitchingProtocols, time.Since(start))
		return false
	}

	keepAlive = c.request.IsKeepAlive() &&
		response.KeepAlive.Or(true) &&
		!c.server.scheduler.Draining()

	if err = c.writer.Write(response, keepAlive); err != nil {
		c.log.Debug("failed to write the response", zap.Error(err))
		return false
	}

	// the body may have turned out to be delimited by the connection close
	keepAlive = keepAlive && response.KeepAlive.Or(true)

	c.server.metrics.Request(c.request.Method.String(), response.StatusCode, time.Since(start))
	return keepAlive
}

// onHeaders attaches the payload handler of the route, if there's any, and invites
// the client to send the body if it asks for that.
func (c *conn) onHeaders() error {
	var (
		handler router.PayloadHandler
		err     error
	)

	runErr := c.server.scheduler.Run(c.ctx, func() {
		handler, err = c.server.router.OnHeaders(c.request)
	})
	if err = errors.CombineErrors(runErr, err); err != nil {
		return err
	}

	if handler != nil {
		c.payload = guardedPayload{handler: handler, log: c.log}
		c.parser.SetSink(c.payload)
	}

	// the declared length is only checked against the limit once the sink is known,
	// and the client mustn't be invited to send a body that is refused anyway
	if err = c.parser.CheckLength(); err != nil {
		return err
	}

	if expectsContinue(c.request) {
		return c.writer.WriteContinue()
	}

	return nil
}

// dispatch completes the payload handler, if any, and passes the request to the router.
func (c *conn) dispatch() (response *http.Response, err error) {
	err = c.server.scheduler.Run(c.ctx, func() {
		defer func() {
			if rec := recover(); rec != nil {
				c.log.Error("router panicked", zap.Any("panic", rec), zap.Stack("stack"))
				response = c.server.router.OnError(
					c.request, errors.Wrapf(status.ErrInternalServerError, "router panicked: %v", rec),
				)
			}
		}()

		if c.payload != nil {
			payload := c.payload
			c.payload = nil

			if completeErr := payload.Complete(); completeErr != nil {
				response = c.server.router.OnError(c.request, completeErr)
				return
			}
		}

		response = c.server.router.OnRequest(c.request)
	})

	return notNil(c.request, response), err
}

// fail answers the failed request, unless it's the connection that failed. The
// connection is closed in any case.
func (c *conn) fail(err error) bool {
	if c.payload != nil {
		c.payload.Abort(err)
		c.payload = nil
	}

	code := status.CodeOf(err)
	if code == status.CloseConnection || errors.Is(err, status.ErrTooManyReadCycles) {
		if !errors.Is(err, status.ErrCloseConnection) {
			c.log.Debug("connection lost", zap.Error(err))
		}

		return false
	}

	c.server.metrics.ParseError(code)
	c.log.Debug("bad request", zap.Error(err), zap.Uint16("code", uint16(code)))

	var response *http.Response
	runErr := c.server.scheduler.Run(c.ctx, func() {
		response = c.server.router.OnError(c.request, err)
	})
	if runErr != nil {
		return false
	}

	if err = c.writer.Write(notNil(c.request, response), false); err != nil {
		c.log.Debug("failed to write the error response", zap.Error(err))
	}

	return false
}

func (c *conn) reset() {
	c.parser.Reset()
	c.request.Reset()
}

func (c *conn) close() {
	if c.payload != nil {
		c.payload.Abort(status.ErrCloseConnection)
		c.payload = nil
	}

	if c.hijacked {
		// the context keeps serving the new owner until the server shuts down
		return
	}

	c.cancel()
	_ = c.client.Close()
}

func notNil(request *http.Request, response *http.Response) *http.Response {
	if response != nil {
		return response
	}

	return request.Respond()
}

func expectsContinue(request *http.Request) bool {
	return request.Protocol == proto.HTTP11 &&
		strcomp.EqualFold(request.Headers.Value("Expect"), "100-continue") &&
		(request.Chunked.Is() || request.ContentLength > 0)
}
