package http

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/loom/config"
	"github.com/indigo-web/loom/http"
	"github.com/indigo-web/loom/http/method"
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/metrics"
	"github.com/indigo-web/loom/router"
	"github.com/indigo-web/loom/router/inbuilt"
	"github.com/indigo-web/loom/scheduler"
	"github.com/indigo-web/loom/transport/dummy"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server    *Server
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics
}

func newEnv(t *testing.T, r *inbuilt.Router, cfg *config.Config) testEnv {
	require.NoError(t, r.OnStart())
	m := metrics.New(nil)
	s := scheduler.New(cfg.Scheduler, nil, m)
	s.Start()
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
	})

	return testEnv{
		server:    NewServer(cfg, r, s, nil, m),
		scheduler: s,
		metrics:   m,
	}
}

func getRouter(t *testing.T) *inbuilt.Router {
	r := inbuilt.New()
	require.NoError(t, r.Handle(method.GET, "/", func(request *http.Request) *http.Response {
		return request.Respond().String("hello " + request.Path)
	}))
	require.NoError(t, r.Handle(method.POST, "/echo", func(request *http.Request) *http.Response {
		return request.Respond().Bytes(request.Body.Bytes())
	}))
	require.NoError(t, r.Handle(method.GET, "/stream", func(request *http.Request) *http.Response {
		return request.Respond().Attachment(strings.NewReader("streamed body"), -1)
	}))

	return r
}

func serve(env testEnv, data ...[]byte) *dummy.Client {
	client := dummy.NewMockClient(data...)
	env.server.Serve(context.Background(), client)
	return client
}

func TestServer(t *testing.T) {
	env := newEnv(t, getRouter(t), config.Default())

	t.Run("pipelined", func(t *testing.T) {
		client := serve(env, []byte("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n"))
		written := client.Written()
		require.Equal(t, 2, strings.Count(written, "HTTP/1.1 200 OK\r\n"))
		require.Equal(t, 2, strings.Count(written, "Connection: keep-alive\r\n"))
		require.Contains(t, written, "hello /a")
		require.Contains(t, written, "hello /b")
		require.True(t, client.Closed())
	})

	t.Run("fragmented body", func(t *testing.T) {
		client := serve(env,
			[]byte("POST /echo HTTP/1.1\r\nContent-"),
			[]byte("Length: 13\r\n\r\nHello, "),
			[]byte("world!"),
		)
		require.True(t, strings.HasSuffix(client.Written(), "\r\n\r\nHello, world!"))
	})

	t.Run("chunked body", func(t *testing.T) {
		client := serve(env, []byte("POST /echo HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"+
			"7\r\nHello, \r\n6\r\nworld!\r\n0\r\n\r\n"))
		require.True(t, strings.HasSuffix(client.Written(), "\r\n\r\nHello, world!"))
	})

	t.Run("connection close", func(t *testing.T) {
		client := serve(env, []byte("GET / HTTP/1.1\r\nConnection: close\r\n\r\nGET /b HTTP/1.1\r\n\r\n"))
		written := client.Written()
		require.Equal(t, 1, strings.Count(written, "HTTP/1.1 200 OK\r\n"))
		require.Contains(t, written, "Connection: close\r\n")
	})

	t.Run("HTTP/1.0", func(t *testing.T) {
		client := serve(env, []byte("GET / HTTP/1.0\r\n\r\nGET /b HTTP/1.0\r\n\r\n"))
		written := client.Written()
		require.True(t, strings.HasPrefix(written, "HTTP/1.0 200 OK\r\n"))
		require.Equal(t, 1, strings.Count(written, "200 OK"))
	})

	t.Run("HTTP/1.0 stream of unknown length", func(t *testing.T) {
		client := serve(env, []byte("GET /stream HTTP/1.0\r\nConnection: keep-alive\r\n\r\nGET / HTTP/1.0\r\n\r\n"))
		want := "HTTP/1.0 200 OK\r\nConnection: close\r\n\r\nstreamed body"
		require.Equal(t, want, client.Written())
		require.True(t, client.Closed())
	})

	t.Run("HTTP/1.1 stream of unknown length", func(t *testing.T) {
		client := serve(env, []byte("GET /stream HTTP/1.1\r\nConnection: close\r\n\r\n"))
		written := client.Written()
		require.Contains(t, written, "Transfer-Encoding: chunked\r\n")
		require.True(t, strings.HasSuffix(written, "\r\n\r\nd\r\nstreamed body\r\n0\r\n\r\n"))
	})

	t.Run("method not allowed keeps connection", func(t *testing.T) {
		client := serve(env, []byte("GET /echo HTTP/1.1\r\n\r\nGET / HTTP/1.1\r\n\r\n"))
		written := client.Written()
		require.True(t, strings.HasPrefix(written, "HTTP/1.1 405 Method Not Allowed\r\n"))
		require.Contains(t, written, "Allow: POST\r\n")
		require.Contains(t, written, "HTTP/1.1 200 OK\r\n")
	})

	t.Run("bad request closes", func(t *testing.T) {
		client := serve(env, []byte("GET / HTTP/1.1\r\nBad Header\r\n\r\nGET / HTTP/1.1\r\n\r\n"))
		written := client.Written()
		require.True(t, strings.HasPrefix(written, "HTTP/1.1 400 Bad Request\r\n"))
		require.Contains(t, written, "Connection: close\r\n")
		require.Contains(t, written, `"code":400`)
		require.NotContains(t, written, "200 OK")
	})

	t.Run("expect continue", func(t *testing.T) {
		client := serve(env, []byte("POST /echo HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 2\r\n\r\n"), []byte("hi"))
		written := client.Written()
		require.True(t, strings.HasPrefix(written, "HTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 200 OK\r\n"))
		require.True(t, strings.HasSuffix(written, "\r\n\r\nhi"))
	})

	t.Run("premature close", func(t *testing.T) {
		client := serve(env, []byte("POST /echo HTTP/1.1\r\nContent-Length: 10\r\n\r\nabc"))
		require.True(t, strings.HasPrefix(client.Written(), "HTTP/1.1 400 Bad Request\r\n"))
	})

	t.Run("transport error", func(t *testing.T) {
		client := dummy.NewMockClient([]byte("GET / HT")).FailReads(errors.New("connection reset"))
		env.server.Serve(context.Background(), client)
		require.Empty(t, client.Written())
		require.True(t, client.Closed())
	})
}

func TestLimits(t *testing.T) {
	t.Run("content length", func(t *testing.T) {
		cfg := config.Default()
		cfg.Body.MaxContentLength = 10
		env := newEnv(t, getRouter(t), cfg)

		client := serve(env, []byte("POST /echo HTTP/1.1\r\nContent-Length: 20\r\n\r\n"), []byte(strings.Repeat("a", 20)))
		require.True(t, strings.HasPrefix(client.Written(), "HTTP/1.1 413 Request Entity Too Large\r\n"))
		require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ParseErrors.WithLabelValues("413")))
	})

	t.Run("content length with expect continue", func(t *testing.T) {
		cfg := config.Default()
		cfg.Body.MaxContentLength = 10
		env := newEnv(t, getRouter(t), cfg)

		client := serve(env, []byte("POST /echo HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 20\r\n\r\n"))
		written := client.Written()
		require.True(t, strings.HasPrefix(written, "HTTP/1.1 413 Request Entity Too Large\r\n"))
		require.NotContains(t, written, "100 Continue")
	})

	t.Run("read cycles", func(t *testing.T) {
		cfg := config.Default()
		cfg.NET.MaxReadCycles = 3
		env := newEnv(t, getRouter(t), cfg)

		raw := []byte("GET / HTTP/1.1\r\n\r\n")
		parts := make([][]byte, len(raw))
		for i := range raw {
			parts[i] = raw[i : i+1]
		}

		client := serve(env, parts...)
		require.Empty(t, client.Written())
		require.True(t, client.Closed())
	})
}

type recorder struct {
	buff      bytes.Buffer
	completed bool
	aborted   error
}

func (r *recorder) Write(p []byte) (int, error) {
	return r.buff.Write(p)
}

func (r *recorder) Complete() error {
	r.completed = true
	return nil
}

func (r *recorder) Abort(err error) {
	r.aborted = err
}

type faulty struct {
	recorder
	panicOnWrite, panicOnComplete bool
}

func (f *faulty) Write(p []byte) (int, error) {
	if f.panicOnWrite {
		panic("write exploded")
	}

	return f.recorder.Write(p)
}

func (f *faulty) Complete() error {
	if f.panicOnComplete {
		panic("complete exploded")
	}

	return f.recorder.Complete()
}

func TestPayload(t *testing.T) {
	var (
		last   *recorder
		broken *faulty
	)
	r := getRouter(t)
	require.NoError(t, r.HandlePayload(method.PUT, "/faulty", router.PayloadFactoryFunc(
		func(request *http.Request) (router.PayloadHandler, error) {
			broken = &faulty{
				panicOnWrite:    request.Headers.Value("X-Panic") == "write",
				panicOnComplete: request.Headers.Value("X-Panic") == "complete",
			}
			return broken, nil
		},
	)))
	require.NoError(t, r.HandlePayload(method.PUT, "/upload", router.PayloadFactoryFunc(
		func(request *http.Request) (router.PayloadHandler, error) {
			if request.Headers.Value("Content-Type") == "text/html" {
				return nil, status.ErrUnsupportedMediaType
			}

			last = new(recorder)
			return last, nil
		},
	)))

	cfg := config.Default()
	cfg.Body.MaxContentLength = 4
	env := newEnv(t, r, cfg)

	t.Run("streamed", func(t *testing.T) {
		body := strings.Repeat("abcdefgh", 100)
		client := serve(env,
			[]byte("PUT /upload/file HTTP/1.1\r\nContent-Length: 800\r\n\r\n"),
			[]byte(body[:300]),
			[]byte(body[300:]),
		)

		require.True(t, strings.HasPrefix(client.Written(), "HTTP/1.1 200 OK\r\n"))
		require.Equal(t, body, last.buff.String())
		require.True(t, last.completed)
		require.NoError(t, last.aborted)
	})

	t.Run("aborted", func(t *testing.T) {
		serve(env, []byte("PUT /upload HTTP/1.1\r\nContent-Length: 100\r\n\r\nabc"))
		require.False(t, last.completed)
		require.ErrorIs(t, last.aborted, status.ErrPrematureClose)
	})

	t.Run("malformed chunked", func(t *testing.T) {
		client := serve(env, []byte("PUT /upload HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\nzz\r\n"))
		require.True(t, strings.HasPrefix(client.Written(), "HTTP/1.1 400 Bad Request\r\n"))
		require.Equal(t, "abc", last.buff.String())
		require.ErrorIs(t, last.aborted, status.ErrInvalidChunkSize)
	})

	t.Run("panicking write", func(t *testing.T) {
		client := serve(env, []byte("PUT /faulty HTTP/1.1\r\nX-Panic: write\r\nContent-Length: 3\r\n\r\nabc"))
		require.True(t, strings.HasPrefix(client.Written(), "HTTP/1.1 500 Internal Server Error\r\n"))
		require.ErrorIs(t, broken.aborted, status.ErrInternalServerError)
		require.True(t, client.Closed())
	})

	t.Run("panicking complete", func(t *testing.T) {
		client := serve(env, []byte("PUT /faulty HTTP/1.1\r\nX-Panic: complete\r\nContent-Length: 3\r\n\r\nabc"))
		require.True(t, strings.HasPrefix(client.Written(), "HTTP/1.1 500 Internal Server Error\r\n"))
		require.NotContains(t, client.Written(), "200 OK")
		require.Equal(t, "abc", broken.buff.String())
	})

	t.Run("refused by factory", func(t *testing.T) {
		client := serve(env, []byte("PUT /upload HTTP/1.1\r\nContent-Type: text/html\r\nExpect: 100-continue\r\n"+
			"Content-Length: 100\r\n\r\n"))
		written := client.Written()
		require.True(t, strings.HasPrefix(written, "HTTP/1.1 415 Unsupported Media Type\r\n"))
		require.NotContains(t, written, "100 Continue")
	})
}

func TestDraining(t *testing.T) {
	var sched *scheduler.Scheduler
	shutdown := make(chan error, 1)

	r := inbuilt.New()
	require.NoError(t, r.Handle(method.GET, "/", func(request *http.Request) *http.Response {
		go func() {
			shutdown <- sched.Shutdown(context.Background())
		}()

		for !sched.Draining() {
			time.Sleep(time.Millisecond)
		}

		return request.Respond()
	}))

	env := newEnv(t, r, config.Default())
	sched = env.scheduler

	client := serve(env, []byte("GET / HTTP/1.1\r\n\r\nGET / HTTP/1.1\r\n\r\n"))
	written := client.Written()
	require.Equal(t, 1, strings.Count(written, "200 OK"))
	require.Contains(t, written, "Connection: close\r\n")
	require.NoError(t, <-shutdown)
	require.Zero(t, env.scheduler.ActiveUsers())

	t.Run("refused", func(t *testing.T) {
		client := serve(env, []byte("GET / HTTP/1.1\r\n\r\n"))
		require.Empty(t, client.Written())
		require.True(t, client.Closed())
	})
}

func TestMetrics(t *testing.T) {
	env := newEnv(t, getRouter(t), config.Default())
	serve(env, []byte("GET / HTTP/1.1\r\n\r\nGET /x HTTP/1.1\r\n\r\nPOST / HTTP/1.1\r\n\r\n"))

	require.Equal(t, 2.0, testutil.ToFloat64(env.metrics.Requests.WithLabelValues("GET", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Requests.WithLabelValues("POST", "405")))
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.AcceptedConnections))
	require.Zero(t, testutil.ToFloat64(env.metrics.ActiveConnections))
}

type panickingRouter struct {
	*inbuilt.Router
}

func (panickingRouter) OnRequest(*http.Request) *http.Response {
	panic("router exploded")
}

func TestRouterPanic(t *testing.T) {
	r := getRouter(t)
	require.NoError(t, r.OnStart())
	m := metrics.New(nil)
	s := scheduler.New(config.Default().Scheduler, nil, m)
	s.Start()
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
	})

	server := NewServer(config.Default(), panickingRouter{r}, s, nil, m)
	client := dummy.NewMockClient([]byte("GET / HTTP/1.1\r\n\r\n"))
	server.Serve(context.Background(), client)
	require.True(t, strings.HasPrefix(client.Written(), "HTTP/1.1 500 Internal Server Error\r\n"))
}

type hijackable struct {
	*dummy.Client
	conn net.Conn
}

func (h hijackable) Hijack() (net.Conn, error) {
	return h.conn, nil
}

func TestHijack(t *testing.T) {
	conns := make(chan net.Conn, 1)
	r := getRouter(t)
	require.NoError(t, r.Handle(method.GET, "/raw", func(request *http.Request) *http.Response {
		conn, err := request.Hijack()
		if err != nil {
			return request.Respond().Error(err)
		}

		conns <- conn
		return request.Respond().String("never written")
	}))
	env := newEnv(t, r, config.Default())

	t.Run("handed over", func(t *testing.T) {
		server, peer := net.Pipe()
		defer peer.Close()
		defer server.Close()

		client := hijackable{
			Client: dummy.NewMockClient([]byte("GET /raw HTTP/1.1\r\n\r\nGET / HTTP/1.1\r\n\r\n")),
			conn:   server,
		}
		env.server.Serve(context.Background(), client)

		require.Equal(t, server, <-conns)
		require.Empty(t, client.Written())
		require.False(t, client.Closed())
		require.Zero(t, env.scheduler.ActiveUsers())
		require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Requests.WithLabelValues("GET", "101")))
	})

	t.Run("not supported", func(t *testing.T) {
		client := serve(env, []byte("GET /raw HTTP/1.1\r\n\r\nGET / HTTP/1.1\r\n\r\n"))
		written := client.Written()
		require.True(t, strings.HasPrefix(written, "HTTP/1.1 500 Internal Server Error\r\n"))
		require.Contains(t, written, "hello /")
	})
}
