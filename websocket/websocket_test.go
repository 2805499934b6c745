package websocket

import (
	"context"
	"net"
	stdhttp "net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/indigo-web/loom"
	"github.com/indigo-web/loom/client"
	"github.com/indigo-web/loom/http"
	"github.com/indigo-web/loom/http/method"
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/router/inbuilt"
	"github.com/stretchr/testify/require"
)

func echo(request *http.Request, conn *websocket.Conn) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if err = conn.WriteMessage(kind, append([]byte(request.Path+": "), data...)); err != nil {
			return
		}
	}
}

// start runs the app and returns its address along with the function stopping it.
func start(t *testing.T, r *inbuilt.Router) (addr string, stop func()) {
	bound := make(chan []net.Addr, 1)
	errCh := make(chan error, 1)
	app := loom.New("127.0.0.1:0").NotifyOnStart(func(addrs []net.Addr) {
		bound <- addrs
	})

	go func() {
		errCh <- app.Serve(r)
	}()

	var once sync.Once
	stop = func() {
		once.Do(func() {
			app.Stop()
			require.NoError(t, <-errCh)
		})
	}
	t.Cleanup(stop)

	select {
	case addrs := <-bound:
		return addrs[0].String(), stop
	case err := <-errCh:
		require.FailNow(t, "app failed to start", err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "app didn't start in time")
	}

	return "", stop
}

func getRouter(t *testing.T) *inbuilt.Router {
	r := inbuilt.New()
	require.NoError(t, r.Handle(method.GET, "/", func(request *http.Request) *http.Response {
		return request.Respond().String("plain")
	}))
	require.NoError(t, r.Handle(method.GET, "/echo", New(echo).Handle))
	require.NoError(t, r.Handle(method.GET, "/chat", New(echo, WithSubprotocols("chat", "superchat")).Handle))
	require.NoError(t, r.Handle(method.GET, "/trusted", New(echo, WithOriginCheck(func(origin string) bool {
		return origin == "http://trusted.example"
	})).Handle))

	return r
}

func dial(t *testing.T, url string, dialer *websocket.Dialer, header stdhttp.Header) *websocket.Conn {
	conn, response, err := dialer.Dial(url, header)
	require.NoError(t, err)
	require.Equal(t, stdhttp.StatusSwitchingProtocols, response.StatusCode)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}

func TestUpgrader(t *testing.T) {
	addr, _ := start(t, getRouter(t))

	t.Run("echo", func(t *testing.T) {
		conn := dial(t, "ws://"+addr+"/echo", new(websocket.Dialer), nil)

		for _, msg := range []string{"hello", "world"} {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
			kind, data, err := conn.ReadMessage()
			require.NoError(t, err)
			require.Equal(t, websocket.TextMessage, kind)
			require.Equal(t, "/echo: "+msg, string(data))
		}
	})

	t.Run("subprotocol", func(t *testing.T) {
		dialer := &websocket.Dialer{Subprotocols: []string{"superchat"}}
		conn := dial(t, "ws://"+addr+"/chat", dialer, nil)
		require.Equal(t, "superchat", conn.Subprotocol())
	})

	t.Run("trusted origin", func(t *testing.T) {
		header := stdhttp.Header{"Origin": {"http://trusted.example"}}
		dial(t, "ws://"+addr+"/trusted", new(websocket.Dialer), header)
	})

	t.Run("cross origin refused", func(t *testing.T) {
		header := stdhttp.Header{"Origin": {"http://elsewhere.example"}}
		_, response, err := new(websocket.Dialer).Dial("ws://"+addr+"/echo", header)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.Equal(t, stdhttp.StatusForbidden, response.StatusCode)
	})

	t.Run("not an upgrade", func(t *testing.T) {
		c, err := client.Dial(context.Background(), addr, nil)
		require.NoError(t, err)
		defer c.Close()

		response, err := c.Send(c.Request(method.GET, "/echo"))
		require.NoError(t, err)
		require.Equal(t, status.BadRequest, response.StatusCode)

		// the connection wasn't hijacked, so it keeps serving requests
		response, err = c.Send(c.Request(method.GET, "/"))
		require.NoError(t, err)
		require.Equal(t, "plain", response.Body.String())
	})
}

func TestShutdown(t *testing.T) {
	addr, stop := start(t, getRouter(t))
	conn := dial(t, "ws://"+addr+"/echo", new(websocket.Dialer), nil)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	require.NotErrorIs(t, err, os.ErrDeadlineExceeded, "session outlived the server")
}
