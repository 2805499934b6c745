package http1

import (
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/loom/http"
	"github.com/indigo-web/loom/http/method"
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/http/tribool"
	"github.com/indigo-web/loom/transport/dummy"
	"github.com/stretchr/testify/require"
)

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

// parseResponse parses what was written as a response to the method.
func parseResponse(t *testing.T, data string, m method.Method) *http.Response {
	p, response := getResponseParser(defaultLimits())
	p.SetRequestMethod(m)
	result, rest, err := feedPartially(p, []byte(data), len(data))
	require.NoError(t, err)
	require.Equal(t, Completed, result)
	require.Empty(t, rest)

	return response
}

func TestWriter(t *testing.T) {
	t.Run("fixed length", func(t *testing.T) {
		client := dummy.NewNopClient()
		writer := NewWriter(client, 16)
		response := http.NewResponse().Header("Hello", "world").String("Hello, world!")

		require.NoError(t, writer.Write(response, true))
		require.Equal(t,
			"HTTP/1.1 200 OK\r\nHello: world\r\nContent-Length: 13\r\nConnection: keep-alive\r\n\r\nHello, world!",
			client.Written(),
		)
	})

	t.Run("chunked segments", func(t *testing.T) {
		client := dummy.NewNopClient()
		writer := NewWriter(client, 16)
		response := http.NewResponse()
		response.Chunked = tribool.True
		_, _ = response.Write([]byte("Hello, "))
		require.NoError(t, response.Body.WriteNoCopy([]byte("world!")))

		require.NoError(t, writer.Write(response, false))
		want := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\nConnection: close\r\n\r\n" +
			"7\r\nHello, \r\n6\r\nworld!\r\n0\r\n\r\n"
		require.Equal(t, want, client.Written())
		require.Equal(t, "Hello, world!", parseResponse(t, client.Written(), method.GET).Body.String())
	})

	t.Run("empty chunked", func(t *testing.T) {
		client := dummy.NewNopClient()
		response := http.NewResponse()
		response.Chunked = tribool.True

		require.NoError(t, NewWriter(client, 16).Write(response, true))
		require.True(t, strings.HasSuffix(client.Written(), "\r\n\r\n0\r\n\r\n"))
	})

	t.Run("sized attachment", func(t *testing.T) {
		client := dummy.NewNopClient()
		body := strings.Repeat("abc", 20)
		reader := &closeTracker{Reader: strings.NewReader(body)}
		response := http.NewResponse().Attachment(reader, int64(len(body)))

		require.NoError(t, NewWriter(client, 16).Write(response, true))
		require.Contains(t, client.Written(), "Content-Length: 60\r\n")
		require.Equal(t, body, parseResponse(t, client.Written(), method.GET).Body.String())
		require.True(t, reader.closed)
	})

	t.Run("unsized attachment", func(t *testing.T) {
		client := dummy.NewNopClient()
		body := strings.Repeat("abc", 20)
		response := http.NewResponse().Attachment(strings.NewReader(body), -1)

		require.NoError(t, NewWriter(client, 16).Write(response, true))
		require.Contains(t, client.Written(), "Transfer-Encoding: chunked\r\n")
		require.Equal(t, body, parseResponse(t, client.Written(), method.GET).Body.String())
	})

	t.Run("long attachment into small buffer", func(t *testing.T) {
		const buffSize = 64
		client := dummy.NewNopClient()
		payload := strings.Repeat("abcdefgh", 10*buffSize)
		response := http.NewResponse().Attachment(strings.NewReader(payload), -1)

		require.NoError(t, NewWriter(client, buffSize).Write(response, true))

		_, encoded, found := strings.Cut(client.Written(), "\r\n\r\n")
		require.True(t, found)

		// decoded by an independent implementation of the coding
		parser := chunkedbody.NewParser(chunkedbody.DefaultSettings())
		data := []byte(encoded)
		var decoded []byte
		for len(data) > 0 {
			chunk, extra, err := parser.Parse(data, false)
			if err != nil {
				require.EqualError(t, err, io.EOF.Error())
				break
			}

			decoded = append(decoded, chunk...)
			data = extra
		}

		require.Equal(t, payload, string(decoded))
	})

	t.Run("short attachment", func(t *testing.T) {
		client := dummy.NewNopClient()
		response := http.NewResponse().Attachment(strings.NewReader("abc"), 10)

		err := NewWriter(client, 16).Write(response, true)
		require.True(t, errors.Is(err, status.ErrCloseConnection))
	})

	t.Run("HEAD", func(t *testing.T) {
		client := dummy.NewNopClient()
		request := http.NewRequest(0)
		request.Method = method.HEAD
		reader := &closeTracker{Reader: strings.NewReader("abc")}
		response := request.Respond().String("Hello").Attachment(reader, 3)

		require.NoError(t, NewWriter(client, 16).Write(response, true))
		require.True(t, strings.HasSuffix(client.Written(), "Content-Length: 3\r\nConnection: keep-alive\r\n\r\n"))
		require.True(t, reader.closed)
		require.Zero(t, parseResponse(t, client.Written(), method.HEAD).Body.Len())
	})

	t.Run("no content", func(t *testing.T) {
		client := dummy.NewNopClient()
		response := http.NewResponse().Code(status.NoContent).String("ignored")

		require.NoError(t, NewWriter(client, 16).Write(response, true))
		require.Equal(t, "HTTP/1.1 204 No Content\r\nConnection: keep-alive\r\n\r\n", client.Written())
	})

	t.Run("continue", func(t *testing.T) {
		client := dummy.NewNopClient()
		require.NoError(t, NewWriter(client, 16).WriteContinue())
		require.Equal(t, "HTTP/1.1 100 Continue\r\n\r\n", client.Written())
	})

	t.Run("transport failure", func(t *testing.T) {
		cause := errors.New("broken pipe")
		client := dummy.NewNopClient().FailWrites(cause)

		err := NewWriter(client, 16).Write(http.NewResponse().String("hello"), true)
		require.True(t, errors.Is(err, status.ErrTransportWrite))
		require.True(t, errors.Is(err, cause))
	})

	t.Run("request round trip", func(t *testing.T) {
		client := dummy.NewNopClient()
		request := http.NewRequest(0)
		request.Method = method.POST
		request.Path = "/upload"
		request.RawQuery = "a=b"
		request.Chunked = tribool.True
		request.Headers.Add("X-Id", "42")
		_, _ = request.Body.WriteString("first ")
		_, _ = request.Body.WriteString("second")

		require.NoError(t, NewWriter(client, 16).WriteRequest(request, true))

		p, parsed := getParser(defaultLimits())
		written := []byte(client.Written())
		result, _, err := feedPartially(p, written, 7)
		require.NoError(t, err)
		require.Equal(t, Completed, result)
		require.Equal(t, method.POST, parsed.Method)
		require.Equal(t, "/upload", parsed.Path)
		require.Equal(t, "a=b", parsed.RawQuery)
		require.Equal(t, "42", parsed.Headers.Value("x-id"))
		require.Equal(t, "first second", parsed.Body.String())
	})
}
