package http

import (
	"context"
	"net"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/loom/http/cookie"
	"github.com/indigo-web/loom/http/form"
	"github.com/indigo-web/loom/http/method"
	"github.com/indigo-web/loom/http/mime"
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/internal/codec"
	"github.com/indigo-web/loom/kv"
)

// Environment holds values assigned to the request by the dispatcher.
type Environment struct {
	// Route is the registered prefix the request was matched against.
	Route string
	// Error is set when the request is passed to an error handler.
	Error error
	// AllowedMethods is the value of the Allow header for method-not-allowed errors.
	AllowedMethods string
	// ConnID identifies the connection the request came from.
	ConnID string
}

// Request is an inbound HTTP request. It's owned by the connection it came from and is
// reused for the next request on it, so handlers must Clone it in order to keep it
// after returning.
type Request struct {
	Message
	Method   method.Method
	Path     string
	RawQuery string
	Remote   net.Addr
	Env      Environment
	// Ctx is cancelled once the connection is closed.
	Ctx context.Context

	query      *kv.Storage
	queryReady bool
	form       form.Form
	formReady  bool
	response   *Response
	hijacker   func() (net.Conn, error)
	hijacked   bool
}

var (
	// ErrNotHijackable is returned by Hijack if the transport can't give the
	// connection away.
	ErrNotHijackable = errors.New("connection can't be hijacked")
	// ErrHijacked is returned by Hijack if the connection was already taken over.
	ErrHijacked = errors.New("connection is already hijacked")
)

// NewRequest returns a request with a body limited by maxBody bytes.
func NewRequest(maxBody int) *Request {
	r := &Request{
		Message: newMessage(maxBody),
		Ctx:     context.Background(),
	}
	r.response = NewResponse().RespondTo(r)

	return r
}

// Query decodes the query string once and returns the parameters.
func (r *Request) Query() (*kv.Storage, error) {
	if r.queryReady {
		return r.query, nil
	}

	if r.query == nil {
		r.query = kv.New()
	}

	err := codec.ParseURLEncoded(r.RawQuery, true, func(key, value string) {
		r.query.Add(key, value)
	})
	if err != nil {
		r.query.Clear()
		return nil, err
	}

	r.queryReady = true
	return r.query, nil
}

// Cookies decodes the Cookie headers once and returns the jar.
func (r *Request) Cookies() (cookie.Jar, error) {
	return r.jar("Cookie", cookie.Request)
}

// Form decodes an urlencoded or multipart body once and returns its fields. Other
// content types fail with status.ErrUnsupportedMediaType.
func (r *Request) Form() (f form.Form, err error) {
	if r.formReady {
		return r.form, nil
	}

	contentType := r.Headers.Value("Content-Type")
	base, params := mime.Cut(contentType)

	switch {
	case r.Body.Len() == 0 && len(contentType) == 0:
	case mime.Is(base, mime.FormUrlencoded):
		err = codec.ParseURLEncoded(r.Body.String(), true, func(key, value string) {
			r.form = append(r.form, form.Data{Name: key, Value: value})
		})
	case mime.Is(base, mime.Multipart):
		boundary, _ := mime.Param(params, "boundary")
		r.form, err = codec.ParseMultipart(r.form, r.Body.String(), boundary, codec.MultipartDefaults{
			ContentType: mime.Plain,
			Charset:     mime.UTF8,
		})
	default:
		err = status.ErrUnsupportedMediaType
	}

	if err != nil {
		r.form = r.form[:0]
		return nil, err
	}

	r.formReady = true
	return r.form, nil
}

// Respond returns the response bound to the request, cleared from any previous use.
func (r *Request) Respond() *Response {
	return r.response.Reset().RespondTo(r)
}

// Hijack takes the connection over. The bytes the client sent after the request are
// read from it first. The server writes nothing once the handler returns, not even the
// response, and leaves closing the connection to the caller.
func (r *Request) Hijack() (net.Conn, error) {
	switch {
	case r.hijacked:
		return nil, ErrHijacked
	case r.hijacker == nil:
		return nil, ErrNotHijackable
	}

	conn, err := r.hijacker()
	if err != nil {
		return nil, errors.Wrap(err, "hijack")
	}

	r.hijacked = true
	return conn, nil
}

// Hijacked reports whether the connection was taken over by Hijack.
func (r *Request) Hijacked() bool {
	return r.hijacked
}

// SetHijacker enables Hijack, which then hands over the connection returned by fn.
// It's set by the server once per connection.
func (r *Request) SetHijacker(fn func() (net.Conn, error)) {
	r.hijacker = fn
}

// Clone makes a deep copy, which stays valid after the handler returns.
func (r *Request) Clone() *Request {
	c := &Request{
		Method:   r.Method,
		Path:     r.Path,
		RawQuery: r.RawQuery,
		Remote:   r.Remote,
		Env:      r.Env,
		Ctx:      r.Ctx,
	}
	r.Message.cloneInto(&c.Message)
	c.response = NewResponse().RespondTo(c)

	return c
}

// Reset prepares the request for the next message on the connection.
func (r *Request) Reset() {
	r.Message.reset()
	r.Method = method.Unknown
	r.Path = ""
	r.RawQuery = ""
	r.Env = Environment{ConnID: r.Env.ConnID}
	r.hijacked = false
	r.queryReady = false
	if r.query != nil {
		r.query.Clear()
	}
	r.formReady = false
	clear(r.form)
	r.form = r.form[:0]
}

// PrepareForSend renders the request head for sending it to a server. The returned
// slices are valid until the next call.
func (r *Request) PrepareForSend(buff []byte, keepAlive bool) (head []byte, body [][]byte) {
	buff = append(buff, r.Method.String()...)
	buff = append(buff, ' ')
	buff = append(buff, r.Path...)
	if len(r.RawQuery) > 0 {
		buff = append(buff, '?')
		buff = append(buff, r.RawQuery...)
	}
	buff = append(buff, ' ')
	buff = append(buff, r.Protocol.String()...)
	buff = append(buff, crlf...)

	hasBody := r.Body.Len() > 0 || r.Chunked.Is()
	buff = r.renderHeaders(buff, keepAlive, !hasBody, int64(r.Body.Len()))
	buff = append(buff, crlf...)

	return buff, r.Body.Segments()
}
