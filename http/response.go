package http

import (
	"io"
	"strconv"

	"github.com/indigo-web/loom/http/cookie"
	"github.com/indigo-web/loom/http/method"
	"github.com/indigo-web/loom/http/mime"
	"github.com/indigo-web/loom/http/proto"
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

// Attachment is a streamed body. Size is negative if unknown, in which case the body
// is sent chunked.
type Attachment struct {
	Reader io.Reader
	Size   int64
}

// Response is an HTTP response. Handlers usually obtain one by Request.Respond and
// build it with the chainable methods.
type Response struct {
	Message
	StatusCode status.Code
	// Reason is the status phrase. When empty, the phrase of StatusCode is sent.
	Reason string
	// RequestMethod is the method of the request being answered. Responses to HEAD
	// requests carry no content even when its length is advertised.
	RequestMethod method.Method

	attachment *Attachment
	outgoing   []cookie.Cookie
	head       []byte
}

// NewResponse returns an empty 200 OK response with no length limit on its body.
func NewResponse() *Response {
	return &Response{
		Message:    newMessage(0),
		StatusCode: status.OK,
	}
}

// NewResponseParsed returns a response used as the target of a parser, with its body
// limited by maxBody bytes.
func NewResponseParsed(maxBody int) *Response {
	r := NewResponse()
	r.Body.SetLimit(maxBody)
	return r
}

// RespondTo binds the response to the request, inheriting its method and protocol.
func (r *Response) RespondTo(request *Request) *Response {
	r.RequestMethod = request.Method
	if request.Protocol != proto.Unknown {
		r.Protocol = request.Protocol
	}

	return r
}

// Code sets the status code.
func (r *Response) Code(code status.Code) *Response {
	r.StatusCode = code
	return r
}

// Status sets a custom status phrase.
func (r *Response) Status(reason string) *Response {
	r.Reason = reason
	return r
}

// Header adds values to the key.
func (r *Response) Header(key string, values ...string) *Response {
	for _, value := range values {
		r.Headers.Add(key, value)
	}

	return r
}

// ContentType sets the Content-Type header, replacing the previous value.
func (r *Response) ContentType(value mime.MIME) *Response {
	r.Headers.Set("Content-Type", value)
	return r
}

// String replaces the body by the string. The string isn't copied.
func (r *Response) String(body string) *Response {
	return r.Bytes(uf.S2B(body))
}

// Bytes replaces the body by the slice without copying it.
func (r *Response) Bytes(body []byte) *Response {
	r.Body.Reset()
	_ = r.Body.WriteNoCopy(body)
	return r
}

// Write implements io.Writer by copying b into the body.
func (r *Response) Write(b []byte) (n int, err error) {
	return r.Body.Write(b)
}

// Attachment makes the response stream its body from the reader, ignoring the body
// set otherwise. If size is negative, chunked framing is used.
func (r *Response) Attachment(reader io.Reader, size int64) *Response {
	r.attachment = &Attachment{Reader: reader, Size: size}
	return r
}

// Stream returns the attachment, if any.
func (r *Response) Stream() *Attachment {
	return r.attachment
}

// Cookie adds cookies, rendered later as Set-Cookie headers.
func (r *Response) Cookie(cookies ...cookie.Cookie) *Response {
	r.outgoing = append(r.outgoing, cookies...)
	return r
}

// Cookies decodes the Set-Cookie headers of a parsed response. Attributes are dropped.
func (r *Response) Cookies() (cookie.Jar, error) {
	return r.jar("Set-Cookie", cookie.Response)
}

// TryJSON serializes the model into the body.
func (r *Response) TryJSON(model any) (*Response, error) {
	r.Body.Reset()
	stream := json.ConfigDefault.BorrowStream(r)
	stream.WriteVal(model)
	err := stream.Flush()
	json.ConfigDefault.ReturnStream(stream)

	return r.ContentType(mime.JSON), err
}

// JSON does the same as TryJSON, except the error is turned into the response.
func (r *Response) JSON(model any) *Response {
	resp, err := r.TryJSON(model)
	if err != nil {
		return r.Error(err)
	}

	return resp
}

// Error sets the code of the error. Errors that aren't status.HTTPError become
// 500 Internal Server Error, unless a code is passed explicitly.
func (r *Response) Error(err error, code ...status.Code) *Response {
	if err == nil {
		return r
	}

	c := status.CodeOf(err)
	if c == status.InternalServerError && len(code) > 0 {
		c = code[0]
	}

	return r.Code(c)
}

// Reset discards everything done with the response.
func (r *Response) Reset() *Response {
	r.Message.reset()
	r.StatusCode = status.OK
	r.Reason = ""
	r.RequestMethod = method.Unknown
	r.attachment = nil
	clear(r.outgoing)
	r.outgoing = r.outgoing[:0]

	return r
}

// PrepareForSend derives the framing and connection headers and renders the response
// head. The body is returned as the segments already held, so nothing is copied; for
// responses with an attachment or to HEAD requests no segments are returned. The head
// is valid until the next call.
func (r *Response) PrepareForSend(keepAlive bool) (head []byte, body [][]byte) {
	buff := r.head[:0]
	buff = append(buff, r.Protocol.String()...)
	buff = append(buff, ' ')
	buff = strconv.AppendUint(buff, uint64(r.StatusCode), 10)
	buff = append(buff, ' ')
	if len(r.Reason) > 0 {
		buff = append(buff, r.Reason...)
	} else {
		buff = append(buff, status.Text(r.StatusCode)...)
	}
	buff = append(buff, crlf...)

	length := int64(r.Body.Len())
	if r.attachment != nil {
		length = r.attachment.Size
	}

	buff = r.renderHeaders(buff, keepAlive, status.Bodyless(r.StatusCode), length)

	for _, c := range r.outgoing {
		buff = append(buff, "Set-Cookie: "...)
		buff = c.Render(buff)
		buff = append(buff, crlf...)
	}

	buff = append(buff, crlf...)
	r.head = buff

	if r.RequestMethod == method.HEAD || status.Bodyless(r.StatusCode) || r.attachment != nil {
		return buff, nil
	}

	return buff, r.Body.Segments()
}
