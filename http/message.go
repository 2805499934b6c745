package http

import (
	"strconv"
	"strings"

	"github.com/indigo-web/loom/http/cookie"
	"github.com/indigo-web/loom/http/proto"
	"github.com/indigo-web/loom/http/tribool"
	"github.com/indigo-web/loom/kv"
	"github.com/indigo-web/utils/strcomp"
)

const preallocHeaders = 10

// Message is the part shared by requests and responses.
type Message struct {
	Protocol proto.Proto
	Headers  *kv.Storage
	Body     *Body
	// Chunked stays Unknown until either the headers were parsed or the message was
	// prepared for sending.
	Chunked tribool.Tribool
	// KeepAlive is decided by the Connection header. When Unknown, the protocol
	// default applies.
	KeepAlive        tribool.Tribool
	ContentLength    int64
	HasContentLength bool
	// HasMissingPackets is set when the message was reconstructed from a capture that
	// lost some of its bytes. HasDataAfterMissingPackets is set if anything was parsed
	// after the gap.
	HasMissingPackets          bool
	HasDataAfterMissingPackets bool
	// Valid is set once the message was completely parsed without errors.
	Valid bool

	cookies      cookie.Jar
	cookiesReady bool
}

func newMessage(maxBody int) Message {
	return Message{
		Protocol: proto.HTTP11,
		Headers:  kv.NewPrealloc(preallocHeaders),
		Body:     NewBody(maxBody),
	}
}

// SetContentLength marks the length of the content as known.
func (m *Message) SetContentLength(n int64) {
	m.ContentLength = n
	m.HasContentLength = true
}

// IsKeepAlive decides whether the connection persists after the message. HTTP/1.1
// persists unless told otherwise, HTTP/1.0 only on explicit request.
func (m *Message) IsKeepAlive() bool {
	return m.KeepAlive.Or(m.Protocol == proto.HTTP11)
}

// ParseConnection decides KeepAlive by a Connection header value.
func (m *Message) ParseConnection(value string) {
	for len(value) > 0 {
		var token string
		token, value = cutToken(value)

		switch {
		case strcomp.EqualFold(token, "close"):
			m.KeepAlive = tribool.False
			return
		case strcomp.EqualFold(token, "keep-alive"):
			m.KeepAlive = tribool.True
		}
	}
}

func (m *Message) jar(header string, mode cookie.Mode) (cookie.Jar, error) {
	if m.cookiesReady {
		return m.cookies, nil
	}

	if m.cookies == nil {
		m.cookies = cookie.NewJar()
	}

	for value := range m.Headers.Values(header) {
		if err := cookie.Parse(m.cookies, value, mode); err != nil {
			m.cookies.Clear()
			return nil, err
		}
	}

	m.cookiesReady = true
	return m.cookies, nil
}

func (m *Message) reset() {
	m.Protocol = proto.HTTP11
	m.Headers.Clear()
	m.Body.Reset()
	m.Chunked = tribool.Unknown
	m.KeepAlive = tribool.Unknown
	m.ContentLength = 0
	m.HasContentLength = false
	m.HasMissingPackets = false
	m.HasDataAfterMissingPackets = false
	m.Valid = false
	m.cookiesReady = false
	if m.cookies != nil {
		m.cookies.Clear()
	}
}

func (m *Message) cloneInto(c *Message) {
	*c = *m
	c.Headers = m.Headers.Clone()
	c.Body = NewBody(m.Body.Limit())
	_, _ = c.Body.Write(m.Body.Bytes())
	c.cookies, c.cookiesReady = nil, false
}

// renderHeaders appends the header block following the start line. Framing and
// connection headers are always derived and never taken from Headers.
func (m *Message) renderHeaders(buff []byte, keepAlive, bodyless bool, length int64) []byte {
	for key, value := range m.Headers.Pairs() {
		if isDerived(key) {
			continue
		}

		buff = appendHeader(buff, key, value)
	}

	// HTTP/1.0 has no chunked coding, so a body of unknown length is delimited by
	// closing the connection instead
	chunkable := m.Protocol != proto.HTTP10

	switch {
	case bodyless:
		m.Chunked = tribool.False
	case length < 0 && !chunkable:
		m.Chunked = tribool.False
		m.KeepAlive = tribool.False
		keepAlive = false
	case chunkable && (m.Chunked.Is() || length < 0):
		m.Chunked = tribool.True
		buff = appendHeader(buff, "Transfer-Encoding", "chunked")
	default:
		m.Chunked = tribool.False
		m.SetContentLength(length)
		buff = append(buff, "Content-Length: "...)
		buff = strconv.AppendInt(buff, length, 10)
		buff = append(buff, crlf...)
	}

	if keepAlive {
		buff = appendHeader(buff, "Connection", "keep-alive")
	} else {
		buff = appendHeader(buff, "Connection", "close")
	}

	return buff
}

const crlf = "\r\n"

func appendHeader(buff []byte, key, value string) []byte {
	buff = append(buff, key...)
	buff = append(buff, ": "...)
	buff = append(buff, value...)
	return append(buff, crlf...)
}

func isDerived(key string) bool {
	return strcomp.EqualFold(key, "content-length") ||
		strcomp.EqualFold(key, "transfer-encoding") ||
		strcomp.EqualFold(key, "connection")
}

// cutToken returns the first comma-separated token, trimmed.
func cutToken(value string) (token, rest string) {
	token, rest, _ = strings.Cut(value, ",")
	return strings.Trim(token, " \t"), rest
}
