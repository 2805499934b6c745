package http1

import (
	"bytes"
	"io"
	"strings"

	"github.com/indigo-web/loom/config"
	"github.com/indigo-web/loom/http"
	"github.com/indigo-web/loom/http/method"
	"github.com/indigo-web/loom/http/mime"
	"github.com/indigo-web/loom/http/proto"
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/http/tribool"
	"github.com/indigo-web/loom/internal/buffer"
	"github.com/indigo-web/loom/internal/codec"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
)

// Result is the outcome of a single Feed call.
type Result uint8

const (
	// Pending means the input was consumed entirely and more is needed.
	Pending Result = iota + 1
	// HeadersCompleted is returned once per message, after the empty line terminating
	// the header section. The body, if any, is parsed by subsequent calls.
	HeadersCompleted
	// Completed means the message is complete. Bytes past its end are returned as rest.
	Completed
	// Error is terminal until Reset.
	Error
)

// Kind selects whether requests or responses are parsed.
type Kind uint8

const (
	Requests Kind = iota
	Responses
)

// Stage is the observable position of the parser in the message.
type Stage uint8

const (
	StageStartLine Stage = iota
	StageResource
	StageQuery
	StageHeaderName
	StageHeaderValue
	StageHeadersComplete
	StageBodyFixedLength
	StageBodyChunkSize
	StageBodyChunkData
	StageBodyChunkTrailer
	StageBodyUntilClose
	StageMessageComplete
	StageError
)

type parserState uint8

const (
	eMethod parserState = iota + 1
	ePath
	eQuery
	eProto
	eStartLineLF
	eRespProto
	eRespCode
	eRespReason
	eHeaderName
	eHeaderValue
	eHeaderValueLF
	eHeadersEndLF
	eHeadersComplete
	eBodyFixed
	eChunkLength
	eChunkExt
	eChunkLengthLF
	eChunkData
	eChunkDataCR
	eChunkDataLF
	eBodyUntilClose
	eComplete
	eError
)

const (
	maxMethodLength = len("CONNECT")
	maxProtoLength  = len("HTTP/x.x")
)

// Limits bound the memory a single message may take. Zero MaxHeaders and MaxStream
// disable their limits, while zero MaxContent refuses any buffered body byte.
type Limits struct {
	MaxHeaderName  int
	MaxHeaderValue int
	MaxHeaders     int
	MaxResource    int
	// MaxContent bounds bodies buffered into the message.
	MaxContent int64
	// MaxStream bounds bodies delivered to a sink.
	MaxStream int64
}

// LimitsOf translates the configuration into parser limits.
func LimitsOf(cfg *config.Config) Limits {
	return Limits{
		MaxHeaderName:  cfg.Headers.MaxNameLength,
		MaxHeaderValue: cfg.Headers.MaxValueLength,
		MaxHeaders:     cfg.Headers.Number,
		MaxResource:    cfg.URI.MaxLength,
		MaxContent:     cfg.Body.MaxContentLength,
		MaxStream:      cfg.Body.MaxStreamLength,
	}
}

// Cursor is the whole state carried between Feed calls.
type Cursor struct {
	Limits Limits
	// Boundary is the multipart boundary token declared by Content-Type, if any.
	Boundary string
	// ContentRemaining is the number of bytes left of a fixed-length body.
	ContentRemaining int64
	// ChunkRemaining is the size of the chunk being parsed, or what's left of it.
	ChunkRemaining uint64
	// ChunkDigits is the number of size digits of the chunk parsed so far.
	ChunkDigits int
	// Received is the number of body bytes delivered so far.
	Received int64

	state    parserState
	next     parserState
	tokens   *buffer.Buffer
	header   *buffer.Buffer
	name     []byte
	digits   int
	ext      int
	headers  int
	trailer  bool
	gap      bool
	started  bool
	err      error
	initial  parserState
	sink     io.Writer
	bodyless bool
}

// Stage maps the internal state onto the stage of the message.
func (c *Cursor) Stage() Stage {
	switch c.state {
	case eMethod, eProto, eStartLineLF, eRespProto, eRespCode, eRespReason:
		return StageStartLine
	case ePath:
		return StageResource
	case eQuery:
		return StageQuery
	case eHeaderName, eHeadersEndLF:
		if c.trailer {
			return StageBodyChunkTrailer
		}

		return StageHeaderName
	case eHeaderValue, eHeaderValueLF:
		if c.trailer {
			return StageBodyChunkTrailer
		}

		return StageHeaderValue
	case eHeadersComplete:
		return StageHeadersComplete
	case eBodyFixed:
		return StageBodyFixedLength
	case eChunkLength, eChunkExt, eChunkLengthLF:
		return StageBodyChunkSize
	case eChunkData, eChunkDataCR, eChunkDataLF:
		return StageBodyChunkData
	case eBodyUntilClose:
		return StageBodyUntilClose
	case eComplete:
		return StageMessageComplete
	default:
		return StageError
	}
}

// Err returns the error the parser stopped at.
func (c *Cursor) Err() error {
	return c.err
}

// Buffered returns the number of bytes held in the partial-token accumulators.
func (c *Cursor) Buffered() int {
	return c.tokens.Len() + c.header.Len()
}

// Parser is a resumable HTTP/1.x message parser. It consumes arbitrarily fragmented
// input and never needs consumed bytes to be presented again.
type Parser struct {
	Cursor
	kind          Kind
	msg           *http.Message
	request       *http.Request
	response      *http.Response
	requestMethod method.Method
}

func newParser(kind Kind, limits Limits) *Parser {
	initial := eMethod
	if kind == Responses {
		initial = eRespProto
	}

	tokensMax := max(limits.MaxResource, limits.MaxHeaderValue, maxProtoLength)

	return &Parser{
		kind: kind,
		Cursor: Cursor{
			Limits:  limits,
			state:   initial,
			initial: initial,
			tokens:  buffer.New(64, firstTokenLength(kind), tokensMax),
			header:  buffer.New(128, limits.MaxHeaderName, limits.MaxHeaderName+limits.MaxHeaderValue),
		},
	}
}

// NewRequestParser returns a parser filling the request.
func NewRequestParser(request *http.Request, limits Limits) *Parser {
	p := newParser(Requests, limits)
	p.request, p.msg = request, &request.Message

	return p
}

// NewResponseParser returns a parser filling the response.
func NewResponseParser(response *http.Response, limits Limits) *Parser {
	p := newParser(Responses, limits)
	p.response, p.msg = response, &response.Message

	return p
}

// SetRequestMethod tells a response parser which method the response answers, as
// responses to HEAD carry no body regardless of their headers.
func (p *Parser) SetRequestMethod(m method.Method) {
	p.requestMethod = m
}

// SetSink redirects the body of the current message into w instead of the message
// body. It must be called after HeadersCompleted and before the next Feed. The body
// is then bounded by MaxStream instead of MaxContent.
func (p *Parser) SetSink(w io.Writer) {
	p.sink = w
}

// Started reports whether any byte of the current message was consumed.
func (p *Parser) Started() bool {
	return p.started
}

// Feed consumes the data and advances the message.
func (p *Parser) Feed(data []byte) (result Result, rest []byte, err error) {
	if len(data) > 0 {
		p.started = true
		if p.gap {
			p.msg.HasDataAfterMissingPackets = true
		}
	}

	switch p.state {
	case eMethod:
		goto method
	case ePath:
		goto path
	case eQuery:
		goto query
	case eProto:
		goto protocol
	case eStartLineLF:
		goto startLineLF
	case eRespProto:
		goto respProto
	case eRespCode:
		goto respCode
	case eRespReason:
		goto respReason
	case eHeaderName:
		goto headerName
	case eHeaderValue:
		goto headerValue
	case eHeaderValueLF:
		goto headerValueLF
	case eHeadersEndLF:
		goto headersEndLF
	case eHeadersComplete:
		return p.startBody(data)
	case eBodyFixed:
		return p.parseFixed(data)
	case eChunkLength, eChunkExt, eChunkLengthLF, eChunkData, eChunkDataCR, eChunkDataLF:
		return p.parseChunks(data)
	case eBodyUntilClose:
		if err = p.deliver(data); err != nil {
			return p.fail(err)
		}

		return Pending, nil, nil
	case eComplete:
		return Completed, data, nil
	default:
		return Error, nil, p.err
	}

method:
	// empty lines preceding the request line are ignored
	if p.tokens.SegmentLength() == 0 {
		for len(data) > 0 && (data[0] == '\r' || data[0] == '\n') {
			data = data[1:]
		}

		if len(data) == 0 {
			p.started = false
			return Pending, nil, nil
		}
	}

	for i, c := range data {
		if c == ' ' {
			if !p.tokens.Append(data[:i]) {
				return p.fail(status.ErrMethodNotImplemented)
			}

			if err = p.finishMethod(); err != nil {
				return p.fail(err)
			}

			data = data[i+1:]
			p.state = ePath
			goto path
		}

		if !isToken(c) {
			return p.fail(status.ErrMalformedStartLine)
		}

		if p.tokens.SegmentLength()+i+1 > maxMethodLength {
			return p.fail(status.ErrMethodNotImplemented)
		}
	}

	p.tokens.Append(data)
	return Pending, nil, nil

path:
	for i, c := range data {
		switch {
		case c == ' ' || c == '?':
			p.tokens.Append(data[:i])
			if err = p.finishPath(); err != nil {
				return p.fail(err)
			}

			data = data[i+1:]
			if c == '?' {
				p.state = eQuery
				goto query
			}

			p.state = eProto
			goto protocol
		case c < 0x20 || c == 0x7f:
			return p.fail(status.ErrMalformedStartLine)
		}

		if p.tokens.SegmentLength()+i+1 > p.Limits.MaxResource {
			return p.fail(status.ErrResourceTooLong)
		}
	}

	p.tokens.Append(data)
	return Pending, nil, nil

query:
	for i, c := range data {
		switch {
		case c == ' ':
			p.tokens.Append(data[:i])
			p.request.RawQuery = string(p.tokens.Finish())
			p.resetTokens(maxProtoLength)

			data = data[i+1:]
			p.state = eProto
			goto protocol
		case c < 0x20 || c == 0x7f:
			return p.fail(status.ErrMalformedStartLine)
		}

		if p.tokens.SegmentLength()+i+1 > p.Limits.MaxResource {
			return p.fail(status.ErrResourceTooLong)
		}
	}

	p.tokens.Append(data)
	return Pending, nil, nil

protocol:
	for i, c := range data {
		if c == '\r' || c == '\n' {
			p.tokens.Append(data[:i])
			if err = p.finishProto(); err != nil {
				return p.fail(err)
			}

			data = data[i+1:]
			if c == '\n' {
				p.state = eHeaderName
				goto headerName
			}

			p.state = eStartLineLF
			goto startLineLF
		}

		if p.tokens.SegmentLength()+i+1 > maxProtoLength {
			return p.fail(status.ErrMalformedStartLine)
		}
	}

	p.tokens.Append(data)
	return Pending, nil, nil

startLineLF:
	if len(data) == 0 {
		return Pending, nil, nil
	}

	if data[0] != '\n' {
		return p.fail(status.ErrMalformedStartLine)
	}

	data = data[1:]
	p.state = eHeaderName
	goto headerName

respProto:
	for i, c := range data {
		if c == ' ' {
			p.tokens.Append(data[:i])
			if err = p.finishProto(); err != nil {
				return p.fail(err)
			}

			data = data[i+1:]
			p.digits = 0
			p.response.StatusCode = 0
			p.state = eRespCode
			goto respCode
		}

		if p.tokens.SegmentLength()+i+1 > maxProtoLength {
			return p.fail(status.ErrMalformedStartLine)
		}
	}

	p.tokens.Append(data)
	return Pending, nil, nil

respCode:
	for i, c := range data {
		if c == ' ' || c == '\r' || c == '\n' {
			if p.digits != 3 {
				return p.fail(status.ErrMalformedStartLine)
			}

			data = data[i+1:]

			switch c {
			case ' ':
				p.resetTokens(p.Limits.MaxHeaderValue)
				p.state = eRespReason
				goto respReason
			case '\r':
				p.state = eStartLineLF
				goto startLineLF
			default:
				p.state = eHeaderName
				goto headerName
			}
		}

		if c < '0' || c > '9' || p.digits == 3 {
			return p.fail(status.ErrMalformedStartLine)
		}

		p.response.StatusCode = p.response.StatusCode*10 + status.Code(c-'0')
		p.digits++
	}

	return Pending, nil, nil

respReason:
	for i, c := range data {
		if c == '\r' || c == '\n' {
			p.tokens.Append(data[:i])
			p.response.Reason = string(p.tokens.Finish())
			p.tokens.Clear()

			data = data[i+1:]
			if c == '\n' {
				p.state = eHeaderName
				goto headerName
			}

			p.state = eStartLineLF
			goto startLineLF
		}

		if p.tokens.SegmentLength()+i+1 > p.Limits.MaxHeaderValue {
			return p.fail(status.ErrMalformedStartLine)
		}
	}

	p.tokens.Append(data)
	return Pending, nil, nil

headerName:
	for i, c := range data {
		switch {
		case c == ':':
			if p.header.SegmentLength()+i == 0 {
				return p.fail(status.ErrInvalidHeaderSyntax)
			}

			p.header.Append(data[:i])
			p.name = p.header.Finish()
			p.header.SetSegmentLimit(p.Limits.MaxHeaderValue)

			data = data[i+1:]
			p.state = eHeaderValue
			goto headerValue
		case (c == '\r' || c == '\n') && p.header.SegmentLength()+i == 0:
			data = data[i+1:]
			if c == '\n' {
				goto headersEnd
			}

			p.state = eHeadersEndLF
			goto headersEndLF
		case !isToken(c):
			return p.fail(status.ErrInvalidHeaderSyntax)
		}

		if p.header.SegmentLength()+i+1 > p.Limits.MaxHeaderName {
			return p.fail(status.ErrHeaderTooLong)
		}
	}

	p.header.Append(data)
	return Pending, nil, nil

headerValue:
	if p.header.SegmentLength() == 0 {
		for len(data) > 0 && (data[0] == ' ' || data[0] == '\t') {
			data = data[1:]
		}
	}

	for i, c := range data {
		switch {
		case c == '\r' || c == '\n':
			p.header.Append(data[:i])
			if err = p.finishHeader(); err != nil {
				return p.fail(err)
			}

			data = data[i+1:]
			if c == '\n' {
				p.state = eHeaderName
				goto headerName
			}

			p.state = eHeaderValueLF
			goto headerValueLF
		case (c < 0x20 && c != '\t') || c == 0x7f:
			return p.fail(status.ErrInvalidHeaderSyntax)
		}

		if p.header.SegmentLength()+i+1 > p.Limits.MaxHeaderValue {
			return p.fail(status.ErrHeaderTooLong)
		}
	}

	p.header.Append(data)
	return Pending, nil, nil

headerValueLF:
	if len(data) == 0 {
		return Pending, nil, nil
	}

	if data[0] != '\n' {
		return p.fail(status.ErrInvalidHeaderSyntax)
	}

	data = data[1:]
	p.state = eHeaderName
	goto headerName

headersEndLF:
	if len(data) == 0 {
		return Pending, nil, nil
	}

	if data[0] != '\n' {
		return p.fail(status.ErrInvalidHeaderSyntax)
	}

	data = data[1:]

headersEnd:
	if p.trailer {
		return p.complete(data)
	}

	p.decideFraming()
	p.state = eHeadersComplete
	return HeadersCompleted, data, nil
}

func (p *Parser) finishMethod() error {
	token := p.tokens.Finish()
	if len(token) == 0 {
		return status.ErrMalformedStartLine
	}

	p.request.Method = method.Parse(uf.B2S(token))
	if p.request.Method == method.Unknown {
		return status.ErrMethodNotImplemented
	}

	p.resetTokens(p.Limits.MaxResource)
	return nil
}

func (p *Parser) finishPath() error {
	token := p.tokens.Finish()
	if len(token) == 0 {
		return status.ErrMalformedStartLine
	}

	path, err := codec.Unescape(string(token), false)
	if err != nil {
		return err
	}

	p.request.Path = path
	p.resetTokens(p.Limits.MaxResource)

	return nil
}

func (p *Parser) finishProto() error {
	p.msg.Protocol = proto.FromBytes(p.tokens.Finish())
	if p.msg.Protocol == proto.Unknown {
		return status.ErrHTTPVersionNotSupported
	}

	p.tokens.Clear()
	return nil
}

func (p *Parser) resetTokens(limit int) {
	p.tokens.Clear()
	p.tokens.SetSegmentLimit(limit)
}

func (p *Parser) finishHeader() error {
	p.headers++
	if p.Limits.MaxHeaders > 0 && p.headers > p.Limits.MaxHeaders {
		return status.ErrTooManyHeaders
	}

	key := string(p.name)
	value := string(bytes.TrimRight(p.header.Finish(), " \t"))
	p.header.Clear()
	p.header.SetSegmentLimit(p.Limits.MaxHeaderName)
	p.name = nil

	p.msg.Headers.Add(key, value)
	if p.trailer {
		return nil
	}

	return p.inspectHeader(key, value)
}

// inspectHeader applies the headers affecting how the message is parsed.
func (p *Parser) inspectHeader(key, value string) error {
	switch {
	case strcomp.EqualFold(key, "content-length"):
		length, ok := parseContentLength(value)
		if !ok || (p.msg.HasContentLength && p.msg.ContentLength != length) {
			return status.ErrBadContentLength
		}

		p.msg.SetContentLength(length)
	case strcomp.EqualFold(key, "transfer-encoding"):
		p.msg.Chunked = tribool.Of(isChunked(value))
		if p.kind == Requests && !p.msg.Chunked.Is() {
			// the length of such a request can't be determined
			return status.ErrInvalidHeaderSyntax
		}
	case strcomp.EqualFold(key, "connection"):
		p.msg.ParseConnection(value)
	case strcomp.EqualFold(key, "content-type"):
		if base, params := mime.Cut(value); mime.Is(base, mime.Multipart) {
			p.Boundary, _ = mime.Param(params, "boundary")
		}
	}

	return nil
}

func (p *Parser) decideFraming() {
	if p.kind == Responses {
		p.bodyless = status.Bodyless(p.response.StatusCode) || p.requestMethod == method.HEAD
	}

	switch {
	case p.bodyless:
		p.next = eComplete
	case p.msg.Chunked.Is():
		p.next = eChunkLength
	case p.msg.HasContentLength:
		p.ContentRemaining = p.msg.ContentLength
		p.next = eBodyFixed
	case p.kind == Responses:
		// the body lasts until the connection is closed
		p.msg.KeepAlive = tribool.False
		p.next = eBodyUntilClose
	default:
		p.next = eComplete
	}

	if !p.msg.Chunked.Known() {
		p.msg.Chunked = tribool.False
	}
}

func (p *Parser) startBody(data []byte) (Result, []byte, error) {
	if p.sink == nil {
		p.msg.Body.SetLimit(int(p.Limits.MaxContent))
	}

	switch p.next {
	case eComplete:
		return p.complete(data)
	case eBodyFixed:
		if err := p.CheckLength(); err != nil {
			return p.fail(err)
		}

		if p.ContentRemaining == 0 {
			return p.complete(data)
		}
	}

	p.state = p.next
	return p.Feed(data)
}

func (p *Parser) parseFixed(data []byte) (Result, []byte, error) {
	n := min(int64(len(data)), p.ContentRemaining)
	if err := p.deliver(data[:n]); err != nil {
		return p.fail(err)
	}

	p.ContentRemaining -= n
	if p.ContentRemaining == 0 {
		return p.complete(data[n:])
	}

	return Pending, nil, nil
}

// CheckLength fails if the declared Content-Length exceeds the limit applying to the
// body. As the limit depends on the sink, it's only meaningful between HeadersCompleted
// and the next Feed, where it lets the caller refuse the body before asking for it.
func (p *Parser) CheckLength() error {
	if p.next != eBodyFixed {
		return nil
	}

	if limit, bounded := p.bodyLimit(); bounded && p.ContentRemaining > limit {
		return status.ErrContentTooLong
	}

	return nil
}

// bodyLimit returns the limit of the body. Buffered bodies are always bounded, streamed
// ones only if MaxStream is set.
func (p *Parser) bodyLimit() (limit int64, bounded bool) {
	if p.sink != nil {
		return p.Limits.MaxStream, p.Limits.MaxStream > 0
	}

	return p.Limits.MaxContent, true
}

func (p *Parser) deliver(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	p.Received += int64(len(data))
	if limit, bounded := p.bodyLimit(); bounded && p.Received > limit {
		return status.ErrContentTooLong
	}

	if p.sink != nil {
		_, err := p.sink.Write(data)
		return err
	}

	_, err := p.msg.Body.Write(data)
	return err
}

var zeroes [512]byte

// SkipMissing accounts a gap of n bytes lost by a capture source. Gaps are only
// recoverable inside a body, where they are filled with zero bytes, so the length
// invariants and limits keep holding. A gap anywhere else fails the message, and so
// does a negative n.
func (p *Parser) SkipMissing(n int64) (Result, error) {
	p.msg.HasMissingPackets = true
	p.gap = true

	if n < 0 {
		result, _, err := p.fail(status.ErrMissingData)
		return result, err
	}

	if p.state == eHeadersComplete {
		// the headers are done, so the gap opens the body, if there's any
		result, _, err := p.startBody(nil)
		switch result {
		case Pending:
		case Completed:
			result, _, err = p.fail(status.ErrMissingData)
			return result, err
		default:
			return result, err
		}
	}

	var fill int64
	switch p.state {
	case eBodyFixed:
		fill = min(n, p.ContentRemaining)
	case eChunkData:
		if uint64(n) > p.ChunkRemaining {
			result, _, err := p.fail(status.ErrMissingData)
			return result, err
		}

		fill = n
	case eBodyUntilClose:
		fill = n
	default:
		result, _, err := p.fail(status.ErrMissingData)
		return result, err
	}

	for remaining := fill; remaining > 0; {
		chunk := min(remaining, int64(len(zeroes)))
		if err := p.deliver(zeroes[:chunk]); err != nil {
			result, _, err := p.fail(err)
			return result, err
		}

		remaining -= chunk
	}

	switch p.state {
	case eBodyFixed:
		p.ContentRemaining -= fill
		if p.ContentRemaining == 0 {
			result, _, err := p.complete(nil)
			return result, err
		}
	case eChunkData:
		p.ChunkRemaining -= uint64(fill)
		if p.ChunkRemaining == 0 {
			p.state = eChunkDataCR
		}
	}

	return Pending, nil
}

// Finish tells the parser the stream has ended. Messages delimited by the connection
// close are completed, any other started message is premature.
func (p *Parser) Finish() (Result, error) {
	switch p.state {
	case eBodyUntilClose, eComplete:
		result, _, err := p.complete(nil)
		return result, err
	case eError:
		return Error, p.err
	}

	result, _, err := p.fail(status.ErrPrematureClose)
	return result, err
}

func (p *Parser) complete(rest []byte) (Result, []byte, error) {
	p.state = eComplete
	p.msg.Valid = !p.msg.HasMissingPackets
	return Completed, rest, nil
}

func (p *Parser) fail(err error) (Result, []byte, error) {
	p.state = eError
	p.err = err
	p.msg.Valid = false
	return Error, nil, err
}

// Reset returns the parser to the start line of the next message, keeping the
// allocated accumulators. The message is not reset.
func (p *Parser) Reset() {
	p.state = p.initial
	p.next = 0
	p.tokens.Clear()
	p.tokens.SetSegmentLimit(firstTokenLength(p.kind))
	p.header.Clear()
	p.header.SetSegmentLimit(p.Limits.MaxHeaderName)
	p.name = nil
	p.digits = 0
	p.ext = 0
	p.headers = 0
	p.trailer = false
	p.gap = false
	p.started = false
	p.err = nil
	p.sink = nil
	p.bodyless = false
	p.Boundary = ""
	p.ContentRemaining = 0
	p.ChunkRemaining = 0
	p.ChunkDigits = 0
	p.Received = 0
}

func firstTokenLength(kind Kind) int {
	if kind == Responses {
		return maxProtoLength
	}

	return maxMethodLength
}

func parseContentLength(value string) (length int64, ok bool) {
	if len(value) == 0 || len(value) > 18 {
		return 0, false
	}

	for i := 0; i < len(value); i++ {
		c := value[i]
		if c < '0' || c > '9' {
			return 0, false
		}

		length = length*10 + int64(c-'0')
	}

	return length, true
}

// isChunked reports whether chunked is the final transfer coding.
func isChunked(value string) bool {
	if comma := strings.LastIndexByte(value, ','); comma != -1 {
		value = value[comma+1:]
	}

	return strcomp.EqualFold(strings.Trim(value, " \t"), "chunked")
}

// tokens are defined by RFC 9110, 5.6.2
var tokenChars = func() (table [256]bool) {
	for c := '0'; c <= '9'; c++ {
		table[c] = true
	}

	for c := 'a'; c <= 'z'; c++ {
		table[c] = true
		table[c-'a'+'A'] = true
	}

	for _, c := range []byte("!#$%&'*+-.^_`|~") {
		table[c] = true
	}

	return table
}()

func isToken(c byte) bool {
	return tokenChars[c]
}
