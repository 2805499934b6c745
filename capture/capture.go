// Package capture reconstructs HTTP/1.x messages from one direction of a captured
// conversation, such as a packet capture, where segments may be lost. Bodies with
// missing bytes are filled with zeroes and the message is marked accordingly.
package capture

import (
	"github.com/cockroachdb/errors"
	"github.com/indigo-web/loom/config"
	"github.com/indigo-web/loom/http"
	"github.com/indigo-web/loom/http/method"
	"github.com/indigo-web/loom/internal/protocol/http1"
)

// Stream feeds the captured bytes into the parser and hands every complete message
// to the callback. The message passed is reused for the next one, so it must be
// cloned in order to be kept.
type Stream struct {
	parser *http1.Parser
	emit   func()
	reset  func()
	err    error
}

// Requests returns a stream of requests sent by a client. Nil cfg stands for the
// default configuration.
func Requests(cfg *config.Config, onRequest func(*http.Request)) *Stream {
	if cfg == nil {
		cfg = config.Default()
	}

	request := http.NewRequest(int(cfg.Body.MaxContentLength))

	return &Stream{
		parser: http1.NewRequestParser(request, http1.LimitsOf(cfg)),
		emit: func() {
			onRequest(request)
		},
		reset: request.Reset,
	}
}

// Responses returns a stream of responses sent by a server.
func Responses(cfg *config.Config, onResponse func(*http.Response)) *Stream {
	if cfg == nil {
		cfg = config.Default()
	}

	response := http.NewResponseParsed(int(cfg.Body.MaxContentLength))

	return &Stream{
		parser: http1.NewResponseParser(response, http1.LimitsOf(cfg)),
		emit: func() {
			onResponse(response)
		},
		reset: func() {
			response.Reset()
		},
	}
}

// SetRequestMethod tells a stream of responses the method of the request the next
// response answers. Responses to HEAD have no body.
func (s *Stream) SetRequestMethod(m method.Method) {
	s.parser.SetRequestMethod(m)
}

// Feed consumes the captured bytes. Once an error is returned, the stream is broken
// and keeps returning it.
func (s *Stream) Feed(data []byte) error {
	if s.err != nil {
		return s.err
	}

	for {
		result, rest, err := s.parser.Feed(data)
		switch result {
		case http1.HeadersCompleted:
			// fed further even if empty, so bodyless messages complete right away
			data = rest
			continue
		case http1.Completed:
			s.next()
			if data = rest; len(data) == 0 {
				return nil
			}

			continue
		case http1.Error:
			return s.broken(err)
		}

		return nil
	}
}

// Gap tells the stream that n bytes were lost. Only gaps inside a body can be
// recovered from.
func (s *Stream) Gap(n int64) error {
	if s.err != nil {
		return s.err
	}

	result, err := s.parser.SkipMissing(n)
	switch result {
	case http1.Completed:
		s.next()
	case http1.Error:
		return s.broken(err)
	}

	return nil
}

// Close tells the stream the capture has ended, completing a message delimited by
// the connection close. An unfinished message is reported as an error.
func (s *Stream) Close() error {
	if s.err != nil {
		return s.err
	}

	if !s.parser.Started() {
		return nil
	}

	result, err := s.parser.Finish()
	if result == http1.Completed {
		s.next()
		return nil
	}

	return s.broken(err)
}

func (s *Stream) next() {
	s.emit()
	s.parser.Reset()
	s.reset()
}

func (s *Stream) broken(err error) error {
	s.err = errors.Wrap(err, "malformed capture")
	return s.err
}
