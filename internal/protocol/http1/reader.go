package http1

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/transport"
)

// Reader drives the parser by the data read from the client.
type Reader struct {
	client    transport.Client
	parser    *Parser
	maxCycles int
}

// NewReader returns a reader, failing messages that take more than maxCycles reads.
// For messages whose body goes to a sink, only the reads up to the end of the header
// section are counted.
func NewReader(client transport.Client, parser *Parser, maxCycles int) *Reader {
	return &Reader{
		client:    client,
		parser:    parser,
		maxCycles: maxCycles,
	}
}

// Read reads a single message. The onHeaders callback is invoked once the header
// section is complete, before any byte of the body is consumed, and may attach a
// sink to the parser. Bytes past the message are pushed back to the client.
//
// If the stream ends before a message is started, status.ErrCloseConnection is
// returned. Transport failures are marked by status.ErrTransportRead.
func (r *Reader) Read(onHeaders func() error) error {
	cycles := 0
	counting := true

	for {
		data, err := r.client.Read()
		if len(data) == 0 && err != nil {
			return r.readFailed(err)
		}

		if counting {
			if cycles++; cycles > r.maxCycles {
				return status.ErrTooManyReadCycles
			}
		}

		for {
			result, rest, err := r.parser.Feed(data)
			switch result {
			case HeadersCompleted:
				if err = onHeaders(); err != nil {
					return err
				}

				counting = r.parser.sink == nil
				data = rest
				continue
			case Completed:
				r.client.Pushback(rest)
				return nil
			case Error:
				return err
			}

			break
		}
	}
}

func (r *Reader) readFailed(err error) error {
	if !errors.Is(err, io.EOF) {
		return errors.Mark(errors.Wrap(err, "read from client"), status.ErrTransportRead)
	}

	if !r.parser.Started() {
		return status.ErrCloseConnection
	}

	result, err := r.parser.Finish()
	if result == Completed {
		return nil
	}

	return err
}
