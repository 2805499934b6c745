package http1

import (
	"io"
	"net"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/loom/http"
	"github.com/indigo-web/loom/http/method"
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/internal/hexconv"
	"github.com/indigo-web/loom/transport"
)

const continueResponse = "HTTP/1.1 100 Continue\r\n\r\n"

// vectorWriter is implemented by clients able to write several buffers at once.
type vectorWriter interface {
	Writev(buffs *net.Buffers) (int64, error)
}

// Writer serializes messages into the client. Every write returns only after the
// client accepted all the data.
type Writer struct {
	client  transport.Client
	vec     [][]byte
	framing []byte
	head    []byte
	buff    []byte
}

// NewWriter returns a writer streaming attachments by pieces of bufferSize bytes.
func NewWriter(client transport.Client, bufferSize int) *Writer {
	return &Writer{
		client: client,
		buff:   make([]byte, bufferSize),
	}
}

// Write sends the response. The body segments are written as they are, without being
// copied into an intermediate buffer.
func (w *Writer) Write(response *http.Response, keepAlive bool) error {
	head, body := response.PrepareForSend(keepAlive)
	attachment := response.Stream()
	if attachment != nil {
		if closer, ok := attachment.Reader.(io.Closer); ok {
			defer func() {
				_ = closer.Close()
			}()
		}
	}

	if response.RequestMethod == method.HEAD || status.Bodyless(response.StatusCode) {
		w.vec = append(w.vec[:0], head)
		return w.flush()
	}

	if attachment == nil {
		return w.writeMessage(head, body, response.Chunked.Is())
	}

	w.vec = append(w.vec[:0], head)
	if err := w.flush(); err != nil {
		return err
	}

	return w.writeAttachment(attachment, response.Chunked.Is())
}

// WriteRequest sends the request.
func (w *Writer) WriteRequest(request *http.Request, keepAlive bool) error {
	head, body := request.PrepareForSend(w.head[:0], keepAlive)
	w.head = head

	return w.writeMessage(head, body, request.Chunked.Is())
}

// WriteContinue sends the interim response inviting the client to send the body.
func (w *Writer) WriteContinue() error {
	w.vec = append(w.vec[:0], []byte(continueResponse))
	return w.flush()
}

func (w *Writer) writeMessage(head []byte, body [][]byte, chunked bool) error {
	w.vec = append(w.vec[:0], head)

	if !chunked {
		w.vec = append(w.vec, body...)
		return w.flush()
	}

	w.framing = w.framing[:0]
	for _, segment := range body {
		if len(segment) == 0 {
			continue
		}

		// earlier slices of framing stay valid even if it grows, as they keep
		// referencing the previous array
		offset := len(w.framing)
		w.framing = hexconv.Append(w.framing, uint64(len(segment)))
		w.framing = append(w.framing, crlf...)
		w.vec = append(w.vec, w.framing[offset:], segment, []byte(crlf))
	}

	w.vec = append(w.vec, []byte(lastChunk))
	return w.flush()
}

func (w *Writer) writeAttachment(attachment *http.Attachment, chunked bool) error {
	reader := attachment.Reader
	if !chunked && attachment.Size >= 0 {
		reader = io.LimitReader(reader, attachment.Size)
	}

	var written int64

	for {
		n, err := reader.Read(w.buff)
		if n > 0 {
			written += int64(n)
			if chunked {
				w.framing = AppendChunk(w.framing[:0], w.buff[:n])
				w.vec = append(w.vec[:0], w.framing)
			} else {
				w.vec = append(w.vec[:0], w.buff[:n])
			}

			if err := w.flush(); err != nil {
				return err
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			// the message is cut in the middle, so the connection can't be reused
			return errors.Mark(errors.Wrap(err, "read attachment"), status.ErrCloseConnection)
		}
	}

	if chunked {
		w.vec = append(w.vec[:0], []byte(lastChunk))
		return w.flush()
	}

	if attachment.Size >= 0 && written < attachment.Size {
		return errors.Mark(
			errors.Newf("attachment ended after %d of %d bytes", written, attachment.Size),
			status.ErrCloseConnection,
		)
	}

	return nil
}

func (w *Writer) flush() (err error) {
	buffs := net.Buffers(w.vec)
	if vw, ok := w.client.(vectorWriter); ok {
		_, err = vw.Writev(&buffs)
	} else {
		_, err = buffs.WriteTo(w.client)
	}

	clear(w.vec)
	w.vec = w.vec[:0]

	if err != nil {
		return errors.Mark(errors.Wrap(err, "write to client"), status.ErrTransportWrite)
	}

	return nil
}
