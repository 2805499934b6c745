package http1

import (
	"bytes"

	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/internal/hexconv"
)

const (
	// maxChunkLengthDigits keeps the chunk length within uint64.
	maxChunkLengthDigits = 16
	// maxChunkExtLength bounds the extensions of a single chunk, which are skipped
	// without being stored.
	maxChunkExtLength = 1024
)

// parseChunks decodes chunked framing: hexadecimal size lines with optional extensions,
// CRLF-terminated data segments, and the zero-size terminal chunk. Trailer fields are
// parsed by the header states into the message headers.
func (p *Parser) parseChunks(data []byte) (Result, []byte, error) {
	switch p.state {
	case eChunkLength:
		goto length
	case eChunkExt:
		goto ext
	case eChunkLengthLF:
		goto lengthLF
	case eChunkData:
		goto body
	case eChunkDataCR:
		goto bodyCR
	case eChunkDataLF:
		goto bodyLF
	}

length:
	for i, c := range data {
		switch c {
		case '\r':
			if p.ChunkDigits == 0 {
				return p.fail(status.ErrInvalidChunkSize)
			}

			data = data[i+1:]
			p.state = eChunkLengthLF
			goto lengthLF
		case '\n':
			if p.ChunkDigits == 0 {
				return p.fail(status.ErrInvalidChunkSize)
			}

			data = data[i+1:]
			goto lengthDone
		case ';', ' ', '\t':
			if p.ChunkDigits == 0 {
				return p.fail(status.ErrInvalidChunkSize)
			}

			data = data[i+1:]
			p.state = eChunkExt
			goto ext
		}

		if hexconv.Halfbyte[c] == hexconv.Invalid || p.ChunkDigits == maxChunkLengthDigits {
			return p.fail(status.ErrInvalidChunkSize)
		}

		p.ChunkRemaining = p.ChunkRemaining<<4 | uint64(hexconv.Halfbyte[c])
		p.ChunkDigits++
	}

	return Pending, nil, nil

ext:
	// extensions aren't supported, so they are skipped up to the line end, which may
	// be a bare LF just like after the size
	if end := bytes.IndexAny(data, "\r\n"); end != -1 {
		if p.ext+end > maxChunkExtLength {
			return p.fail(status.ErrInvalidChunkSize)
		}

		p.ext = 0
		if data[end] == '\n' {
			data = data[end+1:]
			goto lengthDone
		}

		data = data[end+1:]
		p.state = eChunkLengthLF
		goto lengthLF
	}

	if p.ext += len(data); p.ext > maxChunkExtLength {
		return p.fail(status.ErrInvalidChunkSize)
	}

	return Pending, nil, nil

lengthLF:
	if len(data) == 0 {
		return Pending, nil, nil
	}

	if data[0] != '\n' {
		return p.fail(status.ErrInvalidChunkSize)
	}

	data = data[1:]

lengthDone:
	p.ChunkDigits = 0
	if p.ChunkRemaining == 0 {
		p.trailer = true
		p.state = eHeaderName
		return p.Feed(data)
	}

	if limit, bounded := p.bodyLimit(); bounded && p.ChunkRemaining > uint64(limit-p.Received) {
		return p.fail(status.ErrContentTooLong)
	}

	p.state = eChunkData

body:
	if uint64(len(data)) < p.ChunkRemaining {
		if err := p.deliver(data); err != nil {
			return p.fail(err)
		}

		p.ChunkRemaining -= uint64(len(data))
		return Pending, nil, nil
	}

	if err := p.deliver(data[:p.ChunkRemaining]); err != nil {
		return p.fail(err)
	}

	data = data[p.ChunkRemaining:]
	p.ChunkRemaining = 0
	p.state = eChunkDataCR

bodyCR:
	if len(data) == 0 {
		return Pending, nil, nil
	}

	switch data[0] {
	case '\r':
		data = data[1:]
		p.state = eChunkDataLF
	case '\n':
		data = data[1:]
		p.state = eChunkLength
		goto length
	default:
		return p.fail(status.ErrInvalidChunkSize)
	}

bodyLF:
	if len(data) == 0 {
		return Pending, nil, nil
	}

	if data[0] != '\n' {
		return p.fail(status.ErrInvalidChunkSize)
	}

	data = data[1:]
	p.state = eChunkLength
	goto length
}

// lastChunk terminates a chunked body with no trailer fields.
const lastChunk = "0\r\n\r\n"

// AppendChunk appends data framed as a single chunk. Empty data is skipped, as it
// would read as the last chunk.
func AppendChunk(buff, data []byte) []byte {
	if len(data) == 0 {
		return buff
	}

	buff = hexconv.Append(buff, uint64(len(data)))
	buff = append(buff, crlf...)
	buff = append(buff, data...)
	return append(buff, crlf...)
}

// AppendLastChunk appends the terminating chunk.
func AppendLastChunk(buff []byte) []byte {
	return append(buff, lastChunk...)
}

const crlf = "\r\n"
