package http

import (
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/utils/uf"
)

// Body is the content of a message, held as a sequence of segments. Segments written
// via Write are copied, segments written via WriteNoCopy are kept as is and must not be
// modified by the caller until the message is sent or reset.
type Body struct {
	segments [][]byte
	spare    []byte
	owned    bool
	length   int
	max      int
}

// NewBody returns a body that refuses to grow past max bytes. A non-positive max
// disables the limit.
func NewBody(max int) *Body {
	return &Body{max: max}
}

// SetLimit changes the maximal length of the body.
func (b *Body) SetLimit(max int) {
	b.max = max
}

// Limit returns the maximal length, or zero if unlimited.
func (b *Body) Limit() int {
	return b.max
}

func (b *Body) fits(n int) bool {
	return b.max <= 0 || b.length+n <= b.max
}

// Write copies p into the body. It fails with status.ErrContentTooLong without
// writing anything if the body would exceed its limit.
func (b *Body) Write(p []byte) (n int, err error) {
	if !b.fits(len(p)) {
		return 0, status.ErrContentTooLong
	}

	if !b.owned {
		b.segments = append(b.segments, b.spare[:0])
		b.spare = nil
		b.owned = true
	}

	last := len(b.segments) - 1
	b.segments[last] = append(b.segments[last], p...)
	b.length += len(p)

	return len(p), nil
}

// WriteString copies the string into the body.
func (b *Body) WriteString(s string) (n int, err error) {
	return b.Write(uf.S2B(s))
}

// WriteNoCopy appends p as a separate segment without copying.
func (b *Body) WriteNoCopy(p []byte) error {
	if !b.fits(len(p)) {
		return status.ErrContentTooLong
	}

	if len(p) == 0 {
		return nil
	}

	b.segments = append(b.segments, p)
	b.owned = false
	b.length += len(p)

	return nil
}

// Len returns the total length of the body.
func (b *Body) Len() int {
	return b.length
}

// Segments exposes the segments in the order they were written.
func (b *Body) Segments() [][]byte {
	return b.segments
}

// Bytes returns the body as a contiguous slice. Multiple segments are merged into one.
func (b *Body) Bytes() []byte {
	switch len(b.segments) {
	case 0:
		return nil
	case 1:
		return b.segments[0]
	}

	merged := make([]byte, 0, b.length)
	for _, segment := range b.segments {
		merged = append(merged, segment...)
	}

	clear(b.segments)
	b.segments = append(b.segments[:0], merged)
	b.owned = true

	return merged
}

func (b *Body) String() string {
	return uf.B2S(b.Bytes())
}

// Reset empties the body, keeping the memory of a copied segment for later writes.
func (b *Body) Reset() {
	if b.owned && len(b.segments) > 0 {
		b.spare = b.segments[len(b.segments)-1][:0]
	}

	clear(b.segments)
	b.segments = b.segments[:0]
	b.owned = false
	b.length = 0
}
