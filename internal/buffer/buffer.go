package buffer

// Buffer hosts several unrelated byte sequences (segments) in one allocation. Every
// segment is bounded on its own, and the whole buffer is bounded as well, so a single
// oversized token is rejected before any of its bytes past the limit are stored.
type Buffer struct {
	memory     []byte
	begin      int
	segmentMax int
	totalMax   int
}

// New returns a buffer. A zero segmentMax means segments are bounded only by totalMax.
func New(initialSize, segmentMax, totalMax int) *Buffer {
	if segmentMax == 0 || segmentMax > totalMax {
		segmentMax = totalMax
	}

	return &Buffer{
		memory:     make([]byte, 0, initialSize),
		segmentMax: segmentMax,
		totalMax:   totalMax,
	}
}

// Append writes data into the current segment. If either limit would be exceeded,
// nothing is written and false is returned.
func (b *Buffer) Append(elements []byte) (ok bool) {
	if b.SegmentLength()+len(elements) > b.segmentMax || len(b.memory)+len(elements) > b.totalMax {
		return false
	}

	b.memory = append(b.memory, elements...)
	return true
}

// AppendByte writes a single byte under the same rules as Append.
func (b *Buffer) AppendByte(c byte) (ok bool) {
	if b.SegmentLength() >= b.segmentMax || len(b.memory) >= b.totalMax {
		return false
	}

	b.memory = append(b.memory, c)
	return true
}

// SegmentLength returns the number of bytes taken by the current segment.
func (b *Buffer) SegmentLength() int {
	return len(b.memory) - b.begin
}

// SetSegmentLimit changes the bound of segments, including the current one.
func (b *Buffer) SetSegmentLimit(n int) {
	if n == 0 || n > b.totalMax {
		n = b.totalMax
	}

	b.segmentMax = n
}

// Len returns the number of bytes taken by all the segments.
func (b *Buffer) Len() int {
	return len(b.memory)
}

// Preview returns the current segment without completing it.
func (b *Buffer) Preview() []byte {
	return b.memory[b.begin:]
}

// Finish completes the current segment, returning its value. The value stays valid
// until Clear.
func (b *Buffer) Finish() []byte {
	segment := b.memory[b.begin:]
	b.begin = len(b.memory)

	return segment
}

// Discard drops the current segment.
func (b *Buffer) Discard() {
	b.memory = b.memory[:b.begin]
}

// Clear resets the buffer, keeping the allocated memory.
func (b *Buffer) Clear() {
	b.begin = 0
	b.memory = b.memory[:0]
}
