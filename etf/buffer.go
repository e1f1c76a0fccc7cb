package etf

// Buffer is an append-only byte vector with an independent write
// position (always len(data)) and read cursor. It backs both encoding
// (Append*/WriteAt/Reserve) and decoding (ReadTag/SkipTerm/the cursor
// consumed by Decode).
type Buffer struct {
	data []byte
	r    int
}

// NewBuffer returns an empty buffer with no version header.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// NewBufferWithVersion returns a buffer pre-seeded with the ETF version
// byte (131), ready for Decode to consume via ConsumeVersion, or for a
// caller composing an outbound frame from scratch.
func NewBufferWithVersion() *Buffer {
	return &Buffer{data: []byte{EtVersion}}
}

// FromBytes wraps an existing byte slice for decoding. The slice is not
// copied; callers must not mutate it while the buffer is in use.
func FromBytes(b []byte) *Buffer {
	return &Buffer{data: b}
}

// AppendByte appends a single byte, advancing the write cursor (len).
func (b *Buffer) AppendByte(v byte) {
	b.data = append(b.data, v)
}

// AppendBytes appends a byte slice verbatim.
func (b *Buffer) AppendBytes(v []byte) {
	b.data = append(b.data, v...)
}

// Reserve appends n zero bytes and returns the offset at which they
// start, so the caller can WriteAt once the value they depend on
// (typically a length prefix) is known.
func (b *Buffer) Reserve(n int) int {
	off := len(b.data)
	b.data = append(b.data, make([]byte, n)...)
	return off
}

// WriteAt overwrites len(v) bytes starting at offset, which must lie
// within the already-written portion of the buffer (e.g. a Reserve'd
// span).
func (b *Buffer) WriteAt(offset int, v []byte) {
	copy(b.data[offset:offset+len(v)], v)
}

// Bytes returns the full payload written so far, including the version
// byte if the buffer was constructed with one.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len is the write cursor: the number of bytes emitted so far.
func (b *Buffer) Len() int {
	return len(b.data)
}

// AppendBuffer concatenates another buffer's payload, skipping its
// leading version byte if it has one (so framing two sub-terms never
// duplicates 131 in the middle of a stream).
func (b *Buffer) AppendBuffer(other *Buffer) {
	payload := other.data
	if len(payload) > 0 && payload[0] == EtVersion {
		payload = payload[1:]
	}
	b.data = append(b.data, payload...)
}

// ReadOffset returns the current read cursor position.
func (b *Buffer) ReadOffset() int {
	return b.r
}

// SetReadOffset repositions the read cursor, e.g. to rewind to an
// offset recorded earlier by a keyed-decode index pass (bridge.Decode).
func (b *Buffer) SetReadOffset(off int) {
	b.r = off
}

// Remaining returns the as-yet-undecoded tail of the buffer.
func (b *Buffer) Remaining() []byte {
	return b.data[b.r:]
}

// ConsumeVersion advances past a leading version byte (131) at the
// current read cursor, if present, and reports whether it did.
func (b *Buffer) ConsumeVersion() bool {
	if b.r < len(b.data) && b.data[b.r] == EtVersion {
		b.r++
		return true
	}
	return false
}

// ReadTag peeks the tag byte at the current read cursor without
// advancing it. It is an error to call this at end of buffer.
func (b *Buffer) ReadTag() (byte, error) {
	if b.r >= len(b.data) {
		return 0, errBadTerm("read past end of buffer")
	}
	return b.data[b.r], nil
}

// PeekNil reports whether the term at the read cursor is NIL (the empty
// list), without advancing the cursor. Used by bridge.Decode to treat an
// optional (pointer) target as absent.
func (b *Buffer) PeekNil() (bool, error) {
	tag, err := b.ReadTag()
	if err != nil {
		return false, err
	}
	return tag == ettNil, nil
}

// SkipTerm advances the read cursor over exactly one well-formed term
// without materialising it. It runs in O(size-of-term); nested terms
// are skipped by recursion in skipOne, which allocates nothing.
func (b *Buffer) SkipTerm() error {
	n, err := skipOne(b.data[b.r:])
	if err != nil {
		return err
	}
	b.r += n
	return nil
}
