package compression

// BitWriter packs bits most significant first. The last byte is padded
// with zeros on the right.
type BitWriter struct {
	buf   []byte
	cur   byte
	nbits int
	total int64
}

// NewBitWriter returns a writer with room for sizeHint bytes.
func NewBitWriter(sizeHint int) *BitWriter {
	return &BitWriter{buf: make([]byte, 0, sizeHint)}
}

func (w *BitWriter) WriteBit(bit uint8) {
	w.cur <<= 1 // make room for the next bit
	w.cur |= bit & 1
	w.nbits++
	w.total++
	if w.nbits == 8 {
		w.buf = append(w.buf, w.cur)
		w.cur = 0
		w.nbits = 0
	}
}

func (w *BitWriter) WriteCode(c Code) {
	for _, bit := range c {
		w.WriteBit(bit)
	}
}

// Len returns the number of bits written.
func (w *BitWriter) Len() int64 { return w.total }

// Bytes returns the packed bytes, flushing any partial byte with zero
// padding.
func (w *BitWriter) Bytes() []byte {
	if w.nbits == 0 {
		return w.buf
	}
	return append(w.buf[:len(w.buf):len(w.buf)], w.cur<<(8-w.nbits))
}

// BitReader yields the first n bits of a packed buffer, most significant
// first. Pad bits past n are never returned.
type BitReader struct {
	data []byte
	n    int64
	pos  int64
}

// NewBitReader reads n bits from data. n is clamped to the bits available.
func NewBitReader(data []byte, n int64) *BitReader {
	if limit := int64(len(data)) * 8; n > limit {
		n = limit
	}
	if n < 0 {
		n = 0
	}
	return &BitReader{data: data, n: n}
}

// ReadBit returns the next bit, or ok == false once n bits were read.
func (r *BitReader) ReadBit() (bit uint8, ok bool) {
	if r.pos >= r.n {
		return 0, false
	}
	b := r.data[r.pos/8]
	bit = (b >> (7 - uint(r.pos%8))) & 1
	r.pos++
	return bit, true
}

// Remaining returns the number of unread bits.
func (r *BitReader) Remaining() int64 { return r.n - r.pos }

// PackBits packs a sequence of 0/1 values.
func PackBits(bits []uint8) []byte {
	w := NewBitWriter((len(bits) + 7) / 8)
	for _, bit := range bits {
		w.WriteBit(bit)
	}
	return w.Bytes()
}

// UnpackBits returns the first n bits of data as 0/1 values.
func UnpackBits(data []byte, n int64) []uint8 {
	r := NewBitReader(data, n)
	bits := make([]uint8, 0, r.Remaining())
	for {
		bit, ok := r.ReadBit()
		if !ok {
			return bits
		}
		bits = append(bits, bit)
	}
}
