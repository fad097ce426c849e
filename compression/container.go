package compression

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	magicTag   = "HUFFMAN"
	trailerTag = "END"

	// MaxSuffixLen is the number of characters of the original suffix kept.
	MaxSuffixLen = 4
)

// Mode tells the decoder how the payload was produced.
type Mode uint8

const (
	// ModeHuffman payloads are packed Huffman codes.
	ModeHuffman Mode = 0
	// ModeStored payloads are the input bytes, kept because coding them
	// did not make them smaller.
	ModeStored Mode = 1
)

func (m Mode) String() string {
	switch m {
	case ModeHuffman:
		return "huffman"
	case ModeStored:
		return "stored"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Container is the decoded form of a .fycat file.
//
// On disk every integer is big-endian and every byte string carries a
// uint32 length prefix:
//
//	magic "HUFFMAN" | mode u8 | suffix | node count i32 |
//	nodes (weight, parent, left, right i32) | symbols | bit count i64 |
//	md5(payload) | payload | trailer "END" | total size i64
type Container struct {
	Mode     Mode
	Suffix   string
	Tree     Tree
	Symbols  []byte // Symbols[i] is the byte value of leaf i
	BitCount int64
	Checksum []byte
	Payload  []byte
}

// TruncateSuffix keeps the first MaxSuffixLen characters of suffix.
func TruncateSuffix(suffix string) string {
	n := 0
	for i := range suffix {
		if n == MaxSuffixLen {
			return suffix[:i]
		}
		n++
	}
	return suffix
}

// checkSuffix rejects suffixes that would move a restored file out of its
// directory when appended to an output name.
func checkSuffix(suffix string) error {
	if strings.ContainsAny(suffix, `/\`) || strings.Contains(suffix, "..") {
		return fmt.Errorf("%w: suffix %q is not a plain extension", ErrMissingSuffix, suffix)
	}
	return nil
}

// MarshalBinary serializes the container. The suffix is truncated to
// MaxSuffixLen characters; an empty suffix is rejected.
func (c *Container) MarshalBinary() ([]byte, error) {
	if c.Suffix == "" {
		return nil, ErrMissingSuffix
	}
	suffix := TruncateSuffix(c.Suffix)
	if err := checkSuffix(suffix); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(64 + 16*len(c.Tree) + len(c.Symbols) + len(c.Payload))
	w := &fieldWriter{buf: &buf}

	w.bytes([]byte(magicTag))
	w.uint8(uint8(c.Mode))
	w.bytes([]byte(suffix))
	w.int32(int32(len(c.Tree)))
	for _, n := range c.Tree {
		w.int32(n.Weight)
		w.int32(n.Parent)
		w.int32(n.Left)
		w.int32(n.Right)
	}
	w.bytes(c.Symbols)
	w.int64(c.BitCount)
	w.bytes(c.Checksum)
	w.bytes(c.Payload)
	w.bytes([]byte(trailerTag))
	// the size field counts itself
	w.int64(int64(buf.Len()) + 8)
	if w.err != nil {
		return nil, fmt.Errorf("%w: writing container: %v", ErrIO, w.err)
	}
	return buf.Bytes(), nil
}

// UnmarshalContainer parses and validates a serialized container. Any
// structural problem yields ErrMalformedContainer; the payload checksum
// is not verified here.
func UnmarshalContainer(data []byte) (*Container, error) {
	r := &fieldReader{data: data}

	if magic := r.bytes(); r.err != nil || string(magic) != magicTag {
		return nil, malformed(r.err, "file header not found")
	}

	c := &Container{Mode: Mode(r.uint8())}
	if r.err == nil && c.Mode != ModeHuffman && c.Mode != ModeStored {
		return nil, malformed(nil, "unknown payload mode %d", c.Mode)
	}

	suffix := r.bytes()
	if r.err != nil {
		return nil, malformed(r.err, "reading suffix")
	}
	if len(suffix) == 0 || !utf8.Valid(suffix) || utf8.RuneCount(suffix) > MaxSuffixLen || checkSuffix(string(suffix)) != nil {
		return nil, malformed(nil, "invalid suffix %q", suffix)
	}
	c.Suffix = string(suffix)

	nodeCount := r.int32()
	if r.err != nil {
		return nil, malformed(r.err, "reading node count")
	}
	if nodeCount < 0 || nodeCount > maxNodes || (nodeCount > 0 && nodeCount < 3) {
		return nil, malformed(nil, "invalid node count %d", nodeCount)
	}
	// stored payloads carry no tree, so a flipped mode byte cannot pass
	if (c.Mode == ModeHuffman) != (nodeCount > 0) {
		return nil, malformed(nil, "%s container with %d nodes", c.Mode, nodeCount)
	}
	if nodeCount > 0 {
		c.Tree = make(Tree, nodeCount)
		for i := range c.Tree {
			c.Tree[i] = Node{Weight: r.int32(), Parent: r.int32(), Left: r.int32(), Right: r.int32()}
		}
	}

	c.Symbols = r.bytes()
	if r.err != nil {
		return nil, malformed(r.err, "reading Huffman tree")
	}
	if int(nodeCount) != max(2*len(c.Symbols)-1, 0) {
		return nil, malformed(nil, "%d nodes cannot hold %d symbols", nodeCount, len(c.Symbols))
	}
	for i := 1; i < len(c.Symbols); i++ {
		if c.Symbols[i] <= c.Symbols[i-1] {
			return nil, malformed(nil, "symbol table is not in ascending order")
		}
	}

	c.BitCount = r.int64()
	c.Checksum = r.bytes()
	c.Payload = r.bytes()
	if r.err != nil {
		return nil, malformed(r.err, "reading payload")
	}
	if len(c.Checksum) != ChecksumSize {
		return nil, malformed(nil, "checksum is %d bytes, want %d", len(c.Checksum), ChecksumSize)
	}
	if c.BitCount <= 0 || int64(len(c.Payload)) != (c.BitCount+7)/8 {
		return nil, malformed(nil, "bit count %d does not fit a %d byte payload", c.BitCount, len(c.Payload))
	}
	if c.Mode == ModeStored && c.BitCount != 8*int64(len(c.Payload)) {
		return nil, malformed(nil, "stored payload of %d bytes records %d bits", len(c.Payload), c.BitCount)
	}

	if trailer := r.bytes(); r.err != nil || string(trailer) != trailerTag {
		return nil, malformed(r.err, "file tail not found")
	}

	size := r.int64()
	if r.err != nil {
		return nil, malformed(r.err, "reading file size")
	}
	if size != int64(len(data)) || r.off != len(data) {
		return nil, malformed(nil, "file size mismatch: recorded %d, read %d", size, len(data))
	}
	return c, nil
}

func malformed(cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedContainer, msg, cause)
	}
	return fmt.Errorf("%w: %s", ErrMalformedContainer, msg)
}

// fieldWriter appends big-endian fields and remembers the first error.
type fieldWriter struct {
	buf *bytes.Buffer
	err error
}

func (w *fieldWriter) write(v any) {
	if w.err != nil {
		return
	}
	w.err = binary.Write(w.buf, binary.BigEndian, v)
}

func (w *fieldWriter) uint8(v uint8) { w.write(v) }
func (w *fieldWriter) int32(v int32) { w.write(v) }
func (w *fieldWriter) int64(v int64) { w.write(v) }

func (w *fieldWriter) bytes(p []byte) {
	w.write(uint32(len(p)))
	if w.err != nil {
		return
	}
	_, w.err = w.buf.Write(p)
}

// fieldReader consumes big-endian fields and remembers the first error.
// Reads after an error return zero values.
type fieldReader struct {
	data []byte
	off  int
	err  error
}

func (r *fieldReader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.data)-r.off {
		r.err = fmt.Errorf("need %d bytes at offset %d, have %d", n, r.off, len(r.data)-r.off)
		return nil
	}
	p := r.data[r.off : r.off+n]
	r.off += n
	return p
}

func (r *fieldReader) uint8() uint8 {
	p := r.next(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *fieldReader) int32() int32 {
	p := r.next(4)
	if p == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(p))
}

func (r *fieldReader) int64() int64 {
	p := r.next(8)
	if p == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(p))
}

func (r *fieldReader) bytes() []byte {
	p := r.next(4)
	if p == nil {
		return nil
	}
	n := binary.BigEndian.Uint32(p)
	if uint64(n) > uint64(len(r.data)-r.off) {
		r.err = fmt.Errorf("field of %d bytes at offset %d overruns input", n, r.off)
		return nil
	}
	return r.next(int(n))
}
