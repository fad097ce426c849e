package compression

import (
	"fmt"
	"log/slog"
)

// Result is the outcome of a successful decompression.
type Result struct {
	Data   []byte
	Suffix string
}

// Encode builds the container for data. When the Huffman payload would
// not be smaller than data, the container stores data as is and is marked
// ModeStored.
func Encode(data []byte, suffix string) (*Container, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	freq := CountFrequencies(data)
	if freq.Distinct() == 1 {
		return nil, fmt.Errorf("%w: only byte 0x%02x present", ErrDegenerateInput, data[0])
	}
	if suffix == "" {
		return nil, ErrMissingSuffix
	}
	if err := checkSuffix(TruncateSuffix(suffix)); err != nil {
		return nil, err
	}

	tree, err := BuildTree(freq)
	if err != nil {
		return nil, err
	}
	codes := GenerateCodes(tree)
	symbols := freq.Symbols()

	var table [256]Code
	for i, s := range symbols {
		table[s] = codes[i]
	}

	w := NewBitWriter(len(data) / 2)
	for _, b := range data {
		w.WriteCode(table[b])
	}

	c := &Container{
		Mode:     ModeHuffman,
		Suffix:   TruncateSuffix(suffix),
		Tree:     tree,
		Symbols:  symbols,
		BitCount: w.Len(),
		Payload:  w.Bytes(),
	}
	if len(c.Payload) >= len(data) {
		slog.Warn("Compression ratio is greater than or equal to 1, storing input uncompressed",
			"input_size", len(data), "coded_size", len(c.Payload))
		c.Mode = ModeStored
		c.Tree = nil
		c.Symbols = nil
		c.Payload = data
		c.BitCount = int64(len(data)) * 8
	}
	c.Checksum = Checksum(c.Payload)

	slog.Debug("Encoded container", "mode", c.Mode, "symbols", len(symbols), "nodes", len(tree), "bits", c.BitCount)
	return c, nil
}

// Decode verifies the container's checksum and restores the original
// bytes.
func Decode(c *Container) ([]byte, error) {
	if err := VerifyChecksum(c.Payload, c.Checksum); err != nil {
		return nil, err
	}

	if c.Mode == ModeStored {
		out := make([]byte, len(c.Payload))
		copy(out, c.Payload)
		return out, nil
	}

	nodeCount := int32(len(c.Tree))
	if nodeCount == 0 || int(nodeCount) != 2*len(c.Symbols)-1 {
		return nil, fmt.Errorf("%w: %d nodes for %d symbols", ErrMalformedContainer, nodeCount, len(c.Symbols))
	}
	if c.BitCount <= 0 {
		return nil, fmt.Errorf("%w: empty Huffman payload", ErrMalformedContainer)
	}
	leaves := int32(len(c.Symbols))
	root := nodeCount - 1

	var out []byte
	r := NewBitReader(c.Payload, c.BitCount)
	cur := root
	for {
		bit, ok := r.ReadBit()
		if !ok {
			break
		}
		if bit == 0 {
			cur = c.Tree[cur].Left
		} else {
			cur = c.Tree[cur].Right
		}
		if cur < 0 || cur >= nodeCount {
			return nil, fmt.Errorf("%w: child index %d outside [0, %d) after %d symbols", ErrDecodeOverflow, cur, nodeCount, len(out))
		}
		if c.Tree[cur].IsLeaf() {
			if cur >= leaves {
				return nil, fmt.Errorf("%w: leaf index %d has no symbol", ErrDecodeOverflow, cur)
			}
			out = append(out, c.Symbols[cur])
			cur = root
		}
	}
	if cur != root {
		return nil, fmt.Errorf("%w: bit stream ends inside a code after %d symbols", ErrDecodeOverflow, len(out))
	}
	return out, nil
}

// Compress encodes data and serializes the container. suffix is the
// original file's extension without the dot.
func Compress(data []byte, suffix string) ([]byte, error) {
	c, err := Encode(data, suffix)
	if err != nil {
		return nil, err
	}
	return c.MarshalBinary()
}

// Decompress parses a serialized container and restores its contents.
func Decompress(container []byte) (*Result, error) {
	if len(container) == 0 {
		return nil, ErrEmptyInput
	}
	c, err := UnmarshalContainer(container)
	if err != nil {
		return nil, err
	}
	data, err := Decode(c)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, Suffix: c.Suffix}, nil
}
