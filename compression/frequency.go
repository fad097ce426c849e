package compression

// FrequencyTable tallies how often each byte value occurs.
type FrequencyTable struct {
	counts [256]uint64
	total  uint64
}

// CountFrequencies builds the table for data in a single pass.
func CountFrequencies(data []byte) *FrequencyTable {
	ft := &FrequencyTable{}
	ft.Write(data)
	return ft
}

// Write adds p to the tally. It never fails, which lets the table sit
// behind an io.TeeReader while the same bytes are streamed elsewhere.
func (ft *FrequencyTable) Write(p []byte) (int, error) {
	for _, b := range p {
		ft.counts[b]++
	}
	ft.total += uint64(len(p))
	return len(p), nil
}

// Count returns the occurrences of b.
func (ft *FrequencyTable) Count(b byte) uint64 { return ft.counts[b] }

// Total returns the number of bytes tallied.
func (ft *FrequencyTable) Total() uint64 { return ft.total }

// Distinct returns the number of byte values seen at least once.
func (ft *FrequencyTable) Distinct() int {
	n := 0
	for _, c := range ft.counts {
		if c > 0 {
			n++
		}
	}
	return n
}

// Symbols returns the byte values seen, in ascending order.
func (ft *FrequencyTable) Symbols() []byte {
	symbols := make([]byte, 0, ft.Distinct())
	for b, c := range ft.counts {
		if c > 0 {
			symbols = append(symbols, byte(b))
		}
	}
	return symbols
}
