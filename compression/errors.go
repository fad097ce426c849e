package compression

import "errors"

var (
	ErrEmptyInput         = errors.New("input is empty")
	ErrDegenerateInput    = errors.New("input has only one distinct byte value")
	ErrMissingSuffix      = errors.New("input file has no suffix")
	ErrInputTooLarge      = errors.New("input is too large")
	ErrMalformedContainer = errors.New("invalid file format: not a Huffman compressed file")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrDecodeOverflow     = errors.New("bit stream exceeds Huffman tree")
	ErrIO                 = errors.New("i/o failure")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrEmptyInput, "EmptyInput"},
	{ErrDegenerateInput, "DegenerateInput"},
	{ErrMissingSuffix, "MissingSuffix"},
	{ErrInputTooLarge, "InputTooLarge"},
	{ErrMalformedContainer, "MalformedContainer"},
	{ErrChecksumMismatch, "ChecksumMismatch"},
	{ErrDecodeOverflow, "DecodeOverflow"},
	{ErrIO, "IoFailure"},
}

// Kind returns the name of the failure class err belongs to. Errors that
// did not come from this package report "Unknown"; a nil error reports "".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Unknown"
}
