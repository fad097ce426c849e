package compression

import (
	"bytes"
	"crypto/md5"
	"fmt"
)

// ChecksumSize is the length of a payload digest.
const ChecksumSize = md5.Size

// Checksum returns the MD5 digest of payload.
func Checksum(payload []byte) []byte {
	sum := md5.Sum(payload)
	return sum[:]
}

// VerifyChecksum recomputes the digest of payload and compares it to want.
func VerifyChecksum(payload, want []byte) error {
	got := Checksum(payload)
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: stored %x, computed %x", ErrChecksumMismatch, want, got)
	}
	return nil
}
