package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// FingerprintText returns a stable hex-encoded fingerprint of the given
// text. Leading and trailing whitespace is ignored so that trivially
// reformatted inputs key to the same cache entries.
func FingerprintText(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// FingerprintParts returns a stable fingerprint over an ordered sequence
// of components. Components are length-delimited before hashing so that
// ("ab","c") and ("a","bc") produce distinct fingerprints.
func FingerprintParts(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		var lenBuf [8]byte
		n := len(p)
		for i := 0; i < 8; i++ {
			lenBuf[i] = byte(n >> (8 * i))
		}
		h.Write(lenBuf[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
