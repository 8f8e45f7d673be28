package indexer

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"
)

// NormalizeText collapses all whitespace runs to single spaces and
// trims the ends. Two chunks that differ only in whitespace hash the
// same.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ContentHash returns a stable 64-bit hash of the normalized text.
// Used to suppress duplicate chunks in the vector index; a collision
// just means one duplicate suppressed too eagerly.
func ContentHash(text string) uint64 {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return binary.BigEndian.Uint64(sum[:8])
}
