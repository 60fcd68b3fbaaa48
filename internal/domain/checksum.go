package domain

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// PayloadChecksum returns the hex BLAKE2b-256 digest of a document payload.
func PayloadChecksum(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
