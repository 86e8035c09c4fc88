package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a new ULID string. ulid.Make is safe for concurrent use and
// monotonic within a millisecond.
func NewULID() string {
	return ulid.Make().String()
}

// HashParts returns a hex sha256 over parts joined with a separator that
// cannot appear in model ids.
func HashParts(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
