package utils

import (
	"crypto/md5"
	"encoding/hex"
)

// HashString returns a stable hex digest of input, used for cache keys.
// Not for anything security-sensitive.
func HashString(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}
