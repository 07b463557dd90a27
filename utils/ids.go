package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomHex returns n random bytes encoded as 2n lowercase hex characters
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Truncate shortens s to at most max runes, appending "..." when cut.
// Used to keep prompts and upstream bodies readable in logs.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
