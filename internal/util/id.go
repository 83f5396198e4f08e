package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier like "card_9f2c…". The prefix names the
// entity kind so ids stay self-describing in logs and in the search index.
func NewID(prefix string) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
