package ids

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
)

const idBytes = 16

var idRegex = regexp.MustCompile(`^[0-9a-f]{32}$`)

// NewUniqueId returns a 128-bit random identifier as lower-case hex.
func NewUniqueId() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func IsValidId(id string) bool {
	return idRegex.MatchString(id)
}
