package util

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

const hashChunkSize = 32 * 1024

// HashStream returns the lower-case hex SHA-256 of everything read from r and
// the number of bytes consumed.
func HashStream(r io.Reader) (string, int64, error) {
	hasher := sha256.New()
	buf := make([]byte, hashChunkSize)
	n, err := io.CopyBuffer(hasher, r, buf)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

func HashFile(fpath string) (string, int64, error) {
	f, err := os.Open(fpath)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	return HashStream(f)
}

// HashPrefix shortens a content hash for log fields.
func HashPrefix(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
