package domain

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// hashLen is the number of hex characters kept from a digest.
const hashLen = 8

// Hash returns a short, stable content hash of s.
//
// Example:
//
//	Hash("/home/me/addons") // returns 8 lowercase hex characters
func Hash(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:hashLen]
}

// ExpandPath expands a leading "~" and returns a clean absolute path.
func ExpandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}
