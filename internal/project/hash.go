package project

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// Digest is a sha256 content hash.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Combine hashes content followed by deps, in the order given.
func Combine(content Digest, deps ...Digest) Digest {
	h := sha256.New()
	_, _ = h.Write(content[:])
	for _, d := range deps {
		_, _ = h.Write(d[:])
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// HashBytes hashes b.
func HashBytes(b []byte) Digest { return sha256.Sum256(b) }

// HashFile hashes the contents of path.
func HashFile(path string) (Digest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Digest{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return HashBytes(data), nil
}
