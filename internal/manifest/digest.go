package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// HashAlgorithmSHA256 is the single content hash algorithm used across a package.
// It is written into every manifest so a future algorithm can coexist with old packages.
const HashAlgorithmSHA256 = "sha256"

// sha256HexLen is the length of a hex-encoded SHA-256 digest.
const sha256HexLen = 64

// Digest is a content hash tagged with the algorithm that produced it.
type Digest struct {
	Algorithm string
	Hex       string
}

// String returns the digest in "<algorithm>:<hex>" form.
func (d Digest) String() string {
	return d.Algorithm + ":" + d.Hex
}

// Short returns the first 16 hex characters, for log lines and display.
func (d Digest) Short() string {
	if len(d.Hex) > 16 {
		return d.Hex[:16]
	}
	return d.Hex
}

// Equal reports whether both algorithm and value match.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && d.Hex == other.Hex
}

// Hash returns the SHA-256 digest of data.
func Hash(data []byte) Digest {
	sum := sha256.Sum256(data)
	return Digest{Algorithm: HashAlgorithmSHA256, Hex: hex.EncodeToString(sum[:])}
}

// HashReader streams r through SHA-256 and returns the digest and byte count.
func HashReader(r io.Reader) (Digest, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Digest{}, n, fmt.Errorf("hashing content: %w", err)
	}
	return Digest{Algorithm: HashAlgorithmSHA256, Hex: hex.EncodeToString(h.Sum(nil))}, n, nil
}

// HashFile returns the SHA-256 digest of the file at path without loading it into memory.
func HashFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()

	d, _, err := HashReader(f)
	if err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return d, nil
}

// ValidHex reports whether s looks like a digest value for algorithm.
func ValidHex(algorithm, s string) bool {
	if algorithm != HashAlgorithmSHA256 || len(s) != sha256HexLen {
		return false
	}
	if strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
