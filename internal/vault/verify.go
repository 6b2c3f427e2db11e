package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"reeltrust/internal/manifest"
)

// checkChecksum rejects anything that is not a lowercase hex SHA-256, so a
// checksum can safely be used as a file name or object key.
func checkChecksum(checksum string) error {
	if !manifest.ValidHex(manifest.HashAlgorithmSHA256, checksum) {
		return fmt.Errorf("invalid content checksum %q", checksum)
	}
	return nil
}

// copyVerified copies r to w and fails if the byte count or SHA-256 of the
// copied data does not match.
func copyVerified(w io.Writer, r io.Reader, checksum string, size int64) error {
	h := sha256.New()
	written, err := io.Copy(io.MultiWriter(w, h), r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != checksum {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", checksum, got)
	}
	return nil
}
