package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonicalize serializes v as RFC 8785 canonical JSON: lexicographically sorted
// keys, no insignificant whitespace, ECMAScript number formatting and UTF-8 text.
// The output is the input to every hash and signature in a package, so it must be
// identical across runs and platforms.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling for canonicalization: %w", err)
	}
	return CanonicalizeJSON(raw)
}

// CanonicalizeJSON rewrites arbitrary JSON bytes into canonical form.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing JSON: %w", err)
	}
	return out, nil
}

// HashJSON returns the digest of the canonical form of raw JSON bytes.
// JSON artifacts are hashed this way so reformatting a file never changes its hash.
func HashJSON(raw []byte) (Digest, error) {
	canonical, err := CanonicalizeJSON(raw)
	if err != nil {
		return Digest{}, err
	}
	return Hash(canonical), nil
}

// marshalArtifact renders a JSON artifact for writing to disk. The on-disk form is
// indented for people; hashing always goes through the canonical form.
func marshalArtifact(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
