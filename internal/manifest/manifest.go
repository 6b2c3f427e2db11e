// Package manifest defines the artifacts of a verification package and their
// canonical serialization.
//
// A package is a directory of exactly five files. The manifest maps the three
// content artifacts to their hashes and records the hash of the original source
// video; the signature covers the canonical manifest bytes.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// FormatVersion is the manifest format written by this version.
	FormatVersion = 1

	// DigestVideoFile is the reference digest produced by the transcode collaborator.
	DigestVideoFile = "digest_video.mp4"

	// AudioFingerprintFile holds the AudioFingerprint JSON.
	AudioFingerprintFile = "audio_fingerprint.json"

	// MetadataFile holds the Metadata JSON.
	MetadataFile = "metadata.json"

	// ManifestFile holds the Manifest JSON.
	ManifestFile = "manifest.json"

	// SignatureFile holds the Signature JSON.
	SignatureFile = "signature.json"

	// PackageDirSuffix is appended to the source file stem to name a package directory.
	PackageDirSuffix = "_package"
)

// ArtifactNames lists every file a package must contain, in validation order.
var ArtifactNames = []string{
	DigestVideoFile,
	AudioFingerprintFile,
	MetadataFile,
	ManifestFile,
	SignatureFile,
}

// HashedArtifacts lists the artifacts whose hashes the manifest records.
// manifest.json is covered by the signature instead.
var HashedArtifacts = []string{
	DigestVideoFile,
	AudioFingerprintFile,
	MetadataFile,
}

// IsJSONArtifact reports whether name is hashed over its canonical JSON form.
func IsJSONArtifact(name string) bool {
	return name != DigestVideoFile
}

// DigestProperties describes the reference digest video as probed at signing time.
type DigestProperties struct {
	FrameCount      int     `json:"frame_count"`
	FPS             float64 `json:"fps"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Manifest is the integrity anchor of a package.
type Manifest struct {
	FormatVersion int               `json:"format_version"`
	PackageID     string            `json:"package_id"`
	HashAlgorithm string            `json:"hash_algorithm"`
	Hashes        map[string]string `json:"hashes"`
	SourceHash    string            `json:"source_hash"`
	Digest        *DigestProperties `json:"digest,omitempty"`
}

// NewManifest builds a manifest from the source hash and the per-artifact digests.
func NewManifest(source Digest, artifacts map[string]Digest, props *DigestProperties) (*Manifest, error) {
	if source.Algorithm != HashAlgorithmSHA256 {
		return nil, fmt.Errorf("unsupported source hash algorithm %q", source.Algorithm)
	}

	hashes := make(map[string]string, len(HashedArtifacts))
	for _, name := range HashedArtifacts {
		d, ok := artifacts[name]
		if !ok {
			return nil, fmt.Errorf("missing hash for %s", name)
		}
		if d.Algorithm != source.Algorithm {
			return nil, fmt.Errorf("hash algorithm mismatch for %s: %s != %s", name, d.Algorithm, source.Algorithm)
		}
		hashes[name] = d.Hex
	}

	var p *DigestProperties
	if props != nil {
		cp := *props
		p = &cp
	}

	return &Manifest{
		FormatVersion: FormatVersion,
		PackageID:     source.Hex[:16],
		HashAlgorithm: source.Algorithm,
		Hashes:        hashes,
		SourceHash:    source.Hex,
		Digest:        p,
	}, nil
}

// SourceDigest returns the recorded hash of the original source file.
func (m *Manifest) SourceDigest() Digest {
	return Digest{Algorithm: m.HashAlgorithm, Hex: m.SourceHash}
}

// ArtifactDigest returns the recorded hash of a named artifact.
func (m *Manifest) ArtifactDigest(name string) (Digest, bool) {
	v, ok := m.Hashes[name]
	if !ok {
		return Digest{}, false
	}
	return Digest{Algorithm: m.HashAlgorithm, Hex: v}, true
}

// Canonical returns the canonical bytes that the signature covers.
func (m *Manifest) Canonical() ([]byte, error) {
	return Canonicalize(m)
}

// Validate checks the manifest against its schema.
func (m *Manifest) Validate() error {
	if m.FormatVersion != FormatVersion {
		return fmt.Errorf("unsupported format_version %d", m.FormatVersion)
	}
	if m.HashAlgorithm != HashAlgorithmSHA256 {
		return fmt.Errorf("unsupported hash_algorithm %q", m.HashAlgorithm)
	}
	if !ValidHex(m.HashAlgorithm, m.SourceHash) {
		return fmt.Errorf("source_hash is not a valid %s digest", m.HashAlgorithm)
	}
	if len(m.Hashes) != len(HashedArtifacts) {
		return fmt.Errorf("hashes must list exactly %d artifacts, got %d", len(HashedArtifacts), len(m.Hashes))
	}
	for _, name := range HashedArtifacts {
		v, ok := m.Hashes[name]
		if !ok {
			return fmt.Errorf("hashes missing entry for %s", name)
		}
		if !ValidHex(m.HashAlgorithm, v) {
			return fmt.Errorf("hash for %s is not a valid %s digest", name, m.HashAlgorithm)
		}
	}
	if m.PackageID != m.SourceHash[:16] {
		return fmt.Errorf("package_id %q does not match source_hash", m.PackageID)
	}
	if d := m.Digest; d != nil {
		if d.FrameCount < 0 || d.FPS < 0 || d.DurationSeconds < 0 {
			return fmt.Errorf("digest properties must not be negative")
		}
	}
	return nil
}

// ToJSON renders the manifest as it is written into a package.
func (m *Manifest) ToJSON() ([]byte, error) {
	return marshalArtifact(m)
}

// ParseManifest strictly decodes and validates manifest JSON.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := decodeStrict(data, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// decodeStrict rejects unknown fields and trailing data.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("decoding JSON: trailing data")
	}
	return nil
}
