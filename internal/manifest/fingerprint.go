package manifest

import (
	"fmt"
	"math"
)

// NoAudioAlgorithm tags the fingerprint recorded for a source without an audio track.
const NoAudioAlgorithm = "none"

// AudioFingerprint is an opaque fingerprint payload plus the tool that produced it.
type AudioFingerprint struct {
	Algorithm       string  `json:"algorithm"`
	Version         string  `json:"version"`
	DurationSeconds float64 `json:"duration_seconds"`
	Payload         string  `json:"payload"`
}

// Validate checks the fingerprint against its schema.
func (f *AudioFingerprint) Validate() error {
	if f.Algorithm == "" {
		return fmt.Errorf("fingerprint algorithm is required")
	}
	if f.Version == "" {
		return fmt.Errorf("fingerprint version is required")
	}
	if math.IsNaN(f.DurationSeconds) || f.DurationSeconds < 0 {
		return fmt.Errorf("fingerprint duration_seconds must not be negative")
	}
	return nil
}

// SilentFingerprint returns the fingerprint recorded for a source without audio.
func SilentFingerprint() *AudioFingerprint {
	return &AudioFingerprint{Algorithm: NoAudioAlgorithm, Version: "1"}
}

// HasAudio reports whether the source carried an audio track.
// Sources without audio are recorded with an empty payload.
func (f *AudioFingerprint) HasAudio() bool {
	return f.Payload != ""
}

// ConsistentWith reports whether the fingerprint covers the digest duration
// within tolerance seconds. Unknown digest durations and silent sources are
// always consistent.
func (f *AudioFingerprint) ConsistentWith(props *DigestProperties, tolerance float64) error {
	if props == nil || props.DurationSeconds == 0 || !f.HasAudio() {
		return nil
	}
	diff := math.Abs(f.DurationSeconds - props.DurationSeconds)
	if diff > tolerance {
		return fmt.Errorf("fingerprint duration %.2fs differs from digest duration %.2fs by more than %.2fs",
			f.DurationSeconds, props.DurationSeconds, tolerance)
	}
	return nil
}

// ToJSON renders the fingerprint as it is written into a package.
func (f *AudioFingerprint) ToJSON() ([]byte, error) {
	return marshalArtifact(f)
}

// ParseAudioFingerprint strictly decodes and validates fingerprint JSON.
func ParseAudioFingerprint(data []byte) (*AudioFingerprint, error) {
	var f AudioFingerprint
	if err := decodeStrict(data, &f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}
