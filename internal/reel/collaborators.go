package reel

import (
	"context"
	"errors"
	"time"

	"reeltrust/internal/manifest"
)

// ErrNoAudio is returned by an AudioFingerprinter for media without an audio track.
var ErrNoAudio = errors.New("media has no audio track")

// DigestBuilder produces the reference digest video: a fixed-width re-encode of a
// source at a fixed quality. Identical inputs and parameters must produce
// identical output bytes.
type DigestBuilder interface {
	BuildDigest(ctx context.Context, sourcePath string, params manifest.DigestParams, outPath string) error
}

// SimilarityComparer returns per-frame similarity scores between two digests,
// aligned frame-for-frame, in frame order.
type SimilarityComparer interface {
	Compare(ctx context.Context, referencePath, candidatePath string) ([]float64, error)
}

// MediaProber reports frame count, frame rate and duration of a video.
type MediaProber interface {
	Probe(ctx context.Context, path string) (manifest.DigestProperties, error)
}

// AudioMatch is the outcome of comparing two audio fingerprints.
type AudioMatch struct {
	Score   float64
	Matched bool
}

// AudioFingerprinter extracts and compares audio fingerprints.
type AudioFingerprinter interface {
	// Fingerprint returns the fingerprint of the audio track of mediaPath,
	// or ErrNoAudio if there is none.
	Fingerprint(ctx context.Context, mediaPath string) (*manifest.AudioFingerprint, error)

	// Match compares two fingerprints produced by the same algorithm.
	Match(a, b *manifest.AudioFingerprint) (AudioMatch, error)
}

// ClipExtractor cuts short inspection clips out of videos.
type ClipExtractor interface {
	// ExtractClip copies [start, start+length) of videoPath to outPath.
	ExtractClip(ctx context.Context, videoPath, outPath string, start, length time.Duration) error

	// SideBySide renders [start, start+length) of left and right next to each
	// other, right scaled to the size of left, each under its label.
	SideBySide(ctx context.Context, left, right LabeledVideo, outPath string, start, length time.Duration) error
}

// LabeledVideo is one input of a side-by-side clip.
type LabeledVideo struct {
	Path  string
	Label string
}

// Tools bundles the external collaborators used to sign and verify.
type Tools struct {
	Digests      DigestBuilder
	Comparer     SimilarityComparer
	Prober       MediaProber
	Fingerprints AudioFingerprinter
	Clips        ClipExtractor
}
