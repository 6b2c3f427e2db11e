package media

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/bits"

	"reeltrust/internal/manifest"
	"reeltrust/internal/reel"
)

const (
	// ChromaprintAlgorithm tags fingerprints produced by fpcalc.
	ChromaprintAlgorithm = "chromaprint"
	chromaprintVersion   = "1"

	// DefaultAudioMatchThreshold is the minimum bit-agreement score for a match.
	DefaultAudioMatchThreshold = 0.75

	// Each raw item covers about 0.124s; 80 items tolerate a ~10s offset.
	maxAlignShift = 80
	minOverlap    = 8
)

// Chromaprint fingerprints audio tracks with fpcalc and compares raw
// fingerprints by bit agreement at the best alignment.
type Chromaprint struct {
	path      string
	runner    Runner
	probe     *FFprobe
	threshold float64
}

var _ reel.AudioFingerprinter = (*Chromaprint)(nil)

// NewChromaprint creates a fingerprinter for the fpcalc binary at path. probe
// detects media without audio; threshold is the minimum score for a match.
func NewChromaprint(path string, runner Runner, probe *FFprobe, threshold float64) *Chromaprint {
	if threshold <= 0 {
		threshold = DefaultAudioMatchThreshold
	}
	return &Chromaprint{path: path, runner: runner, probe: probe, threshold: threshold}
}

type fpcalcOutput struct {
	Duration    float64 `json:"duration"`
	Fingerprint []int64 `json:"fingerprint"`
}

// Fingerprint runs fpcalc over the whole audio track of mediaPath.
func (c *Chromaprint) Fingerprint(ctx context.Context, mediaPath string) (*manifest.AudioFingerprint, error) {
	hasAudio, err := c.probe.HasAudio(ctx, mediaPath)
	if err != nil {
		return nil, err
	}
	if !hasAudio {
		return nil, reel.ErrNoAudio
	}

	out, err := c.runner.Run(ctx, c.path, "-raw", "-json", "-length", "0", mediaPath)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting %s: %w", mediaPath, err)
	}
	return ParseFPCalcOutput(out)
}

// ParseFPCalcOutput converts `fpcalc -raw -json` output to a fingerprint whose
// payload is the base64 of the raw items as little-endian uint32.
func ParseFPCalcOutput(data []byte) (*manifest.AudioFingerprint, error) {
	var out fpcalcOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding fpcalc output: %w", err)
	}
	if len(out.Fingerprint) == 0 {
		return nil, fmt.Errorf("fpcalc returned an empty fingerprint")
	}
	raw := make([]uint32, len(out.Fingerprint))
	for i, v := range out.Fingerprint {
		// fpcalc prints unsigned items unless -signed is given
		raw[i] = uint32(v)
	}
	return &manifest.AudioFingerprint{
		Algorithm:       ChromaprintAlgorithm,
		Version:         chromaprintVersion,
		DurationSeconds: out.Duration,
		Payload:         EncodeRaw(raw),
	}, nil
}

// EncodeRaw encodes raw fingerprint items as base64 little-endian uint32.
func EncodeRaw(raw []uint32) string {
	buf := make([]byte, 4*len(raw))
	for i, v := range raw {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeRaw reverses EncodeRaw.
func DecodeRaw(payload string) ([]uint32, error) {
	buf, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding fingerprint payload: %w", err)
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("fingerprint payload length %d is not a multiple of 4", len(buf))
	}
	raw := make([]uint32, len(buf)/4)
	for i := range raw {
		raw[i] = binary.LittleEndian.Uint32(buf[4*i:])
	}
	return raw, nil
}

// Match scores two chromaprint fingerprints.
func (c *Chromaprint) Match(a, b *manifest.AudioFingerprint) (reel.AudioMatch, error) {
	for _, f := range []*manifest.AudioFingerprint{a, b} {
		if f.Algorithm != ChromaprintAlgorithm {
			return reel.AudioMatch{}, fmt.Errorf("unsupported fingerprint algorithm %q", f.Algorithm)
		}
		if !f.HasAudio() {
			return reel.AudioMatch{}, fmt.Errorf("fingerprint has no audio payload")
		}
	}
	ra, err := DecodeRaw(a.Payload)
	if err != nil {
		return reel.AudioMatch{}, err
	}
	rb, err := DecodeRaw(b.Payload)
	if err != nil {
		return reel.AudioMatch{}, err
	}
	score := Similarity(ra, rb)
	return reel.AudioMatch{Score: score, Matched: score >= c.threshold}, nil
}

// Similarity returns the best fraction of agreeing bits between a and b over
// all alignments within maxAlignShift items. Overlaps shorter than minOverlap
// items (or half the shorter input) are ignored; no usable overlap scores 0.
func Similarity(a, b []uint32) float64 {
	need := min(len(a), len(b)) / 2
	need = max(need, min(minOverlap, min(len(a), len(b))))
	if need == 0 {
		return 0
	}

	best := 0.0
	for shift := -maxAlignShift; shift <= maxAlignShift; shift++ {
		var diff, n int
		for i := range a {
			j := i + shift
			if j < 0 || j >= len(b) {
				continue
			}
			diff += bits.OnesCount32(a[i] ^ b[j])
			n++
		}
		if n < need {
			continue
		}
		if s := 1 - float64(diff)/float64(32*n); s > best {
			best = s
		}
	}
	return best
}
