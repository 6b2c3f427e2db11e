package testutil

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"reeltrust/internal/manifest"
	"reeltrust/internal/reel"
)

// FakeMedia is a tiny text stand-in for a video file that the fake
// collaborators understand:
//
//	video=<picture content>
//	audio=<audio content, absent for silent media>
//	frames=<frame count>
//	fps=<frame rate>
//	extra=<bytes that change the file but not the picture or sound>
type FakeMedia struct {
	Video  string
	Audio  string
	Frames int
	FPS    float64
	Extra  string
}

// Bytes renders m in the fake media format.
func (m FakeMedia) Bytes() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "video=%s\n", m.Video)
	if m.Audio != "" {
		fmt.Fprintf(&b, "audio=%s\n", m.Audio)
	}
	fmt.Fprintf(&b, "frames=%d\n", m.Frames)
	fmt.Fprintf(&b, "fps=%s\n", strconv.FormatFloat(m.FPS, 'g', -1, 64))
	if m.Extra != "" {
		fmt.Fprintf(&b, "extra=%s\n", m.Extra)
	}
	return b.Bytes()
}

// Duration returns the media duration in seconds.
func (m FakeMedia) Duration() float64 {
	if m.FPS <= 0 {
		return 0
	}
	return float64(m.Frames) / m.FPS
}

// ClipMedia returns a 10 second, 30 fps clip with audio.
func ClipMedia() FakeMedia {
	return FakeMedia{Video: "harbour-at-dawn", Audio: "gulls-and-engines", Frames: 300, FPS: 30}
}

// WriteMedia writes m to dir/name and returns the path.
func WriteMedia(t *testing.T, dir, name string, m FakeMedia) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, m.Bytes(), 0o644); err != nil {
		t.Fatalf("writing media %s: %v", path, err)
	}
	return path
}

// ReadMedia parses a fake media file.
func ReadMedia(path string) (FakeMedia, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FakeMedia{}, err
	}
	var m FakeMedia
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			return FakeMedia{}, fmt.Errorf("%s: not a fake media file", path)
		}
		switch key {
		case "video":
			m.Video = value
		case "audio":
			m.Audio = value
		case "frames":
			if m.Frames, err = strconv.Atoi(value); err != nil {
				return FakeMedia{}, fmt.Errorf("%s: %w", path, err)
			}
		case "fps":
			if m.FPS, err = strconv.ParseFloat(value, 64); err != nil {
				return FakeMedia{}, fmt.Errorf("%s: %w", path, err)
			}
		case "extra":
			m.Extra = value
		}
	}
	return m, sc.Err()
}

// FakeDigestBuilder "re-encodes" fake media: the digest keeps the picture,
// frame count and rate, tagged with the build parameters, and drops audio and
// extra bytes. Equal pictures therefore give byte-identical digests.
type FakeDigestBuilder struct {
	mu    sync.Mutex
	Err   error
	Calls int
}

func (f *FakeDigestBuilder) BuildDigest(ctx context.Context, sourcePath string, params manifest.DigestParams, outPath string) error {
	f.mu.Lock()
	f.Calls++
	f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	src, err := ReadMedia(sourcePath)
	if err != nil {
		return err
	}
	digest := FakeMedia{
		Video:  fmt.Sprintf("%s@%dw/crf%d", src.Video, params.Width, params.Quality),
		Frames: src.Frames,
		FPS:    src.FPS,
	}
	return os.WriteFile(outPath, digest.Bytes(), 0o644)
}

// FakeComparer returns Scores when set. Otherwise it scores every frame of
// the shorter digest 1 for equal pictures and Mismatch for different ones.
type FakeComparer struct {
	Scores   []float64
	Mismatch float64
	Err      error
	Calls    int
}

func (f *FakeComparer) Compare(ctx context.Context, referencePath, candidatePath string) ([]float64, error) {
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Scores != nil {
		return append([]float64(nil), f.Scores...), nil
	}
	ref, err := ReadMedia(referencePath)
	if err != nil {
		return nil, err
	}
	cand, err := ReadMedia(candidatePath)
	if err != nil {
		return nil, err
	}
	score := 1.0
	if ref.Video != cand.Video {
		score = f.Mismatch
	}
	scores := make([]float64, min(ref.Frames, cand.Frames))
	for i := range scores {
		scores[i] = score
	}
	return scores, nil
}

// FakeProber reads the frame count and rate from fake media.
type FakeProber struct {
	Err   error
	Calls int
}

func (f *FakeProber) Probe(ctx context.Context, path string) (manifest.DigestProperties, error) {
	f.Calls++
	if f.Err != nil {
		return manifest.DigestProperties{}, f.Err
	}
	m, err := ReadMedia(path)
	if err != nil {
		return manifest.DigestProperties{}, err
	}
	return manifest.DigestProperties{FrameCount: m.Frames, FPS: m.FPS, DurationSeconds: m.Duration()}, nil
}

// FakeFingerprinter fingerprints the audio line of fake media. Fingerprints
// match when their payloads are equal.
type FakeFingerprinter struct {
	Err      error
	MatchErr error
}

// FakeAudioAlgorithm tags fingerprints made by FakeFingerprinter.
const FakeAudioAlgorithm = "fake"

// FakeFingerprint returns the fingerprint FakeFingerprinter computes for m.
func FakeFingerprint(m FakeMedia) *manifest.AudioFingerprint {
	if m.Audio == "" {
		return manifest.SilentFingerprint()
	}
	return &manifest.AudioFingerprint{
		Algorithm:       FakeAudioAlgorithm,
		Version:         "1",
		DurationSeconds: m.Duration(),
		Payload:         base64.StdEncoding.EncodeToString([]byte(m.Audio)),
	}
}

func (f *FakeFingerprinter) Fingerprint(ctx context.Context, mediaPath string) (*manifest.AudioFingerprint, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	m, err := ReadMedia(mediaPath)
	if err != nil {
		return nil, err
	}
	if m.Audio == "" {
		return nil, reel.ErrNoAudio
	}
	return FakeFingerprint(m), nil
}

func (f *FakeFingerprinter) Match(a, b *manifest.AudioFingerprint) (reel.AudioMatch, error) {
	if f.MatchErr != nil {
		return reel.AudioMatch{}, f.MatchErr
	}
	if a.Payload == b.Payload {
		return reel.AudioMatch{Score: 1, Matched: true}, nil
	}
	return reel.AudioMatch{Score: 0, Matched: false}, nil
}

// ClipCall records one FakeClipExtractor invocation.
type ClipCall struct {
	Inputs []string
	Out    string
	Start  time.Duration
	Length time.Duration
}

// FakeClipExtractor writes a one-line description of each clip it is asked
// for. SideBySideErr fails comparisons only.
type FakeClipExtractor struct {
	Err           error
	SideBySideErr error
	Calls         []ClipCall
}

func (f *FakeClipExtractor) ExtractClip(ctx context.Context, videoPath, outPath string, start, length time.Duration) error {
	f.Calls = append(f.Calls, ClipCall{Inputs: []string{videoPath}, Out: outPath, Start: start, Length: length})
	if f.Err != nil {
		return f.Err
	}
	return os.WriteFile(outPath, []byte(fmt.Sprintf("clip of %s from %s for %s\n", videoPath, start, length)), 0o644)
}

func (f *FakeClipExtractor) SideBySide(ctx context.Context, left, right reel.LabeledVideo, outPath string, start, length time.Duration) error {
	f.Calls = append(f.Calls, ClipCall{Inputs: []string{left.Path, right.Path}, Out: outPath, Start: start, Length: length})
	if f.Err != nil {
		return f.Err
	}
	if f.SideBySideErr != nil {
		return f.SideBySideErr
	}
	return os.WriteFile(outPath, []byte(fmt.Sprintf("%s | %s from %s for %s\n", left.Label, right.Label, start, length)), 0o644)
}

// FakeTools bundles the fake collaborators.
type FakeTools struct {
	Digests      *FakeDigestBuilder
	Comparer     *FakeComparer
	Prober       *FakeProber
	Fingerprints *FakeFingerprinter
	Clips        *FakeClipExtractor
}

// NewFakeTools returns fresh fakes. Different pictures score 0.5 per frame.
func NewFakeTools() *FakeTools {
	return &FakeTools{
		Digests:      &FakeDigestBuilder{},
		Comparer:     &FakeComparer{Mismatch: 0.5},
		Prober:       &FakeProber{},
		Fingerprints: &FakeFingerprinter{},
		Clips:        &FakeClipExtractor{},
	}
}

// Tools returns the fakes as reel.Tools.
func (f *FakeTools) Tools() reel.Tools {
	return reel.Tools{
		Digests:      f.Digests,
		Comparer:     f.Comparer,
		Prober:       f.Prober,
		Fingerprints: f.Fingerprints,
		Clips:        f.Clips,
	}
}
