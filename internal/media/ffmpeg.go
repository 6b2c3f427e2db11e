package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"reeltrust/internal/manifest"
	"reeltrust/internal/reel"
)

// FFmpeg builds reference digests and compares them frame by frame.
type FFmpeg struct {
	path   string
	runner Runner
}

var (
	_ reel.DigestBuilder      = (*FFmpeg)(nil)
	_ reel.SimilarityComparer = (*FFmpeg)(nil)
)

// NewFFmpeg creates an FFmpeg collaborator for the binary at path.
func NewFFmpeg(path string, runner Runner) *FFmpeg {
	return &FFmpeg{path: path, runner: runner}
}

// digestArgs is the ffmpeg command line for a reference digest. The encode is
// single-threaded and bitexact so equal inputs give equal bytes.
func digestArgs(sourcePath string, params manifest.DigestParams, outPath string) []string {
	return []string{
		"-nostdin", "-hide_banner", "-nostats", "-v", "error",
		"-i", sourcePath,
		"-map", "0:v:0",
		"-vf", fmt.Sprintf("scale=%d:-2", params.Width),
		"-c:v", "libx264",
		"-crf", strconv.Itoa(int(params.Quality)),
		"-preset", "slow",
		"-pix_fmt", "yuv420p",
		"-threads", "1",
		"-an", "-sn", "-dn",
		"-map_metadata", "-1",
		"-fflags", "+bitexact",
		"-flags:v", "+bitexact",
		"-f", "mp4",
		"-y", outPath,
	}
}

// BuildDigest re-encodes sourcePath to a low resolution H.264 digest at outPath.
func (f *FFmpeg) BuildDigest(ctx context.Context, sourcePath string, params manifest.DigestParams, outPath string) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if _, err := f.runner.Run(ctx, f.path, digestArgs(sourcePath, params, outPath)...); err != nil {
		return fmt.Errorf("building digest: %w", err)
	}
	return nil
}

// Compare runs ffmpeg's ssim filter over two digests and returns the
// per-frame "All" scores in frame order.
func (f *FFmpeg) Compare(ctx context.Context, referencePath, candidatePath string) ([]float64, error) {
	args := []string{
		"-nostdin", "-hide_banner", "-nostats", "-v", "error",
		"-i", referencePath,
		"-i", candidatePath,
		"-filter_complex", "[0:v][1:v]ssim=stats_file=-",
		"-f", "null", "-",
	}
	out, err := f.runner.Run(ctx, f.path, args...)
	if err != nil {
		return nil, fmt.Errorf("computing ssim: %w", err)
	}
	return ParseSSIMStats(bytes.NewReader(out))
}

// ParseSSIMStats parses ssim filter statistics, one line per frame:
//
//	n:1 Y:0.987 U:0.991 V:0.990 All:0.988 (19.2)
func ParseSSIMStats(r io.Reader) ([]float64, error) {
	var scores []float64
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		score, ok := ssimField(line, "All:")
		if !ok {
			return nil, fmt.Errorf("ssim stats line %d: missing All score: %q", lineNo, line)
		}
		v, err := strconv.ParseFloat(score, 64)
		if err != nil {
			return nil, fmt.Errorf("ssim stats line %d: %w", lineNo, err)
		}
		scores = append(scores, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ssim stats: %w", err)
	}
	return scores, nil
}

func ssimField(line, prefix string) (string, bool) {
	for _, field := range strings.Fields(line) {
		if v, ok := strings.CutPrefix(field, prefix); ok {
			return v, true
		}
	}
	return "", false
}
