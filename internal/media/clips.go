package media

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"reeltrust/internal/reel"
)

var _ reel.ClipExtractor = (*FFmpeg)(nil)

// ExtractClip copies a stretch of videoPath to outPath without re-encoding.
// Cuts land on the nearest keyframe before start.
func (f *FFmpeg) ExtractClip(ctx context.Context, videoPath, outPath string, start, length time.Duration) error {
	args := []string{
		"-nostdin", "-hide_banner", "-nostats", "-v", "error",
		"-ss", seconds(start),
		"-i", videoPath,
		"-t", seconds(length),
		"-c", "copy",
		"-y", outPath,
	}
	if _, err := f.runner.Run(ctx, f.path, args...); err != nil {
		return fmt.Errorf("extracting clip: %w", err)
	}
	return nil
}

// SideBySide stacks the same stretch of two videos horizontally. The right
// video is scaled to the size of the left one, and each half is labeled.
func (f *FFmpeg) SideBySide(ctx context.Context, left, right reel.LabeledVideo, outPath string, start, length time.Duration) error {
	filter := "[1:v][0:v]scale2ref[right][left];" +
		"[left][right]hstack[stacked];" +
		"[stacked]" + drawtext(left.Label, "w/4-text_w/2") + "," + drawtext(right.Label, "3*w/4-text_w/2")
	args := []string{
		"-nostdin", "-hide_banner", "-nostats", "-v", "error",
		"-ss", seconds(start), "-i", left.Path,
		"-ss", seconds(start), "-i", right.Path,
		"-t", seconds(length),
		"-filter_complex", filter,
		"-an",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "18",
		"-y", outPath,
	}
	if _, err := f.runner.Run(ctx, f.path, args...); err != nil {
		return fmt.Errorf("rendering side-by-side clip: %w", err)
	}
	return nil
}

func drawtext(label, x string) string {
	return "drawtext=text='" + escapeDrawtext(label) + "'" +
		":fontcolor=white:fontsize=24:box=1:boxcolor=black@0.5:boxborderw=5" +
		":x=" + x + ":y=10"
}

var drawtextStripper = strings.NewReplacer(`\`, "", `'`, "", "%", "")

// escapeDrawtext drops the characters that would end the quoted text value or
// start a drawtext expansion.
func escapeDrawtext(s string) string {
	return drawtextStripper.Replace(s)
}

// seconds formats d for ffmpeg's -ss and -t options.
func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
