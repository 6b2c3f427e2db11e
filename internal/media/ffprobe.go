package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"reeltrust/internal/manifest"
	"reeltrust/internal/reel"
)

// FFprobe reports stream properties of media files.
type FFprobe struct {
	path   string
	runner Runner
}

var _ reel.MediaProber = (*FFprobe)(nil)

// NewFFprobe creates an FFprobe collaborator for the binary at path.
func NewFFprobe(path string, runner Runner) *FFprobe {
	return &FFprobe{path: path, runner: runner}
}

// Probe counts the packets of the first video stream and reads its frame rate
// and duration.
func (p *FFprobe) Probe(ctx context.Context, path string) (manifest.DigestProperties, error) {
	out, err := p.runner.Run(ctx, p.path,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets,avg_frame_rate,r_frame_rate,duration:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return manifest.DigestProperties{}, fmt.Errorf("probing %s: %w", path, err)
	}
	return ParseProbeOutput(out)
}

// HasAudio reports whether path has at least one audio stream.
func (p *FFprobe) HasAudio(ctx context.Context, path string) (bool, error) {
	out, err := p.runner.Run(ctx, p.path,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return false, fmt.Errorf("probing audio of %s: %w", path, err)
	}
	return len(bytes.TrimSpace(out)) > 0, nil
}

type probeOutput struct {
	Streams []struct {
		NbReadPackets string `json:"nb_read_packets"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		RFrameRate    string `json:"r_frame_rate"`
		Duration      string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ParseProbeOutput decodes ffprobe's JSON output for a single video stream.
func ParseProbeOutput(data []byte) (manifest.DigestProperties, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return manifest.DigestProperties{}, fmt.Errorf("decoding ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return manifest.DigestProperties{}, fmt.Errorf("no video stream")
	}
	s := out.Streams[0]

	var props manifest.DigestProperties
	frames, err := strconv.Atoi(s.NbReadPackets)
	if err != nil {
		return props, fmt.Errorf("parsing frame count %q: %w", s.NbReadPackets, err)
	}
	props.FrameCount = frames

	fps, err := parseRate(s.AvgFrameRate)
	if err != nil || fps == 0 {
		if fps, err = parseRate(s.RFrameRate); err != nil {
			return props, fmt.Errorf("parsing frame rate: %w", err)
		}
	}
	props.FPS = fps

	duration := s.Duration
	if duration == "" || duration == "N/A" {
		duration = out.Format.Duration
	}
	if duration != "" && duration != "N/A" {
		if props.DurationSeconds, err = strconv.ParseFloat(duration, 64); err != nil {
			return props, fmt.Errorf("parsing duration %q: %w", duration, err)
		}
	}
	return props, nil
}

// parseRate parses an ffprobe rational such as "30000/1001".
func parseRate(s string) (float64, error) {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q", s)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q", s)
	}
	if d == 0 {
		return 0, nil
	}
	return n / d, nil
}
