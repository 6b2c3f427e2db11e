package media

import (
	"time"

	"reeltrust/internal/config"
	"reeltrust/internal/reel"
)

// NewToolsFromConfig wires the ffmpeg, ffprobe and fpcalc collaborators.
func NewToolsFromConfig(cfg config.ToolsConfig, audioMatchThreshold float64) reel.Tools {
	runner := ExecRunner{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	return NewTools(cfg, runner, audioMatchThreshold)
}

// NewTools wires the collaborators around an arbitrary Runner.
func NewTools(cfg config.ToolsConfig, runner Runner, audioMatchThreshold float64) reel.Tools {
	ffmpeg := NewFFmpeg(cfg.FFmpeg, runner)
	probe := NewFFprobe(cfg.FFprobe, runner)
	return reel.Tools{
		Digests:      ffmpeg,
		Comparer:     ffmpeg,
		Prober:       probe,
		Fingerprints: NewChromaprint(cfg.FPCalc, runner, probe, audioMatchThreshold),
		Clips:        ffmpeg,
	}
}
