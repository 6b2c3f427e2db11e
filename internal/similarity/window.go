// Package similarity aggregates per-frame similarity scores into fixed-duration
// windows and finds the weakest window.
//
// A flat average over a whole video lets a short, severe edit be diluted by many
// untouched frames. Scoring contiguous windows independently and taking the
// minimum keeps a localized edit visible regardless of video length.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultWindowDuration is the window length used when none is configured.
const DefaultWindowDuration = 5 * time.Second

// ErrEmptyComparison is returned when there are no frame scores to analyze.
var ErrEmptyComparison = errors.New("no frame similarity scores to analyze")

// Window is the aggregate score of one contiguous run of frames.
// EndFrame is exclusive.
type Window struct {
	Index      int
	StartFrame int
	EndFrame   int
	Start      time.Duration
	End        time.Duration
	Mean       float64
	Min        float64
	MinFrame   int
}

// Frames returns the number of frames in the window.
func (w Window) Frames() int { return w.EndFrame - w.StartFrame }

// TimeRange renders the window as "HH:MM:SS-HH:MM:SS".
func (w Window) TimeRange() string {
	return FormatTimestamp(w.Start) + "-" + FormatTimestamp(w.End)
}

// Report is the full result of a windowed analysis.
type Report struct {
	WindowSize int
	FrameRate  float64
	FrameCount int
	Windows    []Window
	Worst      Window
}

// WorstN returns up to n windows ordered by ascending mean. Ties keep frame order.
func (r Report) WorstN(n int) []Window {
	sorted := make([]Window, len(r.Windows))
	copy(sorted, r.Windows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Mean < sorted[j].Mean
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// MinFrame returns the lowest single-frame score across all windows and its index.
func (r Report) MinFrame() (float64, int) {
	best, idx := math.Inf(1), -1
	for _, w := range r.Windows {
		if w.Min < best {
			best, idx = w.Min, w.MinFrame
		}
	}
	return best, idx
}

// WindowSize returns the number of frames in a window of duration d at fps.
// The result is never less than one frame.
func WindowSize(fps float64, d time.Duration) int {
	n := int(math.Round(fps * d.Seconds()))
	if n < 1 {
		return 1
	}
	return n
}

// WindowedMinimum returns the minimum window score and that window's index.
func WindowedMinimum(scores []float64, windowSize int, frameRate float64) (float64, int, error) {
	r, err := Analyze(context.Background(), scores, windowSize, frameRate)
	if err != nil {
		return 0, 0, err
	}
	return r.Worst.Mean, r.Worst.Index, nil
}

// Analyze partitions scores into contiguous non-overlapping windows of windowSize
// frames and scores each by its arithmetic mean. A sequence shorter than one window
// is a single window, and a short final window is scored like any other.
// Windows are scored concurrently; the result does not depend on scheduling and the
// lowest index wins ties.
func Analyze(ctx context.Context, scores []float64, windowSize int, frameRate float64) (*Report, error) {
	if len(scores) == 0 {
		return nil, ErrEmptyComparison
	}
	if frameRate <= 0 || math.IsNaN(frameRate) || math.IsInf(frameRate, 0) {
		return nil, fmt.Errorf("invalid frame rate %v", frameRate)
	}
	if windowSize < 1 {
		windowSize = 1
	}
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("frame %d: invalid similarity score %v", i, s)
		}
	}

	count := (len(scores) + windowSize - 1) / windowSize
	windows := make([]Window, count)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := i * windowSize
			end := min(start+windowSize, len(scores))
			windows[i] = scoreWindow(i, scores[start:end], start, frameRate)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	worst := windows[0]
	for _, w := range windows[1:] {
		if w.Mean < worst.Mean {
			worst = w
		}
	}

	return &Report{
		WindowSize: windowSize,
		FrameRate:  frameRate,
		FrameCount: len(scores),
		Windows:    windows,
		Worst:      worst,
	}, nil
}

func scoreWindow(index int, frames []float64, start int, fps float64) Window {
	var sum float64
	lo, loAt := frames[0], start
	for i, s := range frames {
		sum += s
		if s < lo {
			lo, loAt = s, start+i
		}
	}
	end := start + len(frames)
	return Window{
		Index:      index,
		StartFrame: start,
		EndFrame:   end,
		Start:      frameTime(start, fps),
		End:        frameTime(end, fps),
		Mean:       sum / float64(len(frames)),
		Min:        lo,
		MinFrame:   loAt,
	}
}

func frameTime(frame int, fps float64) time.Duration {
	return time.Duration(float64(frame) * float64(time.Second) / fps)
}

// FormatTimestamp renders d as HH:MM:SS, truncating fractional seconds.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}
