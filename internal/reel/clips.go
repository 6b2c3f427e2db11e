package reel

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"reeltrust/internal/manifest"
)

const (
	// clipLeadIn is how far before a window its clip starts.
	clipLeadIn = 1500 * time.Millisecond
	// clipMergeGap joins clips that start within this distance of the end of the previous one.
	clipMergeGap = 5 * time.Second
)

// ClipSpan is a stretch of the candidate covering one or more low-scoring
// similarity windows.
type ClipSpan struct {
	Start   time.Duration
	End     time.Duration
	Windows []WindowSummary
}

// Length returns the duration of the span.
func (s ClipSpan) Length() time.Duration { return s.End - s.Start }

// MergeClipSpans turns windows into spans starting clipLeadIn before each
// window, ordered by start. Spans that overlap or start within clipMergeGap
// of the previous span's end are merged.
func MergeClipSpans(windows []WindowSummary, fps float64) []ClipSpan {
	if len(windows) == 0 || fps <= 0 {
		return nil
	}
	spans := make([]ClipSpan, 0, len(windows))
	for _, w := range windows {
		spans = append(spans, ClipSpan{
			Start:   max(frameOffset(w.StartFrame, fps)-clipLeadIn, 0),
			End:     frameOffset(w.EndFrame, fps),
			Windows: []WindowSummary{w},
		})
	}
	slices.SortStableFunc(spans, func(a, b ClipSpan) int { return cmp.Compare(a.Start, b.Start) })

	merged := []ClipSpan{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End+clipMergeGap {
			last.End = max(last.End, s.End)
			last.Windows = append(last.Windows, s.Windows...)
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func frameOffset(frame int, fps float64) time.Duration {
	return time.Duration(float64(frame) / fps * float64(time.Second))
}

// InspectionClip is the outcome of extracting one ClipSpan.
type InspectionClip struct {
	Span           ClipSpan
	ClipPath       string
	ComparisonPath string // empty when no comparison was rendered
	Err            error
}

// ClipSet is the set of inspection clips written for one verification.
type ClipSet struct {
	Dir   string
	Clips []InspectionClip
}

// ExtractClips writes a clip of the candidate around each of the worst
// windows of a SimilarityBelowThreshold result, plus a side-by-side
// comparison with the package's reference digest. Clips go to
// <outDir>/<candidate name without extension>, replacing anything there.
// A failure to render a single clip is recorded in that clip's Err.
// Results with any other reason produce no clips.
func (v *Verifier) ExtractClips(ctx context.Context, r *Result, packageDir, candidatePath, outDir string) (*ClipSet, error) {
	if r == nil || r.Reason != ReasonSimilarityBelowThreshold || r.Similarity == nil {
		return &ClipSet{}, nil
	}
	if v.tools.Clips == nil {
		return nil, collaboratorError("clip extraction", errors.New("no clip extractor configured"))
	}

	stem := strings.TrimSuffix(filepath.Base(candidatePath), filepath.Ext(candidatePath))
	dir := filepath.Join(outDir, stem)
	if err := os.RemoveAll(dir); err != nil {
		return nil, inputError(dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, inputError(dir, err)
	}

	reference := filepath.Join(packageDir, manifest.DigestVideoFile)
	if _, err := os.Stat(reference); err != nil {
		v.logger.Warn("reference digest unavailable; skipping comparisons", "path", reference, "error", err)
		reference = ""
	}

	set := &ClipSet{Dir: dir}
	for i, span := range MergeClipSpans(r.Similarity.WorstWindows, r.Similarity.FrameRate) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		at := strings.ReplaceAll(span.Windows[0].Start, ":", "-")
		clip := InspectionClip{
			Span:     span,
			ClipPath: filepath.Join(dir, fmt.Sprintf("clip_%02d_at_%s.mp4", i+1, at)),
		}
		if err := v.tools.Clips.ExtractClip(ctx, candidatePath, clip.ClipPath, span.Start, span.Length()); err != nil {
			clip.Err = collaboratorError("clip extraction", err)
		} else if reference != "" {
			out := filepath.Join(dir, fmt.Sprintf("comparison_%02d_at_%s.mp4", i+1, at))
			err := v.tools.Clips.SideBySide(ctx,
				LabeledVideo{Path: candidatePath, Label: "Candidate"},
				LabeledVideo{Path: reference, Label: "Signed digest (scaled up)"},
				out, span.Start, span.Length())
			if err != nil {
				clip.Err = collaboratorError("side-by-side clip", err)
			} else {
				clip.ComparisonPath = out
			}
		}
		if clip.Err != nil {
			v.logger.Warn("inspection clip failed", "clip", i+1, "error", clip.Err)
		} else {
			v.logger.Info("inspection clip written", "clip", clip.ClipPath, "comparison", clip.ComparisonPath)
		}
		set.Clips = append(set.Clips, clip)
	}
	return set, nil
}
