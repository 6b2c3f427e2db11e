package reel

import (
	"fmt"
	"io"
	"strings"

	"reeltrust/internal/similarity"
)

// Verdict is the binary outcome of a verification.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// Reason explains a failing verdict.
type Reason string

const (
	ReasonMissingArtifact          Reason = "MissingArtifact"
	ReasonSchemaError              Reason = "SchemaError"
	ReasonHashMismatch             Reason = "HashMismatch"
	ReasonSignatureMismatch        Reason = "SignatureMismatch"
	ReasonStrictHashMismatch       Reason = "StrictHashMismatch"
	ReasonSimilarityBelowThreshold Reason = "SimilarityBelowThreshold"
	ReasonFrameCountMismatch       Reason = "FrameCountMismatch"
	ReasonAudioMismatch            Reason = "AudioMismatch"
)

func reasonForKind(k Kind) Reason {
	switch k {
	case KindMissingArtifact:
		return ReasonMissingArtifact
	case KindSchema:
		return ReasonSchemaError
	case KindHashMismatch:
		return ReasonHashMismatch
	case KindSignatureMismatch:
		return ReasonSignatureMismatch
	}
	return Reason(k)
}

// Structural reports whether the reason is a package defect rather than a
// content mismatch.
func (r Reason) Structural() bool {
	switch r {
	case ReasonMissingArtifact, ReasonSchemaError, ReasonHashMismatch, ReasonSignatureMismatch:
		return true
	}
	return false
}

// CheckName identifies an individual verification check.
type CheckName string

const (
	CheckPackageStructure CheckName = "package_structure"
	CheckSourceHash       CheckName = "source_hash"
	CheckDigestHash       CheckName = "digest_hash"
	CheckSimilarity       CheckName = "similarity"
	CheckFrameCount       CheckName = "frame_count"
	CheckAudioFingerprint CheckName = "audio_fingerprint"
)

// CheckOrder is the order checks are evaluated and reported in.
var CheckOrder = []CheckName{
	CheckPackageStructure,
	CheckSourceHash,
	CheckDigestHash,
	CheckSimilarity,
	CheckFrameCount,
	CheckAudioFingerprint,
}

// CheckStatus is the outcome of one check.
type CheckStatus string

const (
	StatusPass         CheckStatus = "pass"
	StatusFail         CheckStatus = "fail"
	StatusNotEvaluated CheckStatus = "not_evaluated"
	StatusError        CheckStatus = "error"
)

// Check is the recorded outcome of one check.
type Check struct {
	Name   CheckName   `json:"name"`
	Status CheckStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
	Score  *float64    `json:"score,omitempty"`
}

// WindowSummary describes one similarity window in a report.
type WindowSummary struct {
	Index      int     `json:"index"`
	StartFrame int     `json:"start_frame"`
	EndFrame   int     `json:"end_frame"`
	Start      string  `json:"start"`
	End        string  `json:"end"`
	Mean       float64 `json:"mean"`
	Min        float64 `json:"min"`
}

// SimilarityReport summarizes the windowed similarity analysis.
type SimilarityReport struct {
	Threshold      float64         `json:"threshold"`
	FrameRate      float64         `json:"frame_rate"`
	WindowSize     int             `json:"window_size"`
	FrameCount     int             `json:"frame_count"`
	WindowCount    int             `json:"window_count"`
	MinWindowScore float64         `json:"min_window_score"`
	MinWindow      WindowSummary   `json:"min_window"`
	WorstWindows   []WindowSummary `json:"worst_windows"`
	MinFrameScore  float64         `json:"min_frame_score"`
	MinFrameIndex  int             `json:"min_frame_index"`
}

const worstWindowCount = 3

func newSimilarityReport(r *similarity.Report, threshold float64) *SimilarityReport {
	worst := r.WorstN(worstWindowCount)
	summaries := make([]WindowSummary, len(worst))
	for i, w := range worst {
		summaries[i] = summarizeWindow(w)
	}
	minScore, minIdx := r.MinFrame()
	return &SimilarityReport{
		Threshold:      threshold,
		FrameRate:      r.FrameRate,
		WindowSize:     r.WindowSize,
		FrameCount:     r.FrameCount,
		WindowCount:    len(r.Windows),
		MinWindowScore: r.Worst.Mean,
		MinWindow:      summarizeWindow(r.Worst),
		WorstWindows:   summaries,
		MinFrameScore:  minScore,
		MinFrameIndex:  minIdx,
	}
}

func summarizeWindow(w similarity.Window) WindowSummary {
	return WindowSummary{
		Index:      w.Index,
		StartFrame: w.StartFrame,
		EndFrame:   w.EndFrame,
		Start:      similarity.FormatTimestamp(w.Start),
		End:        similarity.FormatTimestamp(w.End),
		Mean:       w.Mean,
		Min:        w.Min,
	}
}

// Result is the report of one verification. It carries no timestamps, so
// identical inputs always produce identical results.
type Result struct {
	Verdict       Verdict           `json:"verdict"`
	Reason        Reason            `json:"reason,omitempty"`
	Message       string            `json:"message"`
	PackageID     string            `json:"package_id,omitempty"`
	CandidateHash string            `json:"candidate_hash,omitempty"`
	Checks        []Check           `json:"checks"`
	Similarity    *SimilarityReport `json:"similarity,omitempty"`
}

func newResult() *Result {
	r := &Result{Checks: make([]Check, len(CheckOrder))}
	for i, name := range CheckOrder {
		r.Checks[i] = Check{Name: name, Status: StatusNotEvaluated}
	}
	return r
}

// Passed reports whether the verdict is pass.
func (r *Result) Passed() bool { return r.Verdict == VerdictPass }

// Check returns the recorded outcome of the named check.
func (r *Result) Check(name CheckName) Check {
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	return Check{Name: name, Status: StatusNotEvaluated}
}

func (r *Result) record(name CheckName, status CheckStatus, detail string) *Check {
	for i := range r.Checks {
		if r.Checks[i].Name == name {
			r.Checks[i].Status = status
			r.Checks[i].Detail = detail
			return &r.Checks[i]
		}
	}
	panic("unknown check " + string(name))
}

func (r *Result) recordScore(name CheckName, status CheckStatus, detail string, score float64) {
	c := r.record(name, status, detail)
	c.Score = &score
}

// skipRemaining marks every not yet evaluated check with why it was skipped.
func (r *Result) skipRemaining(detail string) {
	for i := range r.Checks {
		if r.Checks[i].Status == StatusNotEvaluated && r.Checks[i].Detail == "" {
			r.Checks[i].Detail = detail
		}
	}
}

func (r *Result) pass(msg string) *Result {
	r.Verdict, r.Reason, r.Message = VerdictPass, "", msg
	return r
}

func (r *Result) fail(reason Reason, msg string) *Result {
	r.Verdict, r.Reason, r.Message = VerdictFail, reason, msg
	r.skipRemaining("skipped after " + string(reason))
	return r
}

// WriteText renders the result for people.
func (r *Result) WriteText(w io.Writer) error {
	var b strings.Builder
	if r.Passed() {
		fmt.Fprintf(&b, "PASS: %s\n", r.Message)
	} else {
		fmt.Fprintf(&b, "FAIL (%s): %s\n", r.Reason, r.Message)
	}
	if r.PackageID != "" {
		fmt.Fprintf(&b, "  package:   %s\n", r.PackageID)
	}
	if r.CandidateHash != "" {
		fmt.Fprintf(&b, "  candidate: %s\n", r.CandidateHash)
	}
	b.WriteString("\nChecks:\n")
	for _, c := range r.Checks {
		line := fmt.Sprintf("  %-18s %-14s", c.Name, c.Status)
		if c.Score != nil {
			line += fmt.Sprintf(" score=%.4f", *c.Score)
		}
		if c.Detail != "" {
			line += "  " + c.Detail
		}
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}
	if s := r.Similarity; s != nil {
		fmt.Fprintf(&b, "\nSimilarity (threshold %.4f, %d windows of %d frames at %.2f fps):\n",
			s.Threshold, s.WindowCount, s.WindowSize, s.FrameRate)
		for i, w := range s.WorstWindows {
			fmt.Fprintf(&b, "  %d. %s-%s frames %d-%d mean=%.4f min=%.4f\n",
				i+1, w.Start, w.End, w.StartFrame, w.EndFrame-1, w.Mean, w.Min)
		}
		fmt.Fprintf(&b, "  worst frame: %d (%.4f)\n", s.MinFrameIndex, s.MinFrameScore)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
