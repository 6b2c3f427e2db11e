package reel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"reeltrust/internal/manifest"
	"reeltrust/internal/similarity"
)

// AudioPolicy decides what an audio fingerprint mismatch does to the verdict.
type AudioPolicy string

const (
	// AudioPolicyReport records a mismatch without changing the verdict.
	AudioPolicyReport AudioPolicy = "report"
	// AudioPolicyRequire fails verification on a mismatch.
	AudioPolicyRequire AudioPolicy = "require"
)

// ParseAudioPolicy validates an audio policy name.
func ParseAudioPolicy(s string) (AudioPolicy, error) {
	switch p := AudioPolicy(s); p {
	case AudioPolicyReport, AudioPolicyRequire:
		return p, nil
	case "":
		return AudioPolicyReport, nil
	}
	return "", fmt.Errorf("unknown audio policy %q: want %q or %q", s, AudioPolicyReport, AudioPolicyRequire)
}

// DefaultFrameRate is assumed when the digest frame rate cannot be determined.
const DefaultFrameRate = 30.0

// VerifyOptions control a verification run.
type VerifyOptions struct {
	// Threshold is the minimum acceptable window similarity.
	Threshold float64
	// WindowDuration is the length of each similarity window.
	WindowDuration time.Duration
	// Strict accepts only a byte-identical rebuilt digest.
	Strict bool
	// AudioPolicy decides whether an audio mismatch fails verification.
	AudioPolicy AudioPolicy
	// DigestWidth overrides the width recorded in the package when non-zero.
	DigestWidth int
}

// DefaultVerifyOptions returns the default options.
func DefaultVerifyOptions() VerifyOptions {
	return VerifyOptions{
		Threshold:      0.99,
		WindowDuration: similarity.DefaultWindowDuration,
		AudioPolicy:    AudioPolicyReport,
	}
}

// Validate checks the options are usable.
func (o VerifyOptions) Validate() error {
	if math.IsNaN(o.Threshold) || o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("threshold %v out of range [0, 1]", o.Threshold)
	}
	if o.WindowDuration <= 0 {
		return fmt.Errorf("window duration must be positive")
	}
	if _, err := ParseAudioPolicy(string(o.AudioPolicy)); err != nil {
		return err
	}
	if o.DigestWidth < 0 || o.DigestWidth%2 != 0 {
		return fmt.Errorf("digest width must be a positive even number, got %d", o.DigestWidth)
	}
	return nil
}

// Verifier decides whether a candidate video derives from the source a package was signed from.
type Verifier struct {
	validator  *Validator
	tools      Tools
	workspaces WorkspaceProvider
	logger     Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(validator *Validator, tools Tools, workspaces WorkspaceProvider, logger Logger) *Verifier {
	return &Verifier{
		validator:  validator,
		tools:      tools,
		workspaces: workspaces,
		logger:     logger,
	}
}

// Verify checks candidatePath against the package in packageDir.
//
// A verdict, passing or failing, is returned as a Result. A returned error
// means no verdict could be reached: an unreadable input, a failed external
// tool or an empty comparison.
func (v *Verifier) Verify(ctx context.Context, packageDir, candidatePath string, opts VerifyOptions) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, &Error{Kind: KindInput, Err: err}
	}
	if _, err := statSource(candidatePath); err != nil {
		return nil, err
	}

	// 1. Structural gate.
	report, err := v.validator.Validate(packageDir)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		r := newResult()
		detail := fmt.Sprintf("%s: %v", report.Artifact, report.Err)
		r.record(CheckPackageStructure, StatusFail, detail)
		v.logger.Info("verification failed at structural gate", "reason", string(report.Reason()))
		return r.fail(report.Reason(), "package failed validation: "+detail), nil
	}

	return v.VerifyValidated(ctx, report.Token, candidatePath, opts)
}

// VerifyValidated runs verification from step 2 against an already validated package.
func (v *Verifier) VerifyValidated(ctx context.Context, token *Validated, candidatePath string, opts VerifyOptions) (*Result, error) {
	if token == nil || token.pkg == nil {
		return nil, &Error{Kind: KindInput, Err: fmt.Errorf("package has not been validated")}
	}
	if err := opts.Validate(); err != nil {
		return nil, &Error{Kind: KindInput, Err: err}
	}
	pkg := token.Package()

	r := newResult()
	r.PackageID = pkg.ID()
	r.record(CheckPackageStructure, StatusPass, "all artifacts present, hashes and signature valid")

	// 2. Source-hash fast path.
	candidate, err := manifest.HashFile(candidatePath)
	if err != nil {
		return nil, inputError(candidatePath, err)
	}
	r.CandidateHash = candidate.String()
	v.logger.Info("candidate hashed", "candidate", candidatePath, "hash", candidate.Short())
	if candidate.Equal(pkg.SourceDigest()) {
		r.record(CheckSourceHash, StatusPass, "candidate is byte-identical to the signed source")
		r.skipRemaining("not needed: byte-identical source")
		return r.pass("candidate is the original source file"), nil
	}
	r.record(CheckSourceHash, StatusFail, "candidate differs from the signed source")

	// 3. Digest reconstruction.
	params := pkg.Metadata().DigestParams()
	widthNote := ""
	if opts.DigestWidth != 0 && opts.DigestWidth != params.Width {
		v.logger.Warn("overriding recorded digest width", "recorded", params.Width, "override", opts.DigestWidth)
		widthNote = fmt.Sprintf(" (width overridden %d -> %d)", params.Width, opts.DigestWidth)
		params.Width = opts.DigestWidth
	}

	ws, err := v.workspaces.NewWorkspace("")
	if err != nil {
		return nil, storageError(fmt.Errorf("creating workspace: %w", err))
	}
	defer ws.Discard()

	rebuilt := filepath.Join(ws.Dir(), "candidate_"+manifest.DigestVideoFile)
	v.logger.Info("rebuilding digest", "width", params.Width, "quality", int(params.Quality))
	if err := v.tools.Digests.BuildDigest(ctx, candidatePath, params, rebuilt); err != nil {
		return nil, collaboratorError("digest build", err)
	}

	// 4. Hash comparison.
	rebuiltDigest, err := manifest.HashFile(rebuilt)
	if err != nil {
		return nil, collaboratorError("digest build", fmt.Errorf("reading rebuilt digest: %w", err))
	}
	if rebuiltDigest.Equal(pkg.ReferenceDigest()) {
		v.logger.Info("rebuilt digest matches reference")
		r.record(CheckDigestHash, StatusPass, "rebuilt digest is byte-identical to the reference"+widthNote)
		r.record(CheckSimilarity, StatusNotEvaluated, "not needed: digests identical")
		r.record(CheckFrameCount, StatusPass, "implied by identical digests")
		return v.finish(ctx, r, pkg, candidatePath, opts)
	}

	if opts.Strict {
		r.record(CheckDigestHash, StatusFail, "rebuilt digest differs from the reference"+widthNote)
		r.record(CheckSimilarity, StatusNotEvaluated, "strict mode")
		v.logger.Info("strict mode hash mismatch")
		return r.fail(ReasonStrictHashMismatch,
			fmt.Sprintf("rebuilt digest %s does not match reference %s", rebuiltDigest.Short(), pkg.ReferenceDigest().Short())), nil
	}
	r.record(CheckDigestHash, StatusFail, "rebuilt digest differs from the reference; using similarity"+widthNote)

	// 5. Similarity fallback.
	props := v.referenceProperties(ctx, pkg)
	scores, err := v.tools.Comparer.Compare(ctx, pkg.DigestPath(), rebuilt)
	if err != nil {
		return nil, collaboratorError("similarity compare", err)
	}
	fps := props.FPS
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	analysis, err := similarity.Analyze(ctx, scores, similarity.WindowSize(fps, opts.WindowDuration), fps)
	if err != nil {
		if errors.Is(err, similarity.ErrEmptyComparison) {
			return nil, &Error{Kind: KindEmptyComparison, Err: err}
		}
		return nil, collaboratorError("similarity compare", err)
	}
	r.Similarity = newSimilarityReport(analysis, opts.Threshold)
	worst := analysis.Worst
	v.logger.Info("similarity analyzed", "windows", len(analysis.Windows), "min_window", worst.Index, "score", worst.Mean)

	if worst.Mean < opts.Threshold {
		r.recordScore(CheckSimilarity, StatusFail,
			fmt.Sprintf("window %d (%s) below threshold %.4f", worst.Index, worst.TimeRange(), opts.Threshold), worst.Mean)
		return r.fail(ReasonSimilarityBelowThreshold,
			fmt.Sprintf("similarity %.4f in window %s is below threshold %.4f", worst.Mean, worst.TimeRange(), opts.Threshold)), nil
	}
	r.recordScore(CheckSimilarity, StatusPass,
		fmt.Sprintf("minimum window %d (%s) at or above threshold %.4f", worst.Index, worst.TimeRange(), opts.Threshold), worst.Mean)

	// 6. Frame count.
	refFrames := props.FrameCount
	if refFrames <= 0 {
		p, err := v.tools.Prober.Probe(ctx, pkg.DigestPath())
		if err != nil {
			return nil, collaboratorError("probe", err)
		}
		refFrames = p.FrameCount
	}
	cand, err := v.tools.Prober.Probe(ctx, rebuilt)
	if err != nil {
		return nil, collaboratorError("probe", err)
	}
	if cand.FrameCount != refFrames {
		r.record(CheckFrameCount, StatusFail, fmt.Sprintf("reference has %d frames, candidate has %d", refFrames, cand.FrameCount))
		return r.fail(ReasonFrameCountMismatch,
			fmt.Sprintf("frame count differs: reference %d, candidate %d", refFrames, cand.FrameCount)), nil
	}
	r.record(CheckFrameCount, StatusPass, fmt.Sprintf("%d frames", refFrames))

	return v.finish(ctx, r, pkg, candidatePath, opts)
}

// finish runs the best-effort audio check and settles the verdict.
func (v *Verifier) finish(ctx context.Context, r *Result, pkg *manifest.Package, candidatePath string, opts VerifyOptions) (*Result, error) {
	matched, err := v.checkAudio(ctx, r, pkg, candidatePath)
	if err != nil {
		if opts.AudioPolicy == AudioPolicyRequire {
			return nil, err
		}
		v.logger.Warn("audio check failed", "error", err)
	}
	if !matched && opts.AudioPolicy == AudioPolicyRequire && r.Check(CheckAudioFingerprint).Status == StatusFail {
		return r.fail(ReasonAudioMismatch, "audio fingerprint does not match the signed source"), nil
	}

	msg := "candidate is derived from the signed source"
	if r.Check(CheckAudioFingerprint).Status == StatusFail {
		msg += "; WARNING: audio fingerprint does not match"
	}
	v.logger.Info("verification passed", "package_id", pkg.ID())
	return r.pass(msg), nil
}

// checkAudio records the audio check. It reports whether the fingerprints
// matched; a returned error means the check could not be performed.
func (v *Verifier) checkAudio(ctx context.Context, r *Result, pkg *manifest.Package, candidatePath string) (bool, error) {
	ref := pkg.AudioFingerprint()
	if !ref.HasAudio() {
		r.record(CheckAudioFingerprint, StatusNotEvaluated, "signed source has no audio track")
		return true, nil
	}

	cand, err := v.tools.Fingerprints.Fingerprint(ctx, candidatePath)
	if errors.Is(err, ErrNoAudio) {
		r.record(CheckAudioFingerprint, StatusFail, "candidate has no audio track")
		return false, nil
	}
	if err != nil {
		r.record(CheckAudioFingerprint, StatusError, err.Error())
		return false, collaboratorError("audio fingerprint", err)
	}

	m, err := v.tools.Fingerprints.Match(&ref, cand)
	if err != nil {
		r.record(CheckAudioFingerprint, StatusError, err.Error())
		return false, collaboratorError("audio match", err)
	}
	if !m.Matched {
		r.recordScore(CheckAudioFingerprint, StatusFail, "audio fingerprint does not match", m.Score)
		return false, nil
	}
	r.recordScore(CheckAudioFingerprint, StatusPass, "audio fingerprint matches", m.Score)
	return true, nil
}

// referenceProperties returns the probed properties of the reference digest,
// preferring those recorded in the manifest.
func (v *Verifier) referenceProperties(ctx context.Context, pkg *manifest.Package) manifest.DigestProperties {
	if p, ok := pkg.DigestProperties(); ok && p.FPS > 0 && p.FrameCount > 0 {
		return p
	}
	p, err := v.tools.Prober.Probe(ctx, pkg.DigestPath())
	if err != nil {
		v.logger.Warn("probing reference digest failed; assuming default frame rate", "error", err, "fps", DefaultFrameRate)
		return manifest.DigestProperties{}
	}
	return p
}
