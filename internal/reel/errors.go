package reel

import (
	"errors"
	"fmt"

	"reeltrust/internal/similarity"
)

// Kind categorizes a failure so callers can react without parsing messages.
type Kind string

const (
	KindInput             Kind = "input"
	KindDigestBuild       Kind = "digest_build"
	KindMissingArtifact   Kind = "missing_artifact"
	KindSchema            Kind = "schema"
	KindHashMismatch      Kind = "hash_mismatch"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindEmptyComparison   Kind = "empty_comparison"
	KindCollaborator      Kind = "collaborator"
	KindStorage           Kind = "storage"
	KindUnknown           Kind = "unknown"
)

// Sentinel errors, one per Kind. An *Error matches the sentinel of its Kind via errors.Is.
var (
	ErrInputNotFound     = errors.New("input not found")
	ErrDigestBuild       = errors.New("digest build failed")
	ErrMissingArtifact   = errors.New("missing package artifact")
	ErrSchema            = errors.New("package artifact schema error")
	ErrHashMismatch      = errors.New("artifact hash mismatch")
	ErrSignatureMismatch = errors.New("manifest signature mismatch")
	ErrEmptyComparison   = similarity.ErrEmptyComparison
	ErrCollaborator      = errors.New("external tool failed")
	ErrStorage           = errors.New("storage failure")
)

var kindSentinels = map[Kind]error{
	KindInput:             ErrInputNotFound,
	KindDigestBuild:       ErrDigestBuild,
	KindMissingArtifact:   ErrMissingArtifact,
	KindSchema:            ErrSchema,
	KindHashMismatch:      ErrHashMismatch,
	KindSignatureMismatch: ErrSignatureMismatch,
	KindEmptyComparison:   ErrEmptyComparison,
	KindCollaborator:      ErrCollaborator,
	KindStorage:           ErrStorage,
}

// Error is a categorized failure. Path names the offending input file and
// Artifact the offending package artifact, when known.
type Error struct {
	Kind     Kind
	Path     string
	Artifact string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if s, ok := kindSentinels[e.Kind]; ok {
		msg = s.Error()
	}
	switch {
	case e.Artifact != "":
		msg += ": " + e.Artifact
	case e.Path != "":
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel error for the Kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the Kind of the first *Error in err's chain.
// Bare analyzer empty-comparison errors map to KindEmptyComparison.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, similarity.ErrEmptyComparison) {
		return KindEmptyComparison
	}
	return KindUnknown
}

func inputError(path string, err error) error {
	return &Error{Kind: KindInput, Path: path, Err: err}
}

func digestBuildError(path string, format string, args ...any) error {
	return &Error{Kind: KindDigestBuild, Path: path, Err: fmt.Errorf(format, args...)}
}

func collaboratorError(tool string, err error) error {
	return &Error{Kind: KindCollaborator, Err: fmt.Errorf("%s: %w", tool, err)}
}

func storageError(err error) error {
	return &Error{Kind: KindStorage, Err: err}
}
