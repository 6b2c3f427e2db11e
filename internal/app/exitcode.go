package app

import (
	"reeltrust/internal/reel"
)

// Process exit codes.
const (
	ExitOK           = 0 // success, or a passing verification
	ExitFailed       = 1 // verification completed with a fail verdict
	ExitMalformed    = 2 // package is missing artifacts or fails integrity checks
	ExitInput        = 3 // an input file or argument is missing or invalid
	ExitCollaborator = 4 // an external media tool failed
	ExitOther        = 5
)

// ExitCodeForError maps an error returned by ReelApp to a process exit code.
func ExitCodeForError(err error) int {
	switch reel.KindOf(err) {
	case "":
		return ExitOK
	case reel.KindInput:
		return ExitInput
	case reel.KindMissingArtifact, reel.KindSchema, reel.KindHashMismatch, reel.KindSignatureMismatch:
		return ExitMalformed
	case reel.KindCollaborator, reel.KindDigestBuild, reel.KindEmptyComparison:
		return ExitCollaborator
	default:
		return ExitOther
	}
}

// ExitCodeForResult maps a verification result to a process exit code.
// Failures at the structural gate report the package as malformed.
func ExitCodeForResult(r *reel.Result) int {
	switch {
	case r.Passed():
		return ExitOK
	case r.Reason.Structural():
		return ExitMalformed
	default:
		return ExitFailed
	}
}

// ExitCodeForReport maps a validation report to a process exit code.
func ExitCodeForReport(r *reel.ValidationReport) int {
	if r.Valid {
		return ExitOK
	}
	return ExitMalformed
}
