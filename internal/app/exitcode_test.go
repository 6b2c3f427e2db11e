package app

import (
	"errors"
	"fmt"
	"testing"

	"reeltrust/internal/reel"
	"reeltrust/internal/similarity"
)

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"input", &reel.Error{Kind: reel.KindInput}, ExitInput},
		{"wrapped input", fmt.Errorf("sign: %w", &reel.Error{Kind: reel.KindInput}), ExitInput},
		{"missing artifact", &reel.Error{Kind: reel.KindMissingArtifact}, ExitMalformed},
		{"schema", &reel.Error{Kind: reel.KindSchema}, ExitMalformed},
		{"hash mismatch", &reel.Error{Kind: reel.KindHashMismatch}, ExitMalformed},
		{"signature mismatch", &reel.Error{Kind: reel.KindSignatureMismatch}, ExitMalformed},
		{"collaborator", &reel.Error{Kind: reel.KindCollaborator}, ExitCollaborator},
		{"digest build", &reel.Error{Kind: reel.KindDigestBuild}, ExitCollaborator},
		{"bare empty comparison", similarity.ErrEmptyComparison, ExitCollaborator},
		{"storage", &reel.Error{Kind: reel.KindStorage}, ExitOther},
		{"uncategorized", errors.New("boom"), ExitOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCodeForError(tt.err); got != tt.want {
				t.Errorf("ExitCodeForError() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExitCodeForResult(t *testing.T) {
	tests := []struct {
		result *reel.Result
		want   int
	}{
		{&reel.Result{Verdict: reel.VerdictPass}, ExitOK},
		{&reel.Result{Verdict: reel.VerdictFail, Reason: reel.ReasonSimilarityBelowThreshold}, ExitFailed},
		{&reel.Result{Verdict: reel.VerdictFail, Reason: reel.ReasonStrictHashMismatch}, ExitFailed},
		{&reel.Result{Verdict: reel.VerdictFail, Reason: reel.ReasonAudioMismatch}, ExitFailed},
		{&reel.Result{Verdict: reel.VerdictFail, Reason: reel.ReasonFrameCountMismatch}, ExitFailed},
		{&reel.Result{Verdict: reel.VerdictFail, Reason: reel.ReasonMissingArtifact}, ExitMalformed},
		{&reel.Result{Verdict: reel.VerdictFail, Reason: reel.ReasonSignatureMismatch}, ExitMalformed},
	}
	for _, tt := range tests {
		if got := ExitCodeForResult(tt.result); got != tt.want {
			t.Errorf("ExitCodeForResult(%s %s) = %d, want %d", tt.result.Verdict, tt.result.Reason, got, tt.want)
		}
	}
}
