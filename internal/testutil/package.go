package testutil

import (
	"context"
	"testing"

	"reeltrust/internal/manifest"
	"reeltrust/internal/reel"
)

// DefaultParams are the digest parameters used by SignMedia.
var DefaultParams = manifest.DigestParams{Width: manifest.DefaultDigestWidth, Quality: manifest.DefaultQuality}

// SignMedia writes m as dir/name, signs it with fake tools and returns the
// source path and the package.
func SignMedia(t *testing.T, dir, name string, m FakeMedia) (string, *manifest.Package) {
	t.Helper()

	src := WriteMedia(t, dir, name, m)
	signer := reel.NewSigner(NewFakeTools().Tools(), NewTestStaging(t), reel.NewNopLogger(), FixedClock(), 1.0)
	pkg, err := signer.SignVideo(context.Background(), reel.VideoSignRequest{
		SourcePath:   src,
		DigestParams: DefaultParams,
		User:         "alice",
		OutputDir:    dir,
	})
	if err != nil {
		t.Fatalf("signing %s: %v", src, err)
	}
	return src, pkg
}
