package reel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"reeltrust/internal/manifest"
)

// SignRequest is the input to Signer.Sign. The digest and fingerprint are
// produced beforehand by the external collaborators.
type SignRequest struct {
	SourcePath       string
	DigestPath       string
	DigestParams     manifest.DigestParams
	DigestProperties *manifest.DigestProperties
	Fingerprint      *manifest.AudioFingerprint
	User             string
	GPS              *manifest.GPS
	OutputDir        string
}

// VideoSignRequest is the input to Signer.SignVideo, which runs the
// collaborators itself.
type VideoSignRequest struct {
	SourcePath   string
	DigestParams manifest.DigestParams
	User         string
	GPS          *manifest.GPS
	OutputDir    string
}

// Signer assembles verification packages.
type Signer struct {
	tools      Tools
	workspaces WorkspaceProvider
	logger     Logger
	clock      Clock
	tolerance  float64
	algorithm  string
}

// NewSigner creates a Signer. tolerance is the allowed difference in seconds
// between the fingerprint duration and the digest duration.
func NewSigner(tools Tools, workspaces WorkspaceProvider, logger Logger, clock Clock, tolerance float64) *Signer {
	return &Signer{
		tools:      tools,
		workspaces: workspaces,
		logger:     logger,
		clock:      clock,
		tolerance:  tolerance,
		algorithm:  manifest.SignatureSHA256,
	}
}

// PackageDir returns the package directory Sign writes for sourcePath under outputDir.
func PackageDir(sourcePath, outputDir string) string {
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, stem+manifest.PackageDirSuffix)
}

// SignVideo builds the reference digest, probes it and fingerprints the source
// audio, then assembles the package with Sign.
func (s *Signer) SignVideo(ctx context.Context, req VideoSignRequest) (*manifest.Package, error) {
	if _, err := statSource(req.SourcePath); err != nil {
		return nil, err
	}
	if err := req.DigestParams.Validate(); err != nil {
		return nil, &Error{Kind: KindDigestBuild, Err: err}
	}

	ws, err := s.workspaces.NewWorkspace("")
	if err != nil {
		return nil, storageError(fmt.Errorf("creating workspace: %w", err))
	}
	defer ws.Discard()

	digestPath := filepath.Join(ws.Dir(), manifest.DigestVideoFile)
	s.logger.Info("building digest", "source", req.SourcePath, "width", req.DigestParams.Width, "quality", int(req.DigestParams.Quality))
	if err := s.tools.Digests.BuildDigest(ctx, req.SourcePath, req.DigestParams, digestPath); err != nil {
		return nil, collaboratorError("digest build", err)
	}

	props, err := s.tools.Prober.Probe(ctx, digestPath)
	if err != nil {
		return nil, collaboratorError("probe", err)
	}
	s.logger.Debug("digest probed", "frames", props.FrameCount, "fps", props.FPS, "duration", props.DurationSeconds)

	fp, err := s.tools.Fingerprints.Fingerprint(ctx, req.SourcePath)
	switch {
	case errors.Is(err, ErrNoAudio):
		s.logger.Warn("source has no audio track", "source", req.SourcePath)
		fp = manifest.SilentFingerprint()
	case err != nil:
		return nil, collaboratorError("audio fingerprint", err)
	}

	return s.Sign(ctx, SignRequest{
		SourcePath:       req.SourcePath,
		DigestPath:       digestPath,
		DigestParams:     req.DigestParams,
		DigestProperties: &props,
		Fingerprint:      fp,
		User:             req.User,
		GPS:              req.GPS,
		OutputDir:        req.OutputDir,
	})
}

// Sign writes a package for req.SourcePath into <OutputDir>/<stem>_package.
// All five artifacts are written to a workspace and moved into place with a
// single rename, so a partially written package is never visible. An existing
// package directory is never overwritten.
func (s *Signer) Sign(ctx context.Context, req SignRequest) (*manifest.Package, error) {
	info, err := statSource(req.SourcePath)
	if err != nil {
		return nil, err
	}
	if err := s.checkDigestInputs(req); err != nil {
		return nil, err
	}

	dest := PackageDir(req.SourcePath, req.OutputDir)
	if _, err := os.Lstat(dest); err == nil {
		return nil, inputError(dest, fmt.Errorf("package directory already exists"))
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, inputError(req.OutputDir, fmt.Errorf("creating output directory: %w", err))
	}

	// 1. Hash the source.
	source, err := manifest.HashFile(req.SourcePath)
	if err != nil {
		return nil, inputError(req.SourcePath, err)
	}
	s.logger.Info("source hashed", "source", req.SourcePath, "hash", source.Short())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ws, err := s.workspaces.NewWorkspace(req.OutputDir)
	if err != nil {
		return nil, storageError(fmt.Errorf("creating workspace: %w", err))
	}
	defer ws.Discard()

	hashes := make(map[string]manifest.Digest, len(manifest.HashedArtifacts))

	hashes[manifest.DigestVideoFile], err = copyHashed(req.DigestPath, filepath.Join(ws.Dir(), manifest.DigestVideoFile))
	if err != nil {
		return nil, digestBuildError(req.DigestPath, "copying digest: %w", err)
	}
	s.logger.Debug("digest copied", "hash", hashes[manifest.DigestVideoFile].Short())

	// 2. Metadata and fingerprint.
	meta := manifest.NewMetadata(s.clock.Now(), req.User, req.GPS, filepath.Base(req.SourcePath), info.Size(), req.DigestParams)
	if err := meta.Validate(); err != nil {
		return nil, &Error{Kind: KindSchema, Artifact: manifest.MetadataFile, Err: err}
	}
	for name, v := range map[string]interface{ ToJSON() ([]byte, error) }{
		manifest.MetadataFile:         meta,
		manifest.AudioFingerprintFile: req.Fingerprint,
	} {
		d, err := writeJSONArtifact(ws.Dir(), name, v)
		if err != nil {
			return nil, storageError(err)
		}
		hashes[name] = d
	}

	// 3. Manifest.
	m, err := manifest.NewManifest(source, hashes, req.DigestProperties)
	if err != nil {
		return nil, &Error{Kind: KindSchema, Artifact: manifest.ManifestFile, Err: err}
	}
	if _, err := writeJSONArtifact(ws.Dir(), manifest.ManifestFile, m); err != nil {
		return nil, storageError(err)
	}

	// 4. Signature over the canonical manifest.
	sig, err := manifest.Sign(m, s.algorithm)
	if err != nil {
		return nil, &Error{Kind: KindSchema, Artifact: manifest.SignatureFile, Err: err}
	}
	if _, err := writeJSONArtifact(ws.Dir(), manifest.SignatureFile, sig); err != nil {
		return nil, storageError(err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 5. Publish all five artifacts at once.
	if err := ws.Commit(dest); err != nil {
		return nil, storageError(fmt.Errorf("committing package: %w", err))
	}

	s.logger.Info("package created", "package_id", m.PackageID, "dir", dest, "signature", sig.Value[:min(16, len(sig.Value))])
	return manifest.NewPackage(dest, m, meta, req.Fingerprint, sig), nil
}

func (s *Signer) checkDigestInputs(req SignRequest) error {
	if req.DigestPath == "" {
		return digestBuildError("", "no reference digest supplied")
	}
	info, err := os.Stat(req.DigestPath)
	if err != nil {
		return digestBuildError(req.DigestPath, "reference digest unavailable: %w", err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return digestBuildError(req.DigestPath, "reference digest is empty or not a regular file")
	}
	if err := req.DigestParams.Validate(); err != nil {
		return digestBuildError(req.DigestPath, "invalid digest parameters: %w", err)
	}
	if req.Fingerprint == nil {
		return digestBuildError("", "no audio fingerprint supplied")
	}
	if err := req.Fingerprint.Validate(); err != nil {
		return digestBuildError("", "malformed audio fingerprint: %w", err)
	}
	if err := req.Fingerprint.ConsistentWith(req.DigestProperties, s.tolerance); err != nil {
		return digestBuildError("", "audio fingerprint inconsistent with digest: %w", err)
	}
	return nil
}

func statSource(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, inputError(path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, inputError(path, fmt.Errorf("not a regular file"))
	}
	return info, nil
}

// copyHashed copies src to dst and returns the digest of the copied bytes.
func copyHashed(src, dst string) (manifest.Digest, error) {
	in, err := os.Open(src)
	if err != nil {
		return manifest.Digest{}, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return manifest.Digest{}, err
	}

	d, _, err := manifest.HashReader(io.TeeReader(in, out))
	if err != nil {
		out.Close()
		return manifest.Digest{}, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return manifest.Digest{}, err
	}
	if err := out.Close(); err != nil {
		return manifest.Digest{}, err
	}
	return d, nil
}

// writeJSONArtifact writes a JSON artifact and returns the digest of its canonical form.
func writeJSONArtifact(dir, name string, v interface{ ToJSON() ([]byte, error) }) (manifest.Digest, error) {
	data, err := v.ToJSON()
	if err != nil {
		return manifest.Digest{}, fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return manifest.Digest{}, fmt.Errorf("writing %s: %w", name, err)
	}
	d, err := manifest.HashJSON(data)
	if err != nil {
		return manifest.Digest{}, fmt.Errorf("hashing %s: %w", name, err)
	}
	return d, nil
}
