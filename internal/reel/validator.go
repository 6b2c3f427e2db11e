package reel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"reeltrust/internal/manifest"
)

// Validated is proof that a package passed structural validation.
// It can only be obtained from a Validator.
type Validated struct {
	pkg *manifest.Package
}

// Package returns the validated package.
func (v *Validated) Package() *manifest.Package { return v.pkg }

// ValidationReport is the outcome of validating a package directory.
type ValidationReport struct {
	Dir      string
	Valid    bool
	Kind     Kind
	Artifact string
	Err      error
	Token    *Validated
}

// Reason returns the verdict reason for an invalid package.
func (r *ValidationReport) Reason() Reason {
	if r.Valid {
		return ""
	}
	return reasonForKind(r.Kind)
}

// Failure returns the failure as an *Error, or nil if the package is valid.
func (r *ValidationReport) Failure() error {
	if r.Valid {
		return nil
	}
	return &Error{Kind: r.Kind, Path: r.Dir, Artifact: r.Artifact, Err: r.Err}
}

// Validator checks package well-formedness.
type Validator struct {
	logger    Logger
	tolerance float64
}

// NewValidator creates a Validator. tolerance is the allowed difference in
// seconds between the audio fingerprint duration and the digest duration.
func NewValidator(logger Logger, tolerance float64) *Validator {
	return &Validator{logger: logger, tolerance: tolerance}
}

// Validate checks dir in order, stopping at the first failure:
// every artifact exists and is non-empty; JSON artifacts match their schema;
// every manifest hash matches its artifact; the signature matches the manifest.
// A returned error means dir itself could not be read; package defects are
// reported in the ValidationReport.
func (v *Validator) Validate(dir string) (*ValidationReport, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, inputError(dir, err)
	}
	if !info.IsDir() {
		return nil, inputError(dir, fmt.Errorf("not a directory"))
	}

	report := &ValidationReport{Dir: dir}
	fail := func(kind Kind, artifact string, err error) (*ValidationReport, error) {
		report.Kind, report.Artifact, report.Err = kind, artifact, err
		v.logger.Warn("package invalid", "dir", dir, "reason", string(kind), "artifact", artifact, "error", err)
		return report, nil
	}

	// (a) presence
	for _, name := range manifest.ArtifactNames {
		fi, err := os.Stat(filepath.Join(dir, name))
		switch {
		case errors.Is(err, os.ErrNotExist):
			return fail(KindMissingArtifact, name, fmt.Errorf("file does not exist"))
		case err != nil:
			return nil, inputError(filepath.Join(dir, name), err)
		case !fi.Mode().IsRegular():
			return fail(KindMissingArtifact, name, fmt.Errorf("not a regular file"))
		case fi.Size() == 0:
			return fail(KindMissingArtifact, name, fmt.Errorf("file is empty"))
		}
	}

	// (b) schema
	raw := make(map[string][]byte, 4)
	for _, name := range manifest.ArtifactNames {
		if !manifest.IsJSONArtifact(name) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, inputError(filepath.Join(dir, name), err)
		}
		raw[name] = data
	}
	fp, err := manifest.ParseAudioFingerprint(raw[manifest.AudioFingerprintFile])
	if err != nil {
		return fail(KindSchema, manifest.AudioFingerprintFile, err)
	}
	meta, err := manifest.ParseMetadata(raw[manifest.MetadataFile])
	if err != nil {
		return fail(KindSchema, manifest.MetadataFile, err)
	}
	m, err := manifest.ParseManifest(raw[manifest.ManifestFile])
	if err != nil {
		return fail(KindSchema, manifest.ManifestFile, err)
	}
	sig, err := manifest.ParseSignature(raw[manifest.SignatureFile])
	if err != nil {
		return fail(KindSchema, manifest.SignatureFile, err)
	}
	if err := fp.ConsistentWith(m.Digest, v.tolerance); err != nil {
		return fail(KindSchema, manifest.AudioFingerprintFile, err)
	}

	// (c) hashes
	for _, name := range manifest.HashedArtifacts {
		want, _ := m.ArtifactDigest(name)
		var got manifest.Digest
		if manifest.IsJSONArtifact(name) {
			got, err = manifest.HashJSON(raw[name])
		} else {
			got, err = manifest.HashFile(filepath.Join(dir, name))
		}
		if err != nil {
			return nil, inputError(filepath.Join(dir, name), err)
		}
		if !got.Equal(want) {
			return fail(KindHashMismatch, name, fmt.Errorf("manifest lists %s, artifact hashes to %s", want.Short(), got.Short()))
		}
	}

	// (d) signature
	if err := manifest.VerifySignature(m, sig); err != nil {
		if errors.Is(err, manifest.ErrUnknownSignatureAlgorithm) {
			return fail(KindSchema, manifest.SignatureFile, err)
		}
		return fail(KindSignatureMismatch, manifest.SignatureFile, err)
	}

	report.Valid = true
	report.Token = &Validated{pkg: manifest.NewPackage(dir, m, meta, fp, sig)}
	v.logger.Debug("package valid", "dir", dir, "package_id", m.PackageID)
	return report, nil
}
