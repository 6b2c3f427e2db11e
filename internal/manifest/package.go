package manifest

import (
	"maps"
	"path/filepath"
)

// Package is a parsed, read-only view of a package directory.
// Accessors return copies; a Package never changes after construction.
type Package struct {
	dir         string
	manifest    Manifest
	metadata    Metadata
	fingerprint AudioFingerprint
	signature   Signature
}

// NewPackage assembles a Package from already parsed artifacts.
func NewPackage(dir string, m *Manifest, meta *Metadata, fp *AudioFingerprint, sig *Signature) *Package {
	p := &Package{
		dir:         dir,
		manifest:    *m,
		metadata:    *meta,
		fingerprint: *fp,
		signature:   *sig,
	}
	p.manifest.Hashes = maps.Clone(m.Hashes)
	if m.Digest != nil {
		d := *m.Digest
		p.manifest.Digest = &d
	}
	if meta.GPS != nil {
		g := *meta.GPS
		p.metadata.GPS = &g
	}
	return p
}

// Dir returns the package directory.
func (p *Package) Dir() string { return p.dir }

// Path returns the path of a named artifact within the package.
func (p *Package) Path(artifact string) string { return filepath.Join(p.dir, artifact) }

// DigestPath returns the path of the reference digest video.
func (p *Package) DigestPath() string { return p.Path(DigestVideoFile) }

// ID returns the package id.
func (p *Package) ID() string { return p.manifest.PackageID }

// Manifest returns a copy of the manifest.
func (p *Package) Manifest() Manifest {
	m := p.manifest
	m.Hashes = maps.Clone(p.manifest.Hashes)
	if p.manifest.Digest != nil {
		d := *p.manifest.Digest
		m.Digest = &d
	}
	return m
}

// Metadata returns a copy of the metadata.
func (p *Package) Metadata() Metadata {
	m := p.metadata
	if p.metadata.GPS != nil {
		g := *p.metadata.GPS
		m.GPS = &g
	}
	return m
}

// AudioFingerprint returns a copy of the audio fingerprint.
func (p *Package) AudioFingerprint() AudioFingerprint { return p.fingerprint }

// Signature returns a copy of the signature.
func (p *Package) Signature() Signature { return p.signature }

// SourceDigest returns the hash of the original source file.
func (p *Package) SourceDigest() Digest { return p.manifest.SourceDigest() }

// ReferenceDigest returns the recorded hash of the reference digest video.
func (p *Package) ReferenceDigest() Digest {
	d, _ := p.manifest.ArtifactDigest(DigestVideoFile)
	return d
}

// DigestProperties returns the probed digest properties, if recorded.
func (p *Package) DigestProperties() (DigestProperties, bool) {
	if p.manifest.Digest == nil {
		return DigestProperties{}, false
	}
	return *p.manifest.Digest, true
}
