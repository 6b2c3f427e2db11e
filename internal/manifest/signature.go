package manifest

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// SignatureSHA256 is the digest-as-signature scheme: the value is the hex
// SHA-256 of the canonical manifest bytes. It provides integrity but no
// authorship and is expected to be joined by asymmetric schemes.
const SignatureSHA256 = "sha256-manifest-digest"

// ErrUnknownSignatureAlgorithm is returned for a signature tag no scheme is registered for.
var ErrUnknownSignatureAlgorithm = errors.New("unknown signature algorithm")

// ErrSignatureMismatch is returned when a signature does not match its manifest.
var ErrSignatureMismatch = errors.New("signature does not match manifest")

// Signature is a tagged signature value over the canonical manifest.
type Signature struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// SignatureScheme signs and verifies canonical manifest bytes.
type SignatureScheme interface {
	Sign(canonical []byte) (string, error)
	Verify(canonical []byte, value string) error
}

var (
	schemesMu sync.RWMutex
	schemes   = map[string]SignatureScheme{
		SignatureSHA256: digestScheme{},
	}
)

// RegisterSignatureScheme makes a scheme available under algorithm.
// Registering an existing algorithm replaces it.
func RegisterSignatureScheme(algorithm string, s SignatureScheme) {
	schemesMu.Lock()
	defer schemesMu.Unlock()
	schemes[algorithm] = s
}

// SignatureAlgorithms lists the registered algorithm tags.
func SignatureAlgorithms() []string {
	schemesMu.RLock()
	defer schemesMu.RUnlock()
	out := make([]string, 0, len(schemes))
	for k := range schemes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func lookupScheme(algorithm string) (SignatureScheme, error) {
	schemesMu.RLock()
	defer schemesMu.RUnlock()
	s, ok := schemes[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignatureAlgorithm, algorithm)
	}
	return s, nil
}

// Sign signs the canonical form of m with the named scheme.
func Sign(m *Manifest, algorithm string) (*Signature, error) {
	s, err := lookupScheme(algorithm)
	if err != nil {
		return nil, err
	}
	canonical, err := m.Canonical()
	if err != nil {
		return nil, err
	}
	v, err := s.Sign(canonical)
	if err != nil {
		return nil, fmt.Errorf("signing manifest: %w", err)
	}
	return &Signature{Algorithm: algorithm, Value: v}, nil
}

// VerifySignature checks sig against the canonical form of m.
func VerifySignature(m *Manifest, sig *Signature) error {
	s, err := lookupScheme(sig.Algorithm)
	if err != nil {
		return err
	}
	canonical, err := m.Canonical()
	if err != nil {
		return err
	}
	return s.Verify(canonical, sig.Value)
}

// Validate checks the signature against its schema.
func (s *Signature) Validate() error {
	if s.Algorithm == "" {
		return fmt.Errorf("signature algorithm is required")
	}
	if s.Value == "" {
		return fmt.Errorf("signature value is required")
	}
	return nil
}

// ToJSON renders the signature as it is written into a package.
func (s *Signature) ToJSON() ([]byte, error) {
	return marshalArtifact(s)
}

// ParseSignature strictly decodes and validates signature JSON.
func ParseSignature(data []byte) (*Signature, error) {
	var s Signature
	if err := decodeStrict(data, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

type digestScheme struct{}

func (digestScheme) Sign(canonical []byte) (string, error) {
	return Hash(canonical).Hex, nil
}

func (digestScheme) Verify(canonical []byte, value string) error {
	want := Hash(canonical).Hex
	if subtle.ConstantTimeCompare([]byte(want), []byte(value)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}
