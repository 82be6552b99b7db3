// Package verifier supplies the per-caller signature verifier and its
// cache. spec.md treats the cryptographic verifier implementation as an
// external collaborator; this package gives it a concrete ed25519-backed
// default (grounded on myl7-pbft's crypto.go) behind a narrow interface, so
// callers can swap in tls.Verifier-equivalents without touching the cache.
package verifier

import (
	"crypto/ed25519"

	"github.com/pkg/errors"
)

// Verifier authenticates a signature over a byte buffer for one caller.
type Verifier interface {
	Verify(req, sig []byte) bool
}

// Factory builds a Verifier from the raw certificate bytes presented by a
// caller, mirroring tls::Verifier's construction from a CallerKey.
type Factory func(callerCert []byte) (Verifier, error)

// ed25519Verifier treats the caller's certificate bytes directly as an
// ed25519 public key, the same simplification myl7-pbft's crypto.go makes
// (PublicKey is, in Go, just []byte).
type ed25519Verifier struct {
	pub ed25519.PublicKey
}

// NewEd25519Factory returns a Factory producing ed25519-backed verifiers.
func NewEd25519Factory() Factory {
	return func(callerCert []byte) (Verifier, error) {
		if len(callerCert) != ed25519.PublicKeySize {
			return nil, errors.Errorf(
				"verifier: expected a %d-byte ed25519 public key, got %d bytes",
				ed25519.PublicKeySize, len(callerCert))
		}
		pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
		copy(pub, callerCert)
		return &ed25519Verifier{pub: pub}, nil
	}
}

func (v *ed25519Verifier) Verify(req, sig []byte) bool {
	return ed25519.Verify(v.pub, req, sig)
}
