package fingerprint

import (
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/medvextract/medvextract-api/internal/domain"
)

// Algorithm names a supported digest.
type Algorithm string

const (
	// AlgorithmBlake2b is a 256-bit BLAKE2b digest (64 hex characters).
	AlgorithmBlake2b Algorithm = "blake2b"

	// AlgorithmXXHash is a 64-bit xxHash digest (16 hex characters).
	AlgorithmXXHash Algorithm = "xxhash"
)

// Generator computes fingerprints for work requests.
type Generator struct {
	algorithm Algorithm
	digest    func([]byte) string
}

// New returns a Generator for the named algorithm. An empty name selects blake2b.
func New(algorithm Algorithm) (*Generator, error) {
	switch algorithm {
	case "", AlgorithmBlake2b:
		return &Generator{algorithm: AlgorithmBlake2b, digest: blake2bDigest}, nil
	case AlgorithmXXHash:
		return &Generator{algorithm: AlgorithmXXHash, digest: xxhashDigest}, nil
	default:
		return nil, fmt.Errorf("unsupported fingerprint algorithm %q", algorithm)
	}
}

// Algorithm returns the digest in use.
func (g *Generator) Algorithm() Algorithm {
	return g.algorithm
}

// Fingerprint returns the digest of the request's canonical serialization.
// It never fails.
func (g *Generator) Fingerprint(req domain.WorkRequest) domain.Fingerprint {
	return domain.Fingerprint(g.digest(Canonical(req)))
}

func blake2bDigest(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func xxhashDigest(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}
