// Package rng provides the engine's injectable randomness boundary.
// The engine never calls math/rand directly; every weighted draw goes
// through a Source so callers can seed determinism into tests.
package rng

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// Source produces uniform floats in [0,1). Analogous to a host-supplied
// `rng()` — the engine holds one per instance, never a package global.
type Source interface {
	Float64() float64
}

type cryptoSource struct{}

// Default returns a crypto/rand-backed Source for production use.
func Default() Source { return cryptoSource{} }

func (cryptoSource) Float64() float64 {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		// crypto/rand failing means the host's entropy source is
		// broken; a process-local fallback keeps selection functional.
		return rand.Float64()
	}
	// Use the top 53 bits for a uniform float64 in [0,1), same
	// construction math/rand/v2 itself uses internally.
	u := binary.BigEndian.Uint64(buf[:])
	return float64(u>>11) / (1 << 53)
}

type seededSource struct {
	r *rand.Rand
}

// NewSeeded returns a deterministic Source seeded from the given value,
// backed by math/rand/v2's PCG generator. Tests use this to make
// selection and diminishing-returns draws reproducible.
func NewSeeded(seed uint64) Source {
	return &seededSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededSource) Float64() float64 { return s.r.Float64() }
