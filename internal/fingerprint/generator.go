// Package fingerprint derives stable, self-consistent spoofed device
// attributes from an opaque identity seed.
//
// Every derived value is a pure function of (seed, attribute name): the
// two are joined with ":" and hashed with SHA-256, and the first eight
// digest bytes are folded big-endian into a uint64. That uint64 is then
// mapped into the caller's range. The hash and folding are fixed wire
// contract, stable across process restarts and implementations in other
// languages; changing either silently breaks every previously issued
// profile.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Derive folds SHA-256(seed + ":" + attribute) into a uint64.
func Derive(seed, attribute string) uint64 {
	sum := sha256.Sum256([]byte(seed + ":" + attribute))
	return binary.BigEndian.Uint64(sum[:8])
}

// DeriveIntRange maps the derived value into [min, max] inclusive. A
// range of size one returns min without division. An inverted range is
// a programming-contract violation and panics.
func DeriveIntRange(seed, attribute string, min, max int) int {
	if max < min {
		panic(fmt.Sprintf("fingerprint: inverted range [%d, %d] for attribute %q", min, max, attribute))
	}
	if max == min {
		return min
	}
	span := uint64(max-min) + 1
	return min + int(Derive(seed, attribute)%span)
}

// DeriveFloat maps the derived value into [0, 1).
func DeriveFloat(seed, attribute string) float64 {
	// 53 bits gives a uniform float64 mantissa.
	return float64(Derive(seed, attribute)>>11) / float64(1<<53)
}

// Pick selects one element of options deterministically. An empty
// options slice is a programming-contract violation and panics; a
// single-element slice returns that element without division.
func Pick[T any](seed, attribute string, options []T) T {
	switch len(options) {
	case 0:
		panic(fmt.Sprintf("fingerprint: empty option set for attribute %q", attribute))
	case 1:
		return options[0]
	}
	return options[Derive(seed, attribute)%uint64(len(options))]
}
