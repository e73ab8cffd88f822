// Package determinism provides primitives that keep run output reproducible:
// content-derived ids, ordered map iteration and result fingerprints.
package determinism

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"

	"hospital-abc/core/types"
)

// IDGenerator generates stable ids from their inputs
type IDGenerator struct {
	namespace string
}

// NewIDGenerator creates an ID generator with a namespace
func NewIDGenerator(namespace string) *IDGenerator {
	return &IDGenerator{namespace: namespace}
}

// Generate creates a stable ID from inputs
func (g *IDGenerator) Generate(parts ...string) string {
	h := sha256.New()
	h.Write([]byte(g.namespace))
	h.Write([]byte{0})
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ContentHash is a SHA-256 hash for content integrity
type ContentHash [32]byte

// Hex returns the hash as a hex string
func (h ContentHash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements Stringer
func (h ContentHash) String() string {
	return h.Hex()[:16] + "..."
}

// Fingerprint hashes the allocation content of results, ignoring ids and
// timestamps. Two runs over the same inputs produce the same fingerprint.
func Fingerprint(results []types.AllocationResult) ContentHash {
	h := sha256.New()
	for _, r := range results {
		for _, part := range []string{
			string(r.Stage), r.SourceID, r.TargetID,
			r.Amount.String(), r.DriverRatio.String(), r.CalculationMethod,
		} {
			h.Write([]byte(part))
			h.Write([]byte{0})
		}
		h.Write([]byte(strconv.Itoa(len(r.Notes))))
	}
	var out ContentHash
	copy(out[:], h.Sum(nil))
	return out
}

// SortedKeys returns the keys of m in ascending order
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
