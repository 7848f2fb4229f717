// Package store implements the content-addressed on-disk cache of
// artifact bytes and their unpacked trees.
package store

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Algorithms this package can both compute and verify, keyed by name.
// sha256 is the canonical content hash (§4.6); the rest let an index
// advertise a second algorithm to cross-check against.
var algorithms = map[string]func() hash.Hash{
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
	"blake2b": func() hash.Hash {
		h, _ := blake2b.New256(nil)
		return h
	},
}

// Hash is a content digest addressed under a named algorithm, rendered
// lowercase hex, matching the directory fanout "by-hash/<algo>/<hex>".
type Hash struct {
	Algo string
	Hex  string
}

func (h Hash) String() string { return h.Algo + ":" + h.Hex }

// ParseHash parses a "algo:hexdigest" string as produced by String.
func ParseHash(s string) (Hash, error) {
	algo, hex, ok := strings.Cut(s, ":")
	if !ok {
		return Hash{}, fmt.Errorf("store: malformed hash %q, want algo:hexdigest", s)
	}
	return Hash{Algo: algo, Hex: hex}, nil
}

// HashMismatchError reports a declared hash that disagreed with the
// bytes actually fetched.
type HashMismatchError struct {
	Algo, Want, Got string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("store: %s hash mismatch: declared %s, computed %s", e.Algo, e.Want, e.Got)
}

// newHasher returns a constructor for algo's hash.Hash, or false if this
// package doesn't know how to compute that algorithm.
func newHasher(algo string) (func() hash.Hash, bool) {
	h, ok := algorithms[algo]
	return h, ok
}

func hexDigest(h hash.Hash) string { return hex.EncodeToString(h.Sum(nil)) }
