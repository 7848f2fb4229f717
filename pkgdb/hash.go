package pkgdb

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// hashAlgorithms maps an index-advertised algorithm name to a constructor,
// mirroring the name->constructor registry idiom used for multi-algorithm
// checksum verification elsewhere in the retrieved pack.
var hashAlgorithms = map[string]func() hash.Hash{
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
	"blake2b": func() hash.Hash {
		h, _ := blake2b.New256(nil)
		return h
	},
}

// verifyHashes checks body against every algorithm in want that this
// package knows how to compute, failing closed if any of them mismatch. An
// algorithm it doesn't recognize is ignored, since the index may advertise
// more than a client supports.
func verifyHashes(body []byte, want map[string]string) error {
	for algo, digest := range want {
		newHash, ok := hashAlgorithms[algo]
		if !ok {
			continue
		}
		h := newHash()
		h.Write(body)
		got := hex.EncodeToString(h.Sum(nil))
		if got != digest {
			return fmt.Errorf("pkgdb: %s hash mismatch: want %s, got %s", algo, digest, got)
		}
	}
	return nil
}
