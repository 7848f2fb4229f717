// Package resolve implements the conflict-driven version solver: given a
// set of top-level requirements and a marker environment, it finds one
// consistent assignment of versions to every package reachable from
// those requirements, pinning the artifact that provides each and its
// content hash in the Artifact Store.
package resolve

import (
	"fmt"
	"strings"

	"pyresolve/pepver"
	"pyresolve/pkgdb"
	"pyresolve/store"
)

// RootPackage and PythonPackage are the solver's two virtual package
// names: the user's top-level requirement set, and the interpreter
// itself, modelled as an ordinary solver variable per SPEC_FULL.md §4.7.
const (
	RootPackage   = "@root"
	PythonPackage = "@python"
)

// Pin is one entry of a resolved Blueprint: the chosen version, the
// artifact selected to provide it, and the hash under which that
// artifact's bytes live in the Artifact Store.
type Pin struct {
	Version     *pepver.Version
	Artifact    pkgdb.ArtifactRef
	ContentHash store.Hash
}

// Blueprint is the solver's output: every non-synthetic package in the
// final assignment mapped to its Pin. PythonPackage carries the chosen
// interpreter.
type Blueprint struct {
	Pins map[string]Pin
}

// step is one edge in a ConflictError's derivation trace: "parent
// required child via requirement".
type step struct {
	parent, child, requirement string
}

// ConflictError reports that no assignment satisfies the given
// requirements, carrying the chain of requirements that led to the
// package that ran out of candidates.
type ConflictError struct {
	Package string
	Trace   []step
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resolve: no version of %s satisfies every requirement on it", e.Package)
	for i := len(e.Trace) - 1; i >= 0; i-- {
		s := e.Trace[i]
		fmt.Fprintf(&b, "\n  %s requires %s (%s)", s.parent, s.child, s.requirement)
	}
	return b.String()
}

// MetadataUnavailableError reports that a version's metadata could not
// be trusted or fetched; the solver treats this as "no candidates" for
// that version rather than a fatal error (§4.7 "Failure modes").
type MetadataUnavailableError struct {
	Package, Version string
	Err              error
}

func (e *MetadataUnavailableError) Error() string {
	return fmt.Sprintf("resolve: metadata unavailable for %s %s: %v", e.Package, e.Version, e.Err)
}

func (e *MetadataUnavailableError) Unwrap() error { return e.Err }
