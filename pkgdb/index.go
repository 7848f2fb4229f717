package pkgdb

import (
	"fmt"
	"net/url"
)

// ArtifactRef describes one downloadable file listed for a project on a
// package index, per PEP 503 (HTML) or PEP 691 (JSON).
type ArtifactRef struct {
	Filename         string
	URL              *url.URL
	Hashes           map[string]string // algorithm name -> lowercase hex digest
	RequiresPython   string
	DistInfoMetadata DistInfoMetadata
	Yanked           bool
	YankedReason     string
}

// DistInfoMetadata records whether an index page advertises a standalone
// METADATA sidecar for an artifact, and the hash(es) to verify it against
// when one is fetched.
type DistInfoMetadata struct {
	Available bool
	Hashes    map[string]string
}

// IndexError wraps a failure to parse or otherwise make sense of an index
// page's content.
type IndexError struct {
	msg string
}

func (e IndexError) Error() string { return e.msg }

func indexErrorf(format string, args ...any) IndexError {
	return IndexError{msg: fmt.Sprintf(format, args...)}
}
