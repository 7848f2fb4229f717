package pkgdb

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/mail"
	"unicode/utf8"

	"pyresolve/pepmarker"
)

// CoreMetadata holds the subset of a distribution's core metadata
// (https://packaging.python.org/en/latest/specifications/core-metadata/)
// the resolver needs to expand a package's dependencies.
type CoreMetadata struct {
	Name            string
	Version         string
	RequiresPython  string
	ProvidesExtra   []string
	Dependencies    []*pepmarker.Requirement
	MetadataVersion string
	Dynamic         []string
}

// ParseError is returned for metadata that cannot be parsed at all.
type ParseError struct {
	msg string
}

func (e ParseError) Error() string { return e.msg }

func parseErrorf(format string, args ...any) ParseError {
	return ParseError{msg: fmt.Sprintf(format, args...)}
}

// ParseCoreMetadata reads a METADATA or PKG-INFO document, in the RFC-822-like
// format defined by PEP 241/566 and the current core metadata spec. logger
// receives a warning, in the manner of the teacher's own ParseMetadata, when
// a single-valued header is repeated rather than silently keeping the last
// occurrence.
func ParseCoreMetadata(data string, logger *log.Logger) (*CoreMetadata, error) {
	if logger == nil {
		logger = log.Default()
	}
	if !utf8.ValidString(data) {
		return nil, parseErrorf("invalid UTF-8 in metadata")
	}
	buf := bytes.NewBufferString(data)
	buf.WriteByte('\n')
	msg, err := mail.ReadMessage(buf)
	if err != nil {
		return nil, parseErrorf("parsing core metadata: %v", err)
	}

	header := func(name string) string {
		vs := msg.Header[name]
		if len(vs) > 1 {
			logger.Printf("pkgdb: header set multiple times: %q: %q", name, vs)
		}
		if len(vs) == 1 && vs[0] != "UNKNOWN" {
			return vs[0]
		}
		return ""
	}
	multiHeader := func(name string) (values []string) {
		for _, v := range msg.Header[name] {
			if v != "UNKNOWN" {
				values = append(values, v)
			}
		}
		return
	}

	md := &CoreMetadata{
		Name:            header("Name"),
		Version:         header("Version"),
		RequiresPython:  header("Requires-Python"),
		MetadataVersion: header("Metadata-Version"),
		ProvidesExtra:   multiHeader("Provides-Extra"),
		Dynamic:         multiHeader("Dynamic"),
	}
	if md.Name == "" || md.Version == "" {
		return nil, parseErrorf("core metadata missing required Name/Version header")
	}
	for _, raw := range msg.Header["Requires-Dist"] {
		req, err := pepmarker.ParseRequirement(raw)
		if err != nil {
			return nil, fmt.Errorf("pkgdb: parsing Requires-Dist %q: %w", raw, err)
		}
		md.Dependencies = append(md.Dependencies, req)
	}
	// Drain the body; core metadata may carry a long-form description there,
	// which the resolver has no use for.
	if _, err := io.ReadAll(msg.Body); err != nil {
		return nil, parseErrorf("reading metadata body: %v", err)
	}
	return md, nil
}

// TrustedSdistMetadata reports whether PKG-INFO metadata at the declared
// Metadata-Version can be relied on directly, per SPEC_FULL.md §6: sdist
// metadata is trustworthy only from Metadata-Version 2.2 onward, and only
// when none of the fields the resolver needs are marked Dynamic.
func (md *CoreMetadata) TrustedSdistMetadata() bool {
	if !metadataVersionAtLeast(md.MetadataVersion, 2, 2) {
		return false
	}
	for _, d := range md.Dynamic {
		switch d {
		case "Requires-Dist", "Requires-Python", "Provides-Extra":
			return false
		}
	}
	return true
}

func metadataVersionAtLeast(v string, major, minor int) bool {
	var gotMajor, gotMinor int
	if _, err := fmt.Sscanf(v, "%d.%d", &gotMajor, &gotMinor); err != nil {
		return false
	}
	if gotMajor != major {
		return gotMajor > major
	}
	return gotMinor >= minor
}
