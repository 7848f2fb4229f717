package pepmarker

import (
	"bytes"
	"strings"

	"pyresolve/pepver"
)

// Requirement is a parsed PEP 508 requirement string: a distribution name,
// optional extras, a specifier set, and an optional marker. Origin records
// which requirement string produced this value, for diagnostics only; it
// plays no part in equality or solving.
type Requirement struct {
	Name       string
	Extras     []string
	Specifiers pepver.SpecifierSet
	Marker     Marker
	Origin     string
}

// ParseRequirement parses a PEP 508 requirement string such as
// `foo[extra1,extra2]>=1.0,!=1.5; python_version >= "3.7"`. Direct URL
// requirements ("foo @ https://...") are rejected with a *ParseError; no
// other code path in this module accepts them.
func ParseRequirement(raw string) (*Requirement, error) {
	const whitespace = " \t"
	s := strings.Trim(raw, whitespace)
	if s == "" {
		return nil, &ParseError{Input: raw, Reason: "empty requirement"}
	}

	nameEnd := strings.IndexAny(s, whitespace+"[(;<=!~>@")
	if nameEnd == 0 {
		return nil, &ParseError{Input: raw, Reason: "empty distribution name"}
	}
	req := &Requirement{Origin: raw}
	if nameEnd < 0 {
		req.Name = CanonName(s)
		return req, nil
	}
	req.Name = CanonName(s[:nameEnd])
	s = strings.TrimLeft(s[nameEnd:], whitespace)

	if strings.HasPrefix(s, "@") {
		return nil, &ParseError{Input: raw, Reason: "direct URL requirements are not accepted here; resolve them before handing requirements to the solver"}
	}

	if len(s) > 0 && s[0] == '[' {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return nil, &ParseError{Input: raw, Reason: "unterminated extras section"}
		}
		for _, e := range strings.Split(s[1:end], ",") {
			e = strings.Trim(e, whitespace)
			if e != "" {
				req.Extras = append(req.Extras, CanonName(e))
			}
		}
		s = s[end+1:]
	}

	var specStr string
	if len(s) > 0 && s[0] != ';' {
		end := strings.IndexByte(s, ';')
		if end < 0 {
			end = len(s)
		}
		specStr = strings.Trim(s[:end], whitespace)
		if strings.HasPrefix(specStr, "(") && strings.HasSuffix(specStr, ")") {
			specStr = specStr[1 : len(specStr)-1]
		}
		s = s[end:]
	}
	if specStr != "" {
		set, err := pepver.ParseSpecifierSet(specStr)
		if err != nil {
			return nil, &ParseError{Input: raw, Reason: "invalid specifier set: " + err.Error()}
		}
		req.Specifiers = set
	}

	if len(s) > 0 && s[0] != ';' {
		return nil, &ParseError{Input: raw, Reason: "unexpected trailing content: " + s}
	}
	if s != "" {
		markerStr := strings.Trim(s[1:], whitespace)
		m, err := ParseMarker(markerStr)
		if err != nil {
			return nil, &ParseError{Input: raw, Reason: "invalid marker: " + err.Error()}
		}
		req.Marker = m
	}
	return req, nil
}

// CanonName canonicalises a PyPI distribution or extra name per PEP 503:
// runs of '-', '_', '.' collapse to a single '-', and the result is
// lower-cased.
func CanonName(name string) string {
	var out bytes.Buffer
	run := false
	for i := 0; i < len(name); i++ {
		switch c := name[i]; {
		case 'a' <= c && c <= 'z', '0' <= c && c <= '9':
			out.WriteByte(c)
			run = false
		case 'A' <= c && c <= 'Z':
			out.WriteByte(c + ('a' - 'A'))
			run = false
		case c == '-' || c == '_' || c == '.':
			if !run {
				out.WriteByte('-')
			}
			run = true
		default:
			run = false
		}
	}
	return out.String()
}
