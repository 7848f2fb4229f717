// Package pepver parses and orders PEP 440 version strings and evaluates
// the specifier operators defined by the same standard.
//
// Parsing normalises synonyms the way pip's own packaging library does:
// alpha/beta/c/pre/preview/rev/r are folded into the canonical a/b/rc/post
// spellings before anything is compared. Ordering is produced by reducing
// every version to a small set of orthogonal ranks (dev/pre/release/post)
// rather than by direct pairwise case analysis, which keeps Compare total
// and easy to reason about.
package pepver

import (
	"fmt"
	"strconv"
	"strings"
)

// preKind identifies the flavour of a pre-release segment.
type preKind int8

const (
	preNone preKind = iota
	preAlpha
	preBeta
	preRC
)

func (k preKind) String() string {
	switch k {
	case preAlpha:
		return "a"
	case preBeta:
		return "b"
	case preRC:
		return "rc"
	default:
		return ""
	}
}

// localSegment is one dot-separated component of a local version label.
// Exactly one of str/isNum applies: numeric segments compare numerically
// and sort below string segments of the same position, per PEP 440.
type localSegment struct {
	str   string
	num   int64
	isNum bool
}

func (s localSegment) String() string {
	if s.isNum {
		return strconv.FormatInt(s.num, 10)
	}
	return s.str
}

// Version is a parsed, normalised PEP 440 version.
type Version struct {
	epoch   int
	release []int64
	pre     preKind
	preNum  int64
	hasPost bool
	postNum int64
	hasDev  bool
	devNum  int64
	local   []localSegment

	original string
}

// Epoch returns the version's epoch segment (0 if absent).
func (v *Version) Epoch() int { return v.epoch }

// Release returns a copy of the release segment, e.g. [1,2,3] for "1.2.3".
func (v *Version) Release() []int64 {
	out := make([]int64, len(v.release))
	copy(out, v.release)
	return out
}

// IsPrerelease reports whether the version carries a pre-release or dev
// segment, per PEP 440's definition of "pre-release".
func (v *Version) IsPrerelease() bool { return v.pre != preNone || v.hasDev }

// IsDevRelease reports whether the version carries a .devN segment.
func (v *Version) IsDevRelease() bool { return v.hasDev }

// IsPostRelease reports whether the version carries a .postN segment.
func (v *Version) IsPostRelease() bool { return v.hasPost }

// HasLocal reports whether the version carries a local version label.
func (v *Version) HasLocal() bool { return len(v.local) > 0 }

// String returns the original, as-parsed representation.
func (v *Version) String() string { return v.original }

var replacements = map[string]string{
	"alpha":   "a",
	"beta":    "b",
	"c":       "rc",
	"pre":     "rc",
	"preview": "rc",
	"rev":     "post",
	"r":       "post",
	"-":       "post", // legacy implicit post release, e.g. "1.0-1"
}

// pep440Pattern intentionally mirrors the regular expression published in
// PEP 440's reference implementation; Parse looks its named groups up by
// name through SubexpNames.
var pep440Pattern = buildPattern()

// Parse parses s as a PEP 440 version. Leading/trailing whitespace is
// rejected except for a single optional leading "v".
func Parse(s string) (*Version, error) {
	orig := s
	m := pep440Pattern.FindStringSubmatch(s)
	if m == nil {
		return nil, &ParseError{Input: orig, Reason: "does not match PEP 440 grammar"}
	}
	names := pep440Pattern.SubexpNames()
	group := func(name string) string {
		for i, n := range names {
			if n == name && i < len(m) {
				return m[i]
			}
		}
		return ""
	}

	v := &Version{original: orig}

	if e := group("epoch"); e != "" {
		n, err := strconv.Atoi(e)
		if err != nil {
			return nil, &ParseError{Input: orig, Reason: "invalid epoch"}
		}
		v.epoch = n
	}

	rel := group("release")
	for _, part := range strings.Split(rel, ".") {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, &ParseError{Input: orig, Reason: "invalid release segment"}
		}
		v.release = append(v.release, n)
	}

	if preLetter := group("pre_l"); preLetter != "" {
		letter := canonicalizeIdentifier(preLetter)
		switch letter {
		case "a":
			v.pre = preAlpha
		case "b":
			v.pre = preBeta
		case "rc":
			v.pre = preRC
		default:
			return nil, &ParseError{Input: orig, Reason: "invalid pre-release letter"}
		}
		v.preNum = parseImplicitZero(group("pre_n"))
	}

	if postLetter, postDash, postNum := group("post_l"), group("post_n1"), group("post_n2"); postLetter != "" || postDash != "" {
		v.hasPost = true
		if postDash != "" {
			v.postNum = parseImplicitZero(postDash)
		} else {
			v.postNum = parseImplicitZero(postNum)
		}
	}

	if devLetter := group("dev_l"); devLetter != "" {
		v.hasDev = true
		v.devNum = parseImplicitZero(group("dev_n"))
	}

	if loc := group("local"); loc != "" {
		for _, part := range strings.Split(loc, ".") {
			part = strings.ToLower(part)
			if n, err := strconv.ParseInt(part, 10, 64); err == nil {
				v.local = append(v.local, localSegment{num: n, isNum: true})
			} else {
				v.local = append(v.local, localSegment{str: part})
			}
		}
	}

	return v, nil
}

// parseImplicitZero parses a numeric string that may be empty, in which case
// PEP 440 defines the implicit value to be zero (e.g. ".post" == ".post0").
func parseImplicitZero(s string) int64 {
	if s == "" {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// canonicalizeIdentifier folds PEP 440's documented synonyms down to the
// canonical spelling and lower-cases the result.
func canonicalizeIdentifier(s string) string {
	s = strings.ToLower(s)
	if c, ok := replacements[s]; ok {
		return c
	}
	return s
}

// Canon renders the canonical PEP 440 form of v, following the
// normalization rules pip's own packaging library applies: no leading "v",
// synonyms folded, implicit zeros spelled out, release not padded.
func (v *Version) Canon() string {
	var b strings.Builder
	if v.epoch != 0 {
		fmt.Fprintf(&b, "%d!", v.epoch)
	}
	for i, n := range v.release {
		if i > 0 {
			b.WriteByte('.')
		}
		fmt.Fprintf(&b, "%d", n)
	}
	if v.pre != preNone {
		fmt.Fprintf(&b, "%s%d", v.pre, v.preNum)
	}
	if v.hasPost {
		fmt.Fprintf(&b, ".post%d", v.postNum)
	}
	if v.hasDev {
		fmt.Fprintf(&b, ".dev%d", v.devNum)
	}
	if len(v.local) > 0 {
		b.WriteByte('+')
		for i, seg := range v.local {
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(seg.String())
		}
	}
	return b.String()
}

// ParseError is returned when a string fails to parse as a PEP 440 version.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Reason)
}
