// Package artifact parses the on-disk filename conventions used by Python
// packaging artifacts (wheels, source distributions, and interpreter
// bundles) and ranks a wheel's compatibility tags against a target
// platform.
package artifact

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"pyresolve/pepmarker"
	"pyresolve/pepver"
)

// Kind identifies which artifact variant a Name describes.
type Kind int

const (
	KindWheel Kind = iota
	KindSdist
	KindPyBundle
)

func (k Kind) String() string {
	switch k {
	case KindWheel:
		return "wheel"
	case KindSdist:
		return "sdist"
	case KindPyBundle:
		return "pybundle"
	default:
		return "unknown"
	}
}

// BuildTag is a wheel or bundle's optional build tag, e.g. "1local" in
// "foo.bar-0.1b3-1local-py2.py3-none-any.whl". It sorts as an empty tuple
// when absent, else as (Num, Name) with None/absent sorting first.
type BuildTag struct {
	Present bool
	Num     int
	Name    string
}

// Compare orders build tags per PEP 427: absent < any present value;
// among present values, compare numerically then lexicographically.
func (b BuildTag) Compare(o BuildTag) int {
	switch {
	case b.Present == o.Present:
		if !b.Present {
			return 0
		}
		if b.Num != o.Num {
			if b.Num < o.Num {
				return -1
			}
			return 1
		}
		return strings.Compare(b.Name, o.Name)
	case b.Present:
		return 1
	default:
		return -1
	}
}

// Tag is a single PEP 425 compatibility triple, e.g. (cp312, cp312, manylinux_2_17_x86_64).
type Tag struct {
	Python, ABI, Platform string
}

func (t Tag) String() string { return t.Python + "-" + t.ABI + "-" + t.Platform }

// Name is a parsed artifact filename.
type Name struct {
	Kind         Kind
	Distribution string // canonicalised
	Version      *pepver.Version
	Build        BuildTag
	// Tags is the expanded set of compatibility triples a wheel or bundle
	// supports; every combination in the compressed tag set's cross
	// product. Empty for sdists.
	Tags []Tag
}

// ParseError is returned for a filename that does not conform to the
// wheel/sdist/bundle naming convention.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid artifact filename %q: %s", e.Input, e.Reason)
}

// ParseWheelName parses a wheel filename per the binary distribution
// format: {distribution}-{version}[-{build}]-{python}-{abi}-{platform}.whl,
// where each of the last three fields may itself be a dot-separated
// compressed tag set.
func ParseWheelName(filename string) (*Name, error) {
	if !strings.HasSuffix(filename, ".whl") {
		return nil, &ParseError{Input: filename, Reason: "missing .whl suffix"}
	}
	base := filename[:len(filename)-len(".whl")]
	parts := strings.Split(base, "-")
	if len(parts) != 5 && len(parts) != 6 {
		return nil, &ParseError{Input: filename, Reason: fmt.Sprintf("expected 5 or 6 '-'-separated fields, got %d", len(parts))}
	}

	dist := pepmarker.CanonName(parts[0])
	ver, err := pepver.Parse(parts[1])
	if err != nil {
		return nil, &ParseError{Input: filename, Reason: "invalid version: " + err.Error()}
	}

	n := &Name{Kind: KindWheel, Distribution: dist, Version: ver}

	if len(parts) == 6 {
		build, err := parseBuildTag(parts[2])
		if err != nil {
			return nil, &ParseError{Input: filename, Reason: err.Error()}
		}
		n.Build = build
	}

	pyTags := strings.Split(parts[len(parts)-3], ".")
	abiTags := strings.Split(parts[len(parts)-2], ".")
	platTags := strings.Split(parts[len(parts)-1], ".")
	for _, py := range pyTags {
		for _, abi := range abiTags {
			for _, plat := range platTags {
				n.Tags = append(n.Tags, Tag{Python: py, ABI: abi, Platform: plat})
			}
		}
	}
	return n, nil
}

// parseBuildTag splits a build tag into its leading digit run and trailing
// name, per PEP 427's "sorts as a two-item tuple" rule. A tag with no
// leading digits is rejected with an error. The caller only invokes this
// on a present field, so the result always has Present set.
func parseBuildTag(s string) (BuildTag, error) {
	i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if i == 0 {
		return BuildTag{}, fmt.Errorf("build tag %q does not start with a digit", s)
	}
	if i < 0 {
		i = len(s)
	}
	num, err := strconv.Atoi(s[:i])
	if err != nil {
		return BuildTag{}, fmt.Errorf("invalid build tag %q: %v", s, err)
	}
	return BuildTag{Present: true, Num: num, Name: s[i:]}, nil
}

// ParseSdistName extracts the distribution and version from an sdist
// filename. The format is not standardised, so this scans every "-" in the
// name (after stripping the archive extension) looking for a prefix that
// canonicalises to canonName; pip relies on the same convention.
func ParseSdistName(canonName, filename string) (*Name, error) {
	base := strings.TrimSuffix(filename, extOf(filename))
	base = strings.TrimSuffix(base, ".tar")
	for i := 0; i < len(base); i++ {
		if base[i] != '-' {
			continue
		}
		if pepmarker.CanonName(base[:i]) != canonName {
			continue
		}
		ver, err := pepver.Parse(base[i+1:])
		if err != nil {
			return nil, &ParseError{Input: filename, Reason: "invalid version: " + err.Error()}
		}
		return &Name{Kind: KindSdist, Distribution: canonName, Version: ver}, nil
	}
	return nil, &ParseError{Input: filename, Reason: fmt.Sprintf("no '-'-prefix of the filename canonicalises to %q", canonName)}
}

func extOf(filename string) string {
	if i := strings.LastIndexByte(filename, '.'); i >= 0 {
		return filename[i:]
	}
	return ""
}

// ParsePyBundleName parses an interpreter-bundle filename, which follows
// the wheel convention but with a single platform tag field that may be
// the literal "PLATFORM" placeholder standing in for any system platform.
// Bundle filenames carry no ABI field since an interpreter bundle is its
// own ABI.
func ParsePyBundleName(filename string) (*Name, error) {
	const suffix = ".pybundle"
	if !strings.HasSuffix(filename, suffix) {
		return nil, &ParseError{Input: filename, Reason: "missing .pybundle suffix"}
	}
	base := filename[:len(filename)-len(suffix)]
	parts := strings.Split(base, "-")
	if len(parts) != 3 && len(parts) != 4 {
		return nil, &ParseError{Input: filename, Reason: fmt.Sprintf("expected 3 or 4 '-'-separated fields, got %d", len(parts))}
	}
	dist := pepmarker.CanonName(parts[0])
	ver, err := pepver.Parse(parts[1])
	if err != nil {
		return nil, &ParseError{Input: filename, Reason: "invalid version: " + err.Error()}
	}
	n := &Name{Kind: KindPyBundle, Distribution: dist, Version: ver}
	if len(parts) == 4 {
		build, err := parseBuildTag(parts[2])
		if err != nil {
			return nil, &ParseError{Input: filename, Reason: err.Error()}
		}
		n.Build = build
	}
	for _, plat := range strings.Split(parts[len(parts)-1], ".") {
		n.Tags = append(n.Tags, Tag{Platform: plat})
	}
	return n, nil
}
