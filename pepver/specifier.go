package pepver

import (
	"fmt"
	"strings"
)

// Op identifies a specifier's comparison operator.
type Op int

const (
	OpEQ Op = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpCompatible // ~=
)

func (op Op) String() string {
	switch op {
	case OpEQ:
		return "=="
	case OpNE:
		return "!="
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpCompatible:
		return "~="
	default:
		return "?"
	}
}

// Specifier is a single PEP 440 comparison clause, e.g. ">=1.0" or "==1.2.*".
type Specifier struct {
	Op      Op
	Version *Version
	Prefix  bool // true for "==1.2.*" / "!=1.2.*"
}

func (s *Specifier) String() string {
	if s.Prefix {
		return s.Op.String() + trimReleaseWildcard(s.Version) + ".*"
	}
	return s.Op.String() + s.Version.Canon()
}

// trimReleaseWildcard renders the release-only prefix used by a wildcard
// specifier's canonical form.
func trimReleaseWildcard(v *Version) string {
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
	return b.String()
}

// operators in descending length order, so that "==" is tried before "="
// would be (not a valid operator here) and "<=" before "<".
var specifierOps = []struct {
	text string
	op   Op
}{
	{"~=", OpCompatible},
	{"==", OpEQ},
	{"!=", OpNE},
	{"<=", OpLE},
	{">=", OpGE},
	{"<", OpLT},
	{">", OpGT},
}

// ParseSpecifier parses a single specifier clause such as "~=1.4" or
// "==1.2.*". It enforces the constraints from the version/specifier data
// model: prefix-match is legal only on ==/!=, a local version segment is
// legal only on ==/!= without prefix-match, and ~= requires at least two
// release components and forbids local/prefix.
func ParseSpecifier(s string) (*Specifier, error) {
	s = strings.TrimSpace(s)
	var op Op
	var rest string
	matched := false
	for _, cand := range specifierOps {
		if strings.HasPrefix(s, cand.text) {
			op = cand.op
			rest = strings.TrimSpace(s[len(cand.text):])
			matched = true
			break
		}
	}
	if !matched {
		return nil, &ParseError{Input: s, Reason: "unrecognised specifier operator"}
	}
	if rest == "" {
		return nil, &ParseError{Input: s, Reason: "missing version in specifier"}
	}

	prefix := false
	verStr := rest
	if strings.HasSuffix(rest, ".*") {
		if op != OpEQ && op != OpNE {
			return nil, &ParseError{Input: s, Reason: "prefix match (\".*\") is only valid with == or !="}
		}
		prefix = true
		verStr = rest[:len(rest)-2]
	}

	ver, err := Parse(verStr)
	if err != nil {
		return nil, &ParseError{Input: s, Reason: "invalid version operand: " + err.Error()}
	}

	if prefix && (ver.IsPrerelease() || ver.IsPostRelease() || ver.IsDevRelease()) {
		return nil, &ParseError{Input: s, Reason: "prefix match (\".*\") requires a bare release, not a pre/post/dev version"}
	}

	if ver.HasLocal() {
		if prefix {
			return nil, &ParseError{Input: s, Reason: "local version segment is not allowed with prefix match"}
		}
		if op != OpEQ && op != OpNE {
			return nil, &ParseError{Input: s, Reason: "local version segment is only allowed with == or !="}
		}
	}

	if op == OpCompatible {
		if len(ver.release) < 2 {
			return nil, &ParseError{Input: s, Reason: "~= requires at least two release components"}
		}
		if ver.HasLocal() {
			return nil, &ParseError{Input: s, Reason: "~= does not allow a local version segment"}
		}
	}

	return &Specifier{Op: op, Version: ver, Prefix: prefix}, nil
}

// Matches reports whether v satisfies s in isolation, without the
// SpecifierSet-level pre-release admission gate (see SpecifierSet.Matches).
func (s *Specifier) Matches(v *Version) bool {
	switch s.Op {
	case OpEQ:
		return s.matchesEQ(v)
	case OpNE:
		return !s.matchesEQ(v)
	case OpLT:
		if comparePublic(v, s.Version) >= 0 {
			return false
		}
		// Exclude same-release pre/dev prospects unless the bound is itself
		// a pre-release: "1.0.dev0" < "1.0" should not silently admit every
		// pre-release of "1.0" when the caller asked for "< 1.0".
		if !s.Version.IsPrerelease() && v.IsPrerelease() && compareRelease(v.release, s.Version.release) == 0 {
			return false
		}
		return true
	case OpLE:
		return comparePublic(v, s.Version) <= 0
	case OpGT:
		if comparePublic(v, s.Version) <= 0 {
			return false
		}
		if !s.Version.IsPostRelease() && v.IsPostRelease() && compareRelease(v.release, s.Version.release) == 0 {
			return false
		}
		return true
	case OpGE:
		return comparePublic(v, s.Version) >= 0
	case OpCompatible:
		prefixRelease := s.Version.release[:len(s.Version.release)-1]
		return v.epoch == s.Version.epoch &&
			compareRelease(releasePrefix(v.release, len(prefixRelease)), prefixRelease) == 0 &&
			comparePublic(v, s.Version) >= 0
	default:
		return false
	}
}

func (s *Specifier) matchesEQ(v *Version) bool {
	if s.Prefix {
		if v.epoch != s.Version.epoch {
			return false
		}
		n := len(s.Version.release)
		return compareRelease(releasePrefix(v.release, n), s.Version.release) == 0
	}
	if s.Version.HasLocal() {
		return Compare(v, s.Version) == 0
	}
	return comparePublic(v, s.Version) == 0
}

// releasePrefix returns the first n components of release, zero-padding if
// it is shorter, mirroring PEP 440's "compare release zero-padded" rule.
func releasePrefix(release []int64, n int) []int64 {
	out := make([]int64, n)
	copy(out, release)
	return out
}

// comparePublic compares v and w ignoring any local version segment on
// either side, as required for <, <=, >, >= and unqualified ==.
func comparePublic(v, w *Version) int {
	if c := signInt(v.epoch, w.epoch); c != 0 {
		return c
	}
	if c := compareRelease(v.release, w.release); c != 0 {
		return c
	}
	if c := comparePre(v, w); c != 0 {
		return c
	}
	if c := comparePost(v, w); c != 0 {
		return c
	}
	return compareDev(v, w)
}

// SpecifierSet is the conjunction of zero or more Specifiers.
type SpecifierSet []*Specifier

// ParseSpecifierSet parses a comma-separated list of specifiers, e.g.
// ">=1.0,!=1.5,<2.0". An empty string parses to an empty, always-matching
// set (subject to the pre-release gate below).
func ParseSpecifierSet(s string) (SpecifierSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	set := make(SpecifierSet, 0, len(parts))
	for _, p := range parts {
		spec, err := ParseSpecifier(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		set = append(set, spec)
	}
	return set, nil
}

func (ss SpecifierSet) String() string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

// allowsPrerelease reports whether any ==, != or ~= clause in the set names
// a pre-release version explicitly, which admits pre-releases into the
// set's matches per §4.1's pre-release admission rule.
func (ss SpecifierSet) allowsPrerelease() bool {
	for _, s := range ss {
		if (s.Op == OpEQ || s.Op == OpNE || s.Op == OpCompatible) && s.Version.IsPrerelease() {
			return true
		}
	}
	return false
}

// Matches reports whether v satisfies every specifier in the set, subject
// to the set-wide pre-release admission gate: a pre-release version is
// rejected outright unless the set explicitly names one.
func (ss SpecifierSet) Matches(v *Version) bool {
	if v.IsPrerelease() && !ss.allowsPrerelease() {
		return false
	}
	for _, s := range ss {
		if !s.Matches(v) {
			return false
		}
	}
	return true
}
