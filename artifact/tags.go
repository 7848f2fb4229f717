package artifact

// Preference is an ordered list of platform tag triples a target
// interpreter+OS supports, most preferred first, as produced by the
// running interpreter's own tag-generation logic (PEP 425/PEP 600). It is
// the table ScoreAgainst ranks a wheel's tags against.
type Preference []Tag

// indexOf returns the position of t within the host-supported tags, or -1
// if unsupported. A wildcard platform of "PLATFORM" in t matches any
// preference entry's platform for the same (python, abi) pair, reflecting
// the interpreter-bundle convention where PLATFORM stands for any system
// platform tag.
func (p Preference) indexOf(t Tag) int {
	for i, pref := range p {
		if pref.Python == t.Python && pref.ABI == t.ABI &&
			(pref.Platform == t.Platform || t.Platform == "PLATFORM") {
			return i
		}
	}
	return -1
}

// ScoreAgainst returns the best (lowest) index among n's compatibility
// tags within pref, and whether any of n's tags were found at all. Lower
// scores are more preferred; the caller picks the candidate with the
// lowest score among those that matched.
func (n *Name) ScoreAgainst(pref Preference) (score int, ok bool) {
	best := -1
	for _, t := range n.Tags {
		if i := pref.indexOf(t); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// BestMatch returns the index into names of the most-preferred compatible
// candidate according to pref, or -1 if none match. Ties are broken by
// earlier position in names, matching a stable "first sufficiently good
// match wins" selection.
func BestMatch(names []*Name, pref Preference) int {
	bestIdx, bestScore := -1, 0
	for i, n := range names {
		score, ok := n.ScoreAgainst(pref)
		if !ok {
			continue
		}
		if bestIdx < 0 || score < bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return bestIdx
}
