package resolve

// An interval is a half-open range [Lo, Hi) of indices into a package's
// ranked candidate list (descending version order, per SPEC_FULL.md
// §4.1/§4.7).
type interval struct {
	Lo, Hi int
}

// set is a sorted, disjoint list of intervals: the admissible indices
// for a package, as carved down by every requirement merged into it so
// far. Intersection is the only operation the solver needs, since every
// new requirement further restricts a criterion's candidates.
type set []interval

// fullSet returns the set covering every index in [0, n).
func fullSet(n int) set {
	if n <= 0 {
		return nil
	}
	return set{{Lo: 0, Hi: n}}
}

// setFromPredicate groups the indices in [0, n) for which keep reports
// true into maximal contiguous runs. Any boolean predicate over a
// sequence is trivially a union of intervals this way, even when the
// predicate (e.g. a "!=" exclusion) carves a hole out of an otherwise
// contiguous run.
func setFromPredicate(n int, keep func(i int) bool) set {
	var s set
	start := -1
	for i := 0; i < n; i++ {
		if keep(i) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			s = append(s, interval{Lo: start, Hi: i})
			start = -1
		}
	}
	if start >= 0 {
		s = append(s, interval{Lo: start, Hi: n})
	}
	return s
}

// intersect returns the set of indices present in both a and b.
func intersect(a, b set) set {
	var out set
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		lo := max(a[i].Lo, b[j].Lo)
		hi := min(a[i].Hi, b[j].Hi)
		if lo < hi {
			out = append(out, interval{Lo: lo, Hi: hi})
		}
		if a[i].Hi < b[j].Hi {
			i++
		} else {
			j++
		}
	}
	return out
}

// empty reports whether s admits no indices at all.
func (s set) empty() bool { return len(s) == 0 }

// contains reports whether i is admitted by s.
func (s set) contains(i int) bool {
	for _, iv := range s {
		if i >= iv.Lo && i < iv.Hi {
			return true
		}
	}
	return false
}

// size is the number of admitted indices, used to pick the
// most-constrained-first criterion to resolve next.
func (s set) size() int {
	n := 0
	for _, iv := range s {
		n += iv.Hi - iv.Lo
	}
	return n
}

// indices yields the admitted indices in ascending order. Candidates are
// ranked best-first (index 0 is the most preferred version), so ascending
// index order already is best-first order.
func (s set) indices() []int {
	idx := make([]int, 0, s.size())
	for _, iv := range s {
		for i := iv.Lo; i < iv.Hi; i++ {
			idx = append(idx, i)
		}
	}
	return idx
}
