package pepmarker

import (
	"fmt"
	"strings"

	"pyresolve/pepver"
)

// ParseError is returned for a marker or requirement string that does not
// conform to the PEP 508 grammar.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pepmarker: invalid %q: %s", e.Input, e.Reason)
}

// UnsupportedMarkerError is returned at evaluation time when a marker
// expression references platform_release, platform_version, or any other
// variable name this implementation does not resolve.
type UnsupportedMarkerError struct {
	Name string
}

func (e *UnsupportedMarkerError) Error() string {
	return fmt.Sprintf("pepmarker: unsupported marker variable %q", e.Name)
}

// Marker is a parsed PEP 508 environment marker: a boolean expression tree
// over comparisons against a MarkerEnv and the current extra name.
type Marker interface {
	String() string
	// Eval evaluates the marker. extra is the name of the extra currently
	// being expanded, or "" if none; it is compared against `extra == "..."`
	// atoms. Eval returns *UnsupportedMarkerError for an unsupported
	// variable, and *ParseError for an operator that cannot be applied to
	// its operands (such as ~= when either side is not a version).
	Eval(env MarkerEnv, extra string) (bool, error)
}

type markerOr struct{ left, right Marker }

func (m markerOr) String() string { return fmt.Sprintf("(%s or %s)", m.left, m.right) }

func (m markerOr) Eval(env MarkerEnv, extra string) (bool, error) {
	l, err := m.left.Eval(env, extra)
	if err != nil {
		return false, err
	}
	if l {
		return true, nil
	}
	return m.right.Eval(env, extra)
}

type markerAnd struct{ left, right Marker }

func (m markerAnd) String() string { return fmt.Sprintf("(%s and %s)", m.left, m.right) }

func (m markerAnd) Eval(env MarkerEnv, extra string) (bool, error) {
	l, err := m.left.Eval(env, extra)
	if err != nil {
		return false, err
	}
	if !l {
		return false, nil
	}
	return m.right.Eval(env, extra)
}

// Op is a marker_op from the PEP 508 grammar.
type Op byte

const (
	OpUnknown Op = iota
	OpLessEqual
	OpLess
	OpNotEqual
	OpEqual
	OpGreaterEqual
	OpGreater
	OpCompatible // ~=
	OpTripleEqual
	OpIn
	OpNotIn
)

func (o Op) String() string {
	switch o {
	case OpLessEqual:
		return "<="
	case OpLess:
		return "<"
	case OpNotEqual:
		return "!="
	case OpEqual:
		return "=="
	case OpGreaterEqual:
		return ">="
	case OpGreater:
		return ">"
	case OpCompatible:
		return "~="
	case OpTripleEqual:
		return "==="
	case OpIn:
		return "in"
	case OpNotIn:
		return "not in"
	default:
		return "?"
	}
}

// opsByLength lists fixed-width operators longest-first, so the parser can
// try them in order without risking a short operator shadowing a longer one
// that shares its prefix (e.g. "<" vs "<=").
var opsByLength = []Op{
	OpTripleEqual,
	OpLessEqual, OpNotEqual, OpEqual, OpGreaterEqual, OpCompatible,
	OpLess, OpGreater,
}

// operand is one side of a marker_expr: either a known environment variable
// or a quoted string literal.
type operand struct {
	varName string // "" if this operand was a literal, not a variable
	literal string
}

func (o operand) String() string {
	if o.varName != "" {
		return o.varName
	}
	return fmt.Sprintf("%q", o.literal)
}

// resolve returns the operand's string value in env, or an error if it
// names an unsupported or unknown variable.
func (o operand) resolve(env MarkerEnv) (string, error) {
	if o.varName == "" {
		return o.literal, nil
	}
	if o.varName == "extra" {
		return "", nil // handled specially by markerExpr.Eval
	}
	if !knownVariables[o.varName] {
		return "", &UnsupportedMarkerError{Name: o.varName}
	}
	return env[o.varName], nil
}

type markerExpr struct {
	op          Op
	left, right operand
}

func (m markerExpr) String() string { return fmt.Sprintf("%s %s %s", m.left, m.op, m.right) }

func (m markerExpr) Eval(env MarkerEnv, extra string) (bool, error) {
	if m.left.varName == "extra" || m.right.varName == "extra" {
		lit := m.left.literal
		if m.left.varName == "extra" {
			lit = m.right.literal
		}
		return extra == lit, nil
	}

	lv, err := m.left.resolve(env)
	if err != nil {
		return false, err
	}
	rv, err := m.right.resolve(env)
	if err != nil {
		return false, err
	}

	// Prefer a PEP 440 version comparison when both sides parse as
	// versions and the operator is version-capable; otherwise fall back
	// to Python string semantics, mirroring pip's own marker evaluator.
	if m.op != OpTripleEqual {
		if lver, lerr := pepver.Parse(lv); lerr == nil {
			if rver, rerr := pepver.Parse(rv); rerr == nil {
				if cmp, ok := versionCompare(m.op, lver, rver); ok {
					return cmp, nil
				}
			}
		}
	}

	switch m.op {
	case OpLessEqual:
		return lv <= rv, nil
	case OpLess:
		return lv < rv, nil
	case OpNotEqual:
		return lv != rv, nil
	case OpEqual, OpTripleEqual:
		return lv == rv, nil
	case OpGreaterEqual:
		return lv >= rv, nil
	case OpGreater:
		return lv > rv, nil
	case OpIn:
		return strings.Contains(rv, lv), nil
	case OpNotIn:
		return !strings.Contains(rv, lv), nil
	default:
		return false, &ParseError{Input: m.String(), Reason: "unusable operator in evaluation"}
	}
}

// versionCompare evaluates a version-capable operator directly via pepver,
// returning ok=false for ~= and === which need specifier-level or
// string-level handling respectively.
func versionCompare(op Op, l, r *pepver.Version) (result, ok bool) {
	switch op {
	case OpLessEqual:
		return pepver.Compare(l, r) <= 0, true
	case OpLess:
		return pepver.Compare(l, r) < 0, true
	case OpNotEqual:
		return pepver.Compare(l, r) != 0, true
	case OpEqual:
		return pepver.Compare(l, r) == 0, true
	case OpGreaterEqual:
		return pepver.Compare(l, r) >= 0, true
	case OpGreater:
		return pepver.Compare(l, r) > 0, true
	case OpCompatible:
		spec := &pepver.Specifier{Op: pepver.OpCompatible, Version: r}
		if len(r.Release()) < 2 {
			return false, false
		}
		return spec.Matches(l), true
	default:
		return false, false
	}
}
