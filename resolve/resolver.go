package resolve

import (
	"context"
	"fmt"
	"sort"

	"pyresolve/artifact"
	"pyresolve/internal/lru"
	"pyresolve/pepmarker"
	"pyresolve/pepver"
	"pyresolve/pkgdb"
	"pyresolve/store"
)

// Database is the subset of pkgdb.Database the solver needs: candidate
// versions, the artifacts that provide them, core metadata, and yanked
// status. Any type satisfying this (notably *pkgdb.Database) can drive a
// resolution.
type Database interface {
	AvailableVersions(ctx context.Context, name string) ([]*pepver.Version, error)
	Artifacts(ctx context.Context, name string, version *pepver.Version) ([]pkgdb.ArtifactRef, error)
	Metadata(ctx context.Context, name string, version *pepver.Version) (*pkgdb.CoreMetadata, error)
	Yanked(ctx context.Context, name string, version *pepver.Version) (bool, string, error)
}

// Resolver drives a single resolution pass. It is not safe for
// concurrent use by multiple goroutines on the same call, matching the
// single-threaded-cooperative model of SPEC_FULL.md §5; the Database and
// Store it wraps may themselves be shared across concurrent Resolvers.
type Resolver struct {
	db   Database
	tags artifact.Preference
	env  pepmarker.MarkerEnv

	// PythonProject is the name under which the Database indexes
	// interpreter bundles; its artifacts must be .pybundle files. Left
	// empty, @python is not resolved and must be supplied by the caller
	// via a pre-seeded requirement instead.
	PythonProject string

	// PrereleaseAllowlist names packages for which pre-release versions
	// are admitted even when a stable release exists (§4.7 admission
	// rule 2).
	PrereleaseAllowlist map[string]bool

	// maxRounds bounds the number of pin attempts, mirroring the
	// teacher's own bailout against pathological search trees.
	maxRounds int
	rounds    int

	// markerCache memoizes Marker.Eval by (marker text, extra), since the
	// same requirement's marker is re-evaluated once per activated extra
	// every time its owning package is revisited during backtracking.
	markerCache *lru.Cache[string, bool]

	// yankedCache memoizes Database.Yanked by "name@version", since
	// admissible() is consulted repeatedly for the same candidate across
	// backtracking attempts.
	yankedCache map[string]bool
}

// New returns a Resolver that evaluates markers against env and scores
// wheel candidates against tags, the target interpreter's compatibility
// tag preference list.
func New(db Database, env pepmarker.MarkerEnv, tags artifact.Preference) *Resolver {
	return &Resolver{
		db:                  db,
		env:                 env,
		tags:                tags,
		PrereleaseAllowlist: map[string]bool{},
		maxRounds:           200000,
		markerCache:         lru.New[string, bool](4096),
		yankedCache:         map[string]bool{},
	}
}

// criterion is the accumulated state for one package: every version it
// could still resolve to, and enough bookkeeping to explain a conflict.
type criterion struct {
	ranked []*pepver.Version
	admit  set // indices into ranked still admissible

	// requirements and their introducing package, for the derivation
	// trace on failure and for the exact-pin check in admissible.
	// parents[i] == RootPackage means the root introduced requirements[i].
	requirements []pepver.SpecifierSet
	parents      []string

	// extras accumulates every extra any requirement has activated on
	// this package; see expandDependencies for how these are applied.
	extras map[string]bool
}

func (c *criterion) copy() *criterion {
	nc := &criterion{
		ranked:       c.ranked,
		admit:        append(set(nil), c.admit...),
		requirements: append([]pepver.SpecifierSet(nil), c.requirements...),
		parents:      append([]string(nil), c.parents...),
		extras:       make(map[string]bool, len(c.extras)),
	}
	for k, v := range c.extras {
		nc.extras[k] = v
	}
	return nc
}

// resolveState is the mutable bag threaded through the recursive solve;
// each recursive call works from its own copy of criteria so a failed
// branch leaves the caller's view untouched, mirroring the teacher's
// push/pop state-stack strategy without the extra indirection of an
// explicit stack.
type resolveState struct {
	criteria map[string]*criterion
	assign   map[string]int // package -> chosen index into its criterion's ranked list
	pins     map[string]Pin
}

// Resolve finds a Blueprint satisfying rootReqs, or a *ConflictError if
// none exists.
func (r *Resolver) Resolve(ctx context.Context, rootReqs []*pepmarker.Requirement) (*Blueprint, error) {
	r.rounds = 0
	r.yankedCache = map[string]bool{}
	st := &resolveState{
		criteria: map[string]*criterion{},
		assign:   map[string]int{},
		pins:     map[string]Pin{},
	}

	for _, req := range rootReqs {
		if err := r.merge(ctx, st, req, RootPackage); err != nil {
			return nil, err
		}
	}
	if r.PythonProject != "" {
		pyReq := &pepmarker.Requirement{Name: PythonPackage}
		if err := r.merge(ctx, st, pyReq, RootPackage); err != nil {
			return nil, err
		}
	}

	final, err := r.solve(ctx, st)
	if err != nil {
		return nil, err
	}
	return &Blueprint{Pins: final.pins}, nil
}

// solve is the recursive conflict-driven search: pick the most
// constrained unresolved criterion, try its candidates best-first,
// recurse, and on a dead end try the next candidate. A ConflictError
// returned by a deeper call means "this whole candidate is unusable" to
// the caller, causing it to advance to its own next candidate, which is
// exactly how the chronological backtracking it's grounded on works.
func (r *Resolver) solve(ctx context.Context, st *resolveState) (*resolveState, error) {
	r.rounds++
	if r.rounds > r.maxRounds {
		return nil, fmt.Errorf("resolve: exceeded %d pin attempts", r.maxRounds)
	}

	name, ok := r.pickNext(st)
	if !ok {
		return st, nil
	}

	crit := st.criteria[name]
	candidates := crit.admit.indices() // ascending index order; index 0 is the most preferred version
	for _, idx := range candidates {
		v := crit.ranked[idx]
		ok, err := r.admissible(ctx, name, v, crit)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		next := cloneState(st)
		next.assign[name] = idx

		pin, err := r.selectPin(ctx, name, v)
		if err != nil {
			if _, ok := err.(*MetadataUnavailableError); ok {
				continue
			}
			return nil, err
		}
		next.pins[name] = pin

		if err := r.expandDependencies(ctx, next, name, v, crit.extras); err != nil {
			switch err.(type) {
			case *ConflictError, *MetadataUnavailableError:
				continue
			default:
				return nil, err
			}
		}

		result, err := r.solve(ctx, next)
		if err == nil {
			return result, nil
		}
		if _, ok := err.(*ConflictError); !ok {
			return nil, err
		}
	}

	return nil, &ConflictError{Package: name, Trace: traceFor(st, name)}
}

func cloneState(st *resolveState) *resolveState {
	next := &resolveState{
		criteria: make(map[string]*criterion, len(st.criteria)),
		assign:   make(map[string]int, len(st.assign)),
		pins:     make(map[string]Pin, len(st.pins)),
	}
	for k, v := range st.criteria {
		next.criteria[k] = v.copy()
	}
	for k, v := range st.assign {
		next.assign[k] = v
	}
	for k, v := range st.pins {
		next.pins[k] = v
	}
	return next
}

// pickNext chooses the next criterion to pin: the one with the fewest
// admissible candidates that isn't already assigned, breaking ties
// lexicographically, per SPEC_FULL.md §4.7's "most-constrained first".
func (r *Resolver) pickNext(st *resolveState) (string, bool) {
	best := ""
	bestSize := -1
	for name, crit := range st.criteria {
		if _, done := st.assign[name]; done {
			continue
		}
		n := crit.admit.size()
		if bestSize < 0 || n < bestSize || (n == bestSize && name < best) {
			best, bestSize = name, n
		}
	}
	return best, best != ""
}

// admissible applies the pre-release and yanked gates from §4.7: a
// pre-release candidate is skipped unless every known version of the
// package is a pre-release, the package is allow-listed, or the
// requirement pinned it exactly; a yanked candidate is skipped unless a
// requirement pinned it exactly (PEP 592).
func (r *Resolver) admissible(ctx context.Context, name string, v *pepver.Version, crit *criterion) (bool, error) {
	if v.IsPrerelease() && !r.PrereleaseAllowlist[name] {
		allPrerelease := true
		for _, c := range crit.ranked {
			if !c.IsPrerelease() {
				allPrerelease = false
				break
			}
		}
		if !allPrerelease && !pinnedExactly(crit.requirements, v) {
			return false, nil
		}
	}

	yanked, err := r.isYanked(ctx, name, v)
	if err != nil {
		return false, err
	}
	if yanked && !pinnedExactly(crit.requirements, v) {
		return false, nil
	}
	return true, nil
}

// isYanked reports whether the Database marks (name, v) as yanked,
// memoized per Resolve call since admissible revisits the same
// candidate repeatedly across backtracking attempts.
func (r *Resolver) isYanked(ctx context.Context, name string, v *pepver.Version) (bool, error) {
	key := name + "@" + v.String()
	if b, ok := r.yankedCache[key]; ok {
		return b, nil
	}
	lookupName := name
	if name == PythonPackage {
		lookupName = r.PythonProject
	}
	yanked, _, err := r.db.Yanked(ctx, lookupName, v)
	if err != nil {
		return false, fmt.Errorf("resolve: checking yanked status of %s %s: %w", name, v, err)
	}
	r.yankedCache[key] = yanked
	return yanked, nil
}

// pinnedExactly reports whether some requirement in reqs pins v exactly,
// i.e. carries an unprefixed "==" specifier equal to v — the one case
// that admits an otherwise-excluded pre-release or yanked candidate.
func pinnedExactly(reqs []pepver.SpecifierSet, v *pepver.Version) bool {
	for _, ss := range reqs {
		for _, spec := range ss {
			if spec.Op == pepver.OpEQ && !spec.Prefix && pepver.Compare(spec.Version, v) == 0 {
				return true
			}
		}
	}
	return false
}

// merge folds req into st.criteria, creating the criterion on first
// sight, fetching its ranked candidate list from the Database. An
// empty resulting admit set is reported as a ConflictError immediately.
func (r *Resolver) merge(ctx context.Context, st *resolveState, req *pepmarker.Requirement, parent string) error {
	// Dependency requirements arrive with their marker already evaluated
	// against the extra that activated them (expandDependencies,
	// activateExtra); only root requirements are checked here.
	if parent == RootPackage {
		ok, err := r.markerAllows(req, "")
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	name := req.Name
	crit, exists := st.criteria[name]
	if !exists {
		versions, err := r.candidateVersions(ctx, name)
		if err != nil {
			return err
		}
		crit = &criterion{ranked: versions, admit: fullSet(len(versions)), extras: map[string]bool{}}
		st.criteria[name] = crit
	}

	// Each specifier is applied on its own, without SpecifierSet.Matches'
	// set-wide pre-release gate: pre-release admission is decided by
	// admissible, which knows about the allow-list, exact pins and
	// all-pre-release packages.
	restricted := setFromPredicate(len(crit.ranked), func(i int) bool {
		for _, spec := range req.Specifiers {
			if !spec.Matches(crit.ranked[i]) {
				return false
			}
		}
		return true
	})
	crit.admit = intersect(crit.admit, restricted)
	crit.requirements = append(crit.requirements, req.Specifiers)
	crit.parents = append(crit.parents, parent)

	if idx, pinned := st.assign[name]; pinned && !crit.admit.contains(idx) {
		return &ConflictError{Package: name, Trace: traceFor(st, name)}
	}
	if crit.admit.empty() {
		return &ConflictError{Package: name, Trace: traceFor(st, name)}
	}

	// Route req's own extras through activateExtra rather than setting
	// crit.extras directly, so a requirement naming an extra on a package
	// that's already pinned (reached via a different path first) gets
	// that extra's dependencies folded in immediately instead of only on
	// the next time the package happens to be pinned.
	for _, e := range req.Extras {
		if err := r.activateExtra(ctx, st, name, e, parent); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) markerAllows(req *pepmarker.Requirement, extra string) (bool, error) {
	if req.Marker == nil {
		return true, nil
	}
	return r.evalMarker(req.Marker, extra)
}

// evalMarker evaluates m against r.env, memoizing on (marker text, extra)
// since the same marker is re-evaluated once per activated extra every
// time its owning package is revisited during backtracking.
func (r *Resolver) evalMarker(m pepmarker.Marker, extra string) (bool, error) {
	key := m.String() + "\x00" + extra
	if v, ok := r.markerCache.Get(key); ok {
		return v, nil
	}
	v, err := m.Eval(r.env, extra)
	if err != nil {
		return false, err
	}
	r.markerCache.Add(key, v)
	return v, nil
}

// candidateVersions fetches name's ranked (descending) version list from
// the Database. PythonPackage and r.PythonProject both route through
// artifact-filtered candidate discovery rather than core metadata, since
// an interpreter bundle carries no Requires-Dist the solver needs to
// chase.
func (r *Resolver) candidateVersions(ctx context.Context, name string) ([]*pepver.Version, error) {
	lookupName := name
	if name == PythonPackage {
		lookupName = r.PythonProject
	}
	versions, err := r.db.AvailableVersions(ctx, lookupName)
	if err != nil {
		return nil, fmt.Errorf("resolve: fetching versions for %s: %w", name, err)
	}
	return versions, nil
}

// expandDependencies fetches (name, v)'s Requires-Dist entries (or, for
// an interpreter bundle, none) and merges each into st after marker
// evaluation, activating any extras named in crit.extras so a package
// requested as both plain and with an extra elsewhere in the graph gets
// the extra's requirements folded in exactly once.
func (r *Resolver) expandDependencies(ctx context.Context, st *resolveState, name string, v *pepver.Version, extras map[string]bool) error {
	if name == PythonPackage {
		return nil
	}

	md, err := r.db.Metadata(ctx, name, v)
	if err != nil {
		return &MetadataUnavailableError{Package: name, Version: v.String(), Err: err}
	}

	activeExtras := append([]string{""}, setKeys(extras)...)
	for _, extra := range activeExtras {
		for _, dep := range md.Dependencies {
			allowed, err := r.markerAllowsExtra(dep, extra)
			if err != nil {
				return err
			}
			if !allowed {
				continue
			}
			// merge folds dep.Extras in via activateExtra itself.
			if err := r.merge(ctx, st, dep, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Resolver) markerAllowsExtra(dep *pepmarker.Requirement, extra string) (bool, error) {
	if dep.Marker == nil {
		return extra == "", nil
	}
	return r.evalMarker(dep.Marker, extra)
}

// activateExtra records that child's extra has been requested by
// parent. If child is already pinned, its extra-gated requirements for
// the pinned version are expanded immediately; otherwise they'll be
// picked up the first time child is pinned, via expandDependencies'
// replay of crit.extras. merge is the only caller, so this is also the
// sole place crit.extras is ever set.
func (r *Resolver) activateExtra(ctx context.Context, st *resolveState, child, extra, parent string) error {
	crit, ok := st.criteria[child]
	if !ok || crit.extras[extra] {
		return nil
	}
	crit.extras[extra] = true
	idx, pinned := st.assign[child]
	if !pinned {
		return nil
	}
	v := crit.ranked[idx]
	md, err := r.db.Metadata(ctx, child, v)
	if err != nil {
		return &MetadataUnavailableError{Package: child, Version: v.String(), Err: err}
	}
	for _, dep := range md.Dependencies {
		allowed, err := r.markerAllowsExtra(dep, extra)
		if err != nil {
			return err
		}
		if !allowed {
			continue
		}
		if err := r.merge(ctx, st, dep, child); err != nil {
			return err
		}
	}
	return nil
}

func setKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// selectPin chooses the artifact to provide (name, v): the interpreter
// bundle best matching r.tags for PythonPackage, else a wheel scored
// against r.tags with an sdist fallback, per SPEC_FULL.md §9's
// wheel-over-sdist preference (sdist metadata may need a build backend).
func (r *Resolver) selectPin(ctx context.Context, name string, v *pepver.Version) (Pin, error) {
	lookupName := name
	if name == PythonPackage {
		lookupName = r.PythonProject
	}
	refs, err := r.db.Artifacts(ctx, lookupName, v)
	if err != nil {
		return Pin{}, fmt.Errorf("resolve: fetching artifacts for %s %s: %w", name, v, err)
	}
	if len(refs) == 0 {
		return Pin{}, &MetadataUnavailableError{Package: name, Version: v.String(), Err: fmt.Errorf("no artifacts listed")}
	}

	chosen, err := pickArtifact(refs, r.tags)
	if err != nil {
		return Pin{}, err
	}
	hash := store.Hash{}
	for _, algo := range []string{"sha256", "blake2b", "sha384", "sha512"} {
		if h, ok := chosen.Hashes[algo]; ok {
			hash = store.Hash{Algo: algo, Hex: h}
			break
		}
	}
	return Pin{Version: v, Artifact: *chosen, ContentHash: hash}, nil
}

func pickArtifact(refs []pkgdb.ArtifactRef, tags artifact.Preference) (*pkgdb.ArtifactRef, error) {
	names := make([]*artifact.Name, len(refs))
	for i, ref := range refs {
		n, _ := artifact.ParseWheelName(ref.Filename)
		if n == nil {
			n, _ = artifact.ParsePyBundleName(ref.Filename)
		}
		names[i] = n
	}
	candidates := make([]*artifact.Name, 0, len(names))
	idxMap := make([]int, 0, len(names))
	for i, n := range names {
		if n != nil {
			candidates = append(candidates, n)
			idxMap = append(idxMap, i)
		}
	}
	if best := artifact.BestMatch(candidates, tags); best >= 0 {
		return &refs[idxMap[best]], nil
	}
	// No wheel/bundle matched the target tags; fall back to an sdist, if
	// one is listed, to be built by the external build-backend collaborator.
	for i := range refs {
		if names[i] == nil {
			return &refs[i], nil
		}
	}
	return nil, fmt.Errorf("resolve: no artifact compatible with the target platform")
}

func traceFor(st *resolveState, name string) []step {
	var trace []step
	visited := map[string]bool{}
	cur := name
	for cur != "" && !visited[cur] {
		visited[cur] = true
		crit, ok := st.criteria[cur]
		if !ok || len(crit.parents) == 0 {
			break
		}
		parent := crit.parents[len(crit.parents)-1]
		req := crit.requirements[len(crit.requirements)-1]
		trace = append(trace, step{parent: displayName(parent), child: cur, requirement: req.String()})
		cur = parent
	}
	return trace
}

func displayName(name string) string {
	if name == "" {
		return RootPackage
	}
	return name
}
