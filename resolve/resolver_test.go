package resolve

import (
	"context"
	"fmt"
	"log"
	"testing"

	"pyresolve/artifact"
	"pyresolve/pepmarker"
	"pyresolve/pepver"
	"pyresolve/pkgdb"
)

// fakeProject is one version's worth of test fixtures for a package: the
// artifact it's served as and the requirement strings it depends on.
type fakeProject struct {
	version      string
	deps         []string // PEP 508 requirement strings
	wheel        bool      // false models an sdist with no matching tag
	yanked       bool
	yankedReason string
}

// fakeDB is a minimal in-memory Database, populated directly rather than
// fetched over HTTP, so resolver tests exercise only the solver's own
// logic.
type fakeDB struct {
	projects map[string][]fakeProject
}

func newFakeDB() *fakeDB { return &fakeDB{projects: map[string][]fakeProject{}} }

func (f *fakeDB) add(name string, projects ...fakeProject) {
	f.projects[pepmarker.CanonName(name)] = projects
}

func (f *fakeDB) AvailableVersions(ctx context.Context, name string) ([]*pepver.Version, error) {
	projects, ok := f.projects[pepmarker.CanonName(name)]
	if !ok {
		return nil, fmt.Errorf("fakeDB: no project named %q", name)
	}
	var out []*pepver.Version
	for _, p := range projects {
		v, err := pepver.Parse(p.version)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	// AvailableVersions is documented to return descending order; the
	// fixtures are already written newest-first, so no sort is needed
	// here, matching how the fake is populated below.
	return out, nil
}

func (f *fakeDB) Artifacts(ctx context.Context, name string, version *pepver.Version) ([]pkgdb.ArtifactRef, error) {
	proj, err := f.find(name, version)
	if err != nil {
		return nil, err
	}
	canon := pepmarker.CanonName(name)
	if proj.wheel {
		filename := fmt.Sprintf("%s-%s-py3-none-any.whl", canon, version.String())
		return []pkgdb.ArtifactRef{{Filename: filename, Hashes: map[string]string{"sha256": "deadbeef"}}}, nil
	}
	filename := fmt.Sprintf("%s-%s.tar.gz", canon, version.String())
	return []pkgdb.ArtifactRef{{Filename: filename, Hashes: map[string]string{"sha256": "deadbeef"}}}, nil
}

func (f *fakeDB) Metadata(ctx context.Context, name string, version *pepver.Version) (*pkgdb.CoreMetadata, error) {
	proj, err := f.find(name, version)
	if err != nil {
		return nil, err
	}
	md := &pkgdb.CoreMetadata{Name: pepmarker.CanonName(name), Version: version.String()}
	for _, raw := range proj.deps {
		req, err := pepmarker.ParseRequirement(raw)
		if err != nil {
			return nil, fmt.Errorf("fakeDB: %w", err)
		}
		md.Dependencies = append(md.Dependencies, req)
	}
	return md, nil
}

func (f *fakeDB) Yanked(ctx context.Context, name string, version *pepver.Version) (bool, string, error) {
	proj, err := f.find(name, version)
	if err != nil {
		return false, "", err
	}
	return proj.yanked, proj.yankedReason, nil
}

func (f *fakeDB) find(name string, version *pepver.Version) (fakeProject, error) {
	for _, p := range f.projects[pepmarker.CanonName(name)] {
		v, err := pepver.Parse(p.version)
		if err != nil {
			return fakeProject{}, err
		}
		if pepver.Compare(v, version) == 0 {
			return p, nil
		}
	}
	return fakeProject{}, fmt.Errorf("fakeDB: no version %s of %q", version, name)
}

func testTags() artifact.Preference {
	return artifact.Preference{{Python: "py3", ABI: "none", Platform: "any"}}
}

func reqs(t *testing.T, raws ...string) []*pepmarker.Requirement {
	t.Helper()
	var out []*pepmarker.Requirement
	for _, raw := range raws {
		req, err := pepmarker.ParseRequirement(raw)
		if err != nil {
			t.Fatalf("parsing requirement %q: %v", raw, err)
		}
		out = append(out, req)
	}
	return out
}

func TestResolveSimpleChain(t *testing.T) {
	db := newFakeDB()
	db.add("foo", fakeProject{version: "1.0", deps: []string{"bar>=1.0"}, wheel: true})
	db.add("bar", fakeProject{version: "1.0", wheel: true})

	r := New(db, pepmarker.DefaultEnv(), testTags())
	bp, err := r.Resolve(context.Background(), reqs(t, "foo"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(bp.Pins) != 2 {
		t.Fatalf("got %d pins, want 2: %+v", len(bp.Pins), bp.Pins)
	}
	if bp.Pins["foo"].Version.String() != "1.0" {
		t.Errorf("foo pinned to %s, want 1.0", bp.Pins["foo"].Version)
	}
	if bp.Pins["bar"].Version.String() != "1.0" {
		t.Errorf("bar pinned to %s, want 1.0", bp.Pins["bar"].Version)
	}
}

func TestResolveConflictingPins(t *testing.T) {
	db := newFakeDB()
	db.add("aaa-top", fakeProject{version: "1.0", deps: []string{"shared-lib==1.0"}, wheel: true})
	db.add("zzz-top", fakeProject{version: "1.0", deps: []string{"shared-lib==2.0"}, wheel: true})
	db.add("shared-lib",
		fakeProject{version: "2.0", wheel: true},
		fakeProject{version: "1.0", wheel: true},
	)

	r := New(db, pepmarker.DefaultEnv(), testTags())
	_, err := r.Resolve(context.Background(), reqs(t, "aaa-top", "zzz-top"))
	if err == nil {
		t.Fatal("Resolve succeeded, want a conflict")
	}
	ce, ok := err.(*ConflictError)
	if !ok {
		t.Fatalf("got error %v (%T), want *ConflictError", err, err)
	}
	if len(ce.Trace) == 0 {
		t.Error("ConflictError carries no derivation trace")
	}
}

func TestResolveAdmitsPrereleaseWhenNoStableExists(t *testing.T) {
	db := newFakeDB()
	db.add("onlypre", fakeProject{version: "2.0a1", wheel: true})

	r := New(db, pepmarker.DefaultEnv(), testTags())
	bp, err := r.Resolve(context.Background(), reqs(t, "onlypre"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := bp.Pins["onlypre"].Version.String(); got != "2.0a1" {
		t.Errorf("onlypre pinned to %s, want 2.0a1", got)
	}
}

func TestResolveRejectsPrereleaseWhenStableExists(t *testing.T) {
	db := newFakeDB()
	db.add("mixed", fakeProject{version: "2.0a1", wheel: true}, fakeProject{version: "1.0", wheel: true})

	r := New(db, pepmarker.DefaultEnv(), testTags())
	bp, err := r.Resolve(context.Background(), reqs(t, "mixed"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := bp.Pins["mixed"].Version.String(); got != "1.0" {
		t.Errorf("mixed pinned to %s, want the stable 1.0, not the pre-release", got)
	}
}

func TestResolveAllowlistedPrereleaseIsAdmitted(t *testing.T) {
	db := newFakeDB()
	db.add("mixed", fakeProject{version: "2.0a1", wheel: true}, fakeProject{version: "1.0", wheel: true})

	r := New(db, pepmarker.DefaultEnv(), testTags())
	r.PrereleaseAllowlist["mixed"] = true
	bp, err := r.Resolve(context.Background(), reqs(t, "mixed==2.0a1"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := bp.Pins["mixed"].Version.String(); got != "2.0a1" {
		t.Errorf("mixed pinned to %s, want 2.0a1", got)
	}
}

// TestResolveExtraActivatedAfterPin exercises activateExtra's "child
// already pinned" path: shared-lib is forced to resolve (via aaa-base's
// plain dependency) before zzz-activator's dependency on shared-lib[x] is
// ever discovered, since "a" sorts before "z" and pickNext is
// most-constrained-first with a lexicographic tie-break.
func TestResolveExtraActivatedAfterPin(t *testing.T) {
	db := newFakeDB()
	db.add("aaa-base", fakeProject{version: "1.0", deps: []string{"shared-lib==1.0"}, wheel: true})
	db.add("zzz-activator", fakeProject{version: "1.0", deps: []string{`shared-lib[x]==1.0`}, wheel: true})
	db.add("shared-lib", fakeProject{
		version: "1.0",
		deps:    []string{"core-dep==1.0", `extra-dep==1.0; extra == "x"`},
		wheel:   true,
	})
	db.add("core-dep", fakeProject{version: "1.0", wheel: true})
	db.add("extra-dep", fakeProject{version: "1.0", wheel: true})

	r := New(db, pepmarker.DefaultEnv(), testTags())
	bp, err := r.Resolve(context.Background(), reqs(t, "aaa-base", "zzz-activator"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, name := range []string{"shared-lib", "core-dep", "extra-dep"} {
		if _, ok := bp.Pins[name]; !ok {
			t.Errorf("blueprint missing pin for %s: %+v", name, bp.Pins)
		}
	}
}

func TestResolveExactPinAdmitsYankedVersion(t *testing.T) {
	db := newFakeDB()
	db.add("foo", fakeProject{version: "1.0", wheel: true, yanked: true, yankedReason: "broken build"})

	r := New(db, pepmarker.DefaultEnv(), testTags())
	bp, err := r.Resolve(context.Background(), reqs(t, "foo==1.0"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := bp.Pins["foo"].Version.String(); got != "1.0" {
		t.Errorf("foo pinned to %s, want the exactly-pinned yanked 1.0", got)
	}
}

func TestResolveRejectsYankedWhenNonYankedExists(t *testing.T) {
	db := newFakeDB()
	db.add("foo",
		fakeProject{version: "1.0", wheel: true, yanked: true, yankedReason: "broken build"},
		fakeProject{version: "0.9", wheel: true},
	)

	r := New(db, pepmarker.DefaultEnv(), testTags())
	bp, err := r.Resolve(context.Background(), reqs(t, "foo>=0.9"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := bp.Pins["foo"].Version.String(); got != "0.9" {
		t.Errorf("foo pinned to %s, want the non-yanked 0.9, not the yanked 1.0", got)
	}
}

func TestResolvePythonProjectVariable(t *testing.T) {
	db := newFakeDB()
	db.add("cpython", fakeProject{version: "3.11.4"})
	// cpython's artifacts must come back as .pybundle filenames, not
	// wheels, so BestMatch can actually run artifact.ParsePyBundleName.
	bundleDB := &pybundleDB{fakeDB: db, platform: "linux_x86_64"}

	r := New(bundleDB, pepmarker.DefaultEnv(), artifact.Preference{{Platform: "linux_x86_64"}})
	r.PythonProject = "cpython"

	bp, err := r.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	pin, ok := bp.Pins[PythonPackage]
	if !ok {
		t.Fatalf("blueprint has no %s pin: %+v", PythonPackage, bp.Pins)
	}
	if pin.Version.String() != "3.11.4" {
		t.Errorf("python pinned to %s, want 3.11.4", pin.Version)
	}
}

// pybundleDB wraps fakeDB so Artifacts returns a .pybundle filename for the
// interpreter project instead of a wheel/sdist, letting pickArtifact's
// ParsePyBundleName branch run.
type pybundleDB struct {
	*fakeDB
	platform string
}

func (p *pybundleDB) Artifacts(ctx context.Context, name string, version *pepver.Version) ([]pkgdb.ArtifactRef, error) {
	filename := fmt.Sprintf("%s-%s-%s.pybundle", pepmarker.CanonName(name), version.String(), p.platform)
	return []pkgdb.ArtifactRef{{Filename: filename, Hashes: map[string]string{"sha256": "deadbeef"}}}, nil
}

func init() {
	// Keep log output out of test runs; ParseCoreMetadata callers that
	// warn on malformed headers default to log.Default() otherwise.
	log.SetOutput(logDiscard{})
}

type logDiscard struct{}

func (logDiscard) Write(p []byte) (int, error) { return len(p), nil }
