package artifact

import "testing"

func TestParseWheelName(t *testing.T) {
	n, err := ParseWheelName("trio-0.18.0-py3-none-any.whl")
	if err != nil {
		t.Fatal(err)
	}
	if n.Distribution != "trio" {
		t.Errorf("Distribution = %q, want trio", n.Distribution)
	}
	if n.Version.Canon() != "0.18.0" {
		t.Errorf("Version = %q, want 0.18.0", n.Version.Canon())
	}
	if n.Build.Present {
		t.Error("expected no build tag")
	}
	want := []Tag{{"py3", "none", "any"}}
	if len(n.Tags) != 1 || n.Tags[0] != want[0] {
		t.Errorf("Tags = %v, want %v", n.Tags, want)
	}
}

func TestParseWheelNameCompressedTagsAndBuild(t *testing.T) {
	n, err := ParseWheelName("foo.bar-0.1b3-1local-py2.py3-none-any.whl")
	if err != nil {
		t.Fatal(err)
	}
	if n.Distribution != "foo-bar" {
		t.Errorf("Distribution = %q, want foo-bar", n.Distribution)
	}
	if n.Version.Canon() != "0.1b3" {
		t.Errorf("Version = %q, want 0.1b3", n.Version.Canon())
	}
	if !n.Build.Present || n.Build.Num != 1 || n.Build.Name != "local" {
		t.Errorf("Build = %+v, want {true 1 local}", n.Build)
	}
	want := []Tag{
		{"py2", "none", "any"},
		{"py3", "none", "any"},
	}
	if len(n.Tags) != len(want) {
		t.Fatalf("Tags = %v, want %v", n.Tags, want)
	}
	for i := range want {
		if n.Tags[i] != want[i] {
			t.Errorf("Tags[%d] = %v, want %v", i, n.Tags[i], want[i])
		}
	}
}

func TestParseWheelNameInvalid(t *testing.T) {
	invalid := []string{
		"notawheel.tar.gz",
		"foo-1.0-py3-none.whl",
		"foo-py3-none-any.whl",
	}
	for _, s := range invalid {
		if _, err := ParseWheelName(s); err == nil {
			t.Errorf("ParseWheelName(%q) succeeded, want error", s)
		}
	}
}

func TestParseSdistName(t *testing.T) {
	n, err := ParseSdistName("requests", "requests-2.31.0.tar.gz")
	if err != nil {
		t.Fatal(err)
	}
	if n.Distribution != "requests" || n.Version.Canon() != "2.31.0" {
		t.Errorf("got (%q, %q), want (requests, 2.31.0)", n.Distribution, n.Version.Canon())
	}
}

func TestParseSdistNameDashInName(t *testing.T) {
	n, err := ParseSdistName("scikit-learn", "scikit-learn-1.3.0.tar.gz")
	if err != nil {
		t.Fatal(err)
	}
	if n.Distribution != "scikit-learn" || n.Version.Canon() != "1.3.0" {
		t.Errorf("got (%q, %q), want (scikit-learn, 1.3.0)", n.Distribution, n.Version.Canon())
	}
}

func TestParseSdistNameMismatch(t *testing.T) {
	if _, err := ParseSdistName("other", "requests-2.31.0.tar.gz"); err == nil {
		t.Error("expected a name mismatch to fail parsing")
	}
}

func TestParsePyBundleName(t *testing.T) {
	n, err := ParsePyBundleName("cpython-3.12.4-PLATFORM.pybundle")
	if err != nil {
		t.Fatal(err)
	}
	if n.Kind != KindPyBundle {
		t.Errorf("Kind = %v, want KindPyBundle", n.Kind)
	}
	if len(n.Tags) != 1 || n.Tags[0].Platform != "PLATFORM" {
		t.Errorf("Tags = %v, want a single PLATFORM tag", n.Tags)
	}
}

func TestBuildTagCompare(t *testing.T) {
	none := BuildTag{}
	one := BuildTag{Present: true, Num: 1}
	oneLocal := BuildTag{Present: true, Num: 1, Name: "local"}
	two := BuildTag{Present: true, Num: 2}
	if none.Compare(one) >= 0 {
		t.Error("expected absent build tag to sort before any present one")
	}
	if one.Compare(oneLocal) >= 0 {
		t.Error("expected empty name to sort before a non-empty name at the same number")
	}
	if one.Compare(two) >= 0 {
		t.Error("expected build 1 to sort before build 2")
	}
}
