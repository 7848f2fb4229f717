package pepver

import "testing"

func TestParseCanon(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1"},
		{"1.0", "1.0"},
		{"1.0.0", "1.0.0"},
		{"v1.0", "1.0"},
		{"1.0a1", "1.0a1"},
		{"1.0alpha1", "1.0a1"},
		{"1.0beta1", "1.0b1"},
		{"1.0c1", "1.0rc1"},
		{"1.0pre1", "1.0rc1"},
		{"1.0preview1", "1.0rc1"},
		{"1.0.post1", "1.0.post1"},
		{"1.0-1", "1.0.post1"},
		{"1.0.rev1", "1.0.post1"},
		{"1.0.r1", "1.0.post1"},
		{"1.0.dev1", "1.0.dev1"},
		{"1.0.dev", "1.0.dev0"},
		{"2!1.0", "2!1.0"},
		{"1.0+abc.1", "1.0+abc.1"},
		{"1.0+ABC", "1.0+abc"},
	}
	for _, tt := range tests {
		v, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if got := v.Canon(); got != tt.want {
			t.Errorf("Parse(%q).Canon() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	invalid := []string{
		"",
		" 1.0",
		"1.0 ",
		"abc",
		"1.0.dev1.*",
		"vv1.0",
	}
	for _, in := range invalid {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestCompareTotalOrder(t *testing.T) {
	// Ordered least to greatest. dev < pre < final < post, local absent < present.
	ordered := []string{
		"1.0.dev0",
		"1.0a1.dev0",
		"1.0a1",
		"1.0b1",
		"1.0rc1",
		"1.0",
		"1.0+local",
		"1.0+local.2",
		"1.0+local2",
		"1.0.post1.dev0",
		"1.0.post1",
		"1.0.post2",
		"1!1.0",
	}
	var parsed []*Version
	for _, s := range ordered {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		parsed = append(parsed, v)
	}
	for i := 0; i < len(parsed); i++ {
		for j := 0; j < len(parsed); j++ {
			got := Compare(parsed[i], parsed[j])
			want := signInt(i, j)
			if (got < 0) != (want < 0) || (got > 0) != (want > 0) {
				t.Errorf("Compare(%q, %q) = %d, want sign %d", ordered[i], ordered[j], got, want)
			}
		}
	}
}

func TestCompareEpoch(t *testing.T) {
	a, _ := Parse("1!1.0")
	b, _ := Parse("2.0")
	if Compare(a, b) <= 0 {
		t.Errorf("expected epoch 1 version to outrank epoch 0 version regardless of release")
	}
}

func TestLocalOrdering(t *testing.T) {
	// Numeric segments sort below string segments; longer local beats a
	// shorter one sharing the same prefix.
	tests := []string{
		"1.0+1",
		"1.0+1.2",
		"1.0+a",
		"1.0+a.1",
		"1.0+b",
	}
	var parsed []*Version
	for _, s := range tests {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		parsed = append(parsed, v)
	}
	for i := 1; i < len(parsed); i++ {
		if Compare(parsed[i-1], parsed[i]) >= 0 {
			t.Errorf("expected %q < %q", tests[i-1], tests[i])
		}
	}
}

func TestNormalizationIdempotence(t *testing.T) {
	inputs := []string{"1.0.0", "v2.3", "1.0a1", "3!1.0.dev2", "1.0+local.1"}
	for _, in := range inputs {
		v, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		canon := v.Canon()
		v2, err := Parse(canon)
		if err != nil {
			t.Fatalf("Parse(Canon(%q)=%q): %v", in, canon, err)
		}
		if v2.Canon() != canon {
			t.Errorf("Parse(format(v)) != v for %q: got %q, want %q", in, v2.Canon(), canon)
		}
	}
}
