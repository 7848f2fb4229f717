package pepmarker

import "testing"

func TestParseMarkerAndEval(t *testing.T) {
	env := DefaultEnv()
	tests := []struct {
		expr string
		want bool
	}{
		{`python_version >= "3.7"`, true},
		{`python_version >= "4.0"`, false},
		{`sys_platform == "linux"`, true},
		{`sys_platform == "win32"`, false},
		{`sys_platform == "win32" or python_version >= "3.7"`, true},
		{`sys_platform == "linux" and python_version >= "3.7"`, true},
		{`sys_platform == "linux" and python_version >= "4.0"`, false},
		{`(sys_platform == "win32" or sys_platform == "linux") and implementation_name == "cpython"`, true},
		{`python_version ~= "3.12"`, true},
		{`python_version ~= "3.13"`, false},
	}
	for _, tt := range tests {
		m, err := ParseMarker(tt.expr)
		if err != nil {
			t.Errorf("ParseMarker(%q): %v", tt.expr, err)
			continue
		}
		got, err := m.Eval(env, "")
		if err != nil {
			t.Errorf("Eval(%q): %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestExtraEval(t *testing.T) {
	m, err := ParseMarker(`extra == "socks"`)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Eval(DefaultEnv(), "socks"); !got {
		t.Error("expected extra == \"socks\" to match when expanding the socks extra")
	}
	if got, _ := m.Eval(DefaultEnv(), "test"); got {
		t.Error("expected extra == \"socks\" not to match when expanding a different extra")
	}
	if got, _ := m.Eval(DefaultEnv(), ""); got {
		t.Error("expected extra == \"socks\" not to match when no extra is being expanded")
	}
}

func TestUnsupportedMarkerVariable(t *testing.T) {
	m, err := ParseMarker(`platform_version == "10"`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Eval(DefaultEnv(), ""); err == nil {
		t.Error("expected evaluating platform_version to fail")
	} else if _, ok := err.(*UnsupportedMarkerError); !ok {
		t.Errorf("expected *UnsupportedMarkerError, got %T", err)
	}
}

func TestExtraOnlyAllowsEquality(t *testing.T) {
	if _, err := ParseMarker(`extra != "socks"`); err == nil {
		t.Error("expected extra != \"...\" to be rejected")
	}
}

func TestMarkerParseErrors(t *testing.T) {
	invalid := []string{
		"",
		`python_version`,
		`python_version >=`,
		`python_version >= "3.7" and`,
		`(python_version >= "3.7"`,
		`nonsense_var == "x"`,
	}
	for _, s := range invalid {
		if _, err := ParseMarker(s); err == nil {
			t.Errorf("ParseMarker(%q) succeeded, want error", s)
		}
	}
}
