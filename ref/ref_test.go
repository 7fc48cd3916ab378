package ref

import (
	"strings"
	"testing"
)

func TestComputeAndParse(t *testing.T) {
	r := Compute([]byte("some record bytes\n"))
	if !r.IsValid() {
		t.Fatalf("computed ref %q is not valid", r)
	}
	parsed, err := Parse(r.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != r {
		t.Fatalf("parse round trip changed the ref: %s != %s", parsed, r)
	}
}

func TestParseRejectsBadHashes(t *testing.T) {
	bad := []string{
		"",
		"abc",
		strings.Repeat("g", 40),
		strings.Repeat("A", 40),
		strings.Repeat("a", 39),
		strings.Repeat("a", 41),
	}
	for _, s := range bad {
		if _, err := Parse(s); err == nil {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}

func TestShort(t *testing.T) {
	r := Ref(strings.Repeat("ab", 20))
	if got := r.Short(); got != "ababababa" {
		t.Fatalf("short form = %q", got)
	}
	if got := Ref("abc").Short(); got != "abc" {
		t.Fatalf("short of short ref = %q", got)
	}
}

func TestParseComponentID(t *testing.T) {
	tests := []struct {
		in      string
		scope   string
		name    string
		version string
		wantErr bool
	}{
		{in: "acme/button", scope: "acme", name: "button"},
		{in: "acme/ui/button", scope: "acme", name: "ui/button"},
		{in: "acme/button@1.0.1", scope: "acme", name: "button", version: "1.0.1"},
		{in: "button", wantErr: true},
		{in: "/button", wantErr: true},
		{in: "acme/", wantErr: true},
	}
	for _, tc := range tests {
		id, err := ParseComponentID(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("expected %q to be rejected", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.in, err)
			continue
		}
		if id.Scope != tc.scope || id.Name != tc.name || id.Version != tc.version {
			t.Errorf("%q parsed to %+v", tc.in, id)
		}
		if id.String() != tc.in {
			t.Errorf("%q did not round trip, got %q", tc.in, id.String())
		}
	}
}

func TestSameWithoutVersion(t *testing.T) {
	a := ComponentID{Scope: "acme", Name: "button", Version: "1.0.0"}
	b := ComponentID{Scope: "acme", Name: "button", Version: "2.0.0"}
	c := ComponentID{Scope: "acme", Name: "card"}
	if !a.SameWithoutVersion(b) {
		t.Error("same component with different versions should match")
	}
	if a.SameWithoutVersion(c) {
		t.Error("different components should not match")
	}
	if got := a.WithoutVersion().String(); got != "acme/button" {
		t.Errorf("WithoutVersion = %q", got)
	}
}
