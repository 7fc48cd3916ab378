package merge

import (
	"strings"
	"testing"

	"github.com/snapline/snapline/ref"
)

func TestClassifyTable(t *testing.T) {
	tests := []struct {
		ours, theirs string
		action       policyAction
		to           string
	}{
		// version vs version
		{"1.2.3", "1.3.0", actionConflict, ""},
		{"1.3.0", "1.3.0", actionNone, ""},
		{"1.3.0", "1.2.3", actionNone, ""},
		// range vs range
		{"^1.2.0", "^1.3.0", actionUpdate, "^1.3.0"},
		{"^1.3.0", "^1.2.0", actionNone, ""},
		// range vs version, inside the range
		{"^1.2.0", "1.3.0", actionUpdate, "^1.3.0"},
		{"~1.2.0", "1.2.5", actionUpdate, "~1.2.5"},
		// range vs version, below the range minimum
		{"^2.0.0", "1.3.0", actionConflict, ""},
		// version vs range, version inside the range
		{"1.3.0", "^1.2.0", actionUpdate, "1.2.0"},
		// version vs range, range entirely above
		{"1.0.0", "^2.0.0", actionNone, ""},
		// snap hashes are skipped
		{strings.Repeat("a", 40), "1.0.0", actionSkip, ""},
		{"1.0.0", strings.Repeat("a", 40), actionSkip, ""},
	}
	for _, tc := range tests {
		action, to := classify(tc.ours, tc.theirs)
		if action != tc.action || to != tc.to {
			t.Errorf("classify(%q, %q) = (%v, %q), want (%v, %q)",
				tc.ours, tc.theirs, action, to, tc.action, tc.to)
		}
	}
}

func TestRangeMin(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"^1.2.0", "1.2.0"},
		{">=1.2.0 <2.0.0", "1.2.0"},
		{"~2.3.4", "2.3.4"},
	}
	for _, tc := range tests {
		got := rangeMin(tc.in)
		if got == nil || got.String() != tc.want {
			t.Errorf("rangeMin(%q) = %v, want %s", tc.in, got, tc.want)
		}
	}
	if rangeMin("not a range") != nil {
		t.Error("a range with no versions has no minimum")
	}
}

func TestMergePolicyAutoUpdate(t *testing.T) {
	ws := &WorkspacePolicy{Dependencies: map[string]string{"left-pad": "1.0.0"}}
	results := []*ComponentPolicyResult{
		{ID: ref.ComponentID{Scope: "acme", Name: "a"}, Auto: map[string]string{"left-pad": "1.1.0"}},
		{ID: ref.ComponentID{Scope: "acme", Name: "b"}, Auto: map[string]string{"left-pad": "1.1.0"}},
	}
	outcome := MergePolicy(ws, results)
	upd, ok := outcome.Updates["left-pad"]
	if !ok || upd.From != "1.0.0" || upd.To != "1.1.0" {
		t.Fatalf("updates = %+v", outcome.Updates)
	}
	if len(outcome.Conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %+v", outcome.Conflicts)
	}
}

func TestMergePolicyDisagreeingAutosDoNothing(t *testing.T) {
	ws := &WorkspacePolicy{Dependencies: map[string]string{"left-pad": "1.0.0"}}
	results := []*ComponentPolicyResult{
		{Auto: map[string]string{"left-pad": "1.1.0"}},
		{Auto: map[string]string{"left-pad": "1.2.0"}},
	}
	outcome := MergePolicy(ws, results)
	if len(outcome.Updates) != 0 {
		t.Fatalf("two distinct auto versions must not schedule an update: %+v", outcome.Updates)
	}
}

// The compatible promotion path: a per component conflict whose incoming
// side satisfies the workspace range dissolves, updating the range.
func TestMergePolicyCompatibleConflictPromotion(t *testing.T) {
	ws := &WorkspacePolicy{Dependencies: map[string]string{"left-pad": "^1.2.0"}}
	compResult := &ComponentPolicyResult{
		ID:        ref.ComponentID{Scope: "acme", Name: "a"},
		Conflicts: map[string]ConflictTuple{"left-pad": {Ours: "1.2.3", Theirs: "1.3.0"}},
	}
	outcome := MergePolicy(ws, []*ComponentPolicyResult{compResult})

	if len(outcome.Conflicts) != 0 {
		t.Fatalf("1.3.0 satisfies ^1.2.0, no workspace conflict expected: %+v", outcome.Conflicts)
	}
	upd, ok := outcome.Updates["left-pad"]
	if !ok || upd.To != "^1.3.0" {
		t.Fatalf("expected the workspace policy to move to ^1.3.0: %+v", outcome.Updates)
	}
	if len(compResult.Conflicts) != 0 {
		t.Fatal("the per component conflict must be cleared once promoted")
	}
}

func TestMergePolicyIncompatibleConflictPromotion(t *testing.T) {
	ws := &WorkspacePolicy{Dependencies: map[string]string{"left-pad": "^2.0.0"}}
	compResult := &ComponentPolicyResult{
		Conflicts: map[string]ConflictTuple{"left-pad": {Ours: "2.1.0", Theirs: "1.3.0"}},
	}
	outcome := MergePolicy(ws, []*ComponentPolicyResult{compResult})

	conflict, ok := outcome.Conflicts["left-pad"]
	if !ok || conflict.Ours != "^2.0.0" || conflict.Theirs != "1.3.0" {
		t.Fatalf("expected a workspace level conflict: %+v", outcome.Conflicts)
	}
	if len(compResult.Conflicts) != 0 {
		t.Fatal("promotion clears the per component conflict either way")
	}
}

func TestMergePolicyIgnoresUnknownPackages(t *testing.T) {
	ws := &WorkspacePolicy{Dependencies: map[string]string{"left-pad": "1.0.0"}}
	outcome := MergePolicy(ws, []*ComponentPolicyResult{
		{Auto: map[string]string{"right-pad": "3.0.0"}},
	})
	if len(outcome.Updates) != 0 || len(outcome.Conflicts) != 0 {
		t.Fatalf("packages outside the policy must be ignored: %+v", outcome)
	}
}

func TestApplyUpdates(t *testing.T) {
	ws := &WorkspacePolicy{
		Dependencies:     map[string]string{"left-pad": "^1.2.0"},
		PeerDependencies: map[string]string{"react": "^17.0.0"},
	}
	ws.Apply(&PolicyOutcome{Updates: map[string]PolicyUpdate{
		"left-pad": {From: "^1.2.0", To: "^1.3.0"},
		"react":    {From: "^17.0.0", To: "^18.0.0"},
	}})
	if ws.Dependencies["left-pad"] != "^1.3.0" || ws.PeerDependencies["react"] != "^18.0.0" {
		t.Fatalf("apply missed a field: %+v", ws)
	}
}

func TestEncodeConflict(t *testing.T) {
	if got := EncodeConflict("^1.0.0", "2.0.0"); got != "CONFLICT::^1.0.0::2.0.0" {
		t.Fatalf("encoding = %q", got)
	}
}
