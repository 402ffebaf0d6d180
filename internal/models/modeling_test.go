package models

import "testing"

func TestProgressStatus(t *testing.T) {
	cases := []struct {
		p    Progress
		want string
	}{
		{Progress{}, "0 of 0"},
		{Progress{Current: 3, Total: 12}, "3 of 12"},
		{Progress{Current: 120, Total: 120}, "120 of 120"},
	}
	for _, tc := range cases {
		if got := tc.p.Status(); got != tc.want {
			t.Errorf("Status() = %q; want %q", got, tc.want)
		}
	}
}

func TestRunKindPolicies(t *testing.T) {
	for _, k := range []RunKind{RunBase, RunRefinement, RunCheck, RunTimeChange, RunHysteresis, RunBoost, RunBatch} {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
		if k.FileSuffix() == "" {
			t.Errorf("%s has no result file suffix", k)
		}
	}
	if RunKind("All").Valid() {
		t.Error("unknown kind accepted")
	}
	if !RunBase.CommitsPerPoint() || RunBoost.CommitsPerPoint() || RunCheck.CommitsPerPoint() {
		t.Error("only Base and Refinement commit per point")
	}
	if !RunBoost.UpdatesModel() || RunCheck.UpdatesModel() {
		t.Error("Boost saves the model, Check does not")
	}
}
