package store

import "testing"

func TestResolvedConfigFallsBackFieldByField(t *testing.T) {
	defaults := UserDefaults{SimilarityThreshold: 0.85, CheckIntervalSeconds: 300, IncludeDiff: true, CustomSelector: ""}
	m := &Monitor{}

	got := m.ResolvedConfig(defaults)
	if got != defaults {
		t.Fatalf("ResolvedConfig with no override = %+v, want defaults %+v", got, defaults)
	}
}

func TestResolvedConfigOverridesOnlyExplicitlySetFields(t *testing.T) {
	defaults := UserDefaults{SimilarityThreshold: 0.85, CheckIntervalSeconds: 300, IncludeDiff: true, CustomSelector: ""}
	m := &Monitor{Config: &UserDefaults{CheckIntervalSeconds: 60}}

	got := m.ResolvedConfig(defaults)
	if got.CheckIntervalSeconds != 60 {
		t.Fatalf("CheckIntervalSeconds = %d, want monitor override 60", got.CheckIntervalSeconds)
	}
	if got.SimilarityThreshold != defaults.SimilarityThreshold {
		t.Fatalf("SimilarityThreshold = %v, want unchanged default %v", got.SimilarityThreshold, defaults.SimilarityThreshold)
	}
	if !got.IncludeDiff {
		t.Fatal("IncludeDiff should still fall back to the user default when the monitor never set it")
	}
}

func TestResolvedConfigHonorsExplicitIncludeDiffFalse(t *testing.T) {
	defaults := UserDefaults{IncludeDiff: true}
	m := &Monitor{Config: &UserDefaults{IncludeDiff: false, IncludeDiffSet: true}}

	got := m.ResolvedConfig(defaults)
	if got.IncludeDiff {
		t.Fatal("expected an explicit monitor-level IncludeDiff=false to override the user default of true")
	}
}
