package change

import (
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/veillebot/store"
)

func TestUITweakNoAlert(t *testing.T) {
	old := "The quick brown fox jumps over the lazy dog"
	updated := "The quick brown fox leaps over the lazy dog"
	m := Compute(old, updated, "article", "article")

	// 7 shared words out of 9 distinct words: 7/9 ≈ 0.78.
	if m.Jaccard < 0.77 || m.Jaccard > 0.78 {
		t.Fatalf("jaccard = %.2f, want ~0.78", m.Jaccard)
	}
	// 8 of 9 tokens match in order on each side: 2*8/18 ≈ 0.89.
	if m.LevenshteinRatio < 0.85 {
		t.Fatalf("levenshtein_ratio = %.2f, want ~0.89", m.LevenshteinRatio)
	}
	if m.Final < 0.85 {
		t.Fatalf("final = %.2f, want >= 0.85", m.Final)
	}

	alert, _ := Classify(m.Final, 0.85)
	if alert {
		t.Fatal("expected no alert for a minor wording tweak above threshold")
	}
}

func TestMajorOverhaulAlert(t *testing.T) {
	old := "Original article about technology trends"
	new := "Completely different article about cooking recipes"
	m := Compute(old, new, "article", "main")

	alert, changeType := Classify(m.Final, 0.85)
	if !alert {
		t.Fatal("expected an alert for a major overhaul")
	}
	if m.Final >= ThresholdContentUpdate {
		t.Fatalf("final = %.2f, want < %.2f for MAJOR_OVERHAUL", m.Final, ThresholdContentUpdate)
	}
	if changeType != "MAJOR_OVERHAUL" {
		t.Fatalf("changeType = %q, want MAJOR_OVERHAUL", changeType)
	}
}

func TestClassifyBoundaryInclusiveLowerSide(t *testing.T) {
	if alert, _ := Classify(0.85, 0.85); alert {
		t.Fatal("final == threshold must not alert (inclusive lower side)")
	}
	if _, ct := Classify(ThresholdUITweak, 0.85); ct != "UI_TWEAK" {
		t.Fatalf("final at exactly 0.70 should classify UI_TWEAK, got %q", ct)
	}
	if _, ct := Classify(ThresholdContentUpdate, 0.85); ct != "CONTENT_UPDATE" {
		t.Fatalf("final at exactly 0.30 should classify CONTENT_UPDATE, got %q", ct)
	}
}

func TestSafeDiffUntruncatedForSmallDiff(t *testing.T) {
	old := strings.Repeat("a", 10)
	updated := strings.Repeat("a", 9) + "b"
	diff, truncated := SafeDiff(old, updated)
	if truncated {
		t.Fatalf("small diff should not truncate, got len=%d", len(diff))
	}
}

func TestSafeDiffTruncatesOverLimit(t *testing.T) {
	var oldLines, newLines []string
	for i := 0; i < 200; i++ {
		oldLines = append(oldLines, strings.Repeat("x", 40))
		newLines = append(newLines, strings.Repeat("y", 40))
	}
	old := strings.Join(oldLines, "\n")
	updated := strings.Join(newLines, "\n")

	diff, truncated := SafeDiff(old, updated)
	if !truncated {
		t.Fatal("expected a large diff to be truncated")
	}
	if !strings.Contains(diff, "truncated") {
		t.Fatal("expected truncation warning in output")
	}
}

func TestForensicSnapshotRoundTrip(t *testing.T) {
	old := "Original article about technology trends"
	new := "Completely different article about cooking recipes"
	m := Compute(old, new, "article", "main")

	snap, err := BuildSnapshot(old, new, store.ChangeMajorOverhaul, m, "summary", false, time.Now())
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}

	result, err := Replay(snap, "article", "main", 0.85)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if result.ChangeType != "MAJOR_OVERHAUL" {
		t.Fatalf("replay changeType = %q, want MAJOR_OVERHAUL", result.ChangeType)
	}
}

func TestCompressAndEncodeAcceptsEmptyContent(t *testing.T) {
	// Forensic snapshots are only ever built from two successful
	// (non-block-page) fetches, and the change package has no block-page
	// gate of its own; this test checks that the encoding step BuildSnapshot
	// uses accepts empty content without error.
	_, err := CompressAndEncode("")
	if err != nil {
		t.Fatalf("CompressAndEncode empty string: %v", err)
	}
}
