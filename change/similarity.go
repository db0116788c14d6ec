// Package change implements the Change Detector: similarity metrics,
// classification, safe-diff generation, and forensic snapshots.
package change

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Weights for the consolidated final score (§9(c): final alone drives the
// decision; jaccard and levenshtein_ratio are inputs, never independent
// gates).
const (
	WeightJaccard    = 0.4
	WeightLevenshtein = 0.4
	WeightSemantic   = 0.2
)

// Classification thresholds, exposed as constants per §9(b).
const (
	ThresholdUITweak       = 0.70
	ThresholdContentUpdate = 0.30
)

// Metrics holds the three similarity components and their weighted final
// score.
type Metrics struct {
	Jaccard           float64
	LevenshteinRatio  float64
	Semantic          float64
	Final             float64
}

// Compute produces the similarity metrics between old and new
// noise-filtered text, and the structure signatures used for the semantic
// component.
func Compute(oldText, newText, oldSignature, newSignature string) Metrics {
	m := Metrics{
		Jaccard:          jaccard(oldText, newText),
		LevenshteinRatio: levenshteinRatio(oldText, newText),
		Semantic:         semanticAgreement(oldSignature, newSignature),
	}
	m.Final = WeightJaccard*m.Jaccard + WeightLevenshtein*m.LevenshteinRatio + WeightSemantic*m.Semantic
	return m
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// jaccard is |old ∩ new| / |old ∪ new| over lowercased whitespace-split
// tokens.
func jaccard(oldText, newText string) float64 {
	oldSet := toSet(tokenize(oldText))
	newSet := toSet(tokenize(newText))
	if len(oldSet) == 0 && len(newSet) == 0 {
		return 1.0
	}

	intersection := 0
	for tok := range oldSet {
		if newSet[tok] {
			intersection++
		}
	}
	union := len(oldSet) + len(newSet) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// levenshteinRatio is the normalized LCS-based ratio accepted in place of
// raw edit distance: 2*matches / (len(old)+len(new)), the same formula
// Python's difflib.SequenceMatcher.ratio() uses. go-difflib's Matcher
// implements that algorithm over token sequences.
func levenshteinRatio(oldText, newText string) float64 {
	oldTokens := tokenize(oldText)
	newTokens := tokenize(newText)
	if len(oldTokens) == 0 && len(newTokens) == 0 {
		return 1.0
	}
	matcher := difflib.NewMatcher(oldTokens, newTokens)
	return matcher.Ratio()
}

// semanticAgreement compares the ">"-separated dominant-container tokens
// of two structure signatures as a set, in [0,1].
func semanticAgreement(oldSig, newSig string) float64 {
	oldSet := toSet(strings.Split(oldSig, ">"))
	newSet := toSet(strings.Split(newSig, ">"))
	delete(oldSet, "")
	delete(newSet, "")
	if len(oldSet) == 0 && len(newSet) == 0 {
		return 1.0
	}

	intersection := 0
	for tok := range oldSet {
		if newSet[tok] {
			intersection++
		}
	}
	union := len(oldSet) + len(newSet) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

// Classify applies the decision rule: no alert if final ≥ threshold,
// otherwise bands the result. Boundaries are inclusive on the lower side.
func Classify(final, threshold float64) (alert bool, changeType string) {
	if final >= threshold {
		return false, ""
	}
	switch {
	case final >= ThresholdUITweak:
		return true, "UI_TWEAK"
	case final >= ThresholdContentUpdate:
		return true, "CONTENT_UPDATE"
	default:
		return true, "MAJOR_OVERHAUL"
	}
}
