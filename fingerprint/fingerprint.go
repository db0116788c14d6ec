// Package fingerprint implements the HTML → weighted fingerprint pipeline:
// block-page detection, structure-aware weighted extraction, noise
// filtering, and algorithm versioning.
package fingerprint

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/net/html"

	"github.com/hazyhaar/veillebot/store"
)

// CurrentVersion is the algorithm version tag stamped into every
// fingerprint this build produces. Bump it whenever extraction, noise
// filtering, or weighting changes — the next load for every monitor whose
// stored version differs triggers a silent baseline reset.
const CurrentVersion = "v2.0"

// ErrBlockPage is returned when DetectBlockPage short-circuits the
// pipeline. No fingerprint is produced and no baseline is updated.
type ErrBlockPage struct{}

func (ErrBlockPage) Error() string { return "fingerprint: block page detected" }

// Compute runs the full pipeline over rawHTML: block-page detection,
// structure-aware extraction (optionally scoped to customSelector), noise
// filtering, and hashing. Returns ErrBlockPage when the content is a block
// page rather than a fingerprint.
func Compute(rawHTML string, customSelector string) (*store.WeightedFingerprint, error) {
	if bp := DetectBlockPage(rawHTML); bp.Blocked {
		return nil, ErrBlockPage{}
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	roots := []*html.Node{doc}
	if customSelector != "" {
		if matched := selectSubtrees(doc, customSelector); len(matched) > 0 {
			roots = matched
		}
		// No match: fall back to the whole document.
	}

	regions := extractRegions(roots)
	weights := contentWeights(regions)
	signature := structureSignature(weights)
	filtered := filterNoise(weightedText(regions))

	sum := blake2b.Sum256([]byte(filtered))

	return &store.WeightedFingerprint{
		Hash:               hex.EncodeToString(sum[:]),
		Version:            CurrentVersion,
		ContentWeights:     weights,
		StructureSignature: signature,
		ContentText:        filtered,
		RawHTML:            rawHTML,
	}, nil
}

// NeedsBaselineReset reports whether a previously stored fingerprint was
// produced by a different algorithm version and must be silently replaced
// without emitting a change notification.
func NeedsBaselineReset(existing *store.WeightedFingerprint) bool {
	return existing != nil && existing.Version != CurrentVersion
}
