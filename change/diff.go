package change

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// MaxDiffLength is the untruncated ceiling for a safe diff; above this the
// diff is cut to TruncatedDiffLength and a summary line is appended.
const MaxDiffLength = 3000

// TruncatedDiffLength is how much of the diff survives truncation.
const TruncatedDiffLength = 2800

// SafeDiff produces a unified line diff of old vs new text in markdown
// (+/-). Diffs at or under MaxDiffLength are returned untruncated;
// otherwise the output is cut to TruncatedDiffLength characters with a
// warning and a one-line change summary appended.
func SafeDiff(oldText, newText string) (diff string, truncated bool) {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: "old",
		ToFile:   "new",
		Context:  3,
	}
	full, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		full = ""
	}

	if len(full) <= MaxDiffLength {
		return full, false
	}

	summary := summarize(full)
	head := full
	if len(head) > TruncatedDiffLength {
		head = head[:TruncatedDiffLength]
	}
	out := fmt.Sprintf("%s\n\n... [truncated, full diff was %d characters]\n%s\n", head, len(full), summary)
	return out, true
}

// summarize reports a one-line change summary based on the added/removed
// line-count delta. Ties (equal added and removed counts) report the
// modification count instead of a direction.
func summarize(unifiedDiff string) string {
	added, removed := 0, 0
	for _, line := range strings.Split(unifiedDiff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			continue
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}

	delta := added - removed
	switch {
	case delta > 0:
		return fmt.Sprintf("+%d lines added", delta)
	case delta < 0:
		return fmt.Sprintf("%d lines removed", -delta)
	default:
		return fmt.Sprintf("%d lines modified", added)
	}
}
