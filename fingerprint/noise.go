package fingerprint

import (
	"regexp"
	"strings"
)

var (
	dateLiteralRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	sessionIDRe   = regexp.MustCompile(`Session ID:\s*\w+`)
	lastUpdatedRe = regexp.MustCompile(`(?m)Last updated:.*$`)
	adOnlyLineRe  = regexp.MustCompile(`(?m)^.*(Advertisement|Cookie notice).*$`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// filterNoise applies the fixed cleanup pipeline in order: strip date
// literals, session ids, "Last updated" trailers, every line containing
// "Advertisement" or "Cookie notice", then collapse whitespace.
func filterNoise(text string) string {
	text = dateLiteralRe.ReplaceAllString(text, "")
	text = sessionIDRe.ReplaceAllString(text, "")
	text = lastUpdatedRe.ReplaceAllString(text, "")
	text = adOnlyLineRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
