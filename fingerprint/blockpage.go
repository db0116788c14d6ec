package fingerprint

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var blockSubstrings = []string{
	"cloudflare",
	"ddos-guard",
	"captcha",
	"bot detection",
	"access denied",
	"blocked",
	"security check",
	"ray id",
	"cf-ray",
	"please verify you are human",
}

var titleBlockSubstrings = []string{
	"access denied",
	"blocked",
	"security check",
	"captcha",
}

// MinVisibleTextLength is the floor below which a page is treated as a
// block page regardless of substring matches.
const MinVisibleTextLength = 100

var stripTagsPolicy = bluemonday.StrictPolicy()

// BlockPageResult reports the outcome of block-page detection.
type BlockPageResult struct {
	Blocked    bool
	VisibleLen int
}

// DetectBlockPage runs before fingerprinting and short-circuits the
// pipeline on a positive match: case-insensitive substring scan, a visible
// text length floor, and a title-specific check.
func DetectBlockPage(rawHTML string) BlockPageResult {
	visible := strings.TrimSpace(stripTagsPolicy.Sanitize(rawHTML))
	lowerVisible := strings.ToLower(visible)
	lowerHTML := strings.ToLower(rawHTML)

	for _, s := range blockSubstrings {
		if strings.Contains(lowerHTML, s) || strings.Contains(lowerVisible, s) {
			return BlockPageResult{Blocked: true, VisibleLen: len(visible)}
		}
	}

	if len(visible) < MinVisibleTextLength {
		return BlockPageResult{Blocked: true, VisibleLen: len(visible)}
	}

	if title := extractTitle(rawHTML); title != "" {
		lowerTitle := strings.ToLower(title)
		for _, s := range titleBlockSubstrings {
			if strings.Contains(lowerTitle, s) {
				return BlockPageResult{Blocked: true, VisibleLen: len(visible)}
			}
		}
	}

	return BlockPageResult{Blocked: false, VisibleLen: len(visible)}
}

func extractTitle(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = n.FirstChild.Data
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}
