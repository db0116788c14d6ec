package fingerprint

import (
	"strings"

	"golang.org/x/net/html"
)

// selectSubtrees resolves a simple CSS-like selector (tag, .class, #id, or
// tag.class — a single compound, no combinators) against the document and
// returns the matching element nodes in document order. An empty selector,
// or one that matches nothing, yields nil so the caller can fall back to
// the whole document.
func selectSubtrees(doc *html.Node, selector string) []*html.Node {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil
	}

	wantTag, wantClass, wantID := parseSelector(selector)

	var matches []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && nodeMatches(n, wantTag, wantClass, wantID) {
			matches = append(matches, n)
			return // do not descend into an already-matched subtree
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return matches
}

func parseSelector(selector string) (tag, class, id string) {
	rest := selector
	if i := strings.Index(rest, "#"); i >= 0 {
		id = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.Index(rest, "."); i >= 0 {
		class = rest[i+1:]
		rest = rest[:i]
	}
	tag = rest
	return
}

func nodeMatches(n *html.Node, tag, class, id string) bool {
	if tag != "" && n.Data != tag {
		return false
	}
	if id != "" {
		v, ok := attr(n, "id")
		if !ok || v != id {
			return false
		}
	}
	if class != "" {
		v, ok := attr(n, "class")
		if !ok {
			return false
		}
		found := false
		for _, c := range strings.Fields(v) {
			if c == class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
