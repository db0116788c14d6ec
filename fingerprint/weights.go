package fingerprint

import (
	"strings"

	"golang.org/x/net/html"
)

// DefaultWeight is applied to text that falls outside every element listed
// in the weight table.
const DefaultWeight = 0.5

type weightRule struct {
	class  string
	weight float64
}

// classify reports the weight-table entry a node matches, if any. div
// elements are only weighted when one of their classes contains "content".
func classify(n *html.Node) (weightRule, bool) {
	if n.Type != html.ElementNode {
		return weightRule{}, false
	}
	switch n.Data {
	case "article":
		return weightRule{"article", 1.0}, true
	case "main":
		return weightRule{"main", 0.9}, true
	case "h1", "h2", "h3":
		return weightRule{n.Data, 0.8}, true
	case "p":
		return weightRule{"p", 0.7}, true
	case "aside":
		return weightRule{"aside", 0.3}, true
	case "nav":
		return weightRule{"nav", 0.1}, true
	case "footer":
		return weightRule{"footer", 0.1}, true
	case "div":
		if hasContentClass(n) {
			return weightRule{"div.content", 0.8}, true
		}
	}
	return weightRule{}, false
}

func hasContentClass(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if strings.Contains(strings.ToLower(c), "content") {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
