package fingerprint

import (
	"bytes"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"golang.org/x/net/html"
)

// region is one weight-table element rendered to readable text, in
// document order. Regions are non-overlapping: once an element matches the
// weight table it is not descended into again, so a <p> nested inside an
// <article> does not get double-counted.
type region struct {
	class  string
	weight float64
	text   string
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(base.NewBasePlugin(), commonmark.NewCommonmarkPlugin()),
)

// extractRegions walks roots (the whole document, or the subtrees matched
// by a custom selector) and produces one region per matched weight-table
// element, converting each to markdown text via html-to-markdown so the
// extracted content_text stays readable for diffing and notification.
// Elements the weight table doesn't list still contribute their own
// direct text, at the weight of the nearest classified ancestor (or
// DefaultWeight at the document root), so content under a plain <div>,
// <span>, <li>, or similar never goes dark to the Change Detector.
func extractRegions(roots []*html.Node) []region {
	var regions []region
	var walk func(n *html.Node, inherited weightRule)
	walk = func(n *html.Node, inherited weightRule) {
		if n.Type == html.ElementNode && isSkippedTag(n.Data) {
			return
		}
		if rule, ok := classify(n); ok {
			text := renderToMarkdown(n)
			if strings.TrimSpace(text) != "" {
				regions = append(regions, region{class: rule.class, weight: rule.weight, text: text})
			}
			return // non-overlapping: don't descend into a matched region
		}
		if n.Type == html.ElementNode {
			if text := strings.TrimSpace(directText(n)); text != "" {
				regions = append(regions, region{class: inherited.class, weight: inherited.weight, text: text})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inherited)
		}
	}
	defaultRule := weightRule{class: "default", weight: DefaultWeight}
	for _, r := range roots {
		walk(r, defaultRule)
	}
	return regions
}

// directText returns n's own immediate text-node children only; text
// belonging to nested elements is handled by their own region or by the
// recursive walk, never here, so it is never counted twice.
func directText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func isSkippedTag(tag string) bool {
	switch tag {
	case "script", "style", "noscript":
		return true
	}
	return false
}

func renderToMarkdown(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	md, err := mdConverter.ConvertString(buf.String())
	if err != nil || strings.TrimSpace(md) == "" {
		return extractPlainText(n)
	}
	return strings.TrimSpace(md)
}

// extractPlainText is the stdlib fallback when markdown conversion fails
// or yields nothing — still readable, just without formatting.
func extractPlainText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// weightedText concatenates regions in document order, each run prefixed
// by its weight class, per the structure-aware extraction contract.
func weightedText(regions []region) string {
	var b strings.Builder
	for _, r := range regions {
		b.WriteString("[")
		b.WriteString(r.class)
		b.WriteString("] ")
		b.WriteString(r.text)
		b.WriteString("\n")
	}
	return b.String()
}

// contentWeights aggregates each region's contribution to total extracted
// text length into a [0,1] fraction per weight class.
func contentWeights(regions []region) map[string]float64 {
	lengths := make(map[string]int)
	total := 0
	for _, r := range regions {
		lengths[r.class] += len(r.text)
		total += len(r.text)
	}
	out := make(map[string]float64, len(lengths))
	if total == 0 {
		return out
	}
	for class, l := range lengths {
		out[class] = float64(l) / float64(total)
	}
	return out
}

// structureSignature is a compact summary of the dominant containers,
// ordered by their share of total extracted text.
func structureSignature(weights map[string]float64) string {
	type pair struct {
		class  string
		weight float64
	}
	pairs := make([]pair, 0, len(weights))
	for class, w := range weights {
		pairs = append(pairs, pair{class, w})
	}
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && pairs[j].weight > pairs[j-1].weight; j-- {
			pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
		}
	}
	n := len(pairs)
	if n > 3 {
		n = 3
	}
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, pairs[i].class)
	}
	return strings.Join(parts, ">")
}
