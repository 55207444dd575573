package cagematch

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	dottedDate = regexp.MustCompile(`\b(\d{2})\.(\d{2})\.(\d{4})\b`)
	longDate   = regexp.MustCompile(`\b([A-Z][a-z]+ \d{1,2}, \d{4})\b`)
	yearRe     = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	ratingRe   = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// ParseDate converts "31.12.1999" or "December 31, 1999" into YYYY-MM-DD.
func ParseDate(text string) (string, bool) {
	if m := dottedDate.FindStringSubmatch(text); m != nil {
		if t, err := time.Parse("02.01.2006", m[0]); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	if m := longDate.FindString(text); m != "" {
		if t, err := time.Parse("January 2, 2006", m); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// Years returns every four-digit year in text, in order.
func Years(text string) []int {
	var out []int
	for _, m := range yearRe.FindAllString(text, -1) {
		if y, err := strconv.Atoi(m); err == nil {
			out = append(out, y)
		}
	}
	return out
}

func parseRating(text string) float64 {
	m := ratingRe.FindString(text)
	if m == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(m, 64)
	return f
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func textOf(n *html.Node) string {
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
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func classMatches(n *html.Node, class string) bool {
	if class == "" {
		return true
	}
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

// findFirst returns the first descendant (or n itself) with the given tag and
// class.
func findFirst(n *html.Node, tag atom.Atom, class string) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == tag && classMatches(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findFirst(c, tag, class); f != nil {
			return f
		}
	}
	return nil
}

// findAll returns matching descendants in document order without descending
// into matches.
func findAll(n *html.Node, tag atom.Atom, class string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == tag && classMatches(c, class) {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return out
}
