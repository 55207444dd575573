package wikipedia

import (
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Infobox maps normalized row headers ("birth_name", "billed_from") to the
// row's cleaned text.
type Infobox map[string]string

// First returns the value of the first key present.
func (b Infobox) First(keys ...string) string {
	for _, k := range keys {
		if v := b[k]; v != "" {
			return v
		}
	}
	return ""
}

var (
	refMarker  = regexp.MustCompile(`\[(\d+|edit|citation needed)\]`)
	yearRe     = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	isoDateRe  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	mdyDateRe  = regexp.MustCompile(`\b([A-Z][a-z]+ \d{1,2}, \d{4})\b`)
	dmyDateRe  = regexp.MustCompile(`\b(\d{1,2} [A-Z][a-z]+ \d{4})\b`)
	urlRe      = regexp.MustCompile(`https?://[^\s<>"]+`)
	numberRe   = regexp.MustCompile(`\d[\d,]*`)
	htmlTagsRe = regexp.MustCompile(`<[^>]*>`)
)

// ParseInfobox extracts header/value rows from the first table with class
// "infobox" in an article's HTML. Only rows with both a th and a td are kept.
func ParseInfobox(r io.Reader) (Infobox, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: parse html")
	}
	box := Infobox{}
	table := findInfobox(doc)
	if table == nil {
		return box, nil
	}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			addRow(box, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Table {
				continue
			}
			walk(c)
		}
	}
	walk(table)
	return box, nil
}

func findInfobox(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Table && hasClass(n, "infobox") {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findInfobox(c); t != nil {
			return t
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, f := range strings.Fields(a.Val) {
				if f == class {
					return true
				}
			}
		}
	}
	return false
}

func addRow(box Infobox, tr *html.Node) {
	var th, td *html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Th:
			if th == nil {
				th = c
			}
		case atom.Td:
			if td == nil {
				td = c
			}
		}
	}
	if th == nil || td == nil {
		return
	}
	header := CleanText(textContent(th))
	value := CleanText(textContent(td))
	if header == "" || value == "" {
		return
	}
	key := strings.ReplaceAll(strings.ToLower(header), " ", "_")
	key = strings.NewReplacer("'", "", "(", "", ")", "").Replace(key)
	if _, seen := box[key]; !seen {
		box[key] = value
	}
}

// textContent joins text nodes, separating block-level children and <br>
// with a comma so lists stay readable.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode:
			switch n.DataAtom {
			case atom.Style, atom.Script, atom.Sup:
				return
			case atom.Br, atom.Li:
				if b.Len() > 0 {
					b.WriteString(", ")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// CleanText removes reference markers and collapses whitespace.
func CleanText(s string) string {
	s = refMarker.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, " ,", ",")
	s = strings.Trim(s, ", ")
	for strings.Contains(s, ",,") {
		s = strings.ReplaceAll(s, ",,", ",")
	}
	return s
}

// ExtractYear returns the first plausible four-digit year in text, bounded to
// [1900, now+1].
func ExtractYear(text string, now time.Time) (int, bool) {
	for _, m := range yearRe.FindAllString(text, -1) {
		y, err := strconv.Atoi(m)
		if err == nil && y >= 1900 && y <= now.Year()+1 {
			return y, true
		}
	}
	return 0, false
}

// ExtractDate parses the first "January 2, 2006", "2 January 2006" or ISO
// date in text and returns it as YYYY-MM-DD.
func ExtractDate(text string) (string, bool) {
	if m := isoDateRe.FindString(text); m != "" {
		if _, err := time.Parse("2006-01-02", m); err == nil {
			return m, true
		}
	}
	for _, p := range []struct {
		re     *regexp.Regexp
		layout string
	}{
		{mdyDateRe, "January 2, 2006"},
		{dmyDateRe, "2 January 2006"},
	} {
		for _, m := range p.re.FindAllString(text, -1) {
			if t, err := time.Parse(p.layout, m); err == nil {
				return t.Format("2006-01-02"), true
			}
		}
	}
	return "", false
}

// ExtractNumber returns the first number in text, ignoring thousands
// separators ("17,000 (est.)" yields 17000).
func ExtractNumber(text string) (int, bool) {
	m := numberRe.FindString(text)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	return n, err == nil
}

// ExtractURL returns the first http(s) URL in text.
func ExtractURL(text string) (string, bool) {
	m := urlRe.FindString(text)
	return m, m != ""
}

func stripTags(s string) string {
	return html.UnescapeString(htmlTagsRe.ReplaceAllString(s, ""))
}
