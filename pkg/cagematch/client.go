// Package cagematch provides a client for the Cagematch results database.
// Pages are HTML only; the client parses search listings and profile
// information boxes.
package cagematch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/time/rate"

	"github.com/sells-group/wrestlebot/internal/resilience"
)

// DefaultBaseURL is the public site.
const DefaultBaseURL = "https://www.cagematch.net"

const defaultUserAgent = "WrestleBot/1.0 (https://wrestlingdb.org/wrestlebot)"

// Page is the Cagematch object id for a profile page type.
type Page int

const (
	PageEvent     Page = 1
	PageWorker    Page = 2
	PagePromotion Page = 8
)

// Client defines the Cagematch operations used by the results source.
type Client interface {
	// SearchWorkers searches wrestler profiles by name.
	SearchWorkers(ctx context.Context, query string, limit int) ([]Listing, error)
	// Profile fetches and parses one profile page. A missing page returns nil.
	Profile(ctx context.Context, page Page, id int) (*Profile, error)
	// RecentEvents lists the most recent event cards.
	RecentEvents(ctx context.Context, limit int) ([]Listing, error)
}

// Listing is one row of a search or listing table.
type Listing struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Profile is a parsed profile page. Rows maps the lowercased information box
// label (without trailing colon) to its value.
type Profile struct {
	ID      int               `json:"id"`
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	Rows    map[string]string `json:"rows"`
	Matches []Match           `json:"matches,omitempty"`
}

// Match is one match on an event card.
type Match struct {
	Card   string  `json:"card"`
	Result string  `json:"result,omitempty"`
	Type   string  `json:"type,omitempty"`
	Rating float64 `json:"rating,omitempty"`
}

// Find returns the value of the first row whose label contains any of the
// given fragments.
func (p *Profile) Find(fragments ...string) string {
	labels := make([]string, 0, len(p.Rows))
	for label := range p.Rows {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, f := range fragments {
		for _, label := range labels {
			if strings.Contains(label, f) {
				return p.Rows[label]
			}
		}
	}
	return ""
}

// Option configures the Cagematch client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit sets requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a Cagematch client paced at one request every five
// seconds.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   DefaultBaseURL,
		userAgent: defaultUserAgent,
		limiter:   rate.NewLimiter(rate.Every(5*time.Second), 1),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProfileURL returns the public URL for a profile page.
func (c *httpClient) ProfileURL(page Page, id int) string {
	return c.baseURL + "/en/?id=" + strconv.Itoa(int(page)) + "&nr=" + strconv.Itoa(id)
}

func (c *httpClient) fetch(ctx context.Context, rawURL string) (*html.Node, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "cagematch: rate limiter wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "cagematch: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "cagematch: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resilience.HTTPError("cagematch", resp.StatusCode, body)
	}
	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "cagematch: parse html")
	}
	return doc, nil
}

func (c *httpClient) SearchWorkers(ctx context.Context, query string, limit int) ([]Listing, error) {
	doc, err := c.fetch(ctx, c.baseURL+"/en/?id=2&view=workers&search="+url.QueryEscape(query))
	if err != nil {
		return nil, eris.Wrap(err, "cagematch: search workers")
	}
	return c.listings(doc, 2, limit), nil
}

func (c *httpClient) RecentEvents(ctx context.Context, limit int) ([]Listing, error) {
	doc, err := c.fetch(ctx, c.baseURL+"/en/?id=1&view=cards")
	if err != nil {
		return nil, eris.Wrap(err, "cagematch: recent events")
	}
	return c.listings(doc, 3, limit), nil
}

// listings reads the first TBase table, skipping its header row. Rows with
// fewer than minCells cells or no numeric profile link are ignored.
func (c *httpClient) listings(doc *html.Node, minCells, limit int) []Listing {
	if doc == nil {
		return nil
	}
	table := findFirst(doc, atom.Table, "TBase")
	if table == nil {
		return nil
	}
	var out []Listing
	for i, tr := range findAll(table, atom.Tr, "") {
		if i == 0 {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		cells := findAll(tr, atom.Td, "")
		if len(cells) < minCells {
			continue
		}
		for _, cell := range cells {
			a := findFirst(cell, atom.A, "")
			if a == nil {
				continue
			}
			href := c.resolve(attr(a, "href"))
			id := ParseID(href)
			if id == 0 {
				continue
			}
			out = append(out, Listing{ID: id, Name: cleanText(textOf(a)), URL: href})
			break
		}
	}
	return out
}

func (c *httpClient) Profile(ctx context.Context, page Page, id int) (*Profile, error) {
	pageURL := c.ProfileURL(page, id)
	doc, err := c.fetch(ctx, pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "cagematch: profile %d/%d", page, id)
	}
	if doc == nil {
		return nil, nil
	}
	box := findFirst(doc, atom.Div, "InformationBoxTable")
	if box == nil {
		box = doc
	}
	rows := findAll(box, atom.Div, "InformationBoxRow")
	if len(rows) == 0 {
		return nil, nil
	}

	p := &Profile{ID: id, URL: pageURL, Rows: make(map[string]string)}
	if h := findFirst(doc, atom.H1, "TextHeader"); h != nil {
		p.Name = cleanText(textOf(h))
	}
	for _, row := range rows {
		label := findFirst(row, atom.Div, "InformationBoxTitle")
		value := findFirst(row, atom.Div, "InformationBoxContents")
		if label == nil || value == nil {
			continue
		}
		l := strings.TrimSuffix(strings.ToLower(cleanText(textOf(label))), ":")
		v := cleanText(textOf(value))
		if l != "" && v != "" {
			p.Rows[l] = v
		}
	}
	if page == PageEvent {
		p.Matches = parseMatches(doc)
	}
	return p, nil
}

func parseMatches(doc *html.Node) []Match {
	var out []Match
	for _, row := range findAll(doc, atom.Div, "Match") {
		m := Match{}
		if n := findFirst(row, atom.Div, "MatchCard"); n != nil {
			m.Card = cleanText(textOf(n))
		}
		if m.Card == "" {
			continue
		}
		if n := findFirst(row, atom.Div, "MatchResults"); n != nil {
			m.Result = cleanText(textOf(n))
		}
		if n := findFirst(row, atom.Div, "MatchType"); n != nil {
			m.Type = cleanText(textOf(n))
		}
		if n := findFirst(row, atom.Div, "MatchRating"); n != nil {
			m.Rating = parseRating(textOf(n))
		}
		out = append(out, m)
	}
	return out
}

func (c *httpClient) resolve(href string) string {
	base, err := url.Parse(c.baseURL + "/en/")
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// ParseID extracts the "nr" query parameter of a profile URL.
func ParseID(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	id, err := strconv.Atoi(u.Query().Get("nr"))
	if err != nil || id <= 0 {
		return 0
	}
	return id
}
