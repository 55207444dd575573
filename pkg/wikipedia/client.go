// Package wikipedia provides a client for the MediaWiki Action API and the
// Wikipedia REST summary endpoint.
package wikipedia

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/sells-group/wrestlebot/internal/resilience"
)

// Default endpoints and pacing.
const (
	DefaultAPIURL    = "https://en.wikipedia.org/w/api.php"
	DefaultRESTURL   = "https://en.wikipedia.org/api/rest_v1"
	DefaultArticle   = "https://en.wikipedia.org/wiki/"
	DefaultUserAgent = "WrestleBot/1.0 (https://wrestlingdb.org/wrestlebot)"
	maxCategoryBatch = 500
)

// Client defines the Wikipedia operations used for fact lookup and discovery.
type Client interface {
	// CategoryMembers lists article pages in a category, skipping sub-categories
	// and "List of" pages. The "Category:" prefix is optional.
	CategoryMembers(ctx context.Context, category string, limit int) ([]Page, error)
	// Search runs a full-text search.
	Search(ctx context.Context, query string, limit int) ([]Page, error)
	// Summary returns the lead summary for an article, or nil when the title is
	// not a standard article (disambiguation, missing).
	Summary(ctx context.Context, title string) (*Summary, error)
	// Infobox returns the parsed infobox of an article, or an empty map.
	Infobox(ctx context.Context, title string) (Infobox, error)
}

// Page identifies one article.
type Page struct {
	PageID  int64  `json:"pageid"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// Summary is the REST summary of an article.
type Summary struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Extract      string `json:"extract"`
	SourceURL    string `json:"source_url"`
	WikibaseItem string `json:"wikibase_item"`
}

// Option configures the Wikipedia client.
type Option func(*httpClient)

// WithBaseURLs points the client at different API hosts (for testing).
func WithBaseURLs(apiURL, restURL string) Option {
	return func(c *httpClient) {
		c.apiURL = apiURL
		c.restURL = strings.TrimRight(restURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header. Wikimedia rejects anonymous
// agents.
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
	apiURL    string
	restURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a new Wikipedia client paced at one request per second.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		apiURL:    DefaultAPIURL,
		restURL:   DefaultRESTURL,
		userAgent: DefaultUserAgent,
		limiter:   rate.NewLimiter(1, 1),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ArticleURL returns the canonical article URL for a title.
func ArticleURL(title string) string {
	return DefaultArticle + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

func (c *httpClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "wikipedia: rate limiter wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: read response body")
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPError("wikipedia", resp.StatusCode, body)
	}
	return body, nil
}

func (c *httpClient) action(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	body, err := c.get(ctx, c.apiURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	if msg := gjson.GetBytes(body, "error.info"); msg.Exists() {
		return nil, eris.Errorf("wikipedia: api error: %s", msg.String())
	}
	return body, nil
}

func (c *httpClient) CategoryMembers(ctx context.Context, category string, limit int) ([]Page, error) {
	if limit <= 0 {
		return nil, nil
	}
	if !strings.HasPrefix(category, "Category:") {
		category = "Category:" + category
	}
	params := url.Values{
		"action":  {"query"},
		"list":    {"categorymembers"},
		"cmtitle": {category},
		"cmlimit": {strconv.Itoa(min(limit, maxCategoryBatch))},
		"cmtype":  {"page"},
	}

	var pages []Page
	for len(pages) < limit {
		body, err := c.action(ctx, params)
		if err != nil {
			return pages, eris.Wrapf(err, "wikipedia: category members %s", category)
		}
		if body == nil {
			break
		}
		for _, m := range gjson.GetBytes(body, "query.categorymembers").Array() {
			title := m.Get("title").String()
			if title == "" || strings.HasPrefix(title, "Category:") || strings.Contains(title, "List of") {
				continue
			}
			pages = append(pages, Page{PageID: m.Get("pageid").Int(), Title: title})
			if len(pages) >= limit {
				break
			}
		}
		next := gjson.GetBytes(body, "continue.cmcontinue")
		if !next.Exists() {
			break
		}
		params.Set("cmcontinue", next.String())
	}
	return pages, nil
}

func (c *httpClient) Search(ctx context.Context, query string, limit int) ([]Page, error) {
	if limit <= 0 {
		limit = 10
	}
	body, err := c.action(ctx, url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(limit)},
		"srprop":   {"snippet"},
	})
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: search")
	}
	var out []Page
	for _, r := range gjson.GetBytes(body, "query.search").Array() {
		out = append(out, Page{
			PageID:  r.Get("pageid").Int(),
			Title:   r.Get("title").String(),
			Snippet: stripTags(r.Get("snippet").String()),
		})
	}
	return out, nil
}

type restSummary struct {
	Type         string `json:"type"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Extract      string `json:"extract"`
	WikibaseItem string `json:"wikibase_item"`
	ContentURLs  struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

func (c *httpClient) Summary(ctx context.Context, title string) (*Summary, error) {
	endpoint := c.restURL + "/page/summary/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, eris.Wrapf(err, "wikipedia: summary %s", title)
	}
	if body == nil {
		return nil, nil
	}
	var s restSummary
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, eris.Wrap(err, "wikipedia: unmarshal summary")
	}
	if s.Type != "standard" {
		return nil, nil
	}
	return &Summary{
		Title:        s.Title,
		Description:  s.Description,
		Extract:      s.Extract,
		SourceURL:    s.ContentURLs.Desktop.Page,
		WikibaseItem: s.WikibaseItem,
	}, nil
}

func (c *httpClient) Infobox(ctx context.Context, title string) (Infobox, error) {
	body, err := c.action(ctx, url.Values{
		"action":             {"parse"},
		"page":               {title},
		"prop":               {"text"},
		"disableeditsection": {"true"},
		"disabletoc":         {"true"},
		"redirects":          {"true"},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "wikipedia: parse %s", title)
	}
	text := gjson.GetBytes(body, "parse.text")
	if text.IsObject() {
		text = text.Get("\\*")
	}
	if text.String() == "" {
		return Infobox{}, nil
	}
	box, err := ParseInfobox(strings.NewReader(text.String()))
	if err != nil {
		return nil, eris.Wrapf(err, "wikipedia: parse infobox %s", title)
	}
	return box, nil
}
