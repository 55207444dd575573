// Package commons provides a client for Wikimedia Commons file search with
// license metadata.
package commons

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/sells-group/wrestlebot/internal/resilience"
)

// DefaultAPIURL is the Commons Action API endpoint.
const DefaultAPIURL = "https://commons.wikimedia.org/w/api.php"

const (
	defaultUserAgent = "WrestleBot/1.0 (https://wrestlingdb.org/wrestlebot)"
	thumbWidth       = 400
	maxSearchLimit   = 50
)

// Client defines the Commons operations used by the image source.
type Client interface {
	// Search finds bitmap files matching query. Results carry the raw license
	// metadata; callers decide which licenses are acceptable.
	Search(ctx context.Context, query string, limit int) ([]Image, error)
}

// Image is one file's metadata.
type Image struct {
	Title          string `json:"title"`
	PageID         int64  `json:"page_id"`
	URL            string `json:"url"`
	ThumbURL       string `json:"thumb_url"`
	DescriptionURL string `json:"description_url"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	MIME           string `json:"mime"`
	License        string `json:"license"`
	LicenseURL     string `json:"license_url"`
	Artist         string `json:"artist"`
	Description    string `json:"description"`
	Index          int    `json:"-"`
}

// Option configures the Commons client.
type Option func(*httpClient)

// WithBaseURL sets a custom API URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.apiURL = u
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
	apiURL    string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a new Commons client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		apiURL:    DefaultAPIURL,
		userAgent: defaultUserAgent,
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

var tagRe = regexp.MustCompile(`<[^>]+>`)

// StripHTML removes markup from extmetadata values.
func StripHTML(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(tagRe.ReplaceAllString(s, ""))), " ")
}

func (c *httpClient) Search(ctx context.Context, query string, limit int) ([]Image, error) {
	if limit <= 0 {
		limit = 5
	}
	params := url.Values{
		"action":       {"query"},
		"format":       {"json"},
		"generator":    {"search"},
		"gsrsearch":    {"filetype:bitmap " + query},
		"gsrnamespace": {"6"},
		"gsrlimit":     {strconv.Itoa(min(limit, maxSearchLimit))},
		"prop":         {"imageinfo"},
		"iiprop":       {"url|extmetadata|size|mime"},
		"iiurlwidth":   {strconv.Itoa(thumbWidth)},
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "commons: rate limiter wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "commons: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "commons: search")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "commons: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPError("commons", resp.StatusCode, body)
	}
	if msg := gjson.GetBytes(body, "error.info"); msg.Exists() {
		return nil, eris.Errorf("commons: api error: %s", msg.String())
	}

	var images []Image
	gjson.GetBytes(body, "query.pages").ForEach(func(key, page gjson.Result) bool {
		if key.String() == "-1" || page.Get("missing").Exists() {
			return true
		}
		info := page.Get("imageinfo.0")
		if !info.Exists() {
			return true
		}
		meta := info.Get("extmetadata")
		images = append(images, Image{
			Title:          page.Get("title").String(),
			PageID:         page.Get("pageid").Int(),
			URL:            info.Get("url").String(),
			ThumbURL:       info.Get("thumburl").String(),
			DescriptionURL: info.Get("descriptionurl").String(),
			Width:          int(info.Get("width").Int()),
			Height:         int(info.Get("height").Int()),
			MIME:           info.Get("mime").String(),
			License:        strings.TrimSpace(meta.Get("LicenseShortName.value").String()),
			LicenseURL:     meta.Get("LicenseUrl.value").String(),
			Artist:         StripHTML(meta.Get("Artist.value").String()),
			Description:    StripHTML(meta.Get("ImageDescription.value").String()),
			Index:          int(page.Get("index").Int()),
		})
		return true
	})
	// Generator results arrive keyed by page id; "index" carries search rank.
	sort.SliceStable(images, func(i, j int) bool { return images[i].Index < images[j].Index })
	return images, nil
}
