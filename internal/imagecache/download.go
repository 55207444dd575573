package imagecache

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wrestlebot/internal/resilience"
)

// Download limits.
const (
	DefaultMaxBytes        = 10 << 20
	DefaultDownloadTimeout = 30 * time.Second
	defaultHostRPS         = 2
)

// Download errors. Both count as rejected data, not source failures.
var (
	ErrTooLarge = eris.New("imagecache: image exceeds size limit")
	ErrNotImage = eris.New("imagecache: response is not an image")
)

var extByType = map[string]string{
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/tiff":    ".tif",
}

// DownloaderOptions configures a Downloader.
type DownloaderOptions struct {
	MaxBytes   int64
	Timeout    time.Duration
	UserAgent  string
	HostRPS    float64
	HTTPClient *http.Client
}

// Downloader fetches images with a hard size cap enforced while streaming.
type Downloader struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
	limiters  *limiters
}

// NewDownloader creates a Downloader with defaults for unset options.
func NewDownloader(opts DownloaderOptions) *Downloader {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultDownloadTimeout
	}
	if opts.HostRPS <= 0 {
		opts.HostRPS = defaultHostRPS
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "WrestleBot/1.0 (https://wrestlingdb.org/wrestlebot)"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Downloader{
		client:    hc,
		maxBytes:  opts.MaxBytes,
		userAgent: opts.UserAgent,
		limiters:  newLimiters(opts.HostRPS),
	}
}

// Download fetches rawURL and returns its bytes and a file extension derived
// from the content type. Bodies over the size cap are abandoned as soon as
// the cap is crossed.
func (d *Downloader) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", eris.Errorf("imagecache: invalid image url %q", rawURL)
	}
	lim := d.limiters.forHost(u.Host)
	if err := lim.Wait(ctx); err != nil {
		return nil, "", eris.Wrap(err, "imagecache: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", eris.Wrap(err, "imagecache: create request")
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", eris.Wrap(err, "imagecache: download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		lim.onRateLimit(u.Host)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, "", resilience.HTTPError("imagecache", resp.StatusCode, body)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, "", eris.Wrapf(ErrNotImage, "content type %q", mediaType)
	}
	if resp.ContentLength > d.maxBytes {
		return nil, "", eris.Wrapf(ErrTooLarge, "content length %d", resp.ContentLength)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, "", eris.Wrap(err, "imagecache: read body")
	}
	if n > d.maxBytes {
		return nil, "", eris.Wrapf(ErrTooLarge, "read more than %d bytes", d.maxBytes)
	}
	lim.onSuccess()

	return buf.Bytes(), extension(mediaType, u.Path), nil
}

func extension(mediaType, urlPath string) string {
	if ext, ok := extByType[mediaType]; ok {
		return ext
	}
	if ext := strings.ToLower(path.Ext(urlPath)); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".jpg"
}
