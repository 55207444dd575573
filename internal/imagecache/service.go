package imagecache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/source"
)

// ErrLicenseRejected is returned for images whose license is not allow-listed.
var ErrLicenseRejected = eris.New("imagecache: license not allowed")

// Fetcher downloads image bytes. *Downloader implements it.
type Fetcher interface {
	Download(ctx context.Context, rawURL string) ([]byte, string, error)
}

// Stored describes an image that was cached for a record.
type Stored struct {
	URL         string `json:"url"`
	Path        string `json:"path"`
	SourceURL   string `json:"source_url"`
	License     string `json:"license"`
	Attribution string `json:"attribution,omitempty"`
	Bytes       int    `json:"bytes"`
}

// Service screens, downloads and stores images.
type Service struct {
	fetcher  Fetcher
	uploader Uploader
	nowFunc  func() time.Time
}

// NewService creates a Service.
func NewService(fetcher Fetcher, uploader Uploader) *Service {
	return &Service{fetcher: fetcher, uploader: uploader, nowFunc: time.Now}
}

// SetClock overrides the time source used for storage paths.
func (s *Service) SetClock(now func() time.Time) { s.nowFunc = now }

// Cache stores img for the record identified by kind and id. The license is
// checked before anything is downloaded.
func (s *Service) Cache(ctx context.Context, kind model.Kind, id int64, img source.Image) (*Stored, error) {
	log := zap.L().With(
		zap.String("component", "imagecache"),
		zap.String("kind", string(kind)),
		zap.Int64("id", id),
	)
	license := NormalizeLicense(img.License)
	if license == licenseUnknown {
		log.Debug("imagecache: rejected license", zap.String("license", img.License))
		return nil, eris.Wrapf(ErrLicenseRejected, "license %q", img.License)
	}
	src := img.URL
	if src == "" {
		src = img.ThumbURL
	}
	if src == "" {
		return nil, eris.New("imagecache: image has no url")
	}

	data, ext, err := s.fetcher.Download(ctx, src)
	if err != nil {
		return nil, err
	}
	path := Path(kind, id, src, s.nowFunc(), ext)
	url, err := s.uploader.Upload(ctx, data, path)
	if err != nil {
		return nil, eris.Wrap(err, "imagecache: upload")
	}

	sourceURL := img.DescriptionURL
	if sourceURL == "" {
		sourceURL = src
	}
	log.Info("imagecache: stored image", zap.String("path", path), zap.Int("bytes", len(data)))
	return &Stored{
		URL:         url,
		Path:        path,
		SourceURL:   sourceURL,
		License:     img.License,
		Attribution: img.Attribution,
		Bytes:       len(data),
	}, nil
}
