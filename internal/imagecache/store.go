package imagecache

import (
	"context"
	"crypto/md5" //nolint:gosec // content-addressing only
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wrestlebot/internal/model"
)

// Uploader persists image bytes at a relative path and returns the public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, path string) (string, error)
}

// Path builds the storage path of an image: {kind}/{id}/{urlhash}_{unix}{ext}.
func Path(kind model.Kind, id int64, sourceURL string, now time.Time, ext string) string {
	sum := md5.Sum([]byte(sourceURL)) //nolint:gosec
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s/%d/%s_%d%s", kind, id, hex.EncodeToString(sum[:])[:8], now.Unix(), ext)
}

// LocalStore writes images below a directory served at baseURL.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates a LocalStore rooted at dir.
func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Upload writes data atomically (temp file + rename) and returns its URL.
func (s *LocalStore) Upload(ctx context.Context, data []byte, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", eris.Errorf("imagecache: invalid storage path %q", path)
	}
	dst := filepath.Join(s.dir, clean)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", eris.Wrap(err, "imagecache: create directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", eris.Wrap(err, "imagecache: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", eris.Wrap(err, "imagecache: write image")
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrap(err, "imagecache: close image")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", eris.Wrap(err, "imagecache: rename image")
	}

	return s.baseURL + "/" + filepath.ToSlash(clean), nil
}
