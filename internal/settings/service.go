package settings

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/store"
)

// Backend persists setting rows.
type Backend interface {
	GetSetting(ctx context.Context, key string) (*model.Setting, error)
	SetSetting(ctx context.Context, s model.Setting) error
	SetSettings(ctx context.Context, settings []model.Setting) error
	ListSettings(ctx context.Context) ([]model.Setting, error)
}

// Entry is one key with its effective value.
type Entry struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description"`
	IsDefault   bool            `json:"is_default"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
}

// Service reads and writes runtime settings.
type Service struct {
	backend Backend
	now     func() time.Time
}

// NewService creates a Service over backend.
func NewService(backend Backend) *Service {
	return &Service{backend: backend, now: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Load returns the effective settings. When the rows cannot be read the
// defaults are returned together with the error, so callers can continue.
func (s *Service) Load(ctx context.Context) (Settings, error) {
	rows, err := s.backend.ListSettings(ctx)
	if err != nil {
		return Defaults(), eris.Wrap(err, "settings: load")
	}
	return Merge(Defaults(), rows), nil
}

// Get returns the effective value of key.
func (s *Service) Get(ctx context.Context, key string) (*Entry, error) {
	if !Known(key) {
		return nil, eris.Errorf("settings: unknown key %q", key)
	}
	cur, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	val, err := cur.Value(key)
	if err != nil {
		return nil, err
	}
	e := &Entry{Key: key, Value: val, Description: Description(key), IsDefault: true}

	row, err := s.backend.GetSetting(ctx, key)
	switch {
	case err == nil:
		e.IsDefault = false
		t := row.UpdatedAt
		e.UpdatedAt = &t
	case !eris.Is(err, store.ErrNotFound):
		return nil, eris.Wrapf(err, "settings: get %s", key)
	}
	return e, nil
}

// Set validates raw for key and stores it.
func (s *Service) Set(ctx context.Context, key string, raw json.RawMessage) error {
	if _, err := Defaults().With(key, raw); err != nil {
		return err
	}
	err := s.backend.SetSetting(ctx, model.Setting{
		Key:         key,
		Value:       compact(raw),
		Description: Description(key),
		UpdatedAt:   s.now().UTC(),
	})
	if err != nil {
		return eris.Wrapf(err, "settings: set %s", key)
	}
	zap.L().Info("setting updated", zap.String("key", key), zap.ByteString("value", raw))
	return nil
}

// List returns every known key with its effective value.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.backend.ListSettings(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "settings: list")
	}
	stored := make(map[string]model.Setting, len(rows))
	for _, r := range rows {
		stored[r.Key] = r
	}
	cur := Merge(Defaults(), rows)

	out := make([]Entry, 0, len(descriptions))
	for _, key := range Keys() {
		val, err := cur.Value(key)
		if err != nil {
			return nil, err
		}
		e := Entry{Key: key, Value: val, Description: Description(key), IsDefault: true}
		if r, ok := stored[key]; ok {
			e.IsDefault = false
			t := r.UpdatedAt
			e.UpdatedAt = &t
		}
		out = append(out, e)
	}
	return out, nil
}

// InitDefaults writes a row for every key that has none. Existing rows are
// left alone. It returns the number of rows written.
func (s *Service) InitDefaults(ctx context.Context) (int, error) {
	rows, err := s.backend.ListSettings(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "settings: init")
	}
	have := make(map[string]bool, len(rows))
	for _, r := range rows {
		have[r.Key] = true
	}
	defaults := Defaults()
	now := s.now().UTC()

	var missing []model.Setting
	for _, key := range Keys() {
		if have[key] {
			continue
		}
		val, err := defaults.Value(key)
		if err != nil {
			return 0, err
		}
		missing = append(missing, model.Setting{Key: key, Value: val, Description: Description(key), UpdatedAt: now})
	}
	if len(missing) == 0 {
		return 0, nil
	}
	if err := s.backend.SetSettings(ctx, missing); err != nil {
		return 0, eris.Wrap(err, "settings: init")
	}
	return len(missing), nil
}

// Export writes the effective settings as YAML.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	cur, err := s.Load(ctx)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cur); err != nil {
		return eris.Wrap(err, "settings: encode yaml")
	}
	return eris.Wrap(enc.Close(), "settings: encode yaml")
}

// Import reads a YAML mapping of key to value and stores every entry. The
// whole document is validated before anything is written.
func (s *Service) Import(ctx context.Context, r io.Reader) (int, error) {
	var doc map[string]any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, eris.Wrap(err, "settings: decode yaml")
	}

	check := Defaults()
	now := s.now().UTC()
	rows := make([]model.Setting, 0, len(doc))
	for _, key := range sortedKeys(doc) {
		raw, err := json.Marshal(doc[key])
		if err != nil {
			return 0, eris.Wrapf(err, "settings: encode %s", key)
		}
		if check, err = check.With(key, raw); err != nil {
			return 0, err
		}
		rows = append(rows, model.Setting{Key: key, Value: raw, Description: Description(key), UpdatedAt: now})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.backend.SetSettings(ctx, rows); err != nil {
		return 0, eris.Wrap(err, "settings: import")
	}
	return len(rows), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func compact(raw json.RawMessage) json.RawMessage {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return b
}
