package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wrestlebot/internal/model"
)

// ErrNotFound is returned when a record lookup matches nothing.
var ErrNotFound = eris.New("store: not found")

// Order values accepted by Filter.OrderBy.
const (
	OrderID        = "id"
	OrderIDDesc    = "-id"
	OrderUpdatedAt = "updated_at"
	OrderName      = "name"
	OrderRandom    = "random"
)

// Filter specifies criteria for querying records of one kind. NameIn and
// NamePrefixes are OR'd together; every other criterion is AND'd.
type Filter struct {
	Kind         model.Kind `json:"kind"`
	NameEquals   string     `json:"name_equals,omitempty"`   // case-insensitive
	NameContains string     `json:"name_contains,omitempty"` // case-insensitive
	NameIn       []string   `json:"name_in,omitempty"`       // case-insensitive
	NamePrefixes []string   `json:"name_prefixes,omitempty"` // case-insensitive
	IDs          []int64    `json:"ids,omitempty"`
	MissingAny   []string   `json:"missing_any,omitempty"`
	OrderBy      string     `json:"order_by,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	Offset       int        `json:"offset,omitempty"`
}

// Repository is the record contract the curation engine depends on.
type Repository interface {
	GetByID(ctx context.Context, kind model.Kind, id int64) (*model.Record, error)
	Query(ctx context.Context, f Filter) ([]*model.Record, error)
	// Save writes changed fields of r in one statement. A record with ID 0 is
	// inserted and its ID assigned.
	Save(ctx context.Context, r *model.Record, changed []string) error
	Delete(ctx context.Context, kind model.Kind, id int64) error
	// CountRelated counts links of one relation. When relation is empty it
	// counts the distinct records linked to or from the record.
	CountRelated(ctx context.Context, kind model.Kind, id int64, relation string) (int, error)
	Link(ctx context.Context, kind model.Kind, id int64, relation string, relKind model.Kind, relID int64) error
}

// Store defines the persistence interface for the curation engine.
type Store interface {
	Repository

	// Activity ledger
	AppendActivity(ctx context.Context, e *model.ActivityEntry) error
	ListActivity(ctx context.Context, f model.ActivityFilter) ([]model.ActivityEntry, error)
	ActivityStats(ctx context.Context, since time.Time) (*model.ActivityStats, error)
	CountActivity(ctx context.Context, since time.Time) (int, error)

	// Runtime settings
	GetSetting(ctx context.Context, key string) (*model.Setting, error)
	SetSetting(ctx context.Context, s model.Setting) error
	SetSettings(ctx context.Context, settings []model.Setting) error
	ListSettings(ctx context.Context) ([]model.Setting, error)

	// Daily statistics
	IncrementDailyStats(ctx context.Context, delta model.DailyStats) error
	GetDailyStats(ctx context.Context, day time.Time) (*model.DailyStats, error)

	// Response cache
	GetCached(ctx context.Context, key string) ([]byte, bool, error)
	SetCached(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteExpiredCache(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
