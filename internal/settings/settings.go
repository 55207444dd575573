// Package settings holds the operator-tunable runtime configuration. Values
// live as key to JSON rows in the store and are merged over typed defaults at
// the start of every cycle.
package settings

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/model"
)

// Setting keys.
const (
	KeyEnabled                  = "enabled"
	KeyMaxOperationsPerHour     = "max_operations_per_hour"
	KeyAIEnabled                = "ai_enabled"
	KeyAIMaxCallsPerDay         = "ai_max_calls_per_day"
	KeyAIGenerateBios           = "ai_generate_bios"
	KeyPriorityEntities         = "priority_entities"
	KeyMinCompletenessScore     = "min_completeness_score"
	KeyDiscoveryBatchSize       = "discovery_batch_size"
	KeyEnrichmentBatchSize      = "enrichment_batch_size"
	KeyImageBatchSize           = "image_batch_size"
	KeyPauseBetweenOperationsMS = "pause_between_operations_ms"
	KeyCleanupBatchSize         = "cleanup_batch_size"
	KeyVerificationBatchSize    = "verification_batch_size"
	KeyRequireVerification      = "require_verification"
	KeyMinConfidenceThreshold   = "min_confidence_threshold"
	KeyDuplicateSampleLimit     = "duplicate_sample_limit"
	KeyOrphanGraceDays          = "orphan_grace_days"
	KeyKindConcurrency          = "kind_concurrency"
)

const maxBatchSize = 1000

// Settings is the typed runtime configuration.
type Settings struct {
	Enabled                  bool         `json:"enabled" yaml:"enabled"`
	MaxOperationsPerHour     int          `json:"max_operations_per_hour" yaml:"max_operations_per_hour"`
	AIEnabled                bool         `json:"ai_enabled" yaml:"ai_enabled"`
	AIMaxCallsPerDay         int          `json:"ai_max_calls_per_day" yaml:"ai_max_calls_per_day"`
	AIGenerateBios           bool         `json:"ai_generate_bios" yaml:"ai_generate_bios"`
	PriorityEntities         []model.Kind `json:"priority_entities" yaml:"priority_entities"`
	MinCompletenessScore     float64      `json:"min_completeness_score" yaml:"min_completeness_score"`
	DiscoveryBatchSize       int          `json:"discovery_batch_size" yaml:"discovery_batch_size"`
	EnrichmentBatchSize      int          `json:"enrichment_batch_size" yaml:"enrichment_batch_size"`
	ImageBatchSize           int          `json:"image_batch_size" yaml:"image_batch_size"`
	PauseBetweenOperationsMS int          `json:"pause_between_operations_ms" yaml:"pause_between_operations_ms"`
	CleanupBatchSize         int          `json:"cleanup_batch_size" yaml:"cleanup_batch_size"`
	VerificationBatchSize    int          `json:"verification_batch_size" yaml:"verification_batch_size"`
	RequireVerification      bool         `json:"require_verification" yaml:"require_verification"`
	MinConfidenceThreshold   float64      `json:"min_confidence_threshold" yaml:"min_confidence_threshold"`
	DuplicateSampleLimit     int          `json:"duplicate_sample_limit" yaml:"duplicate_sample_limit"`
	OrphanGraceDays          int          `json:"orphan_grace_days" yaml:"orphan_grace_days"`
	KindConcurrency          int          `json:"kind_concurrency" yaml:"kind_concurrency"`
}

var descriptions = map[string]string{
	KeyEnabled:                  "Whether the bot is enabled",
	KeyMaxOperationsPerHour:     "Maximum database operations per hour (0 disables the cap)",
	KeyAIEnabled:                "Whether to use the AI backend for verification and generation",
	KeyAIMaxCallsPerDay:         "Maximum AI backend calls per day",
	KeyAIGenerateBios:           "Whether enrichment may generate biographies with the AI backend",
	KeyPriorityEntities:         "Entity types to prioritize (in order)",
	KeyMinCompletenessScore:     "Records at or below this completeness percentage are enriched",
	KeyDiscoveryBatchSize:       "Number of entities to discover per cycle",
	KeyEnrichmentBatchSize:      "Number of entities to enrich per cycle",
	KeyImageBatchSize:           "Number of images to fetch per cycle",
	KeyPauseBetweenOperationsMS: "Milliseconds to pause between operations",
	KeyCleanupBatchSize:         "Number of records checked per kind in a cleanup cycle",
	KeyVerificationBatchSize:    "Number of records cross-verified per cycle",
	KeyRequireVerification:      "Whether discovered entities must pass fact verification",
	KeyMinConfidenceThreshold:   "Minimum verification confidence to accept a discovered entity",
	KeyDuplicateSampleLimit:     "Number of records sampled per kind by the duplicate scan",
	KeyOrphanGraceDays:          "Days before a record without relations is reported as orphaned",
	KeyKindConcurrency:          "Entity kinds processed concurrently within one cycle",
}

// Defaults returns the built-in configuration.
func Defaults() Settings {
	return Settings{
		Enabled:                  true,
		MaxOperationsPerHour:     50,
		AIEnabled:                false,
		AIMaxCallsPerDay:         100,
		AIGenerateBios:           false,
		PriorityEntities:         []model.Kind{model.KindWrestler, model.KindEvent, model.KindPromotion},
		MinCompletenessScore:     40,
		DiscoveryBatchSize:       5,
		EnrichmentBatchSize:      10,
		ImageBatchSize:           10,
		PauseBetweenOperationsMS: 500,
		CleanupBatchSize:         100,
		VerificationBatchSize:    10,
		RequireVerification:      true,
		MinConfidenceThreshold:   0.6,
		DuplicateSampleLimit:     500,
		OrphanGraceDays:          30,
		KindConcurrency:          1,
	}
}

// Keys returns every known setting key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(descriptions))
	for k := range descriptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Known reports whether key is a recognised setting.
func Known(key string) bool {
	_, ok := descriptions[key]
	return ok
}

// Description returns the human description of key.
func Description(key string) string {
	return descriptions[key]
}

// Pause is the delay between per-record operations.
func (s Settings) Pause() time.Duration {
	return time.Duration(s.PauseBetweenOperationsMS) * time.Millisecond
}

// OrphanGrace is the age after which relation-less records are flagged.
func (s Settings) OrphanGrace() time.Duration {
	return time.Duration(s.OrphanGraceDays) * 24 * time.Hour
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	s.PriorityEntities = append([]model.Kind(nil), s.PriorityEntities...)
	return s
}

// fields maps each key to a pointer into s.
func (s *Settings) fields() map[string]any {
	return map[string]any{
		KeyEnabled:                  &s.Enabled,
		KeyMaxOperationsPerHour:     &s.MaxOperationsPerHour,
		KeyAIEnabled:                &s.AIEnabled,
		KeyAIMaxCallsPerDay:         &s.AIMaxCallsPerDay,
		KeyAIGenerateBios:           &s.AIGenerateBios,
		KeyPriorityEntities:         &s.PriorityEntities,
		KeyMinCompletenessScore:     &s.MinCompletenessScore,
		KeyDiscoveryBatchSize:       &s.DiscoveryBatchSize,
		KeyEnrichmentBatchSize:      &s.EnrichmentBatchSize,
		KeyImageBatchSize:           &s.ImageBatchSize,
		KeyPauseBetweenOperationsMS: &s.PauseBetweenOperationsMS,
		KeyCleanupBatchSize:         &s.CleanupBatchSize,
		KeyVerificationBatchSize:    &s.VerificationBatchSize,
		KeyRequireVerification:      &s.RequireVerification,
		KeyMinConfidenceThreshold:   &s.MinConfidenceThreshold,
		KeyDuplicateSampleLimit:     &s.DuplicateSampleLimit,
		KeyOrphanGraceDays:          &s.OrphanGraceDays,
		KeyKindConcurrency:          &s.KindConcurrency,
	}
}

// Value returns the JSON encoding of key's current value.
func (s Settings) Value(key string) (json.RawMessage, error) {
	ptr, ok := s.fields()[key]
	if !ok {
		return nil, eris.Errorf("settings: unknown key %q", key)
	}
	b, err := json.Marshal(ptr)
	if err != nil {
		return nil, eris.Wrapf(err, "settings: encode %s", key)
	}
	return b, nil
}

// With returns a copy of s with key set to raw. The result is validated for
// that key; s itself is never modified.
func (s Settings) With(key string, raw json.RawMessage) (Settings, error) {
	out := s.Clone()
	ptr, ok := out.fields()[key]
	if !ok {
		return s, eris.Errorf("settings: unknown key %q", key)
	}
	if err := json.Unmarshal(raw, ptr); err != nil {
		return s, eris.Wrapf(err, "settings: decode %s", key)
	}
	if msg := out.check(key); msg != "" {
		return s, eris.Errorf("settings: %s", msg)
	}
	return out, nil
}

// Merge applies rows over defaults. Rows with unknown keys are ignored;
// malformed or out-of-range values keep the default and log a warning.
func Merge(defaults Settings, rows []model.Setting) Settings {
	out := defaults.Clone()
	for _, row := range rows {
		if !Known(row.Key) {
			zap.L().Debug("settings: ignoring unknown key", zap.String("key", row.Key))
			continue
		}
		next, err := out.With(row.Key, row.Value)
		if err != nil {
			zap.L().Warn("settings: invalid value, using default",
				zap.String("key", row.Key),
				zap.ByteString("value", row.Value),
				zap.Error(err),
			)
			continue
		}
		out = next
	}
	return out
}

// Validate checks every value of s.
func (s Settings) Validate() error {
	var errs []string
	for _, key := range Keys() {
		if msg := s.check(key); msg != "" {
			errs = append(errs, msg)
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("settings: invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s Settings) check(key string) string {
	switch key {
	case KeyMaxOperationsPerHour:
		return nonNegative(key, s.MaxOperationsPerHour)
	case KeyAIMaxCallsPerDay:
		return nonNegative(key, s.AIMaxCallsPerDay)
	case KeyPriorityEntities:
		if len(s.PriorityEntities) == 0 {
			return key + " must not be empty"
		}
		seen := make(map[model.Kind]bool, len(s.PriorityEntities))
		for _, k := range s.PriorityEntities {
			if !k.Valid() {
				return fmt.Sprintf("%s: unknown kind %q", key, k)
			}
			if seen[k] {
				return fmt.Sprintf("%s: duplicate kind %q", key, k)
			}
			seen[k] = true
		}
	case KeyMinCompletenessScore:
		if s.MinCompletenessScore < 0 || s.MinCompletenessScore > 100 {
			return key + " must be between 0 and 100"
		}
	case KeyDiscoveryBatchSize:
		return batchSize(key, s.DiscoveryBatchSize)
	case KeyEnrichmentBatchSize:
		return batchSize(key, s.EnrichmentBatchSize)
	case KeyImageBatchSize:
		return batchSize(key, s.ImageBatchSize)
	case KeyCleanupBatchSize:
		return batchSize(key, s.CleanupBatchSize)
	case KeyVerificationBatchSize:
		return batchSize(key, s.VerificationBatchSize)
	case KeyDuplicateSampleLimit:
		return batchSize(key, s.DuplicateSampleLimit)
	case KeyPauseBetweenOperationsMS:
		if s.PauseBetweenOperationsMS < 0 || s.PauseBetweenOperationsMS > 60000 {
			return key + " must be between 0 and 60000"
		}
	case KeyMinConfidenceThreshold:
		if s.MinConfidenceThreshold < 0 || s.MinConfidenceThreshold > 1 {
			return key + " must be between 0 and 1"
		}
	case KeyOrphanGraceDays:
		return nonNegative(key, s.OrphanGraceDays)
	case KeyKindConcurrency:
		if s.KindConcurrency < 1 || s.KindConcurrency > len(model.Kinds) {
			return fmt.Sprintf("%s must be between 1 and %d", key, len(model.Kinds))
		}
	}
	return ""
}

func nonNegative(key string, v int) string {
	if v < 0 {
		return key + " must be >= 0"
	}
	return ""
}

func batchSize(key string, v int) string {
	if v < 1 || v > maxBatchSize {
		return fmt.Sprintf("%s must be between 1 and %d", key, maxBatchSize)
	}
	return ""
}
