package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/wrestlebot/internal/db"
	"github.com/sells-group/wrestlebot/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	nowFunc func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists the hot-path queries prepared on each new
// connection.
var preparedStatements = map[string]string{
	"count_related":   countRelatedSQL,
	"insert_activity": insertActivitySQL,
	"get_cached":      `SELECT value FROM response_cache WHERE key = $1 AND expires_at > $2`,
	"set_cached":      setCachedSQL,
}

// countRelatedSQL counts distinct records linked to or from a record.
const countRelatedSQL = `SELECT COUNT(*) FROM (
	SELECT rel_kind, rel_id FROM record_links WHERE kind = $1 AND entity_id = $2
	UNION
	SELECT kind, entity_id FROM record_links WHERE rel_kind = $1 AND rel_id = $2) linked`

const insertActivitySQL = `INSERT INTO activity_log (created_at, action, kind, entity_id, entity_name, source, details, ai_assisted, success, error, duration_ms, batch_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`

const setCachedSQL = `INSERT INTO response_cache (key, value, expires_at) VALUES ($1, $2, $3)
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, nowFunc: time.Now}, nil
}

// SetClock overrides the time source used for timestamps.
func (s *PostgresStore) SetClock(now func() time.Time) { s.nowFunc = now }

func (s *PostgresStore) now() time.Time {
	if s.nowFunc == nil {
		return time.Now().UTC()
	}
	return s.nowFunc().UTC()
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS records (
	id         BIGSERIAL PRIMARY KEY,
	kind       TEXT NOT NULL,
	name       TEXT NOT NULL,
	fields     JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS record_links (
	kind       TEXT NOT NULL,
	entity_id  BIGINT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
	relation   TEXT NOT NULL,
	rel_kind   TEXT NOT NULL,
	rel_id     BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, entity_id, relation, rel_kind, rel_id)
);

CREATE TABLE IF NOT EXISTS activity_log (
	id          BIGSERIAL PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	action      TEXT NOT NULL,
	kind        TEXT NOT NULL,
	entity_id   BIGINT NOT NULL,
	entity_name TEXT NOT NULL,
	source      TEXT NOT NULL,
	details     JSONB NOT NULL DEFAULT '{}'::jsonb,
	ai_assisted BOOLEAN NOT NULL DEFAULT false,
	success     BOOLEAN NOT NULL DEFAULT true,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	batch_id    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS bot_settings (
	key         TEXT PRIMARY KEY,
	value       JSONB NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS daily_stats (
	day               DATE PRIMARY KEY,
	cycles_run        INTEGER NOT NULL DEFAULT 0,
	discoveries       INTEGER NOT NULL DEFAULT 0,
	enrichments       INTEGER NOT NULL DEFAULT 0,
	images_added      INTEGER NOT NULL DEFAULT 0,
	verifications     INTEGER NOT NULL DEFAULT 0,
	cleanups          INTEGER NOT NULL DEFAULT 0,
	errors            INTEGER NOT NULL DEFAULT 0,
	fact_calls        INTEGER NOT NULL DEFAULT 0,
	image_calls       INTEGER NOT NULL DEFAULT 0,
	results_calls     INTEGER NOT NULL DEFAULT 0,
	ai_calls          INTEGER NOT NULL DEFAULT 0,
	total_duration_ms BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS response_cache (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_kind_name ON records(kind, lower(name));
CREATE INDEX IF NOT EXISTS idx_record_links_rel ON record_links(rel_kind, rel_id);
CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity_log(created_at);
CREATE INDEX IF NOT EXISTS idx_activity_entity ON activity_log(kind, entity_id);
CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Repository ---

func (s *PostgresStore) GetByID(ctx context.Context, kind model.Kind, id int64) (*model.Record, error) {
	recs, err := s.Query(ctx, Filter{Kind: kind, IDs: []int64{id}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "postgres: %s %d", kind, id)
	}
	return recs[0], nil
}

func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]*model.Record, error) {
	query, args, err := buildRecordQuery(postgresDialect, f)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query records")
	}
	defer rows.Close()

	var out []*model.Record
	for rows.Next() {
		var (
			r      model.Record
			kind   string
			fields []byte
		)
		if err := rows.Scan(&r.ID, &kind, &r.Name, &fields, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		r.Kind = model.Kind(kind)
		if r.Fields, err = unmarshalFields(fields); err != nil {
			return nil, err
		}
		r.Relations = map[string]int{}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: query records iterate")
	}
	if err := s.loadRelations(ctx, f.Kind, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) loadRelations(ctx context.Context, kind model.Kind, recs []*model.Record) error {
	if len(recs) == 0 {
		return nil
	}
	byID := make(map[int64]*model.Record, len(recs))
	ids := make([]int64, len(recs))
	for i, r := range recs {
		byID[r.ID] = r
		ids[i] = r.ID
	}
	query, args := relationCountQuery(postgresDialect, kind, ids)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "postgres: count relations")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id       int64
			relation string
			n        int
		)
		if err := rows.Scan(&id, &relation, &n); err != nil {
			return eris.Wrap(err, "postgres: scan relation count")
		}
		if r := byID[id]; r != nil {
			r.Relations[relation] = n
		}
	}
	return eris.Wrap(rows.Err(), "postgres: count relations iterate")
}

func (s *PostgresStore) Save(ctx context.Context, r *model.Record, changed []string) error {
	if !r.Kind.Valid() {
		return eris.Errorf("postgres: invalid kind %q", r.Kind)
	}
	now := s.now()
	if r.ID == 0 {
		fields, err := marshalFields(r)
		if err != nil {
			return err
		}
		err = s.pool.QueryRow(ctx,
			`INSERT INTO records (kind, name, fields, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			string(r.Kind), r.Name, fields, now, now,
		).Scan(&r.ID)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert %s %q", r.Kind, r.Name)
		}
		r.CreatedAt, r.UpdatedAt = now, now
		if r.Relations == nil {
			r.Relations = map[string]int{}
		}
		return nil
	}

	if len(changed) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var stored []byte
	err = tx.QueryRow(ctx, `SELECT fields FROM records WHERE id = $1 AND kind = $2 FOR UPDATE`, r.ID, string(r.Kind)).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: %s %d", r.Kind, r.ID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: load %s %d", r.Kind, r.ID)
	}
	merged, err := mergeFields(stored, r, changed)
	if err != nil {
		return err
	}
	if containsName(changed) {
		_, err = tx.Exec(ctx, `UPDATE records SET name = $1, fields = $2, updated_at = $3 WHERE id = $4`,
			r.Name, merged, now, r.ID)
	} else {
		_, err = tx.Exec(ctx, `UPDATE records SET fields = $1, updated_at = $2 WHERE id = $3`,
			merged, now, r.ID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: update %s %d", r.Kind, r.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit save")
	}
	r.UpdatedAt = now
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, kind model.Kind, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin delete")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `DELETE FROM records WHERE id = $1 AND kind = $2`, id, string(kind))
	if err != nil {
		return eris.Wrapf(err, "postgres: delete %s %d", kind, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: %s %d", kind, id)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM record_links WHERE rel_kind = $1 AND rel_id = $2`, string(kind), id,
	); err != nil {
		return eris.Wrapf(err, "postgres: delete links of %s %d", kind, id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit delete")
}

func (s *PostgresStore) CountRelated(ctx context.Context, kind model.Kind, id int64, relation string) (int, error) {
	var (
		n   int
		err error
	)
	if relation == "" {
		err = s.pool.QueryRow(ctx, "count_related", string(kind), id).Scan(&n)
	} else {
		err = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM record_links WHERE kind = $1 AND entity_id = $2 AND relation = $3`,
			string(kind), id, relation,
		).Scan(&n)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: count related %s %d", kind, id)
	}
	return n, nil
}

func (s *PostgresStore) Link(ctx context.Context, kind model.Kind, id int64, relation string, relKind model.Kind, relID int64) error {
	now := s.now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin link")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insert = `INSERT INTO record_links (kind, entity_id, relation, rel_kind, rel_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`
	if _, err := tx.Exec(ctx, insert, string(kind), id, relation, string(relKind), relID, now); err != nil {
		return eris.Wrapf(err, "postgres: link %s %d %s", kind, id, relation)
	}
	if inv := model.InverseRelation(kind, relation); inv != "" {
		if _, err := tx.Exec(ctx, insert, string(relKind), relID, inv, string(kind), id, now); err != nil {
			return eris.Wrapf(err, "postgres: link %s %d %s", relKind, relID, inv)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit link")
}

// --- Activity ledger ---

func (s *PostgresStore) AppendActivity(ctx context.Context, e *model.ActivityEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	details, err := marshalDetails(e.Details)
	if err != nil {
		return err
	}
	err = s.pool.QueryRow(ctx, "insert_activity",
		e.CreatedAt.UTC(), string(e.Action), string(e.Kind), e.EntityID, e.EntityName, e.Source,
		details, e.AIAssisted, e.Success, e.Error, e.DurationMS, e.BatchID,
	).Scan(&e.ID)
	return eris.Wrap(err, "postgres: append activity")
}

func (s *PostgresStore) ListActivity(ctx context.Context, f model.ActivityFilter) ([]model.ActivityEntry, error) {
	query := `SELECT id, created_at, action, kind, entity_id, entity_name, source, details, ai_assisted, success, error, duration_ms, batch_id
		FROM activity_log WHERE true`
	args := []any{}
	argIdx := 1

	if !f.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, f.Since.UTC())
		argIdx++
	}
	if f.Action != "" {
		query += fmt.Sprintf(` AND action = $%d`, argIdx)
		args = append(args, string(f.Action))
		argIdx++
	}
	if f.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(f.Kind))
		argIdx++
	}
	if f.EntityID != 0 {
		query += fmt.Sprintf(` AND entity_id = $%d`, argIdx)
		args = append(args, f.EntityID)
		argIdx++
	}
	if f.BatchID != "" {
		query += fmt.Sprintf(` AND batch_id = $%d`, argIdx)
		args = append(args, f.BatchID)
		argIdx++
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list activity")
	}
	defer rows.Close()

	var out []model.ActivityEntry
	for rows.Next() {
		var (
			e       model.ActivityEntry
			action  string
			kind    string
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.CreatedAt, &action, &kind, &e.EntityID, &e.EntityName, &e.Source,
			&details, &e.AIAssisted, &e.Success, &e.Error, &e.DurationMS, &e.BatchID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity")
		}
		e.Action = model.Action(action)
		e.Kind = model.Kind(kind)
		e.Details = unmarshalDetails(details)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list activity iterate")
}

func (s *PostgresStore) ActivityStats(ctx context.Context, since time.Time) (*model.ActivityStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT action, kind, source, success, ai_assisted, COUNT(*), COALESCE(SUM(duration_ms), 0)
		 FROM activity_log WHERE created_at >= $1
		 GROUP BY action, kind, source, success, ai_assisted`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: activity stats")
	}
	defer rows.Close()

	st := newActivityStats()
	for rows.Next() {
		var (
			action, kind, source string
			success, ai          bool
			n                    int
			dur                  int64
		)
		if err := rows.Scan(&action, &kind, &source, &success, &ai, &n, &dur); err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity stats")
		}
		aggregateActivity(st, action, kind, source, success, ai, n, dur)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: activity stats iterate")
	}
	finishActivityStats(st)
	return st, nil
}

func (s *PostgresStore) CountActivity(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM activity_log WHERE created_at >= $1 AND action <> $2`,
		since.UTC(), string(model.ActionError),
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count activity")
}

// --- Runtime settings ---

func (s *PostgresStore) GetSetting(ctx context.Context, key string) (*model.Setting, error) {
	var st model.Setting
	err := s.pool.QueryRow(ctx,
		`SELECT key, value, description, updated_at FROM bot_settings WHERE key = $1`, key,
	).Scan(&st.Key, &st.Value, &st.Description, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: setting %q", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get setting %q", key)
	}
	return &st, nil
}

func (s *PostgresStore) SetSetting(ctx context.Context, st model.Setting) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bot_settings (key, value, description, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value,
		   description = CASE WHEN EXCLUDED.description = '' THEN bot_settings.description ELSE EXCLUDED.description END,
		   updated_at = EXCLUDED.updated_at`,
		st.Key, []byte(st.Value), st.Description, s.now(),
	)
	return eris.Wrapf(err, "postgres: set setting %q", st.Key)
}

// SetSettings bulk-upserts settings through a COPY into a temp table.
func (s *PostgresStore) SetSettings(ctx context.Context, settings []model.Setting) error {
	now := s.now()
	rows := make([][]any, len(settings))
	for i, st := range settings {
		rows[i] = []any{st.Key, []byte(st.Value), st.Description, now}
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "bot_settings",
		Columns:      []string{"key", "value", "description", "updated_at"},
		ConflictKeys: []string{"key"},
		Merge:        map[string]db.Merge{"description": db.KeepNonEmpty},
	}, rows)
	return eris.Wrap(err, "postgres: set settings")
}

func (s *PostgresStore) ListSettings(ctx context.Context) ([]model.Setting, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value, description, updated_at FROM bot_settings ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list settings")
	}
	defer rows.Close()

	var out []model.Setting
	for rows.Next() {
		var st model.Setting
		if err := rows.Scan(&st.Key, &st.Value, &st.Description, &st.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan setting")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list settings iterate")
}

// --- Daily statistics ---

func (s *PostgresStore) IncrementDailyStats(ctx context.Context, d model.DailyStats) error {
	day := d.Date
	if day.IsZero() {
		day = s.now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO daily_stats AS ds (day, cycles_run, discoveries, enrichments, images_added, verifications, cleanups,
		   errors, fact_calls, image_calls, results_calls, ai_calls, total_duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (day) DO UPDATE SET
		   cycles_run = ds.cycles_run + EXCLUDED.cycles_run,
		   discoveries = ds.discoveries + EXCLUDED.discoveries,
		   enrichments = ds.enrichments + EXCLUDED.enrichments,
		   images_added = ds.images_added + EXCLUDED.images_added,
		   verifications = ds.verifications + EXCLUDED.verifications,
		   cleanups = ds.cleanups + EXCLUDED.cleanups,
		   errors = ds.errors + EXCLUDED.errors,
		   fact_calls = ds.fact_calls + EXCLUDED.fact_calls,
		   image_calls = ds.image_calls + EXCLUDED.image_calls,
		   results_calls = ds.results_calls + EXCLUDED.results_calls,
		   ai_calls = ds.ai_calls + EXCLUDED.ai_calls,
		   total_duration_ms = ds.total_duration_ms + EXCLUDED.total_duration_ms`,
		model.Day(day), d.CyclesRun, d.Discoveries, d.Enrichments, d.ImagesAdded,
		d.Verifications, d.Cleanups, d.Errors, d.FactCalls, d.ImageCalls, d.ResultsCalls, d.AICalls, d.TotalDurationMS,
	)
	return eris.Wrap(err, "postgres: increment daily stats")
}

func (s *PostgresStore) GetDailyStats(ctx context.Context, day time.Time) (*model.DailyStats, error) {
	d := model.DailyStats{Date: model.Day(day)}
	err := s.pool.QueryRow(ctx,
		`SELECT cycles_run, discoveries, enrichments, images_added, verifications, cleanups, errors,
		   fact_calls, image_calls, results_calls, ai_calls, total_duration_ms
		 FROM daily_stats WHERE day = $1`,
		d.Date,
	).Scan(&d.CyclesRun, &d.Discoveries, &d.Enrichments, &d.ImagesAdded, &d.Verifications, &d.Cleanups, &d.Errors,
		&d.FactCalls, &d.ImageCalls, &d.ResultsCalls, &d.AICalls, &d.TotalDurationMS)
	if errors.Is(err, pgx.ErrNoRows) {
		return &d, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get daily stats")
	}
	return &d, nil
}

// --- Response cache ---

func (s *PostgresStore) GetCached(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, "get_cached", key, s.now()).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: get cached")
	}
	return value, true, nil
}

func (s *PostgresStore) SetCached(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.pool.Exec(ctx, "set_cached", key, value, s.now().Add(ttl))
	return eris.Wrap(err, "postgres: set cached")
}

func (s *PostgresStore) DeleteExpiredCache(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM response_cache WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired cache")
	}
	return int(tag.RowsAffected()), nil
}
