package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/wrestlebot/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection serializes writers and keeps in-memory databases alive.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, nowFunc: time.Now}, nil
}

// SetClock overrides the time source used for timestamps.
func (s *SQLiteStore) SetClock(now func() time.Time) { s.nowFunc = now }

func (s *SQLiteStore) now() time.Time { return s.nowFunc().UTC() }

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS records (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	name       TEXT NOT NULL,
	fields     TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS record_links (
	kind       TEXT NOT NULL,
	entity_id  INTEGER NOT NULL REFERENCES records(id) ON DELETE CASCADE,
	relation   TEXT NOT NULL,
	rel_kind   TEXT NOT NULL,
	rel_id     INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (kind, entity_id, relation, rel_kind, rel_id)
);

CREATE TABLE IF NOT EXISTS activity_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at  DATETIME NOT NULL,
	action      TEXT NOT NULL,
	kind        TEXT NOT NULL,
	entity_id   INTEGER NOT NULL,
	entity_name TEXT NOT NULL,
	source      TEXT NOT NULL,
	details     TEXT NOT NULL DEFAULT '{}',
	ai_assisted INTEGER NOT NULL DEFAULT 0,
	success     INTEGER NOT NULL DEFAULT 1,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	batch_id    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS bot_settings (
	key         TEXT PRIMARY KEY,
	value       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_stats (
	day               TEXT PRIMARY KEY,
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
	total_duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS response_cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_kind_name ON records(kind, name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_record_links_rel ON record_links(rel_kind, rel_id);
CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity_log(created_at);
CREATE INDEX IF NOT EXISTS idx_activity_entity ON activity_log(kind, entity_id);
CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);
`

// Migrate creates every table and index if missing.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Repository ---

func (s *SQLiteStore) GetByID(ctx context.Context, kind model.Kind, id int64) (*model.Record, error) {
	recs, err := s.Query(ctx, Filter{Kind: kind, IDs: []int64{id}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: %s %d", kind, id)
	}
	return recs[0], nil
}

func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]*model.Record, error) {
	query, args, err := buildRecordQuery(sqliteDialect, f)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query records")
	}
	defer rows.Close() //nolint:errcheck

	var out []*model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: query records iterate")
	}
	if err := s.loadRelations(ctx, f.Kind, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) loadRelations(ctx context.Context, kind model.Kind, recs []*model.Record) error {
	if len(recs) == 0 {
		return nil
	}
	byID := make(map[int64]*model.Record, len(recs))
	ids := make([]int64, len(recs))
	for i, r := range recs {
		byID[r.ID] = r
		ids[i] = r.ID
	}
	query, args := relationCountQuery(sqliteDialect, kind, ids)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "sqlite: count relations")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var (
			id       int64
			relation string
			n        int
		)
		if err := rows.Scan(&id, &relation, &n); err != nil {
			return eris.Wrap(err, "sqlite: scan relation count")
		}
		if r := byID[id]; r != nil {
			r.Relations[relation] = n
		}
	}
	return eris.Wrap(rows.Err(), "sqlite: count relations iterate")
}

func (s *SQLiteStore) Save(ctx context.Context, r *model.Record, changed []string) error {
	if !r.Kind.Valid() {
		return eris.Errorf("sqlite: invalid kind %q", r.Kind)
	}
	now := s.now()
	if r.ID == 0 {
		fields, err := marshalFields(r)
		if err != nil {
			return err
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO records (kind, name, fields, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			string(r.Kind), r.Name, string(fields), now, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert %s %q", r.Kind, r.Name)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return eris.Wrap(err, "sqlite: last insert id")
		}
		r.ID = id
		r.CreatedAt, r.UpdatedAt = now, now
		if r.Relations == nil {
			r.Relations = map[string]int{}
		}
		return nil
	}

	if len(changed) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save")
	}
	defer tx.Rollback() //nolint:errcheck

	var stored string
	err = tx.QueryRowContext(ctx, `SELECT fields FROM records WHERE id = ? AND kind = ?`, r.ID, string(r.Kind)).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %d", r.Kind, r.ID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: load %s %d", r.Kind, r.ID)
	}
	merged, err := mergeFields([]byte(stored), r, changed)
	if err != nil {
		return err
	}
	if containsName(changed) {
		_, err = tx.ExecContext(ctx, `UPDATE records SET name = ?, fields = ?, updated_at = ? WHERE id = ?`,
			r.Name, string(merged), now, r.ID)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE records SET fields = ?, updated_at = ? WHERE id = ?`,
			string(merged), now, r.ID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: update %s %d", r.Kind, r.ID)
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit save")
	}
	r.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, kind model.Kind, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ? AND kind = ?`, id, string(kind))
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete %s %d", kind, id)
	}
	if err := checkRowsAffected(res, string(kind), id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM record_links WHERE (kind = ? AND entity_id = ?) OR (rel_kind = ? AND rel_id = ?)`,
		string(kind), id, string(kind), id,
	); err != nil {
		return eris.Wrapf(err, "sqlite: delete links of %s %d", kind, id)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete")
}

func (s *SQLiteStore) CountRelated(ctx context.Context, kind model.Kind, id int64, relation string) (int, error) {
	query := `SELECT COUNT(*) FROM (
		SELECT rel_kind, rel_id FROM record_links WHERE kind = ? AND entity_id = ?
		UNION
		SELECT kind, entity_id FROM record_links WHERE rel_kind = ? AND rel_id = ?
	)`
	args := []any{string(kind), id, string(kind), id}
	if relation != "" {
		query = `SELECT COUNT(*) FROM record_links WHERE kind = ? AND entity_id = ? AND relation = ?`
		args = []any{string(kind), id, relation}
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "sqlite: count related %s %d", kind, id)
	}
	return n, nil
}

func (s *SQLiteStore) Link(ctx context.Context, kind model.Kind, id int64, relation string, relKind model.Kind, relID int64) error {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin link")
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT OR IGNORE INTO record_links (kind, entity_id, relation, rel_kind, rel_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, string(kind), id, relation, string(relKind), relID, now); err != nil {
		return eris.Wrapf(err, "sqlite: link %s %d %s", kind, id, relation)
	}
	if inv := model.InverseRelation(kind, relation); inv != "" {
		if _, err := tx.ExecContext(ctx, insert, string(relKind), relID, inv, string(kind), id, now); err != nil {
			return eris.Wrapf(err, "sqlite: link %s %d %s", relKind, relID, inv)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit link")
}

// --- Activity ledger ---

func (s *SQLiteStore) AppendActivity(ctx context.Context, e *model.ActivityEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	details, err := marshalDetails(e.Details)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_log (created_at, action, kind, entity_id, entity_name, source, details, ai_assisted, success, error, duration_ms, batch_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CreatedAt.UTC(), string(e.Action), string(e.Kind), e.EntityID, e.EntityName, e.Source,
		string(details), e.AIAssisted, e.Success, e.Error, e.DurationMS, e.BatchID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: append activity")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: activity id")
	}
	e.ID = id
	return nil
}

func (s *SQLiteStore) ListActivity(ctx context.Context, f model.ActivityFilter) ([]model.ActivityEntry, error) {
	query := `SELECT id, created_at, action, kind, entity_id, entity_name, source, details, ai_assisted, success, error, duration_ms, batch_id
		FROM activity_log WHERE 1=1`
	var args []any
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since.UTC())
	}
	if f.Action != "" {
		query += ` AND action = ?`
		args = append(args, string(f.Action))
	}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	if f.EntityID != 0 {
		query += ` AND entity_id = ?`
		args = append(args, f.EntityID)
	}
	if f.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, f.BatchID)
	}
	query += ` ORDER BY id DESC`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list activity")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ActivityEntry
	for rows.Next() {
		var (
			e       model.ActivityEntry
			action  string
			kind    string
			details string
		)
		if err := rows.Scan(&e.ID, &e.CreatedAt, &action, &kind, &e.EntityID, &e.EntityName, &e.Source,
			&details, &e.AIAssisted, &e.Success, &e.Error, &e.DurationMS, &e.BatchID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		e.Action = model.Action(action)
		e.Kind = model.Kind(kind)
		e.Details = unmarshalDetails([]byte(details))
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list activity iterate")
}

func (s *SQLiteStore) ActivityStats(ctx context.Context, since time.Time) (*model.ActivityStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action, kind, source, success, ai_assisted, duration_ms FROM activity_log WHERE created_at >= ?`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: activity stats")
	}
	defer rows.Close() //nolint:errcheck

	st := newActivityStats()
	for rows.Next() {
		var (
			action, kind, source string
			success, ai          bool
			dur                  int64
		)
		if err := rows.Scan(&action, &kind, &source, &success, &ai, &dur); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity stats")
		}
		aggregateActivity(st, action, kind, source, success, ai, 1, dur)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: activity stats iterate")
	}
	finishActivityStats(st)
	return st, nil
}

func (s *SQLiteStore) CountActivity(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activity_log WHERE created_at >= ? AND action != ?`,
		since.UTC(), string(model.ActionError),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count activity")
}

// --- Runtime settings ---

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (*model.Setting, error) {
	var (
		st    model.Setting
		value string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, value, description, updated_at FROM bot_settings WHERE key = ?`, key,
	).Scan(&st.Key, &value, &st.Description, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: setting %q", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get setting %q", key)
	}
	st.Value = []byte(value)
	return &st, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, st model.Setting) error {
	return s.SetSettings(ctx, []model.Setting{st})
}

// SetSettings upserts every setting in one transaction.
func (s *SQLiteStore) SetSettings(ctx context.Context, settings []model.Setting) error {
	if len(settings) == 0 {
		return nil
	}
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin settings")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, st := range settings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bot_settings (key, value, description, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value,
			   description = CASE WHEN excluded.description = '' THEN bot_settings.description ELSE excluded.description END,
			   updated_at = excluded.updated_at`,
			st.Key, string(st.Value), st.Description, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: set setting %q", st.Key)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit settings")
}

func (s *SQLiteStore) ListSettings(ctx context.Context) ([]model.Setting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, description, updated_at FROM bot_settings ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list settings")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Setting
	for rows.Next() {
		var (
			st    model.Setting
			value string
		)
		if err := rows.Scan(&st.Key, &value, &st.Description, &st.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan setting")
		}
		st.Value = []byte(value)
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list settings iterate")
}

// --- Daily statistics ---

func (s *SQLiteStore) IncrementDailyStats(ctx context.Context, d model.DailyStats) error {
	day := d.Date
	if day.IsZero() {
		day = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_stats (day, cycles_run, discoveries, enrichments, images_added, verifications, cleanups,
		   errors, fact_calls, image_calls, results_calls, ai_calls, total_duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(day) DO UPDATE SET
		   cycles_run = cycles_run + excluded.cycles_run,
		   discoveries = discoveries + excluded.discoveries,
		   enrichments = enrichments + excluded.enrichments,
		   images_added = images_added + excluded.images_added,
		   verifications = verifications + excluded.verifications,
		   cleanups = cleanups + excluded.cleanups,
		   errors = errors + excluded.errors,
		   fact_calls = fact_calls + excluded.fact_calls,
		   image_calls = image_calls + excluded.image_calls,
		   results_calls = results_calls + excluded.results_calls,
		   ai_calls = ai_calls + excluded.ai_calls,
		   total_duration_ms = total_duration_ms + excluded.total_duration_ms`,
		model.Day(day).Format(model.DateLayout), d.CyclesRun, d.Discoveries, d.Enrichments, d.ImagesAdded,
		d.Verifications, d.Cleanups, d.Errors, d.FactCalls, d.ImageCalls, d.ResultsCalls, d.AICalls, d.TotalDurationMS,
	)
	return eris.Wrap(err, "sqlite: increment daily stats")
}

func (s *SQLiteStore) GetDailyStats(ctx context.Context, day time.Time) (*model.DailyStats, error) {
	d := model.DailyStats{Date: model.Day(day)}
	err := s.db.QueryRowContext(ctx,
		`SELECT cycles_run, discoveries, enrichments, images_added, verifications, cleanups, errors,
		   fact_calls, image_calls, results_calls, ai_calls, total_duration_ms
		 FROM daily_stats WHERE day = ?`,
		d.Date.Format(model.DateLayout),
	).Scan(&d.CyclesRun, &d.Discoveries, &d.Enrichments, &d.ImagesAdded, &d.Verifications, &d.Cleanups, &d.Errors,
		&d.FactCalls, &d.ImageCalls, &d.ResultsCalls, &d.AICalls, &d.TotalDurationMS)
	if errors.Is(err, sql.ErrNoRows) {
		return &d, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get daily stats")
	}
	return &d, nil
}

// --- Response cache ---

func (s *SQLiteStore) GetCached(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM response_cache WHERE key = ? AND expires_at > ?`, key, s.now(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get cached")
	}
	return value, true, nil
}

func (s *SQLiteStore) SetCached(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO response_cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, s.now().Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached")
}

func (s *SQLiteStore) DeleteExpiredCache(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, s.now())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired cache")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", kind, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.Record, error) {
	var (
		r      model.Record
		kind   string
		fields string
	)
	if err := row.Scan(&r.ID, &kind, &r.Name, &fields, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan record")
	}
	r.Kind = model.Kind(kind)
	m, err := unmarshalFields([]byte(fields))
	if err != nil {
		return nil, err
	}
	r.Fields = m
	r.Relations = map[string]int{}
	return &r, nil
}
