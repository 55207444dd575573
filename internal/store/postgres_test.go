package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wrestlebot/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := &PostgresStore{pool: mock, nowFunc: func() time.Time { return now }}
	return s, mock
}

var recordCols = []string{"id", "kind", "name", "fields", "created_at", "updated_at"}

func TestPostgresStore_GetByID(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, kind, name, fields, created_at, updated_at FROM records WHERE kind = \$1 AND id IN \(\$2\) ORDER BY id LIMIT \$3`).
		WithArgs("wrestler", int64(7), 1).
		WillReturnRows(pgxmock.NewRows(recordCols).
			AddRow(int64(7), "wrestler", "Bret Hart", []byte(`{"hometown":"Calgary"}`), ts, ts))
	mock.ExpectQuery(`SELECT entity_id, relation, COUNT\(\*\) FROM record_links WHERE kind = \$1 AND entity_id IN \(\$2\)`).
		WithArgs("wrestler", int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"entity_id", "relation", "count"}).
			AddRow(int64(7), "matches", 12))

	r, err := s.GetByID(context.Background(), model.KindWrestler, 7)
	require.NoError(t, err)
	assert.Equal(t, "Bret Hart", r.Name)
	assert.Equal(t, "Calgary", r.Text(model.FieldHometown))
	assert.Equal(t, 12, r.Related(model.RelMatches))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByID_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM records WHERE kind = \$1 AND id IN`).
		WithArgs("venue", int64(404), 1).
		WillReturnRows(pgxmock.NewRows(recordCols))

	_, err := s.GetByID(context.Background(), model.KindVenue, 404)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO records \(kind, name, fields, created_at, updated_at\) VALUES .* RETURNING id`).
		WithArgs("event", "WrestleMania", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(31)))

	r := model.NewRecord(model.KindEvent, "WrestleMania")
	require.NoError(t, s.Save(context.Background(), r, nil))
	assert.Equal(t, int64(31), r.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRecordMergesFields(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT fields FROM records WHERE id = \$1 AND kind = \$2 FOR UPDATE`).
		WithArgs(int64(5), "wrestler").
		WillReturnRows(pgxmock.NewRows([]string{"fields"}).AddRow([]byte(`{"hometown":"Calgary"}`)))
	mock.ExpectExec(`UPDATE records SET fields = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs([]byte(`{"debut_year":1990,"hometown":"Calgary"}`), pgxmock.AnyArg(), int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	r := model.NewRecord(model.KindWrestler, "Owen")
	r.ID = 5
	r.Set(model.FieldDebutYear, 1990)
	require.NoError(t, s.Save(context.Background(), r, []string{model.FieldDebutYear}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateMissingRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT fields FROM records`).
		WithArgs(int64(5), "wrestler").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	r := model.NewRecord(model.KindWrestler, "Owen")
	r.ID = 5
	err := s.Save(context.Background(), r, []string{model.FieldHometown})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM records WHERE id = \$1 AND kind = \$2`).
		WithArgs(int64(3), "wrestler").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM record_links WHERE rel_kind = \$1 AND rel_id = \$2`).
		WithArgs("wrestler", int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	require.NoError(t, s.Delete(context.Background(), model.KindWrestler, 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountRelated(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`count_related`).
		WithArgs("wrestler", int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM record_links WHERE kind = \$1 AND entity_id = \$2 AND relation = \$3`).
		WithArgs("wrestler", int64(3), "matches").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	n, err := s.CountRelated(context.Background(), model.KindWrestler, 3, "")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	n, err = s.CountRelated(context.Background(), model.KindWrestler, 3, model.RelMatches)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LinkWritesInverse(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO record_links`).
		WithArgs("event", int64(1), "promotion", "promotion", int64(2), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO record_links`).
		WithArgs("promotion", int64(2), "events", "event", int64(1), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Link(context.Background(), model.KindEvent, 1, model.RelPromotion, model.KindPromotion, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendActivity(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`insert_activity`).
		WithArgs(pgxmock.AnyArg(), "enrich", "wrestler", int64(9), "Edge", "wikipedia",
			[]byte(`{"updated_fields":["hometown"]}`), false, true, "", int64(15), "batch-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(100)))

	e := &model.ActivityEntry{
		Action: model.ActionEnrich, Kind: model.KindWrestler, EntityID: 9, EntityName: "Edge",
		Source: "wikipedia", Details: map[string]any{"updated_fields": []string{"hometown"}},
		Success: true, DurationMS: 15, BatchID: "batch-1",
	}
	require.NoError(t, s.AppendActivity(context.Background(), e))
	assert.Equal(t, int64(100), e.ID)
	assert.False(t, e.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ActivityStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT action, kind, source, success, ai_assisted, COUNT\(\*\), COALESCE\(SUM\(duration_ms\), 0\)`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"action", "kind", "source", "success", "ai_assisted", "count", "sum"}).
			AddRow("enrich", "wrestler", "wikipedia", true, false, 3, int64(300)).
			AddRow("error", "wrestler", "wikipedia", false, false, 1, int64(5)).
			AddRow("discover", "event", "cagematch", true, true, 1, int64(50)))

	st, err := s.ActivityStats(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 3, st.ByAction["enrich"])
	assert.Equal(t, 4, st.ByKind["wrestler"])
	assert.Equal(t, 1, st.AIAssisted)
	assert.Equal(t, 1, st.FailureCount)
	assert.InDelta(t, 80.0, st.SuccessRate, 0.001)
	assert.Equal(t, int64(355), st.TotalDurMS)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSetting_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT key, value, description, updated_at FROM bot_settings WHERE key = \$1`).
		WithArgs("enabled").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSetting(context.Background(), "enabled")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetSetting_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO bot_settings .* ON CONFLICT \(key\) DO UPDATE`).
		WithArgs("ai_enabled", []byte(`true`), "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetSetting(context.Background(), model.Setting{Key: "ai_enabled", Value: json.RawMessage(`true`)})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetSettings_Bulk(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_bot_settings"}, []string{"key", "value", "description", "updated_at"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "bot_settings" .* ON CONFLICT \("key"\) DO UPDATE SET "value" = EXCLUDED."value", "description" = CASE WHEN EXCLUDED."description" = '' THEN "bot_settings"."description" ELSE EXCLUDED."description" END, "updated_at" = EXCLUDED."updated_at"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := s.SetSettings(context.Background(), []model.Setting{
		{Key: "enabled", Value: json.RawMessage(`true`)},
		{Key: "discovery_batch_size", Value: json.RawMessage(`3`)},
	})
	require.NoError(t, err)
}

func TestPostgresStore_IncrementDailyStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO daily_stats AS ds .* ON CONFLICT \(day\) DO UPDATE SET`).
		WithArgs(day, 1, 2, 3, 0, 0, 0, 0, 0, 0, 0, 4, int64(1000)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.IncrementDailyStats(context.Background(), model.DailyStats{
		CyclesRun: 1, Discoveries: 2, Enrichments: 3, AICalls: 4, TotalDurationMS: 1000,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCached(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`get_cached`).
		WithArgs("missing", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`get_cached`).
		WithArgs("hit", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte("payload")))

	_, ok, err := s.GetCached(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := s.GetCached(context.Background(), "hit")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetCached(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	expires := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`set_cached`).
		WithArgs("k", []byte("v"), expires).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SetCached(context.Background(), "k", []byte("v"), 24*time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredCache(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM response_cache WHERE expires_at <= \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := s.DeleteExpiredCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
