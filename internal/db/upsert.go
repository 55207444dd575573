package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Merge decides how a conflicting row's column is updated.
type Merge int

const (
	// Replace overwrites the stored value.
	Replace Merge = iota
	// KeepNonEmpty overwrites only when the incoming text is not empty.
	KeepNonEmpty
	// Keep leaves the stored value untouched.
	Keep
)

// UpsertConfig describes a bulk upsert into Table.
type UpsertConfig struct {
	Table        string           // optionally schema-qualified
	Columns      []string         // columns of every row, in order
	ConflictKeys []string         // the unique constraint
	Merge        map[string]Merge // per-column rule; unlisted non-key columns are replaced
}

func (c UpsertConfig) validate() error {
	if len(c.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(c.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

// BulkUpsert copies rows into a transaction-scoped temp table shaped like
// Table and merges them with one INSERT ... ON CONFLICT statement. It
// returns the number of rows inserted or updated.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := stagingTable(cfg.Table)
	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{staging}.Sanitize(), sanitizeTable(cfg.Table))
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	tag, err := tx.Exec(ctx, mergeSQL(cfg, staging))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func stagingTable(table string) string {
	return "_tmp_upsert_" + strings.ReplaceAll(table, ".", "_")
}

// mergeSQL builds the INSERT ... SELECT ... ON CONFLICT statement that moves
// staged rows into the target table.
func mergeSQL(cfg UpsertConfig, staging string) string {
	target := sanitizeTable(cfg.Table)
	keys := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		keys[k] = true
	}

	var sets []string
	for _, col := range cfg.Columns {
		if keys[col] {
			continue
		}
		q := pgx.Identifier{col}.Sanitize()
		switch cfg.Merge[col] {
		case Keep:
			continue
		case KeepNonEmpty:
			sets = append(sets, fmt.Sprintf("%s = CASE WHEN EXCLUDED.%s = '' THEN %s.%s ELSE EXCLUDED.%s END", q, q, target, q, q))
		default:
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
		}
	}

	cols := quoteAndJoin(cfg.Columns)
	conflict := "DO NOTHING"
	if len(sets) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		target, cols, cols, pgx.Identifier{staging}.Sanitize(), quoteAndJoin(cfg.ConflictKeys), conflict)
}

// sanitizeTable quotes a table name, splitting "schema.table".
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
