package store

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wrestlebot/internal/model"
)

var fieldNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// dialect captures the SQL differences between the SQLite and Postgres stores.
type dialect struct {
	name     string
	ph       func(n int) string
	jsonText func(field string) string
	randomFn string
}

var sqliteDialect = dialect{
	name:     "sqlite",
	ph:       func(int) string { return "?" },
	jsonText: func(f string) string { return fmt.Sprintf("json_extract(fields, '$.%s')", f) },
	randomFn: "RANDOM()",
}

var postgresDialect = dialect{
	name:     "postgres",
	ph:       func(n int) string { return fmt.Sprintf("$%d", n) },
	jsonText: func(f string) string { return fmt.Sprintf("(fields->>'%s')", f) },
	randomFn: "random()",
}

// queryBuilder accumulates WHERE clauses and positional arguments.
type queryBuilder struct {
	d     dialect
	where []string
	args  []any
}

func (q *queryBuilder) arg(v any) string {
	q.args = append(q.args, v)
	return q.d.ph(len(q.args))
}

func (q *queryBuilder) list(vals []any) string {
	ph := make([]string, len(vals))
	for i, v := range vals {
		ph[i] = q.arg(v)
	}
	return strings.Join(ph, ", ")
}

// buildRecordQuery renders a SELECT over the records table for f.
func buildRecordQuery(d dialect, f Filter) (string, []any, error) {
	if !f.Kind.Valid() {
		return "", nil, eris.Errorf("%s: invalid kind %q", d.name, f.Kind)
	}
	q := &queryBuilder{d: d}
	q.where = append(q.where, "kind = "+q.arg(string(f.Kind)))

	if f.NameEquals != "" {
		q.where = append(q.where, "lower(name) = "+q.arg(strings.ToLower(f.NameEquals)))
	}
	if f.NameContains != "" {
		q.where = append(q.where, "lower(name) LIKE "+q.arg("%"+strings.ToLower(f.NameContains)+"%"))
	}

	var anyOf []string
	if len(f.NameIn) > 0 {
		vals := make([]any, len(f.NameIn))
		for i, n := range f.NameIn {
			vals[i] = strings.ToLower(n)
		}
		anyOf = append(anyOf, "lower(name) IN ("+q.list(vals)+")")
	}
	for _, p := range f.NamePrefixes {
		anyOf = append(anyOf, "lower(name) LIKE "+q.arg(strings.ToLower(p)+"%"))
	}
	if len(anyOf) > 0 {
		q.where = append(q.where, "("+strings.Join(anyOf, " OR ")+")")
	}

	if len(f.IDs) > 0 {
		vals := make([]any, len(f.IDs))
		for i, id := range f.IDs {
			vals[i] = id
		}
		q.where = append(q.where, "id IN ("+q.list(vals)+")")
	}

	if len(f.MissingAny) > 0 {
		var missing []string
		for _, field := range f.MissingAny {
			if !fieldNameRe.MatchString(field) {
				return "", nil, eris.Errorf("%s: invalid field name %q", d.name, field)
			}
			expr := d.jsonText(field)
			missing = append(missing, fmt.Sprintf("%s IS NULL OR %s = ''", expr, expr))
		}
		q.where = append(q.where, "("+strings.Join(missing, " OR ")+")")
	}

	query := "SELECT id, kind, name, fields, created_at, updated_at FROM records WHERE " + strings.Join(q.where, " AND ")

	switch f.OrderBy {
	case "", OrderID:
		query += " ORDER BY id"
	case OrderIDDesc:
		query += " ORDER BY id DESC"
	case OrderUpdatedAt:
		query += " ORDER BY updated_at, id"
	case OrderName:
		query += " ORDER BY lower(name), id"
	case OrderRandom:
		query += " ORDER BY " + d.randomFn
	default:
		return "", nil, eris.Errorf("%s: invalid order %q", d.name, f.OrderBy)
	}

	if f.Limit > 0 {
		query += " LIMIT " + q.arg(f.Limit)
	}
	if f.Offset > 0 {
		if f.Limit <= 0 && d.name == "sqlite" {
			// SQLite only accepts OFFSET after a LIMIT.
			query += " LIMIT -1"
		}
		query += " OFFSET " + q.arg(f.Offset)
	}
	return query, q.args, nil
}

// relationCountQuery renders a grouped count of links for a set of records.
func relationCountQuery(d dialect, kind model.Kind, ids []int64) (string, []any) {
	q := &queryBuilder{d: d}
	kindPH := q.arg(string(kind))
	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	return fmt.Sprintf(
		"SELECT entity_id, relation, COUNT(*) FROM record_links WHERE kind = %s AND entity_id IN (%s) GROUP BY entity_id, relation",
		kindPH, q.list(vals),
	), q.args
}

// mergeFields applies the changed fields of r onto stored, returning the JSON
// to persist. A changed field absent from r is removed.
func mergeFields(stored []byte, r *model.Record, changed []string) ([]byte, error) {
	current := map[string]any{}
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &current); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal stored fields")
		}
	}
	for _, f := range changed {
		if f == "name" {
			continue
		}
		if v, ok := r.Fields[f]; ok && v != nil {
			current[f] = v
		} else {
			delete(current, f)
		}
	}
	out, err := json.Marshal(current)
	return out, eris.Wrap(err, "store: marshal fields")
}

func marshalFields(r *model.Record) ([]byte, error) {
	fields := r.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	out, err := json.Marshal(fields)
	return out, eris.Wrap(err, "store: marshal fields")
}

func unmarshalFields(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal fields")
	}
	return fields, nil
}

func containsName(changed []string) bool {
	for _, c := range changed {
		if c == "name" {
			return true
		}
	}
	return false
}

func marshalDetails(d map[string]any) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	out, err := json.Marshal(d)
	return out, eris.Wrap(err, "store: marshal activity details")
}

func unmarshalDetails(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// aggregateActivity folds n ledger rows sharing the same attributes into stats.
func aggregateActivity(st *model.ActivityStats, action, kind, source string, success, ai bool, n int, durMS int64) {
	st.Total += n
	st.ByAction[action] += n
	st.ByKind[kind] += n
	st.BySource[source] += n
	if ai {
		st.AIAssisted += n
	}
	if !success {
		st.FailureCount += n
	}
	st.TotalDurMS += durMS
}

func newActivityStats() *model.ActivityStats {
	return &model.ActivityStats{
		ByAction: map[string]int{},
		ByKind:   map[string]int{},
		BySource: map[string]int{},
	}
}

// finishActivityStats computes the success rate as a percentage; an empty
// window reports 100.
func finishActivityStats(st *model.ActivityStats) {
	if st.Total == 0 {
		st.SuccessRate = 100
		return
	}
	st.SuccessRate = float64(st.Total-st.FailureCount) / float64(st.Total) * 100
}
