package dbconn

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"postgres-ssh-mcp/internal/core"
)

// fieldsOf converts pgx field descriptions into the tool-facing
// descriptor shape.
func fieldsOf(rows pgx.Rows) []core.FieldDescriptor {
	descs := rows.FieldDescriptions()
	out := make([]core.FieldDescriptor, len(descs))
	for i, d := range descs {
		out[i] = core.FieldDescriptor{Name: d.Name, Type: fmt.Sprintf("oid:%d", d.DataTypeOID)}
	}
	return out
}

// collectRows drains rows into a slice of column-name-keyed maps, up to
// limit rows. It reports whether more rows existed beyond limit so the
// caller can set QueryResult.Truncated. limit <= 0 means unlimited.
func collectRows(rows pgx.Rows, limit int) (result []map[string]any, fields []core.FieldDescriptor, truncated bool, err error) {
	fields = fieldsOf(rows)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, false, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(names))
		for i, n := range names {
			if i < len(vals) {
				row[n] = vals[i]
			}
		}
		result = append(result, row)
		if limit > 0 && len(result) > limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, false, err
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
		truncated = true
	}
	return result, fields, truncated, nil
}
