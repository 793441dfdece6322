package store

import (
	"context"
	"strings"

	"solgate/internal/domain"
)

// IsReadOnlyQuery reports whether a generated statement is acceptable for
// direct execution: a single statement beginning with SELECT. This is a hard
// safety gate, not a style check; the statement runs verbatim when it passes.
func IsReadOnlyQuery(query string) bool {
	trimmed := strings.TrimSpace(query)
	trimmed = strings.TrimSuffix(trimmed, ";")
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, ";") {
		// Multiple statements: a SELECT prefix could smuggle a mutation.
		return false
	}
	return strings.HasPrefix(strings.ToLower(trimmed), "select")
}

// RunReadOnly gates and executes a generated query, returning rows as
// column-keyed maps. A gate rejection is returned unexecuted.
func (s *Store) RunReadOnly(ctx context.Context, query string) ([]map[string]any, error) {
	if !IsReadOnlyQuery(query) {
		return nil, domain.GateFailuref("refusing to execute non-SELECT query")
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		scans := make([]any, len(cols))
		for i := range values {
			scans[i] = &values[i]
		}
		if err := rows.Scan(scans...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			// The sqlite driver hands back []byte for text columns.
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
