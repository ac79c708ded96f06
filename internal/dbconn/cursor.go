package dbconn

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"

	"postgres-ssh-mcp/internal/core"
)

// runWithCursor executes sql inside tx via a server-side cursor, fetching
// at most maxRows+1 rows so truncation can be detected without a second
// round trip, then closes the cursor. It is used whenever the statement
// is cursor-eligible (see sqlsafety.CursorEligible).
func runWithCursor(ctx context.Context, tx pgx.Tx, sql string, args []any, maxRows int) (*core.QueryResult, error) {
	name := cursorName()

	if _, err := tx.Exec(ctx, fmt.Sprintf("DECLARE %s CURSOR FOR %s", name, sql), args...); err != nil {
		return nil, fmt.Errorf("declare cursor: %w", err)
	}

	rows, err := tx.Query(ctx, fmt.Sprintf("FETCH %d FROM %s", maxRows+1, name))
	if err != nil {
		return nil, fmt.Errorf("fetch cursor: %w", err)
	}
	result, fields, truncated, err := collectRows(rows, maxRows)
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("read cursor results: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("CLOSE %s", name)); err != nil {
		return nil, fmt.Errorf("close cursor: %w", err)
	}

	return &core.QueryResult{
		Rows:      result,
		RowCount:  len(result),
		Truncated: truncated,
		Fields:    fields,
	}, nil
}

func cursorName() string {
	return fmt.Sprintf("mcp_cursor_%d_%d", time.Now().UnixNano(), rand.Int63()) //nolint:gosec // cursor identifier, not a security token
}
