package tools

import (
	"context"
	"fmt"

	"postgres-ssh-mcp/internal/core"
	"postgres-ssh-mcp/internal/dbconn"
)

func getConnectionStatusSpec(conn *dbconn.Manager) Spec {
	return Spec{
		Name:        "get_connection_status",
		Description: "Report the current tunnel and pool connection status.",
		Handler: func(ctx context.Context, args map[string]any) core.ToolResponse {
			status := conn.GetStatus()
			return core.TextResult(fmt.Sprintf("initialized=%v readOnly=%v", status.Initialized, status.ReadOnly), status)
		},
	}
}

func getDatabaseVersionSpec(conn *dbconn.Manager) Spec {
	return Spec{
		Name:        "get_database_version",
		Description: "Return the connected server's version string.",
		Handler: func(ctx context.Context, args map[string]any) core.ToolResponse {
			result, err := conn.ExecuteQuery(ctx, "SELECT version()", dbconn.QueryOptions{ForceReadOnly: true})
			if err != nil {
				return toolError(err)
			}
			if len(result.Rows) == 0 {
				return core.ErrorResult("server returned no version row")
			}
			version, _ := result.Rows[0]["version"].(string)
			return core.TextResult(version, version)
		},
	}
}

func getDatabaseSizeSpec(conn *dbconn.Manager) Spec {
	return Spec{
		Name:        "get_database_size",
		Description: "Report the current database's total size and its largest tables.",
		Inputs: []InputField{
			{Name: "limit", Type: "number", Default: 10, Description: "Maximum number of largest tables to return"},
		},
		Handler: func(ctx context.Context, args map[string]any) core.ToolResponse {
			limit := getInt(args, "limit", 10)

			dbSize, err := conn.ExecuteQuery(ctx,
				"SELECT pg_catalog.pg_size_pretty(pg_catalog.pg_database_size(current_database())) AS database_size",
				dbconn.QueryOptions{ForceReadOnly: true})
			if err != nil {
				return toolError(err)
			}

			sql := `SELECT c.relname AS table_name,
				pg_catalog.pg_size_pretty(pg_catalog.pg_total_relation_size(c.oid)) AS total_size,
				pg_catalog.pg_total_relation_size(c.oid) AS size_bytes
				FROM pg_catalog.pg_class c
				JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
				WHERE c.relkind = 'r' AND n.nspname NOT IN ('pg_catalog', 'information_schema')
				ORDER BY pg_catalog.pg_total_relation_size(c.oid) DESC
				LIMIT $1`
			largest, err := conn.ExecuteQuery(ctx, sql, dbconn.QueryOptions{
				ForceReadOnly: true,
				Params:        []core.QueryParam{core.AnyParam(int64(limit))},
			})
			if err != nil {
				return toolError(err)
			}

			var database string
			if len(dbSize.Rows) > 0 {
				database, _ = dbSize.Rows[0]["database_size"].(string)
			}
			out := map[string]any{"database": database, "largestTables": largest.Rows}
			return core.TextResult(fmt.Sprintf("database size %s, %d largest table(s)", database, len(largest.Rows)), out)
		},
	}
}

func getTableStatsSpec(conn *dbconn.Manager) Spec {
	return Spec{
		Name:        "get_table_stats",
		Description: "Return live activity statistics for a table from pg_stat_user_tables.",
		Inputs: []InputField{
			{Name: "schema", Type: "string", Default: "public", Description: "Schema containing the table"},
			{Name: "table", Type: "string", Required: true, Description: "Table name"},
		},
		Handler: func(ctx context.Context, args map[string]any) core.ToolResponse {
			schema := getString(args, "schema", "public")
			table, ok := getRequiredString(args, "table")
			if !ok {
				return core.ErrorResult("table is required")
			}

			sql := `SELECT schemaname, relname AS table_name, seq_scan, seq_tup_read,
				idx_scan, idx_tup_fetch, n_tup_ins, n_tup_upd, n_tup_del,
				n_live_tup, n_dead_tup, last_vacuum, last_autovacuum, last_analyze, last_autoanalyze
				FROM pg_catalog.pg_stat_user_tables
				WHERE schemaname = $1 AND relname = $2`
			result, err := conn.ExecuteQuery(ctx, sql, dbconn.QueryOptions{
				ForceReadOnly: true,
				Params:        []core.QueryParam{core.StringParam(schema), core.StringParam(table)},
			})
			if err != nil {
				return toolError(err)
			}
			if len(result.Rows) == 0 {
				out := map[string]any{"error": fmt.Sprintf("no statistics found for %s.%s", schema, table)}
				return core.TextResult(out["error"].(string), out)
			}
			return core.TextResult(fmt.Sprintf("stats for %s.%s", schema, table), result.Rows[0])
		},
	}
}

func listActiveConnectionsSpec(conn *dbconn.Manager) Spec {
	return Spec{
		Name:        "list_active_connections",
		Description: "List current backend connections from pg_stat_activity.",
		Inputs: []InputField{
			{Name: "includeIdle", Type: "boolean", Default: false, Description: "Include idle connections"},
		},
		Handler: func(ctx context.Context, args map[string]any) core.ToolResponse {
			includeIdle := getBool(args, "includeIdle", false)
			sql := `SELECT pid, usename, datname, client_addr, state, query, query_start, backend_start
				FROM pg_catalog.pg_stat_activity
				WHERE pid <> pg_backend_pid() AND ($1 OR state <> 'idle')
				ORDER BY backend_start`
			result, err := conn.ExecuteQuery(ctx, sql, dbconn.QueryOptions{
				ForceReadOnly: true,
				Params:        []core.QueryParam{core.AnyParam(includeIdle)},
			})
			if err != nil {
				return toolError(err)
			}
			return core.TextResult(fmt.Sprintf("%d connection(s)", result.RowCount), result.Rows)
		},
	}
}

func listLongRunningQueriesSpec(conn *dbconn.Manager) Spec {
	return Spec{
		Name:        "list_long_running_queries",
		Description: "List currently-executing queries that have been running at least minDurationSeconds.",
		Inputs: []InputField{
			{Name: "minDurationSeconds", Type: "number", Default: 5, Description: "Minimum query duration, in seconds, to include"},
		},
		Handler: func(ctx context.Context, args map[string]any) core.ToolResponse {
			minDuration := getInt(args, "minDurationSeconds", 5)
			sql := `SELECT pid, usename, datname, client_addr, state, query,
				EXTRACT(EPOCH FROM (now() - query_start)) AS duration_seconds
				FROM pg_catalog.pg_stat_activity
				WHERE state <> 'idle' AND query_start IS NOT NULL
					AND EXTRACT(EPOCH FROM (now() - query_start)) >= $1
				ORDER BY duration_seconds DESC`
			result, err := conn.ExecuteQuery(ctx, sql, dbconn.QueryOptions{
				ForceReadOnly: true,
				Params:        []core.QueryParam{core.AnyParam(int64(minDuration))},
			})
			if err != nil {
				return toolError(err)
			}
			return core.TextResult(fmt.Sprintf("%d long-running quer(y/ies)", result.RowCount), result.Rows)
		},
	}
}
