package tools

import (
	"context"
	"fmt"
	"sync"

	"postgres-ssh-mcp/internal/core"
	"postgres-ssh-mcp/internal/dbconn"
)

func listSchemasSpec(conn *dbconn.Manager) Spec {
	return Spec{
		Name:        "list_schemas",
		Description: "List schemas in the connected database.",
		Inputs: []InputField{
			{Name: "includeSystem", Type: "boolean", Default: false, Description: "Include pg_catalog, information_schema, and pg_toast schemas"},
		},
		Handler: func(ctx context.Context, args map[string]any) core.ToolResponse {
			includeSystem := getBool(args, "includeSystem", false)
			sql := `SELECT n.nspname AS schema_name,
				pg_catalog.pg_get_userbyid(n.nspowner) AS schema_owner,
				CASE WHEN n.nspname LIKE 'pg\_%' OR n.nspname = 'information_schema'
					THEN 'system' ELSE 'user' END AS schema_type
				FROM pg_catalog.pg_namespace n
				WHERE $1 OR (n.nspname NOT LIKE 'pg\_%' AND n.nspname <> 'information_schema')
				ORDER BY n.nspname`

			result, err := conn.ExecuteQuery(ctx, sql, dbconn.QueryOptions{
				ForceReadOnly: true,
				Params:        []core.QueryParam{core.AnyParam(includeSystem)},
			})
			if err != nil {
				return toolError(err)
			}
			return core.TextResult(fmt.Sprintf("%d schema(s)", result.RowCount), result.Rows)
		},
	}
}

func listTablesSpec(conn *dbconn.Manager) Spec {
	return Spec{
		Name:        "list_tables",
		Description: "List tables (and optionally views) in a schema, with estimated row counts and on-disk size.",
		Inputs: []InputField{
			{Name: "schema", Type: "string", Default: "public", Description: "Schema to list"},
			{Name: "includeViews", Type: "boolean", Default: false, Description: "Include views and materialized views"},
		},
		Handler: func(ctx context.Context, args map[string]any) core.ToolResponse {
			schema := getString(args, "schema", "public")
			relkinds := []string{"r"}
			if getBool(args, "includeViews", false) {
				relkinds = append(relkinds, "v", "m")
			}

			sql := `SELECT c.relname AS table_name,
				CASE c.relkind
					WHEN 'r' THEN 'table'
					WHEN 'v' THEN 'view'
					WHEN 'm' THEN 'materialized_view'
					ELSE c.relkind::text
				END AS table_type,
				c.reltuples::bigint AS estimated_row_count,
				pg_catalog.pg_size_pretty(pg_catalog.pg_total_relation_size(c.oid)) AS total_size
				FROM pg_catalog.pg_class c
				JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
				WHERE n.nspname = $1 AND c.relkind = ANY ($2)
				ORDER BY c.relname`

			result, err := conn.ExecuteQuery(ctx, sql, dbconn.QueryOptions{
				ForceReadOnly: true,
				Params: []core.QueryParam{
					core.StringParam(schema),
					core.AnyParam(relkinds),
				},
			})
			if err != nil {
				return toolError(err)
			}
			return core.TextResult(fmt.Sprintf("%d table(s) in schema %s", result.RowCount, schema), result.Rows)
		},
	}
}

func listDatabasesSpec(conn *dbconn.Manager) Spec {
	return Spec{
		Name:        "list_databases",
		Description: "List non-template databases visible on the server.",
		Handler: func(ctx context.Context, args map[string]any) core.ToolResponse {
			sql := `SELECT d.datname AS name,
				pg_catalog.pg_get_userbyid(d.datdba) AS owner,
				pg_catalog.pg_encoding_to_char(d.encoding) AS encoding,
				d.datcollate AS collation,
				pg_catalog.pg_size_pretty(pg_catalog.pg_database_size(d.datname)) AS size
				FROM pg_catalog.pg_database d
				WHERE d.datistemplate = false
				ORDER BY d.datname`

			result, err := conn.ExecuteQuery(ctx, sql, dbconn.QueryOptions{ForceReadOnly: true})
			if err != nil {
				return toolError(err)
			}
			return core.TextResult(fmt.Sprintf("%d database(s)", result.RowCount), result.Rows)
		},
	}
}

// constraint is the merged shape for one constraint: its name, type, and
// the ordered list of columns it covers.
type constraint struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Columns []string `json:"columns"`
}

type describedTable struct {
	Table struct {
		Schema string `json:"schema"`
		Name   string `json:"name"`
	} `json:"table"`
	Columns     []map[string]any `json:"columns"`
	Constraints []constraint     `json:"constraints"`
	Indexes     []map[string]any `json:"indexes"`
}

func describeTableSpec(conn *dbconn.Manager) Spec {
	return Spec{
		Name:        "describe_table",
		Description: "Describe a table's columns, constraints, and indexes.",
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

			columns, constraints, indexes, err := fetchTableDescription(ctx, conn, schema, table)
			if err != nil {
				return toolError(err)
			}

			out := describedTable{Columns: columns, Constraints: constraints, Indexes: indexes}
			out.Table.Schema = schema
			out.Table.Name = table
			return core.TextResult(fmt.Sprintf("described %s.%s", schema, table), out)
		},
	}
}

// fetchTableDescription runs the three description queries concurrently
// and merges the constraint rows by constraint name. Pool sharing means
// this is equivalent in outcome to running them sequentially; running
// them concurrently simply overlaps their latency.
func fetchTableDescription(ctx context.Context, conn *dbconn.Manager, schema, table string) ([]map[string]any, []constraint, []map[string]any, error) {
	var (
		wg                       sync.WaitGroup
		columns, indexes         []map[string]any
		rawConstraints           []map[string]any
		colErr, conErr, idxErr   error
	)
	wg.Add(3)

	go func() {
		defer wg.Done()
		sql := `SELECT column_name, data_type, is_nullable, column_default
			FROM information_schema.columns
			WHERE table_schema = $1 AND table_name = $2
			ORDER BY ordinal_position`
		res, err := conn.ExecuteQuery(ctx, sql, dbconn.QueryOptions{
			ForceReadOnly: true,
			Params:        []core.QueryParam{core.StringParam(schema), core.StringParam(table)},
		})
		if err != nil {
			colErr = err
			return
		}
		columns = res.Rows
	}()

	go func() {
		defer wg.Done()
		sql := `SELECT tc.constraint_name, tc.constraint_type, kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
			WHERE tc.table_schema = $1 AND tc.table_name = $2
			ORDER BY tc.constraint_name, kcu.ordinal_position`
		res, err := conn.ExecuteQuery(ctx, sql, dbconn.QueryOptions{
			ForceReadOnly: true,
			Params:        []core.QueryParam{core.StringParam(schema), core.StringParam(table)},
		})
		if err != nil {
			conErr = err
			return
		}
		rawConstraints = res.Rows
	}()

	go func() {
		defer wg.Done()
		sql := `SELECT indexname, indexdef
			FROM pg_catalog.pg_indexes
			WHERE schemaname = $1 AND tablename = $2
			ORDER BY indexname`
		res, err := conn.ExecuteQuery(ctx, sql, dbconn.QueryOptions{
			ForceReadOnly: true,
			Params:        []core.QueryParam{core.StringParam(schema), core.StringParam(table)},
		})
		if err != nil {
			idxErr = err
			return
		}
		indexes = res.Rows
	}()

	wg.Wait()
	if colErr != nil {
		return nil, nil, nil, colErr
	}
	if conErr != nil {
		return nil, nil, nil, conErr
	}
	if idxErr != nil {
		return nil, nil, nil, idxErr
	}

	return columns, mergeConstraints(rawConstraints), indexes, nil
}

func mergeConstraints(rows []map[string]any) []constraint {
	order := make([]string, 0)
	byName := make(map[string]*constraint)
	for _, row := range rows {
		name, _ := row["constraint_name"].(string)
		ctype, _ := row["constraint_type"].(string)
		col, _ := row["column_name"].(string)

		c, ok := byName[name]
		if !ok {
			c = &constraint{Name: name, Type: ctype}
			byName[name] = c
			order = append(order, name)
		}
		if col != "" {
			c.Columns = append(c.Columns, col)
		}
	}
	out := make([]constraint, len(order))
	for i, name := range order {
		out[i] = *byName[name]
	}
	return out
}
