package tools

import (
	"context"
	"fmt"
	"strings"

	"postgres-ssh-mcp/internal/core"
	"postgres-ssh-mcp/internal/dbconn"
)

func executeQuerySpec(conn *dbconn.Manager) Spec {
	return Spec{
		Name:        "execute_query",
		Description: "Execute a SQL statement against the connected database and return its rows.",
		Inputs: []InputField{
			{Name: "sql", Type: "string", Required: true, Description: "SQL statement to execute"},
			{Name: "params", Type: "array", Description: "Positional parameters substituted for $1, $2, ..."},
		},
		Handler: func(ctx context.Context, args map[string]any) core.ToolResponse {
			sql, ok := getRequiredString(args, "sql")
			if !ok {
				return core.ErrorResult("sql is required")
			}

			result, err := conn.ExecuteQuery(ctx, sql, dbconn.QueryOptions{Params: getParams(args)})
			if err != nil {
				return toolError(err)
			}
			return core.TextResult(fmt.Sprintf("%d row(s) returned", result.RowCount), result)
		},
	}
}

func explainQuerySpec(conn *dbconn.Manager) Spec {
	return Spec{
		Name:        "explain_query",
		Description: "Show the planner's execution plan for a SQL statement, optionally running it to gather real timing via ANALYZE.",
		Inputs: []InputField{
			{Name: "sql", Type: "string", Required: true, Description: "SQL statement to explain"},
			{Name: "analyze", Type: "boolean", Default: false, Description: "Execute the statement and report actual run statistics"},
			{Name: "format", Type: "string", Default: "text", Description: "Plan output format: text, json, yaml, or xml"},
		},
		Handler: func(ctx context.Context, args map[string]any) core.ToolResponse {
			sql, ok := getRequiredString(args, "sql")
			if !ok {
				return core.ErrorResult("sql is required")
			}
			analyze := getBool(args, "analyze", false)
			format := getString(args, "format", "text")

			options := "FORMAT " + strings.ToUpper(format)
			if analyze {
				options = "ANALYZE, " + options
			}
			explainSQL := fmt.Sprintf("EXPLAIN (%s) %s", options, sql)

			result, err := conn.ExecuteQuery(ctx, explainSQL, dbconn.QueryOptions{ForceReadOnly: true})
			if err != nil {
				return toolError(err)
			}

			var sb strings.Builder
			for _, row := range result.Rows {
				if v, ok := row["QUERY PLAN"]; ok {
					fmt.Fprintln(&sb, v)
					continue
				}
				for _, v := range row {
					fmt.Fprintln(&sb, v)
					break
				}
			}
			plan := sb.String()
			return core.TextResult(plan, plan)
		},
	}
}
