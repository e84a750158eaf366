// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package querytables discovers which physical tables a set of SQL queries
// reads from. It asks PostgreSQL for the query plan rather than parsing SQL
// text, so views, CTEs, and set-returning functions resolve to the real
// relations underneath them. The result feeds cache-channel and surrogate-key
// generation for CDN invalidation.
package querytables

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// Table identifies one physical relation.
type Table struct {
	SchemaName string `json:"schema_name"`
	TableName  string `json:"table_name"`
}

// String returns the schema-qualified table name.
func (t Table) String() string {
	return t.SchemaName + "." + t.TableName
}

// SurrogateKey returns the CDN surrogate key for this table within a
// database: "t:" plus a short url-safe digest of dbname:schema.table.
func (t Table) SurrogateKey(dbname string) string {
	sum := md5.Sum([]byte(dbname + ":" + t.String()))
	return "t:" + base64.RawURLEncoding.EncodeToString(sum[:])[:10]
}

// Result is the set of tables a resolved map configuration depends on.
// Once computed for a content-addressed config token it never changes, so
// callers may cache and share it freely.
type Result struct {
	DBName string
	Tables []Table
}

// CacheChannel returns the invalidation channel string consumed by the
// caching proxies: "dbname:schema.table,schema.table" with tables sorted.
// A result with no tables degrades to the bare database name.
func (r *Result) CacheChannel() string {
	if len(r.Tables) == 0 {
		return r.DBName
	}
	names := make([]string, len(r.Tables))
	for i, t := range r.Tables {
		names[i] = t.String()
	}
	sort.Strings(names)
	return r.DBName + ":" + strings.Join(names, ",")
}

// SurrogateKeys returns one surrogate key per affected table, sorted.
func (r *Result) SurrogateKeys() []string {
	keys := make([]string, len(r.Tables))
	for i, t := range r.Tables {
		keys[i] = t.SurrogateKey(r.DBName)
	}
	sort.Strings(keys)
	return keys
}

// Introspector extracts affected tables from queries using EXPLAIN output.
type Introspector struct{}

// NewIntrospector creates a plan-based table introspector.
func NewIntrospector() *Introspector {
	return &Introspector{}
}

// GetAffectedTablesFromQuery plans every statement in the semicolon-joined
// query batch and collects the relations the plans scan. Statements are
// planned, never executed. The batch is produced by the affected-tables
// resolver, so splitting on ";" mirrors how it was joined.
func (in *Introspector) GetAffectedTablesFromQuery(ctx context.Context, db *sql.DB, batch string) (*Result, error) {
	var dbname string
	if err := db.QueryRowContext(ctx, `SELECT current_database()`).Scan(&dbname); err != nil {
		return nil, fmt.Errorf("resolve current database: %w", err)
	}

	seen := make(map[Table]bool)
	var tables []Table
	for _, stmt := range splitStatements(batch) {
		var plan []byte
		err := db.QueryRowContext(ctx, "EXPLAIN (VERBOSE true, FORMAT JSON) "+stmt).Scan(&plan)
		if err != nil {
			return nil, fmt.Errorf("explain query: %w", err)
		}
		planTables, err := tablesFromPlan(plan)
		if err != nil {
			return nil, fmt.Errorf("parse query plan: %w", err)
		}
		for _, t := range planTables {
			if !seen[t] {
				seen[t] = true
				tables = append(tables, t)
			}
		}
	}

	sort.Slice(tables, func(i, j int) bool {
		if tables[i].SchemaName != tables[j].SchemaName {
			return tables[i].SchemaName < tables[j].SchemaName
		}
		return tables[i].TableName < tables[j].TableName
	})

	return &Result{DBName: dbname, Tables: tables}, nil
}

// splitStatements breaks a semicolon-joined batch into trimmed, non-empty
// statements.
func splitStatements(batch string) []string {
	var stmts []string
	for _, s := range strings.Split(batch, ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// tablesFromPlan walks an EXPLAIN (FORMAT JSON) document and collects every
// node carrying a Relation Name. VERBOSE mode includes the schema.
func tablesFromPlan(plan []byte) ([]Table, error) {
	var doc []map[string]any
	if err := json.Unmarshal(plan, &doc); err != nil {
		return nil, err
	}
	var tables []Table
	for _, entry := range doc {
		if node, ok := entry["Plan"].(map[string]any); ok {
			walkPlanNode(node, &tables)
		}
	}
	return tables, nil
}

func walkPlanNode(node map[string]any, tables *[]Table) {
	if rel, ok := node["Relation Name"].(string); ok && rel != "" {
		schema, _ := node["Schema"].(string)
		if schema == "" {
			schema = "public"
		}
		*tables = append(*tables, Table{SchemaName: schema, TableName: rel})
	}
	if children, ok := node["Plans"].([]any); ok {
		for _, c := range children {
			if child, ok := c.(map[string]any); ok {
				walkPlanNode(child, tables)
			}
		}
	}
}
