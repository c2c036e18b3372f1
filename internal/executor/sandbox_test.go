package executor

import (
	"errors"
	"testing"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

func TestCheckStatementAcceptsReads(t *testing.T) {
	queries := []string{
		"SELECT 1",
		"select * from orders;",
		"  -- leading comment\nSELECT 1",
		"/* block /* nested */ comment */ SELECT 1",
		"WITH x AS (SELECT 1) SELECT * FROM x",
		"SELECT 'a; DELETE FROM t'",
		"SELECT $$;drop table t$$",
		"SELECT $body$ update $body$",
		`SELECT E'it\'s; drop'`,
		`SELECT "update" FROM t`,
		"SELECT pg_sleep(1.5)",
		"SELECT * FROM orders WHERE status = $1",
		"VALUES (1), (2)",
		"SHOW statement_timeout",
		"TABLE orders",
		"EXPLAIN SELECT * FROM orders",
		"EXPLAIN (FORMAT JSON) SELECT 1",
		"SELECT updated_at FROM inventory",
	}
	for _, q := range queries {
		stmt, err := CheckStatement(q, false)
		if err != nil {
			t.Errorf("CheckStatement(%q) = %v, want accepted", q, err)
			continue
		}
		if !stmt.ReadOnly {
			t.Errorf("CheckStatement(%q) not marked read-only", q)
		}
	}
}

func TestCheckStatementRejects(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"only separators", "  ;  ; "},
		{"only comment", "-- nothing here"},
		{"two statements", "SELECT 1; SELECT 2"},
		{"trailing write", "SELECT 1; DELETE FROM orders"},
		{"delete", "DELETE FROM orders"},
		{"update", "UPDATE orders SET status = 'x'"},
		{"ddl", "DROP TABLE orders"},
		{"writable cte", "WITH d AS (DELETE FROM t RETURNING *) SELECT * FROM d"},
		{"select into", "SELECT * INTO copy FROM orders"},
		{"row locks", "SELECT * FROM orders FOR UPDATE"},
		{"explain analyze write", "EXPLAIN ANALYZE DELETE FROM orders"},
		{"set", "SET statement_timeout = 0"},
		{"terminate backend", "SELECT pg_terminate_backend(42)"},
		{"set_config", "SELECT set_config('statement_timeout', '0', false)"},
		{"unterminated string", "SELECT 'abc"},
		{"unterminated comment", "SELECT 1 /* open"},
		{"unterminated identifier", `SELECT "abc`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CheckStatement(tt.query, false)
			if err == nil {
				t.Fatalf("CheckStatement(%q) accepted", tt.query)
			}
			var pe *model.Error
			if !errors.As(err, &pe) || pe.Kind != model.KindInvalidParameter || pe.Param != "query" {
				t.Errorf("error = %v, want InvalidParameterError on query", err)
			}
		})
	}
}

func TestCheckStatementAllowWrites(t *testing.T) {
	stmt, err := CheckStatement("DELETE FROM orders WHERE id = 1;", true)
	if err != nil {
		t.Fatalf("unsandboxed write rejected: %v", err)
	}
	if stmt.ReadOnly {
		t.Error("DELETE must not run in a read-only transaction")
	}
	if stmt.Text != "DELETE FROM orders WHERE id = 1" {
		t.Errorf("text = %q", stmt.Text)
	}

	if _, err := CheckStatement("SELECT 1; DELETE FROM orders", true); err == nil {
		t.Error("multiple statements must be refused even when unsandboxed")
	}
}
