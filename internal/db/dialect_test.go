package db

import (
	"strings"
	"testing"
)

func TestRewritePlaceholders(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "simple",
			in:   "SELECT * FROM sessions WHERE id = ?",
			want: "SELECT * FROM sessions WHERE id = $1",
		},
		{
			name: "multiple",
			in:   "INSERT INTO t (a, b, c) VALUES (?, ?, ?)",
			want: "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)",
		},
		{
			name: "question mark inside string literal",
			in:   "SELECT '?' FROM t WHERE a = ?",
			want: "SELECT '?' FROM t WHERE a = $1",
		},
		{
			name: "no placeholders",
			in:   "SELECT 1",
			want: "SELECT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rewritePlaceholders(tt.in)
			if got != tt.want {
				t.Errorf("rewritePlaceholders(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRewriteUpsert(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "insert or ignore",
			in:   "INSERT OR IGNORE INTO memory_entries (category, content) VALUES (?, ?)",
			want: "INSERT INTO memory_entries (category, content) VALUES (?, ?) ON CONFLICT DO NOTHING",
		},
		{
			name: "insert or replace multi column",
			in:   "INSERT OR REPLACE INTO config_kv (key, value, updated_at) VALUES (?, ?, ?)",
			want: "INSERT INTO config_kv (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at",
		},
		{
			name: "insert or replace single column",
			in:   "INSERT OR REPLACE INTO t (col) VALUES (?)",
			want: "INSERT INTO t (col) VALUES (?) ON CONFLICT (col) DO NOTHING",
		},
		{
			name: "plain insert unchanged",
			in:   "INSERT INTO t (a) VALUES (?)",
			want: "INSERT INTO t (a) VALUES (?)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rewriteUpsert(tt.in)
			if got != tt.want {
				t.Errorf("rewriteUpsert() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRewriteForPostgres(t *testing.T) {
	in := "INSERT OR REPLACE INTO config_kv (key, value) VALUES (?, ?)"
	got := RewriteForPostgres(in)
	want := "INSERT INTO config_kv (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value"
	if got != want {
		t.Errorf("RewriteForPostgres() = %q, want %q", got, want)
	}
}

func TestRewriteTypesDDLOnly(t *testing.T) {
	ddl := "CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY AUTOINCREMENT, v BLOB, at DATETIME)"
	got := rewriteTypes(ddl)
	if !strings.Contains(got, "BIGSERIAL PRIMARY KEY") {
		t.Errorf("expected BIGSERIAL in %q", got)
	}
	if !strings.Contains(got, "BYTEA") {
		t.Errorf("expected BYTEA in %q", got)
	}
	if !strings.Contains(got, "TIMESTAMPTZ") {
		t.Errorf("expected TIMESTAMPTZ in %q", got)
	}

	dml := "SELECT 'BLOB' FROM t"
	if rewriteTypes(dml) != dml {
		t.Errorf("non-DDL statement should pass through unchanged")
	}
}
