package db

import (
	"fmt"
	"strconv"
	"strings"
)

// Rewrite translates a statement written in the SQLite dialect into the
// active backend's dialect. SQLite statements pass through unchanged.
func (d *DB) Rewrite(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	return RewriteForPostgres(query)
}

// RewriteForPostgres converts a SQLite-dialect statement to Postgres:
//
//   - `?` placeholders become positional `$1`, `$2`, ...
//   - `INSERT OR IGNORE INTO t ...` becomes `INSERT INTO t ... ON CONFLICT DO NOTHING`
//   - `INSERT OR REPLACE INTO t (c0, c1, ...) VALUES ...` becomes
//     `INSERT INTO t (...) VALUES ... ON CONFLICT (c0) DO UPDATE SET c1 = EXCLUDED.c1, ...`
//     (single-column inserts degrade to `ON CONFLICT (c0) DO NOTHING`)
//   - common DDL type names are mapped (AUTOINCREMENT, BLOB, DATETIME)
func RewriteForPostgres(query string) string {
	query = rewriteUpsert(query)
	query = rewriteTypes(query)
	return rewritePlaceholders(query)
}

func rewritePlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inSingle := false
	inDouble := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch c {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
			b.WriteByte(c)
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
			b.WriteByte(c)
		case '?':
			if inSingle || inDouble {
				b.WriteByte(c)
				continue
			}
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func rewriteUpsert(query string) string {
	trimmed := strings.TrimSpace(query)
	upper := strings.ToUpper(trimmed)

	switch {
	case strings.HasPrefix(upper, "INSERT OR IGNORE INTO "):
		rest := trimmed[len("INSERT OR IGNORE INTO "):]
		return "INSERT INTO " + rest + " ON CONFLICT DO NOTHING"

	case strings.HasPrefix(upper, "INSERT OR REPLACE INTO "):
		rest := trimmed[len("INSERT OR REPLACE INTO "):]
		cols, ok := insertColumns(rest)
		if !ok || len(cols) == 0 {
			// No parseable column list; the safest translation is to ignore
			// the conflicting row rather than fail the statement.
			return "INSERT INTO " + rest + " ON CONFLICT DO NOTHING"
		}
		if len(cols) == 1 {
			return "INSERT INTO " + rest + fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", cols[0])
		}
		sets := make([]string, 0, len(cols)-1)
		for _, col := range cols[1:] {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
		return "INSERT INTO " + rest + fmt.Sprintf(
			" ON CONFLICT (%s) DO UPDATE SET %s", cols[0], strings.Join(sets, ", "))

	default:
		return query
	}
}

// insertColumns extracts the column list from "table (c0, c1, ...) VALUES ...".
func insertColumns(rest string) ([]string, bool) {
	open := strings.IndexByte(rest, '(')
	if open < 0 {
		return nil, false
	}
	depth := 0
	closeIdx := -1
	for i := open; i < len(rest); i++ {
		switch rest[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				closeIdx = i
			}
		}
		if closeIdx >= 0 {
			break
		}
	}
	if closeIdx < 0 {
		return nil, false
	}

	raw := strings.Split(rest[open+1:closeIdx], ",")
	cols := make([]string, 0, len(raw))
	for _, col := range raw {
		col = strings.TrimSpace(col)
		if col == "" {
			return nil, false
		}
		cols = append(cols, col)
	}
	return cols, true
}

var ddlReplacer = strings.NewReplacer(
	"INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY",
	"BLOB", "BYTEA",
	"DATETIME", "TIMESTAMPTZ",
)

func rewriteTypes(query string) string {
	upper := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(upper, "CREATE TABLE") && !strings.HasPrefix(upper, "ALTER TABLE") {
		return query
	}
	return ddlReplacer.Replace(query)
}
