// Package memory implements the persistent memory domain layer: categorised
// entries with content dedup, a markdown file format, capacity bounds, and an
// optional semantic index over embedding vectors.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Category classifies a memory entry.
type Category string

const (
	CategoryFilePattern   Category = "file_pattern"
	CategoryUserPref      Category = "user_pref"
	CategoryErrorSolution Category = "error_solution"
	CategoryGeneral       Category = "general"
)

// Categories lists every valid category in render order.
var Categories = []Category{
	CategoryFilePattern,
	CategoryUserPref,
	CategoryErrorSolution,
	CategoryGeneral,
}

// ParseCategory maps a string (category or plural topic form) onto a
// Category. Unknown values map to general.
func ParseCategory(s string) Category {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "file_pattern", "file_patterns":
		return CategoryFilePattern
	case "user_pref", "user_prefs", "user_preference", "user_preferences":
		return CategoryUserPref
	case "error_solution", "error_solutions":
		return CategoryErrorSolution
	default:
		return CategoryGeneral
	}
}

// Entry is one learned fact.
type Entry struct {
	ID        string
	Category  Category
	Content   string
	Timestamp time.Time
	Source    string
}

// NewEntry builds an entry with a derived 12-hex id. The id hashes the
// category, a content prefix, and the timestamp so re-learning the same fact
// later produces a distinct id while the store-level content hash still
// dedups identical content.
func NewEntry(category Category, content, source string, at time.Time) (*Entry, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("memory entry content is empty")
	}
	if at.IsZero() {
		at = time.Now()
	}
	// Minute precision matches the markdown header, keeping the derived id
	// stable across a format/parse round trip.
	at = at.UTC().Truncate(time.Minute)
	return &Entry{
		ID:        entryID(category, content, at),
		Category:  category,
		Content:   content,
		Timestamp: at,
		Source:    source,
	}, nil
}

func entryID(category Category, content string, at time.Time) string {
	prefix := content
	if len(prefix) > 64 {
		prefix = prefix[:64]
	}
	seed := string(category) + "|" + prefix + "|" + at.UTC().Format(time.RFC3339)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:12]
}
