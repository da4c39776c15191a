package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/haasonsaas/sheetflow/internal/db"
)

// Stores bundles every per-domain store bound to one adapter and one
// optional user identity. A UserScope owns exactly one of these.
type Stores struct {
	Sessions    *SessionStore
	Messages    *MessageStore
	Memory      *MemoryStore
	Approvals   *ApprovalStore
	ToolCalls   *ToolCallLogStore
	LLMCalls    *LLMCallLogStore
	Vectors     *VectorStore
	Checkpoints *CheckpointStore
	Rules       *SessionRuleStore
	Files       *WorkspaceFileStore
	Registry    *FileRegistryStore
	Config      *ConfigStore
}

// New creates the full store set. userID may be empty for anonymous scope.
func New(d *db.DB, userID string) *Stores {
	return &Stores{
		Sessions:    NewSessionStore(d, userID),
		Messages:    NewMessageStore(d, userID),
		Memory:      NewMemoryStore(d, userID),
		Approvals:   NewApprovalStore(d, userID),
		ToolCalls:   NewToolCallLogStore(d, userID),
		LLMCalls:    NewLLMCallLogStore(d, userID),
		Vectors:     NewVectorStore(d),
		Checkpoints: NewCheckpointStore(d),
		Rules:       NewSessionRuleStore(d),
		Files:       NewWorkspaceFileStore(d, userID),
		Registry:    NewFileRegistryStore(d, userID),
		Config:      NewConfigStore(d, userID),
	}
}

// ContentHash returns the 16-hex dedup hash of text: SHA-256 over the
// whitespace-normalised content, prefixed with "userID::" when a user
// identity is bound so identical content from different users never collides.
func ContentHash(userID, text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if userID != "" {
		normalized = userID + "::" + normalized
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

// userFilter returns the SQL clause and bound arguments for a user_id column.
// Anonymous scope matches only rows with a NULL user_id.
func userFilter(userID string) (string, []any) {
	if userID == "" {
		return "user_id IS NULL", nil
	}
	return "user_id = ?", []any{userID}
}

// nullableUser converts an empty user id to a SQL NULL.
func nullableUser(userID string) any {
	if userID == "" {
		return nil
	}
	return userID
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
