package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/sheetflow/internal/engine"
	"github.com/haasonsaas/sheetflow/internal/observability"
	"github.com/haasonsaas/sheetflow/internal/store"
)

// maxDerivedTitle bounds the lazily derived session title.
const maxDerivedTitle = 80

// Snapshot is the engine state a persistence pass operates on.
type Snapshot struct {
	Messages      []openai.ChatCompletionMessage
	SnapshotIndex int
	Turn          int
	UserID        string
}

// TakeSnapshot captures the engine's persistable state.
func TakeSnapshot(eng *engine.Engine, userID string) Snapshot {
	return Snapshot{
		Messages:      eng.RawMessages(),
		SnapshotIndex: eng.SnapshotIndex(),
		Turn:          eng.Turn(),
		UserID:        userID,
	}
}

// Bridge moves engine state into the session and message stores. Writes are
// incremental: only messages past the snapshot index are persisted, and the
// session row is created lazily on the first write.
type Bridge struct {
	sessions *store.SessionStore
	messages *store.MessageStore
	logger   *observability.Logger
}

// NewBridge creates a persistence bridge.
func NewBridge(sessions *store.SessionStore, messages *store.MessageStore, logger *observability.Logger) *Bridge {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Bridge{sessions: sessions, messages: messages, logger: logger}
}

// Persist writes the engine's unpersisted messages and advances its snapshot
// index. Returns the number of messages written.
func (b *Bridge) Persist(ctx context.Context, sessionID string, eng *engine.Engine, userID string) (int, error) {
	snap := TakeSnapshot(eng, userID)
	if snap.SnapshotIndex >= len(snap.Messages) {
		return 0, nil
	}
	pending := snap.Messages[snap.SnapshotIndex:]

	if err := b.ensureSession(ctx, sessionID, snap.Messages); err != nil {
		return 0, err
	}

	rows := make([]*store.Message, 0, len(pending))
	for _, msg := range pending {
		content, err := json.Marshal(msg)
		if err != nil {
			return 0, fmt.Errorf("failed to encode message: %w", err)
		}
		rows = append(rows, &store.Message{
			SessionID:  sessionID,
			Role:       msg.Role,
			Content:    string(content),
			TurnNumber: snap.Turn,
		})
	}
	if err := b.messages.AppendBatch(ctx, rows); err != nil {
		return 0, err
	}
	eng.SetSnapshotIndex(len(snap.Messages))

	if err := b.sessions.Touch(ctx, sessionID); err != nil {
		b.logger.Warn(ctx, "failed to touch session", "session_id", sessionID, "error", err)
	}
	return len(pending), nil
}

// ensureSession creates the session row on first persist, deriving a
// provisional title from the first user message.
func (b *Bridge) ensureSession(ctx context.Context, sessionID string, msgs []openai.ChatCompletionMessage) error {
	_, err := b.sessions.Get(ctx, sessionID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrSessionNotFound) {
		return err
	}
	return b.sessions.Create(ctx, &store.Session{
		ID:    sessionID,
		Title: DeriveTitle(msgs),
	})
}

// DeriveTitle takes the first user message, trimmed to the title bound.
func DeriveTitle(msgs []openai.ChatCompletionMessage) string {
	for _, msg := range msgs {
		if msg.Role != openai.ChatMessageRoleUser {
			continue
		}
		title := strings.TrimSpace(msg.Content)
		if title == "" {
			continue
		}
		title = strings.Join(strings.Fields(title), " ")
		runes := []rune(title)
		if len(runes) > maxDerivedTitle {
			title = string(runes[:maxDerivedTitle])
		}
		return title
	}
	return "New session"
}

// Rollback discards the persisted conversation: messages are cleared and the
// engine's snapshot index returns to zero so the next persist rewrites from
// the start.
func (b *Bridge) Rollback(ctx context.Context, sessionID string, eng *engine.Engine) error {
	if err := b.messages.Clear(ctx, sessionID); err != nil {
		return err
	}
	eng.SetSnapshotIndex(0)
	return nil
}

// LoadMessages restores the persisted conversation for a session.
func (b *Bridge) LoadMessages(ctx context.Context, sessionID string) ([]openai.ChatCompletionMessage, error) {
	rows, err := b.messages.List(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	out := make([]openai.ChatCompletionMessage, 0, len(rows))
	for _, row := range rows {
		var msg openai.ChatCompletionMessage
		if err := json.Unmarshal([]byte(row.Content), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message %d: %w", row.ID, err)
		}
		out = append(out, msg)
	}
	return out, nil
}
