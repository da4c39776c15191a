// Package store implements the per-domain persistence layer. Every store
// takes a shared db adapter plus an optional user identity; queries over
// user-owned tables are filtered to that identity (or to anonymous rows when
// no identity is bound).
package store

import "time"

// TitleSource records how a session title was assigned.
type TitleSource string

const (
	// TitleSourceUnset means no title has been assigned yet.
	TitleSourceUnset TitleSource = "unset"

	// TitleSourceAuto means the title was synthesised from conversation content.
	TitleSourceAuto TitleSource = "auto"

	// TitleSourceUser means the user set the title explicitly. Auto synthesis
	// never overwrites a user title.
	TitleSourceUser TitleSource = "user"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	// SessionActive is the default state for a live conversation.
	SessionActive SessionStatus = "active"

	// SessionArchived marks a session hidden from the default listing.
	SessionArchived SessionStatus = "archived"
)

// Session is one persistent conversation.
type Session struct {
	ID           string
	Title        string
	TitleSource  TitleSource
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
	Status       SessionStatus
	UserID       string
}

// Message is one persisted conversation message. Content holds the
// JSON-serialised original message so the engine can restore it losslessly.
type Message struct {
	ID         int64
	SessionID  string
	Role       string
	Content    string
	TurnNumber int
	CreatedAt  time.Time
}

// ApprovalStatus tracks the execution state of an approved tool call.
// Status only advances pending -> success or pending -> failed.
type ApprovalStatus string

const (
	ApprovalPending ApprovalStatus = "pending"
	ApprovalSuccess ApprovalStatus = "success"
	ApprovalFailed  ApprovalStatus = "failed"
)

// Approval records a side-effectful tool execution with its audit artefacts.
type Approval struct {
	ID              string
	ToolName        string
	Arguments       string
	ToolScope       string
	CreatedAtUTC    time.Time
	AppliedAtUTC    time.Time
	ExecutionStatus ApprovalStatus
	Undoable        bool
	ResultPreview   string
	ErrorType       string
	ErrorMessage    string
	PartialScan     bool
	AuditDir        string
	ManifestFile    string
	PatchFile       string
	RepoDiffBefore  string
	RepoDiffAfter   string
	Changes         string
	BinarySnapshots string
	UserID          string
	SessionID       string
}

// ToolCallLog is one append-only tool audit row.
type ToolCallLog struct {
	ID         int64
	SessionID  string
	Turn       int
	Iteration  int
	ToolName   string
	Arguments  string
	Success    bool
	DurationMS int64
	Error      string
	CreatedAt  time.Time
}

// LLMCallLog is one append-only LLM audit row.
type LLMCallLog struct {
	ID               int64
	SessionID        string
	Turn             int
	Iteration        int
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	TTFTMS           int64
	Success          bool
	Error            string
	CreatedAt        time.Time
}

// VectorRecord is one embedded text with its fixed-dimension vector.
type VectorRecord struct {
	ID          int64
	ContentHash string
	Text        string
	Metadata    string
	Vector      []float32
	Dimensions  int
	CreatedAt   time.Time
}

// Checkpoint is a serialised session state snapshot taken after a turn.
type Checkpoint struct {
	ID             int64
	SessionID      string
	CheckpointType string
	StateJSON      string
	TaskListJSON   string
	TurnNumber     int
	CreatedAt      time.Time
}

// SessionRule is a per-session prompt rule persisted in the database.
type SessionRule struct {
	SessionID string
	RuleID    string
	Content   string
	Enabled   bool
	CreatedAt time.Time
}

// WorkspaceFile is one scanned spreadsheet file in a workspace manifest.
type WorkspaceFile struct {
	ID         int64
	Workspace  string
	Path       string
	Name       string
	SizeBytes  int64
	MTimeNS    int64
	SheetsJSON string
	ScannedAt  time.Time
	UserID     string
}

// RegistryFile is one entry in the stable-alias file registry.
type RegistryFile struct {
	ID        int64
	Path      string
	Alias     string
	SizeBytes int64
	MTimeNS   int64
	CreatedAt time.Time
	UserID    string
}

// RegistryEvent is one append-only file registry event.
type RegistryEvent struct {
	ID        int64
	Path      string
	Event     string
	Detail    string
	CreatedAt time.Time
}
