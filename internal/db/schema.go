package db

// migrations is the ordered schema migration sequence. Version N is
// migrations[N-1]. Each step must be idempotent: re-running an applied step
// is harmless, so a crash between executing a step and recording it cannot
// wedge the schema.
var migrations = []string{
	// 1: core conversation tables.
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		title_source TEXT NOT NULL DEFAULT 'unset',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		user_id TEXT
	)`,

	// 2: messages, ordered by auto id within a session.
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		turn_number INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,

	// 3: message lookup index.
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id)`,

	// 4: categorised memory entries with dedup hash.
	`CREATE TABLE IF NOT EXISTS memory_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		user_id TEXT
	)`,

	// 5: memory dedup uniqueness.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_memory_dedup
		ON memory_entries(category, content_hash)`,

	// 6: embedding vectors.
	`CREATE TABLE IF NOT EXISTS vector_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content_hash TEXT NOT NULL UNIQUE,
		text TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		vector BLOB NOT NULL,
		dimensions INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,

	// 7: approvals for side-effectful tool executions.
	`CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		tool_name TEXT NOT NULL,
		arguments TEXT NOT NULL DEFAULT '{}',
		tool_scope TEXT NOT NULL DEFAULT '',
		created_at_utc DATETIME NOT NULL,
		applied_at_utc DATETIME,
		execution_status TEXT NOT NULL DEFAULT 'pending',
		undoable INTEGER NOT NULL DEFAULT 0,
		result_preview TEXT NOT NULL DEFAULT '',
		error_type TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		partial_scan INTEGER NOT NULL DEFAULT 0,
		audit_dir TEXT NOT NULL DEFAULT '',
		manifest_file TEXT NOT NULL DEFAULT '',
		patch_file TEXT NOT NULL DEFAULT '',
		repo_diff_before TEXT NOT NULL DEFAULT '',
		repo_diff_after TEXT NOT NULL DEFAULT '',
		changes TEXT NOT NULL DEFAULT '',
		binary_snapshots TEXT NOT NULL DEFAULT '',
		user_id TEXT,
		session_id TEXT
	)`,

	// 8: workspace file registry for manifest refresh.
	`CREATE TABLE IF NOT EXISTS workspace_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workspace TEXT NOT NULL,
		path TEXT NOT NULL,
		name TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		mtime_ns INTEGER NOT NULL DEFAULT 0,
		sheets_json TEXT NOT NULL DEFAULT '[]',
		scanned_at DATETIME NOT NULL,
		user_id TEXT,
		UNIQUE(workspace, path)
	)`,

	// 9: append-only tool call audit.
	`CREATE TABLE IF NOT EXISTS tool_call_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		turn INTEGER NOT NULL DEFAULT 0,
		iteration INTEGER NOT NULL DEFAULT 0,
		tool_name TEXT NOT NULL,
		arguments TEXT NOT NULL DEFAULT '{}',
		success INTEGER NOT NULL DEFAULT 1,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		user_id TEXT
	)`,

	// 10: append-only LLM call audit.
	`CREATE TABLE IF NOT EXISTS llm_call_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		turn INTEGER NOT NULL DEFAULT 0,
		iteration INTEGER NOT NULL DEFAULT 0,
		model TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		ttft_ms INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 1,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		user_id TEXT
	)`,

	// 11: session checkpoints, newest-20 retained per session.
	`CREATE TABLE IF NOT EXISTS session_checkpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		checkpoint_type TEXT NOT NULL DEFAULT 'turn',
		state_json TEXT NOT NULL DEFAULT '{}',
		task_list_json TEXT NOT NULL DEFAULT '[]',
		turn_number INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,

	// 12: per-session rules.
	`CREATE TABLE IF NOT EXISTS session_rules (
		session_id TEXT NOT NULL,
		rule_id TEXT NOT NULL,
		content TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, rule_id)
	)`,

	// 13: key-value configuration (global and per-user).
	`CREATE TABLE IF NOT EXISTS config_kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`,

	// 14
	`CREATE TABLE IF NOT EXISTS user_config_kv (
		user_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, key)
	)`,

	// 15: model profiles for provider routing.
	`CREATE TABLE IF NOT EXISTS model_profiles (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		base_url TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL,
		settings_json TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	)`,

	// 16: spreadsheet file registry with stable aliases.
	`CREATE TABLE IF NOT EXISTS file_registry (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		alias TEXT NOT NULL DEFAULT '',
		size_bytes INTEGER NOT NULL DEFAULT 0,
		mtime_ns INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		user_id TEXT
	)`,

	// 17
	`CREATE TABLE IF NOT EXISTS file_registry_aliases (
		alias TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,

	// 18
	`CREATE TABLE IF NOT EXISTS file_registry_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		event TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,

	// 19: session-scoped spreadsheet change tracking.
	`CREATE TABLE IF NOT EXISTS session_excel_diffs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		sheet_name TEXT NOT NULL DEFAULT '',
		diff_json TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	)`,

	// 20
	`CREATE TABLE IF NOT EXISTS session_affected_files (
		session_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		first_touched_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, file_path)
	)`,

	// 21
	`CREATE TABLE IF NOT EXISTS session_excel_previews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		sheet_name TEXT NOT NULL DEFAULT '',
		preview_json TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	)`,
}

// LatestSchemaVersion is the highest migration version this build knows.
func LatestSchemaVersion() int {
	return len(migrations)
}
