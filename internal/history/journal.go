package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"nixmate/internal/operation"
	"nixmate/pkg/logging"
)

// DefaultLimit is how many records Recent returns when asked for none.
const DefaultLimit = 20

// Record is one journal row.
type Record struct {
	OperationID  string             `json:"operation_id"`
	Kind         operation.Kind     `json:"kind"`
	Options      operation.Options  `json:"options,omitempty"`
	Success      bool               `json:"success"`
	Message      string             `json:"message"`
	DurationMS   float64            `json:"duration_ms"`
	CacheHit     bool               `json:"cache_hit"`
	RecoveredVia operation.Category `json:"recovered_via,omitempty"`
	Executor     string             `json:"executor,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
}

// Journal appends and lists records.
type Journal struct {
	db *sql.DB
	mu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS operations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	operation_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	options_json TEXT,
	success INTEGER NOT NULL,
	message TEXT,
	duration_ms REAL NOT NULL,
	cache_hit INTEGER NOT NULL,
	recovered_via TEXT,
	executor TEXT,
	started_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_operations_started ON operations(started_at);
CREATE INDEX IF NOT EXISTS idx_operations_kind ON operations(kind);
`

// Open opens or creates the journal at path, creating its directory.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// One connection keeps writes serialized and avoids SQLITE_BUSY between
	// pooled connections of the same process.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize history database: %w", err)
		}
	}
	return &Journal{db: db}, nil
}

// Append stores r.
func (j *Journal) Append(ctx context.Context, r Record) error {
	var options []byte
	if len(r.Options) > 0 {
		var err error
		if options, err = json.Marshal(r.Options); err != nil {
			return fmt.Errorf("failed to encode options: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO operations (operation_id, kind, options_json, success, message, duration_ms, cache_hit, recovered_via, executor, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.OperationID, string(r.Kind), string(options), r.Success, r.Message, r.DurationMS,
		r.CacheHit, string(r.RecoveredVia), r.Executor, r.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT operation_id, kind, options_json, success, message, duration_ms, cache_hit, recovered_via, executor, started_at
		FROM operations ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r                  Record
			kind, options, via string
			startedAt          int64
		)
		if err := rows.Scan(&r.OperationID, &kind, &options, &r.Success, &r.Message, &r.DurationMS,
			&r.CacheHit, &via, &r.Executor, &startedAt); err != nil {
			return nil, fmt.Errorf("failed to read history row: %w", err)
		}
		r.Kind = operation.Kind(kind)
		r.RecoveredVia = operation.Category(via)
		r.StartedAt = time.Unix(0, startedAt).UTC()
		if options != "" {
			if err := json.Unmarshal([]byte(options), &r.Options); err != nil {
				logging.Warn("History", "Unreadable options for %s: %v", r.OperationID, err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Observe appends the finished operation. Failures are logged, never
// returned: the journal must not affect the operation.
func (j *Journal) Observe(ctx context.Context, op operation.Operation, res operation.Result, startedAt time.Time) {
	err := j.Append(context.WithoutCancel(ctx), Record{
		OperationID:  res.OperationID,
		Kind:         op.Kind(),
		Options:      op.Options(),
		Success:      res.Success,
		Message:      res.Message,
		DurationMS:   res.DurationMS,
		CacheHit:     res.CacheHit,
		RecoveredVia: res.RecoveredVia,
		Executor:     res.Executor,
		StartedAt:    startedAt,
	})
	if err != nil {
		logging.Error("History", err, "Failed to record operation %s", res.OperationID)
	}
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
