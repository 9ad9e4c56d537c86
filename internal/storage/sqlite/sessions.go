package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/piotrostr/ezwhisper/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Error  = logger.Error
)

// SessionRecord represents a completed dictation session in the database
type SessionRecord struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	RawText    string    `json:"raw_text"`
	FinalText  string    `json:"final_text"`
	Mode       string    `json:"mode"` // "raw", "cleanup" or "translate"
	Injected   bool      `json:"injected"`
}

// SessionStorage handles storage of dictation session records
type SessionStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSessionStorage opens the SQLite database at dbPath and prepares
// the sessions table
func NewSessionStorage(dbPath string, logger *logger.Logger) (*SessionStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SessionStorage{
		db:     db,
		logger: logger.Named("sqlite-sessions"),
	}

	if err := storage.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *SessionStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			duration_ms INTEGER NOT NULL,
			raw_text TEXT NOT NULL,
			final_text TEXT NOT NULL,
			mode TEXT NOT NULL,
			injected BOOLEAN NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}

	return nil
}

// StoreSession stores a completed session record. A nil receiver can
// reach here when a disabled store is wired through an interface; it
// reports an error instead of panicking.
func (s *SessionStorage) StoreSession(record *SessionRecord) error {
	if s == nil {
		return fmt.Errorf("session storage is not configured")
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions
		(id, created_at, duration_ms, raw_text, final_text, mode, injected)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.CreatedAt.Format(time.RFC3339),
		record.DurationMs,
		record.RawText,
		record.FinalText,
		record.Mode,
		record.Injected,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// GetRecentSessions returns session records newest first, with pagination
func (s *SessionStorage) GetRecentSessions(limit, offset int) ([]*SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, duration_ms, raw_text, final_text, mode, injected
		FROM sessions
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		record := &SessionRecord{}
		var createdAt string
		if err := rows.Scan(
			&record.ID,
			&createdAt,
			&record.DurationMs,
			&record.RawText,
			&record.FinalText,
			&record.Mode,
			&record.Injected,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		record.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			s.logger.Error("Failed to parse session timestamp",
				Error(err), String("id", record.ID))
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}

	return records, nil
}

// Close closes the underlying database
func (s *SessionStorage) Close() error {
	return s.db.Close()
}
