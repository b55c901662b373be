package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/atlasserver/atlasai/internal/agent"
	"github.com/atlasserver/atlasai/internal/constants"
	"github.com/atlasserver/atlasai/internal/validate"
)

// FileName is the database file inside the data directory
const FileName = "history.db"

var (
	// ErrNotFound is returned by Get when no entry matches
	ErrNotFound = errors.New("history entry not found")
	// ErrAmbiguous is returned by Get when a prefix matches several entries
	ErrAmbiguous = errors.New("history id prefix is ambiguous")
)

// Entry is one processed request
type Entry struct {
	ID          string          `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	Kind        string          `json:"kind"`
	Input       string          `json:"input"`
	Command     string          `json:"command"`
	Explanation string          `json:"explanation"`
	RiskLevel   string          `json:"risk_level"`
	Confidence  float64         `json:"confidence"`
	Provider    string          `json:"provider"`
	Warnings    []string        `json:"warnings,omitempty"`
	Transcript  json.RawMessage `json:"transcript,omitempty"`
}

// NewEntry builds an entry from a finished invocation. sess may be nil.
func NewEntry(req agent.Request, rec *validate.Recommendation, sess *agent.Session) (Entry, error) {
	e := Entry{
		ID:        uuid.New().String(),
		CreatedAt: req.CreatedAt(),
		Kind:      string(req.Kind()),
		Input:     req.RawInput(),
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if rec != nil {
		e.Command = rec.Chosen.CommandText
		e.Explanation = rec.Chosen.Explanation
		e.RiskLevel = string(rec.Chosen.RiskLevel)
		e.Confidence = rec.Chosen.Confidence
		e.Provider = rec.Chosen.SourceProvider
		e.Warnings = append([]string(nil), rec.Warnings...)
	}
	if sess != nil {
		e.ID = sess.ID
		data, err := json.Marshal(sess)
		if err != nil {
			return Entry{}, fmt.Errorf("failed to encode transcript: %w", err)
		}
		e.Transcript = data
	}
	return e, nil
}

// DefaultPath returns $XDG_DATA_HOME/atlasai/history.db, falling back to
// ~/.local/share.
func DefaultPath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, constants.AppName, FileName), nil
}

// SQLiteStore persists history in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at path. An empty path
// means DefaultPath.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	store := &SQLiteStore{db: db, path: path}
	if err := store.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		kind TEXT NOT NULL,
		input TEXT NOT NULL,
		command TEXT,
		explanation TEXT,
		risk_level TEXT,
		confidence REAL,
		provider TEXT,
		warnings TEXT,
		transcript TEXT
	);`)
	return err
}

// Save inserts a new entry
func (s *SQLiteStore) Save(entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	warnings, err := json.Marshal(entry.Warnings)
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT INTO requests
		(id, created_at, kind, input, command, explanation, risk_level, confidence, provider, warnings, transcript)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		entry.Kind,
		entry.Input,
		entry.Command,
		entry.Explanation,
		entry.RiskLevel,
		entry.Confidence,
		entry.Provider,
		string(warnings),
		string(entry.Transcript),
	)
	if err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}
	return nil
}

const selectColumns = "SELECT id, created_at, kind, input, command, explanation, risk_level, confidence, provider, warnings, transcript FROM requests"

// List returns entries newest first (limit/search optional).
func (s *SQLiteStore) List(limit int, search string) ([]Entry, error) {
	builder := strings.Builder{}
	builder.WriteString(selectColumns)
	var args []interface{}
	if search != "" {
		builder.WriteString(" WHERE input LIKE ? OR command LIKE ?")
		args = append(args, "%"+search+"%", "%"+search+"%")
	}
	builder.WriteString(" ORDER BY created_at DESC")
	if limit > 0 {
		builder.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := s.db.Query(builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the entry whose id equals or starts with id.
func (s *SQLiteStore) Get(id string) (*Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.Query(selectColumns+" WHERE id = ? OR id LIKE ? LIMIT 2", id, id+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var found []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if e.ID == id {
			return &e, nil
		}
		found = append(found, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &found[0], nil
	}
	return nil, ErrAmbiguous
}

// Clear deletes all history entries.
func (s *SQLiteStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM requests")
	return err
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the sqlite database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var ts string
	var command, explanation, risk, provider, warnings, transcript sql.NullString
	var confidence sql.NullFloat64
	if err := rows.Scan(&e.ID, &ts, &e.Kind, &e.Input, &command, &explanation, &risk, &confidence, &provider, &warnings, &transcript); err != nil {
		return Entry{}, fmt.Errorf("failed to read history entry: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		e.CreatedAt = t
	}
	e.Command = command.String
	e.Explanation = explanation.String
	e.RiskLevel = risk.String
	e.Confidence = confidence.Float64
	e.Provider = provider.String
	if warnings.String != "" {
		_ = json.Unmarshal([]byte(warnings.String), &e.Warnings)
	}
	if transcript.String != "" {
		e.Transcript = json.RawMessage(transcript.String)
	}
	return e, nil
}

// Session decodes the stored transcript
func (e *Entry) Session() (*agent.Session, error) {
	if len(e.Transcript) == 0 {
		return nil, nil
	}
	var sess agent.Session
	if err := json.Unmarshal(e.Transcript, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return &sess, nil
}
