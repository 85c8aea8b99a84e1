package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/petems/whowhatwhere/internal/watchdog"
	_ "modernc.org/sqlite"
)

// Entry is one recorded alert
type Entry struct {
	ID        int64
	Time      time.Time
	RuleID    string
	RuleIndex int
	Message   string
	Output    watchdog.OutputMethod
	Summary   string
	Protocol  string
	Remote    string
	Size      int
}

// Store keeps dispatched alerts in a SQLite database.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// a single connection serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		time_ns INTEGER NOT NULL,
		rule_id TEXT NOT NULL,
		rule_index INTEGER NOT NULL,
		message TEXT NOT NULL,
		output INTEGER NOT NULL,
		summary TEXT NOT NULL,
		protocol TEXT,
		remote TEXT,
		size INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_time ON alerts(time_ns DESC);
	CREATE INDEX IF NOT EXISTS idx_alerts_rule ON alerts(rule_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return nil
}

// Record implements alert.Recorder.
func (s *Store) Record(ctx context.Context, a watchdog.Alert) error {
	remote := ""
	if addr := a.Packet.Remote(); addr.IsValid() {
		remote = addr.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (time_ns, rule_id, rule_index, message, output, summary, protocol, remote, size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Time.UnixNano(),
		a.RuleID,
		a.RuleIndex,
		a.Message,
		int(a.Output),
		a.Summary,
		string(a.Packet.Protocol),
		remote,
		a.Packet.Size,
	)
	if err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, time_ns, rule_id, rule_index, message, output, summary, protocol, remote, size
		FROM alerts ORDER BY time_ns DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			ns     int64
			output int
		)
		if err := rows.Scan(&e.ID, &ns, &e.RuleID, &e.RuleIndex, &e.Message, &output, &e.Summary, &e.Protocol, &e.Remote, &e.Size); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Time = time.Unix(0, ns)
		e.Output = watchdog.OutputMethod(output)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return entries, nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alerts`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
