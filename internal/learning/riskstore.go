// Package learning persists per-keyword task outcome statistics so
// the complexity scorer can bump risk for historically failure-prone
// topics.
package learning

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// RiskStore provides SQLite-backed keyword outcome tracking.
type RiskStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// DefaultDBPath returns the project-local risk database path.
func DefaultDBPath(stateDir string) string {
	return filepath.Join(stateDir, "keyword-risk.db")
}

// NewRiskStore opens (or creates) the risk database at dbPath and
// applies the schema.
func NewRiskStore(dbPath string) (*RiskStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &RiskStore{db: conn, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the stats table if it doesn't exist.
func (s *RiskStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS keyword_stats (
			keyword TEXT PRIMARY KEY,
			successes INTEGER NOT NULL DEFAULT 0,
			failures INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create keyword_stats table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *RiskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the path to the database file.
func (s *RiskStore) Path() string {
	return s.dbPath
}

// RecordOutcome folds one task outcome into every matched keyword's
// statistics. Keywords are stored lowercased; duplicates in one call
// are counted once.
func (s *RiskStore) RecordOutcome(keywords []string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin outcome transaction: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true

		succ, fail := 0, 0
		if success {
			succ = 1
		} else {
			fail = 1
		}
		_, err := tx.Exec(`
			INSERT INTO keyword_stats (keyword, successes, failures, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(keyword) DO UPDATE SET
				successes = successes + excluded.successes,
				failures = failures + excluded.failures,
				updated_at = excluded.updated_at
		`, kw, succ, fail, now)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert keyword %q: %w", kw, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outcome transaction: %w", err)
	}
	return nil
}

// SuccessRate returns the fraction of successful outcomes for a
// keyword and the number of samples behind it. Unknown keywords
// report zero samples, not an error.
func (s *RiskStore) SuccessRate(keyword string) (float64, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var successes, failures int
	row := s.db.QueryRow(
		"SELECT successes, failures FROM keyword_stats WHERE keyword = ?",
		strings.ToLower(strings.TrimSpace(keyword)))
	if err := row.Scan(&successes, &failures); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("query keyword %q: %w", keyword, err)
	}

	total := successes + failures
	if total == 0 {
		return 0, 0, nil
	}
	return float64(successes) / float64(total), total, nil
}

// Keywords returns all tracked keywords ordered by failure count,
// worst first.
func (s *RiskStore) Keywords() ([]KeywordStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT keyword, successes, failures FROM keyword_stats
		ORDER BY failures DESC, keyword ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}
	defer rows.Close()

	var stats []KeywordStats
	for rows.Next() {
		var ks KeywordStats
		if err := rows.Scan(&ks.Keyword, &ks.Successes, &ks.Failures); err != nil {
			return nil, fmt.Errorf("scan keyword row: %w", err)
		}
		stats = append(stats, ks)
	}
	return stats, rows.Err()
}

// KeywordStats is one keyword's outcome history.
type KeywordStats struct {
	Keyword   string
	Successes int
	Failures  int
}
