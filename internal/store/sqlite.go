// Package store caches scanned message metadata in a local SQLite database
// so phases after Scanning can resume without refetching the mailbox.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mailgroom/internal/model"
)

// Store is a metadata cache scoped to a single run.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations. Use
// ":memory:" for tests.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	thread_id        TEXT NOT NULL DEFAULT '',
	sender_email     TEXT NOT NULL,
	sender_domain    TEXT NOT NULL,
	sender_name      TEXT NOT NULL DEFAULT '',
	subject          TEXT NOT NULL DEFAULT '',
	recipients       TEXT NOT NULL DEFAULT '[]',
	date_received    TEXT NOT NULL DEFAULT '',
	label_ids        TEXT NOT NULL DEFAULT '[]',
	has_unsubscribe  INTEGER NOT NULL DEFAULT 0,
	is_automated     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertMessages writes a batch inside one transaction.
func (s *Store) UpsertMessages(ctx context.Context, msgs []model.MessageMetadata) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, thread_id, sender_email, sender_domain, sender_name,
			subject, recipients, date_received, label_ids, has_unsubscribe, is_automated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			thread_id       = excluded.thread_id,
			sender_email    = excluded.sender_email,
			sender_domain   = excluded.sender_domain,
			sender_name     = excluded.sender_name,
			subject         = excluded.subject,
			recipients      = excluded.recipients,
			date_received   = excluded.date_received,
			label_ids       = excluded.label_ids,
			has_unsubscribe = excluded.has_unsubscribe,
			is_automated    = excluded.is_automated
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range msgs {
		recipients, err := json.Marshal(m.Recipients)
		if err != nil {
			return err
		}
		labels, err := json.Marshal(m.LabelIDs)
		if err != nil {
			return err
		}
		var date string
		if !m.DateReceived.IsZero() {
			date = m.DateReceived.UTC().Format(time.RFC3339)
		}
		_, err = stmt.ExecContext(ctx, m.ID, m.ThreadID, m.SenderEmail, m.SenderDomain,
			m.SenderName, m.Subject, string(recipients), date, string(labels),
			boolInt(m.HasUnsubscribe), boolInt(m.IsAutomated))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadAllMessages returns every cached record.
func (s *Store) LoadAllMessages(ctx context.Context) ([]model.MessageMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, sender_email, sender_domain, sender_name,
			subject, recipients, date_received, label_ids, has_unsubscribe, is_automated
		FROM messages`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.MessageMetadata
	for rows.Next() {
		var m model.MessageMetadata
		var recipients, date, labels string
		var unsub, automated int
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.SenderEmail, &m.SenderDomain, &m.SenderName,
			&m.Subject, &recipients, &date, &labels, &unsub, &automated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(recipients), &m.Recipients); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(labels), &m.LabelIDs); err != nil {
			return nil, err
		}
		if date != "" {
			if t, err := time.Parse(time.RFC3339, date); err == nil {
				m.DateReceived = t
			}
		}
		m.HasUnsubscribe = unsub != 0
		m.IsAutomated = automated != 0
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountMessages returns the number of cached records.
func (s *Store) CountMessages(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count)
	return count, err
}

// Clear drops all cached messages and run markers. Called when a new run
// starts without --resume.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM metadata")
	return err
}

// GetRunID returns the run the cache belongs to, or "".
func (s *Store) GetRunID(ctx context.Context) (string, error) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'run_id'").Scan(&val)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return val, err
}

// SetRunID marks the cache as belonging to a run.
func (s *Store) SetRunID(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES ('run_id', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, runID)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
