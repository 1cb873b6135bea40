package journal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Iris/internal/archive"
	"github.com/hbomb79/Iris/pkg/logger"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var log = logger.Get("Journal")

const schema = `
CREATE TABLE IF NOT EXISTS archive_entries (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT    NOT NULL,
	date_folder  TEXT    NOT NULL,
	filename     TEXT    NOT NULL,
	kind         TEXT    NOT NULL,
	size_bytes   INTEGER NOT NULL,
	duplicate    INTEGER NOT NULL DEFAULT 0,
	committed_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archive_entries_session ON archive_entries (session_id);
`

type (
	// Record is a single journalled archive outcome.
	Record struct {
		ID          int64     `db:"id"`
		SessionID   string    `db:"session_id"`
		DateFolder  string    `db:"date_folder"`
		Filename    string    `db:"filename"`
		Kind        string    `db:"kind"`
		SizeBytes   int64     `db:"size_bytes"`
		Duplicate   bool      `db:"duplicate"`
		CommittedAt time.Time `db:"committed_at"`
	}

	// SessionSummary aggregates a device session's outcomes for the
	// end-of-session log line.
	SessionSummary struct {
		Archived   int `db:"archived"`
		Duplicates int `db:"duplicates"`
	}

	// Store is the sqlite-backed archive journal. It is advisory only:
	// the on-disk (filename, size) check remains the dedup authority,
	// the journal exists so collisions and history can be audited after
	// the fact. All write failures are logged, never propagated.
	Store struct {
		db *sqlx.DB
	}
)

// Open connects to (creating if needed) the journal database at the
// path provided and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive journal %s: %w", path, err)
	}

	// The journal is written from multiple per-device goroutines; a
	// single connection serialises access below the sqlite busy layer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise archive journal schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (store *Store) Close() error {
	return store.db.Close()
}

// RecordEntry journals a committed archive entry.
func (store *Store) RecordEntry(sessionID uuid.UUID, entry archive.Entry) {
	store.record(sessionID, entry, false)
}

// RecordDuplicate journals a skipped duplicate.
func (store *Store) RecordDuplicate(sessionID uuid.UUID, entry archive.Entry) {
	store.record(sessionID, entry, true)
}

func (store *Store) record(sessionID uuid.UUID, entry archive.Entry, duplicate bool) {
	_, err := store.db.Exec(
		`INSERT INTO archive_entries (session_id, date_folder, filename, kind, size_bytes, duplicate, committed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID.String(), entry.Date, entry.Name, entry.Kind.String(), entry.SizeBytes, duplicate, time.Now().UTC(),
	)
	if err != nil {
		log.Emit(logger.WARNING, "Failed to journal archive entry %s/%s: %s\n", entry.Date, entry.Name, err.Error())
	}
}

// RecentEntries returns the most recently journalled records, newest first.
func (store *Store) RecentEntries(limit int) ([]Record, error) {
	records := make([]Record, 0, limit)
	err := store.db.Select(&records,
		`SELECT * FROM archive_entries ORDER BY committed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal entries: %w", err)
	}

	return records, nil
}

// Summarise aggregates the archived/duplicate counts for a device session.
func (store *Store) Summarise(sessionID uuid.UUID) (*SessionSummary, error) {
	summary := SessionSummary{}
	err := store.db.Get(&summary,
		`SELECT
			COUNT(CASE WHEN duplicate = 0 THEN 1 END) AS archived,
			COUNT(CASE WHEN duplicate = 1 THEN 1 END) AS duplicates
		 FROM archive_entries WHERE session_id = ?`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to summarise session %s: %w", sessionID, err)
	}

	return &summary, nil
}
