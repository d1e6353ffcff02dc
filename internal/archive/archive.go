// Package archive stores finished battles in SQLite.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/showdown"
)

// ErrNotFound is returned by Get for an unknown battle.
var ErrNotFound = errors.New("battle not archived")

const schema = `
CREATE TABLE IF NOT EXISTS battles (
	id         TEXT PRIMARY KEY,
	format     TEXT NOT NULL,
	title      TEXT NOT NULL,
	p1         TEXT NOT NULL,
	p2         TEXT NOT NULL,
	winner     TEXT NOT NULL,
	loser      TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	rated      INTEGER NOT NULL,
	turns      INTEGER NOT NULL,
	ended_at   INTEGER NOT NULL,
	log        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_battles_ended_at ON battles(ended_at);
`

// Record is one archived battle.
type Record struct {
	ID      string    `json:"id"`
	Format  string    `json:"format"`
	Title   string    `json:"title"`
	P1      string    `json:"p1"`
	P2      string    `json:"p2"`
	Winner  string    `json:"winner"`
	Loser   string    `json:"loser"`
	Outcome string    `json:"outcome"`
	Rated   bool      `json:"rated"`
	Turns   int       `json:"turns"`
	EndedAt time.Time `json:"ended_at"`
	Log     []string  `json:"log,omitempty"`
}

// Store is a battle archive.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens, creating if needed, the archive at path.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate archive: %w", err)
	}

	return &Store{
		db:  db,
		log: logger.With().Str("component", "archive").Str("path", path).Logger(),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordBattle archives the final snapshot of a battle room. Recording the
// same battle again replaces it.
func (s *Store) RecordBattle(ctx context.Context, room showdown.Room) error {
	if !room.IsBattle() {
		return fmt.Errorf("room %s is not a battle", room.ID)
	}
	b := room.Battle

	logJSON, err := json.Marshal(room.Logs)
	if err != nil {
		return fmt.Errorf("failed to marshal battle log: %w", err)
	}

	endedAt := b.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO battles
			(id, format, title, p1, p2, winner, loser, outcome, rated, turns, ended_at, log)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		room.ID,
		b.Tier,
		room.Title,
		name(b.P1),
		name(b.P2),
		name(b.Winner),
		name(b.Loser),
		b.Outcome.String(),
		b.Rated,
		b.Turn,
		endedAt.Unix(),
		string(logJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert battle %s: %w", room.ID, err)
	}

	s.log.Debug().Str("battle", room.ID).Str("outcome", b.Outcome.String()).Msg("battle archived")
	return nil
}

func name(id *showdown.Identity) string {
	if id == nil {
		return ""
	}
	return id.Name
}

// Get returns one archived battle.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, format, title, p1, p2, winner, loser, outcome, rated, turns, ended_at, log
		FROM battles WHERE id = ?`, id)

	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Recent returns up to limit battles, most recently ended first. Logs are
// not loaded.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, format, title, p1, p2, winner, loser, outcome, rated, turns, ended_at, '[]'
		FROM battles ORDER BY ended_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query battles: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (Record, error) {
	var (
		rec     Record
		endedAt int64
		logJSON string
	)
	err := row.Scan(
		&rec.ID,
		&rec.Format,
		&rec.Title,
		&rec.P1,
		&rec.P2,
		&rec.Winner,
		&rec.Loser,
		&rec.Outcome,
		&rec.Rated,
		&rec.Turns,
		&endedAt,
		&logJSON,
	)
	if err != nil {
		return Record{}, err
	}
	rec.EndedAt = time.Unix(endedAt, 0)
	if err := json.Unmarshal([]byte(logJSON), &rec.Log); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal battle log: %w", err)
	}
	return rec, nil
}
