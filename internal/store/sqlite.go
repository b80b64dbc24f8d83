package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/agenthands/micromatch/internal/core/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS responses (
	participant_id TEXT PRIMARY KEY,
	topics         TEXT NOT NULL,
	preference     TEXT NOT NULL,
	timestamp      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS participants (
	participant_id TEXT PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	consent        INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'new',
	preference     TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS unmatched (
	participant_id TEXT NOT NULL,
	week_bucket    TEXT NOT NULL,
	PRIMARY KEY (participant_id, week_bucket)
);
CREATE TABLE IF NOT EXISTS rooms (
	room_id    TEXT PRIMARY KEY,
	topic      TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	archived   INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS room_participants (
	room_id        TEXT NOT NULL,
	participant_id TEXT NOT NULL,
	PRIMARY KEY (room_id, participant_id)
);
CREATE TABLE IF NOT EXISTS cycles (
	cycle_id    TEXT PRIMARY KEY,
	week_bucket TEXT NOT NULL,
	phase       TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT '',
	respondents INTEGER NOT NULL DEFAULT 0,
	units       INTEGER NOT NULL DEFAULT 0,
	unmatched   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);
`

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// applies the schema. ":memory:" gives a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Each connection to :memory: is a separate database, and sqlite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.BuildIndices(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("Opened sqlite store")
	return s, nil
}

func (s *SQLiteStore) BuildIndices(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveResponse(ctx context.Context, r model.Response) error {
	topics, err := json.Marshal(r.Topics)
	if err != nil {
		return fmt.Errorf("failed to encode topics: %w", err)
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO responses (participant_id, topics, preference, timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(participant_id) DO UPDATE SET
			topics = excluded.topics,
			preference = excluded.preference,
			timestamp = excluded.timestamp`,
		r.ParticipantID, string(topics), string(r.Preference), formatTime(ts))
	if err != nil {
		return fmt.Errorf("failed to save response: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAllResponses(ctx context.Context) ([]model.Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT participant_id, topics, preference, timestamp
		FROM responses
		ORDER BY timestamp, participant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var out []model.Response
	for rows.Next() {
		var (
			r                    model.Response
			topics, pref, tstamp string
		)
		if err := rows.Scan(&r.ParticipantID, &topics, &pref, &tstamp); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		if err := json.Unmarshal([]byte(topics), &r.Topics); err != nil {
			log.Warn().Err(err).Str("participant_id", r.ParticipantID).Msg("Skipping response with unreadable topics")
			continue
		}
		r.Preference = model.Preference(pref)
		r.Timestamp = parseTime(tstamp)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ClearResponses(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM responses`); err != nil {
		return fmt.Errorf("failed to clear responses: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveParticipant(ctx context.Context, p model.Participant) error {
	now := formatTime(time.Now())
	updated := formatTime(p.UpdatedAt)
	if updated == "" {
		updated = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (participant_id, name, consent, status, preference, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(participant_id) DO UPDATE SET
			name = excluded.name,
			consent = excluded.consent,
			status = excluded.status,
			preference = excluded.preference,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Consent, string(p.Status), string(p.Preference), now, updated)
	if err != nil {
		return fmt.Errorf("failed to save participant: %w", err)
	}
	return nil
}

const participantColumns = `participant_id, name, consent, status, preference, updated_at`

func scanParticipant(scan func(dest ...any) error) (model.Participant, error) {
	var (
		p               model.Participant
		status, pref, u string
	)
	if err := scan(&p.ID, &p.Name, &p.Consent, &status, &pref, &u); err != nil {
		return p, err
	}
	p.Status = model.ParticipantStatus(status)
	p.Preference = model.Preference(pref)
	p.UpdatedAt = parseTime(u)
	return p, nil
}

func (s *SQLiteStore) GetParticipant(ctx context.Context, id string) (*model.Participant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE participant_id = ?`, id)
	p, err := scanParticipant(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) ListConsentingParticipants(ctx context.Context) ([]model.Participant, error) {
	return s.listParticipants(ctx, `WHERE consent = 1`)
}

func (s *SQLiteStore) ListParticipantsByStatus(ctx context.Context, status model.ParticipantStatus) ([]model.Participant, error) {
	return s.listParticipants(ctx, `WHERE status = ?`, string(status))
}

func (s *SQLiteStore) listParticipants(ctx context.Context, where string, args ...any) ([]model.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+participantColumns+` FROM participants `+where+` ORDER BY participant_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetParticipantStatus(ctx context.Context, id string, status model.ParticipantStatus) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (participant_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(participant_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at`,
		id, string(status), now, now)
	if err != nil {
		return fmt.Errorf("failed to set participant status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddUnmatchedForWeek(ctx context.Context, week string, participantIDs []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO unmatched (participant_id, week_bucket) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range participantIDs {
			if _, err := stmt.ExecContext(ctx, id, week); err != nil {
				return fmt.Errorf("failed to record unmatched %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetUnmatchedForWeek(ctx context.Context, week string) ([]string, error) {
	return s.queryIDs(ctx, `SELECT participant_id FROM unmatched WHERE week_bucket = ? ORDER BY participant_id`, week)
}

func (s *SQLiteStore) UpsertRoom(ctx context.Context, room model.Room) error {
	created := room.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (room_id, topic, kind, created_at, archived)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			topic = excluded.topic,
			kind = excluded.kind`,
		room.ID, room.Topic, string(room.Kind), formatTime(created), room.Archived)
	if err != nil {
		return fmt.Errorf("failed to upsert room: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddRoomParticipants(ctx context.Context, roomID string, participantIDs []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO room_participants (room_id, participant_id) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range participantIDs {
			if _, err := stmt.ExecContext(ctx, roomID, id); err != nil {
				return fmt.Errorf("failed to add room participant %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetRoomParticipants(ctx context.Context, roomID string) ([]string, error) {
	return s.queryIDs(ctx, `SELECT participant_id FROM room_participants WHERE room_id = ? ORDER BY participant_id`, roomID)
}

func (s *SQLiteStore) SaveCycle(ctx context.Context, c model.Cycle) error {
	finished := ""
	if c.FinishedAt != nil {
		finished = formatTime(*c.FinishedAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (cycle_id, week_bucket, phase, started_at, finished_at, respondents, units, unmatched, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle_id) DO UPDATE SET
			phase = excluded.phase,
			finished_at = excluded.finished_at,
			respondents = excluded.respondents,
			units = excluded.units,
			unmatched = excluded.unmatched,
			failed = excluded.failed`,
		c.ID, c.WeekBucket, string(c.Phase), formatTime(c.StartedAt), finished,
		c.Respondents, c.Units, c.Unmatched, c.Failed)
	if err != nil {
		return fmt.Errorf("failed to save cycle: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
