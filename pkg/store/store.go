// Package store keeps recorded sessions in a SQLite database next to the
// text history files.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/itohio/govitals/pkg/sample"
	"github.com/itohio/govitals/pkg/session"
)

// ErrClosed is returned by writes to a finished session.
var ErrClosed = errors.New("store: session closed")

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id   TEXT PRIMARY KEY,
		patient      TEXT,
		age          TEXT,
		started_at   BIGINT,
		stopped_at   BIGINT
	);
	CREATE TABLE IF NOT EXISTS vitals (
		session_id   TEXT,
		ts           BIGINT,
		spo2         INTEGER,
		heart_rate   INTEGER,
		FOREIGN KEY(session_id) REFERENCES sessions(session_id)
	);
	CREATE TABLE IF NOT EXISTS events (
		session_id   TEXT,
		ts           BIGINT,
		type         TEXT,
		detail       TEXT,
		value        TEXT,
		FOREIGN KEY(session_id) REFERENCES sessions(session_id)
	);
	CREATE TABLE IF NOT EXISTS samples (
		session_id   TEXT,
		ts           BIGINT,
		value        DOUBLE,
		FOREIGN KEY(session_id) REFERENCES sessions(session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_vitals_session ON vitals(session_id, ts);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, ts);
`

// DB is a session database.
type DB struct {
	*sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; the pure-Go driver serializes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &DB{db}, nil
}

// SessionInfo describes one stored session.
type SessionInfo struct {
	ID        uuid.UUID
	Patient   session.Patient
	StartedAt time.Time
	StoppedAt time.Time // zero while the session is open
}

// Begin inserts a session row and returns a sink writing into it.
// Samples are stored only when recordECG is set.
func (db *DB) Begin(id uuid.UUID, p session.Patient, start time.Time, recordECG bool) (*Session, error) {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, patient, age, started_at, stopped_at) VALUES (?, ?, ?, ?, 0)`,
		id.String(), p.Name, p.Age, start.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return &Session{db: db, id: id, ecg: recordECG}, nil
}

// Sessions lists stored sessions, newest first.
func (db *DB) Sessions() ([]SessionInfo, error) {
	rows, err := db.Query(`SELECT session_id, patient, age, started_at, stopped_at FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var (
			id               string
			info             SessionInfo
			started, stopped int64
		)
		if err := rows.Scan(&id, &info.Patient.Name, &info.Patient.Age, &started, &stopped); err != nil {
			return nil, err
		}
		if info.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad session id %q: %w", id, err)
		}
		info.StartedAt = time.Unix(0, started)
		if stopped != 0 {
			info.StoppedAt = time.Unix(0, stopped)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Vitals returns the reports of a session in time order.
func (db *DB) Vitals(id uuid.UUID) ([]session.Vitals, error) {
	rows, err := db.Query(`SELECT ts, spo2, heart_rate FROM vitals WHERE session_id = ? ORDER BY ts`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Vitals
	for rows.Next() {
		var (
			ts int64
			v  session.Vitals
		)
		if err := rows.Scan(&ts, &v.SpO2, &v.HeartRate); err != nil {
			return nil, err
		}
		v.Timestamp = time.Unix(0, ts)
		out = append(out, v)
	}
	return out, rows.Err()
}

// Events returns the history rows of a session in time order.
func (db *DB) Events(id uuid.UUID) ([]session.Event, error) {
	rows, err := db.Query(`SELECT ts, type, detail, value FROM events WHERE session_id = ? ORDER BY ts`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Event
	for rows.Next() {
		var (
			ts  int64
			typ string
			e   session.Event
		)
		if err := rows.Scan(&ts, &typ, &e.Detail, &e.Value); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(0, ts)
		e.Type = session.EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SampleCount returns how many ECG samples a session holds.
func (db *DB) SampleCount(id uuid.UUID) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM samples WHERE session_id = ?`, id.String()).Scan(&n)
	return n, err
}

// Session writes one recording into the database. It implements
// session.Sink.
type Session struct {
	db     *DB
	id     uuid.UUID
	ecg    bool
	mu     sync.Mutex
	closed bool
}

var _ session.Sink = (*Session)(nil)

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) exec(query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.Exec(query, args...)
	return err
}

func (s *Session) Sample(smp sample.Sample) error {
	if !s.ecg {
		return nil
	}
	return s.exec(`INSERT INTO samples (session_id, ts, value) VALUES (?, ?, ?)`,
		s.id.String(), smp.Timestamp.UnixNano(), smp.Value)
}

func (s *Session) Vitals(v session.Vitals) error {
	return s.exec(`INSERT INTO vitals (session_id, ts, spo2, heart_rate) VALUES (?, ?, ?, ?)`,
		s.id.String(), v.Timestamp.UnixNano(), v.SpO2, v.HeartRate)
}

func (s *Session) Event(e session.Event) error {
	return s.exec(`INSERT INTO events (session_id, ts, type, detail, value) VALUES (?, ?, ?, ?, ?)`,
		s.id.String(), e.Timestamp.UnixNano(), string(e.Type), e.Detail, e.Value)
}

// Close records the stop time. Further writes return ErrClosed.
func (s *Session) Close(stop time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, err := s.db.Exec(`UPDATE sessions SET stopped_at = ? WHERE session_id = ?`, stop.UnixNano(), s.id.String())
	return err
}
