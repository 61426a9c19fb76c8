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

	"ocellus/internal/logging"
	"ocellus/internal/mangle"
	"ocellus/internal/transport"
)

// LoadSession returns the stored cookie bundle for account, or an empty
// Session when none was saved yet.
func (s *Store) LoadSession(ctx context.Context, account string) (transport.Session, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT cookies FROM sessions WHERE account = ?`, account).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return transport.Session{}, nil
	}
	if err != nil {
		return transport.Session{}, fmt.Errorf("load session: %w", err)
	}
	var sess transport.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return transport.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

// SaveSession replaces the stored cookie bundle for account.
func (s *Store) SaveSession(ctx context.Context, account string, sess transport.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (account, cookies, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(account) DO UPDATE SET cookies = excluded.cookies, updated_at = excluded.updated_at`,
		account, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	logging.StoreDebug("session saved for %s (%d cookies)", account, sess.Len())
	return nil
}

// ArchiveProfile stores a raw profile body and writes it to the dump file
// when one is configured. Older snapshots beyond the limit are pruned.
func (s *Store) ArchiveProfile(ctx context.Context, body string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO profile_snapshots (fetched_at, body) VALUES (?, ?)`, at.UTC(), body); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if s.snapshotLimit > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM profile_snapshots WHERE id NOT IN (
				SELECT id FROM profile_snapshots ORDER BY id DESC LIMIT ?)`, s.snapshotLimit); err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}

	if s.dumpPath != "" {
		if err := os.MkdirAll(filepath.Dir(s.dumpPath), 0o755); err != nil {
			return fmt.Errorf("create dump dir: %w", err)
		}
		if err := os.WriteFile(s.dumpPath, []byte(body), 0o600); err != nil {
			return fmt.Errorf("write profile dump: %w", err)
		}
	}
	return nil
}

// Snapshot is one archived profile body.
type Snapshot struct {
	ID        int64
	FetchedAt time.Time
	Body      string
}

// LatestSnapshot returns the most recent archived profile.
func (s *Store) LatestSnapshot(ctx context.Context) (Snapshot, bool, error) {
	var snap Snapshot
	err := s.db.QueryRowContext(ctx,
		`SELECT id, fetched_at, body FROM profile_snapshots ORDER BY id DESC LIMIT 1`).
		Scan(&snap.ID, &snap.FetchedAt, &snap.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, true, nil
}

// SnapshotCount returns how many snapshots are retained.
func (s *Store) SnapshotCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profile_snapshots`).Scan(&n)
	return n, err
}

// Visit is one entry of the docking history.
type Visit struct {
	Name       string
	FirstVisit time.Time
	LastVisit  time.Time
	Visits     int64
}

// RecordVisit notes that the commander docked in system at time at.
func (s *Store) RecordVisit(ctx context.Context, system string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO visited_systems (name, first_visit, last_visit, visits) VALUES (?, ?, ?, 1)
		 ON CONFLICT(name) DO UPDATE SET last_visit = excluded.last_visit, visits = visits + 1`,
		system, at.UTC(), at.UTC())
	if err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}

// VisitedSystems lists the docking history, most recent first.
func (s *Store) VisitedSystems(ctx context.Context) ([]Visit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, first_visit, last_visit, visits FROM visited_systems ORDER BY last_visit DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	var out []Visit
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.Name, &v.FirstVisit, &v.LastVisit, &v.Visits); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ReplaceFacts implements mangle.Persistence.
func (s *Store) ReplaceFacts(ctx context.Context, scope string, facts []mangle.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin facts: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM facts WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("clear scope %s: %w", scope, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO facts (scope, seq, predicate, args) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, f := range facts {
		args, err := mangle.EncodeArgs(f.Args)
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.Predicate, err)
		}
		if _, err := stmt.ExecContext(ctx, scope, i, f.Predicate, args); err != nil {
			return fmt.Errorf("insert fact %s: %w", f.Predicate, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit facts: %w", err)
	}
	logging.StoreDebug("persisted %d facts in scope %s", len(facts), scope)
	return nil
}

// LoadFacts implements mangle.Persistence.
func (s *Store) LoadFacts(ctx context.Context) (map[string][]mangle.Fact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT scope, predicate, args FROM facts ORDER BY scope, seq`)
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]mangle.Fact)
	for rows.Next() {
		var scope, predicate, raw string
		if err := rows.Scan(&scope, &predicate, &raw); err != nil {
			return nil, err
		}
		args, err := mangle.DecodeArgs(raw)
		if err != nil {
			return nil, fmt.Errorf("fact %s: %w", predicate, err)
		}
		out[scope] = append(out[scope], mangle.Fact{Predicate: predicate, Args: args})
	}
	return out, rows.Err()
}

// GetSetting returns a stored setting.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, true, nil
}

// SetSetting stores a setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
