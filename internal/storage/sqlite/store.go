// Package sqlite provides a SQLite-backed match store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"tinyduel/internal/duel"
	"tinyduel/internal/storage"
	"tinyduel/internal/storage/sqlite/migrations"
)

// Store persists matches in SQLite. Commits run in immediate transactions and
// additionally compare-and-swap on the version column; a lost race is retried
// a bounded number of times.
type Store struct {
	sqlDB   *sql.DB
	retries int
}

var errStale = errors.New("stale match version")

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens a SQLite match store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, retries: storage.DefaultCommitRetries}, nil
}

// SetCommitRetries overrides how many times a conflicting commit is retried.
func (s *Store) SetCommitRetries(n int) {
	if n > 0 {
		s.retries = n
	}
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Create inserts a new match under a fresh id.
func (s *Store) Create(ctx context.Context, m duel.Match) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	m.ID = uuid.NewString()
	m.Version = 1
	doc, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode match: %w", err)
	}
	creator := ""
	if len(m.Players) > 0 {
		creator = m.Players[0].UserID
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin create: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO matches (
		   id, version, creator_id, current_turn_user_id, player_count,
		   turn_count, document, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Version, creator, m.CurrentTurnUserID, len(m.Players),
		m.TurnCount, string(doc), toMillis(m.CreatedAt), toMillis(m.UpdatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("create match: %w", err)
	}
	if err := insertRevision(ctx, tx, m); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit create: %w", err)
	}
	return m.ID, nil
}

// Load returns one match by id.
func (s *Store) Load(ctx context.Context, id string) (duel.Match, error) {
	if err := ctx.Err(); err != nil {
		return duel.Match{}, err
	}
	if s == nil || s.sqlDB == nil {
		return duel.Match{}, fmt.Errorf("storage is not configured")
	}
	return scanMatch(s.sqlDB.QueryRowContext(ctx,
		`SELECT version, document FROM matches WHERE id = ?`, id), id)
}

// Commit applies mutate atomically, retrying when another writer won.
func (s *Store) Commit(ctx context.Context, id string, mutate storage.Mutation) (duel.Match, error) {
	if s == nil || s.sqlDB == nil {
		return duel.Match{}, fmt.Errorf("storage is not configured")
	}
	for attempt := 0; attempt < s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return duel.Match{}, err
		}
		m, err := s.commitOnce(ctx, id, mutate)
		if errors.Is(err, errStale) || isBusy(err) {
			continue
		}
		return m, err
	}
	return duel.Match{}, storage.ErrConflict
}

func (s *Store) commitOnce(ctx context.Context, id string, mutate storage.Mutation) (duel.Match, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return duel.Match{}, fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanMatch(tx.QueryRowContext(ctx,
		`SELECT version, document FROM matches WHERE id = ?`, id), id)
	if err != nil {
		return duel.Match{}, err
	}
	next, err := mutate(cur.Clone())
	if err != nil {
		if errors.Is(err, duel.ErrNoChange) {
			return cur, err
		}
		return duel.Match{}, err
	}
	next.ID = id
	next.Version = cur.Version + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return duel.Match{}, fmt.Errorf("encode match: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE matches
		    SET version = ?, current_turn_user_id = ?, player_count = ?,
		        turn_count = ?, document = ?, updated_at = ?
		  WHERE id = ? AND version = ?`,
		next.Version, next.CurrentTurnUserID, len(next.Players),
		next.TurnCount, string(doc), toMillis(next.UpdatedAt),
		id, cur.Version,
	)
	if err != nil {
		return duel.Match{}, fmt.Errorf("update match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return duel.Match{}, fmt.Errorf("update match: %w", err)
	}
	if n == 0 {
		return duel.Match{}, errStale
	}
	if err := insertRevision(ctx, tx, next); err != nil {
		return duel.Match{}, err
	}
	if err := tx.Commit(); err != nil {
		return duel.Match{}, fmt.Errorf("commit match: %w", err)
	}
	return next, nil
}

// Stats counts matches by seat occupancy.
func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	var stats storage.Stats
	if s == nil || s.sqlDB == nil {
		return stats, nil
	}
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN player_count < ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN player_count >= ? THEN 1 ELSE 0 END), 0)
		   FROM matches`,
		duel.MaxPlayers, duel.MaxPlayers,
	).Scan(&stats.Started, &stats.Waiting, &stats.InProgress)
	if err != nil {
		return stats, fmt.Errorf("match stats: %w", err)
	}
	return stats, nil
}

// Revisions lists the committed versions of a match, oldest first.
func (s *Store) Revisions(ctx context.Context, id string) ([]storage.Revision, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT version, turn_count, entry, created_at
		   FROM match_revisions
		  WHERE match_id = ?
		  ORDER BY version`, id)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var revs []storage.Revision
	for rows.Next() {
		var rev storage.Revision
		var createdAt int64
		if err := rows.Scan(&rev.Version, &rev.TurnCount, &rev.Entry, &createdAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		rev.CreatedAt = time.UnixMilli(createdAt).UTC()
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	if len(revs) == 0 {
		return nil, storage.ErrNotFound
	}
	return revs, nil
}

func insertRevision(ctx context.Context, tx *sql.Tx, m duel.Match) error {
	rev := storage.NewRevision(m)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO match_revisions (match_id, version, turn_count, entry, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, rev.Version, rev.TurnCount, rev.Entry, toMillis(rev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record revision: %w", err)
	}
	return nil
}

func scanMatch(row *sql.Row, id string) (duel.Match, error) {
	var version int64
	var doc string
	if err := row.Scan(&version, &doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return duel.Match{}, storage.ErrNotFound
		}
		return duel.Match{}, fmt.Errorf("load match: %w", err)
	}
	var m duel.Match
	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		return duel.Match{}, fmt.Errorf("decode match: %w", err)
	}
	m.ID = id
	m.Version = version
	return m, nil
}

func isBusy(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code() & 0xff
	return code == sqlite3lib.SQLITE_BUSY || code == sqlite3lib.SQLITE_LOCKED
}
