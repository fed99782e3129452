package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tinyduel/internal/duel"
)

// Store wraps a gorm DB instance and persists matches in PostgreSQL.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new store helper from a gorm DB.
func NewStore(db *gorm.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// DB exposes the underlying gorm DB instance.
func (s *Store) DB() *gorm.DB {
	if s == nil {
		return nil
	}
	return s.db
}

var errNotConfigured = errors.New("storage is not configured")

// Create inserts a new match and its first revision.
func (s *Store) Create(ctx context.Context, m duel.Match) (string, error) {
	if s == nil {
		return "", errNotConfigured
	}
	id := uuid.New()
	m = finalize(m, id.String(), 1)
	row := newMatchRow(id, m)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Create(&MatchRevision{
			MatchID:   id,
			Version:   m.Version,
			TurnCount: m.TurnCount,
			Entry:     newestEntry(m),
		}).Error
	})
	if err != nil {
		return "", fmt.Errorf("create match: %w", err)
	}
	return id.String(), nil
}

// Load fetches a persisted match.
func (s *Store) Load(ctx context.Context, id string) (duel.Match, error) {
	if s == nil {
		return duel.Match{}, errNotConfigured
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return duel.Match{}, ErrNotFound
	}
	var row Match
	if err := s.db.WithContext(ctx).First(&row, "id = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return duel.Match{}, ErrNotFound
		}
		return duel.Match{}, fmt.Errorf("load match: %w", err)
	}
	return row.toDomain(), nil
}

// Commit locks the match row for the duration of the read-modify-write.
func (s *Store) Commit(ctx context.Context, id string, mutate Mutation) (duel.Match, error) {
	if s == nil {
		return duel.Match{}, errNotConfigured
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return duel.Match{}, ErrNotFound
	}

	var result duel.Match
	var unchanged bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Match
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", uid).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		cur := row.toDomain()
		next, err := mutate(cur.Clone())
		if err != nil {
			if errors.Is(err, duel.ErrNoChange) {
				result, unchanged = cur, true
				return nil
			}
			return err
		}
		next = finalize(next, id, row.Version+1)

		res := tx.Model(&Match{}).
			Where("id = ? AND version = ?", uid, row.Version).
			Updates(map[string]any{
				"version":              next.Version,
				"current_turn_user_id": next.CurrentTurnUserID,
				"player_count":         len(next.Players),
				"turn_count":           next.TurnCount,
				"document":             datatypes.NewJSONType(next),
				"updated_at":           next.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		if err := tx.Create(&MatchRevision{
			MatchID:   uid,
			Version:   next.Version,
			TurnCount: next.TurnCount,
			Entry:     newestEntry(next),
		}).Error; err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return duel.Match{}, err
	}
	if unchanged {
		return result, duel.ErrNoChange
	}
	return result, nil
}

// Stats aggregates counts for display on the home page.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if s == nil {
		return stats, nil
	}
	if err := s.db.WithContext(ctx).Model(&Match{}).Count(&stats.Started).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&Match{}).Where("player_count < ?", duel.MaxPlayers).Count(&stats.Waiting).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&Match{}).Where("player_count >= ?", duel.MaxPlayers).Count(&stats.InProgress).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

// Revisions lists the committed versions of a match, oldest first.
func (s *Store) Revisions(ctx context.Context, id string) ([]Revision, error) {
	if s == nil {
		return nil, errNotConfigured
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var rows []MatchRevision
	if err := s.db.WithContext(ctx).Where("match_id = ?", uid).Order("version asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	revs := make([]Revision, len(rows))
	for i, row := range rows {
		revs[i] = row.toRevision()
	}
	return revs, nil
}
