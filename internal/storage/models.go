package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"tinyduel/internal/duel"
)

// Match is the persisted match row. The full match document lives in a jsonb
// column; the scalar columns mirror it for querying.
type Match struct {
	ID                uuid.UUID                      `gorm:"type:uuid;primaryKey"`
	Version           int64                          `gorm:"not null"`
	CreatorID         string                         `gorm:"index"`
	CurrentTurnUserID string                         `gorm:"index"`
	PlayerCount       int                            `gorm:"index"`
	TurnCount         int                            `gorm:"not null"`
	Document          datatypes.JSONType[duel.Match] `gorm:"type:jsonb"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Revisions         []MatchRevision `gorm:"constraint:OnDelete:CASCADE;"`
}

// MatchRevision records one committed version of a match.
type MatchRevision struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MatchID   uuid.UUID `gorm:"type:uuid;index"`
	Version   int64
	TurnCount int
	Entry     string
	CreatedAt time.Time
}

func newMatchRow(id uuid.UUID, m duel.Match) Match {
	row := Match{
		ID:                id,
		Version:           m.Version,
		CurrentTurnUserID: m.CurrentTurnUserID,
		PlayerCount:       len(m.Players),
		TurnCount:         m.TurnCount,
		Document:          datatypes.NewJSONType(m),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if len(m.Players) > 0 {
		row.CreatorID = m.Players[0].UserID
	}
	return row
}

func (r Match) toDomain() duel.Match {
	m := r.Document.Data()
	m.ID = r.ID.String()
	m.Version = r.Version
	return m
}

func (r MatchRevision) toRevision() Revision {
	return Revision{Version: r.Version, TurnCount: r.TurnCount, Entry: r.Entry, CreatedAt: r.CreatedAt}
}
