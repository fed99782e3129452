// Package storage persists duel matches with atomic read-modify-write
// semantics per match id.
package storage

import (
	"context"
	"errors"
	"time"

	"tinyduel/internal/duel"
)

var (
	// ErrNotFound is returned when a match id does not exist.
	ErrNotFound = errors.New("match not found")
	// ErrConflict is returned when a commit kept losing races with concurrent
	// writers and gave up. Callers may retry.
	ErrConflict = errors.New("match was modified concurrently")
)

// DefaultCommitRetries bounds optimistic commit attempts.
const DefaultCommitRetries = 5

// Mutation computes the next match from the current one. Returning
// duel.ErrNoChange leaves the record untouched; any other error aborts.
type Mutation func(duel.Match) (duel.Match, error)

// MatchStore is the persistence contract the duel service depends on.
type MatchStore interface {
	// Create persists a new match under a freshly allocated id.
	Create(ctx context.Context, m duel.Match) (string, error)
	// Load returns the current match or ErrNotFound.
	Load(ctx context.Context, id string) (duel.Match, error)
	// Commit applies mutate atomically with respect to other commits on the
	// same id and returns the stored result. When mutate reports
	// duel.ErrNoChange the current match is returned alongside that error.
	Commit(ctx context.Context, id string, mutate Mutation) (duel.Match, error)
	// Stats aggregates match counts.
	Stats(ctx context.Context) (Stats, error)
}

// Stats represents aggregate counts for matches.
type Stats struct {
	Started    int64 `json:"started"`
	Waiting    int64 `json:"waiting"`
	InProgress int64 `json:"inProgress"`
}

// Revision is one committed version of a match in its audit trail.
type Revision struct {
	Version   int64     `json:"version"`
	TurnCount int       `json:"turnCount"`
	Entry     string    `json:"entry"`
	CreatedAt time.Time `json:"createdAt"`
}

// RevisionLister is implemented by stores that keep a commit history.
// Revisions are returned oldest first; an unknown id yields ErrNotFound.
type RevisionLister interface {
	Revisions(ctx context.Context, id string) ([]Revision, error)
}

// NewRevision describes the committed match m.
func NewRevision(m duel.Match) Revision {
	return Revision{
		Version:   m.Version,
		TurnCount: m.TurnCount,
		Entry:     newestEntry(m),
		CreatedAt: m.UpdatedAt,
	}
}

func newestEntry(m duel.Match) string {
	if len(m.Log) == 0 {
		return ""
	}
	return m.Log[len(m.Log)-1]
}

// finalize stamps the bookkeeping fields a store owns on a committed match.
func finalize(next duel.Match, id string, version int64) duel.Match {
	next.ID = id
	next.Version = version
	return next
}
