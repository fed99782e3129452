package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"tinyduel/internal/duel"
)

// Memory keeps matches in process. Each match has its own lock so commits on
// different matches never contend.
type Memory struct {
	mu      sync.RWMutex
	matches map[string]*memoryEntry
}

type memoryEntry struct {
	mu        sync.Mutex
	match     duel.Match
	revisions []Revision
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{matches: make(map[string]*memoryEntry)}
}

// Create inserts a new match with a fresh id.
func (s *Memory) Create(ctx context.Context, m duel.Match) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.mu.Lock()
	stored := finalize(m.Clone(), id, 1)
	s.matches[id] = &memoryEntry{match: stored, revisions: []Revision{NewRevision(stored)}}
	s.mu.Unlock()
	return id, nil
}

// Load returns a copy of the stored match.
func (s *Memory) Load(ctx context.Context, id string) (duel.Match, error) {
	if err := ctx.Err(); err != nil {
		return duel.Match{}, err
	}
	e, ok := s.entry(id)
	if !ok {
		return duel.Match{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.match.Clone(), nil
}

// Commit runs mutate under the match lock.
func (s *Memory) Commit(ctx context.Context, id string, mutate Mutation) (duel.Match, error) {
	if err := ctx.Err(); err != nil {
		return duel.Match{}, err
	}
	e, ok := s.entry(id)
	if !ok {
		return duel.Match{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := mutate(e.match.Clone())
	if err != nil {
		if errors.Is(err, duel.ErrNoChange) {
			return e.match.Clone(), err
		}
		return duel.Match{}, err
	}
	e.match = finalize(next.Clone(), id, e.match.Version+1)
	e.revisions = append(e.revisions, NewRevision(e.match))
	return e.match.Clone(), nil
}

// Revisions returns the commit history of a match, oldest first.
func (s *Memory) Revisions(ctx context.Context, id string) ([]Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Revision, len(e.revisions))
	copy(out, e.revisions)
	return out, nil
}

// Stats counts matches by status.
func (s *Memory) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.matches))
	for _, e := range s.matches {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		status := e.match.Status()
		e.mu.Unlock()
		stats.Started++
		if status == duel.StatusWaiting {
			stats.Waiting++
		} else {
			stats.InProgress++
		}
	}
	return stats, nil
}

func (s *Memory) entry(id string) (*memoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.matches[id]
	return e, ok
}
