package game

import (
	"context"
	"errors"

	"tinyduel/internal/duel"
	"tinyduel/internal/logging"
	"tinyduel/internal/storage"
)

var (
	// ErrHubClosed is returned when subscribing after the hub was closed.
	ErrHubClosed = errors.New("notifier closed")
	// ErrNoHistory is returned when the store keeps no commit history.
	ErrNoHistory = errors.New("match history not available")
)

// Service is the client-facing duel API. Every action commits a machine
// transition through the store and then publishes the committed match.
type Service struct {
	store   storage.MatchStore
	hub     *Hub
	machine *duel.Machine
}

// NewService wires a store, hub and machine together. A nil hub or machine is
// replaced with a default one.
func NewService(store storage.MatchStore, hub *Hub, machine *duel.Machine) *Service {
	if hub == nil {
		hub = NewHub()
	}
	if machine == nil {
		machine = duel.NewMachine(nil)
	}
	return &Service{store: store, hub: hub, machine: machine}
}

// Hub returns the notifier used for committed matches.
func (s *Service) Hub() *Hub { return s.hub }

// CreateMatch starts a match with the caller in the first seat.
func (s *Service) CreateMatch(ctx context.Context, seat duel.Seat, deck duel.Deck) (duel.Match, error) {
	m, err := s.machine.Create(seat, deck)
	if err != nil {
		return duel.Match{}, err
	}
	id, err := s.store.Create(ctx, m)
	if err != nil {
		return duel.Match{}, err
	}
	m.ID = id
	m.Version = 1
	logging.With("match", id, "user", seat.UserID).Infow("match created", "deck", len(deck.Cards))
	return m, nil
}

// JoinMatch seats a second player.
func (s *Service) JoinMatch(ctx context.Context, matchID string, seat duel.Seat, deck duel.Deck) (duel.Match, error) {
	return s.apply(ctx, matchID, "join", seat.UserID, func(cur duel.Match) (duel.Match, error) {
		return s.machine.Join(cur, seat, deck)
	})
}

// DrawCard moves the top card of the player's deck to their hand.
func (s *Service) DrawCard(ctx context.Context, matchID, userID string) (duel.Match, error) {
	return s.apply(ctx, matchID, "draw", userID, func(cur duel.Match) (duel.Match, error) {
		return s.machine.Draw(cur, userID)
	})
}

// PlayCard moves a card from the player's hand to their field.
func (s *Service) PlayCard(ctx context.Context, matchID, userID, cardID string) (duel.Match, error) {
	return s.apply(ctx, matchID, "play", userID, func(cur duel.Match) (duel.Match, error) {
		return s.machine.Play(cur, userID, cardID)
	})
}

// EndTurn passes the turn to the opponent.
func (s *Service) EndTurn(ctx context.Context, matchID, userID string) (duel.Match, error) {
	return s.apply(ctx, matchID, "end_turn", userID, func(cur duel.Match) (duel.Match, error) {
		return s.machine.EndTurn(cur, userID)
	})
}

// GetMatch loads the current snapshot.
func (s *Service) GetMatch(ctx context.Context, matchID string) (duel.Match, error) {
	return s.store.Load(ctx, matchID)
}

// Revisions returns the audit trail of committed versions, oldest first.
func (s *Service) Revisions(ctx context.Context, matchID string) ([]storage.Revision, error) {
	lister, ok := s.store.(storage.RevisionLister)
	if !ok {
		return nil, ErrNoHistory
	}
	return lister.Revisions(ctx, matchID)
}

// Stats reports match counts from the store.
func (s *Service) Stats(ctx context.Context) (storage.Stats, error) {
	return s.store.Stats(ctx)
}

// SubscribeToMatch attaches fn to matchID and immediately queues the current
// snapshot for it. ErrNotFound is returned for unknown matches.
func (s *Service) SubscribeToMatch(ctx context.Context, matchID string, fn func(duel.Match)) (func(), error) {
	sub := s.hub.subscribe(matchID, fn)
	if sub == nil {
		return nil, ErrHubClosed
	}
	cur, err := s.store.Load(ctx, matchID)
	if err != nil {
		sub.stop()
		return nil, err
	}
	sub.offer(cur)
	return sub.stop, nil
}

func (s *Service) apply(ctx context.Context, matchID, action, userID string, mutate storage.Mutation) (duel.Match, error) {
	log := logging.With("match", matchID, "action", action, "user", userID)
	next, err := s.store.Commit(ctx, matchID, mutate)
	switch {
	case errors.Is(err, duel.ErrNoChange):
		log.Debugw("action ignored", "version", next.Version)
		return next, nil
	case err != nil:
		log.Infow("action rejected", "error", err)
		return duel.Match{}, err
	}
	s.hub.Publish(next)
	log.Infow("action committed", "version", next.Version, "turn", next.TurnCount, "phase", next.Phase)
	return next, nil
}
