package game

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"tinyduel/internal/duel"
	"tinyduel/internal/storage"
)

func testDeck(prefix string, n int) duel.Deck {
	cards := make([]duel.Card, n)
	for i := range cards {
		cards[i] = duel.Card{
			ID:   fmt.Sprintf("%s-%d", prefix, i),
			Name: fmt.Sprintf("%s card %d", prefix, i),
			Type: duel.CardAttack,
		}
	}
	return duel.Deck{CharacterID: prefix + "-char", Cards: cards}
}

func newTestService() *Service {
	return NewService(storage.NewMemory(), NewHub(), duel.NewMachine(duel.NewShuffler(7)))
}

func startMatch(t *testing.T, svc *Service) duel.Match {
	t.Helper()
	ctx := context.Background()
	m, err := svc.CreateMatch(ctx, duel.Seat{UserID: "A", Name: "Aria", HP: 20}, testDeck("a", 12))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	m, err = svc.JoinMatch(ctx, m.ID, duel.Seat{UserID: "B", Name: "Brom", HP: 18}, testDeck("b", 12))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	return m
}

func TestServiceHappyPath(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	m := startMatch(t, svc)
	if m.Status() != duel.StatusInProgress || m.Version != 2 {
		t.Fatalf("status=%s version=%d", m.Status(), m.Version)
	}

	m, err := svc.DrawCard(ctx, m.ID, "A")
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	a, _ := m.Player("A")
	if len(a.Hand) != 6 || len(a.Deck) != 6 || m.Phase != duel.PhaseMain {
		t.Fatalf("hand=%d deck=%d phase=%s", len(a.Hand), len(a.Deck), m.Phase)
	}

	card := a.Hand[0]
	m, err = svc.PlayCard(ctx, m.ID, "A", card.ID)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	a, _ = m.Player("A")
	if len(a.Field) != 1 || a.Field[0].ID != card.ID {
		t.Fatalf("field = %+v", a.Field)
	}

	m, err = svc.EndTurn(ctx, m.ID, "A")
	if err != nil {
		t.Fatalf("end turn: %v", err)
	}
	if m.CurrentTurnUserID != "B" || m.TurnCount != 2 || m.Phase != duel.PhaseDraw {
		t.Fatalf("turn=%s count=%d phase=%s", m.CurrentTurnUserID, m.TurnCount, m.Phase)
	}
	want := []string{
		"Match started by Aria",
		"Brom joined the duel",
		"Aria drew a card",
		"Aria played " + card.Name,
		"Turn ended. Brom's turn.",
	}
	if !reflect.DeepEqual(m.Log, want) {
		t.Fatalf("log = %q", m.Log)
	}

	stored, err := svc.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Version != m.Version {
		t.Fatalf("stored version = %d, want %d", stored.Version, m.Version)
	}
}

func TestServiceJoinFullLeavesMatchUnchanged(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	m := startMatch(t, svc)

	_, err := svc.JoinMatch(ctx, m.ID, duel.Seat{UserID: "C", Name: "Cato", HP: 10}, testDeck("c", 6))
	if !errors.Is(err, duel.ErrMatchFull) {
		t.Fatalf("err = %v, want ErrMatchFull", err)
	}
	after, _ := svc.GetMatch(ctx, m.ID)
	if !reflect.DeepEqual(after, m) {
		t.Fatalf("match changed after rejected join")
	}
}

func TestServiceNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	if _, err := svc.DrawCard(ctx, "missing", "A"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("draw err = %v", err)
	}
	if _, err := svc.JoinMatch(ctx, "missing", duel.Seat{UserID: "B", Name: "Brom", HP: 1}, testDeck("b", 1)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("join err = %v", err)
	}
	if _, err := svc.SubscribeToMatch(ctx, "missing", func(duel.Match) {}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("subscribe err = %v", err)
	}
	if n := svc.Hub().Subscribers("missing"); n != 0 {
		t.Fatalf("failed subscribe left %d subscribers", n)
	}
}

func TestServiceNoOpIsSilent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	m := startMatch(t, svc)

	var calls atomic.Int32
	unsub, err := svc.SubscribeToMatch(ctx, m.ID, func(duel.Match) { calls.Add(1) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()
	waitFor(t, func() bool { return calls.Load() == 1 })

	got, err := svc.PlayCard(ctx, m.ID, "A", "no-such-card")
	if err != nil {
		t.Fatalf("play absent card: %v", err)
	}
	if !reflect.DeepEqual(got, m) {
		t.Fatalf("no-op changed the match")
	}
	if _, err := svc.EndTurn(ctx, m.ID, "stranger"); err != nil {
		t.Fatalf("end turn by stranger: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("no-op published a snapshot")
	}
}

func TestServiceConcurrentDrawsBothLand(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	m := startMatch(t, svc)

	const draws = 4
	var wg sync.WaitGroup
	for _, user := range []string{"A", "B"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for i := 0; i < draws; i++ {
				if _, err := svc.DrawCard(ctx, m.ID, user); err != nil {
					t.Errorf("draw %s: %v", user, err)
				}
			}
		}(user)
	}
	wg.Wait()

	got, err := svc.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != m.Version+2*draws {
		t.Fatalf("version = %d, want %d", got.Version, m.Version+2*draws)
	}
	for _, p := range got.Players {
		if len(p.Hand) != duel.DefaultHandSize+draws || len(p.Cards()) != 12 {
			t.Fatalf("%s hand=%d total=%d", p.UserID, len(p.Hand), len(p.Cards()))
		}
	}
}

func TestServiceSubscribeReceivesCommits(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	m := startMatch(t, svc)

	var latest atomic.Int64
	unsub, err := svc.SubscribeToMatch(ctx, m.ID, func(got duel.Match) { latest.Store(got.Version) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitFor(t, func() bool { return latest.Load() == m.Version })

	next, err := svc.DrawCard(ctx, m.ID, "B")
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	waitFor(t, func() bool { return latest.Load() == next.Version })

	unsub()
	unsub()
	if n := svc.Hub().Subscribers(m.ID); n != 0 {
		t.Fatalf("subscribers = %d after unsubscribe", n)
	}
}

func TestServiceCreateRejectsBadInput(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateMatch(context.Background(), duel.Seat{UserID: "A", Name: "Aria", HP: 5}, duel.Deck{})
	if !errors.Is(err, duel.ErrEmptyDeck) {
		t.Fatalf("err = %v, want ErrEmptyDeck", err)
	}
	stats, _ := svc.Stats(context.Background())
	if stats.Started != 0 {
		t.Fatalf("rejected create was stored: %+v", stats)
	}
}

type historylessStore struct{ storage.MatchStore }

func TestServiceRevisions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	m := startMatch(t, svc)
	if _, err := svc.DrawCard(ctx, m.ID, "A"); err != nil {
		t.Fatalf("draw: %v", err)
	}

	revs, err := svc.Revisions(ctx, m.ID)
	if err != nil {
		t.Fatalf("revisions: %v", err)
	}
	if len(revs) != 3 || revs[2].Entry != "Aria drew a card" {
		t.Fatalf("revisions = %+v", revs)
	}

	bare := NewService(historylessStore{storage.NewMemory()}, nil, nil)
	if _, err := bare.Revisions(ctx, m.ID); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("err = %v, want ErrNoHistory", err)
	}
}
