package duel

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultHandSize is the number of cards dealt when a player takes a seat.
	DefaultHandSize = 5
	// DefaultLogLimit caps the match log; older entries are dropped first.
	DefaultLogLimit = 200
)

var (
	ErrMatchFull     = errors.New("match full")
	ErrAlreadyJoined = errors.New("player already in match")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrInvalidHP     = errors.New("character hp must be positive")
	ErrInvalidSeat   = errors.New("invalid seat")

	// ErrNoChange marks a transition whose preconditions silently do not hold
	// (card not in hand, unknown player, nothing to draw, no opponent). The
	// match is returned untouched and nothing is committed.
	ErrNoChange = errors.New("no change")
)

// Shuffler permutes n elements through swap. *math/rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

type lockedShuffler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewShuffler returns a goroutine-safe uniform shuffler seeded with seed.
func NewShuffler(seed int64) Shuffler {
	return &lockedShuffler{rng: rand.New(rand.NewSource(seed))}
}

func (s *lockedShuffler) Shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	s.rng.Shuffle(n, swap)
	s.mu.Unlock()
}

// Seat identifies who is sitting down at a match and with which character.
type Seat struct {
	UserID      string `json:"userId"`
	CharacterID string `json:"characterId"`
	Name        string `json:"characterName"`
	HP          int    `json:"characterHp"`
}

func (s Seat) validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidSeat)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: character name is required", ErrInvalidSeat)
	}
	if s.HP <= 0 {
		return ErrInvalidHP
	}
	return nil
}

// Machine validates and applies duel transitions. Every transition returns a
// new Match and leaves its input untouched; the only impurity is Shuffler.
type Machine struct {
	Shuffler Shuffler
	Now      func() time.Time
	HandSize int
	// LogLimit keeps only the most recent entries. Zero keeps everything.
	LogLimit int
	// EnforceTurnOrder rejects draw, play and end-turn from the player whose
	// turn it is not. Off by default; clients gate these controls themselves.
	EnforceTurnOrder bool
}

// NewMachine returns a Machine with default hand size and log limit. A nil
// shuffler is replaced by a time-seeded one.
func NewMachine(sh Shuffler) *Machine {
	if sh == nil {
		sh = NewShuffler(time.Now().UnixNano())
	}
	return &Machine{
		Shuffler: sh,
		Now:      time.Now,
		HandSize: DefaultHandSize,
		LogLimit: DefaultLogLimit,
	}
}

// Create opens a match with the creator as the only player. The returned
// match has no ID; the store allocates one.
func (m *Machine) Create(seat Seat, deck Deck) (Match, error) {
	if err := seat.validate(); err != nil {
		return Match{}, err
	}
	player, err := m.deal(seat, deck)
	if err != nil {
		return Match{}, err
	}
	now := m.now()
	match := Match{
		Players:           []Player{player},
		CurrentTurnUserID: seat.UserID,
		Phase:             PhaseDraw,
		TurnCount:         1,
		Log:               []string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.appendLog(&match, fmt.Sprintf("Match started by %s", seat.Name))
	return match, nil
}

// Join seats a second player. The creator keeps the first turn.
func (m *Machine) Join(cur Match, seat Seat, deck Deck) (Match, error) {
	if len(cur.Players) >= MaxPlayers {
		return cur, ErrMatchFull
	}
	if err := seat.validate(); err != nil {
		return cur, err
	}
	if cur.playerIndex(seat.UserID) >= 0 {
		return cur, ErrAlreadyJoined
	}
	player, err := m.deal(seat, deck)
	if err != nil {
		return cur, err
	}
	next := cur.Clone()
	next.Players = append(next.Players, player)
	m.appendLog(&next, fmt.Sprintf("%s joined the duel", seat.Name))
	next.UpdatedAt = m.now()
	return next, nil
}

// Draw moves the front card of the player's deck into their hand. An empty
// deck is first refilled by shuffling the graveyard into it. A draw by the
// current-turn player during the Draw phase moves the match to Main.
func (m *Machine) Draw(cur Match, userID string) (Match, error) {
	i := cur.playerIndex(userID)
	if i < 0 {
		return cur, ErrNoChange
	}
	if err := m.checkTurn(cur, userID); err != nil {
		return cur, err
	}
	p := cur.Players[i]
	if len(p.Deck) == 0 && len(p.Graveyard) == 0 {
		return cur, ErrNoChange
	}

	next := cur.Clone()
	p = next.Players[i]
	if len(p.Deck) == 0 {
		p.Deck = p.Graveyard
		p.Graveyard = []Card{}
		m.shuffle(p.Deck)
	}
	card := p.Deck[0]
	p.Deck = p.Deck[1:]
	p.Hand = append(p.Hand, card)
	next.Players[i] = p

	m.advanceFromDraw(&next, userID)
	m.appendLog(&next, fmt.Sprintf("%s drew a card", p.Name))
	next.UpdatedAt = m.now()
	return next, nil
}

// Play moves a card from the player's hand onto their field. Like Draw, a
// play by the current-turn player during the Draw phase moves the match to
// Main.
func (m *Machine) Play(cur Match, userID, cardID string) (Match, error) {
	i := cur.playerIndex(userID)
	if i < 0 {
		return cur, ErrNoChange
	}
	if err := m.checkTurn(cur, userID); err != nil {
		return cur, err
	}
	at := cur.Players[i].handIndex(cardID)
	if at < 0 {
		return cur, ErrNoChange
	}

	next := cur.Clone()
	p := next.Players[i]
	card := p.Hand[at]
	p.Hand = append(p.Hand[:at], p.Hand[at+1:]...)
	p.Field = append(p.Field, card)
	next.Players[i] = p

	m.advanceFromDraw(&next, userID)
	m.appendLog(&next, fmt.Sprintf("%s played %s", p.Name, card.Name))
	next.UpdatedAt = m.now()
	return next, nil
}

// EndTurn hands the turn to the caller's opponent and starts their Draw
// phase. When turn order is not enforced an off-turn caller passes the turn
// to the player who already holds it.
func (m *Machine) EndTurn(cur Match, userID string) (Match, error) {
	if cur.playerIndex(userID) < 0 {
		return cur, ErrNoChange
	}
	if err := m.checkTurn(cur, userID); err != nil {
		return cur, err
	}
	opponent, ok := cur.Opponent(userID)
	if !ok {
		return cur, ErrNoChange
	}

	next := cur.Clone()
	next.CurrentTurnUserID = opponent.UserID
	next.TurnCount++
	next.Phase = PhaseDraw
	m.appendLog(&next, fmt.Sprintf("Turn ended. %s's turn.", opponent.Name))
	next.UpdatedAt = m.now()
	return next, nil
}

func (m *Machine) deal(seat Seat, deck Deck) (Player, error) {
	if err := deck.Validate(); err != nil {
		return Player{}, err
	}
	cards := cloneCards(deck.Cards)
	m.shuffle(cards)

	n := m.handSize()
	if n > len(cards) {
		n = len(cards)
	}
	hand := make([]Card, n)
	copy(hand, cards[:n])
	rest := make([]Card, len(cards)-n)
	copy(rest, cards[n:])

	characterID := seat.CharacterID
	if characterID == "" {
		characterID = deck.CharacterID
	}
	return Player{
		UserID:      seat.UserID,
		CharacterID: characterID,
		Name:        seat.Name,
		HP:          seat.HP,
		MaxHP:       seat.HP,
		Deck:        rest,
		Hand:        hand,
		Field:       []Card{},
		Graveyard:   []Card{},
	}, nil
}

func (m *Machine) checkTurn(cur Match, userID string) error {
	if m.EnforceTurnOrder && cur.CurrentTurnUserID != userID {
		return ErrNotYourTurn
	}
	return nil
}

func (m *Machine) advanceFromDraw(match *Match, userID string) {
	if match.CurrentTurnUserID == userID && match.Phase == PhaseDraw {
		match.Phase = PhaseMain
	}
}

func (m *Machine) appendLog(match *Match, line string) {
	match.Log = append(match.Log, line)
	if m.LogLimit > 0 && len(match.Log) > m.LogLimit {
		trimmed := make([]string, m.LogLimit)
		copy(trimmed, match.Log[len(match.Log)-m.LogLimit:])
		match.Log = trimmed
	}
}

func (m *Machine) shuffle(cards []Card) {
	if m.Shuffler == nil || len(cards) < 2 {
		return
	}
	m.Shuffler.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
}

func (m *Machine) handSize() int {
	if m.HandSize <= 0 {
		return DefaultHandSize
	}
	return m.HandSize
}

func (m *Machine) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}
