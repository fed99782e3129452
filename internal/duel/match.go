package duel

import "time"

// Phase is the sub-state within a turn. It is informational: actions are not
// gated on it.
type Phase string

const (
	PhaseDraw Phase = "Draw"
	PhaseMain Phase = "Main"
	PhaseEnd  Phase = "End"
)

// Status is the match-level lifecycle derived from the number of players.
type Status string

const (
	StatusWaiting    Status = "WaitingForOpponent"
	StatusInProgress Status = "InProgress"
)

// MaxPlayers is the number of seats in a duel.
const MaxPlayers = 2

// Player is one participant's live state within a match. Every card dealt to
// the player sits in exactly one of Deck, Hand, Field or Graveyard.
type Player struct {
	UserID      string `json:"userId"`
	CharacterID string `json:"characterId"`
	Name        string `json:"name"`
	HP          int    `json:"hp"`
	MaxHP       int    `json:"maxHp"`
	Deck        []Card `json:"deck"`
	Hand        []Card `json:"hand"`
	Field       []Card `json:"field"`
	Graveyard   []Card `json:"graveyard"`
}

// Cards returns every card the player owns across all zones.
func (p Player) Cards() []Card {
	out := make([]Card, 0, len(p.Deck)+len(p.Hand)+len(p.Field)+len(p.Graveyard))
	out = append(out, p.Deck...)
	out = append(out, p.Hand...)
	out = append(out, p.Field...)
	out = append(out, p.Graveyard...)
	return out
}

func (p Player) handIndex(cardID string) int {
	for i, c := range p.Hand {
		if c.ID == cardID {
			return i
		}
	}
	return -1
}

func (p Player) clone() Player {
	p.Deck = cloneCards(p.Deck)
	p.Hand = cloneCards(p.Hand)
	p.Field = cloneCards(p.Field)
	p.Graveyard = cloneCards(p.Graveyard)
	return p
}

// Match is the aggregate root of one duel. Players and cards are embedded
// values with no identity outside the match.
type Match struct {
	ID                string    `json:"id"`
	Version           int64     `json:"version"`
	Players           []Player  `json:"players"`
	CurrentTurnUserID string    `json:"currentTurnUserId"`
	Phase             Phase     `json:"phase"`
	TurnCount         int       `json:"turnCount"`
	Log               []string  `json:"log"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Status reports whether the match is still waiting for its second player.
func (m Match) Status() Status {
	if len(m.Players) < MaxPlayers {
		return StatusWaiting
	}
	return StatusInProgress
}

// Player returns the seat held by userID.
func (m Match) Player(userID string) (Player, bool) {
	if i := m.playerIndex(userID); i >= 0 {
		return m.Players[i], true
	}
	return Player{}, false
}

// Opponent returns the player who is not userID.
func (m Match) Opponent(userID string) (Player, bool) {
	for _, p := range m.Players {
		if p.UserID != userID {
			return p, true
		}
	}
	return Player{}, false
}

func (m Match) playerIndex(userID string) int {
	for i, p := range m.Players {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy that shares no slices with m.
func (m Match) Clone() Match {
	if m.Players != nil {
		players := make([]Player, len(m.Players))
		for i, p := range m.Players {
			players[i] = p.clone()
		}
		m.Players = players
	}
	if m.Log != nil {
		log := make([]string, len(m.Log))
		copy(log, m.Log)
		m.Log = log
	}
	return m
}
