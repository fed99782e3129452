package duel

import (
	"errors"
	"fmt"
	"strings"
)

// CardType classifies what a card represents in play.
type CardType string

const (
	CardAttack       CardType = "Attack"
	CardMagic        CardType = "Magic"
	CardRaceAbility  CardType = "RaceAbility"
	CardClassAbility CardType = "ClassAbility"
)

// Valid reports whether t is one of the known card types.
func (t CardType) Valid() bool {
	switch t {
	case CardAttack, CardMagic, CardRaceAbility, CardClassAbility:
		return true
	}
	return false
}

// Card is an immutable gameplay unit. Cards never change once dealt; they
// only move between a player's zones.
type Card struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        CardType `json:"type"`
	MagicLevel  *int     `json:"magicLevel,omitempty"`
	Damage      string   `json:"damage,omitempty"`
	Test        string   `json:"test,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Description string   `json:"description"`
}

// Is reports whether two cards are the same card.
func (c Card) Is(other Card) bool { return c.ID == other.ID }

// Deck is the ordered list of cards a character brings to a duel. It is a
// snapshot; duel-time mutations only touch the copy embedded in the match.
type Deck struct {
	CharacterID string `json:"characterId"`
	Cards       []Card `json:"cards"`
}

var (
	ErrEmptyDeck   = errors.New("deck has no cards")
	ErrInvalidDeck = errors.New("invalid deck")
)

// Validate checks that the deck can be dealt: at least one card, every card
// identified, no duplicate ids and only known card types.
func (d Deck) Validate() error {
	if len(d.Cards) == 0 {
		return ErrEmptyDeck
	}
	seen := make(map[string]struct{}, len(d.Cards))
	for i, c := range d.Cards {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return fmt.Errorf("%w: card %d has no id", ErrInvalidDeck, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate card id %q", ErrInvalidDeck, id)
		}
		seen[id] = struct{}{}
		if !c.Type.Valid() {
			return fmt.Errorf("%w: card %q has unknown type %q", ErrInvalidDeck, id, c.Type)
		}
	}
	return nil
}

func cloneCards(cards []Card) []Card {
	if cards == nil {
		return nil
	}
	out := make([]Card, len(cards))
	for i, c := range cards {
		if c.MagicLevel != nil {
			lvl := *c.MagicLevel
			c.MagicLevel = &lvl
		}
		out[i] = c
	}
	return out
}
