package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/kanadeck/internal/domain"
	"github.com/conorfennell/kanadeck/internal/sm2"
)

// DefaultCategory is used when a card is added without one.
const DefaultCategory = "general"

// NewCard holds the caller-supplied content of a card.
type NewCard struct {
	Front    string   `json:"front"`
	Back     string   `json:"back"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// CardPatch lists the content fields to overwrite. Nil fields are left as is.
// Scheduling fields can only change through Review, Rate and ResetCard.
type CardPatch struct {
	Front    *string  `json:"front"`
	Back     *string  `json:"back"`
	Category *string  `json:"category"`
	Tags     []string `json:"tags"`
}

// Cards returns every card in collection order.
func (s *Scheduler) Cards() []domain.Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Card, len(s.cards))
	for i, c := range s.cards {
		out[i] = c.Clone()
	}
	return out
}

// Card returns the card with the given id.
func (s *Scheduler) Card(id string) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.Card{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.cards[i].Clone(), nil
}

// AddCard creates a new, immediately due card and appends it to the deck.
func (s *Scheduler) AddCard(in NewCard) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card := freshCard(uuid.NewString(), in.Front, in.Back, in.Category, in.Tags, s.now())
	if err := validate.Struct(card); err != nil {
		return domain.Card{}, fmt.Errorf("%w: %v", ErrInvalidCard, err)
	}
	s.cards = append(s.cards, card)
	s.persist()
	return card.Clone(), nil
}

// UpdateCard merges patch into the card with the given id.
func (s *Scheduler) UpdateCard(id string, patch CardPatch) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.Card{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := s.cards[i].Clone()
	if patch.Front != nil {
		c.Front = *patch.Front
	}
	if patch.Back != nil {
		c.Back = *patch.Back
	}
	if patch.Category != nil {
		c.Category = *patch.Category
	}
	if patch.Tags != nil {
		c.Tags = append([]string{}, patch.Tags...)
	}
	if err := validate.Struct(c); err != nil {
		return domain.Card{}, fmt.Errorf("%w: %v", ErrInvalidCard, err)
	}
	s.cards[i] = c
	s.persist()
	return c.Clone(), nil
}

// DeleteCard removes the card with the given id.
func (s *Scheduler) DeleteCard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.cards = append(s.cards[:i], s.cards[i+1:]...)
	s.persist()
	return nil
}

// ResetCard restores the scheduling state of a never-studied card.
func (s *Scheduler) ResetCard(id string) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.Card{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.cards[i] = sm2.Reset(s.cards[i], s.now())
	s.persist()
	return s.cards[i].Clone(), nil
}

// Reconcile makes the cards tagged with source match incoming: unseen ids are
// added with fresh scheduling state, known ids keep theirs, and cards of that
// source missing from incoming are removed. Invalid incoming cards are skipped.
func (s *Scheduler) Reconcile(source string, incoming []domain.Card) (added, removed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	keep := make(map[string]bool, len(incoming))
	for _, in := range incoming {
		if keep[in.ID] {
			continue
		}
		keep[in.ID] = true
		if s.indexOf(in.ID) >= 0 {
			continue
		}
		card := freshCard(in.ID, in.Front, in.Back, in.Category, in.Tags, now)
		card.Source = source
		if err := validate.Struct(card); err != nil {
			s.log.Warn("Skipping invalid card", "source", source, "id", in.ID, "error", err)
			continue
		}
		s.cards = append(s.cards, card)
		added++
	}

	kept := s.cards[:0]
	for _, c := range s.cards {
		if c.Source == source && !keep[c.ID] {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.cards = kept

	if added > 0 || removed > 0 {
		s.persist()
	}
	return added, removed
}

func freshCard(id, front, back, category string, tags []string, now time.Time) domain.Card {
	if category == "" {
		category = DefaultCategory
	}
	return domain.Card{
		ID:        id,
		Front:     front,
		Back:      back,
		Category:  category,
		Tags:      append([]string{}, tags...),
		Easiness:  sm2.InitialEasiness,
		DueDate:   now,
		CreatedAt: now,
	}
}

// SeedCards returns the example cards a brand new deck starts with.
func SeedCards(now time.Time) []domain.Card {
	seed := []struct{ id, front, back string }{
		{"1", "こんにちは", "Hello"},
		{"2", "ありがとう", "Thank you"},
		{"3", "さようなら", "Goodbye"},
	}
	cards := make([]domain.Card, 0, len(seed))
	for _, c := range seed {
		cards = append(cards, freshCard(c.id, c.front, c.back, "greetings", []string{"basic"}, now))
	}
	return cards
}
