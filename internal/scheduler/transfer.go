package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/conorfennell/kanadeck/internal/domain"
)

// Export returns the deck's cards as an indented JSON array.
func (s *Scheduler) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards := s.cards
	if cards == nil {
		cards = []domain.Card{}
	}
	data, err := json.MarshalIndent(cards, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export deck %s: %w", s.deck, err)
	}
	return data, nil
}

// Import loads a JSON array of cards. With replace the collection becomes the
// payload; otherwise only cards with unseen ids are appended. The collection is
// untouched if the payload fails to parse, repeats an id or holds an invalid
// card. It returns the number of cards in the payload.
func (s *Scheduler) Import(data []byte, replace bool) (int, error) {
	var imported []domain.Card
	if err := json.Unmarshal(data, &imported); err != nil {
		return 0, fmt.Errorf("%w: failed to parse cards: %v", ErrInvalidCard, err)
	}
	ids := make(map[string]bool, len(imported))
	for i, c := range imported {
		if err := validate.Struct(c); err != nil {
			return 0, fmt.Errorf("%w: card %d: %v", ErrInvalidCard, i, err)
		}
		if ids[c.ID] {
			return 0, fmt.Errorf("%w: card %d: duplicate id %q", ErrInvalidCard, i, c.ID)
		}
		ids[c.ID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if replace {
		s.cards = imported
	} else {
		seen := make(map[string]bool, len(s.cards))
		for _, c := range s.cards {
			seen[c.ID] = true
		}
		for _, c := range imported {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			s.cards = append(s.cards, c)
		}
	}
	s.persist()
	return len(imported), nil
}
