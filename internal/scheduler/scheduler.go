package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/kanadeck/internal/domain"
	"github.com/conorfennell/kanadeck/internal/logger"
	"github.com/conorfennell/kanadeck/internal/sm2"
)

// Store persists a deck's card collection and its session history.
// LoadCards reports found=false when the deck has never been saved.
type Store interface {
	LoadCards(ctx context.Context, deck string) (cards []domain.Card, found bool, err error)
	SaveCards(ctx context.Context, deck string, cards []domain.Card) error
	AppendSession(ctx context.Context, deck string, session domain.Session) error
	LoadSessions(ctx context.Context, deck string) ([]domain.Session, error)
}

var validate = validator.New()

// Scheduler owns one deck: its cards, the review cursor, the reveal flag
// and the current study session. All methods are safe for concurrent use.
type Scheduler struct {
	mu sync.Mutex

	deck           string
	store          Store
	log            *logger.Logger
	now            func() time.Time
	seed           bool
	persistTimeout time.Duration

	cards    []domain.Card
	cursor   int
	revealed bool
	session  domain.Session
	history  []domain.Session
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithSeed controls whether a never-saved deck starts with the example cards.
func WithSeed(seed bool) Option {
	return func(s *Scheduler) { s.seed = seed }
}

// WithPersistTimeout bounds each call into the Store.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.persistTimeout = d }
}

// New loads the deck from store. A deck that was never saved is seeded
// (unless disabled) and saved. A nil store keeps the deck in memory only.
func New(ctx context.Context, deck string, store Store, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		deck:           deck,
		store:          store,
		log:            logger.Nop(),
		now:            time.Now,
		seed:           true,
		persistTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("deck", deck)

	if store == nil {
		if s.seed {
			s.cards = SeedCards(s.now())
		}
		return s, nil
	}

	cards, found, err := store.LoadCards(ctx, deck)
	if err != nil {
		return nil, fmt.Errorf("load cards for deck %s: %w", deck, err)
	}
	history, err := store.LoadSessions(ctx, deck)
	if err != nil {
		return nil, fmt.Errorf("load sessions for deck %s: %w", deck, err)
	}
	s.cards = cards
	s.history = history

	if !found && s.seed {
		s.log.Info("No saved cards, seeding deck")
		s.cards = SeedCards(s.now())
		s.persist()
	}
	return s, nil
}

// Deck returns the deck name.
func (s *Scheduler) Deck() string {
	return s.deck
}

// DueCards returns the cards due now, in collection order.
func (s *Scheduler) DueCards() []domain.Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.dueIndexes(s.now())
	out := make([]domain.Card, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.cards[i].Clone())
	}
	return out
}

// CurrentCard returns the due card under the cursor. ok is false when nothing
// is due or the cursor is past the end of the due set.
func (s *Scheduler) CurrentCard() (card domain.Card, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.currentIndex()
	if !ok {
		return domain.Card{}, false
	}
	return s.cards[i].Clone(), true
}

// View is a consistent snapshot of the review screen.
type View struct {
	Card     *domain.Card   // nil when nothing is due
	Revealed bool
	Due      int
	Session  domain.Session
}

// View returns the current card, reveal flag, due count and session under a
// single lock.
func (s *Scheduler) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Revealed: s.revealed,
		Due:      len(s.dueIndexes(s.now())),
		Session:  s.session.Clone(),
	}
	if i, ok := s.currentIndex(); ok {
		card := s.cards[i].Clone()
		v.Card = &card
	}
	return v
}

// Revealed reports whether the answer side of the current card is shown.
func (s *Scheduler) Revealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealed
}

// ToggleReveal flips the reveal flag and returns its new value.
func (s *Scheduler) ToggleReveal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revealed = !s.revealed
	return s.revealed
}

// Rate reviews the current card with quality q and advances the cursor.
func (s *Scheduler) Rate(q sm2.Quality) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.currentIndex()
	if !ok {
		return domain.Card{}, ErrNothingDue
	}
	if err := s.review(i, q); err != nil {
		return domain.Card{}, err
	}
	reviewed := s.cards[i].Clone()
	s.advance()
	return reviewed, nil
}

// Review reviews the card with the given id and advances the cursor.
func (s *Scheduler) Review(id string, q sm2.Quality) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.Card{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.review(i, q); err != nil {
		return domain.Card{}, err
	}
	reviewed := s.cards[i].Clone()
	s.advance()
	return reviewed, nil
}

// review applies the update rule to s.cards[i] and records it in the session.
func (s *Scheduler) review(i int, q sm2.Quality) error {
	updated, err := sm2.Review(s.cards[i], q, s.now())
	if err != nil {
		return err
	}
	s.cards[i] = updated

	if s.session.IsActive {
		s.session.CardsStudied++
		if q.Passed() {
			s.session.CorrectAnswers++
		}
	}
	s.persist()
	return nil
}

// advance hides the answer and moves the cursor over the freshly computed
// due set, wrapping to 0 at the end. An empty due set ends the session.
func (s *Scheduler) advance() {
	s.revealed = false
	due := s.dueIndexes(s.now())
	if s.cursor < len(due)-1 {
		s.cursor++
		return
	}
	s.cursor = 0
	if len(due) == 0 {
		s.endSession()
	}
}

// Stats summarises the deck as of now.
func (s *Scheduler) Stats() domain.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stats := domain.Stats{
		Total:   len(s.cards),
		Due:     len(s.dueIndexes(now)),
		Session: s.session.Clone(),
	}
	y, m, d := now.Date()
	var sum float64
	for _, c := range s.cards {
		sum += c.Easiness
		if c.LastStudied == nil {
			continue
		}
		ly, lm, ld := c.LastStudied.In(now.Location()).Date()
		if ly == y && lm == m && ld == d {
			stats.StudiedToday++
		}
	}
	if len(s.cards) > 0 {
		stats.AverageEasiness = sum / float64(len(s.cards))
	}
	return stats
}

func (s *Scheduler) dueIndexes(now time.Time) []int {
	var idx []int
	for i, c := range s.cards {
		if c.IsDue(now) {
			idx = append(idx, i)
		}
	}
	return idx
}

func (s *Scheduler) currentIndex() (int, bool) {
	due := s.dueIndexes(s.now())
	if s.cursor < 0 || s.cursor >= len(due) {
		return -1, false
	}
	return due[s.cursor], true
}

func (s *Scheduler) indexOf(id string) int {
	for i, c := range s.cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// persist saves the whole collection. Failures are logged, never returned.
func (s *Scheduler) persist() {
	if s.store == nil {
		return
	}
	snapshot := make([]domain.Card, len(s.cards))
	for i, c := range s.cards {
		snapshot[i] = c.Clone()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := s.store.SaveCards(ctx, s.deck, snapshot); err != nil {
		s.log.Warn("Failed to save cards", "cards", len(snapshot), "error", err)
	}
}
