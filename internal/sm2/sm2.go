package sm2

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/kanadeck/internal/domain"
)

// Quality is the user's 0-5 rating of how well a card was recalled.
// 0 is a total blackout, 5 is perfect recall.
type Quality int

const (
	MinQuality     Quality = 0
	PassingQuality Quality = 3
	MaxQuality     Quality = 5
)

const (
	InitialEasiness = 2.5
	MinEasiness     = 1.3
)

// Day is the unit of Card.Interval. A day is always 24h, independent of local midnight.
const Day = 24 * time.Hour

// ErrInvalidQuality is returned for a quality outside [MinQuality, MaxQuality].
var ErrInvalidQuality = errors.New("sm2: invalid quality")

// Valid reports whether q is within [MinQuality, MaxQuality].
func (q Quality) Valid() bool {
	return q >= MinQuality && q <= MaxQuality
}

// Passed reports whether q counts as a successful recall.
func (q Quality) Passed() bool {
	return q >= PassingQuality
}

// Review applies one review of quality q at now and returns the updated card.
// The input card is not mutated. An invalid quality leaves the card untouched.
func Review(card domain.Card, q Quality, now time.Time) (domain.Card, error) {
	if !q.Valid() {
		return card, fmt.Errorf("%w: %d", ErrInvalidQuality, int(q))
	}

	c := card.Clone()
	studied := now
	c.LastStudied = &studied

	if !q.Passed() {
		c.Repetitions = 0
		c.Interval = 1
	} else {
		c.Repetitions++
		switch c.Repetitions {
		case 1:
			c.Interval = 1
		case 2:
			c.Interval = 6
		default:
			// Uses the easiness from before this review.
			c.Interval = int(math.Round(float64(c.Interval) * c.Easiness))
		}
	}

	c.Easiness = NextEasiness(c.Easiness, q)
	c.DueDate = DueDate(now, c.Interval)
	return c, nil
}

// NextEasiness applies the SM-2 easiness adjustment for q, floored at MinEasiness.
// There is no upper bound.
func NextEasiness(easiness float64, q Quality) float64 {
	miss := float64(MaxQuality - q)
	e := easiness + (0.1 - miss*(0.08+miss*0.02))
	return math.Max(MinEasiness, e)
}

// DueDate returns the moment a card reviewed at now with the given interval becomes due.
func DueDate(now time.Time, interval int) time.Time {
	return now.Add(time.Duration(interval) * Day)
}

// Reset restores the scheduling state of a never-studied card, keeping its content.
func Reset(card domain.Card, now time.Time) domain.Card {
	c := card.Clone()
	c.Easiness = InitialEasiness
	c.Interval = 0
	c.Repetitions = 0
	c.DueDate = now
	c.LastStudied = nil
	return c
}
