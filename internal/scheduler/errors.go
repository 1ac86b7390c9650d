package scheduler

import "errors"

// Sentinel errors for the scheduler package. Check with errors.Is.
var (
	ErrNotFound    = errors.New("scheduler: card not found")
	ErrNothingDue  = errors.New("scheduler: no card is due")
	ErrInvalidCard = errors.New("scheduler: invalid card")
	ErrInvalidDeck = errors.New("scheduler: invalid deck name")
)
