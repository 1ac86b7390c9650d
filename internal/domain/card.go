package domain

import "time"

// Card is a single study prompt with its answer and SM-2 scheduling state.
// Front, Back, Category and Tags are opaque to the scheduler.
type Card struct {
	ID          string     `json:"id" validate:"required"`
	Front       string     `json:"front" validate:"required"`
	Back        string     `json:"back" validate:"required"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	Source      string     `json:"source,omitempty"` // set for cards pulled from a markdown source
	Easiness    float64    `json:"easiness" validate:"gte=1.3"`
	Interval    int        `json:"interval" validate:"gte=0"` // days
	Repetitions int        `json:"repetitions" validate:"gte=0"`
	DueDate     time.Time  `json:"dueDate"`
	LastStudied *time.Time `json:"lastStudied"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// IsDue reports whether the card is eligible for review at now.
func (c Card) IsDue(now time.Time) bool {
	return !c.DueDate.After(now)
}

// Clone returns a copy that shares no memory with c.
func (c Card) Clone() Card {
	out := c
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	if c.LastStudied != nil {
		t := *c.LastStudied
		out.LastStudied = &t
	}
	return out
}

// Session aggregates one review pass.
type Session struct {
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime"`
	CardsStudied   int        `json:"cardsStudied"`
	CorrectAnswers int        `json:"correctAnswers"`
	IsActive       bool       `json:"isActive"`
}

// Clone returns a copy that shares no memory with s.
func (s Session) Clone() Session {
	out := s
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	return out
}

// Stats summarises a deck at a point in time.
type Stats struct {
	Total           int     `json:"total"`
	Due             int     `json:"due"`
	StudiedToday    int     `json:"studiedToday"`
	AverageEasiness float64 `json:"averageEasiness"`
	Session         Session `json:"sessionStats"`
}

// Source is a local directory or git repository holding markdown cards for a deck.
type Source struct {
	ID          int64      `json:"id"`
	Deck        string     `json:"deck"`
	Path        string     `json:"path"`
	Type        string     `json:"type"` // "local" or "git"
	LastScanned *time.Time `json:"lastScanned"`
}

const (
	SourceLocal = "local"
	SourceGit   = "git"
)
