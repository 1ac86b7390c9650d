package scheduler

import (
	"context"

	"github.com/conorfennell/kanadeck/internal/domain"
)

// StartSession begins a fresh study session and rewinds the cursor.
func (s *Scheduler) StartSession() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = domain.Session{
		StartTime: s.now(),
		IsActive:  true,
	}
	s.cursor = 0
	s.revealed = false
	return s.session.Clone()
}

// EndSession finalises the active session and appends it to the history.
// It is a no-op when no session is active.
func (s *Scheduler) EndSession() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endSession()
	return s.session.Clone()
}

// Session returns the current (possibly ended) session.
func (s *Scheduler) Session() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

// Sessions returns the history of finished sessions, oldest first.
func (s *Scheduler) Sessions() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Session, len(s.history))
	for i, h := range s.history {
		out[i] = h.Clone()
	}
	return out
}

func (s *Scheduler) endSession() {
	if !s.session.IsActive {
		return
	}
	end := s.now()
	s.session.EndTime = &end
	s.session.IsActive = false

	snapshot := s.session.Clone()
	s.history = append(s.history, snapshot)

	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := s.store.AppendSession(ctx, s.deck, snapshot); err != nil {
		s.log.Warn("Failed to save session", "error", err)
	}
}
